package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestDashScopeClientComplete(t *testing.T) {
	t.Parallel()

	var gotAuth string
	var gotBody chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"  总体评分：88  "}}]}`))
	}))
	defer srv.Close()

	c := NewDashScopeClient(Config{APIBase: srv.URL + "/v1/", APIKey: "sk-1"}, srv.Client())
	out, err := c.Complete(context.Background(), "评估对话")
	if err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	if out != "总体评分：88" {
		t.Fatalf("expected trimmed content, got %q", out)
	}
	if gotAuth != "Bearer sk-1" {
		t.Fatalf("expected bearer auth, got %q", gotAuth)
	}
	if gotBody.Model != defaultDashScopeModel {
		t.Fatalf("expected default model, got %s", gotBody.Model)
	}
	if len(gotBody.Messages) != 2 || gotBody.Messages[1].Content != "评估对话" {
		t.Fatalf("unexpected messages %#v", gotBody.Messages)
	}
}

func TestDashScopeClientErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"rate limited", http.StatusTooManyRequests, `{}`, ErrRateLimited},
		{"server error", http.StatusBadGateway, `{}`, ErrConnection},
		{"bad request", http.StatusBadRequest, `{}`, ErrInvalid},
		{"empty choices", http.StatusOK, `{"choices":[]}`, ErrEmpty},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			c := NewDashScopeClient(Config{APIBase: srv.URL, APIKey: "k"}, srv.Client())
			_, err := c.Complete(context.Background(), "p")
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestDashScopeClientMissingKey(t *testing.T) {
	t.Parallel()

	c := NewDashScopeClient(Config{}, nil)
	if _, err := c.Complete(context.Background(), "p"); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestOpenAIClientComplete(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":0,"model":"qwen-plus","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"总结：不错"}}]}`))
	}))
	defer srv.Close()

	c, err := NewOpenAIClient(Config{APIKey: "k", APIBase: srv.URL + "/"})
	if err != nil {
		t.Fatalf("NewOpenAIClient error: %v", err)
	}
	out, err := c.Complete(context.Background(), "p")
	if err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	if out != "总结：不错" {
		t.Fatalf("unexpected content %q", out)
	}
}

func TestOpenAIClientRequiresKey(t *testing.T) {
	t.Parallel()

	if _, err := NewOpenAIClient(Config{}); err == nil {
		t.Fatal("expected error without api key")
	}
}

func TestRetryClientRetriesConnectionErrors(t *testing.T) {
	t.Parallel()

	next := &scriptedClient{errs: []error{ErrConnection, ErrTimeout}, out: "ok"}
	r := NewRetryClient(next, RetryConfig{Attempts: 3})
	var waits []time.Duration
	r.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	out, err := r.Complete(context.Background(), "p")
	if err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	if out != "ok" || next.calls != 3 {
		t.Fatalf("expected success on third call, got %q after %d calls", out, next.calls)
	}
	if len(waits) != 2 || waits[0] != 2*time.Second || waits[1] != 4*time.Second {
		t.Fatalf("unexpected backoff %v", waits)
	}
}

func TestRetryClientDoesNotRetryRateLimit(t *testing.T) {
	t.Parallel()

	next := &scriptedClient{errs: []error{ErrRateLimited}, out: "ok"}
	r := NewRetryClient(next, RetryConfig{Attempts: 3})
	r.sleep = func(context.Context, time.Duration) error { return nil }

	if _, err := r.Complete(context.Background(), "p"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
	if next.calls != 1 {
		t.Fatalf("expected a single call, got %d", next.calls)
	}
}

func TestRetryClientGivesUp(t *testing.T) {
	t.Parallel()

	next := &scriptedClient{errs: []error{ErrConnection, ErrConnection, ErrConnection, ErrConnection}}
	r := NewRetryClient(next, RetryConfig{Attempts: 2})
	r.sleep = func(context.Context, time.Duration) error { return nil }

	if _, err := r.Complete(context.Background(), "p"); !errors.Is(err, ErrConnection) {
		t.Fatalf("expected connection error, got %v", err)
	}
	if next.calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", next.calls)
	}
}

func TestNewProviders(t *testing.T) {
	t.Parallel()

	c, err := New(Config{Provider: ProviderMock})
	if err != nil {
		t.Fatalf("New mock error: %v", err)
	}
	out, _ := c.Complete(context.Background(), "p")
	if out != DefaultMockEvaluation {
		t.Fatalf("expected mock evaluation")
	}

	if _, err := New(Config{Provider: "bard"}); err == nil {
		t.Fatal("expected unsupported provider error")
	}
	if _, err := New(Config{Provider: ProviderDashScope, Timeout: "soon"}); err == nil {
		t.Fatal("expected invalid timeout error")
	}
	if _, ok := mustNew(t, Config{Provider: ProviderDashScope, APIKey: "k"}).(*RetryClient); !ok {
		t.Fatal("expected dashscope client wrapped in RetryClient")
	}
}

func mustNew(t *testing.T, cfg Config) Client {
	t.Helper()
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	return c
}

type scriptedClient struct {
	errs  []error
	out   string
	calls int
}

func (s *scriptedClient) Complete(ctx context.Context, prompt string) (string, error) {
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return "", err
	}
	return s.out, nil
}
