package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	ProviderDashScope = "dashscope"
	ProviderOpenAI    = "openai"
	ProviderMock      = "mock"
)

// 调用方可通过 errors.Is 区分的错误类别。
var (
	ErrConnection  = errors.New("llm connection failed")
	ErrTimeout     = errors.New("llm request timed out")
	ErrRateLimited = errors.New("llm rate limited")
	ErrInvalid     = errors.New("llm invalid request")
	ErrEmpty       = errors.New("llm response empty")
)

// Config 定义大模型接入配置。
type Config struct {
	Provider   string `yaml:"provider" json:"provider"`
	APIBase    string `yaml:"api_base" json:"api_base"`
	APIKey     string `yaml:"api_key" json:"api_key"`
	Model      string `yaml:"model" json:"model"`
	System     string `yaml:"system" json:"system"`
	Timeout    string `yaml:"timeout" json:"timeout"`
	MaxRetries int    `yaml:"max_retries" json:"max_retries"`
}

// Client 抽象大模型文本生成能力，便于测试注入。
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// New 按 provider 构建客户端，并套上重试。
func New(cfg Config) (Client, error) {
	timeout := 60 * time.Second
	if cfg.Timeout != "" {
		d, err := time.ParseDuration(cfg.Timeout)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid llm timeout %q", cfg.Timeout)
		}
		timeout = d
	}

	var base Client
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case ProviderDashScope, "deepseek", "":
		base = NewDashScopeClient(cfg, &http.Client{Timeout: timeout})
	case ProviderOpenAI:
		c, err := NewOpenAIClient(cfg)
		if err != nil {
			return nil, err
		}
		base = c
	case ProviderMock:
		return NewStaticClient(DefaultMockEvaluation), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}

	attempts := cfg.MaxRetries
	if attempts <= 0 {
		attempts = 3
	}
	return NewRetryClient(base, RetryConfig{Attempts: attempts}), nil
}

// classifyStatus 将 HTTP 状态码映射到错误类别。
func classifyStatus(provider string, code int) error {
	switch {
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%s http %d: %w", provider, code, ErrRateLimited)
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return fmt.Errorf("%s http %d: %w", provider, code, ErrTimeout)
	case code >= 500:
		return fmt.Errorf("%s http %d: %w", provider, code, ErrConnection)
	default:
		return fmt.Errorf("%s http %d: %w", provider, code, ErrInvalid)
	}
}

// classifyTransport 将传输层错误映射到错误类别。
func classifyTransport(provider string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
		return fmt.Errorf("%s request: %w: %v", provider, ErrTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s request: %w", provider, err)
	}
	return fmt.Errorf("%s request: %w: %v", provider, ErrConnection, err)
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
