package parser

import (
	"sort"
	"testing"
	"time"

	"cs-inspector/internal/logging"
	"cs-inspector/internal/model"
)

var fixedNow = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

func newTestParser() *Parser {
	p := New(logging.Discard())
	p.now = func() time.Time { return fixedNow }
	return p
}

func TestParseCustomerAgentDialogue(t *testing.T) {
	t.Parallel()

	raw := "客户：您好\n客服：您好，请问有什么可以帮您？"
	conv := newTestParser().Parse(raw, model.FormatText)

	if len(conv.Turns) != 2 {
		t.Fatalf("expected 2 turns, got %d: %#v", len(conv.Turns), conv.Turns)
	}
	if conv.Turns[0].Speaker != "客户" || conv.Turns[0].Content != "您好" {
		t.Fatalf("unexpected first turn %#v", conv.Turns[0])
	}
	if conv.Turns[1].Speaker != "客服" || conv.Turns[1].Content != "您好，请问有什么可以帮您？" {
		t.Fatalf("unexpected second turn %#v", conv.Turns[1])
	}
	assertParticipants(t, conv, []string{"客户", "客服"})
	if conv.Metadata[model.MetaFormat] != "text" {
		t.Fatalf("expected text format tag, got %#v", conv.Metadata)
	}
	if DetectFormat(raw) != model.FormatText {
		t.Fatalf("expected detected format text")
	}
	if conv.SessionID != SessionHash(raw) || len(conv.SessionID) != 12 {
		t.Fatalf("expected 12-char content hash session id, got %q", conv.SessionID)
	}
	if !conv.Turns[0].Timestamp.Equal(fixedNow) {
		t.Fatalf("expected parse-time timestamp, got %v", conv.Turns[0].Timestamp)
	}
}

func TestParseStrategies(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		raw      string
		strategy string
		speakers []string
		contents []string
	}{
		{
			name:     "marker content spans lines until next marker",
			raw:      "User: my order\nis late\nAgent: sorry about that",
			strategy: "speaker_marker",
			speakers: []string{"User", "Agent"},
			contents: []string{"my order\nis late", "sorry about that"},
		},
		{
			name:     "marker wins over brackets",
			raw:      "客户：我的订单[123]还没到",
			strategy: "speaker_marker",
			speakers: []string{"客户"},
			contents: []string{"我的订单[123]还没到"},
		},
		{
			name:     "bracketed speakers",
			raw:      "[客户] 我要退货\n[客服] 好的，请提供订单号",
			strategy: "bracketed",
			speakers: []string{"客户", "客服"},
			contents: []string{"我要退货", "好的，请提供订单号"},
		},
		{
			name:     "parenthetical speakers",
			raw:      "张三(客服) 您好\n李四（客户） 我想咨询套餐",
			strategy: "parenthetical",
			speakers: []string{"张三", "李四"},
			contents: []string{"您好", "我想咨询套餐"},
		},
		{
			name:     "line scanner joins continuation lines",
			raw:      "Alice: hi\nthere\n\nBob: hello",
			strategy: "line_scan",
			speakers: []string{"Alice", "Bob"},
			contents: []string{"hi there", "hello"},
		},
		{
			name:     "line scanner starts with unknown speaker",
			raw:      "opening remark\n王经理：请讲",
			strategy: "line_scan",
			speakers: []string{model.SpeakerUnknown, "王经理"},
			contents: []string{"opening remark", "请讲"},
		},
	}

	p := newTestParser()
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			conv := p.Parse(tc.raw, model.FormatText)
			if got := conv.Metadata[MetaStrategy]; got != tc.strategy {
				t.Fatalf("expected strategy %s, got %v", tc.strategy, got)
			}
			if len(conv.Turns) != len(tc.speakers) {
				t.Fatalf("expected %d turns, got %#v", len(tc.speakers), conv.Turns)
			}
			for i, turn := range conv.Turns {
				if turn.Speaker != tc.speakers[i] || turn.Content != tc.contents[i] {
					t.Fatalf("turn %d: got %q/%q want %q/%q", i, turn.Speaker, turn.Content, tc.speakers[i], tc.contents[i])
				}
			}
			assertParticipantsMatchTurns(t, conv)
		})
	}
}

func TestParseTextWithoutTurns(t *testing.T) {
	t.Parallel()

	conv := newTestParser().Parse("   ", model.FormatText)
	if conv.Failed() {
		t.Fatalf("blank text should not be a parse error")
	}
	if len(conv.Turns) != 0 || len(conv.Participants) != 0 {
		t.Fatalf("expected empty conversation, got %#v", conv)
	}
}

func TestParseJSON(t *testing.T) {
	t.Parallel()

	p := newTestParser()

	t.Run("array", func(t *testing.T) {
		raw := `[{"speaker":"客户","content":"在吗","timestamp":"2024-01-02T03:04:05Z","emotion":"neutral"},{"speaker":"客服","content":"在的","intent":"greeting"}]`
		conv := p.Parse(raw, model.FormatJSON)
		if conv.Failed() {
			t.Fatalf("unexpected failure: %#v", conv.Metadata)
		}
		if conv.SessionID != SessionHash(raw) {
			t.Fatalf("expected hash session id for array input, got %s", conv.SessionID)
		}
		if len(conv.Turns) != 2 {
			t.Fatalf("expected 2 turns, got %d", len(conv.Turns))
		}
		want := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
		if !conv.Turns[0].Timestamp.Equal(want) {
			t.Fatalf("expected parsed timestamp, got %v", conv.Turns[0].Timestamp)
		}
		if !conv.Turns[1].Timestamp.Equal(fixedNow) {
			t.Fatalf("expected default timestamp, got %v", conv.Turns[1].Timestamp)
		}
		if conv.Turns[0].Emotion != "neutral" || conv.Turns[1].Intent != "greeting" {
			t.Fatalf("expected emotion/intent propagated, got %#v", conv.Turns)
		}
		if conv.Metadata[model.MetaFormat] != "json" {
			t.Fatalf("expected json format tag")
		}
		assertParticipants(t, conv, []string{"客户", "客服"})
	})

	t.Run("object with turns and session id", func(t *testing.T) {
		conv := p.Parse(`{"session_id":"s-42","turns":[{"content":"hello"}]}`, model.FormatJSON)
		if conv.SessionID != "s-42" {
			t.Fatalf("expected session id from payload, got %s", conv.SessionID)
		}
		if conv.Turns[0].Speaker != model.SpeakerUnknown {
			t.Fatalf("expected default speaker, got %s", conv.Turns[0].Speaker)
		}
	})

	t.Run("object with conversation key", func(t *testing.T) {
		conv := p.Parse(`{"conversation":[{"speaker":"User","content":"hi"}]}`, model.FormatJSON)
		if conv.Failed() || len(conv.Turns) != 1 {
			t.Fatalf("expected one turn, got %#v", conv)
		}
	})

	failures := map[string]string{
		"invalid json":        `{"turns": [`,
		"scalar":              `42`,
		"object without list": `{"messages":[]}`,
		"turns not array":     `{"turns":"hello"}`,
		"non object turn":     `[1,2]`,
		"plain text":          "客户：你好",
	}
	for name, raw := range failures {
		raw := raw
		t.Run(name, func(t *testing.T) {
			conv := p.Parse(raw, model.FormatJSON)
			if conv.SessionID != model.SessionParseError {
				t.Fatalf("expected parse_error sentinel, got %s", conv.SessionID)
			}
			if msg, _ := conv.Metadata[model.MetaError].(string); msg == "" {
				t.Fatalf("expected error detail, got %#v", conv.Metadata)
			}
			if len(conv.Turns) != 0 {
				t.Fatalf("expected no partial turns")
			}
		})
	}
}

func TestParseSessionOverride(t *testing.T) {
	t.Parallel()

	p := newTestParser()
	conv := p.ParseSession("客户：你好", model.FormatText, "caller-1")
	if conv.SessionID != "caller-1" {
		t.Fatalf("expected caller session id, got %s", conv.SessionID)
	}
	failed := p.ParseSession("oops", model.FormatJSON, "caller-2")
	if failed.SessionID != model.SessionParseError {
		t.Fatalf("expected sentinel to survive override, got %s", failed.SessionID)
	}
}

func TestParseBatchIsIndexAligned(t *testing.T) {
	t.Parallel()

	raws := []string{"客户：一", "not json", "客服：三"}
	out := newTestParser().ParseBatch(raws, model.FormatText)
	if len(out) != len(raws) {
		t.Fatalf("expected %d results, got %d", len(raws), len(out))
	}
	if out[0].Turns[0].Content != "一" || out[2].Turns[0].Content != "三" {
		t.Fatalf("results not aligned with inputs")
	}
}

func TestDetectFormat(t *testing.T) {
	t.Parallel()

	cases := map[string]model.Format{
		"":                      model.FormatUnknown,
		"   \n\t":               model.FormatUnknown,
		`[{"speaker":"a"}]`:     model.FormatJSON,
		`  {"turns":[]}  `:      model.FormatJSON,
		`{"turns": [`:           model.FormatText,
		"客户：你好":                 model.FormatText,
		"a: b":                  model.FormatText,
		"no separator here":     model.FormatUnknown,
		"{broken without colon": model.FormatUnknown,
	}
	for in, want := range cases {
		if got := DetectFormat(in); got != want {
			t.Fatalf("DetectFormat(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestValidateFormat(t *testing.T) {
	t.Parallel()

	if ValidateFormat("  ") {
		t.Fatal("blank content should be invalid")
	}
	if !ValidateFormat("客户：你好") {
		t.Fatal("speaker marker should be valid")
	}
	if !ValidateFormat("line one\nline two") {
		t.Fatal("multi-line content should be valid")
	}
	if ValidateFormat("single line") {
		t.Fatal("single line without markers should be invalid")
	}
}

func TestParticipantsMatchTurnsProperty(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"客户：a\n客服：b\n客户：c",
		"Customer: x User: y Agent: z",
		"[A] one [B] two [A] three",
		"甲(客服) 1\n乙(客户) 2\n甲(客服) 3",
		"x: 1\ny: 2\nz",
	}
	p := newTestParser()
	for _, in := range inputs {
		conv := p.Parse(in, model.FormatText)
		if len(conv.Turns) == 0 {
			t.Fatalf("expected turns for %q", in)
		}
		assertParticipantsMatchTurns(t, conv)
	}
}

func assertParticipants(t *testing.T, conv *model.Conversation, want []string) {
	t.Helper()
	got := append([]string(nil), conv.Participants...)
	sort.Strings(got)
	w := append([]string(nil), want...)
	sort.Strings(w)
	if len(got) != len(w) {
		t.Fatalf("participants got %v want %v", got, w)
	}
	for i := range got {
		if got[i] != w[i] {
			t.Fatalf("participants got %v want %v", got, w)
		}
	}
}

func assertParticipantsMatchTurns(t *testing.T, conv *model.Conversation) {
	t.Helper()
	seen := map[string]struct{}{}
	var speakers []string
	for _, turn := range conv.Turns {
		if _, ok := seen[turn.Speaker]; !ok {
			seen[turn.Speaker] = struct{}{}
			speakers = append(speakers, turn.Speaker)
		}
	}
	assertParticipants(t, conv, speakers)
}
