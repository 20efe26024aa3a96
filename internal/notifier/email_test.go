package notifier

import (
	"context"
	"strings"
	"testing"

	"cs-inspector/internal/model"
)

func TestEmailNotifierSendsWhenNewReports(t *testing.T) {
	t.Parallel()

	sender := &stubSender{}
	n := NewEmailNotifier(EmailConfig{From: "from@example.com", To: []string{"to@example.com"}}, sender)

	reports := []model.InspectionReport{
		{SessionID: "s1", OverallScore: 85, Summary: "表现良好"},
		{SessionID: "s2", OverallScore: 40, Issues: []model.Issue{{IssueType: "服务问题"}}},
	}
	if err := n.Notify(context.Background(), reports); err != nil {
		t.Fatalf("Notify error: %v", err)
	}
	if sender.calls != 1 {
		t.Fatalf("expected 1 send call, got %d", sender.calls)
	}
	if !strings.Contains(sender.last.Subject, "客服质检报告") || !strings.Contains(sender.last.Subject, "2") {
		t.Fatalf("unexpected subject %q", sender.last.Subject)
	}
	body := sender.last.Body
	if !strings.Contains(body, "会话 s1：总体评分 85.0 分") || !strings.Contains(body, "总结：表现良好") {
		t.Fatalf("expected body to describe s1, got %s", body)
	}
	if !strings.Contains(body, "会话 s2：总体评分 40.0 分，问题 1 个 [不合格]") || !strings.Contains(body, "共 1 个会话低于 60 分") {
		t.Fatalf("expected failing session flagged, got %s", body)
	}
}

func TestEmailNotifierSkipsWhenEmpty(t *testing.T) {
	t.Parallel()

	sender := &stubSender{}
	n := NewEmailNotifier(EmailConfig{From: "from@example.com", To: []string{"to@example.com"}}, sender)

	if err := n.Notify(context.Background(), nil); err != nil {
		t.Fatalf("Notify error: %v", err)
	}
	if sender.calls != 0 {
		t.Fatalf("expected no send calls, got %d", sender.calls)
	}
}

func TestEmailConfigEnabled(t *testing.T) {
	t.Parallel()

	if (EmailConfig{Host: "smtp", From: "a@b"}).Enabled() {
		t.Fatalf("expected disabled without recipients")
	}
	if !(EmailConfig{Host: "smtp", From: "a@b", To: []string{"c@d"}}).Enabled() {
		t.Fatalf("expected enabled")
	}
}

func TestBuildEmailData(t *testing.T) {
	t.Parallel()

	data := buildEmailData(EmailMessage{From: "a@b", To: []string{"c@d", "e@f"}, Subject: "主题", Body: "正文"})
	if !strings.HasPrefix(data, "From: a@b\r\nTo: c@d,e@f\r\nSubject: 主题\r\n") || !strings.HasSuffix(data, "\r\n\r\n正文") {
		t.Fatalf("unexpected email data %q", data)
	}
}

// --- stubs ---

type stubSender struct {
	calls int
	last  EmailMessage
	err   error
}

func (s *stubSender) Send(ctx context.Context, msg EmailMessage) error {
	s.calls++
	s.last = msg
	if s.err != nil {
		return s.err
	}
	return ctx.Err()
}
