package notifier

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"cs-inspector/internal/model"
)

// EmailConfig 邮件配置。
type EmailConfig struct {
	Host     string   `yaml:"host" json:"host"`
	Port     int      `yaml:"port" json:"port"`
	Username string   `yaml:"username" json:"username"`
	Password string   `yaml:"password" json:"password"`
	From     string   `yaml:"from" json:"from"`
	To       []string `yaml:"to" json:"to"`
	Subject  string   `yaml:"subject" json:"subject"`
}

// Enabled 判断是否配置了可用的收发件信息。
func (c EmailConfig) Enabled() bool {
	return c.Host != "" && c.From != "" && len(c.To) > 0
}

// EmailMessage 表示一封邮件。
type EmailMessage struct {
	From    string
	To      []string
	Subject string
	Body    string
}

// EmailSender 抽象发送接口，便于测试替换。
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// SMTPClient 封装 SMTP 发送。
type SMTPClient struct {
	addr string
	auth smtp.Auth
}

func NewSMTPClient(cfg EmailConfig) *SMTPClient {
	port := cfg.Port
	if port == 0 {
		port = 25
	}
	var auth smtp.Auth
	if cfg.Username != "" && cfg.Password != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return &SMTPClient{addr: fmt.Sprintf("%s:%d", cfg.Host, port), auth: auth}
}

func (c *SMTPClient) Send(ctx context.Context, msg EmailMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := smtp.SendMail(c.addr, c.auth, msg.From, msg.To, []byte(buildEmailData(msg))); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

// EmailNotifier 负责把新增报告汇总成一封邮件发送。
type EmailNotifier struct {
	cfg    EmailConfig
	sender EmailSender
}

// NewEmailNotifier 创建 EmailNotifier。
func NewEmailNotifier(cfg EmailConfig, sender EmailSender) *EmailNotifier {
	if sender == nil {
		sender = NewSMTPClient(cfg)
	}
	if cfg.Subject == "" {
		cfg.Subject = "客服质检报告"
	}
	return &EmailNotifier{cfg: cfg, sender: sender}
}

// Notify 发送新增报告摘要，列表为空则跳过。
func (n EmailNotifier) Notify(ctx context.Context, reports []model.InspectionReport) error {
	if len(reports) == 0 {
		return nil
	}

	msg := EmailMessage{
		From:    n.cfg.From,
		To:      n.cfg.To,
		Subject: fmt.Sprintf("%s（%d 个会话）", n.cfg.Subject, len(reports)),
		Body:    buildBody(reports),
	}
	return n.sender.Send(ctx, msg)
}

func buildBody(reports []model.InspectionReport) string {
	var b strings.Builder
	failing := 0
	b.WriteString("新增质检报告：\n")
	for _, r := range reports {
		mark := ""
		if !r.Passed() {
			mark = " [不合格]"
			failing++
		}
		fmt.Fprintf(&b, "- 会话 %s：总体评分 %.1f 分，问题 %d 个%s\n", r.SessionID, r.OverallScore, len(r.Issues), mark)
		if r.Summary != "" {
			fmt.Fprintf(&b, "  总结：%s\n", r.Summary)
		}
	}
	if failing > 0 {
		fmt.Fprintf(&b, "\n共 %d 个会话低于 60 分，请及时复核。\n", failing)
	}
	return b.String()
}

func buildEmailData(msg EmailMessage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", msg.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(msg.To, ","))
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(msg.Body)
	return b.String()
}
