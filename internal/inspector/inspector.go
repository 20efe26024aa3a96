package inspector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"cs-inspector/internal/llm"
	"cs-inspector/internal/logging"
	"cs-inspector/internal/metrics"
	"cs-inspector/internal/model"
)

// Config 描述质检提示词配置，模板中的 {{CONVERSATION}} 会被替换为对话文本。
type Config struct {
	QualityPrompt    string `yaml:"quality_prompt" json:"quality_prompt"`
	CompliancePrompt string `yaml:"compliance_prompt" json:"compliance_prompt"`
}

// Inspector 调用大模型评估对话质量，并把自由文本结果解析为结构化报告。
// 本层不做重试，重试与限流由 llm.Client 负责。
type Inspector struct {
	cfg     Config
	llm     llm.Client
	logger  *logging.Logger
	metrics *metrics.QualityMetrics
	now     func() time.Time
	newID   func() string
}

// New 创建 Inspector。
func New(cfg Config, client llm.Client, logger *logging.Logger, m *metrics.QualityMetrics) *Inspector {
	if strings.TrimSpace(cfg.QualityPrompt) == "" {
		cfg.QualityPrompt = defaultQualityPrompt
	}
	if strings.TrimSpace(cfg.CompliancePrompt) == "" {
		cfg.CompliancePrompt = defaultCompliancePrompt
	}
	return &Inspector{
		cfg:     cfg,
		llm:     client,
		logger:  logger.Component("inspector"),
		metrics: m,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Inspect 对单个会话做一次质检。任何失败都记录在报告内：分数为 0，summary 写明原因。
func (i *Inspector) Inspect(ctx context.Context, conv *model.Conversation) model.InspectionReport {
	sessionID := "unknown"
	if conv != nil {
		sessionID = conv.SessionID
	}

	start := i.now()
	report, err := i.inspect(ctx, conv)
	i.metrics.ObserveInspection("quality", err == nil, time.Since(start).Seconds())
	if err != nil {
		i.logger.Error("inspection failed", "session_id", sessionID, "error", err)
		return i.failedReport(sessionID, err)
	}

	i.logger.Info("inspection finished", "session_id", sessionID, "overall_score", report.OverallScore, "issues", len(report.Issues))
	return report
}

func (i *Inspector) inspect(ctx context.Context, conv *model.Conversation) (model.InspectionReport, error) {
	if conv == nil {
		return model.InspectionReport{}, fmt.Errorf("conversation is nil")
	}
	prompt := fillPrompt(i.cfg.QualityPrompt, FormatConversation(conv))
	resp, err := i.llm.Complete(ctx, prompt)
	if err != nil {
		return model.InspectionReport{}, fmt.Errorf("llm complete: %w", err)
	}
	report := ExtractReport(resp, conv.SessionID, i.now())
	report.ID = i.newID()
	return report, nil
}

// BatchInspect 顺序质检，结果与输入按下标对齐，单个失败不影响其余会话。
func (i *Inspector) BatchInspect(ctx context.Context, convs []*model.Conversation) []model.InspectionReport {
	reports := make([]model.InspectionReport, 0, len(convs))
	for idx, conv := range convs {
		i.logger.Info("batch inspection", "index", idx+1, "total", len(convs))
		reports = append(reports, i.Inspect(ctx, conv))
	}
	return reports
}

func (i *Inspector) failedReport(sessionID string, err error) model.InspectionReport {
	return model.InspectionReport{
		ID:          i.newID(),
		SessionID:   sessionID,
		Issues:      []model.Issue{},
		Summary:     model.InspectionFailedPrefix + err.Error(),
		GeneratedAt: i.now(),
	}
}

// FormatConversation 把会话格式化为“发言者: 内容”的多行文本。
func FormatConversation(conv *model.Conversation) string {
	lines := make([]string, 0, len(conv.Turns))
	for _, t := range conv.Turns {
		lines = append(lines, t.Speaker+": "+t.Content)
	}
	return strings.Join(lines, "\n")
}

// AgentLabels 视为客服一方的发言者标签。
var AgentLabels = map[string]struct{}{"客服": {}, "坐席": {}, "Agent": {}, "agent": {}}

// AgentUtterances 提取客服一方的发言内容。
func AgentUtterances(conv *model.Conversation) []string {
	var out []string
	for _, t := range conv.Turns {
		if _, ok := AgentLabels[t.Speaker]; ok {
			out = append(out, t.Content)
		}
	}
	return out
}

func fillPrompt(template, conversation string) string {
	return strings.ReplaceAll(template, "{{CONVERSATION}}", conversation)
}

const defaultQualityPrompt = `请对以下客服对话进行质量检查：

对话内容：
{{CONVERSATION}}

检查要点：
- 服务态度
- 问题解决能力
- 专业性
- 合规性

请给出评分（满分100分）和改进建议，按以下格式输出：
总体评分：<分数>
服务态度：<分数>
专业性：<分数>
合规性：<分数>
发现的问题逐条编号（1. 2. ...），注明严重或轻微；
总结：<一句话总结>`

const defaultCompliancePrompt = `请检查以下客服对话的合规性：

对话内容：
{{CONVERSATION}}

请检查是否存在违规内容，并给出评分。请按照JSON格式输出：
{"score": 评分（0-100）, "violations": ["违规项"], "comment": "说明"}`
