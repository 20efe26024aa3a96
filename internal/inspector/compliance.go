package inspector

import (
	"context"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"cs-inspector/internal/model"
)

// ComplianceNote 是响应中出现违规关键词时追加的提示。
const ComplianceNote = "存在潜在的合规性问题"

// ComplianceResult 是合规检查结果。
type ComplianceResult struct {
	Score   float64        `json:"score"`
	Issues  []string       `json:"issues"`
	Details map[string]any `json:"details"`
	Error   string         `json:"error,omitempty"`
}

// CheckCompliance 独立调用一次大模型做合规检查。
// 分数取自响应中的 JSON 片段（缺省 100）；关键词检测与分数相互独立。
func (i *Inspector) CheckCompliance(ctx context.Context, conv *model.Conversation) ComplianceResult {
	if conv == nil {
		return ComplianceResult{Issues: []string{}, Details: map[string]any{}, Error: "conversation is nil"}
	}
	start := i.now()
	resp, err := i.llm.Complete(ctx, fillPrompt(i.cfg.CompliancePrompt, FormatConversation(conv)))
	i.metrics.ObserveInspection("compliance", err == nil, time.Since(start).Seconds())
	if err != nil {
		i.logger.Error("compliance check failed", "session_id", conv.SessionID, "error", err)
		return ComplianceResult{Score: 0, Issues: []string{}, Details: map[string]any{}, Error: err.Error()}
	}

	obj := extractJSONObject(resp)
	score := 100.0
	if v, ok := numberField(obj, "score"); ok {
		score = clampScore(v)
	}
	details, _ := obj.Value().(map[string]any)
	if details == nil {
		details = map[string]any{}
	}

	issues := []string{}
	if strings.Contains(resp, "违规") || strings.Contains(resp, "不合规") {
		issues = append(issues, ComplianceNote)
	}
	return ComplianceResult{Score: score, Issues: issues, Details: details}
}

// AttitudeEvaluation 是服务态度评估结果。
type AttitudeEvaluation struct {
	Score       float64  `json:"score"`
	Strengths   []string `json:"strengths"`
	Weaknesses  []string `json:"weaknesses"`
	Suggestions []string `json:"suggestions"`
	Error       string   `json:"error,omitempty"`
}

// EvaluateAttitude 评估客服回复的服务态度。
func (i *Inspector) EvaluateAttitude(ctx context.Context, agentResponses []string) AttitudeEvaluation {
	prompt := `请评估以下客服回复的服务态度：

客服回复：
` + strings.Join(agentResponses, "\n") + `

请从礼貌程度、热情度、耐心程度、同理心几个方面进行评估，并按照JSON格式输出：
{"score": 评分（0-100）, "strengths": ["优点列表"], "weaknesses": ["缺点列表"], "suggestions": ["改进建议"]}`

	start := i.now()
	resp, err := i.llm.Complete(ctx, prompt)
	i.metrics.ObserveInspection("attitude", err == nil, time.Since(start).Seconds())
	if err != nil {
		i.logger.Error("attitude evaluation failed", "error", err)
		return AttitudeEvaluation{Error: err.Error()}
	}

	payload := extractJSONObject(resp)
	score, _ := numberField(payload, "score")
	return AttitudeEvaluation{
		Score:       clampScore(score),
		Strengths:   stringList(payload, "strengths"),
		Weaknesses:  stringList(payload, "weaknesses"),
		Suggestions: stringList(payload, "suggestions"),
	}
}

// KeepUpSuggestion 是没有问题时的默认建议。
const KeepUpSuggestion = "继续保持良好的服务"

// SuggestImprovements 针对问题列表生成改进建议；大模型失败时退回问题自带的建议。
func (i *Inspector) SuggestImprovements(ctx context.Context, issues []model.Issue) []string {
	if len(issues) == 0 {
		return []string{KeepUpSuggestion}
	}

	lines := make([]string, 0, len(issues))
	for _, issue := range issues {
		lines = append(lines, "- "+issue.IssueType+": "+issue.Description)
	}
	prompt := `请根据以下客服对话中发现的问题，提供具体的改进建议：

发现问题：
` + strings.Join(lines, "\n") + `

请针对每个问题提供具体的改进建议，并按照JSON数组格式输出：
[{"issue": "问题类型", "suggestion": "改进建议"}]`

	resp, err := i.llm.Complete(ctx, prompt)
	if err != nil {
		i.logger.Error("improvement suggestion failed", "error", err)
		return fallbackSuggestions(issues)
	}

	var out []string
	for _, item := range extractJSONArray(resp).Array() {
		if s := item.Get("suggestion"); s.Type == gjson.String && strings.TrimSpace(s.Str) != "" {
			out = append(out, strings.TrimSpace(s.Str))
		}
	}
	return out
}

func fallbackSuggestions(issues []model.Issue) []string {
	var out []string
	for _, issue := range issues {
		if issue.Suggestion != "" {
			out = append(out, issue.Suggestion)
		}
	}
	return out
}
