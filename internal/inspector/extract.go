package inspector

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"cs-inspector/internal/model"
)

// GenericIssueType 是从编号列表中提取出的问题的统一类型。
const GenericIssueType = "服务问题"

type scorePattern struct {
	re  *regexp.Regexp
	set func(r *model.InspectionReport, v float64)
}

func labeledScore(label string) *regexp.Regexp {
	return regexp.MustCompile(label + `[：:\s\p{Zs}]*(\d+\.?\d*)`)
}

var scorePatterns = []scorePattern{
	{labeledScore("总体评分"), func(r *model.InspectionReport, v float64) { r.OverallScore, r.Parsed.Overall = v, true }},
	{labeledScore("服务态度"), func(r *model.InspectionReport, v float64) { r.AttitudeScore, r.Parsed.Attitude = v, true }},
	{labeledScore("专业性"), func(r *model.InspectionReport, v float64) { r.ProfessionalismScore, r.Parsed.Professionalism = v, true }},
	{labeledScore("合规性"), func(r *model.InspectionReport, v float64) { r.ComplianceScore, r.Parsed.Compliance = v, true }},
}

var (
	numberedItemRe = regexp.MustCompile(`\d+\.`)
	summaryRe      = regexp.MustCompile(`(?m)总结[：:\s\p{Zs}]*(.+?)$`)
)

// ExtractReport 从模型的自由文本评估中确定性地提取评分、问题与总结。
// 未匹配到的评分保持 0，对应的 Parsed 标记为 false。
func ExtractReport(response, sessionID string, now time.Time) model.InspectionReport {
	report := model.InspectionReport{
		SessionID:   sessionID,
		Issues:      ExtractIssues(response, now),
		Summary:     ExtractSummary(response),
		GeneratedAt: now,
	}
	for _, p := range scorePatterns {
		m := p.re.FindStringSubmatch(response)
		if m == nil {
			continue
		}
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		p.set(&report, clampScore(v))
	}
	return report
}

// ExtractIssues 按 “数字.” 切分文本，含“问题”或“不足”的片段各生成一个问题。
func ExtractIssues(response string, now time.Time) []model.Issue {
	blocks := numberedItemRe.Split(response, -1)
	issues := make([]model.Issue, 0)
	if len(blocks) < 2 {
		return issues
	}
	for _, block := range blocks[1:] {
		if !strings.Contains(block, "问题") && !strings.Contains(block, "不足") {
			continue
		}
		issues = append(issues, model.Issue{
			IssueType:   GenericIssueType,
			Description: model.TruncateDescription(strings.TrimSpace(block)),
			Severity:    severityOf(block),
			DetectedAt:  now,
		})
	}
	return issues
}

// severityOf 先判“严重”，再判“轻微”，否则为 medium。
func severityOf(block string) model.Severity {
	switch {
	case strings.Contains(block, "严重"):
		return model.SeverityHigh
	case strings.Contains(block, "轻微"):
		return model.SeverityLow
	default:
		return model.SeverityMedium
	}
}

// ExtractSummary 返回首个“总结：”所在行的内容。
func ExtractSummary(response string) string {
	m := summaryRe.FindStringSubmatch(response)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// extractJSONObject 取出响应中第一个 '{' 到最后一个 '}' 之间的 JSON 对象，
// 不存在或不合法时返回零值 Result。
func extractJSONObject(response string) gjson.Result {
	res, ok := jsonSpan(response, '{', '}')
	if !ok || !res.IsObject() {
		return gjson.Result{}
	}
	return res
}

// extractJSONArray 与 extractJSONObject 类似，但针对数组。
func extractJSONArray(response string) gjson.Result {
	res, ok := jsonSpan(response, '[', ']')
	if !ok || !res.IsArray() {
		return gjson.Result{}
	}
	return res
}

func jsonSpan(response string, open, closing byte) (gjson.Result, bool) {
	start := strings.IndexByte(response, open)
	end := strings.LastIndexByte(response, closing)
	if start < 0 || end <= start {
		return gjson.Result{}, false
	}
	raw := response[start : end+1]
	if !gjson.Valid(raw) {
		return gjson.Result{}, false
	}
	return gjson.Parse(raw), true
}

func numberField(obj gjson.Result, key string) (float64, bool) {
	field := obj.Get(key)
	switch field.Type {
	case gjson.Number:
		return field.Float(), true
	case gjson.String:
		f, err := strconv.ParseFloat(strings.TrimSpace(field.Str), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func stringList(obj gjson.Result, key string) []string {
	items := obj.Get(key).Array()
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item.Type == gjson.String && strings.TrimSpace(item.Str) != "" {
			out = append(out, strings.TrimSpace(item.Str))
		}
	}
	return out
}
