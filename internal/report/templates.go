package report

import (
	"fmt"
	"html/template"
	"strings"

	"cs-inspector/internal/model"
)

const (
	heavyRule = "================================================================================"
	lightRule = "--------------------------------------------------------------------------------"
	timeFmt   = "2006-01-02 15:04:05"
)

var detailedHTML = template.Must(template.New("report").Funcs(template.FuncMap{
	"score": func(v float64) string { return fmt.Sprintf("%.1f分", v) },
	"orNone": func(s string) string {
		if s == "" {
			return "无"
		}
		return s
	},
}).Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <title>质检报告 - {{.SessionID}}</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        h1 { color: #333; }
        .score { font-size: 24px; font-weight: bold; }
        .pass { color: green; }
        .fail { color: red; }
        .issue { margin: 10px 0; padding: 10px; border-left: 3px solid #ddd; }
        .critical { border-left-color: darkred; }
        .high { border-left-color: red; }
        .medium { border-left-color: orange; }
        .low { border-left-color: green; }
    </style>
</head>
<body>
    <h1>质检报告</h1>
    <p>会话ID: {{.SessionID}}</p>
    <p>总体评分: <span class="score {{if .Passed}}pass{{else}}fail{{end}}">{{score .OverallScore}}</span></p>
    <h2>各项评分</h2>
    <ul>
        <li>服务态度: {{score .AttitudeScore}}</li>
        <li>专业性: {{score .ProfessionalismScore}}</li>
        <li>合规性: {{score .ComplianceScore}}</li>
    </ul>
    <h2>发现问题</h2>
{{- range .Issues}}
    <div class="issue {{.Severity}}">
        <strong>{{.IssueType}}</strong> ({{.Severity}})
        <p>{{.Description}}</p>
        <p><em>建议: {{orNone .Suggestion}}</em></p>
    </div>
{{- end}}
    <h2>总结</h2>
    <p>{{orNone .Summary}}</p>
</body>
</html>
`))

func renderDetailedText(r model.InspectionReport) string {
	var b strings.Builder
	b.WriteString(heavyRule + "\n")
	b.WriteString(center("客服对话质检报告") + "\n")
	b.WriteString(heavyRule + "\n\n")
	fmt.Fprintf(&b, "会话ID: %s\n", r.SessionID)
	if r.ID != "" {
		fmt.Fprintf(&b, "报告ID: %s\n", r.ID)
	}
	fmt.Fprintf(&b, "生成时间: %s\n\n", r.GeneratedAt.Format(timeFmt))

	section(&b, "总体评分")
	fmt.Fprintf(&b, "总体评分: %.1f分\n", r.OverallScore)
	fmt.Fprintf(&b, "服务态度: %.1f分\n", r.AttitudeScore)
	fmt.Fprintf(&b, "专业性: %.1f分\n", r.ProfessionalismScore)
	fmt.Fprintf(&b, "合规性: %.1f分\n\n", r.ComplianceScore)

	section(&b, "发现问题")
	if len(r.Issues) == 0 {
		b.WriteString("无\n")
	}
	for i, issue := range r.Issues {
		fmt.Fprintf(&b, "\n问题%d: [%s] %s\n", i+1, issue.Severity, issue.IssueType)
		fmt.Fprintf(&b, "描述: %s\n", issue.Description)
		fmt.Fprintf(&b, "位置: %s\n", orDefault(issue.Location, "未指定"))
		fmt.Fprintf(&b, "建议: %s\n", orDefault(issue.Suggestion, "无"))
	}
	b.WriteString("\n")

	section(&b, "总结")
	b.WriteString(orDefault(r.Summary, "无") + "\n\n")
	b.WriteString(heavyRule + "\n")
	b.WriteString(center("报告结束") + "\n")
	b.WriteString(heavyRule + "\n")
	return b.String()
}

func renderSummaryText(s model.SummaryReport) string {
	var b strings.Builder
	b.WriteString(heavyRule + "\n")
	b.WriteString(center("质检汇总报告") + "\n")
	b.WriteString(heavyRule + "\n\n")
	fmt.Fprintf(&b, "报告周期: %s\n", s.ReportPeriod)
	fmt.Fprintf(&b, "生成时间: %s\n\n", s.GeneratedAt.Format(timeFmt))

	section(&b, "统计概览")
	fmt.Fprintf(&b, "总会话数: %d\n", s.TotalSessions)
	fmt.Fprintf(&b, "平均分: %.1f分\n", s.AvgScore)
	if s.UnscoredSessions > 0 {
		fmt.Fprintf(&b, "未解析评分: %d (按0分计)\n", s.UnscoredSessions)
	}
	b.WriteString("\n")
	b.WriteString("分数分布:\n")
	for _, bucket := range model.ScoreBuckets {
		count := s.ScoreDistribution[bucket]
		pct := 0.0
		if s.TotalSessions > 0 {
			pct = float64(count) / float64(s.TotalSessions) * 100
		}
		fmt.Fprintf(&b, "  %s: %d (%.1f%%)\n", bucket, count, pct)
	}
	b.WriteString("\n")

	section(&b, "主要问题")
	for i, issue := range s.TopIssues {
		fmt.Fprintf(&b, "%d. %s: %d次\n", i+1, issue.Type, issue.Count)
	}
	b.WriteString("\n")

	section(&b, "改进建议")
	for i, rec := range s.Recommendations {
		fmt.Fprintf(&b, "%d. %s\n", i+1, rec)
	}
	b.WriteString("\n")
	b.WriteString(heavyRule + "\n")
	b.WriteString(center("报告结束") + "\n")
	b.WriteString(heavyRule + "\n")
	return b.String()
}

func section(b *strings.Builder, title string) {
	b.WriteString(lightRule + "\n")
	b.WriteString(center(title) + "\n")
	b.WriteString(lightRule + "\n")
}

// center 按显示宽度居中，中文字符按两列计算。
func center(title string) string {
	width := 0
	for _, r := range title {
		if r > 0x7f {
			width += 2
		} else {
			width++
		}
	}
	pad := (len(heavyRule) - width) / 2
	if pad < 0 {
		pad = 0
	}
	return strings.Repeat(" ", pad) + title
}

func orDefault(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
