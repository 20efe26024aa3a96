package model

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Severity 表示问题严重程度：low < medium < high < critical。
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank 返回严重程度的序数，未知取值为 0。
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// MaxIssueDescription 是问题描述的最大字符数。
const MaxIssueDescription = 200

// Issue 表示报告中的一个质量问题，只属于一份报告。
type Issue struct {
	IssueType   string    `json:"issue_type"`
	Description string    `json:"description"`
	Severity    Severity  `json:"severity"`
	Location    string    `json:"location,omitempty"`
	Suggestion  string    `json:"suggestion,omitempty"`
	Evidence    string    `json:"evidence,omitempty"`
	DetectedAt  time.Time `json:"detected_at"`
}

// TruncateDescription 按字符截断描述。
func TruncateDescription(s string) string {
	if utf8.RuneCountInString(s) <= MaxIssueDescription {
		return s
	}
	return string([]rune(s)[:MaxIssueDescription])
}

// ScoreFlags 记录各项评分是否真正从模型输出中解析到。
// 未解析的评分保持 0，调用方应据此区分“未解析”与“真实 0 分”。
type ScoreFlags struct {
	Overall         bool `json:"overall"`
	Attitude        bool `json:"attitude"`
	Professionalism bool `json:"professionalism"`
	Compliance      bool `json:"compliance"`
}

// InspectionReport 是单个会话的质检结果。
type InspectionReport struct {
	ID                   string     `gorm:"primaryKey" json:"report_id"`
	SessionID            string     `gorm:"index" json:"session_id"`
	OverallScore         float64    `json:"overall_score"`
	AttitudeScore        float64    `json:"attitude_score"`
	ProfessionalismScore float64    `json:"professionalism_score"`
	ComplianceScore      float64    `json:"compliance_score"`
	Parsed               ScoreFlags `gorm:"serializer:json" json:"parsed"`
	Issues               []Issue    `gorm:"serializer:json" json:"issues"`
	Summary              string     `json:"summary"`
	GeneratedAt          time.Time  `json:"generated_at"`
}

// InspectionFailedPrefix 是质检失败报告 summary 的固定前缀。
const InspectionFailedPrefix = "质检失败: "

// Degraded 判断报告是否因模型调用失败而只含零分。
func (r InspectionReport) Degraded() bool {
	return strings.HasPrefix(r.Summary, InspectionFailedPrefix)
}

// Passed 以 60 分为及格线。
func (r InspectionReport) Passed() bool {
	return r.OverallScore >= 60
}

// IssueCount 是某类问题的出现次数。
type IssueCount struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// 分数分布的固定分桶。
const (
	BucketExcellent = "≥90"
	BucketGood      = "80-89"
	BucketPass      = "60-79"
	BucketFail      = "<60"
)

// ScoreBuckets 按展示顺序列出分桶。
var ScoreBuckets = []string{BucketExcellent, BucketGood, BucketPass, BucketFail}

// SummaryReport 是多个会话的汇总。
type SummaryReport struct {
	ReportPeriod      string         `json:"report_period"`
	TotalSessions     int            `json:"total_sessions"`
	UnscoredSessions  int            `json:"unscored_sessions"`
	AvgScore          float64        `json:"avg_score"`
	ScoreDistribution map[string]int `json:"score_distribution"`
	TopIssues         []IssueCount   `json:"top_issues"`
	Recommendations   []string       `json:"recommendations"`
	GeneratedAt       time.Time      `json:"generated_at"`
}
