package report

import (
	"sort"
	"time"

	"cs-inspector/internal/model"
)

// MaxTopIssues 是汇总报告保留的问题类型数量。
const MaxTopIssues = 5

// 推荐语规则表。
const (
	RecommendAttitude        = "加强客服人员服务态度培训，提高客户满意度"
	RecommendProfessionalism = "加强产品知识培训，提高客服专业水平"
	RecommendCompliance      = "强化合规意识培训，确保服务符合规范"
	RecommendKeepUp          = "继续保持良好的服务质量"
	RecommendRegularCheck    = "定期进行质检，及时发现和解决问题"
)

const recommendThreshold = 80

// Aggregate 是纯函数：同一输入总是得到相同结果。空输入得到全零汇总。
// 未解析出总体评分的报告按 0 分计入平均分与分桶，同时单独计入 UnscoredSessions。
func Aggregate(reports []model.InspectionReport, period string, at time.Time) model.SummaryReport {
	summary := model.SummaryReport{
		ReportPeriod:      period,
		ScoreDistribution: make(map[string]int, len(model.ScoreBuckets)),
		TopIssues:         []model.IssueCount{},
		Recommendations:   []string{},
		GeneratedAt:       at,
	}
	for _, b := range model.ScoreBuckets {
		summary.ScoreDistribution[b] = 0
	}
	if len(reports) == 0 {
		return summary
	}

	var overall, attitude, professionalism, compliance float64
	for _, r := range reports {
		overall += r.OverallScore
		attitude += r.AttitudeScore
		professionalism += r.ProfessionalismScore
		compliance += r.ComplianceScore
		summary.ScoreDistribution[Bucket(r.OverallScore)]++
		if !r.Parsed.Overall {
			summary.UnscoredSessions++
		}
	}
	n := float64(len(reports))
	summary.TotalSessions = len(reports)
	summary.AvgScore = overall / n
	summary.TopIssues = topIssues(reports)

	if attitude/n < recommendThreshold {
		summary.Recommendations = append(summary.Recommendations, RecommendAttitude)
	}
	if professionalism/n < recommendThreshold {
		summary.Recommendations = append(summary.Recommendations, RecommendProfessionalism)
	}
	if compliance/n < recommendThreshold {
		summary.Recommendations = append(summary.Recommendations, RecommendCompliance)
	}
	if len(summary.Recommendations) == 0 {
		summary.Recommendations = append(summary.Recommendations, RecommendKeepUp, RecommendRegularCheck)
	}
	return summary
}

// Bucket 返回总体评分所在分桶：[90,100]、[80,90)、[60,80)、[0,60)。
func Bucket(score float64) string {
	switch {
	case score >= 90:
		return model.BucketExcellent
	case score >= 80:
		return model.BucketGood
	case score >= 60:
		return model.BucketPass
	default:
		return model.BucketFail
	}
}

// topIssues 按出现次数降序，次数相同保持首次出现顺序。
func topIssues(reports []model.InspectionReport) []model.IssueCount {
	counts := make([]model.IssueCount, 0)
	index := make(map[string]int)
	for _, r := range reports {
		for _, issue := range r.Issues {
			if i, ok := index[issue.IssueType]; ok {
				counts[i].Count++
				continue
			}
			index[issue.IssueType] = len(counts)
			counts = append(counts, model.IssueCount{Type: issue.IssueType, Count: 1})
		}
	}
	sort.SliceStable(counts, func(i, j int) bool { return counts[i].Count > counts[j].Count })
	if len(counts) > MaxTopIssues {
		counts = counts[:MaxTopIssues]
	}
	return counts
}
