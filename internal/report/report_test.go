package report

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"cs-inspector/internal/logging"
	"cs-inspector/internal/model"
)

var fixedNow = time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC)

func newTestGenerator(t *testing.T) *Generator {
	t.Helper()
	g := New(Config{OutputDir: t.TempDir()}, logging.Discard(), nil)
	g.now = func() time.Time { return fixedNow }
	return g
}

func sampleReport() model.InspectionReport {
	return model.InspectionReport{
		ID:                   "rpt-1",
		SessionID:            "sess-1",
		OverallScore:         55,
		AttitudeScore:        60,
		ProfessionalismScore: 70,
		ComplianceScore:      90,
		Issues: []model.Issue{
			{IssueType: "服务问题", Description: "回复<慢>", Severity: model.SeverityHigh, Suggestion: "提速"},
			{IssueType: "服务问题", Description: "语气生硬", Severity: model.SeverityLow},
		},
		Summary:     "需改进",
		GeneratedAt: fixedNow,
	}
}

func TestRenderJSONRoundTrip(t *testing.T) {
	t.Parallel()

	g := newTestGenerator(t)
	r := sampleReport()
	out, err := g.Render(r, "json")
	if err != nil {
		t.Fatalf("Render json error: %v", err)
	}
	if !strings.Contains(string(out), "需改进") || !strings.Contains(string(out), "回复<慢>") {
		t.Fatalf("expected unescaped utf-8 output, got %s", out)
	}

	var decoded model.InspectionReport
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(decoded, r) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", decoded, r)
	}
}

func TestRenderHTML(t *testing.T) {
	t.Parallel()

	g := newTestGenerator(t)
	out, err := g.Render(sampleReport(), "HTML")
	if err != nil {
		t.Fatalf("Render html error: %v", err)
	}
	html := string(out)
	if !strings.Contains(html, `class="score fail"`) {
		t.Fatalf("expected fail class for 55, got %s", html)
	}
	if strings.Count(html, `<div class="issue `) != 2 || !strings.Contains(html, `<div class="issue high">`) {
		t.Fatalf("expected one div per issue with severity class, got %s", html)
	}
	if !strings.Contains(html, "回复&lt;慢&gt;") {
		t.Fatalf("expected description to be escaped, got %s", html)
	}

	passing := sampleReport()
	passing.OverallScore = 60
	out, _ = g.Render(passing, "html")
	if !strings.Contains(string(out), `class="score pass"`) {
		t.Fatalf("expected pass class at 60")
	}
}

func TestRenderText(t *testing.T) {
	t.Parallel()

	out, err := newTestGenerator(t).Render(sampleReport(), "text")
	if err != nil {
		t.Fatalf("Render text error: %v", err)
	}
	text := string(out)
	for _, want := range []string{"会话ID: sess-1", "总体评分: 55.0分", "问题1: [high] 服务问题", "位置: 未指定", "建议: 无", "需改进", "生成时间: 2024-04-01 10:00:00"} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in text report:\n%s", want, text)
		}
	}
}

func TestRenderUnsupportedFormat(t *testing.T) {
	t.Parallel()

	g := newTestGenerator(t)
	if _, err := g.Render(sampleReport(), "pdf"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
	if _, err := g.Export(sampleReport(), "xml"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat from export, got %v", err)
	}
	if _, err := g.ExportSummary("s", nil, "html"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat for html summary, got %v", err)
	}
}

func TestExportSize(t *testing.T) {
	t.Parallel()

	exp, err := newTestGenerator(t).Export(sampleReport(), "text")
	if err != nil {
		t.Fatalf("Export error: %v", err)
	}
	if exp.ReportID != "rpt-1" || exp.Format != "text" {
		t.Fatalf("unexpected export header %+v", exp)
	}
	if exp.Size != len([]byte(exp.Content)) || exp.Size <= len([]rune(exp.Content)) {
		t.Fatalf("expected size in bytes, got %d for %d runes", exp.Size, len([]rune(exp.Content)))
	}
}

func TestAggregateBucketsOnePerBucket(t *testing.T) {
	t.Parallel()

	reports := []model.InspectionReport{
		{OverallScore: 95, AttitudeScore: 90, ProfessionalismScore: 90, ComplianceScore: 90},
		{OverallScore: 82, AttitudeScore: 90, ProfessionalismScore: 90, ComplianceScore: 90},
		{OverallScore: 65, AttitudeScore: 90, ProfessionalismScore: 90, ComplianceScore: 90},
		{OverallScore: 40, AttitudeScore: 90, ProfessionalismScore: 90, ComplianceScore: 90},
	}
	s := Aggregate(reports, "最近7天", fixedNow)

	if s.TotalSessions != 4 || s.AvgScore != 70.5 {
		t.Fatalf("unexpected totals %d/%v", s.TotalSessions, s.AvgScore)
	}
	for _, b := range model.ScoreBuckets {
		if s.ScoreDistribution[b] != 1 {
			t.Fatalf("expected 1 in bucket %s, got %v", b, s.ScoreDistribution)
		}
	}
	if !reflect.DeepEqual(s.Recommendations, []string{RecommendKeepUp, RecommendRegularCheck}) {
		t.Fatalf("expected keep-up recommendations, got %v", s.Recommendations)
	}
}

func TestAggregateCountsUnscoredSessions(t *testing.T) {
	t.Parallel()

	reports := []model.InspectionReport{
		{OverallScore: 80, Parsed: model.ScoreFlags{Overall: true}},
		{OverallScore: 0},
	}
	s := Aggregate(reports, "p", fixedNow)
	if s.UnscoredSessions != 1 || s.TotalSessions != 2 {
		t.Fatalf("expected one unscored of two sessions, got %+v", s)
	}
	if s.ScoreDistribution[model.BucketFail] != 1 || s.AvgScore != 40 {
		t.Fatalf("expected unscored report counted as 0, got %+v", s)
	}
	if text := renderSummaryText(s); !strings.Contains(text, "未解析评分: 1") {
		t.Fatalf("expected unscored line in text summary, got %q", text)
	}
}

func TestAggregateBoundaries(t *testing.T) {
	t.Parallel()

	cases := map[float64]string{
		100: model.BucketExcellent, 90: model.BucketExcellent, 89.9: model.BucketGood,
		80: model.BucketGood, 79.9: model.BucketPass, 60: model.BucketPass, 59.9: model.BucketFail, 0: model.BucketFail,
	}
	for score, want := range cases {
		if got := Bucket(score); got != want {
			t.Fatalf("Bucket(%v) = %s, want %s", score, got, want)
		}
	}
}

func TestAggregateTopIssuesAndRecommendations(t *testing.T) {
	t.Parallel()

	issue := func(kind string) model.Issue { return model.Issue{IssueType: kind} }
	reports := []model.InspectionReport{
		{OverallScore: 70, AttitudeScore: 70, ProfessionalismScore: 85, ComplianceScore: 50,
			Issues: []model.Issue{issue("b"), issue("a"), issue("c")}},
		{OverallScore: 70, AttitudeScore: 70, ProfessionalismScore: 85, ComplianceScore: 50,
			Issues: []model.Issue{issue("a"), issue("d"), issue("e"), issue("f"), issue("g")}},
	}
	s := Aggregate(reports, "p", fixedNow)

	var got []string
	for _, ic := range s.TopIssues {
		got = append(got, ic.Type)
	}
	if strings.Join(got, ",") != "a,b,c,d,e" {
		t.Fatalf("expected stable top-5 ordering, got %v", got)
	}
	if s.TopIssues[0].Count != 2 {
		t.Fatalf("expected a counted twice, got %+v", s.TopIssues[0])
	}
	if !reflect.DeepEqual(s.Recommendations, []string{RecommendAttitude, RecommendCompliance}) {
		t.Fatalf("unexpected recommendations %v", s.Recommendations)
	}
}

func TestAggregateEmptyAndIdempotent(t *testing.T) {
	t.Parallel()

	empty := Aggregate(nil, "p", fixedNow)
	if empty.TotalSessions != 0 || empty.AvgScore != 0 || len(empty.TopIssues) != 0 || len(empty.Recommendations) != 0 {
		t.Fatalf("expected zeroed summary, got %+v", empty)
	}
	if len(empty.ScoreDistribution) != 4 {
		t.Fatalf("expected all buckets present, got %v", empty.ScoreDistribution)
	}

	reports := []model.InspectionReport{sampleReport(), {OverallScore: 91, Issues: []model.Issue{{IssueType: "x"}}}}
	first := Aggregate(reports, "p", fixedNow)
	second := Aggregate(reports, "p", fixedNow)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("aggregate not idempotent:\n%+v\n%+v", first, second)
	}
}

func TestSaveSummaryWritesFile(t *testing.T) {
	t.Parallel()

	g := newTestGenerator(t)
	summary, path, err := g.SaveSummary([]model.InspectionReport{sampleReport()})
	if err != nil {
		t.Fatalf("SaveSummary error: %v", err)
	}
	if filepath.Base(path) != SummaryFileName || summary.TotalSessions != 1 {
		t.Fatalf("unexpected summary %s %+v", path, summary)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read summary: %v", err)
	}
	if !strings.Contains(string(data), "<60: 1 (100.0%)") || !strings.Contains(string(data), "1. 服务问题: 2次") {
		t.Fatalf("unexpected summary text:\n%s", data)
	}

	detailed, err := g.SaveDetailed(sampleReport())
	if err != nil {
		t.Fatalf("SaveDetailed error: %v", err)
	}
	if filepath.Base(detailed) != "report_sess-1.txt" {
		t.Fatalf("unexpected detailed path %s", detailed)
	}
}
