package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cs-inspector/internal/inspector"
	"cs-inspector/internal/logging"
	"cs-inspector/internal/metrics"
	"cs-inspector/internal/model"
	"cs-inspector/internal/parser"
	"cs-inspector/internal/report"
	"cs-inspector/internal/scheduler"
	"cs-inspector/internal/storage"
)

// BasePath 是质检接口的路由前缀。
const BasePath = "/quality-inspector"

// Store 抽象报告存储接口。
type Store interface {
	SaveReport(ctx context.Context, report *model.InspectionReport) error
	GetReport(ctx context.Context, id string) (*model.InspectionReport, error)
	ListReports(ctx context.Context, query storage.ReportQuery) ([]model.InspectionReport, error)
}

// Inspector 抽象质检能力。
type Inspector interface {
	Inspect(ctx context.Context, conv *model.Conversation) model.InspectionReport
	CheckCompliance(ctx context.Context, conv *model.Conversation) inspector.ComplianceResult
	SuggestImprovements(ctx context.Context, issues []model.Issue) []string
}

// Reviews 抽象复核工作流。
type Reviews interface {
	Submit(ctx context.Context, report model.InspectionReport, reviewer string) (model.ReviewRecord, error)
	Approve(ctx context.Context, reviewID, approver, comments string) (model.ReviewRecord, error)
	Reject(ctx context.Context, reviewID, rejector string, reasons []string) (model.ReviewRecord, error)
	Pending() []model.PendingReview
	Get(reviewID string) (model.ReviewRecord, error)
}

// Runner 抽象手动触发的流水线。
type Runner interface {
	RunOnce(ctx context.Context) (scheduler.RunResult, error)
}

// Deps 汇总 HTTP 层依赖。Runner 与 Gatherer 可为空。
type Deps struct {
	Parser    *parser.Parser
	Inspector Inspector
	Reports   *report.Generator
	Store     Store
	Reviews   Reviews
	Runner    Runner
	Metrics   *metrics.QualityMetrics
	Gatherer  prometheus.Gatherer
	Logger    *logging.Logger
}

type server struct {
	Deps
	logger *logging.Logger
}

// NewHandler 构造 HTTP 路由。
func NewHandler(deps Deps) http.Handler {
	s := &server{Deps: deps, logger: deps.Logger.Component("api")}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(2 * time.Minute))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route(BasePath, func(r chi.Router) {
		r.Post("/parse-conversation", s.parseConversation)
		r.Post("/inspect", s.inspect)
		r.Post("/generate-report", s.generateReport)
		r.Get("/reports/{reportID}", s.getReport)
		r.Post("/submit-review", s.submitReview)
		r.Post("/approve", s.approve)
		r.Post("/reject", s.reject)
		r.Get("/pending-reviews", s.pendingReviews)
		r.Get("/reviews/{reviewID}", s.getReview)
		r.Post("/run", s.run)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	return dec.Decode(v)
}
