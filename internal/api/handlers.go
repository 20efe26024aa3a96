package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"cs-inspector/internal/inspector"
	"cs-inspector/internal/model"
	"cs-inspector/internal/parser"
	"cs-inspector/internal/report"
	"cs-inspector/internal/review"
	"cs-inspector/internal/storage"
)

type parseRequest struct {
	Content   string `json:"content"`
	Format    string `json:"format"`
	SessionID string `json:"session_id"`
}

type parseResponse struct {
	SessionID      string         `json:"session_id"`
	Participants   []string       `json:"participants"`
	Turns          []model.Turn   `json:"turns"`
	Metadata       map[string]any `json:"metadata"`
	FormatDetected model.Format   `json:"format_detected"`
}

func (s *server) parseConversation(w http.ResponseWriter, r *http.Request) {
	var req parseRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	detected := parser.DetectFormat(req.Content)
	hint := model.Format(strings.ToLower(strings.TrimSpace(req.Format)))
	switch hint {
	case model.FormatText, model.FormatJSON:
	default:
		hint = detected
		if hint == model.FormatUnknown {
			hint = model.FormatText
		}
	}

	conv := s.Parser.ParseSession(req.Content, hint, req.SessionID)
	s.Metrics.ObserveParse(string(hint), !conv.Failed())
	writeJSON(w, http.StatusOK, parseResponse{
		SessionID:      conv.SessionID,
		Participants:   conv.Participants,
		Turns:          conv.Turns,
		Metadata:       conv.Metadata,
		FormatDetected: detected,
	})
}

type inspectRequest struct {
	Conversation    json.RawMessage `json:"conversation"`
	SessionID       string          `json:"session_id"`
	CheckCompliance *bool           `json:"check_compliance"`
	Detailed        *bool           `json:"detailed"`
}

type inspectResponse struct {
	model.InspectionReport
	Passed      bool                        `json:"passed"`
	Compliance  *inspector.ComplianceResult `json:"compliance,omitempty"`
	Suggestions []string                    `json:"suggestions,omitempty"`
}

func (s *server) inspect(w http.ResponseWriter, r *http.Request) {
	var req inspectRequest
	if err := decode(r, &req); err != nil || len(req.Conversation) == 0 {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	conv := s.Parser.ParseSession(string(req.Conversation), model.FormatJSON, req.SessionID)
	s.Metrics.ObserveParse(string(model.FormatJSON), !conv.Failed())
	if conv.Failed() {
		msg, _ := conv.Metadata[model.MetaError].(string)
		writeError(w, http.StatusBadRequest, "invalid conversation: "+msg)
		return
	}

	ctx := r.Context()
	rep := s.Inspector.Inspect(ctx, conv)
	if err := s.Store.SaveReport(ctx, &rep); err != nil {
		s.logger.Error("save report failed", "report_id", rep.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "save report failed")
		return
	}

	resp := inspectResponse{InspectionReport: rep, Passed: rep.Passed()}
	if req.CheckCompliance == nil || *req.CheckCompliance {
		res := s.Inspector.CheckCompliance(ctx, conv)
		resp.Compliance = &res
	}
	if (req.Detailed == nil || *req.Detailed) && !rep.Degraded() {
		resp.Suggestions = s.Inspector.SuggestImprovements(ctx, rep.Issues)
	}
	writeJSON(w, http.StatusOK, resp)
}

type generateReportRequest struct {
	ReportID   string `json:"report_id"`
	Format     string `json:"format"`
	ReportType string `json:"report_type"`
}

func (s *server) generateReport(w http.ResponseWriter, r *http.Request) {
	var req generateReportRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.Format == "" {
		req.Format = report.FormatJSON
	}
	if req.ReportType == "" {
		req.ReportType = report.TypeDetailed
	}

	ctx := r.Context()
	var (
		exp report.Export
		err error
	)
	switch req.ReportType {
	case report.TypeSummary:
		var all []model.InspectionReport
		all, err = s.Store.ListReports(ctx, storage.ReportQuery{})
		if err != nil {
			s.logger.Error("list reports failed", "error", err)
			writeError(w, http.StatusInternalServerError, "list reports failed")
			return
		}
		id := req.ReportID
		if id == "" {
			id = report.TypeSummary
		}
		exp, err = s.Reports.ExportSummary(id, all, req.Format)
	case report.TypeDetailed:
		if req.ReportID == "" {
			writeError(w, http.StatusBadRequest, "report_id is required")
			return
		}
		var rep *model.InspectionReport
		rep, err = s.Store.GetReport(ctx, req.ReportID)
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "report not found")
			return
		}
		if err != nil {
			s.logger.Error("get report failed", "report_id", req.ReportID, "error", err)
			writeError(w, http.StatusInternalServerError, "get report failed")
			return
		}
		exp, err = s.Reports.Export(*rep, req.Format)
	default:
		writeError(w, http.StatusBadRequest, "unsupported report_type")
		return
	}

	if errors.Is(err, report.ErrUnsupportedFormat) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

func (s *server) getReport(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "reportID"))
	rep, err := s.Store.GetReport(r.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "report not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "get report failed")
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

type submitReviewRequest struct {
	ReportID string `json:"report_id"`
	Reviewer string `json:"reviewer"`
	Comments string `json:"comments"`
}

type submitReviewResponse struct {
	ReviewID    string             `json:"review_id"`
	Status      model.ReviewStatus `json:"status"`
	SubmittedAt time.Time          `json:"submitted_at"`
}

func (s *server) submitReview(w http.ResponseWriter, r *http.Request) {
	var req submitReviewRequest
	if err := decode(r, &req); err != nil || req.ReportID == "" || req.Reviewer == "" {
		writeError(w, http.StatusBadRequest, "report_id and reviewer are required")
		return
	}

	rep, err := s.Store.GetReport(r.Context(), req.ReportID)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "report not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "get report failed")
		return
	}

	rec, err := s.Reviews.Submit(r.Context(), *rep, req.Reviewer)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, submitReviewResponse{ReviewID: rec.ReviewID, Status: rec.Status, SubmittedAt: rec.SubmittedAt})
}

type transitionRequest struct {
	ReviewID string   `json:"review_id"`
	Approver string   `json:"approver"`
	Comments string   `json:"comments"`
	Reasons  []string `json:"reasons"`
}

type transitionResponse struct {
	ReviewID  string             `json:"review_id"`
	Status    model.ReviewStatus `json:"status"`
	UpdatedAt time.Time          `json:"updated_at"`
}

func (s *server) approve(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, func(req transitionRequest) (model.ReviewRecord, error) {
		return s.Reviews.Approve(r.Context(), req.ReviewID, req.Approver, req.Comments)
	})
}

func (s *server) reject(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, func(req transitionRequest) (model.ReviewRecord, error) {
		return s.Reviews.Reject(r.Context(), req.ReviewID, req.Approver, req.Reasons)
	})
}

func (s *server) transition(w http.ResponseWriter, r *http.Request, apply func(transitionRequest) (model.ReviewRecord, error)) {
	var req transitionRequest
	if err := decode(r, &req); err != nil || req.ReviewID == "" || req.Approver == "" {
		writeError(w, http.StatusBadRequest, "review_id and approver are required")
		return
	}
	rec, err := apply(req)
	if errors.Is(err, review.ErrReviewNotFound) {
		writeError(w, http.StatusNotFound, "review not found or already processed")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, transitionResponse{ReviewID: rec.ReviewID, Status: rec.Status, UpdatedAt: rec.UpdatedAt()})
}

func (s *server) pendingReviews(w http.ResponseWriter, r *http.Request) {
	reviews := s.Reviews.Pending()
	writeJSON(w, http.StatusOK, map[string]any{"count": len(reviews), "reviews": reviews})
}

func (s *server) getReview(w http.ResponseWriter, r *http.Request) {
	rec, err := s.Reviews.Get(chi.URLParam(r, "reviewID"))
	if errors.Is(err, review.ErrReviewNotFound) {
		writeError(w, http.StatusNotFound, "review not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *server) run(w http.ResponseWriter, r *http.Request) {
	if s.Runner == nil {
		writeError(w, http.StatusServiceUnavailable, "pipeline disabled")
		return
	}
	res, err := s.Runner.RunOnce(r.Context())
	if err != nil {
		s.logger.Error("manual run failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ingested":     res.Ingested,
		"inspected":    res.Inspected,
		"parse_failed": res.ParseFailed,
		"degraded":     res.Degraded,
		"reviews":      res.Reviews,
		"skipped":      res.Skipped,
	})
}
