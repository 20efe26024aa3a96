package review

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"cs-inspector/internal/logging"
	"cs-inspector/internal/metrics"
	"cs-inspector/internal/model"
)

// ErrReviewNotFound 表示复核 ID 不在待复核集合中（不存在或已处理）。
var ErrReviewNotFound = errors.New("review not found")

const idTimeLayout = "20060102150405"

// Journal 持久化复核记录。调用发生在 Workflow 持锁期间，实现不得回调 Workflow。
type Journal interface {
	SaveReview(ctx context.Context, record model.ReviewRecord) error
}

// Workflow 管理复核状态机：pending -> approved | rejected。
// pending 与 completed 由同一把锁保护，迁移在一个临界区内完成。
type Workflow struct {
	mu        sync.Mutex
	pending   map[string]*model.ReviewRecord
	completed map[string]*model.ReviewRecord

	journal Journal
	logger  *logging.Logger
	metrics *metrics.QualityMetrics
	now     func() time.Time
}

// NewWorkflow 创建复核工作流，journal 可为 nil。
func NewWorkflow(journal Journal, logger *logging.Logger, m *metrics.QualityMetrics) *Workflow {
	return &Workflow{
		pending:   make(map[string]*model.ReviewRecord),
		completed: make(map[string]*model.ReviewRecord),
		journal:   journal,
		logger:    logger.Component("review"),
		metrics:   m,
		now:       time.Now,
	}
}

// Restore 从持久化记录恢复内存状态，通常在启动时调用一次。
func (w *Workflow) Restore(records []model.ReviewRecord) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := range records {
		rec := records[i]
		if rec.Status == model.ReviewPending {
			w.pending[rec.ReviewID] = &rec
		} else {
			w.completed[rec.ReviewID] = &rec
		}
	}
	w.metrics.SetPending(len(w.pending))
}

// Submit 提交一份报告待复核。同一秒内同一会话重复提交时追加 _<n> 后缀，各自独立跟踪。
func (w *Workflow) Submit(ctx context.Context, report model.InspectionReport, reviewer string) (model.ReviewRecord, error) {
	now := w.now()

	w.mu.Lock()
	base := fmt.Sprintf("review_%s_%s", report.SessionID, now.Format(idTimeLayout))
	id := base
	for n := 1; w.exists(id); n++ {
		id = fmt.Sprintf("%s_%d", base, n)
	}
	rec := &model.ReviewRecord{
		ReviewID:    id,
		ReportID:    report.ID,
		SessionID:   report.SessionID,
		Report:      cloneReport(report),
		Reviewer:    reviewer,
		SubmittedAt: now,
		Status:      model.ReviewPending,
	}
	w.pending[id] = rec
	snapshot := cloneRecord(rec)
	pending := len(w.pending)
	w.persist(ctx, snapshot)
	w.mu.Unlock()

	w.metrics.SetPending(pending)
	w.metrics.ObserveTransition(string(model.ReviewPending), true)
	w.logger.Info("review submitted", "review_id", id, "session_id", report.SessionID, "reviewer", reviewer)
	return snapshot, nil
}

// Approve 批准一条待复核记录。
func (w *Workflow) Approve(ctx context.Context, reviewID, approver, comments string) (model.ReviewRecord, error) {
	return w.transition(ctx, reviewID, model.ReviewApproved, func(rec *model.ReviewRecord, at time.Time) {
		rec.ApprovedBy = approver
		rec.ApprovedAt = &at
		rec.Comments = comments
	})
}

// Reject 驳回一条待复核记录。
func (w *Workflow) Reject(ctx context.Context, reviewID, rejector string, reasons []string) (model.ReviewRecord, error) {
	return w.transition(ctx, reviewID, model.ReviewRejected, func(rec *model.ReviewRecord, at time.Time) {
		rec.RejectedBy = rejector
		rec.RejectedAt = &at
		rec.Reasons = append([]string(nil), reasons...)
	})
}

func (w *Workflow) transition(ctx context.Context, reviewID string, status model.ReviewStatus, apply func(*model.ReviewRecord, time.Time)) (model.ReviewRecord, error) {
	w.mu.Lock()
	rec, ok := w.pending[reviewID]
	if !ok {
		w.mu.Unlock()
		w.metrics.ObserveTransition(string(status), false)
		w.logger.Error("review transition failed", "review_id", reviewID, "status", status, "error", ErrReviewNotFound)
		return model.ReviewRecord{}, fmt.Errorf("%s %s: %w", status, reviewID, ErrReviewNotFound)
	}
	rec.Status = status
	apply(rec, w.now())
	delete(w.pending, reviewID)
	w.completed[reviewID] = rec
	snapshot := cloneRecord(rec)
	pending := len(w.pending)
	w.persist(ctx, snapshot)
	w.mu.Unlock()

	w.metrics.SetPending(pending)
	w.metrics.ObserveTransition(string(status), true)
	w.logger.Info("review transitioned", "review_id", reviewID, "status", status)
	return snapshot, nil
}

// Pending 返回待复核列表快照，按提交时间升序。
func (w *Workflow) Pending() []model.PendingReview {
	w.mu.Lock()
	out := make([]model.PendingReview, 0, len(w.pending))
	for id, rec := range w.pending {
		out = append(out, model.PendingReview{
			ReviewID:    id,
			SessionID:   rec.SessionID,
			Score:       rec.Report.OverallScore,
			Reviewer:    rec.Reviewer,
			SubmittedAt: rec.SubmittedAt,
		})
	}
	w.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].ReviewID < out[j].ReviewID
		}
		return out[i].SubmittedAt.Before(out[j].SubmittedAt)
	})
	return out
}

// Get 在待复核与已完成集合中查找记录。
func (w *Workflow) Get(reviewID string) (model.ReviewRecord, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if rec, ok := w.pending[reviewID]; ok {
		return cloneRecord(rec), nil
	}
	if rec, ok := w.completed[reviewID]; ok {
		return cloneRecord(rec), nil
	}
	return model.ReviewRecord{}, fmt.Errorf("get %s: %w", reviewID, ErrReviewNotFound)
}

func (w *Workflow) exists(id string) bool {
	_, p := w.pending[id]
	_, c := w.completed[id]
	return p || c
}

// persist 在持锁状态下写入 journal，保证同一记录的写入顺序与内存迁移顺序一致。
// 失败只记录日志，不回滚内存状态。
func (w *Workflow) persist(ctx context.Context, rec model.ReviewRecord) {
	if w.journal == nil {
		return
	}
	if err := w.journal.SaveReview(ctx, rec); err != nil {
		w.logger.Error("persist review failed", "review_id", rec.ReviewID, "error", err)
	}
}

func cloneReport(r model.InspectionReport) model.InspectionReport {
	r.Issues = append([]model.Issue(nil), r.Issues...)
	return r
}

// cloneRecord 返回与内部状态不共享切片与指针的副本。
func cloneRecord(rec *model.ReviewRecord) model.ReviewRecord {
	out := *rec
	out.Report = cloneReport(rec.Report)
	if rec.Reasons != nil {
		out.Reasons = append([]string(nil), rec.Reasons...)
	}
	if rec.ApprovedAt != nil {
		at := *rec.ApprovedAt
		out.ApprovedAt = &at
	}
	if rec.RejectedAt != nil {
		at := *rec.RejectedAt
		out.RejectedAt = &at
	}
	return out
}
