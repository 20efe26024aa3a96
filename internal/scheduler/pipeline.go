package scheduler

import (
	"context"
	"fmt"

	"cs-inspector/internal/ingest"
	"cs-inspector/internal/logging"
	"cs-inspector/internal/model"
	"cs-inspector/internal/storage"

	"gorm.io/datatypes"
)

// RunResult 汇总一次流水线运行的计数。
type RunResult struct {
	Ingested    int
	Inspected   int
	ParseFailed int
	Degraded    int
	Reviews     int
	Skipped     bool
}

// Store 抽象存储接口，便于测试替换。
type Store interface {
	UpsertTranscripts(ctx context.Context, items []model.Transcript) (storage.UpsertResult, error)
	ListTranscripts(ctx context.Context, query storage.TranscriptQuery) ([]model.Transcript, error)
	UpdateTranscriptStatus(ctx context.Context, id string, update storage.TranscriptStatusUpdate) error
	SaveReport(ctx context.Context, report *model.InspectionReport) error
	ListReports(ctx context.Context, query storage.ReportQuery) ([]model.InspectionReport, error)
}

// Parser 把原始对话解析为会话。
type Parser interface {
	Parse(raw string, hint model.Format) *model.Conversation
}

// Inspector 对会话做质检。
type Inspector interface {
	Inspect(ctx context.Context, conv *model.Conversation) model.InspectionReport
}

// Reviewer 接收自动提交的复核。
type Reviewer interface {
	Submit(ctx context.Context, report model.InspectionReport, reviewer string) (model.ReviewRecord, error)
}

// Notifier 用于发送新增报告通知。
type Notifier interface {
	Notify(ctx context.Context, reports []model.InspectionReport) error
}

// Reporter 负责报告落盘。
type Reporter interface {
	SaveDetailed(r model.InspectionReport) (string, error)
	SaveSummary(reports []model.InspectionReport) (model.SummaryReport, string, error)
}

// Pipeline 串联采集、解析、质检、存储、复核提交与通知。
type Pipeline struct {
	Fetcher   ingest.Fetcher
	Store     Store
	Parser    Parser
	Inspector Inspector
	Reviewer  Reviewer
	Notifier  Notifier
	Reporter  Reporter

	BatchSize    int
	AutoReviewer string
	Logger       *logging.Logger
}

// RunOnce 执行一次完整流水线。单个对话的解析失败或质检降级只影响该对话。
func (p *Pipeline) RunOnce(ctx context.Context) (RunResult, error) {
	var res RunResult
	if p.Store == nil || p.Parser == nil || p.Inspector == nil {
		return res, fmt.Errorf("pipeline missing dependencies")
	}
	logger := p.Logger.Component("pipeline")

	if p.Fetcher != nil {
		items, err := p.Fetcher.Fetch(ctx)
		if err != nil {
			return res, fmt.Errorf("fetch transcripts: %w", err)
		}
		up, err := p.Store.UpsertTranscripts(ctx, items)
		if err != nil {
			return res, fmt.Errorf("upsert transcripts: %w", err)
		}
		res.Ingested = up.Created
	}

	batch := p.BatchSize
	if batch <= 0 {
		batch = 20
	}
	pending, err := p.Store.ListTranscripts(ctx, storage.TranscriptQuery{Status: model.TranscriptStatusPending, Limit: batch})
	if err != nil {
		return res, fmt.Errorf("list transcripts: %w", err)
	}

	reports := make([]model.InspectionReport, 0, len(pending))
	for _, item := range pending {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		conv := p.Parser.Parse(item.Content, item.FormatHint)
		if conv.Failed() {
			res.ParseFailed++
			reason := "parse failed"
			if conv != nil {
				if msg, ok := conv.Metadata[model.MetaError].(string); ok && msg != "" {
					reason = msg
				}
			}
			logger.Warn("transcript parse failed", "transcript_id", item.ID, "name", item.Name, "error", reason)
			if err := p.Store.UpdateTranscriptStatus(ctx, item.ID, storage.TranscriptStatusUpdate{Status: model.TranscriptStatusFailed, Reason: reason}); err != nil {
				return res, fmt.Errorf("update transcript status: %w", err)
			}
			continue
		}

		report := p.Inspector.Inspect(ctx, conv)
		if err := p.Store.SaveReport(ctx, &report); err != nil {
			return res, fmt.Errorf("save report: %w", err)
		}
		res.Inspected++

		update := storage.TranscriptStatusUpdate{
			Status:   model.TranscriptStatusProcessed,
			ReportID: report.ID,
			Details:  datatypes.JSONMap{"session_id": conv.SessionID, "turns": len(conv.Turns)},
		}
		if report.Degraded() {
			res.Degraded++
			update.Status = model.TranscriptStatusFailed
			update.Reason = report.Summary
		} else {
			reports = append(reports, report)
			if p.Reporter != nil {
				if _, err := p.Reporter.SaveDetailed(report); err != nil {
					logger.Error("save detailed report failed", "report_id", report.ID, "error", err)
				}
			}
			if p.Reviewer != nil && p.AutoReviewer != "" {
				if _, err := p.Reviewer.Submit(ctx, report, p.AutoReviewer); err != nil {
					logger.Error("auto submit review failed", "report_id", report.ID, "error", err)
				} else {
					res.Reviews++
				}
			}
		}
		if err := p.Store.UpdateTranscriptStatus(ctx, item.ID, update); err != nil {
			return res, fmt.Errorf("update transcript status: %w", err)
		}
	}

	if p.Notifier != nil && len(reports) > 0 {
		if err := p.Notifier.Notify(ctx, reports); err != nil {
			logger.Error("notify new reports failed", "reports", len(reports), "error", err)
		}
	}

	if p.Reporter != nil && res.Inspected > 0 {
		all, err := p.Store.ListReports(ctx, storage.ReportQuery{})
		if err != nil {
			return res, fmt.Errorf("list reports: %w", err)
		}
		if _, _, err := p.Reporter.SaveSummary(all); err != nil {
			logger.Error("save summary report failed", "error", err)
		}
	}

	return res, nil
}
