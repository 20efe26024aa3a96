package notifier

import (
	"context"

	"cs-inspector/internal/logging"
	"cs-inspector/internal/model"
)

// LogNotifier 仅把新增报告写入日志，适合开发阶段使用。
type LogNotifier struct {
	logger *logging.Logger
}

// NewLogNotifier 创建日志通知器，未提供 logger 时使用默认日志器。
func NewLogNotifier(logger *logging.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.Component("notifier")}
}

// Notify 逐条记录新增报告。
func (n LogNotifier) Notify(ctx context.Context, reports []model.InspectionReport) error {
	for _, r := range reports {
		n.logger.Info("new inspection report",
			"report_id", r.ID,
			"session_id", r.SessionID,
			"overall_score", r.OverallScore,
			"passed", r.Passed(),
			"issues", len(r.Issues))
	}
	return nil
}
