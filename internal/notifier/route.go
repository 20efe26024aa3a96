package notifier

import (
	"context"
	"errors"

	"cs-inspector/internal/model"
)

// Notifier 统一通知接口。
type Notifier interface {
	Notify(ctx context.Context, reports []model.InspectionReport) error
}

// Multi 把报告依次投递给所有通知器，汇总全部错误。
type Multi []Notifier

// Notify 实现 Notifier。
func (m Multi) Notify(ctx context.Context, reports []model.InspectionReport) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, reports); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// BelowThreshold 只转发总体评分低于阈值的报告，用于不合格会话告警。
// 未解析出总体评分的报告（Parsed.Overall 为 false）分数为 0 只是缺省值，不转发。
type BelowThreshold struct {
	Threshold float64
	Next      Notifier
}

// Notify 实现 Notifier。
func (b BelowThreshold) Notify(ctx context.Context, reports []model.InspectionReport) error {
	if b.Next == nil {
		return nil
	}
	threshold := b.Threshold
	if threshold <= 0 {
		threshold = 60
	}
	filtered := make([]model.InspectionReport, 0, len(reports))
	for _, r := range reports {
		if r.Parsed.Overall && r.OverallScore < threshold {
			filtered = append(filtered, r)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	return b.Next.Notify(ctx, filtered)
}
