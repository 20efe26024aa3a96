package model

import "time"

// ReviewStatus 表示复核状态，approved / rejected 为终态。
type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "pending"
	ReviewApproved ReviewStatus = "approved"
	ReviewRejected ReviewStatus = "rejected"
)

// ReviewRecord 是一次复核提交。
type ReviewRecord struct {
	ReviewID    string           `gorm:"primaryKey" json:"review_id"`
	ReportID    string           `gorm:"index" json:"report_id"`
	SessionID   string           `gorm:"index" json:"session_id"`
	Report      InspectionReport `gorm:"serializer:json" json:"report"`
	Reviewer    string           `json:"reviewer"`
	SubmittedAt time.Time        `json:"submitted_at"`
	Status      ReviewStatus     `gorm:"index" json:"status"`

	ApprovedBy string     `json:"approved_by,omitempty"`
	ApprovedAt *time.Time `json:"approved_at,omitempty"`
	Comments   string     `json:"comments,omitempty"`

	RejectedBy string     `json:"rejected_by,omitempty"`
	RejectedAt *time.Time `json:"rejected_at,omitempty"`
	Reasons    []string   `gorm:"serializer:json" json:"reasons,omitempty"`
}

// UpdatedAt 返回最近一次状态变更时间。
func (r ReviewRecord) UpdatedAt() time.Time {
	switch {
	case r.ApprovedAt != nil:
		return *r.ApprovedAt
	case r.RejectedAt != nil:
		return *r.RejectedAt
	default:
		return r.SubmittedAt
	}
}

// PendingReview 是待复核列表的只读投影。
type PendingReview struct {
	ReviewID    string    `json:"review_id"`
	SessionID   string    `json:"session_id"`
	Score       float64   `json:"score"`
	Reviewer    string    `json:"reviewer"`
	SubmittedAt time.Time `json:"submitted_at"`
}
