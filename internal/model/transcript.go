package model

import (
	"time"

	"gorm.io/datatypes"
)

// TranscriptStatus 表示原始对话记录的处理状态。
type TranscriptStatus string

const (
	TranscriptStatusPending   TranscriptStatus = "pending"
	TranscriptStatusProcessed TranscriptStatus = "processed"
	TranscriptStatusFailed    TranscriptStatus = "failed"
)

// Transcript 表示一份待质检的原始对话记录
// - Source/Name: 来源目录与文件名，联合去重
// - FormatHint: text / json，决定解析分支
// - ReportID: 处理成功后关联的质检报告
// - CreatedAt/UpdatedAt: 由 GORM 自动维护
type Transcript struct {
	ID         string            `gorm:"primaryKey" json:"id"`
	Source     string            `gorm:"uniqueIndex:idx_transcript_source_name" json:"source"`
	Name       string            `gorm:"uniqueIndex:idx_transcript_source_name" json:"name"`
	Content    string            `json:"content"`
	FormatHint Format            `json:"format_hint"`
	Status     TranscriptStatus  `gorm:"index" json:"status"`
	Reason     string            `json:"reason"`
	ReportID   string            `json:"report_id"`
	Attributes datatypes.JSONMap `json:"attributes"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}
