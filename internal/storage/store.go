package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cs-inspector/internal/model"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store 封装 SQLite 数据库访问，负责原始对话、质检报告与复核记录的读写。
type Store struct {
	db *gorm.DB
}

// UpsertResult 表示原始对话写入结果。
type UpsertResult struct {
	Created        int
	NewTranscripts []model.Transcript
}

// TranscriptQuery 描述原始对话筛选条件。
type TranscriptQuery struct {
	Status model.TranscriptStatus
	Limit  int
}

// TranscriptStatusUpdate 用于更新原始对话处理状态。
type TranscriptStatusUpdate struct {
	Status   model.TranscriptStatus
	Reason   string
	ReportID string
	Details  datatypes.JSONMap
}

// ReportQuery 提供报告查询过滤条件。
type ReportQuery struct {
	SessionID string
	Since     time.Time
	Limit     int
}

// NewStore 创建 Store 并自动迁移数据表。
func NewStore(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.AutoMigrate(&model.Transcript{}, &model.InspectionReport{}, &model.ReviewRecord{}); err != nil {
		return nil, fmt.Errorf("auto migrate models: %w", err)
	}

	return &Store{db: db}, nil
}

// Close 关闭底层数据库连接。
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get sql DB: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("close db: %w", err)
	}
	return nil
}

// UpsertTranscripts 写入原始对话，按 source + name 去重；已存在的记录只更新内容，不重置状态。
func (s *Store) UpsertTranscripts(ctx context.Context, items []model.Transcript) (UpsertResult, error) {
	res := UpsertResult{}
	if len(items) == 0 {
		return res, nil
	}

	bySource := make(map[string][]string)
	for i := range items {
		if items[i].Status == "" {
			items[i].Status = model.TranscriptStatusPending
		}
		bySource[items[i].Source] = append(bySource[items[i].Source], items[i].Name)
	}

	existing := make(map[string]struct{})
	for source, names := range bySource {
		var rows []string
		if err := s.db.WithContext(ctx).Model(&model.Transcript{}).
			Where("source = ? AND name IN ?", source, names).
			Pluck("name", &rows).Error; err != nil {
			return res, fmt.Errorf("query existing transcripts: %w", err)
		}
		for _, name := range rows {
			existing[source+"|"+name] = struct{}{}
		}
	}

	for i := range items {
		key := items[i].Source + "|" + items[i].Name
		if _, ok := existing[key]; !ok {
			res.Created++
			res.NewTranscripts = append(res.NewTranscripts, items[i])
			existing[key] = struct{}{}
		}
	}

	tx := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "source"}, {Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"content", "format_hint", "attributes", "updated_at"}),
	}).Create(&items)
	if tx.Error != nil {
		return res, fmt.Errorf("upsert transcripts: %w", tx.Error)
	}

	return res, nil
}

// ListTranscripts 返回指定状态的原始对话，默认 pending，按创建时间升序。
func (s *Store) ListTranscripts(ctx context.Context, query TranscriptQuery) ([]model.Transcript, error) {
	var items []model.Transcript
	status := query.Status
	if status == "" {
		status = model.TranscriptStatusPending
	}
	limit := query.Limit
	if limit <= 0 {
		limit = 50
	}
	if err := s.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at ASC").
		Limit(limit).
		Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list transcripts: %w", err)
	}
	return items, nil
}

// UpdateTranscriptStatus 更新原始对话状态及关联报告。
func (s *Store) UpdateTranscriptStatus(ctx context.Context, id string, update TranscriptStatusUpdate) error {
	if update.Status == "" {
		update.Status = model.TranscriptStatusProcessed
	}
	values := map[string]any{
		"status":    update.Status,
		"reason":    update.Reason,
		"report_id": update.ReportID,
	}
	if update.Details != nil {
		values["attributes"] = update.Details
	}
	tx := s.db.WithContext(ctx).Model(&model.Transcript{}).Where("id = ?", id).Updates(values)
	if tx.Error != nil {
		return fmt.Errorf("update transcript status: %w", tx.Error)
	}
	if tx.RowsAffected == 0 {
		return fmt.Errorf("update transcript status: id %s not found", id)
	}
	return nil
}

// SaveReport 保存质检报告，主键冲突时整体覆盖。
func (s *Store) SaveReport(ctx context.Context, report *model.InspectionReport) error {
	if report.ID == "" {
		return errors.New("save report: empty report id")
	}
	tx := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(report)
	if tx.Error != nil {
		return fmt.Errorf("save report: %w", tx.Error)
	}
	return nil
}

// GetReport 根据报告 ID 获取报告，不存在时返回 sql.ErrNoRows。
func (s *Store) GetReport(ctx context.Context, id string) (*model.InspectionReport, error) {
	var report model.InspectionReport
	if err := s.db.WithContext(ctx).First(&report, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("get report: %w", err)
	}
	return &report, nil
}

// ListReports 返回按生成时间升序的报告列表。
func (s *Store) ListReports(ctx context.Context, query ReportQuery) ([]model.InspectionReport, error) {
	var reports []model.InspectionReport
	db := s.db.WithContext(ctx).Model(&model.InspectionReport{}).Order("generated_at ASC")
	if query.SessionID != "" {
		db = db.Where("session_id = ?", query.SessionID)
	}
	if !query.Since.IsZero() {
		db = db.Where("generated_at >= ?", query.Since)
	}
	if query.Limit > 0 {
		db = db.Limit(query.Limit)
	}
	if err := db.Find(&reports).Error; err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	return reports, nil
}

// SaveReview 持久化复核记录的最新状态。已是终态的记录不会被 pending 覆盖。
func (s *Store) SaveReview(ctx context.Context, record model.ReviewRecord) error {
	conflict := clause.OnConflict{UpdateAll: true}
	if record.Status == model.ReviewPending {
		conflict.Where = clause.Where{Exprs: []clause.Expression{
			clause.Eq{Column: clause.Column{Table: "review_records", Name: "status"}, Value: model.ReviewPending},
		}}
	}
	tx := s.db.WithContext(ctx).Clauses(conflict).Create(&record)
	if tx.Error != nil {
		return fmt.Errorf("save review: %w", tx.Error)
	}
	return nil
}

// GetReview 根据复核 ID 获取记录，不存在时返回 sql.ErrNoRows。
func (s *Store) GetReview(ctx context.Context, id string) (*model.ReviewRecord, error) {
	var record model.ReviewRecord
	if err := s.db.WithContext(ctx).First(&record, "review_id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("get review: %w", err)
	}
	return &record, nil
}

// ListReviews 按提交时间升序返回复核记录，status 为空时返回全部。
func (s *Store) ListReviews(ctx context.Context, status model.ReviewStatus) ([]model.ReviewRecord, error) {
	var records []model.ReviewRecord
	db := s.db.WithContext(ctx).Order("submitted_at ASC")
	if status != "" {
		db = db.Where("status = ?", status)
	}
	if err := db.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	return records, nil
}
