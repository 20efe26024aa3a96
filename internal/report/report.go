package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cs-inspector/internal/logging"
	"cs-inspector/internal/metrics"
	"cs-inspector/internal/model"
)

// 支持的导出格式。
const (
	FormatJSON = "json"
	FormatHTML = "html"
	FormatText = "text"
)

// 报告类型：单会话详细报告或多会话汇总报告。
const (
	TypeDetailed = "detailed"
	TypeSummary  = "summary"
)

// SummaryFileName 是汇总报告落盘文件名。
const SummaryFileName = "summary_report.txt"

// ErrUnsupportedFormat 表示请求了不支持的导出格式。
var ErrUnsupportedFormat = errors.New("unsupported report format")

// Config 描述报告输出配置。
type Config struct {
	OutputDir string `yaml:"output_dir" json:"output_dir"`
	Period    string `yaml:"period" json:"period"`
}

// Export 是报告导出结果，Size 为 Content 的字节长度。
type Export struct {
	ReportID string `json:"report_id"`
	Content  string `json:"content"`
	Format   string `json:"format"`
	Size     int    `json:"size"`
}

// Generator 负责报告渲染、汇总与落盘，本身无共享可变状态。
type Generator struct {
	cfg     Config
	logger  *logging.Logger
	metrics *metrics.QualityMetrics
	now     func() time.Time
}

// New 创建 Generator。
func New(cfg Config, logger *logging.Logger, m *metrics.QualityMetrics) *Generator {
	if cfg.OutputDir == "" {
		cfg.OutputDir = "reports"
	}
	if cfg.Period == "" {
		cfg.Period = "最近7天"
	}
	return &Generator{cfg: cfg, logger: logger.Component("report"), metrics: m, now: time.Now}
}

// Render 把单份报告渲染为指定格式。
func (g *Generator) Render(r model.InspectionReport, format string) ([]byte, error) {
	switch normalizeFormat(format) {
	case FormatJSON:
		return marshalJSON(r)
	case FormatHTML:
		var buf bytes.Buffer
		if err := detailedHTML.Execute(&buf, r); err != nil {
			return nil, fmt.Errorf("render html: %w", err)
		}
		return buf.Bytes(), nil
	case FormatText:
		return []byte(renderDetailedText(r)), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// Aggregate 按配置的报告周期汇总多份报告。
func (g *Generator) Aggregate(reports []model.InspectionReport) model.SummaryReport {
	return Aggregate(reports, g.cfg.Period, g.now())
}

// RenderSummary 把汇总报告渲染为固定版式文本。
func (g *Generator) RenderSummary(s model.SummaryReport) []byte {
	return []byte(renderSummaryText(s))
}

// Export 导出单份报告。
func (g *Generator) Export(r model.InspectionReport, format string) (Export, error) {
	content, err := g.Render(r, format)
	g.metrics.ObserveExport(normalizeFormat(format), err == nil)
	if err != nil {
		return Export{}, err
	}
	return newExport(r.ID, normalizeFormat(format), content), nil
}

// ExportSummary 汇总并导出多份报告，支持 json 与 text。
func (g *Generator) ExportSummary(id string, reports []model.InspectionReport, format string) (Export, error) {
	summary := g.Aggregate(reports)

	var (
		content []byte
		err     error
	)
	switch normalizeFormat(format) {
	case FormatJSON:
		content, err = marshalJSON(summary)
	case FormatText:
		content = g.RenderSummary(summary)
	default:
		err = fmt.Errorf("%w: %q for summary", ErrUnsupportedFormat, format)
	}
	g.metrics.ObserveExport(normalizeFormat(format), err == nil)
	if err != nil {
		return Export{}, err
	}
	return newExport(id, normalizeFormat(format), content), nil
}

// Save 把内容写到输出目录下，返回文件路径。
func (g *Generator) Save(name string, content []byte) (string, error) {
	if err := os.MkdirAll(g.cfg.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	path := filepath.Join(g.cfg.OutputDir, filepath.Base(name))
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", fmt.Errorf("write report %s: %w", path, err)
	}
	g.logger.Info("report saved", "path", path, "size", len(content))
	return path, nil
}

// SaveDetailed 以 report_<session>.txt 保存单份报告的文本版本。
func (g *Generator) SaveDetailed(r model.InspectionReport) (string, error) {
	return g.Save("report_"+r.SessionID+".txt", []byte(renderDetailedText(r)))
}

// SaveSummary 汇总并保存 summary_report.txt。
func (g *Generator) SaveSummary(reports []model.InspectionReport) (model.SummaryReport, string, error) {
	summary := g.Aggregate(reports)
	path, err := g.Save(SummaryFileName, g.RenderSummary(summary))
	return summary, path, err
}

func newExport(id, format string, content []byte) Export {
	return Export{ReportID: id, Content: string(content), Format: format, Size: len(content)}
}

func normalizeFormat(format string) string {
	return strings.ToLower(strings.TrimSpace(format))
}

// marshalJSON 输出缩进且不转义中文与 HTML 字符的 JSON。
func marshalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("render json: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
