package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"cs-inspector/internal/logging"
	"cs-inspector/internal/model"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Config 定义对话记录采集配置。
type Config struct {
	Dir      string   `yaml:"dir" json:"dir"`
	Source   string   `yaml:"source" json:"source"`
	URLs     []string `yaml:"urls" json:"urls"`
	MaxFiles int      `yaml:"max_files" json:"max_files"`
}

// Fetcher 采集统一接口。
type Fetcher interface {
	Fetch(ctx context.Context) ([]model.Transcript, error)
}

// DirFetcher 扫描本地目录中的 .txt / .json / .html 对话文件。
type DirFetcher struct {
	dir      string
	source   string
	maxFiles int
	now      func() time.Time
	newID    func() string
	logger   *logging.Logger
}

// NewDirFetcher 创建目录采集器。
func NewDirFetcher(cfg Config, logger *logging.Logger) *DirFetcher {
	source := cfg.Source
	if source == "" {
		source = "local"
	}
	return &DirFetcher{
		dir:      cfg.Dir,
		source:   source,
		maxFiles: cfg.MaxFiles,
		now:      time.Now,
		newID:    uuid.NewString,
		logger:   logger.Component("ingest"),
	}
}

// Fetch 按相对路径字典序返回目录下的对话记录；读取失败的单个文件会被跳过。
func (d *DirFetcher) Fetch(ctx context.Context) ([]model.Transcript, error) {
	if d.dir == "" {
		return nil, nil
	}

	var paths []string
	err := filepath.WalkDir(d.dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		if _, ok := formatForExt(filepath.Ext(path)); ok {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", d.dir, err)
	}
	sort.Strings(paths)
	if d.maxFiles > 0 && len(paths) > d.maxFiles {
		paths = paths[:d.maxFiles]
	}

	d.logger.Info("start ingest", "dir", d.dir, "files", len(paths))

	items := make([]model.Transcript, 0, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return items, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			d.logger.Warn("skip unreadable file", "path", path, "error", err)
			continue
		}
		name, err := filepath.Rel(d.dir, path)
		if err != nil {
			name = filepath.Base(path)
		}
		item, err := d.transcript(filepath.ToSlash(name), filepath.Ext(path), string(data))
		if err != nil {
			d.logger.Warn("skip file", "path", path, "error", err)
			continue
		}
		items = append(items, item)
	}

	d.logger.Info("ingest done", "transcripts", len(items))
	return items, nil
}

func (d *DirFetcher) transcript(name, ext, content string) (model.Transcript, error) {
	return buildTranscript(d.newID(), d.source, name, ext, content, d.now())
}

func buildTranscript(id, source, name, ext, content string, now time.Time) (model.Transcript, error) {
	format, _ := formatForExt(ext)
	attrs := datatypes.JSONMap{"ext": strings.ToLower(ext), "ingested_at": now.Format(time.RFC3339)}
	if isHTMLExt(ext) {
		text, err := ExtractText(content)
		if err != nil {
			return model.Transcript{}, err
		}
		content = text
	}
	if strings.TrimSpace(content) == "" {
		return model.Transcript{}, fmt.Errorf("%s: empty content", name)
	}
	return model.Transcript{
		ID:         id,
		Source:     source,
		Name:       name,
		Content:    content,
		FormatHint: format,
		Status:     model.TranscriptStatusPending,
		Attributes: attrs,
	}, nil
}

func formatForExt(ext string) (model.Format, bool) {
	switch strings.ToLower(ext) {
	case ".json":
		return model.FormatJSON, true
	case ".txt", ".html", ".htm":
		return model.FormatText, true
	default:
		return model.FormatUnknown, false
	}
}

func isHTMLExt(ext string) bool {
	ext = strings.ToLower(ext)
	return ext == ".html" || ext == ".htm"
}

// Multi 依次调用多个采集器并合并结果，任一失败即返回错误。
type Multi []Fetcher

// Fetch 实现 Fetcher。
func (m Multi) Fetch(ctx context.Context) ([]model.Transcript, error) {
	var all []model.Transcript
	for _, f := range m {
		items, err := f.Fetch(ctx)
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
	}
	return all, nil
}
