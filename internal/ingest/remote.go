package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"cs-inspector/internal/logging"
	"cs-inspector/internal/model"

	"github.com/google/uuid"
)

// HTTPFetcher 从一组 URL 拉取对话导出文件，格式按路径后缀判断，无后缀时按 .txt 处理。
type HTTPFetcher struct {
	urls   []string
	source string
	client *http.Client
	now    func() time.Time
	newID  func() string
	logger *logging.Logger
}

// NewHTTPFetcher 创建远程采集器。
func NewHTTPFetcher(cfg Config, client *http.Client, logger *logging.Logger) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	source := cfg.Source
	if source == "" {
		source = "remote"
	}
	return &HTTPFetcher{
		urls:   cfg.URLs,
		source: source,
		client: client,
		now:    time.Now,
		newID:  uuid.NewString,
		logger: logger.Component("ingest"),
	}
}

// Fetch 顺序拉取所有 URL，任一请求失败即返回错误。
func (h *HTTPFetcher) Fetch(ctx context.Context) ([]model.Transcript, error) {
	items := make([]model.Transcript, 0, len(h.urls))
	for _, raw := range h.urls {
		item, err := h.fetchOne(ctx, raw)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		h.logger.Info("fetched transcript", "url", raw, "format", item.FormatHint)
	}
	return items, nil
}

func (h *HTTPFetcher) fetchOne(ctx context.Context, raw string) (model.Transcript, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return model.Transcript{}, fmt.Errorf("parse url %s: %w", raw, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return model.Transcript{}, fmt.Errorf("new request: %w", err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return model.Transcript{}, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return model.Transcript{}, fmt.Errorf("unexpected status %d for %s", resp.StatusCode, raw)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.Transcript{}, fmt.Errorf("read body: %w", err)
	}

	ext := path.Ext(u.Path)
	if _, ok := formatForExt(ext); !ok {
		ext = ".txt"
	}
	item, err := buildTranscript(h.newID(), h.source, u.Host+u.Path, ext, string(body), h.now())
	if err != nil {
		return model.Transcript{}, err
	}
	item.Attributes["url"] = raw
	return item, nil
}
