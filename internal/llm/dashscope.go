package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	defaultDashScopeBase  = "https://dashscope.aliyuncs.com/compatible-mode/v1"
	defaultDashScopeModel = "qwen-plus"
	defaultSystemPrompt   = "你是一名资深的客服质检专家，请严格按照要求输出评估结果。"
)

// DashScopeClient 通过 OpenAI 兼容的 chat/completions 接口调用通义千问，
// 同样适用于 DeepSeek 等兼容服务。
type DashScopeClient struct {
	cfg    Config
	client *http.Client
}

// NewDashScopeClient 创建客户端。
func NewDashScopeClient(cfg Config, httpClient *http.Client) *DashScopeClient {
	base := strings.TrimSpace(cfg.APIBase)
	if base == "" {
		base = defaultDashScopeBase
	}
	model := cfg.Model
	if model == "" {
		model = defaultDashScopeModel
	}
	system := cfg.System
	if system == "" {
		system = defaultSystemPrompt
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	cfg.APIBase, cfg.Model, cfg.System = base, model, system
	return &DashScopeClient{cfg: cfg, client: httpClient}
}

func (c *DashScopeClient) Complete(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return "", fmt.Errorf("dashscope api key missing: %w", ErrInvalid)
	}

	payload := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: c.cfg.System},
			{Role: "user", Content: prompt},
		},
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.cfg.APIBase, "/")+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", classifyTransport("dashscope", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", classifyStatus("dashscope", resp.StatusCode)
	}

	var body chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode dashscope response: %w", err)
	}

	if len(body.Choices) == 0 || body.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("dashscope: %w", ErrEmpty)
	}

	return strings.TrimSpace(body.Choices[0].Message.Content), nil
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}
