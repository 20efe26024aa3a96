package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIClient 使用官方 openai-go SDK 调用 chat completions。
// base url 指向 DashScope 兼容模式时即可访问通义千问。
type OpenAIClient struct {
	model  string
	system string
	opts   []option.RequestOption
}

// NewOpenAIClient 根据配置创建客户端。
func NewOpenAIClient(cfg Config) (*OpenAIClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("openai api key missing; provide llm.api_key")
	}
	model := cfg.Model
	if model == "" {
		model = defaultDashScopeModel
	}
	system := cfg.System
	if system == "" {
		system = defaultSystemPrompt
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		// 重试由 RetryClient 统一负责
		option.WithMaxRetries(0),
	}
	if cfg.APIBase != "" {
		opts = append(opts, option.WithBaseURL(cfg.APIBase))
	}
	return &OpenAIClient{model: model, system: system, opts: opts}, nil
}

func (o *OpenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	client := openai.NewClient(o.opts...)

	resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(o.system),
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", classifyStatus("openai", apiErr.StatusCode)
		}
		return "", classifyTransport("openai", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("openai: %w", ErrEmpty)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
