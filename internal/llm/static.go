package llm

import "context"

// DefaultMockEvaluation 是未配置 API Key 时返回的模拟质检结果。
const DefaultMockEvaluation = `总体评分：80
服务态度：85
专业性：80
合规性：90
1. 问题：开场白不够规范，轻微影响客户体验
总结：模拟模式评估，未调用真实大模型`

// StaticClient 总是返回固定文本，用于本地开发的模拟模式。
type StaticClient struct {
	Response string
}

func NewStaticClient(response string) *StaticClient {
	return &StaticClient{Response: response}
}

func (s *StaticClient) Complete(ctx context.Context, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.Response, nil
}
