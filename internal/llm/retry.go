package llm

import (
	"context"
	"errors"
	"time"
)

// RetryConfig 控制指数退避重试。
type RetryConfig struct {
	Attempts int
	MinWait  time.Duration
	MaxWait  time.Duration
}

// RetryClient 只对连接失败与超时重试，限流与非法请求直接返回。
type RetryClient struct {
	next  Client
	cfg   RetryConfig
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetryClient 包装下游客户端。
func NewRetryClient(next Client, cfg RetryConfig) *RetryClient {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.MinWait <= 0 {
		cfg.MinWait = 2 * time.Second
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 60 * time.Second
	}
	return &RetryClient{next: next, cfg: cfg, sleep: sleepCtx}
}

func (r *RetryClient) Complete(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	wait := r.cfg.MinWait
	for attempt := 1; attempt <= r.cfg.Attempts; attempt++ {
		out, err := r.next.Complete(ctx, prompt)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !Retryable(err) || attempt == r.cfg.Attempts {
			break
		}
		if err := r.sleep(ctx, wait); err != nil {
			return "", err
		}
		wait *= 2
		if wait > r.cfg.MaxWait {
			wait = r.cfg.MaxWait
		}
	}
	return "", lastErr
}

// Retryable 判断错误是否值得重试。
func Retryable(err error) bool {
	return errors.Is(err, ErrConnection) || errors.Is(err, ErrTimeout)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
