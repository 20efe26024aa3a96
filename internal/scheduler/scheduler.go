package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"cs-inspector/internal/logging"

	"golang.org/x/sync/errgroup"
)

// Config 用于调度配置。
type Config struct {
	Interval     string `yaml:"interval" json:"interval"`
	Timeout      string `yaml:"timeout" json:"timeout"`
	BatchSize    int    `yaml:"batch_size" json:"batch_size"`
	AutoReviewer string `yaml:"auto_reviewer" json:"auto_reviewer"`
}

// Runner 是一次调度要执行的任务。
type Runner interface {
	RunOnce(ctx context.Context) (RunResult, error)
}

// Scheduler 负责按间隔或 cron 表达式周期性执行 Runner，同一时刻最多一个运行。
type Scheduler struct {
	runner    Runner
	interval  time.Duration
	cronSpec  string
	cron      *cronSchedule
	timeout   time.Duration
	running   atomic.Bool
	newTicker func(time.Duration) ticker
	now       func() time.Time
	logger    *logging.Logger
}

type ticker interface {
	C() <-chan time.Time
	Stop()
}

// NewScheduler 创建 Scheduler，解析配置的间隔与超时。
func NewScheduler(runner Runner, cfg Config, logger *logging.Logger) *Scheduler {
	interval, cronCfg := parseSchedule(cfg.Interval)
	timeout := 10 * time.Minute
	if cfg.Timeout != "" {
		if d, err := time.ParseDuration(cfg.Timeout); err == nil && d > 0 {
			timeout = d
		}
	}

	return &Scheduler{
		runner:    runner,
		interval:  interval,
		cronSpec:  cronCfg.spec,
		cron:      cronCfg.schedule,
		timeout:   timeout,
		newTicker: defaultTicker,
		now:       time.Now,
		logger:    logger.Component("scheduler"),
	}
}

// Start 启动调度循环，直到上下文取消。单次运行失败只记录日志，不终止循环。
func (s *Scheduler) Start(ctx context.Context) error {
	if s.runner == nil {
		return fmt.Errorf("scheduler missing runner")
	}

	g, ctx := errgroup.WithContext(ctx)

	if s.cron != nil {
		s.logger.Info("scheduler started", "cron", s.cronSpec)
		g.Go(func() error {
			return s.startCron(ctx)
		})
	} else {
		s.logger.Info("scheduler started", "interval", s.interval.String())
		tick := s.newTicker(s.interval)
		ch := tick.C()

		g.Go(func() error {
			defer tick.Stop()
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-ch:
					s.runLogged(ctx)
				drain:
					for {
						select {
						case <-ch:
							continue
						default:
							break drain
						}
					}
				}
			}
		})
	}

	return g.Wait()
}

// RunOnce 对外暴露单次执行接口，便于手动触发；已有运行在进行时直接返回。
func (s *Scheduler) RunOnce(ctx context.Context) (RunResult, error) {
	if s.running.Swap(true) {
		return RunResult{Skipped: true}, nil
	}
	defer s.running.Store(false)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.runner.RunOnce(ctx)
}

func (s *Scheduler) runLogged(ctx context.Context) {
	res, err := s.RunOnce(ctx)
	if err != nil {
		s.logger.Error("scheduled run failed", "error", err)
		return
	}
	if res.Skipped {
		s.logger.Warn("scheduled run skipped, previous run still active")
		return
	}
	s.logger.Info("scheduled run finished",
		"ingested", res.Ingested,
		"inspected", res.Inspected,
		"parse_failed", res.ParseFailed,
		"degraded", res.Degraded,
		"reviews", res.Reviews)
}

func defaultTicker(d time.Duration) ticker {
	t := time.NewTicker(d)
	return tickerWrapper{t}
}

type tickerWrapper struct {
	*time.Ticker
}

func (t tickerWrapper) C() <-chan time.Time { return t.Ticker.C }
func (t tickerWrapper) Stop()               { t.Ticker.Stop() }

func (s *Scheduler) startCron(ctx context.Context) error {
	for {
		next, err := s.cron.next(s.now())
		if err != nil {
			return fmt.Errorf("compute next cron time: %w", err)
		}
		wait := next.Sub(s.now())
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			s.runLogged(ctx)
		}
	}
}
