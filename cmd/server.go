package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"cs-inspector/internal/api"
	"cs-inspector/internal/config"
	"cs-inspector/internal/ingest"
	"cs-inspector/internal/inspector"
	"cs-inspector/internal/llm"
	"cs-inspector/internal/logging"
	"cs-inspector/internal/metrics"
	"cs-inspector/internal/notifier"
	"cs-inspector/internal/parser"
	"cs-inspector/internal/report"
	"cs-inspector/internal/review"
	"cs-inspector/internal/scheduler"
	"cs-inspector/internal/storage"
)

// AppConfig 应用配置。
type AppConfig = config.AppConfig

type httpServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

type runner interface {
	Start(ctx context.Context) error
	RunOnce(ctx context.Context) (scheduler.RunResult, error)
}

// appDeps 是 main 组装出的运行期依赖。
type appDeps struct {
	sched   runner
	handler http.Handler
	logger  *logging.Logger
}

func main() {
	once := flag.Bool("once", false, "执行一次质检流水线后退出")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config error: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *once {
		res, err := runOnceManual(ctx, cfg, buildApp)
		if err != nil {
			logger.Error("manual run failed", "error", err)
			os.Exit(1)
		}
		logger.Info("manual run finished",
			"ingested", res.Ingested,
			"inspected", res.Inspected,
			"parse_failed", res.ParseFailed,
			"degraded", res.Degraded,
			"reviews", res.Reviews)
		return
	}

	deps, cleanup, err := buildApp(cfg)
	if err != nil {
		logger.Error("init app error", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           deps.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Info("listening", "addr", cfg.Server.Addr, "llm_provider", cfg.LLM.Provider)
	if err := runServer(ctx, srv, deps.sched, 5*time.Second); err != nil {
		logger.Error("server error", "error", err)
	}
}

// runServer 并行运行 HTTP 服务与调度器，ctx 取消后优雅关闭。
func runServer(ctx context.Context, srv httpServer, sched runner, shutdownTimeout time.Duration) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := sched.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("scheduler stopped: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// runOnceManual 组装依赖并只执行一次流水线。
func runOnceManual(ctx context.Context, cfg AppConfig, build func(AppConfig) (appDeps, func(), error)) (scheduler.RunResult, error) {
	deps, cleanup, err := build(cfg)
	if err != nil {
		return scheduler.RunResult{}, fmt.Errorf("build app: %w", err)
	}
	defer cleanup()
	return deps.sched.RunOnce(ctx)
}

func buildApp(cfg AppConfig) (appDeps, func(), error) {
	logger := logging.New(cfg.Log.Level)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewQualityMetrics(registry)

	store, err := storage.NewStore(cfg.Database.Path)
	if err != nil {
		return appDeps{}, func() {}, fmt.Errorf("init store: %w", err)
	}
	cleanup := func() { _ = store.Close() }

	client, err := llm.New(cfg.LLM)
	if err != nil {
		cleanup()
		return appDeps{}, func() {}, fmt.Errorf("init llm: %w", err)
	}

	p := parser.New(logger)
	insp := inspector.New(cfg.Inspector, client, logger, m)
	reports := report.New(cfg.Report, logger, m)

	workflow := review.NewWorkflow(store, logger, m)
	restored, err := store.ListReviews(context.Background(), "")
	if err != nil {
		cleanup()
		return appDeps{}, func() {}, fmt.Errorf("restore reviews: %w", err)
	}
	workflow.Restore(restored)

	pipeline := &scheduler.Pipeline{
		Fetcher:      buildFetcher(cfg.Ingest, logger),
		Store:        store,
		Parser:       p,
		Inspector:    insp,
		Reviewer:     workflow,
		Notifier:     buildNotifier(cfg.Email, logger),
		Reporter:     reports,
		BatchSize:    cfg.Scheduler.BatchSize,
		AutoReviewer: cfg.Scheduler.AutoReviewer,
		Logger:       logger,
	}
	sched := scheduler.NewScheduler(pipeline, cfg.Scheduler, logger)

	handler := api.NewHandler(api.Deps{
		Parser:    p,
		Inspector: insp,
		Reports:   reports,
		Store:     store,
		Reviews:   workflow,
		Runner:    sched,
		Metrics:   m,
		Gatherer:  registry,
		Logger:    logger,
	})

	return appDeps{sched: sched, handler: handler, logger: logger}, cleanup, nil
}

func buildFetcher(cfg ingest.Config, logger *logging.Logger) ingest.Fetcher {
	fetchers := ingest.Multi{}
	if cfg.Dir != "" {
		fetchers = append(fetchers, ingest.NewDirFetcher(cfg, logger))
	}
	if len(cfg.URLs) > 0 {
		fetchers = append(fetchers, ingest.NewHTTPFetcher(cfg, &http.Client{Timeout: 15 * time.Second}, logger))
	}
	if len(fetchers) == 0 {
		logger.Warn("ingest disabled: no dir or urls configured")
		return nil
	}
	return fetchers
}

func buildNotifier(cfg notifier.EmailConfig, logger *logging.Logger) notifier.Notifier {
	chain := notifier.Multi{notifier.NewLogNotifier(logger)}
	if cfg.Enabled() {
		chain = append(chain, notifier.BelowThreshold{Next: notifier.NewEmailNotifier(cfg, nil)})
	} else {
		logger.Info("email notifier disabled: missing host/from/to")
	}
	return chain
}
