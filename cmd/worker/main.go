package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-invoice/internal/app"
	"github.com/odyssey-erp/odyssey-invoice/internal/invoice"
	jobmetrics "github.com/odyssey-erp/odyssey-invoice/internal/jobs"
	"github.com/odyssey-erp/odyssey-invoice/internal/mailer"
	"github.com/odyssey-erp/odyssey-invoice/internal/observability"
	"github.com/odyssey-erp/odyssey-invoice/internal/platform/db"
	"github.com/odyssey-erp/odyssey-invoice/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: int32(cfg.RenderConcurrency) + 2})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	// The worker renders without the PDF cache; emails are one-off.
	metrics := observability.NewMetrics()
	stack, err := app.NewDocumentStack(cfg, logger, metrics, nil)
	if err != nil {
		logger.Error("init document pipeline", slog.Any("error", err))
		os.Exit(1)
	}

	emailJob := jobs.NewInvoiceEmailJob(
		invoice.NewRepository(pool),
		stack.Service,
		mailer.NewSMTPSender(cfg.SMTP()),
		logger,
		jobmetrics.NewMetrics(metrics.Registerer()),
	)

	if cfg.WorkerMetricsAddr != "" {
		go func() {
			logger.Info("serving worker metrics", slog.String("addr", cfg.WorkerMetricsAddr))
			if err := http.ListenAndServe(cfg.WorkerMetricsAddr, metrics.Handler()); err != nil {
				logger.Warn("worker metrics server", slog.Any("error", err))
			}
		}()
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: int(cfg.RenderConcurrency),
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskInvoiceEmail, Handler: emailJob.Handle},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
