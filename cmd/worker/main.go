package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/plant-catalogue/internal/bootstrap"
	"github.com/kirillkom/plant-catalogue/internal/config"
	"github.com/kirillkom/plant-catalogue/internal/core/domain"
	"github.com/kirillkom/plant-catalogue/internal/core/usecase"
	"github.com/kirillkom/plant-catalogue/internal/infrastructure/queue/nats"
	"github.com/kirillkom/plant-catalogue/internal/observability/logging"
	"github.com/kirillkom/plant-catalogue/internal/observability/metrics"
)

const (
	serviceName      = "plant-worker"
	reconcileTimeout = 30 * time.Minute
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	logger := logging.NewJSONLogger(serviceName, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Service:        serviceName,
		SkipClassifier: true,
		WorkerMetrics:  workerMetrics,
		Logger:         logger,
	})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker_metrics_server_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	run := func(ctx context.Context, trigger string) error {
		return reconcile(ctx, app.ReconcileUC, workerMetrics, logger.With("trigger", trigger))
	}

	if cfg.ReconcileOnStart {
		if err := run(ctx, "startup"); err != nil {
			logger.Error("reconcile_failed", "trigger", "startup", "error", err)
		}
	}

	if app.Queue == nil {
		logger.Info("worker_idle", "reason", "NATS_URL not set, reconcile runs on startup only")
		<-ctx.Done()
		return
	}

	logger.Info("worker_subscribed", "subject", cfg.NATSReconcileSubject)
	err = app.Queue.SubscribeReconcileRequests(ctx, func(handlerCtx context.Context, req nats.ReconcileRequest) error {
		return run(handlerCtx, "nats:"+req.RequestedBy)
	})
	if err != nil {
		logger.Error("worker_subscribe_failed", "error", err)
		os.Exit(1)
	}
}

func reconcile(ctx context.Context, uc *usecase.ReconcileUseCase, m *metrics.WorkerMetrics, logger *slog.Logger) error {
	runCtx, cancel := context.WithTimeout(ctx, reconcileTimeout)
	defer cancel()

	m.StartRun()
	defer m.FinishRun()

	_, err := uc.Run(runCtx)
	if errors.Is(err, domain.ErrJobRunning) {
		logger.Info("reconcile_skipped", "reason", "another run holds the lock")
		return nil
	}
	return err
}
