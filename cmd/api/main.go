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

	httpadapter "github.com/kirillkom/plant-catalogue/internal/adapters/http"
	"github.com/kirillkom/plant-catalogue/internal/bootstrap"
	"github.com/kirillkom/plant-catalogue/internal/config"
	"github.com/kirillkom/plant-catalogue/internal/observability/logging"
	"github.com/kirillkom/plant-catalogue/internal/observability/metrics"
)

const serviceName = "plant-api"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	logger := logging.NewJSONLogger(serviceName, cfg.LogLevel)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("config_invalid", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpMetrics := metrics.NewHTTPServerMetrics(serviceName)
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Service:     serviceName,
		HTTPMetrics: httpMetrics,
		Logger:      logger,
	})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	router, err := httpadapter.NewRouter(ctx, app.IngestUC, app.Catalogue, httpadapter.Options{
		UploadsDir:     app.UploadsDir,
		MaxUploadBytes: cfg.MaxUploadBytes,
		AllowOrigin:    cfg.AllowOrigin,
		Metrics:        httpMetrics,
		BreakerStates:  app.BreakerStates,
		Logger:         logger,
	})
	if err != nil {
		logger.Error("router_init_failed", "error", err)
		os.Exit(1)
	}

	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		// Classification retries can take most of CLASSIFY_TIMEOUT.
		WriteTimeout: cfg.ClassifyTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("api_listening",
			"addr", server.Addr,
			"classifier", cfg.ClassifierBackend,
			"catalogue", cfg.CatalogueDriver,
			"storage", cfg.StorageBackend,
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api_shutdown_failed", "error", err)
	}
}
