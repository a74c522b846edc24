package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/kirillkom/plant-catalogue/internal/config"
	"github.com/kirillkom/plant-catalogue/internal/core/augment"
	"github.com/kirillkom/plant-catalogue/internal/core/moderation"
	"github.com/kirillkom/plant-catalogue/internal/core/ports"
	"github.com/kirillkom/plant-catalogue/internal/core/usecase"
	"github.com/kirillkom/plant-catalogue/internal/infrastructure/imaging"
	"github.com/kirillkom/plant-catalogue/internal/infrastructure/llm"
	"github.com/kirillkom/plant-catalogue/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/plant-catalogue/internal/infrastructure/llm/openai"
	"github.com/kirillkom/plant-catalogue/internal/infrastructure/lock"
	"github.com/kirillkom/plant-catalogue/internal/infrastructure/queue/nats"
	"github.com/kirillkom/plant-catalogue/internal/infrastructure/repository/jsondir"
	"github.com/kirillkom/plant-catalogue/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/plant-catalogue/internal/infrastructure/repository/sqlite"
	"github.com/kirillkom/plant-catalogue/internal/infrastructure/resilience"
	"github.com/kirillkom/plant-catalogue/internal/infrastructure/storage/azblob"
	"github.com/kirillkom/plant-catalogue/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/plant-catalogue/internal/observability/metrics"
)

// Catalogue is the full store surface: the public read/insert side and the
// reconciliation side.
type Catalogue interface {
	ports.CatalogueStore
	ports.ReconcileStore
}

type Options struct {
	// Service names the process in logs and NATS connections.
	Service string
	// SkipClassifier leaves the ingestion pipeline unwired, for commands that
	// only read or reconcile the catalogue.
	SkipClassifier bool
	// SkipQueue never connects to NATS even when NATS_URL is set.
	SkipQueue     bool
	HTTPMetrics   *metrics.HTTPServerMetrics
	WorkerMetrics *metrics.WorkerMetrics
	Logger        *slog.Logger
}

type App struct {
	Config config.Config
	Logger *slog.Logger

	Catalogue Catalogue
	Storage   ports.ObjectStorage
	// UploadsDir is set for the local storage backend only.
	UploadsDir string
	Queue      *nats.Queue
	Executor   *resilience.Executor

	IngestUC    *usecase.IngestPlantUseCase
	BatchUC     *usecase.BatchIdentifyUseCase
	ReconcileUC *usecase.ReconcileUseCase

	workerMetrics *metrics.WorkerMetrics
	closeFns      []func()
}

func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Service == "" {
		opts.Service = "plant-catalogue"
	}
	app := &App{Config: cfg, Logger: logger, workerMetrics: opts.WorkerMetrics}

	catalogue, closeCatalogue, err := openCatalogue(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app.Catalogue = catalogue
	app.onClose(closeCatalogue)

	if err := app.openStorage(ctx, cfg); err != nil {
		app.Close()
		return nil, err
	}

	executorOpts := []resilience.Option{resilience.WithLogger(logger)}
	if opts.HTTPMetrics != nil {
		executorOpts = append(executorOpts, resilience.WithObserver(resilience.Observer{
			OnRetry:       opts.HTTPMetrics.ObserveRetry,
			OnStateChange: opts.HTTPMetrics.ObserveBreakerTransition,
		}))
	}
	app.Executor = resilience.NewExecutor(resilienceConfig(cfg), executorOpts...)

	if cfg.NATSURL != "" && !opts.SkipQueue {
		queue, err := nats.New(cfg.NATSURL, nats.Options{
			Name:                opts.Service,
			EntryCreatedSubject: cfg.NATSEntryCreatedSubject,
			ReconcileSubject:    cfg.NATSReconcileSubject,
			ResilienceExecutor:  app.Executor,
			Logger:              logger,
		})
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		app.Queue = queue
		app.onClose(queue.Close)
	}

	reconcileUC, err := app.NewReconcile(app.Catalogue)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.ReconcileUC = reconcileUC

	if opts.SkipClassifier {
		return app, nil
	}

	classifier, err := newClassifier(cfg)
	if err != nil {
		app.Close()
		return nil, err
	}

	var events ports.EventPublisher
	if app.Queue != nil {
		events = app.Queue
	}
	var ingestMetrics ports.IngestMetrics
	if opts.HTTPMetrics != nil {
		ingestMetrics = opts.HTTPMetrics
	}

	app.IngestUC = usecase.NewIngestPlantUseCase(
		imaging.NewInspector(cfg.MinImageDimension),
		app.Storage,
		llm.WithResilience(classifier, app.Executor),
		moderation.NewGate(cfg.MinConfidence),
		app.Catalogue,
		events,
		ingestMetrics,
		logger,
		usecase.IngestOptions{
			MaxUploadBytes:  cfg.MaxUploadBytes,
			ClassifyTimeout: cfg.ClassifyTimeout,
		},
	)
	app.BatchUC = usecase.NewBatchIdentifyUseCase(app.IngestUC, logger)
	return app, nil
}

// NewReconcile builds a reconciliation job over store, sharing the app's lock
// file and storage locator.
func (a *App) NewReconcile(store ports.ReconcileStore) (*usecase.ReconcileUseCase, error) {
	jobLock, err := lock.New(a.Config.ReconcileLockPath)
	if err != nil {
		return nil, fmt.Errorf("init reconcile lock: %w", err)
	}
	var reconcileMetrics ports.ReconcileMetrics
	if a.workerMetrics != nil {
		reconcileMetrics = a.workerMetrics
	}
	return usecase.NewReconcileUseCase(
		store,
		jobLock,
		augment.Derivations(a.Storage.Locate),
		reconcileMetrics,
		a.Logger,
	), nil
}

// BreakerStates reports the circuit state per resilient operation.
func (a *App) BreakerStates() map[string]string {
	if a.Executor == nil {
		return map[string]string{}
	}
	return a.Executor.BreakerStates()
}

func (a *App) Close() {
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		a.closeFns[i]()
	}
	a.closeFns = nil
}

func (a *App) onClose(fn func()) {
	if fn != nil {
		a.closeFns = append(a.closeFns, fn)
	}
}

func (a *App) openStorage(ctx context.Context, cfg config.Config) error {
	switch cfg.StorageBackend {
	case config.StorageAzBlob:
		store, err := azblob.New(azblob.Config{
			ConnectionString: cfg.AzureConnString,
			Container:        cfg.AzureContainer,
			PublicBaseURL:    cfg.AzurePublicBase,
		}, a.Logger)
		if err != nil {
			return fmt.Errorf("init object storage: %w", err)
		}
		if cfg.EnsureContainer {
			if err := store.EnsureContainer(ctx); err != nil {
				return fmt.Errorf("ensure storage container: %w", err)
			}
		}
		a.Storage = store
	default:
		store, err := localfs.New(cfg.StoragePath, cfg.UploadsBaseURL())
		if err != nil {
			return fmt.Errorf("init object storage: %w", err)
		}
		a.Storage = store
		a.UploadsDir = store.Dir()
	}
	return nil
}

func openCatalogue(ctx context.Context, cfg config.Config) (Catalogue, func(), error) {
	switch cfg.CatalogueDriver {
	case config.DriverPostgres:
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("ensure schema: %w", err)
		}
		return postgres.NewCatalogue(db), closeDB(db), nil
	case config.DriverJSONDir:
		store, err := jsondir.New(cfg.JSONDirPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open json catalogue: %w", err)
		}
		return store, nil, nil
	default:
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		if err := sqlite.EnsureSchema(ctx, db); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("ensure schema: %w", err)
		}
		return sqlite.NewCatalogue(db), closeDB(db), nil
	}
}

func closeDB(db *sql.DB) func() {
	return func() { _ = db.Close() }
}

func newClassifier(cfg config.Config) (ports.PlantClassifier, error) {
	switch cfg.ClassifierBackend {
	case config.ClassifierOllama:
		return ollama.NewClassifier(ollama.New(cfg.OllamaURL, cfg.OllamaVisionModel)), nil
	case config.ClassifierOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for the openai classifier")
		}
		return openai.NewClassifier(openai.New(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIModel)), nil
	default:
		return nil, fmt.Errorf("unknown classifier backend %q", cfg.ClassifierBackend)
	}
}

func resilienceConfig(cfg config.Config) resilience.Config {
	return resilience.Config{
		RetryMaxAttempts:        cfg.RetryMaxAttempts,
		RetryInitialBackoff:     cfg.RetryInitialBackoff,
		RetryMaxBackoff:         cfg.RetryMaxBackoff,
		RetryMultiplier:         2.0,
		BreakerEnabled:          cfg.BreakerEnabled,
		BreakerMinRequests:      uint32(max(cfg.BreakerMinRequests, 0)),
		BreakerFailureRatio:     cfg.BreakerFailureRatio,
		BreakerOpenTimeout:      cfg.BreakerOpenTimeout,
		BreakerHalfOpenMaxCalls: uint32(max(cfg.BreakerHalfOpenMaxCalls, 0)),
	}
}
