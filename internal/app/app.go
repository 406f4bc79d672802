package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"devpulse/internal/config"
	"devpulse/internal/domain"
	"devpulse/internal/infrastructure/blogfeed"
	"devpulse/internal/infrastructure/github"
	"devpulse/internal/infrastructure/llm"
	"devpulse/internal/infrastructure/modelhub"
	"devpulse/internal/infrastructure/scheduler"
	"devpulse/internal/infrastructure/storage"
	"devpulse/internal/infrastructure/webhook"
	"devpulse/internal/logging"
	"devpulse/internal/ports"
	"devpulse/internal/source"
	"devpulse/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	store     ports.Store
	ingest    *usecase.Ingest
	enricher  *usecase.Enricher
	scheduler *usecase.Scheduler
}

// New builds a runnable application instance: store, connectors,
// summarizer, notifier, and the use cases on top of them.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	store, err := newStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	client := &http.Client{Timeout: cfg.Fetch.Timeout()}
	limiter := source.NewLimiter(cfg.Fetch.RateQPS)

	registry := source.NewRegistry()
	registry.Register(github.New(cfg.GitHub, client, limiter,
		baseLogger.With("component", "connector.github")))
	registry.Register(modelhub.New(cfg.ModelHub, client, limiter,
		baseLogger.With("component", "connector.modelhub")))
	registry.Register(blogfeed.New(cfg.BlogFeeds, client,
		baseLogger.With("component", "connector.blogfeed")))

	var summarizer ports.Summarizer
	if cfg.Enrichment.GeminiAPIKey != "" {
		summarizer = llm.NewGeminiClient(cfg.Enrichment.GeminiAPIKey, cfg.Enrichment.GeminiModel)
	}

	var notifier ports.Notifier
	if cfg.Webhook.URL != "" {
		notifier = webhook.NewNotifier(cfg.Webhook.URL, cfg.Webhook.Secret)
	}

	ingest := usecase.NewIngest(usecase.IngestDeps{
		Registry:    registry,
		Store:       store,
		Concurrency: cfg.Fetch.Concurrency,
		Logger:      baseLogger.With("component", "ingest"),
	})

	enricher := usecase.NewEnricher(usecase.EnrichDeps{
		Store:          store,
		Summarizer:     summarizer,
		Notifier:       notifier,
		BatchLimit:     cfg.Enrichment.BatchLimit,
		HalflifeHours:  cfg.Enrichment.HalflifeHours,
		AlertThreshold: cfg.Enrichment.AlertThreshold,
		Logger:         baseLogger.With("component", "enrich"),
	})

	driver := scheduler.NewCronScheduler(cfg.Scheduler.CronExpression)
	sched := usecase.NewScheduler(driver, ingest, enricher,
		baseLogger.With("component", "scheduler"))

	return &Application{
		cfg:       cfg,
		logger:    baseLogger,
		store:     store,
		ingest:    ingest,
		enricher:  enricher,
		scheduler: sched,
	}, nil
}

// Digest reads the current ranked digest.
func (a *Application) Digest(ctx context.Context, q domain.DigestQuery) ([]domain.DigestRow, error) {
	return a.store.TopDigest(ctx, q)
}

// RunOnce performs a single full pipeline pass: every connector, then
// one enrichment batch.
func (a *Application) RunOnce(ctx context.Context) error {
	ingested, err := a.ingest.RunAll(ctx)
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}
	a.logger.Info("ingest done", "inserted", ingested.Total)

	enriched, err := a.enricher.ProcessBatch(ctx, 0)
	if err != nil {
		return fmt.Errorf("enrich: %w", err)
	}
	a.logger.Info("enrichment done",
		"checked", enriched.Checked, "updated", enriched.Updated, "alerted", enriched.Alerted)
	return nil
}

// Serve starts the cron schedule and blocks until the context is
// cancelled.
func (a *Application) Serve(ctx context.Context) error {
	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	a.logger.Info("scheduler started", "cron", a.cfg.Scheduler.CronExpression)

	<-ctx.Done()
	return a.scheduler.Stop(context.Background())
}

// newStore selects the persistence path from configuration.
func newStore(ctx context.Context, cfg config.StoreConfig) (ports.Store, error) {
	switch cfg.Mode {
	case "postgres":
		db, err := storage.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return storage.NewPostgresStore(db, cfg.Floor), nil
	case "rest", "":
		if cfg.RestURL == "" {
			return nil, fmt.Errorf("store: rest mode requires an endpoint URL")
		}
		return storage.NewRestStore(cfg.RestURL, cfg.RestKey, cfg.Floor), nil
	default:
		return nil, fmt.Errorf("store: unknown mode %q", cfg.Mode)
	}
}
