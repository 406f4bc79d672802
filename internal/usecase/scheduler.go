package usecase

import (
	"context"
	"log/slog"
	"time"

	"devpulse/internal/ports"
)

// Scheduler wires the cron driver with the ingestion and enrichment use
// cases: every trigger runs a full ingest followed by one enrichment
// batch.
type Scheduler struct {
	driver   ports.Scheduler
	ingest   *Ingest
	enricher *Enricher
	logger   *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring pipeline runs.
func NewScheduler(driver ports.Scheduler, ingest *Ingest, enricher *Enricher, logger *slog.Logger) *Scheduler {
	return &Scheduler{driver: driver, ingest: ingest, enricher: enricher, logger: logger}
}

// Start registers the pipeline run with the provided scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	job := func(trigger time.Time) {
		s.run(ctx, trigger)
	}
	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}
	return s.driver.Stop(ctx)
}

func (s *Scheduler) run(ctx context.Context, trigger time.Time) {
	if s.ingest != nil {
		ingested, err := s.ingest.RunAll(ctx)
		if err != nil {
			s.warn("scheduled ingest failed", "trigger", trigger, "error", err)
		} else {
			s.info("scheduled ingest done", "trigger", trigger, "inserted", ingested.Total)
		}
	}

	if s.enricher != nil {
		enriched, err := s.enricher.ProcessBatch(ctx, 0)
		if err != nil {
			s.warn("scheduled enrichment failed", "trigger", trigger, "error", err)
		} else {
			s.info("scheduled enrichment done", "trigger", trigger,
				"checked", enriched.Checked, "updated", enriched.Updated, "alerted", enriched.Alerted)
		}
	}
}

func (s *Scheduler) info(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}

func (s *Scheduler) warn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}
