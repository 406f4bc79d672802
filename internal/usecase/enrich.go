package usecase

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"devpulse/internal/domain"
	"devpulse/internal/ports"
	"devpulse/internal/scoring"
)

// fallbackSummaryLimit bounds the heuristic summary text.
const fallbackSummaryLimit = 220

// EnrichDeps wires the store, summarizer and notifier into the
// enrichment use case. Summarizer and Notifier may be nil.
type EnrichDeps struct {
	Store          ports.Store
	Summarizer     ports.Summarizer
	Notifier       ports.Notifier
	BatchLimit     int
	HalflifeHours  float64
	AlertThreshold float64
	Logger         *slog.Logger
}

// Enricher converges items that lack a satisfactory enrichment record.
type Enricher struct {
	store      ports.Store
	summarizer ports.Summarizer
	notifier   ports.Notifier
	batchLimit int
	halflife   float64
	threshold  float64
	logger     *slog.Logger
	now        func() time.Time
}

// EnrichResult summarizes one batch.
type EnrichResult struct {
	Checked int
	Updated int
	Alerted int
}

// NewEnricher constructs the enrichment component.
func NewEnricher(deps EnrichDeps) *Enricher {
	batchLimit := deps.BatchLimit
	if batchLimit <= 0 {
		batchLimit = 25
	}
	halflife := deps.HalflifeHours
	if halflife <= 0 {
		halflife = scoring.DefaultHalflifeHours
	}
	threshold := deps.AlertThreshold
	if threshold <= 0 {
		threshold = 0.80
	}
	return &Enricher{
		store:      deps.Store,
		summarizer: deps.Summarizer,
		notifier:   deps.Notifier,
		batchLimit: batchLimit,
		halflife:   halflife,
		threshold:  threshold,
		logger:     deps.Logger,
		now:        time.Now,
	}
}

// ProcessBatch fetches candidates and enriches them sequentially. Every
// candidate converges to a valid record: summarizer failures substitute
// the heuristic, and no single item aborts the batch. The digest is
// refreshed once at the end.
func (e *Enricher) ProcessBatch(ctx context.Context, limit int) (EnrichResult, error) {
	if limit <= 0 {
		limit = e.batchLimit
	}

	var result EnrichResult
	candidates, err := e.store.FetchUnenriched(ctx, limit)
	if err != nil {
		return result, err
	}

	for _, candidate := range candidates {
		result.Checked++

		summary := e.summarize(ctx, candidate)
		final := scoring.Score(summary.Tags, summary.Keywords,
			candidate.EventTime, candidate.SourceWeight, e.halflife, e.now().UTC())

		enrichment := domain.Enrichment{
			ItemID:   candidate.ID,
			Summary:  summary.Text,
			Tags:     summary.Tags,
			Keywords: summary.Keywords,
			Score:    final,
			Metadata: map[string]string{
				"model_score": strconv.FormatFloat(summary.Score, 'f', 4, 64),
			},
		}

		if err := e.store.UpsertEnrichment(ctx, enrichment); err != nil {
			e.warn("enrichment write failed", "item", candidate.ID, "error", err)
			continue
		}
		if err := e.store.SetStatus(ctx, candidate.ID, domain.StatusEnriched); err != nil {
			e.warn("status update failed", "item", candidate.ID, "error", err)
			continue
		}
		result.Updated++

		if final >= e.threshold && e.notifier != nil {
			alert := domain.Alert{
				Title:   candidate.Title,
				URL:     candidate.URL,
				Tags:    summary.Tags,
				Score:   final,
				Summary: summary.Text,
			}
			if err := e.notifier.NotifySignal(ctx, alert); err != nil {
				e.warn("alert delivery failed", "item", candidate.ID, "error", err)
			} else {
				result.Alerted++
			}
		}
	}

	if err := e.store.RefreshDigest(ctx); err != nil {
		e.warn("digest refresh failed", "error", err)
	}
	return result, nil
}

// summarize calls the external summarizer and degrades to the heuristic
// on any failure or missing configuration.
func (e *Enricher) summarize(ctx context.Context, candidate domain.Candidate) domain.Summary {
	if e.summarizer != nil {
		summary, err := e.summarizer.Summarize(ctx, candidate.Title, candidate.SummaryRaw)
		if err == nil {
			return summary
		}
		e.debug("summarizer unavailable", "item", candidate.ID, "error", err)
	}
	return heuristicSummary(candidate)
}

// heuristicSummary is the deterministic fallback: keyword-based score,
// truncated raw text, no tags.
func heuristicSummary(candidate domain.Candidate) domain.Summary {
	text := candidate.SummaryRaw
	if text == "" {
		text = candidate.Title
	}
	if runes := []rune(text); len(runes) > fallbackSummaryLimit {
		text = string(runes[:fallbackSummaryLimit])
	}

	return domain.Summary{
		Text:  text,
		Tags:  []string{},
		Score: scoring.Heuristic(candidate.Title, candidate.SummaryRaw),
	}
}

func (e *Enricher) debug(msg string, args ...any) {
	if e.logger != nil {
		e.logger.Debug(msg, args...)
	}
}

func (e *Enricher) warn(msg string, args ...any) {
	if e.logger != nil {
		e.logger.Warn(msg, args...)
	}
}
