package usecase

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"devpulse/internal/domain"
)

type failingSummarizer struct{}

func (failingSummarizer) Summarize(context.Context, string, string) (domain.Summary, error) {
	return domain.Summary{}, errors.New("summarizer down")
}

type cannedSummarizer struct {
	summary domain.Summary
}

func (c cannedSummarizer) Summarize(context.Context, string, string) (domain.Summary, error) {
	return c.summary, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []domain.Alert
	err    error
}

func (n *recordingNotifier) NotifySignal(_ context.Context, alert domain.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.alerts = append(n.alerts, alert)
	return nil
}

func TestProcessBatchFallbackConvergence(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.candidates = []domain.Candidate{
		{ID: 1, Title: "Quantization release", SummaryRaw: "cuda inference speedups", SourceWeight: 1.0},
		{ID: 2, Title: "Plain item", SourceWeight: 1.0},
		{ID: 3, Title: "Another", SummaryRaw: "notes", SourceWeight: 1.0},
	}

	e := NewEnricher(EnrichDeps{Store: store, Summarizer: failingSummarizer{}, AlertThreshold: 0.99})

	result, err := e.ProcessBatch(context.Background(), 10)
	if err != nil {
		t.Fatalf("ProcessBatch error: %v", err)
	}
	if result.Checked != 3 || result.Updated != 3 {
		t.Fatalf("batch did not converge: %+v", result)
	}

	for id := int64(1); id <= 3; id++ {
		rec, ok := store.enrichments[id]
		if !ok {
			t.Fatalf("item %d missing enrichment", id)
		}
		if len(rec.Tags) != 0 {
			t.Fatalf("fallback must leave tags empty, got %v", rec.Tags)
		}
		// Undated item, weight 1, zero richness.
		if math.Abs(rec.Score-0.9) > 1e-9 {
			t.Fatalf("item %d unexpected composite score %v", id, rec.Score)
		}
		if rec.Metadata["model_score"] == "" {
			t.Fatalf("item %d missing model_score metadata", id)
		}
		if store.statuses[id] != domain.StatusEnriched {
			t.Fatalf("item %d status not advanced: %s", id, store.statuses[id])
		}
	}

	if store.refreshes != 1 {
		t.Fatalf("expected exactly one digest refresh, got %d", store.refreshes)
	}
}

func TestProcessBatchCompositeScoreFromModelOutput(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	store := newFakeStore()
	store.candidates = []domain.Candidate{
		{ID: 1, Title: "First stable", EventTime: &now, SourceWeight: 1.0},
	}

	summarizer := cannedSummarizer{summary: domain.Summary{
		Text:     "A stable release.",
		Tags:     []string{"llm", "infra", "systems", "agents", "cuda"},
		Keywords: []string{"k1", "k2", "k3", "k4", "k5", "k6", "k7", "k8", "k9", "k10"},
		Score:    0.91,
	}}

	e := NewEnricher(EnrichDeps{Store: store, Summarizer: summarizer, AlertThreshold: 0.99})

	if _, err := e.ProcessBatch(context.Background(), 5); err != nil {
		t.Fatalf("ProcessBatch error: %v", err)
	}

	rec := store.enrichments[1]
	// Fresh item: decay ~ 1; richness = (5+10)/20 = 0.75.
	want := 0.55 + 0.35 + 0.10*0.75
	if math.Abs(rec.Score-want) > 0.001 {
		t.Fatalf("expected composite score near %.4f, got %v", want, rec.Score)
	}
	if rec.Metadata["model_score"] != "0.9100" {
		t.Fatalf("model score not preserved in metadata: %v", rec.Metadata)
	}
}

func TestProcessBatchAlertsAboveThreshold(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	old := now.Add(-14 * 24 * time.Hour)
	store := newFakeStore()
	store.candidates = []domain.Candidate{
		{ID: 1, Title: "Fresh", EventTime: &now, SourceWeight: 1.0},
		{ID: 2, Title: "Stale", EventTime: &old, SourceWeight: 0.2},
	}

	notifier := &recordingNotifier{}
	e := NewEnricher(EnrichDeps{
		Store:          store,
		Summarizer:     cannedSummarizer{summary: domain.Summary{Text: "s", Tags: []string{"llm"}}},
		Notifier:       notifier,
		AlertThreshold: 0.80,
	})

	result, err := e.ProcessBatch(context.Background(), 5)
	if err != nil {
		t.Fatalf("ProcessBatch error: %v", err)
	}
	if result.Alerted != 1 {
		t.Fatalf("expected exactly the fresh item to alert, got %d", result.Alerted)
	}
	if len(notifier.alerts) != 1 || notifier.alerts[0].Title != "Fresh" {
		t.Fatalf("unexpected alerts: %+v", notifier.alerts)
	}
}

func TestProcessBatchAlertFailureDoesNotRollBack(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	store := newFakeStore()
	store.candidates = []domain.Candidate{
		{ID: 1, Title: "Fresh", EventTime: &now, SourceWeight: 1.0},
	}

	notifier := &recordingNotifier{err: errors.New("endpoint down")}
	e := NewEnricher(EnrichDeps{
		Store:          store,
		Summarizer:     cannedSummarizer{summary: domain.Summary{Text: "s"}},
		Notifier:       notifier,
		AlertThreshold: 0.80,
	})

	result, err := e.ProcessBatch(context.Background(), 5)
	if err != nil {
		t.Fatalf("ProcessBatch error: %v", err)
	}
	if result.Updated != 1 || result.Alerted != 0 {
		t.Fatalf("enrichment must survive alert failure: %+v", result)
	}
	if _, ok := store.enrichments[1]; !ok {
		t.Fatal("enrichment record lost")
	}
}

func TestProcessBatchContainsSingleWriteFailure(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.failEnrichmentFor = 2
	store.candidates = []domain.Candidate{
		{ID: 1, Title: "ok", SourceWeight: 1.0},
		{ID: 2, Title: "broken", SourceWeight: 1.0},
		{ID: 3, Title: "ok too", SourceWeight: 1.0},
	}

	e := NewEnricher(EnrichDeps{Store: store, Summarizer: failingSummarizer{}})

	result, err := e.ProcessBatch(context.Background(), 10)
	if err != nil {
		t.Fatalf("ProcessBatch error: %v", err)
	}
	if result.Checked != 3 || result.Updated != 2 {
		t.Fatalf("write failure not contained: %+v", result)
	}
	if _, ok := store.enrichments[3]; !ok {
		t.Fatal("siblings must still be processed after a failure")
	}
}
