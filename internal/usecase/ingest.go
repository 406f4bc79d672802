package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"devpulse/internal/ports"
	"devpulse/internal/source"
)

// rawSummaryCap bounds stored raw text; upstream payloads are unbounded.
const rawSummaryCap = 4000

// IngestDeps wires the connector registry and the store into the
// ingestion use case.
type IngestDeps struct {
	Registry    *source.Registry
	Store       ports.Store
	Concurrency int
	Logger      *slog.Logger
}

// Ingest runs connectors and upserts what they discover.
type Ingest struct {
	registry    *source.Registry
	store       ports.Store
	concurrency int
	logger      *slog.Logger
}

// IngestResult reports inserted-or-refreshed item counts per connector.
type IngestResult struct {
	Inserted map[string]int
	Total    int
}

// NewIngest constructs the ingestion component.
func NewIngest(deps IngestDeps) *Ingest {
	concurrency := deps.Concurrency
	if concurrency <= 0 {
		concurrency = 10
	}
	return &Ingest{
		registry:    deps.Registry,
		store:       deps.Store,
		concurrency: concurrency,
		logger:      deps.Logger,
	}
}

// RunAll fans out every registered connector under the concurrency
// limit, stores their batches, and refreshes the digest once. A failing
// connector contributes zero items and the run continues.
func (i *Ingest) RunAll(ctx context.Context) (IngestResult, error) {
	result := IngestResult{Inserted: make(map[string]int)}
	if i.registry == nil || i.store == nil {
		return result, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.concurrency)

	for _, name := range i.registry.Names() {
		connector, err := i.registry.Resolve(name)
		if err != nil {
			continue
		}

		g.Go(func() error {
			count := i.runOne(gctx, connector)
			mu.Lock()
			result.Inserted[connector.Name()] = count
			result.Total += count
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return result, err
	}

	if err := i.store.RefreshDigest(ctx); err != nil {
		i.warn("digest refresh failed", "error", err)
	}
	return result, nil
}

// RunConnector runs a single connector by registry name.
func (i *Ingest) RunConnector(ctx context.Context, name string) (IngestResult, error) {
	result := IngestResult{Inserted: make(map[string]int)}

	connector, err := i.registry.Resolve(name)
	if err != nil {
		return result, err
	}

	count := i.runOne(ctx, connector)
	result.Inserted[connector.Name()] = count
	result.Total = count

	if err := i.store.RefreshDigest(ctx); err != nil {
		i.warn("digest refresh failed", "error", err)
	}
	return result, nil
}

// runOne executes one connector and persists its batches. Failures are
// contained per source and per item.
func (i *Ingest) runOne(ctx context.Context, connector source.Connector) int {
	started := time.Now()

	batches, err := connector.Fetch(ctx)
	if err != nil {
		i.warn("connector failed", "connector", connector.Name(), "error", err)
		return 0
	}

	count := 0
	for _, batch := range batches {
		src := batch.Source
		sourceID, err := i.store.UpsertSource(ctx, src.Kind, src.Name, src.URL, src.Weight)
		if err != nil {
			i.warn("source upsert failed", "connector", connector.Name(), "source", src.URL, "error", err)
			continue
		}

		for _, raw := range batch.Items {
			if len(raw.SummaryRaw) > rawSummaryCap {
				raw.SummaryRaw = raw.SummaryRaw[:rawSummaryCap]
			}
			if _, err := i.store.UpsertItem(ctx, sourceID, raw); err != nil {
				i.warn("item upsert failed", "connector", connector.Name(), "origin", raw.OriginID, "error", err)
				continue
			}
			count++
		}
	}

	i.info("connector done",
		"connector", connector.Name(),
		"inserted", count,
		"elapsed", time.Since(started).Round(time.Millisecond))
	return count
}

func (i *Ingest) info(msg string, args ...any) {
	if i.logger != nil {
		i.logger.Info(msg, args...)
	}
}

func (i *Ingest) warn(msg string, args ...any) {
	if i.logger != nil {
		i.logger.Warn(msg, args...)
	}
}
