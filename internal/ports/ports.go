package ports

import (
	"context"
	"time"

	"devpulse/internal/domain"
)

// Store is the upsert/read contract against the backing store. Both the
// direct Postgres path and the REST path implement it.
type Store interface {
	// UpsertSource is identity-unique on (kind, url); name and weight are
	// refreshed on conflict.
	UpsertSource(ctx context.Context, kind, name, url string, weight float64) (int64, error)
	// UpsertItem is idempotent on (kind, origin_id): mutable fields are
	// refreshed and the existing id is returned.
	UpsertItem(ctx context.Context, sourceID int64, raw domain.RawItem) (int64, error)
	// UpsertEnrichment replaces the enrichment record, except that the
	// stored score never decreases.
	UpsertEnrichment(ctx context.Context, e domain.Enrichment) error
	SetStatus(ctx context.Context, itemID int64, status domain.Status) error
	// FetchUnenriched selects items whose enrichment is missing, empty or
	// below the score floor, or whose status is not yet enriched.
	FetchUnenriched(ctx context.Context, limit int) ([]domain.Candidate, error)
	// RefreshDigest refreshes the materialized digest if the store has
	// one; stores without it return nil.
	RefreshDigest(ctx context.Context) error
	TopDigest(ctx context.Context, q domain.DigestQuery) ([]domain.DigestRow, error)
}

// Summarizer condenses an item into summary, tags, keywords and a raw
// model score. Any error is treated by the caller as "unavailable".
type Summarizer interface {
	Summarize(ctx context.Context, title, raw string) (domain.Summary, error)
}

// Notifier delivers high-signal alerts to an automation endpoint.
// Delivery is best-effort; callers swallow errors.
type Notifier interface {
	NotifySignal(ctx context.Context, alert domain.Alert) error
}

// Scheduler controls when pipeline runs execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
