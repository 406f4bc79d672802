package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"devpulse/internal/domain"
	"devpulse/internal/ports"
)

const defaultDigestLimit = 50

// PostgresStore is the direct-connection persistence path.
type PostgresStore struct {
	db    *sql.DB
	floor float64
}

var _ ports.Store = (*PostgresStore)(nil)

// NewPostgresStore wires a sql.DB and the enrichment score floor used by
// FetchUnenriched.
func NewPostgresStore(db *sql.DB, scoreFloor float64) *PostgresStore {
	if scoreFloor <= 0 {
		scoreFloor = 0.80
	}
	return &PostgresStore{db: db, floor: scoreFloor}
}

// Open connects via the pq driver and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// UpsertSource inserts or refreshes a source by (kind, url) and returns
// its id.
func (s *PostgresStore) UpsertSource(ctx context.Context, kind, name, url string, weight float64) (int64, error) {
	query := `INSERT INTO sources (kind, name, url, weight)
              VALUES ($1, $2, $3, $4)
              ON CONFLICT (kind, url) DO UPDATE
              SET name = EXCLUDED.name,
                  weight = EXCLUDED.weight
              RETURNING id`

	var id int64
	if err := s.db.QueryRowContext(ctx, query, kind, name, url, weight).Scan(&id); err != nil {
		return 0, fmt.Errorf("upsert source: %w", err)
	}
	return id, nil
}

// UpsertItem inserts or refreshes an item by (kind, origin_id) and
// returns the stable id.
func (s *PostgresStore) UpsertItem(ctx context.Context, sourceID int64, raw domain.RawItem) (int64, error) {
	query := `INSERT INTO items (source_id, kind, origin_id, title, url, secondary_url, author, summary_raw, event_time)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
              ON CONFLICT (kind, origin_id) DO UPDATE
              SET title = EXCLUDED.title,
                  url = EXCLUDED.url,
                  secondary_url = EXCLUDED.secondary_url,
                  author = EXCLUDED.author,
                  summary_raw = EXCLUDED.summary_raw,
                  event_time = EXCLUDED.event_time
              RETURNING id`

	var id int64
	err := s.db.QueryRowContext(ctx, query,
		sourceID,
		raw.Kind,
		raw.OriginID,
		raw.Title,
		raw.URL,
		raw.SecondaryURL,
		raw.Author,
		raw.SummaryRaw,
		utcTime(raw.EventTime),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert item: %w", err)
	}
	return id, nil
}

// UpsertEnrichment replaces the enrichment record for an item. The score
// column only moves up: re-enrichment keeps the best score seen so far.
func (s *PostgresStore) UpsertEnrichment(ctx context.Context, e domain.Enrichment) error {
	metadata, err := json.Marshal(orEmptyMap(e.Metadata))
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	// embedding stays an empty pass-through column; nothing computes
	// embeddings here.
	query := `INSERT INTO item_enriched (item_id, summary_ai, tags, keywords, embedding, score, metadata, updated_at)
              VALUES ($1, $2, $3, $4, '[]'::jsonb, $5, $6, NOW())
              ON CONFLICT (item_id) DO UPDATE
              SET summary_ai = EXCLUDED.summary_ai,
                  tags = EXCLUDED.tags,
                  keywords = EXCLUDED.keywords,
                  score = GREATEST(item_enriched.score, EXCLUDED.score),
                  metadata = EXCLUDED.metadata,
                  updated_at = NOW()`

	_, err = s.db.ExecContext(ctx, query,
		e.ItemID,
		e.Summary,
		pq.Array(orEmpty(e.Tags)),
		pq.Array(orEmpty(e.Keywords)),
		e.Score,
		metadata,
	)
	if err != nil {
		return fmt.Errorf("upsert enrichment: %w", err)
	}
	return nil
}

// SetStatus moves an item through the lifecycle.
func (s *PostgresStore) SetStatus(ctx context.Context, itemID int64, status domain.Status) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE items SET status = $2 WHERE id = $1`, itemID, string(status)); err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	return nil
}

// FetchUnenriched selects the newest items that still need enrichment:
// no enrichment row, an empty summary, a score under the floor, or a
// status that never reached enriched.
func (s *PostgresStore) FetchUnenriched(ctx context.Context, limit int) ([]domain.Candidate, error) {
	if limit <= 0 {
		limit = 25
	}

	query, args, err := sq.
		Select("i.id", "i.title", "i.url", "i.summary_raw", "i.event_time", "i.status", "s.weight").
		From("items i").
		Join("sources s ON s.id = i.source_id").
		LeftJoin("item_enriched e ON e.item_id = i.id").
		Where(sq.Or{
			sq.Expr("e.item_id IS NULL"),
			sq.Expr("COALESCE(e.summary_ai, '') = ''"),
			sq.Expr("COALESCE(e.score, 0) < ?", s.floor),
			sq.NotEq{"i.status": string(domain.StatusEnriched)},
		}).
		OrderBy("i.created_at DESC").
		Limit(uint64(limit)).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build unenriched query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query unenriched: %w", err)
	}
	defer rows.Close()

	var out []domain.Candidate
	for rows.Next() {
		var (
			c         domain.Candidate
			title     sql.NullString
			url       sql.NullString
			summary   sql.NullString
			eventTime sql.NullTime
			status    sql.NullString
		)
		if err := rows.Scan(&c.ID, &title, &url, &summary, &eventTime, &status, &c.SourceWeight); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		c.Title = title.String
		c.URL = url.String
		c.SummaryRaw = summary.String
		c.Status = domain.Status(status.String)
		if eventTime.Valid {
			ts := eventTime.Time.UTC()
			c.EventTime = &ts
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidates: %w", err)
	}
	return out, nil
}

// RefreshDigest refreshes the materialized digest view. A schema without
// the refresh function is fine; the digest is then a plain view.
func (s *PostgresStore) RefreshDigest(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `SELECT refresh_mv_digest()`)
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "42883" { // undefined_function
		return nil
	}
	return fmt.Errorf("refresh digest: %w", err)
}

// TopDigest reads the ranked digest with optional tag-overlap and recency
// filters.
func (s *PostgresStore) TopDigest(ctx context.Context, q domain.DigestQuery) ([]domain.DigestRow, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultDigestLimit
	}

	builder := sq.
		Select("id", "kind", "title", "url", "event_time", "score", "tags", "summary_ai").
		From("mv_digest").
		OrderBy("score DESC NULLS LAST", "event_time DESC NULLS LAST").
		Limit(uint64(limit)).
		PlaceholderFormat(sq.Dollar)

	if len(q.Tags) > 0 {
		builder = builder.Where(sq.Expr("tags && ?", pq.Array(q.Tags)))
	}
	if q.SinceHours > 0 {
		builder = builder.Where(sq.Expr("event_time >= NOW() - ? * INTERVAL '1 hour'", q.SinceHours))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build digest query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query digest: %w", err)
	}
	defer rows.Close()

	var out []domain.DigestRow
	for rows.Next() {
		var (
			row       domain.DigestRow
			title     sql.NullString
			url       sql.NullString
			eventTime sql.NullTime
			score     sql.NullFloat64
			tags      pq.StringArray
			summary   sql.NullString
		)
		if err := rows.Scan(&row.ID, &row.Kind, &title, &url, &eventTime, &score, &tags, &summary); err != nil {
			return nil, fmt.Errorf("scan digest row: %w", err)
		}
		row.Title = title.String
		row.URL = url.String
		row.Score = score.Float64
		row.Tags = tags
		row.Summary = summary.String
		if eventTime.Valid {
			ts := eventTime.Time.UTC()
			row.EventTime = &ts
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate digest rows: %w", err)
	}
	return out, nil
}

// utcTime normalizes an optional event time to UTC for storage.
func utcTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func orEmptyMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
