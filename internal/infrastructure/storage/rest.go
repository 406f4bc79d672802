package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"devpulse/internal/domain"
	"devpulse/internal/ports"
)

// restWindow bounds the recent-items read used for client-side
// unenriched filtering.
const restWindow = 200

// RestStore talks to a PostgREST endpoint instead of a direct database
// connection. Upserts use merge-duplicates with an explicit conflict
// target; filters that are awkward over REST run client-side.
type RestStore struct {
	endpoint string
	apiKey   string
	floor    float64
	http     *http.Client
}

var _ ports.Store = (*RestStore)(nil)

// NewRestStore creates a reusable REST client.
func NewRestStore(endpoint, apiKey string, scoreFloor float64) *RestStore {
	if scoreFloor <= 0 {
		scoreFloor = 0.80
	}
	return &RestStore{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		apiKey:   apiKey,
		floor:    scoreFloor,
		http:     &http.Client{Timeout: 15 * time.Second},
	}
}

// UpsertSource inserts or refreshes a source by (kind, url) and returns
// its id, reading it back when the upsert response omits it.
func (s *RestStore) UpsertSource(ctx context.Context, kind, name, srcURL string, weight float64) (int64, error) {
	payload := []map[string]any{{
		"kind":   kind,
		"name":   name,
		"url":    srcURL,
		"weight": weight,
	}}

	var rows []struct {
		ID int64 `json:"id"`
	}
	if err := s.upsert(ctx, "sources", "kind,url", payload, &rows); err != nil {
		return 0, fmt.Errorf("upsert source: %w", err)
	}
	if len(rows) > 0 && rows[0].ID != 0 {
		return rows[0].ID, nil
	}

	params := url.Values{
		"select": {"id"},
		"kind":   {"eq." + kind},
		"url":    {"eq." + srcURL},
		"limit":  {"1"},
	}
	if err := s.get(ctx, "sources", params, &rows); err != nil {
		return 0, fmt.Errorf("read source id: %w", err)
	}
	if len(rows) == 0 {
		return 0, fmt.Errorf("source %s %s not found after upsert", kind, srcURL)
	}
	return rows[0].ID, nil
}

// UpsertItem inserts or refreshes an item by (kind, origin_id) and
// returns the stable id.
func (s *RestStore) UpsertItem(ctx context.Context, sourceID int64, raw domain.RawItem) (int64, error) {
	payload := []map[string]any{{
		"source_id":     sourceID,
		"kind":          raw.Kind,
		"origin_id":     raw.OriginID,
		"title":         raw.Title,
		"url":           raw.URL,
		"secondary_url": raw.SecondaryURL,
		"author":        raw.Author,
		"summary_raw":   raw.SummaryRaw,
		"event_time":    utcISO(raw.EventTime),
	}}

	var rows []struct {
		ID int64 `json:"id"`
	}
	if err := s.upsert(ctx, "items", "kind,origin_id", payload, &rows); err != nil {
		return 0, fmt.Errorf("upsert item: %w", err)
	}
	if len(rows) > 0 && rows[0].ID != 0 {
		return rows[0].ID, nil
	}

	params := url.Values{
		"select":    {"id"},
		"kind":      {"eq." + raw.Kind},
		"origin_id": {"eq." + raw.OriginID},
		"limit":     {"1"},
	}
	if err := s.get(ctx, "items", params, &rows); err != nil {
		return 0, fmt.Errorf("read item id: %w", err)
	}
	if len(rows) == 0 {
		return 0, fmt.Errorf("item %s %s not found after upsert", raw.Kind, raw.OriginID)
	}
	return rows[0].ID, nil
}

// UpsertEnrichment replaces the enrichment record by item_id. PostgREST
// merge-duplicates overwrites columns, so the never-decreasing score
// rule runs client-side: read the stored score first and keep the max.
func (s *RestStore) UpsertEnrichment(ctx context.Context, e domain.Enrichment) error {
	var existing []struct {
		Score float64 `json:"score"`
	}
	params := url.Values{
		"select":  {"score"},
		"item_id": {"eq." + strconv.FormatInt(e.ItemID, 10)},
		"limit":   {"1"},
	}
	if err := s.get(ctx, "item_enriched", params, &existing); err == nil && len(existing) > 0 {
		if existing[0].Score > e.Score {
			e.Score = existing[0].Score
		}
	}

	payload := []map[string]any{{
		"item_id":    e.ItemID,
		"summary_ai": e.Summary,
		"tags":       orEmpty(e.Tags),
		"keywords":   orEmpty(e.Keywords),
		"embedding":  []float64{},
		"score":      e.Score,
		"metadata":   orEmptyMap(e.Metadata),
		"updated_at": time.Now().UTC().Format(time.RFC3339),
	}}
	if err := s.upsert(ctx, "item_enriched", "item_id", payload, nil); err != nil {
		return fmt.Errorf("upsert enrichment: %w", err)
	}
	return nil
}

// SetStatus moves an item through the lifecycle.
func (s *RestStore) SetStatus(ctx context.Context, itemID int64, status domain.Status) error {
	params := url.Values{"id": {"eq." + strconv.FormatInt(itemID, 10)}}
	body, err := json.Marshal(map[string]string{"status": string(status)})
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}

	req, err := s.newRequest(ctx, http.MethodPatch, "items", params, body)
	if err != nil {
		return err
	}
	if err := s.do(req, nil); err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	return nil
}

type restItemRow struct {
	ID         int64   `json:"id"`
	Title      string  `json:"title"`
	URL        string  `json:"url"`
	SummaryRaw string  `json:"summary_raw"`
	EventTime  *string `json:"event_time"`
	Status     string  `json:"status"`
	Enriched   *struct {
		SummaryAI *string  `json:"summary_ai"`
		Score     *float64 `json:"score"`
	} `json:"item_enriched"`
	Source *struct {
		Weight float64 `json:"weight"`
	} `json:"sources"`
}

// FetchUnenriched pulls a recent window with the enrichment embedded and
// filters the gaps client-side.
func (s *RestStore) FetchUnenriched(ctx context.Context, limit int) ([]domain.Candidate, error) {
	if limit <= 0 {
		limit = 25
	}

	params := url.Values{
		"select": {"id,title,url,summary_raw,event_time,status,item_enriched!left(summary_ai,score),sources(weight)"},
		"order":  {"created_at.desc"},
		"limit":  {strconv.Itoa(restWindow)},
	}

	var rows []restItemRow
	if err := s.get(ctx, "items", params, &rows); err != nil {
		return nil, fmt.Errorf("query unenriched: %w", err)
	}

	out := make([]domain.Candidate, 0, limit)
	for _, r := range rows {
		if !s.needsEnrichment(r) {
			continue
		}

		c := domain.Candidate{
			ID:           r.ID,
			Title:        r.Title,
			URL:          r.URL,
			SummaryRaw:   r.SummaryRaw,
			Status:       domain.Status(r.Status),
			SourceWeight: 1.0,
		}
		if r.Source != nil && r.Source.Weight > 0 {
			c.SourceWeight = r.Source.Weight
		}
		if r.EventTime != nil {
			if ts, err := time.Parse(time.RFC3339, *r.EventTime); err == nil {
				utc := ts.UTC()
				c.EventTime = &utc
			}
		}

		out = append(out, c)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *RestStore) needsEnrichment(r restItemRow) bool {
	if r.Enriched == nil {
		return true
	}
	if r.Enriched.SummaryAI == nil || strings.TrimSpace(*r.Enriched.SummaryAI) == "" {
		return true
	}
	if r.Enriched.Score == nil || *r.Enriched.Score < s.floor {
		return true
	}
	return r.Status != string(domain.StatusEnriched)
}

// RefreshDigest calls the optional refresh RPC; a schema without it is
// fine.
func (s *RestStore) RefreshDigest(ctx context.Context) error {
	req, err := s.newRequest(ctx, http.MethodPost, "rpc/refresh_mv_digest", nil, []byte("{}"))
	if err != nil {
		return err
	}
	_ = s.do(req, nil)
	return nil
}

type restDigestRow struct {
	ID        int64    `json:"id"`
	Kind      string   `json:"kind"`
	Title     string   `json:"title"`
	URL       string   `json:"url"`
	EventTime *string  `json:"event_time"`
	Score     float64  `json:"score"`
	Tags      []string `json:"tags"`
	SummaryAI string   `json:"summary_ai"`
}

// TopDigest reads the ranked digest view with optional tag-overlap and
// recency filters.
func (s *RestStore) TopDigest(ctx context.Context, q domain.DigestQuery) ([]domain.DigestRow, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultDigestLimit
	}

	params := url.Values{
		"select": {"id,kind,title,url,event_time,score,tags,summary_ai"},
		"order":  {"score.desc,event_time.desc"},
		"limit":  {strconv.Itoa(limit)},
	}
	if len(q.Tags) > 0 {
		params.Set("tags", "ov.{"+strings.Join(q.Tags, ",")+"}")
	}
	if q.SinceHours > 0 {
		cutoff := time.Now().UTC().Add(-time.Duration(q.SinceHours) * time.Hour)
		params.Set("event_time", "gte."+cutoff.Format(time.RFC3339))
	}

	var rows []restDigestRow
	if err := s.get(ctx, "v_digest", params, &rows); err != nil {
		return nil, fmt.Errorf("query digest: %w", err)
	}

	out := make([]domain.DigestRow, 0, len(rows))
	for _, r := range rows {
		row := domain.DigestRow{
			ID:      r.ID,
			Kind:    r.Kind,
			Title:   r.Title,
			URL:     r.URL,
			Score:   r.Score,
			Tags:    r.Tags,
			Summary: r.SummaryAI,
		}
		if r.EventTime != nil {
			if ts, err := time.Parse(time.RFC3339, *r.EventTime); err == nil {
				utc := ts.UTC()
				row.EventTime = &utc
			}
		}
		out = append(out, row)
	}
	return out, nil
}

// upsert POSTs rows with merge-duplicates resolution on the given
// conflict target.
func (s *RestStore) upsert(ctx context.Context, table, onConflict string, payload any, v any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	params := url.Values{"on_conflict": {onConflict}}
	req, err := s.newRequest(ctx, http.MethodPost, table, params, body)
	if err != nil {
		return err
	}

	prefer := "resolution=merge-duplicates"
	if v != nil {
		prefer += ",return=representation"
	}
	req.Header.Set("Prefer", prefer)

	return s.do(req, v)
}

func (s *RestStore) get(ctx context.Context, table string, params url.Values, v any) error {
	req, err := s.newRequest(ctx, http.MethodGet, table, params, nil)
	if err != nil {
		return err
	}
	return s.do(req, v)
}

func (s *RestStore) newRequest(ctx context.Context, method, path string, params url.Values, body []byte) (*http.Request, error) {
	target := s.endpoint + "/" + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("apikey", s.apiKey)
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (s *RestStore) do(req *http.Request, v any) error {
	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}

	if v == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// utcISO renders an optional time as UTC RFC3339 or JSON null.
func utcISO(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
