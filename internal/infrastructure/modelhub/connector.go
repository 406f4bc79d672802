package modelhub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"devpulse/internal/config"
	"devpulse/internal/domain"
	"devpulse/internal/source"
)

const defaultBaseURL = "https://huggingface.co"

// Connector turns Hugging Face hub models and datasets into candidate
// items. Two selection modes exist per resource type: an explicit
// allow-list of exact ids, or a recency scan over the global listing
// sorted by last-modified.
type Connector struct {
	cfg     config.ModelHubConfig
	client  *http.Client
	limiter *source.Limiter
	logger  *slog.Logger
	baseURL string
	now     func() time.Time
}

var _ source.Connector = (*Connector)(nil)

// New wires an HTTP client and a shared request limiter.
func New(cfg config.ModelHubConfig, client *http.Client, limiter *source.Limiter, log *slog.Logger) *Connector {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.LookbackHours <= 0 {
		cfg.LookbackHours = 72
	}
	if cfg.ScanLimit <= 0 {
		cfg.ScanLimit = 200
	}
	return &Connector{
		cfg:     cfg,
		client:  client,
		limiter: limiter,
		logger:  log,
		baseURL: defaultBaseURL,
		now:     time.Now,
	}
}

// Name identifies the connector inside the registry.
func (c *Connector) Name() string {
	return "modelhub"
}

// Fetch returns one batch for models and one for datasets. Either
// resource type failing leaves its batch empty without affecting the
// other.
func (c *Connector) Fetch(ctx context.Context) ([]source.Batch, error) {
	modelBatch := source.Batch{
		Source: domain.Source{
			Kind:   "hf",
			Name:   "huggingface-models",
			URL:    "https://huggingface.co/models",
			Weight: c.cfg.SourceWeight,
		},
	}
	datasetBatch := source.Batch{
		Source: domain.Source{
			Kind:   "hf",
			Name:   "huggingface-datasets",
			URL:    "https://huggingface.co/datasets",
			Weight: c.cfg.SourceWeight,
		},
	}

	models, err := c.resources(ctx, "models", c.cfg.Models)
	if err != nil {
		c.warn("model listing failed", "error", err)
	}
	for _, m := range models {
		id := m.id()
		if id == "" {
			continue
		}
		modelBatch.Items = append(modelBatch.Items, domain.RawItem{
			Kind:       "hf:model",
			OriginID:   "model:" + id,
			Title:      fmt.Sprintf("🤗 HF Model — %s", id),
			URL:        "https://huggingface.co/" + id,
			SummaryRaw: m.PipelineTag,
			EventTime:  m.lastModified(),
		})
	}

	datasets, err := c.resources(ctx, "datasets", c.cfg.Datasets)
	if err != nil {
		c.warn("dataset listing failed", "error", err)
	}
	for _, d := range datasets {
		id := d.id()
		if id == "" {
			continue
		}
		datasetBatch.Items = append(datasetBatch.Items, domain.RawItem{
			Kind:       "hf:dataset",
			OriginID:   "dataset:" + id,
			Title:      fmt.Sprintf("📚 HF Dataset — %s", id),
			URL:        "https://huggingface.co/datasets/" + id,
			SummaryRaw: d.CardData.Language,
			EventTime:  d.lastModified(),
		})
	}

	return []source.Batch{modelBatch, datasetBatch}, nil
}

type resource struct {
	ID           string `json:"id"`
	ModelID      string `json:"modelId"`
	PipelineTag  string `json:"pipeline_tag"`
	LastModified string `json:"lastModified"`
	CardData     struct {
		Language string `json:"language"`
	} `json:"cardData"`
}

func (r resource) id() string {
	if r.ModelID != "" {
		return r.ModelID
	}
	return r.ID
}

func (r resource) lastModified() *time.Time {
	if r.LastModified == "" {
		return nil
	}
	ts, err := time.Parse(time.RFC3339, r.LastModified)
	if err != nil {
		return nil
	}
	utc := ts.UTC()
	return &utc
}

// resources picks the selection mode: allow-list when ids are configured,
// recency scan otherwise.
func (c *Connector) resources(ctx context.Context, kind string, allowIDs []string) ([]resource, error) {
	if len(allowIDs) > 0 {
		return c.byIDs(ctx, kind, allowIDs)
	}
	return c.recent(ctx, kind)
}

// byIDs fetches each allow-listed resource individually, tolerating
// individual 404s (deleted or private resources).
func (c *Connector) byIDs(ctx context.Context, kind string, ids []string) ([]resource, error) {
	out := make([]resource, 0, len(ids))
	for _, id := range ids {
		var res resource
		err := source.GetJSON(ctx, c.client, c.limiter,
			fmt.Sprintf("%s/api/%s/%s", c.baseURL, kind, id), c.headers(), &res)
		if err != nil {
			var statusErr *source.StatusError
			if errors.As(err, &statusErr) {
				c.debug("resource skipped", "kind", kind, "id", id, "status", statusErr.Code)
				continue
			}
			return out, err
		}
		out = append(out, res)
	}
	return out, nil
}

// recent scans the global listing sorted by last-modified and filters to
// the lookback window client-side.
func (c *Connector) recent(ctx context.Context, kind string) ([]resource, error) {
	listURL := fmt.Sprintf("%s/api/%s?%s", c.baseURL, kind, url.Values{
		"sort":      {"lastModified"},
		"direction": {"-1"},
		"limit":     {fmt.Sprint(c.cfg.ScanLimit)},
	}.Encode())

	var listing []resource
	if err := source.GetJSON(ctx, c.client, c.limiter, listURL, c.headers(), &listing); err != nil {
		return nil, err
	}

	cutoff := c.now().UTC().Add(-time.Duration(c.cfg.LookbackHours) * time.Hour)
	out := make([]resource, 0, len(listing))
	for _, res := range listing {
		ts := res.lastModified()
		if ts != nil && !ts.Before(cutoff) {
			out = append(out, res)
		}
	}
	return out, nil
}

func (c *Connector) headers() map[string]string {
	if c.cfg.Token == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + c.cfg.Token}
}

func (c *Connector) debug(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}

func (c *Connector) warn(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}
