package modelhub

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"devpulse/internal/config"
	"devpulse/internal/source"
)

func newTestConnector(t *testing.T, handler http.Handler, cfg config.ModelHubConfig) *Connector {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c := New(cfg, server.Client(), source.NewLimiter(0), nil)
	c.baseURL = server.URL
	return c
}

func TestFetchAllowListToleratesMissingResources(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/models/meta/llama", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"meta/llama","pipeline_tag":"text-generation","lastModified":"2025-11-03T12:00:00Z"}`)
	})
	mux.HandleFunc("/api/models/gone/model", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/api/datasets", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[]`)
	})

	c := newTestConnector(t, mux, config.ModelHubConfig{
		Models:       []string{"meta/llama", "gone/model"},
		SourceWeight: 1.0,
	})

	batches, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if len(batches) != 2 {
		t.Fatalf("expected model + dataset batches, got %d", len(batches))
	}

	models := batches[0]
	if models.Source.Name != "huggingface-models" {
		t.Fatalf("unexpected source: %+v", models.Source)
	}
	if len(models.Items) != 1 {
		t.Fatalf("expected the 404 to be skipped, got %d items", len(models.Items))
	}
	item := models.Items[0]
	if item.Kind != "hf:model" || item.OriginID != "model:meta/llama" {
		t.Fatalf("unexpected identity: %s %s", item.Kind, item.OriginID)
	}
	if item.SummaryRaw != "text-generation" {
		t.Fatalf("unexpected summary: %s", item.SummaryRaw)
	}
}

func TestFetchRecencyScanFiltersLookbackWindow(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 11, 10, 0, 0, 0, 0, time.UTC)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/models", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("sort") != "lastModified" {
			t.Errorf("expected sort=lastModified, got %s", r.URL.RawQuery)
		}
		fmt.Fprint(w, `[
			{"id":"fresh/model","lastModified":"2025-11-09T00:00:00Z"},
			{"id":"stale/model","lastModified":"2025-10-01T00:00:00Z"},
			{"id":"undated/model"}
		]`)
	})
	mux.HandleFunc("/api/datasets", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"id":"fresh/dataset","lastModified":"2025-11-09T06:00:00Z","cardData":{"language":"en"}}]`)
	})

	c := newTestConnector(t, mux, config.ModelHubConfig{LookbackHours: 72})
	c.now = func() time.Time { return now }

	batches, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}

	models := batches[0].Items
	if len(models) != 1 || models[0].OriginID != "model:fresh/model" {
		t.Fatalf("expected only the fresh model, got %+v", models)
	}

	datasets := batches[1].Items
	if len(datasets) != 1 || datasets[0].OriginID != "dataset:fresh/dataset" {
		t.Fatalf("expected only the fresh dataset, got %+v", datasets)
	}
	if datasets[0].SummaryRaw != "en" {
		t.Fatalf("unexpected dataset summary: %s", datasets[0].SummaryRaw)
	}
}
