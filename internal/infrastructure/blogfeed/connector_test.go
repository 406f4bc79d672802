package blogfeed

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"devpulse/internal/config"
)

func newTestConnector(t *testing.T, handler http.Handler, cfg config.BlogFeedConfig) (*Connector, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c := New(cfg, server.Client(), nil)
	return c, server
}

const rssTemplate = `<?xml version="1.0"?>
<rss version="2.0"><channel><title>Acme Engineering</title>
%s
</channel></rss>`

func TestFetchParsesFeedEntries(t *testing.T) {
	t.Parallel()

	items := `<item>
		<title>Faster &amp; Cheaper Inference</title>
		<link>https://blog.acme.dev/posts/inference?utm_source=rss#top</link>
		<pubDate>Sat, 08 Nov 2025 10:00:00 +0000</pubDate>
		<description>&lt;p&gt;We  cut   latency&lt;/p&gt;</description>
	</item>`

	mux := http.NewServeMux()
	mux.HandleFunc("/feed", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, rssTemplate, items)
	})

	c, server := newTestConnector(t, mux, config.BlogFeedConfig{LookbackHours: 24 * 365, SourceWeight: 0.8})
	c.cfg.Feeds = []string{server.URL + "/feed"}
	c.now = func() time.Time { return time.Date(2025, 11, 10, 0, 0, 0, 0, time.UTC) }

	batches, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if len(batches) != 1 {
		t.Fatalf("expected 1 batch, got %d", len(batches))
	}
	if batches[0].Source.Kind != "blog" {
		t.Fatalf("unexpected source: %+v", batches[0].Source)
	}

	got := batches[0].Items
	if len(got) != 1 {
		t.Fatalf("expected 1 item, got %d", len(got))
	}
	item := got[0]
	if item.Kind != "blog:post" {
		t.Fatalf("unexpected kind: %s", item.Kind)
	}
	if item.Title != "Faster & Cheaper Inference" {
		t.Fatalf("title not cleaned: %q", item.Title)
	}
	if item.URL != "https://blog.acme.dev/posts/inference" {
		t.Fatalf("url not normalized: %q", item.URL)
	}
	if item.SummaryRaw != "We cut latency" {
		t.Fatalf("summary not cleaned: %q", item.SummaryRaw)
	}
	if item.EventTime == nil || !item.EventTime.Equal(time.Date(2025, 11, 8, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected event time: %v", item.EventTime)
	}
}

func TestOriginIDStableAcrossRuns(t *testing.T) {
	t.Parallel()

	when := time.Date(2025, 11, 8, 10, 0, 0, 0, time.UTC)
	a := originID("https://blog.acme.dev/posts/inference", when, true)
	b := originID("https://blog.acme.dev/posts/inference", when, true)
	if a != b {
		t.Fatalf("dated origin id not stable: %s vs %s", a, b)
	}
	if !strings.HasPrefix(a, "post:") || len(a) != len("post:")+16 {
		t.Fatalf("unexpected origin id shape: %s", a)
	}

	// Undated entries hash a constant marker so the id does not drift
	// with the discovery time.
	c := originID("https://blog.acme.dev/posts/undated", time.Now(), false)
	time.Sleep(5 * time.Millisecond)
	d := originID("https://blog.acme.dev/posts/undated", time.Now(), false)
	if c != d {
		t.Fatalf("undated origin id not stable: %s vs %s", c, d)
	}
}

func TestFetchUndatedEntryFallsBackToDiscoveryTime(t *testing.T) {
	t.Parallel()

	items := `<item>
		<title>No Timestamp Here</title>
		<link>https://blog.acme.dev/posts/undated</link>
	</item>`

	mux := http.NewServeMux()
	mux.HandleFunc("/feed", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, rssTemplate, items)
	})

	now := time.Date(2025, 11, 10, 12, 0, 0, 0, time.UTC)
	c, server := newTestConnector(t, mux, config.BlogFeedConfig{LookbackHours: 72})
	c.cfg.Feeds = []string{server.URL + "/feed"}
	c.now = func() time.Time { return now }

	batches, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	got := batches[0].Items
	if len(got) != 1 {
		t.Fatalf("expected 1 item, got %d", len(got))
	}
	if got[0].EventTime == nil || !got[0].EventTime.Equal(now) {
		t.Fatalf("expected discovery-time fallback, got %v", got[0].EventTime)
	}
}

func TestFetchDiscoversAlternateFeedFromHTML(t *testing.T) {
	t.Parallel()

	items := `<item>
		<title>Discovered Post</title>
		<link>https://blog.acme.dev/posts/discovered</link>
		<pubDate>Sun, 09 Nov 2025 08:00:00 +0000</pubDate>
	</item>`

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head>
			<link rel="alternate" type="text/css" href="/style.css"/>
			<link rel="alternate" type="application/rss+xml" href="/rss.xml"/>
		</head><body>hi</body></html>`)
	})
	mux.HandleFunc("/rss.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, rssTemplate, items)
	})

	c, server := newTestConnector(t, mux, config.BlogFeedConfig{LookbackHours: 24 * 365})
	c.cfg.Feeds = []string{server.URL + "/"}
	c.now = func() time.Time { return time.Date(2025, 11, 10, 0, 0, 0, 0, time.UTC) }

	batches, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	got := batches[0].Items
	if len(got) != 1 || got[0].Title != "Discovered Post" {
		t.Fatalf("expected discovered post, got %+v", got)
	}
}

func TestFetchContainsFeedFailure(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/bad", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	})
	mux.HandleFunc("/good", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, rssTemplate, `<item>
			<title>Still Here</title>
			<link>https://blog.acme.dev/posts/alive</link>
			<pubDate>Sun, 09 Nov 2025 08:00:00 +0000</pubDate>
		</item>`)
	})

	c, server := newTestConnector(t, mux, config.BlogFeedConfig{LookbackHours: 24 * 365})
	c.cfg.Feeds = []string{server.URL + "/bad", server.URL + "/good"}
	c.now = func() time.Time { return time.Date(2025, 11, 10, 0, 0, 0, 0, time.UTC) }

	batches, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if len(batches) != 2 {
		t.Fatalf("expected a batch per feed, got %d", len(batches))
	}
	if len(batches[0].Items) != 0 {
		t.Fatalf("failing feed should yield empty batch, got %+v", batches[0].Items)
	}
	if len(batches[1].Items) != 1 {
		t.Fatalf("healthy feed lost: %+v", batches[1].Items)
	}
}

func TestExpandHandle(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"https://blog.acme.dev/feed": "https://blog.acme.dev/feed",
		"@acme-eng":                  "https://medium.com/feed/@acme-eng",
		"acme-eng":                   "https://medium.com/feed/@acme-eng",
	}
	for in, want := range cases {
		if got := expandHandle(in); got != want {
			t.Fatalf("expandHandle(%q) = %q, want %q", in, got, want)
		}
	}
}
