package blogfeed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"devpulse/internal/config"
	"devpulse/internal/domain"
	"devpulse/internal/source"
)

const (
	maxFetchAttempts = 3
	retryBase        = 500 * time.Millisecond

	summaryLimit = 1200
	originWidth  = 16
)

var (
	tagExpr        = regexp.MustCompile(`<[^>]+>`)
	whitespaceExpr = regexp.MustCompile(`\s+`)
)

// Connector turns blog RSS/Atom feeds into candidate items. A feed URL
// that does not parse as a feed gets one second chance: the document is
// re-read as HTML and its head is scanned for an alternate feed link.
type Connector struct {
	cfg    config.BlogFeedConfig
	client *http.Client
	parser *gofeed.Parser
	logger *slog.Logger
	now    func() time.Time
}

var _ source.Connector = (*Connector)(nil)

// New wires an HTTP client for feed fetching.
func New(cfg config.BlogFeedConfig, client *http.Client, log *slog.Logger) *Connector {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if cfg.LookbackHours <= 0 {
		cfg.LookbackHours = 72
	}
	if cfg.MinKeep <= 0 {
		cfg.MinKeep = 3
	}
	return &Connector{
		cfg:    cfg,
		client: client,
		parser: gofeed.NewParser(),
		logger: log,
		now:    time.Now,
	}
}

// Name identifies the connector inside the registry.
func (c *Connector) Name() string {
	return "blogfeed"
}

// Fetch walks the configured feeds; a failing feed yields an empty batch
// and the run continues.
func (c *Connector) Fetch(ctx context.Context) ([]source.Batch, error) {
	policy := KeepPolicy{
		Window:      time.Duration(c.cfg.LookbackHours) * time.Hour,
		MinKeep:     c.cfg.MinKeep,
		ForceLatest: c.cfg.ForceLatest,
	}

	batches := make([]source.Batch, 0, len(c.cfg.Feeds))
	for _, feed := range c.cfg.Feeds {
		feedURL := expandHandle(feed)

		batch := source.Batch{
			Source: domain.Source{
				Kind:   "blog",
				Name:   sourceName(feedURL),
				URL:    feedURL,
				Weight: c.cfg.SourceWeight,
			},
		}

		posts, err := c.fetchPosts(ctx, feedURL)
		if err != nil {
			c.warn("feed fetch failed", "feed", feedURL, "error", err)
			batches = append(batches, batch)
			continue
		}

		sort.Slice(posts, func(i, j int) bool {
			return posts[i].eventTime.After(posts[j].eventTime)
		})

		kept := policy.Apply(posts, c.now().UTC())
		if c.cfg.PerFeedLimit > 0 && len(kept) > c.cfg.PerFeedLimit {
			kept = kept[:c.cfg.PerFeedLimit]
		}

		for _, entry := range kept {
			et := entry.eventTime
			batch.Items = append(batch.Items, domain.RawItem{
				Kind:       "blog:post",
				OriginID:   entry.originID,
				Title:      entry.title,
				URL:        entry.url,
				Author:     entry.author,
				SummaryRaw: entry.summary,
				EventTime:  &et,
			})
		}
		batches = append(batches, batch)
	}

	return batches, nil
}

type post struct {
	title     string
	url       string
	author    string
	summary   string
	eventTime time.Time
	originID  string
}

// fetchPosts fetches and parses one feed, falling back to HTML alternate
// link discovery when the document yields no entries.
func (c *Connector) fetchPosts(ctx context.Context, feedURL string) ([]post, error) {
	body, err := c.fetchBody(ctx, feedURL)
	if err != nil {
		return nil, err
	}

	parsed, parseErr := c.parser.ParseString(body)
	if parseErr == nil && len(parsed.Items) > 0 {
		return c.toPosts(parsed), nil
	}

	discovered := discoverFeedLink(feedURL, body)
	if discovered == "" {
		if parseErr != nil {
			return nil, fmt.Errorf("parse feed %s: %w", feedURL, parseErr)
		}
		return nil, nil
	}
	c.debug("discovered alternate feed", "feed", feedURL, "alternate", discovered)

	body, err = c.fetchBody(ctx, discovered)
	if err != nil {
		return nil, err
	}
	parsed, parseErr = c.parser.ParseString(body)
	if parseErr != nil {
		return nil, fmt.Errorf("parse discovered feed %s: %w", discovered, parseErr)
	}
	return c.toPosts(parsed), nil
}

// fetchBody GETs a URL with bounded exponential backoff on transient
// failures.
func (c *Connector) fetchBody(ctx context.Context, rawURL string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < maxFetchAttempts; attempt++ {
		if attempt > 0 {
			if err := source.Backoff(ctx, attempt-1, retryBase); err != nil {
				return "", err
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return "", fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("User-Agent", "devpulse/1.0")
		req.Header.Set("Accept", "application/rss+xml, application/xml;q=0.9, */*;q=0.8")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case readErr != nil:
			lastErr = readErr
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("feed %s returned %s", rawURL, resp.Status)
		case resp.StatusCode != http.StatusOK:
			return "", fmt.Errorf("feed %s returned %s", rawURL, resp.Status)
		default:
			return string(data), nil
		}
	}
	return "", lastErr
}

func (c *Connector) toPosts(feed *gofeed.Feed) []post {
	out := make([]post, 0, len(feed.Items))
	for _, entry := range feed.Items {
		title := cleanText(entry.Title)
		link := normalizeURL(entry.Link)
		if title == "" || link == "" {
			continue
		}

		resolved, parsed := resolveEntryTime(entry)
		when := resolved
		if !parsed {
			when = c.now().UTC()
		}

		out = append(out, post{
			title:     title,
			url:       link,
			author:    entryAuthor(entry),
			summary:   truncate(cleanText(firstNonEmpty(entry.Description, entry.Content)), summaryLimit),
			eventTime: when,
			originID:  originID(link, resolved, parsed),
		})
	}
	return out
}

// resolveEntryTime tries, in order: the structured published time, the
// structured updated time, and the textual published/updated/created
// fields parsed as RFC-2822 dates.
func resolveEntryTime(entry *gofeed.Item) (time.Time, bool) {
	if entry.PublishedParsed != nil {
		return entry.PublishedParsed.UTC(), true
	}
	if entry.UpdatedParsed != nil {
		return entry.UpdatedParsed.UTC(), true
	}

	textual := []string{entry.Published, entry.Updated}
	if created, ok := entry.Custom["created"]; ok {
		textual = append(textual, created)
	}
	for _, raw := range textual {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		for _, layout := range []string{time.RFC1123Z, time.RFC1123} {
			if ts, err := time.Parse(layout, raw); err == nil {
				return ts.UTC(), true
			}
		}
	}
	return time.Time{}, false
}

// originID derives the stable identity token for a feed entry: a
// fixed-width hash of the normalized URL plus the resolved timestamp.
// Entries without a parseable timestamp hash a constant marker instead,
// so the id never depends on the discovery time.
func originID(normalized string, when time.Time, parsed bool) string {
	stamp := "na"
	if parsed {
		stamp = when.UTC().Format("20060102150405")
	}
	sum := sha256.Sum256([]byte(normalized + "|" + stamp))
	return "post:" + hex.EncodeToString(sum[:])[:originWidth]
}

// normalizeURL strips the query string, fragment and trailing slash.
func normalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		raw = raw[:i]
	}
	return strings.TrimSuffix(raw, "/")
}

// discoverFeedLink scans an HTML head for an alternate RSS/Atom link and
// resolves it against the page URL.
func discoverFeedLink(pageURL, body string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return ""
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}

	var found string
	doc.Find(`link[rel="alternate"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		linkType, _ := s.Attr("type")
		if !strings.Contains(linkType, "rss+xml") && !strings.Contains(linkType, "atom+xml") {
			return true
		}
		href, ok := s.Attr("href")
		if !ok || href == "" {
			return true
		}
		ref, err := url.Parse(href)
		if err != nil {
			return true
		}
		found = base.ResolveReference(ref).String()
		return false
	})
	return found
}

// expandHandle turns a bare publication handle into its feed URL;
// explicit URLs pass through.
func expandHandle(feed string) string {
	if strings.HasPrefix(feed, "http://") || strings.HasPrefix(feed, "https://") {
		return feed
	}
	handle := strings.TrimPrefix(strings.Trim(feed, "/"), "@")
	return "https://medium.com/feed/@" + handle
}

func sourceName(feedURL string) string {
	if u, err := url.Parse(feedURL); err == nil && u.Host != "" {
		return u.Host
	}
	return feedURL
}

func entryAuthor(entry *gofeed.Item) string {
	if entry.Author != nil && entry.Author.Name != "" {
		return entry.Author.Name
	}
	if len(entry.Authors) > 0 && entry.Authors[0] != nil {
		return entry.Authors[0].Name
	}
	return ""
}

// cleanText unescapes entities, strips markup and collapses whitespace.
func cleanText(s string) string {
	s = html.UnescapeString(s)
	s = tagExpr.ReplaceAllString(s, " ")
	return strings.TrimSpace(whitespaceExpr.ReplaceAllString(s, " "))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
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
