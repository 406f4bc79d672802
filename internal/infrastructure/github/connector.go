package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"devpulse/internal/config"
	"devpulse/internal/domain"
	"devpulse/internal/source"
)

const (
	defaultBaseURL = "https://api.github.com"

	// maxRateLimitWait caps how long one page fetch sleeps waiting for
	// the quota window to reset.
	maxRateLimitWait = 10 * time.Second

	maxTransientRetries = 2
	retryBase           = 500 * time.Millisecond

	summaryLimit = 2000
)

var repoExpr = regexp.MustCompile(`^[A-Za-z0-9_.-]+/[A-Za-z0-9_.-]+$`)

// Connector turns repository releases and tags into candidate items.
// Releases are preferred; tags supplement only where no release covers
// the same tag name.
type Connector struct {
	cfg     config.GitHubConfig
	client  *http.Client
	limiter *source.Limiter
	logger  *slog.Logger
	baseURL string
}

var _ source.Connector = (*Connector)(nil)

// New wires an HTTP client and a shared request limiter.
func New(cfg config.GitHubConfig, client *http.Client, limiter *source.Limiter, log *slog.Logger) *Connector {
	if client == nil {
		client = &http.Client{Timeout: 25 * time.Second}
	}
	if cfg.PerRepoLimit <= 0 {
		cfg.PerRepoLimit = 3
	}
	if cfg.PageCap <= 0 {
		cfg.PageCap = 3
	}
	return &Connector{
		cfg:     cfg,
		client:  client,
		limiter: limiter,
		logger:  log,
		baseURL: defaultBaseURL,
	}
}

// Name identifies the connector inside the registry.
func (c *Connector) Name() string {
	return "github"
}

// Fetch walks the configured repositories. A repository that fails keeps
// its batch empty; the remaining repositories still run.
func (c *Connector) Fetch(ctx context.Context) ([]source.Batch, error) {
	batches := make([]source.Batch, 0, len(c.cfg.Repos))

	for _, repo := range c.cfg.Repos {
		repo = strings.TrimSpace(repo)
		if !repoExpr.MatchString(repo) {
			c.debug("skip malformed repo", "repo", repo)
			continue
		}

		batch := source.Batch{
			Source: domain.Source{
				Kind:   "github",
				Name:   repo,
				URL:    "https://github.com/" + repo,
				Weight: c.cfg.SourceWeight,
			},
		}

		releases, covered, err := c.fetchReleases(ctx, repo)
		if err != nil {
			c.warn("releases fetch failed", "repo", repo, "error", err)
		}
		batch.Items = append(batch.Items, releases...)

		tags, err := c.fetchTags(ctx, repo, covered)
		if err != nil {
			c.warn("tags fetch failed", "repo", repo, "error", err)
		}
		batch.Items = append(batch.Items, tags...)

		batches = append(batches, batch)
	}

	return batches, nil
}

type release struct {
	ID          int64  `json:"id"`
	TagName     string `json:"tag_name"`
	Name        string `json:"name"`
	Body        string `json:"body"`
	HTMLURL     string `json:"html_url"`
	PublishedAt string `json:"published_at"`
	CreatedAt   string `json:"created_at"`
}

type tag struct {
	Name   string `json:"name"`
	Commit struct {
		SHA string `json:"sha"`
		URL string `json:"url"`
	} `json:"commit"`
}

type commitDetail struct {
	Commit struct {
		Author struct {
			Date string `json:"date"`
		} `json:"author"`
		Committer struct {
			Date string `json:"date"`
		} `json:"committer"`
	} `json:"commit"`
}

// fetchReleases pages through the release listing. It returns the items
// plus the set of tag names already covered by a release, so the tag pass
// can skip them.
func (c *Connector) fetchReleases(ctx context.Context, repo string) ([]domain.RawItem, map[string]struct{}, error) {
	covered := map[string]struct{}{}
	var items []domain.RawItem

	perPage := c.cfg.PerRepoLimit
	for page := 1; page <= c.cfg.PageCap; page++ {
		url := fmt.Sprintf("%s/repos/%s/releases?per_page=%d&page=%d", c.baseURL, repo, perPage, page)

		var rels []release
		if err := c.getJSON(ctx, url, &rels); err != nil {
			return items, covered, err
		}

		for _, rel := range rels {
			tagName := rel.TagName
			if tagName == "" {
				tagName = "release"
			}
			if rel.TagName != "" {
				covered[rel.TagName] = struct{}{}
			}

			originID := "release:" + tagName
			if rel.ID != 0 {
				originID = "release:" + strconv.FormatInt(rel.ID, 10)
			}

			htmlURL := rel.HTMLURL
			if htmlURL == "" {
				htmlURL = fmt.Sprintf("https://github.com/%s/releases", repo)
			}

			summary := rel.Name
			if summary == "" {
				summary = rel.Body
			}

			items = append(items, domain.RawItem{
				Kind:       "github:release",
				OriginID:   originID,
				Title:      fmt.Sprintf("🔖 %s — %s", repo, tagName),
				URL:        htmlURL,
				Author:     strings.SplitN(repo, "/", 2)[0],
				SummaryRaw: truncate(summary, summaryLimit),
				EventTime:  parseTime(rel.PublishedAt, rel.CreatedAt),
			})
		}

		if len(rels) < perPage {
			break
		}
	}

	return items, covered, nil
}

// fetchTags lists tags and resolves each tag's commit timestamp with a
// secondary lookup. Tags whose name is already covered by a release are
// dropped; a failed lookup still emits the tag with no event time.
func (c *Connector) fetchTags(ctx context.Context, repo string, covered map[string]struct{}) ([]domain.RawItem, error) {
	url := fmt.Sprintf("%s/repos/%s/tags?per_page=%d", c.baseURL, repo, c.cfg.PerRepoLimit)

	var tags []tag
	if err := c.getJSON(ctx, url, &tags); err != nil {
		return nil, err
	}

	var items []domain.RawItem
	for _, t := range tags {
		if t.Name == "" {
			continue
		}
		if _, ok := covered[t.Name]; ok {
			continue
		}

		var eventTime *time.Time
		if t.Commit.URL != "" {
			var detail commitDetail
			if err := c.getJSON(ctx, t.Commit.URL, &detail); err != nil {
				c.debug("tag commit lookup failed", "repo", repo, "tag", t.Name, "error", err)
			} else {
				eventTime = parseTime(detail.Commit.Committer.Date, detail.Commit.Author.Date)
			}
		}

		items = append(items, domain.RawItem{
			Kind:         "github:tag",
			OriginID:     "tag:" + t.Name,
			Title:        fmt.Sprintf("🏷️ %s — Tag %s", repo, t.Name),
			URL:          fmt.Sprintf("https://github.com/%s/releases/tag/%s", repo, t.Name),
			SecondaryURL: fmt.Sprintf("https://github.com/%s/commit/%s", repo, t.Commit.SHA),
			Author:       strings.SplitN(repo, "/", 2)[0],
			EventTime:    eventTime,
		})
	}

	return items, nil
}

// getJSON wraps the shared fetch helper with the connector's auth
// headers, quota-reset waits and transient retries.
func (c *Connector) getJSON(ctx context.Context, url string, v any) error {
	headers := map[string]string{"Accept": "application/vnd.github+json"}
	if c.cfg.Token != "" {
		headers["Authorization"] = "Bearer " + c.cfg.Token
	}

	var lastErr error
	for attempt := 0; attempt <= maxTransientRetries; attempt++ {
		err := source.GetJSON(ctx, c.client, c.limiter, url, headers, v)
		if err == nil {
			return nil
		}
		lastErr = err

		var statusErr *source.StatusError
		if errors.As(err, &statusErr) {
			switch {
			case statusErr.Code == http.StatusForbidden && statusErr.Header.Get("X-RateLimit-Remaining") == "0":
				if waitErr := c.waitForReset(ctx, statusErr.Header.Get("X-RateLimit-Reset")); waitErr != nil {
					return waitErr
				}
				continue
			case statusErr.Code >= 500:
				// transient; fall through to backoff
			default:
				return err
			}
		}

		if attempt < maxTransientRetries {
			if backErr := source.Backoff(ctx, attempt, retryBase); backErr != nil {
				return backErr
			}
		}
	}
	return lastErr
}

// waitForReset sleeps until the quota reset time from the rate-limit
// header, capped per wait.
func (c *Connector) waitForReset(ctx context.Context, resetHeader string) error {
	wait := maxRateLimitWait
	if unix, err := strconv.ParseInt(resetHeader, 10, 64); err == nil {
		until := time.Until(time.Unix(unix, 0))
		if until < wait {
			wait = until
		}
	}
	if wait <= 0 {
		return nil
	}

	c.debug("rate limited, waiting", "wait", wait)
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func parseTime(candidates ...string) *time.Time {
	for _, s := range candidates {
		if s == "" {
			continue
		}
		if ts, err := time.Parse(time.RFC3339, s); err == nil {
			utc := ts.UTC()
			return &utc
		}
	}
	return nil
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
