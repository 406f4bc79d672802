package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const userAgent = "devpulse/1.0"

// Limiter throttles request issuance against APIs with strict quotas.
type Limiter struct {
	limiter *rate.Limiter
}

// NewLimiter builds a limiter allowing qps requests per second. A zero or
// negative qps disables throttling.
func NewLimiter(qps float64) *Limiter {
	if qps <= 0 {
		return &Limiter{}
	}
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(qps), 1)}
}

// Wait blocks until the limiter allows the next request.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil || l.limiter == nil {
		return nil
	}
	return l.limiter.Wait(ctx)
}

// GetJSON issues a rate-limited GET and decodes the JSON body into v.
// Non-2xx statuses are returned as *StatusError so callers can
// distinguish permanent failures (404) from transient ones.
func GetJSON(ctx context.Context, client *http.Client, limiter *Limiter, url string, headers map[string]string, v any) error {
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	for k, val := range headers {
		req.Header.Set(k, val)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
		return &StatusError{Code: resp.StatusCode, Header: resp.Header, URL: url}
	}

	if v == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

// StatusError carries the status code and headers of a non-2xx response.
type StatusError struct {
	Code   int
	Header http.Header
	URL    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.Code, e.URL)
}

// Backoff sleeps for an exponentially growing delay before retry attempt
// n (0-based). It returns early when the context is cancelled.
func Backoff(ctx context.Context, n int, base time.Duration) error {
	d := base << uint(n)
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
