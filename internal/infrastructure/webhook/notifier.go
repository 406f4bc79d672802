package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"devpulse/internal/domain"
	"devpulse/internal/ports"
)

// Notifier posts high-signal alerts to an automation webhook, signing
// the exact request body with a shared secret.
type Notifier struct {
	url    string
	secret string
	http   *http.Client
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier creates a reusable HTTP client with a short timeout;
// alerting must never stall the pipeline.
func NewNotifier(url, secret string) *Notifier {
	return &Notifier{
		url:    url,
		secret: secret,
		http:   &http.Client{Timeout: 5 * time.Second},
	}
}

// NotifySignal delivers one alert. The signature covers the compact JSON
// body byte-for-byte so the receiver can verify it before parsing.
func (n *Notifier) NotifySignal(ctx context.Context, alert domain.Alert) error {
	if n.url == "" {
		return nil
	}

	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-devpulse-key", n.secret)
	req.Header.Set("x-devpulse-signature", Sign(n.secret, body))

	resp, err := n.http.Do(req)
	if err != nil {
		return fmt.Errorf("post alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("alert endpoint returned %s", resp.Status)
	}
	return nil
}

// Sign computes the hex HMAC-SHA256 of a payload under the shared
// secret.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether a signature matches a payload, in constant
// time.
func Verify(secret string, payload []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, payload)), []byte(signature))
}
