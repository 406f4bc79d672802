package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"devpulse/internal/domain"
	"devpulse/internal/ports"
)

const defaultEndpoint = "https://generativelanguage.googleapis.com/v1beta"

// ErrNotConfigured marks a summarizer without an API key; callers treat
// it like any other unavailability and fall back to the heuristic.
var ErrNotConfigured = errors.New("summarizer not configured")

// jsonBlockExpr pulls the first JSON object out of a possibly fenced or
// chatty model response.
var jsonBlockExpr = regexp.MustCompile(`(?s)\{.*\}`)

// GeminiClient condenses an item into summary, tags, keywords and a raw
// relevance score via the generateContent API.
type GeminiClient struct {
	endpoint string
	apiKey   string
	model    string
	http     *http.Client
}

var _ ports.Summarizer = (*GeminiClient)(nil)

// NewGeminiClient creates a reusable HTTP client.
func NewGeminiClient(apiKey, model string) *GeminiClient {
	if model == "" {
		model = "gemini-1.5-flash"
	}
	return &GeminiClient{
		endpoint: defaultEndpoint,
		apiKey:   apiKey,
		model:    model,
		http:     &http.Client{Timeout: 40 * time.Second},
	}
}

const promptTemplate = `You are an AI technical analyst.
Condense and categorize the content into structured JSON.

Input:
Title: %s
Text: %s

Respond with a single JSON object and nothing else:
- "summary": max 80 words, technical, signal-focused
- "tags": 5-8 broad research/tech categories (LLM, Vision, CUDA, Quantization, KD, Agents, Systems, Infra)
- "keywords": 8-12 concise technical tokens
- "score": relevance for an applied-ML audience, 0.0 to 1.0`

type generatePart struct {
	Text string `json:"text"`
}

type generateContent struct {
	Parts []generatePart `json:"parts"`
}

type generateRequest struct {
	Contents []generateContent `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content generateContent `json:"content"`
	} `json:"candidates"`
}

// Summarize calls the model and parses its structured answer. Any
// transport or parse failure is surfaced; the caller substitutes the
// heuristic.
func (c *GeminiClient) Summarize(ctx context.Context, title, raw string) (domain.Summary, error) {
	if c.apiKey == "" {
		return domain.Summary{}, ErrNotConfigured
	}

	req := generateRequest{Contents: []generateContent{{
		Parts: []generatePart{{Text: fmt.Sprintf(promptTemplate, title, raw)}},
	}}}

	body, err := json.Marshal(req)
	if err != nil {
		return domain.Summary{}, fmt.Errorf("marshal request: %w", err)
	}

	target := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.endpoint, c.model, c.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return domain.Summary{}, fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return domain.Summary{}, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.Summary{}, fmt.Errorf("unexpected status %s", resp.Status)
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.Summary{}, fmt.Errorf("decode response: %w", err)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return domain.Summary{}, errors.New("empty model response")
	}

	return parseAnswer(out.Candidates[0].Content.Parts[0].Text)
}

// parseAnswer extracts the JSON object from the model text and maps it
// onto a Summary. Tags are lower-cased and deduplicated preserving
// order.
func parseAnswer(text string) (domain.Summary, error) {
	block := jsonBlockExpr.FindString(text)
	if block == "" {
		return domain.Summary{}, errors.New("no JSON object in model response")
	}

	var parsed struct {
		Summary  string   `json:"summary"`
		Tags     []string `json:"tags"`
		Keywords []string `json:"keywords"`
		Score    float64  `json:"score"`
	}
	if err := json.Unmarshal([]byte(block), &parsed); err != nil {
		return domain.Summary{}, fmt.Errorf("parse model JSON: %w", err)
	}
	if strings.TrimSpace(parsed.Summary) == "" {
		return domain.Summary{}, errors.New("model returned empty summary")
	}

	score := parsed.Score
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}

	return domain.Summary{
		Text:     strings.TrimSpace(parsed.Summary),
		Tags:     normalizeTags(parsed.Tags),
		Keywords: parsed.Keywords,
		Score:    score,
	}, nil
}

func normalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
