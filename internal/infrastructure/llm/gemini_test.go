package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSummarizeParsesFencedJSON(t *testing.T) {
	t.Parallel()

	answer := "```json\n{\"summary\":\"A faster kernel.\",\"tags\":[\"CUDA\",\"cuda\",\" Systems \"],\"keywords\":[\"kernel\",\"fp8\"],\"score\":0.87}\n```"

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "test-key" {
			t.Errorf("api key not forwarded: %s", r.URL.RawQuery)
		}
		fmt.Fprintf(w, `{"candidates":[{"content":{"parts":[{"text":%q}]}}]}`, answer)
	}))
	defer server.Close()

	c := NewGeminiClient("test-key", "gemini-1.5-flash")
	c.endpoint = server.URL
	c.http = server.Client()

	got, err := c.Summarize(context.Background(), "Kernel release", "raw notes")
	if err != nil {
		t.Fatalf("Summarize error: %v", err)
	}
	if got.Text != "A faster kernel." || got.Score != 0.87 {
		t.Fatalf("unexpected summary: %+v", got)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "cuda" || got.Tags[1] != "systems" {
		t.Fatalf("tags not normalized: %v", got.Tags)
	}
}

func TestSummarizeWithoutKeyFailsFast(t *testing.T) {
	t.Parallel()

	c := NewGeminiClient("", "")
	if _, err := c.Summarize(context.Background(), "t", "r"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestSummarizeRejectsChatterWithoutJSON(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"candidates":[{"content":{"parts":[{"text":"Sorry, I cannot help with that."}]}}]}`)
	}))
	defer server.Close()

	c := NewGeminiClient("test-key", "")
	c.endpoint = server.URL
	c.http = server.Client()

	if _, err := c.Summarize(context.Background(), "t", "r"); err == nil {
		t.Fatal("expected parse error for non-JSON answer")
	}
}
