package domain

import "time"

// Source is a named origin of signals: a GitHub repo, a model-hub listing,
// or a blog feed. Identity is (Kind, URL); Weight is the trust multiplier
// fed into scoring.
type Source struct {
	ID     int64
	Kind   string
	Name   string
	URL    string
	Weight float64
}

// RawItem is one candidate signal as produced by a connector, before it is
// assigned a store id. OriginID together with Kind forms the globally
// unique identity key.
type RawItem struct {
	Kind         string
	OriginID     string
	Title        string
	URL          string
	SecondaryURL string
	Author       string
	SummaryRaw   string
	EventTime    *time.Time
}

// Item is a persisted signal.
type Item struct {
	ID         int64
	SourceID   int64
	Kind       string
	OriginID   string
	Title      string
	URL        string
	Author     string
	SummaryRaw string
	EventTime  *time.Time
	CreatedAt  time.Time
	Status     Status
}

// Status enumerates the item lifecycle.
type Status string

const (
	StatusNew       Status = "new"
	StatusEnriched  Status = "enriched"
	StatusPublished Status = "published"
)

// Enrichment is the derived summary/tags/score attached to an item,
// one-to-one by item id.
type Enrichment struct {
	ItemID   int64
	Summary  string
	Tags     []string
	Keywords []string
	Score    float64
	Metadata map[string]string
}

// Candidate is an item picked for (re-)enrichment, carrying the source
// weight needed by the scoring function.
type Candidate struct {
	ID           int64
	Title        string
	URL          string
	SummaryRaw   string
	EventTime    *time.Time
	Status       Status
	SourceWeight float64
}

// DigestRow is one row of the ranked read view over enriched items.
type DigestRow struct {
	ID        int64
	Kind      string
	Title     string
	URL       string
	EventTime *time.Time
	Score     float64
	Tags      []string
	Summary   string
}

// DigestQuery narrows the digest read: tag-set overlap and a recency
// cutoff, both optional.
type DigestQuery struct {
	Limit      int
	Tags       []string
	SinceHours int
}

// Alert is the payload pushed to the automation webhook for high-signal
// items.
type Alert struct {
	Title   string   `json:"title"`
	URL     string   `json:"url"`
	Tags    []string `json:"tags"`
	Score   float64  `json:"score"`
	Summary string   `json:"summary"`
}

// Summary is what the external summarizer returns for one item.
type Summary struct {
	Text     string
	Tags     []string
	Keywords []string
	Score    float64
}
