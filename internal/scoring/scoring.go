package scoring

import (
	"math"
	"strings"
	"time"
)

const (
	decayShare    = 0.55
	weightShare   = 0.35
	richnessShare = 0.10

	// DefaultHalflifeHours halves an item's recency contribution every
	// two days.
	DefaultHalflifeHours = 48.0

	richnessCap = 20.0
)

// Score combines recency decay, source trust weight and content richness
// into a bounded relevance score, rounded to 4 decimal places.
//
// Items without an event time are scored with age 0, i.e. maximal
// freshness. That is a deliberate policy: the code-host tag listing
// carries no timestamps, and penalizing undated items would bury them.
func Score(tags, keywords []string, eventTime *time.Time, sourceWeight, halflifeHours float64, now time.Time) float64 {
	if halflifeHours <= 0 {
		halflifeHours = DefaultHalflifeHours
	}

	ageHours := 0.0
	if eventTime != nil {
		ageHours = now.Sub(eventTime.UTC()).Hours()
		if ageHours < 0 {
			ageHours = 0
		}
	}
	decay := math.Exp(-math.Ln2 * ageHours / halflifeHours)

	weight := sourceWeight
	if weight < 0 {
		weight = 0
	}
	if weight > 1 {
		weight = 1
	}

	richness := math.Min(1.0, float64(len(tags)+len(keywords))/richnessCap)

	score := decayShare*decay + weightShare*weight + richnessShare*richness
	return math.Round(score*10000) / 10000
}

// heuristicKeywords is the fixed topical set the fallback scorer matches
// against when the summarizer is unavailable.
var heuristicKeywords = []string{
	"quantization", "cuda", "llm", "agent", "distillation",
	"efficient", "inference", "vision", "bitsandbytes", "lora",
}

const (
	heuristicBase      = 0.72
	heuristicIncrement = 0.04
	heuristicCap       = 0.94
)

// Heuristic is the deterministic model-score substitute used when the
// summarizer is unavailable: a base constant plus an increment per
// matched topical keyword, clamped.
func Heuristic(title, raw string) float64 {
	text := strings.ToLower(title + " " + raw)
	score := heuristicBase
	for _, k := range heuristicKeywords {
		if strings.Contains(text, k) {
			score += heuristicIncrement
		}
	}
	return math.Min(score, heuristicCap)
}
