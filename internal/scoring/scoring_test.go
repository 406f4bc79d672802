package scoring

import (
	"math"
	"testing"
	"time"
)

func TestScoreBounded(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	old := now.Add(-1000 * time.Hour)
	manyTags := make([]string, 50)

	cases := []struct {
		name      string
		tags      []string
		keywords  []string
		eventTime *time.Time
		weight    float64
	}{
		{"zeroes", nil, nil, nil, 0},
		{"fresh max weight", []string{"llm"}, []string{"cuda"}, &now, 1.0},
		{"weight above one clamps", manyTags, manyTags, &now, 42.0},
		{"negative weight clamps", nil, nil, &old, -3.0},
		{"ancient item", []string{"a"}, nil, &old, 0.5},
	}

	for _, tc := range cases {
		got := Score(tc.tags, tc.keywords, tc.eventTime, tc.weight, DefaultHalflifeHours, now)
		if got < 0 || got > 1 {
			t.Fatalf("%s: score %v out of [0,1]", tc.name, got)
		}
	}
}

func TestScoreDecayMonotonic(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	prev := math.Inf(1)
	for _, hours := range []float64{0, 1, 12, 48, 96, 500} {
		et := now.Add(-time.Duration(hours * float64(time.Hour)))
		got := Score([]string{"llm"}, []string{"cuda"}, &et, 0.8, DefaultHalflifeHours, now)
		if got > prev {
			t.Fatalf("score increased with age: %v hours -> %v (prev %v)", hours, got, prev)
		}
		prev = got
	}
}

func TestScoreUndatedIsMaximallyFresh(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	undated := Score(nil, nil, nil, 1.0, DefaultHalflifeHours, now)
	fresh := Score(nil, nil, &now, 1.0, DefaultHalflifeHours, now)
	if undated != fresh {
		t.Fatalf("undated item scored %v, fresh item %v", undated, fresh)
	}
	if undated != 0.9 { // 0.55*1 + 0.35*1 + 0.10*0
		t.Fatalf("expected 0.9, got %v", undated)
	}
}

func TestScoreRichnessCapped(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	twenty := make([]string, 20)
	forty := make([]string, 40)
	if a, b := Score(twenty, nil, &now, 0, DefaultHalflifeHours, now), Score(forty, nil, &now, 0, DefaultHalflifeHours, now); a != b {
		t.Fatalf("richness not capped: %v vs %v", a, b)
	}
}

func TestHeuristic(t *testing.T) {
	t.Parallel()

	if got := Heuristic("plain release notes", ""); got != 0.72 {
		t.Fatalf("expected base 0.72, got %v", got)
	}
	if got := Heuristic("LLM quantization with CUDA", ""); math.Abs(got-0.84) > 1e-9 {
		t.Fatalf("expected 0.72+3*0.04, got %v", got)
	}

	all := "quantization cuda llm agent distillation efficient inference vision bitsandbytes lora"
	if got := Heuristic(all, all); got != 0.94 {
		t.Fatalf("expected cap 0.94, got %v", got)
	}
}
