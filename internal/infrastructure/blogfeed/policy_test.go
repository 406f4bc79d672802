package blogfeed

import (
	"testing"
	"time"
)

func TestKeepPolicyWindowFilter(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 11, 10, 0, 0, 0, 0, time.UTC)
	posts := []post{
		{url: "a", eventTime: now.Add(-1 * time.Hour)},
		{url: "b", eventTime: now.Add(-71 * time.Hour)},
		{url: "c", eventTime: now.Add(-100 * time.Hour)},
	}

	policy := KeepPolicy{Window: 72 * time.Hour, MinKeep: 3, ForceLatest: true}
	kept := policy.Apply(posts, now)

	if len(kept) != 2 || kept[0].url != "a" || kept[1].url != "b" {
		t.Fatalf("unexpected kept set: %+v", kept)
	}
}

func TestKeepPolicyForceLatestOnQuietFeed(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 11, 10, 0, 0, 0, 0, time.UTC)
	posts := []post{
		{url: "a", eventTime: now.Add(-200 * time.Hour)},
		{url: "b", eventTime: now.Add(-300 * time.Hour)},
		{url: "c", eventTime: now.Add(-400 * time.Hour)},
		{url: "d", eventTime: now.Add(-500 * time.Hour)},
	}

	policy := KeepPolicy{Window: 72 * time.Hour, MinKeep: 2, ForceLatest: true}
	kept := policy.Apply(posts, now)

	if len(kept) != 2 || kept[0].url != "a" || kept[1].url != "b" {
		t.Fatalf("expected the 2 most recent stale posts, got %+v", kept)
	}

	policy.ForceLatest = false
	if kept := policy.Apply(posts, now); len(kept) != 0 {
		t.Fatalf("expected empty without force-latest, got %+v", kept)
	}
}

func TestKeepPolicyMinKeepFloorsAtOne(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 11, 10, 0, 0, 0, 0, time.UTC)
	posts := []post{{url: "a", eventTime: now.Add(-200 * time.Hour)}}

	policy := KeepPolicy{Window: time.Hour, MinKeep: 0, ForceLatest: true}
	kept := policy.Apply(posts, now)

	if len(kept) != 1 || kept[0].url != "a" {
		t.Fatalf("expected single forced post, got %+v", kept)
	}
}
