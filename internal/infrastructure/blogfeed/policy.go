package blogfeed

import "time"

// KeepPolicy decides which parsed posts survive the lookback window.
// With ForceLatest set, a feed whose entries all fall outside the window
// still keeps its MinKeep most recent posts, so a quiet feed never goes
// empty in the digest.
type KeepPolicy struct {
	Window      time.Duration
	MinKeep     int
	ForceLatest bool
}

// Apply filters posts (expected newest-first) to the window, falling back
// to the most recent MinKeep when the window leaves nothing.
func (p KeepPolicy) Apply(posts []post, now time.Time) []post {
	cutoff := now.Add(-p.Window)

	kept := make([]post, 0, len(posts))
	for _, entry := range posts {
		if !entry.eventTime.Before(cutoff) {
			kept = append(kept, entry)
		}
	}

	if len(kept) == 0 && p.ForceLatest && len(posts) > 0 {
		n := p.MinKeep
		if n < 1 {
			n = 1
		}
		if n > len(posts) {
			n = len(posts)
		}
		kept = posts[:n]
	}

	return kept
}
