package ratelimiter

import (
	"sync"
	"time"
)

// HourlyWindow is the trailing span of a SlidingWindow.
const HourlyWindow = time.Hour

// SlidingWindow admits at most limit commits within the trailing span.
// Expired timestamps are pruned on every check and never re-inserted.
type SlidingWindow struct {
	limit int
	span  time.Duration
	now   func() time.Time

	mu      sync.Mutex
	entries []time.Time
}

func NewSlidingWindow(limit int, span time.Duration, now func() time.Time) *SlidingWindow {
	if span <= 0 {
		span = HourlyWindow
	}
	if now == nil {
		now = time.Now
	}
	return &SlidingWindow{limit: limit, span: span, now: now}
}

// Eligible reports whether one more request fits the window. With commit it
// also records the request when it fits.
func (w *SlidingWindow) Eligible(commit bool) bool {
	if w == nil {
		return true
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	cutoff := now.Add(-w.span)
	keep := 0
	for keep < len(w.entries) && w.entries[keep].Before(cutoff) {
		keep++
	}
	w.entries = w.entries[keep:]

	if len(w.entries) >= w.limit {
		return false
	}
	if commit {
		w.entries = append(w.entries, now)
	}
	return true
}

// Count returns the entries currently inside the window without pruning.
func (w *SlidingWindow) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}
