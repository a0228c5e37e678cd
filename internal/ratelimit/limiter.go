package ratelimit

import (
	"sync"
	"time"
)

// Rule is a configured threshold for one event category. Thresholds are
// configuration, not contract; callers decide the categories and numbers.
type Rule struct {
	Limit  int
	Window time.Duration
}

// Limiter applies sliding-window rate limits per (connection, category).
// It keeps the timestamps of accepted events inside the trailing window
// rather than a counter reset on a tick, so a burst straddling a window
// boundary cannot double the effective rate.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]map[string][]time.Time
}

func NewLimiter() *Limiter {
	return &Limiter{
		windows: make(map[string]map[string][]time.Time),
	}
}

// TryConsume records an event for (connID, category) if the trailing
// window holds fewer than limit events. It returns false, without
// mutating, once the limit is reached.
func (l *Limiter) TryConsume(connID, category string, limit int, window time.Duration, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.windows[connID] == nil {
		l.windows[connID] = make(map[string][]time.Time)
	}

	cutoff := now.Add(-window)
	stamps := l.windows[connID][category]

	// drop timestamps that fell out of the trailing window
	kept := stamps[:0]
	for _, ts := range stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= limit {
		l.windows[connID][category] = kept
		return false
	}

	l.windows[connID][category] = append(kept, now)
	return true
}

// Reset clears all categories for connID. Called on disconnect so the
// limiter does not grow without bound.
func (l *Limiter) Reset(connID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.windows, connID)
}
