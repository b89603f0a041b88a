package auth

import (
	"sync"
	"time"
)

// RateLimiter is a sliding-window limiter keyed by an arbitrary string
// (typically the caller's IP). It guards the login and callback endpoints
// against hammering; it is not the suspicious-activity heuristic, which
// lives in the audit package.
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	entries map[string][]time.Time
	stop    chan struct{}
}

// NewRateLimiter allows limit attempts per key within window. Stale keys
// are pruned by a background goroutine; call Stop to end it.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		limit:   limit,
		window:  window,
		entries: make(map[string][]time.Time),
		stop:    make(chan struct{}),
	}
	go rl.reapLoop()
	return rl
}

// Allow records an attempt for key and reports whether it is within the
// limit.
func (rl *RateLimiter) Allow(key string) bool {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	recent := prune(rl.entries[key], now.Add(-rl.window))
	if len(recent) >= rl.limit {
		rl.entries[key] = recent
		return false
	}
	rl.entries[key] = append(recent, now)
	return true
}

// Stop terminates the background pruning goroutine.
func (rl *RateLimiter) Stop() {
	close(rl.stop)
}

func (rl *RateLimiter) reapLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-rl.window)
			rl.mu.Lock()
			for key, attempts := range rl.entries {
				recent := prune(attempts, cutoff)
				if len(recent) == 0 {
					delete(rl.entries, key)
				} else {
					rl.entries[key] = recent
				}
			}
			rl.mu.Unlock()
		case <-rl.stop:
			return
		}
	}
}

func prune(attempts []time.Time, cutoff time.Time) []time.Time {
	kept := attempts[:0]
	for _, t := range attempts {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}
