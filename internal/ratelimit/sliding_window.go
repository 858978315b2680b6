// Package ratelimit provides per-identity sliding window admission control.
package ratelimit

import (
	"sync"
	"time"
)

// window tracks request timestamps for a single identity within the
// trailing window. Guarded by its own mutex so unrelated identities never
// contend on a shared lock.
type window struct {
	timestamps []time.Time
	lastAccess time.Time
	mu         sync.Mutex
}

// Limiter implements sliding window rate limiting keyed by user identity.
// State is in-memory only: cleared on restart, never persisted.
type Limiter struct {
	windows     sync.Map // string (identity) -> *window
	windowDur   time.Duration
	limit       int
	cleanupTick *time.Ticker
	stopCleanup chan struct{}
	cleanupWG   sync.WaitGroup
}

// New creates a rate limiter allowing limit requests per windowDuration for
// each identity. A background goroutine evicts idle windows every
// cleanupInterval to bound memory. A non-positive cleanupInterval falls back
// to the window duration; the ticker cannot run on a zero interval.
func New(windowDuration time.Duration, limit int, cleanupInterval time.Duration) *Limiter {
	if cleanupInterval <= 0 {
		cleanupInterval = windowDuration
	}
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	l := &Limiter{
		windowDur:   windowDuration,
		limit:       limit,
		cleanupTick: time.NewTicker(cleanupInterval),
		stopCleanup: make(chan struct{}),
	}

	l.cleanupWG.Add(1)
	go l.cleanupLoop()

	return l
}

// Allow reports whether a request for identity may proceed.
// Returns (allowed, remaining, retryAfterSeconds). Denied attempts are not
// recorded against the window. The window lock is held only for the
// prune-and-check, never across dispatch.
func (l *Limiter) Allow(identity string) (bool, int, int) {
	now := time.Now()

	wi, _ := l.windows.LoadOrStore(identity, &window{})
	w := wi.(*window)

	w.mu.Lock()
	defer w.mu.Unlock()

	w.lastAccess = now
	l.prune(w, now)

	if len(w.timestamps) >= l.limit {
		oldest := w.timestamps[0]
		retryAfter := int(time.Until(oldest.Add(l.windowDur)).Seconds())
		if retryAfter <= 0 {
			retryAfter = 1
		}
		return false, 0, retryAfter
	}

	w.timestamps = append(w.timestamps, now)
	return true, l.limit - len(w.timestamps), 0
}

// prune drops timestamps that have aged out of the window.
func (l *Limiter) prune(w *window, now time.Time) {
	cutoff := now.Add(-l.windowDur)

	valid := 0
	for valid < len(w.timestamps) && !w.timestamps[valid].After(cutoff) {
		valid++
	}
	if valid > 0 {
		remaining := make([]time.Time, len(w.timestamps)-valid)
		copy(remaining, w.timestamps[valid:])
		w.timestamps = remaining
	}
}

// cleanupLoop periodically evicts idle windows so the map does not grow
// with every identity ever seen.
func (l *Limiter) cleanupLoop() {
	defer l.cleanupWG.Done()

	for {
		select {
		case <-l.cleanupTick.C:
			l.evictIdle()
		case <-l.stopCleanup:
			return
		}
	}
}

// evictIdle removes windows that have not been touched for 2x the window
// duration. Anything older holds no admissible timestamps.
func (l *Limiter) evictIdle() {
	cutoff := time.Now().Add(-l.windowDur * 2)

	var stale []string
	l.windows.Range(func(key, value interface{}) bool {
		w := value.(*window)
		w.mu.Lock()
		last := w.lastAccess
		w.mu.Unlock()

		if last.Before(cutoff) {
			stale = append(stale, key.(string))
		}
		return true
	})

	for _, key := range stale {
		l.windows.Delete(key)
	}
}

// Stop halts the cleanup goroutine and releases the ticker.
func (l *Limiter) Stop() {
	l.cleanupTick.Stop()
	close(l.stopCleanup)
	l.cleanupWG.Wait()
}

// Stats contains a point-in-time snapshot of limiter state
type Stats struct {
	ActiveIdentities int
	TrackedRequests  int
	WindowDuration   time.Duration
	Limit            int
}

// GetStats returns current statistics about the limiter
func (l *Limiter) GetStats() Stats {
	stats := Stats{
		WindowDuration: l.windowDur,
		Limit:          l.limit,
	}

	l.windows.Range(func(key, value interface{}) bool {
		w := value.(*window)
		w.mu.Lock()
		stats.TrackedRequests += len(w.timestamps)
		w.mu.Unlock()
		stats.ActiveIdentities++
		return true
	})

	return stats
}
