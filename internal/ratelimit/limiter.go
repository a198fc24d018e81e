// Package ratelimit provides per-client sliding window rate limiting for the
// HTTP API.
package ratelimit

import (
	"sync"
	"time"
)

const (
	// cleanupInterval is how often idle client entries are removed
	cleanupInterval = 10 * time.Minute
	// idleTimeout is how long before an idle client entry is dropped
	idleTimeout = 10 * time.Minute
)

// Limiter allows up to limit requests per client key within a sliding window.
// Keys are typically remote IPs. An injectable clock keeps tests deterministic.
type Limiter struct {
	limit   int
	window  time.Duration
	now     func() time.Time
	entries map[string]*clientEntry
	mu      sync.Mutex
	stop    chan struct{}
	stopped sync.Once
}

type clientEntry struct {
	timestamps []time.Time
	lastSeen   time.Time
}

func New(limit int, window time.Duration) *Limiter {
	l := &Limiter{
		limit:   limit,
		window:  window,
		now:     time.Now,
		entries: make(map[string]*clientEntry),
		stop:    make(chan struct{}),
	}

	go l.cleanupLoop()

	return l
}

// Stop ends the background cleanup goroutine. Safe to call more than once.
func (l *Limiter) Stop() {
	l.stopped.Do(func() { close(l.stop) })
}

// Allow records a request for the key and reports whether it is within the
// limit. Rejected requests do not consume window budget.
func (l *Limiter) Allow(key string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[key]
	if !ok {
		entry = &clientEntry{timestamps: make([]time.Time, 0, l.limit+1)}
		l.entries[key] = entry
	}
	entry.lastSeen = now

	windowStart := now.Add(-l.window)
	valid := entry.timestamps[:0]
	for _, ts := range entry.timestamps {
		if ts.After(windowStart) {
			valid = append(valid, ts)
		}
	}
	entry.timestamps = valid

	if len(entry.timestamps) >= l.limit {
		return false
	}

	entry.timestamps = append(entry.timestamps, now)
	return true
}

// ActiveClients returns the number of tracked client keys.
func (l *Limiter) ActiveClients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.removeIdle()
		case <-l.stop:
			return
		}
	}
}

func (l *Limiter) removeIdle() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-idleTimeout)
	for key, entry := range l.entries {
		if entry.lastSeen.Before(cutoff) {
			delete(l.entries, key)
		}
	}
}
