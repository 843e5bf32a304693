// Package flood provides per-client request throttling for the HTTP adapter.
package flood

import (
	"sync"
	"time"
)

const (
	// windowDuration is the fixed throttling window.
	windowDuration = 60 * time.Second
	// cleanupInterval is how often idle client entries are purged.
	cleanupInterval = 10 * time.Minute
	// idleTimeout is how long before an idle client entry is removed.
	idleTimeout = 10 * time.Minute
)

// Throttle limits requests per client over a sliding one-minute window.
type Throttle struct {
	limitPerMinute int
	entries        map[string]*clientEntry
	mutex          sync.Mutex
	stopCleanup    chan struct{}
}

type clientEntry struct {
	timestamps []time.Time
	lastSeen   time.Time
}

// New creates a Throttle allowing limitPerMinute requests per client key.
func New(limitPerMinute int) *Throttle {
	t := &Throttle{
		limitPerMinute: limitPerMinute,
		entries:        make(map[string]*clientEntry),
		stopCleanup:    make(chan struct{}),
	}

	go t.cleanup()

	return t
}

// Stop stops the background cleanup goroutine.
func (t *Throttle) Stop() {
	close(t.stopCleanup)
}

// Allow reports whether a request from the client identified by key may
// proceed, recording it when allowed.
func (t *Throttle) Allow(key string) bool {
	now := time.Now()

	t.mutex.Lock()
	defer t.mutex.Unlock()

	entry, exists := t.entries[key]
	if !exists {
		entry = &clientEntry{
			timestamps: make([]time.Time, 0, t.limitPerMinute+1),
		}
		t.entries[key] = entry
	}
	entry.lastSeen = now

	windowStart := now.Add(-windowDuration)
	valid := entry.timestamps[:0]
	for _, ts := range entry.timestamps {
		if ts.After(windowStart) {
			valid = append(valid, ts)
		}
	}
	entry.timestamps = valid

	if len(entry.timestamps) >= t.limitPerMinute {
		return false
	}

	entry.timestamps = append(entry.timestamps, now)
	return true
}

func (t *Throttle) cleanup() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.purgeIdle()
		case <-t.stopCleanup:
			return
		}
	}
}

func (t *Throttle) purgeIdle() {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	cutoff := time.Now().Add(-idleTimeout)
	for key, entry := range t.entries {
		if entry.lastSeen.Before(cutoff) {
			delete(t.entries, key)
		}
	}
}

// ActiveClients returns the number of clients currently tracked.
func (t *Throttle) ActiveClients() int {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return len(t.entries)
}
