package cache

import (
	"sort"
	"sync"
	"time"
)

// DefaultPatternHistory bounds the timestamps retained per key
const DefaultPatternHistory = 100

// AccessPattern holds the recent access history of one key
type AccessPattern struct {
	Key        Key
	Timestamps []time.Time
}

// AccessTracker records per-key access timestamps. It is safe for
// concurrent use.
type AccessTracker struct {
	mu       sync.RWMutex
	patterns map[Key]*AccessPattern
	history  int
}

// NewAccessTracker creates a tracker keeping at most history timestamps per key
func NewAccessTracker(history int) *AccessTracker {
	if history <= 0 {
		history = DefaultPatternHistory
	}
	return &AccessTracker{
		patterns: make(map[Key]*AccessPattern),
		history:  history,
	}
}

// Record appends an access, dropping the oldest once the bound is reached
func (t *AccessTracker) Record(key Key, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pattern, exists := t.patterns[key]
	if !exists {
		pattern = &AccessPattern{
			Key:        key,
			Timestamps: make([]time.Time, 0, 8),
		}
		t.patterns[key] = pattern
	}

	if len(pattern.Timestamps) >= t.history {
		n := copy(pattern.Timestamps, pattern.Timestamps[len(pattern.Timestamps)-t.history+1:])
		pattern.Timestamps = pattern.Timestamps[:n]
	}
	pattern.Timestamps = append(pattern.Timestamps, at)
}

// Count returns the number of retained accesses for key
func (t *AccessTracker) Count(key Key) int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if pattern, ok := t.patterns[key]; ok {
		return len(pattern.Timestamps)
	}
	return 0
}

// LastAccess returns the most recent access time for key
func (t *AccessTracker) LastAccess(key Key) (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	pattern, ok := t.patterns[key]
	if !ok || len(pattern.Timestamps) == 0 {
		return time.Time{}, false
	}
	return pattern.Timestamps[len(pattern.Timestamps)-1], true
}

// Compact drops patterns whose most recent access is older than maxIdle.
// Returns the number of patterns removed.
func (t *AccessTracker) Compact(now time.Time, maxIdle time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for key, pattern := range t.patterns {
		if len(pattern.Timestamps) == 0 ||
			now.Sub(pattern.Timestamps[len(pattern.Timestamps)-1]) > maxIdle {
			delete(t.patterns, key)
			removed++
		}
	}
	return removed
}

// FrequentKeys returns keys with at least minAccesses accesses inside the
// window ending at now, most accessed first.
func (t *AccessTracker) FrequentKeys(now time.Time, window time.Duration, minAccesses int) []Key {
	t.mu.RLock()
	type candidate struct {
		key   Key
		count int
	}
	since := now.Add(-window)
	candidates := make([]candidate, 0)
	for key, pattern := range t.patterns {
		if n := countSince(pattern.Timestamps, since); n >= minAccesses {
			candidates = append(candidates, candidate{key: key, count: n})
		}
	}
	t.mu.RUnlock()

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].count != candidates[j].count {
			return candidates[i].count > candidates[j].count
		}
		return candidates[i].key.String() < candidates[j].key.String()
	})

	keys := make([]Key, len(candidates))
	for i, c := range candidates {
		keys[i] = c.key
	}
	return keys
}

// Len returns the number of tracked keys
func (t *AccessTracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.patterns)
}

// Clear forgets every pattern
func (t *AccessTracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.patterns = make(map[Key]*AccessPattern)
}

// timestamps are appended in order, so scan from the newest end
func countSince(timestamps []time.Time, since time.Time) int {
	n := 0
	for i := len(timestamps) - 1; i >= 0; i-- {
		if timestamps[i].Before(since) {
			break
		}
		n++
	}
	return n
}
