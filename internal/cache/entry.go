package cache

import "time"

// Tier identifies which storage tier holds an entry
type Tier int

const (
	TierHot Tier = iota
	TierWarm
)

// String returns the tier label used in logs and metrics
func (t Tier) String() string {
	switch t {
	case TierHot:
		return "hot"
	case TierWarm:
		return "warm"
	default:
		return "unknown"
	}
}

// Entry is a cached value with its bookkeeping
type Entry struct {
	Key            Key
	Value          any
	CreatedAt      time.Time
	ExpiresAt      time.Time
	LastAccessedAt time.Time
	AccessCount    int64
	Priority       int
	Strategy       string
	Tier           Tier

	// insertion sequence, last tie-breaker for eviction
	seq uint64
}

// IsExpired reports whether the entry is logically absent at now
func (e *Entry) IsExpired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

func (e *Entry) touch(now time.Time) {
	e.AccessCount++
	e.LastAccessedAt = now
}

// EntryInfo is a read-only snapshot of an entry's metadata. It never carries
// the cached value.
type EntryInfo struct {
	Key            Key
	Tier           Tier
	Strategy       string
	Priority       int
	AccessCount    int64
	CreatedAt      time.Time
	ExpiresAt      time.Time
	LastAccessedAt time.Time
}

func (e *Entry) info() EntryInfo {
	return EntryInfo{
		Key:            e.Key,
		Tier:           e.Tier,
		Strategy:       e.Strategy,
		Priority:       e.Priority,
		AccessCount:    e.AccessCount,
		CreatedAt:      e.CreatedAt,
		ExpiresAt:      e.ExpiresAt,
		LastAccessedAt: e.LastAccessedAt,
	}
}
