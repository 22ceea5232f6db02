package cache

import "time"

// Metrics receives cache events. Implementations must be safe for
// concurrent use; calls can happen while the engine lock is held.
type Metrics interface {
	CacheHit(tier string)
	CacheMiss()
	Eviction(tier string)
	Demotion()
	Promotion()
	Expiration(count int)
	PrefetchResult(success bool)
	TierSizes(hot, warm int)
	PatternCount(n int)
	SweepCompleted(sweep string, duration time.Duration, removed int)
}

// NoopMetrics discards every event
type NoopMetrics struct{}

func (NoopMetrics) CacheHit(string) {}
func (NoopMetrics) CacheMiss() {}
func (NoopMetrics) Eviction(string) {}
func (NoopMetrics) Demotion() {}
func (NoopMetrics) Promotion() {}
func (NoopMetrics) Expiration(int) {}
func (NoopMetrics) PrefetchResult(bool) {}
func (NoopMetrics) TierSizes(int, int) {}
func (NoopMetrics) PatternCount(int) {}
func (NoopMetrics) SweepCompleted(string, time.Duration, int) {}
