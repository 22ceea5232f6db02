package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/lexdesk/tiercache/pkg/retry"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingMetrics struct {
	mu          sync.Mutex
	hits        map[string]int
	misses      int
	evictions   map[string]int
	demotions   int
	promotions  int
	expirations int
	prefetchOK  int
	prefetchErr int
	hotSize     int
	warmSize    int
	sweeps      map[string]int
	patterns    int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		hits:      make(map[string]int),
		evictions: make(map[string]int),
		sweeps:    make(map[string]int),
	}
}

func (m *recordingMetrics) CacheHit(tier string) {
	m.mu.Lock()
	m.hits[tier]++
	m.mu.Unlock()
}

func (m *recordingMetrics) CacheMiss() {
	m.mu.Lock()
	m.misses++
	m.mu.Unlock()
}

func (m *recordingMetrics) Eviction(tier string) {
	m.mu.Lock()
	m.evictions[tier]++
	m.mu.Unlock()
}

func (m *recordingMetrics) Demotion() {
	m.mu.Lock()
	m.demotions++
	m.mu.Unlock()
}

func (m *recordingMetrics) Promotion() {
	m.mu.Lock()
	m.promotions++
	m.mu.Unlock()
}

func (m *recordingMetrics) Expiration(n int) {
	m.mu.Lock()
	m.expirations += n
	m.mu.Unlock()
}

func (m *recordingMetrics) PatternCount(n int) {
	m.mu.Lock()
	m.patterns = n
	m.mu.Unlock()
}

func (m *recordingMetrics) PrefetchResult(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if success {
		m.prefetchOK++
	} else {
		m.prefetchErr++
	}
}

func (m *recordingMetrics) TierSizes(hot, warm int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hotSize, m.warmSize = hot, warm
}

func (m *recordingMetrics) SweepCompleted(sweep string, _ time.Duration, _ int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweeps[sweep]++
}

// fastPrefetch keeps retries in the millisecond range
func fastPrefetch() PrefetchConfig {
	cfg := DefaultPrefetchConfig()
	cfg.Retry = retry.Config{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
	cfg.FetchTimeout = time.Second
	return cfg
}

// componentStrategy admits component keys with priority 5, below the hot
// placement threshold.
func componentStrategy() *Strategy {
	return NamespaceStrategy("components", 20*time.Minute, 5, NamespaceComponent)
}

func newTestEngine(t *testing.T, clock *fakeClock, opts ...Option) *Engine {
	t.Helper()
	base := []Option{
		WithClock(clock.Now),
		WithPrefetchConfig(fastPrefetch()),
	}
	engine, err := New(append(base, opts...)...)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	t.Cleanup(func() { _ = engine.Close() })
	return engine
}
