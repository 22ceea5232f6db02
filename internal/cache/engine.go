package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/lexdesk/tiercache/internal/circuit"
	"github.com/lexdesk/tiercache/pkg/retry"
	"github.com/lexdesk/tiercache/pkg/utils"
)

// Clock returns the current time. Tests substitute a controllable one.
type Clock func() time.Time

// Defaults for engine construction
const (
	DefaultHotCapacity          = 100
	DefaultWarmCapacity         = 1000
	DefaultPromotionThreshold   = 3
	DefaultHotPriorityThreshold = 8
)

type options struct {
	hotCapacity          int
	warmCapacity         int
	promotionThreshold   int64
	hotPriorityThreshold int
	patternHistory       int
	clock                Clock
	logger               *utils.StructuredLogger
	metrics              Metrics
	fetcher              FetchFunc
	prefetch             PrefetchConfig
	strategyDefaults     StrategyDefaults
	strategies           []*Strategy
	skipDefaults         bool
}

func defaultOptions() *options {
	return &options{
		hotCapacity:          DefaultHotCapacity,
		warmCapacity:         DefaultWarmCapacity,
		promotionThreshold:   DefaultPromotionThreshold,
		hotPriorityThreshold: DefaultHotPriorityThreshold,
		patternHistory:       DefaultPatternHistory,
		clock:                time.Now,
		logger:               utils.NewDiscardLogger(),
		metrics:              NoopMetrics{},
		prefetch:             DefaultPrefetchConfig(),
		strategyDefaults:     DefaultStrategyDefaults(),
	}
}

// Option configures an Engine
type Option func(*options)

// WithHotCapacity sets the maximum number of hot entries. Zero or less
// disables the hot tier.
func WithHotCapacity(n int) Option {
	return func(o *options) { o.hotCapacity = n }
}

// WithWarmCapacity sets the maximum number of warm entries
func WithWarmCapacity(n int) Option {
	return func(o *options) { o.warmCapacity = n }
}

// WithPromotionThreshold sets the access count a warm entry must exceed to
// move to the hot tier.
func WithPromotionThreshold(n int) Option {
	return func(o *options) { o.promotionThreshold = int64(n) }
}

// WithHotPriorityThreshold sets the priority at or above which new entries
// always go to the hot tier.
func WithHotPriorityThreshold(p int) Option {
	return func(o *options) { o.hotPriorityThreshold = p }
}

// WithPatternHistory bounds the access timestamps kept per key
func WithPatternHistory(n int) Option {
	return func(o *options) { o.patternHistory = n }
}

// WithClock replaces the time source
func WithClock(clock Clock) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLogger sets the base logger. The engine derives component loggers from it.
func WithLogger(logger *utils.StructuredLogger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink
func WithMetrics(m Metrics) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithFetcher sets the loader used for automatic prefetch on hot hits
func WithFetcher(fetch FetchFunc) Option {
	return func(o *options) { o.fetcher = fetch }
}

// WithPrefetchConfig replaces the prefetch tuning
func WithPrefetchConfig(cfg PrefetchConfig) Option {
	return func(o *options) { o.prefetch = cfg }
}

// WithStrategyDefaults tunes the built-in strategies
func WithStrategyDefaults(d StrategyDefaults) Option {
	return func(o *options) { o.strategyDefaults = d }
}

// WithStrategies registers additional strategies after the built-in ones
func WithStrategies(strategies ...*Strategy) Option {
	return func(o *options) { o.strategies = append(o.strategies, strategies...) }
}

// WithoutDefaultStrategies leaves only strategies added with WithStrategies
func WithoutDefaultStrategies() Option {
	return func(o *options) { o.skipDefaults = true }
}

// SetOption adjusts a single Set call
type SetOption func(*setOptions)

type setOptions struct {
	ttl time.Duration
}

// WithTTL overrides the strategy TTL for one entry
func WithTTL(ttl time.Duration) SetOption {
	return func(o *setOptions) { o.ttl = ttl }
}

// Stats is a point-in-time view of the engine
type Stats struct {
	HitRate           float64
	HotSize           int
	WarmSize          int
	TotalPatterns     int
	Strategies        []string
	Hits              uint64
	Misses            uint64
	Evictions         uint64
	Demotions         uint64
	Promotions        uint64
	Expirations       uint64
	PrefetchSucceeded uint64
	PrefetchFailed    uint64
	OpenBreakers      []string
}

// Engine is a two-tier cache with strategy-driven admission, score-based
// eviction, access tracking and co-access prefetch.
type Engine struct {
	mu    sync.Mutex
	store *tierStore
	seq   uint64

	hits        uint64
	misses      uint64
	evictions   uint64
	demotions   uint64
	promotions  uint64
	expirations uint64

	promotionThreshold   int64
	hotPriorityThreshold int

	clock          Clock
	logger         *utils.StructuredLogger
	prefetchLogger *utils.StructuredLogger
	metrics        Metrics

	tracker  *AccessTracker
	registry *StrategyRegistry
	advisor  *PrefetchAdvisor

	fetcher     FetchFunc
	prefetchCfg PrefetchConfig
	retryer     *retry.Retryer
	breakers    *circuit.Group
	flight      singleflight.Group
	inflight    sync.WaitGroup

	// lifecycle guards closed and every inflight.Add
	lifecycle sync.Mutex
	closed    bool

	prefetchSucceeded atomic.Uint64
	prefetchFailed    atomic.Uint64
}

// New creates an engine
func New(opts ...Option) (*Engine, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	prefetchCfg := o.prefetch.withDefaults()
	tracker := NewAccessTracker(o.patternHistory)

	e := &Engine{
		store:                newTierStore(o.hotCapacity, o.warmCapacity),
		promotionThreshold:   o.promotionThreshold,
		hotPriorityThreshold: o.hotPriorityThreshold,
		clock:                o.clock,
		logger:               o.logger.WithComponent("cache.store"),
		prefetchLogger:       o.logger.WithComponent("cache.prefetch"),
		metrics:              o.metrics,
		tracker:              tracker,
		registry:             NewStrategyRegistry(),
		advisor:              NewPrefetchAdvisor(prefetchCfg.CoAccessWindow, prefetchCfg.MaxSuggestions),
		fetcher:              o.fetcher,
		prefetchCfg:          prefetchCfg,
		retryer:              retry.New(prefetchCfg.Retry),
	}
	e.breakers = e.newBreakers(prefetchCfg)

	var strategies []*Strategy
	if !o.skipDefaults {
		strategies = append(strategies, DefaultStrategies(tracker, o.strategyDefaults)...)
	}
	strategies = append(strategies, o.strategies...)
	for _, s := range strategies {
		if err := e.registry.Register(s); err != nil {
			return nil, err
		}
	}

	e.logger.Debug("Cache engine created", map[string]interface{}{
		"hot_capacity":  o.hotCapacity,
		"warm_capacity": o.warmCapacity,
		"strategies":    e.registry.Names(),
	})

	return e, nil
}

// RegisterStrategy adds a strategy after the existing ones
func (e *Engine) RegisterStrategy(s *Strategy) error {
	return e.registry.Register(s)
}

// Tracker exposes the access tracker shared with strategies and maintenance
func (e *Engine) Tracker() *AccessTracker {
	return e.tracker
}

// Now returns the engine's current time
func (e *Engine) Now() time.Time {
	return e.clock()
}

// Set caches value under key if a strategy admits it. Re-setting a key
// replaces its entry; when no strategy admits the new value the old entry
// is removed.
func (e *Engine) Set(key Key, value any, opts ...SetOption) {
	if !key.Valid() {
		e.logger.Debug("Ignoring set for invalid key", map[string]interface{}{"key": key.String()})
		return
	}

	var so setOptions
	for _, opt := range opts {
		opt(&so)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock()
	// the previous entry never coexists with the new one
	e.store.remove(key)

	strategy := e.registry.Resolve(key, value)
	if strategy == nil {
		e.updateSizes()
		return
	}

	ttl := so.ttl
	if ttl <= 0 {
		ttl = strategy.TTL(key, value)
	}
	if ttl <= 0 {
		e.updateSizes()
		return
	}

	e.seq++
	entry := &Entry{
		Key:            key,
		Value:          value,
		CreatedAt:      now,
		ExpiresAt:      now.Add(ttl),
		LastAccessedAt: now,
		Priority:       strategy.Priority(key, value),
		Strategy:       strategy.Name,
		seq:            e.seq,
	}

	tier := TierWarm
	if entry.Priority >= e.hotPriorityThreshold || !e.store.full(TierHot) {
		tier = TierHot
	}

	if !e.admit(entry, tier, now) {
		e.logger.Debug("Entry dropped, tier has no capacity", map[string]interface{}{
			"key":  key.String(),
			"tier": tier.String(),
		})
		e.updateSizes()
		return
	}

	e.recordAccess(key, now)

	if e.logger.IsEnabled(utils.DEBUG) {
		e.logger.Debug("Entry cached", map[string]interface{}{
			"key":      key.String(),
			"tier":     tier.String(),
			"strategy": strategy.Name,
			"priority": entry.Priority,
			"ttl":      ttl.String(),
		})
	}
	e.updateSizes()
}

// Get returns the cached value for key. Every call is recorded as an
// access, hit or miss.
func (e *Engine) Get(key Key) (any, bool) {
	value, found, hotHit := e.get(key)
	if hotHit {
		e.afterHotHit(key)
	}
	return value, found
}

func (e *Engine) get(key Key) (value any, found, hotHit bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !key.Valid() {
		e.recordMiss()
		return nil, false, false
	}

	now := e.clock()
	e.recordAccess(key, now)

	entry, ok := e.store.lookup(key)
	if !ok {
		e.recordMiss()
		return nil, false, false
	}

	if entry.IsExpired(now) {
		e.store.remove(key)
		e.expirations++
		e.metrics.Expiration(1)
		e.recordMiss()
		e.updateSizes()
		return nil, false, false
	}

	entry.touch(now)
	e.hits++
	e.metrics.CacheHit(entry.Tier.String())

	if entry.Tier == TierHot {
		return entry.Value, true, true
	}

	if entry.AccessCount > e.promotionThreshold {
		e.promote(entry, now)
		e.updateSizes()
	}
	return entry.Value, true, false
}

// Contains reports whether a live entry exists for key. It does not count
// as an access.
func (e *Engine) Contains(key Key) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	entry, ok := e.store.lookup(key)
	return ok && !entry.IsExpired(e.clock())
}

// Inspect returns metadata for a live entry without recording an access
func (e *Engine) Inspect(key Key) (EntryInfo, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	entry, ok := e.store.lookup(key)
	if !ok || entry.IsExpired(e.clock()) {
		return EntryInfo{}, false
	}
	return entry.info(), true
}

// Delete removes key from the cache. Its access history is kept.
func (e *Engine) Delete(key Key) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, removed := e.store.remove(key)
	if removed {
		e.updateSizes()
	}
	return removed
}

// Stats returns a snapshot of sizes and counters
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	stats := Stats{
		Hits:        e.hits,
		Misses:      e.misses,
		Evictions:   e.evictions,
		Demotions:   e.demotions,
		Promotions:  e.promotions,
		Expirations: e.expirations,
	}
	stats.HotSize, stats.WarmSize = e.store.sizes()
	e.mu.Unlock()

	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	stats.TotalPatterns = e.tracker.Len()
	stats.Strategies = e.registry.Names()
	stats.PrefetchSucceeded = e.prefetchSucceeded.Load()
	stats.PrefetchFailed = e.prefetchFailed.Load()
	if e.breakers != nil {
		stats.OpenBreakers = e.breakers.Open()
	}
	return stats
}

// Clear empties both tiers, all access patterns and all counters.
// Strategies stay registered.
func (e *Engine) Clear() {
	e.mu.Lock()
	e.store.clear()
	e.hits, e.misses = 0, 0
	e.evictions, e.demotions, e.promotions, e.expirations = 0, 0, 0, 0
	e.updateSizes()
	e.mu.Unlock()

	e.tracker.Clear()
	e.advisor.Clear()
	e.prefetchSucceeded.Store(0)
	e.prefetchFailed.Store(0)
	e.metrics.PatternCount(0)

	e.logger.Info("Cache cleared")
}

// Close stops new prefetches and waits for in-flight ones to finish. The
// cache itself stays usable.
func (e *Engine) Close() error {
	e.lifecycle.Lock()
	e.closed = true
	e.lifecycle.Unlock()

	e.inflight.Wait()
	return nil
}

// beginPrefetch registers a background prefetch unless the engine is closed
func (e *Engine) beginPrefetch() bool {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()
	if e.closed {
		return false
	}
	e.inflight.Add(1)
	return true
}

func (e *Engine) isClosed() bool {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()
	return e.closed
}

// admit places entry into tier, evicting if needed. Returns false when the
// tier cannot hold anything.
func (e *Engine) admit(entry *Entry, tier Tier, now time.Time) bool {
	if e.store.capacity(tier) <= 0 {
		return false
	}
	if e.store.full(tier) && !e.evictFrom(tier, now) {
		return false
	}
	e.store.put(entry, tier)
	return true
}

// evictFrom removes the lowest scoring entry of tier. Live hot victims are
// demoted to warm; warm victims are discarded.
func (e *Engine) evictFrom(tier Tier, now time.Time) bool {
	victim := selectVictim(e.store.tier(tier), now)
	if victim == nil {
		return false
	}
	delete(e.store.tier(tier), victim.Key)

	if victim.IsExpired(now) {
		e.expirations++
		e.metrics.Expiration(1)
		return true
	}

	e.evictions++
	e.metrics.Eviction(tier.String())

	if tier == TierHot && e.admit(victim, TierWarm, now) {
		e.demotions++
		e.metrics.Demotion()
		if e.logger.IsEnabled(utils.DEBUG) {
			e.logger.Debug("Entry demoted", map[string]interface{}{
				"key":   victim.Key.String(),
				"score": RetentionScore(victim, now),
			})
		}
	}
	return true
}

// promote moves a warm entry to hot. If hot has no room at all the entry
// stays warm.
func (e *Engine) promote(entry *Entry, now time.Time) {
	delete(e.store.warm, entry.Key)
	if !e.admit(entry, TierHot, now) {
		e.store.put(entry, TierWarm)
		return
	}

	e.promotions++
	e.metrics.Promotion()
	if e.logger.IsEnabled(utils.DEBUG) {
		e.logger.Debug("Entry promoted", map[string]interface{}{
			"key":          entry.Key.String(),
			"access_count": entry.AccessCount,
		})
	}
}

// removeExpired deletes key if it is still expired at now
func (e *Engine) removeExpired(key Key, now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	entry, ok := e.store.lookup(key)
	if !ok || !entry.IsExpired(now) {
		return false
	}
	e.store.remove(key)
	e.expirations++
	e.updateSizes()
	return true
}

func (e *Engine) expiredKeys(now time.Time) []Key {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.expiredKeys(now)
}

func (e *Engine) recordMiss() {
	e.misses++
	e.metrics.CacheMiss()
}

// recordAccess notes an access and keeps the pattern gauge current
func (e *Engine) recordAccess(key Key, now time.Time) {
	e.tracker.Record(key, now)
	e.metrics.PatternCount(e.tracker.Len())
}

// updateSizes must be called with e.mu held
func (e *Engine) updateSizes() {
	hot, warm := e.store.sizes()
	e.metrics.TierSizes(hot, warm)
}
