package cache

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lexdesk/tiercache/internal/circuit"
	"github.com/lexdesk/tiercache/pkg/errors"
	"github.com/lexdesk/tiercache/pkg/retry"
)

// FetchFunc loads the value for a key from the system of record
type FetchFunc func(ctx context.Context, key Key) (any, error)

// PrefetchConfig tunes co-access tracking and background loading
type PrefetchConfig struct {
	// Enabled turns on automatic prefetch after hot hits. Explicit
	// Prefetch calls work regardless.
	Enabled        bool
	MaxSuggestions int
	CoAccessWindow int
	MaxConcurrent  int
	FetchTimeout   time.Duration
	Retry          retry.Config

	// BreakerEnabled guards each namespace's backend with a circuit
	// breaker. Fetches for a namespace whose breaker is open fail fast
	// with BACKEND_UNAVAILABLE.
	BreakerEnabled bool
	Breaker        circuit.Config
}

// DefaultPrefetchConfig returns the stock prefetch tuning
func DefaultPrefetchConfig() PrefetchConfig {
	return PrefetchConfig{
		Enabled:        true,
		MaxSuggestions: 5,
		CoAccessWindow: 10,
		MaxConcurrent:  4,
		FetchTimeout:   5 * time.Second,
		Retry:          retry.DefaultConfig(),
		BreakerEnabled: true,
		Breaker:        circuit.DefaultConfig(),
	}
}

func (c PrefetchConfig) withDefaults() PrefetchConfig {
	d := DefaultPrefetchConfig()
	if c.MaxSuggestions <= 0 {
		c.MaxSuggestions = d.MaxSuggestions
	}
	if c.CoAccessWindow <= 0 {
		c.CoAccessWindow = d.CoAccessWindow
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = d.MaxConcurrent
	}
	return c
}

// PrefetchAdvisor remembers which keys are hit close together and suggests
// companions to load ahead of demand.
type PrefetchAdvisor struct {
	mu             sync.Mutex
	recent         []Key // most recent first
	coAccess       map[Key][]Key
	window         int
	maxSuggestions int
}

// NewPrefetchAdvisor creates an advisor relating each hit to the previous
// window hits and suggesting at most maxSuggestions keys.
func NewPrefetchAdvisor(window, maxSuggestions int) *PrefetchAdvisor {
	return &PrefetchAdvisor{
		recent:         make([]Key, 0, window+1),
		coAccess:       make(map[Key][]Key),
		window:         window,
		maxSuggestions: maxSuggestions,
	}
}

// RecordHit relates key to the recently hit keys, in both directions
func (a *PrefetchAdvisor) RecordHit(key Key) {
	a.mu.Lock()
	defer a.mu.Unlock()

	others := make([]Key, 0, a.window)
	for _, k := range a.recent {
		if len(others) == a.window {
			break
		}
		if k != key {
			others = append(others, k)
		}
	}

	a.coAccess[key] = mergeRecent(a.coAccess[key], others, a.window)
	for _, other := range others {
		a.coAccess[other] = mergeRecent(a.coAccess[other], []Key{key}, a.window)
	}

	// one spare slot so a repeat hit still sees window other keys
	a.recent = mergeRecent(a.recent, []Key{key}, a.window+1)
}

// Suggest returns the keys most recently co-accessed with key
func (a *PrefetchAdvisor) Suggest(key Key) []Key {
	a.mu.Lock()
	defer a.mu.Unlock()

	related := a.coAccess[key]
	n := len(related)
	if n > a.maxSuggestions {
		n = a.maxSuggestions
	}
	out := make([]Key, n)
	copy(out, related[:n])
	return out
}

// Len returns the number of keys with co-access history
func (a *PrefetchAdvisor) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.coAccess)
}

// Clear forgets all co-access history
func (a *PrefetchAdvisor) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recent = a.recent[:0]
	a.coAccess = make(map[Key][]Key)
}

// mergeRecent puts front ahead of list, dropping duplicates, capped at limit
func mergeRecent(list, front []Key, limit int) []Key {
	out := make([]Key, 0, limit)
	seen := make(map[Key]struct{}, len(front)+len(list))
	for _, src := range [][]Key{front, list} {
		for _, k := range src {
			if len(out) == limit {
				return out
			}
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	return out
}

// afterHotHit feeds the advisor and, with a fetcher configured, loads the
// suggested companions in the background.
func (e *Engine) afterHotHit(key Key) {
	e.advisor.RecordHit(key)
	if e.fetcher == nil || !e.prefetchCfg.Enabled || e.isClosed() {
		return
	}
	if suggestions := e.advisor.Suggest(key); len(suggestions) > 0 {
		e.Prefetch(context.Background(), suggestions, e.fetcher)
	}
}

// Prefetch loads the keys that are not already cached and stores them
// through Set. Loads run concurrently, each with its own retry budget; a
// failure only affects its own key. The returned channel is closed once
// every load has finished, or immediately after Close.
func (e *Engine) Prefetch(ctx context.Context, keys []Key, fetch FetchFunc) <-chan struct{} {
	done := make(chan struct{})

	var pending []Key
	seen := make(map[Key]struct{}, len(keys))
	for _, key := range keys {
		if _, dup := seen[key]; dup || !key.Valid() {
			continue
		}
		seen[key] = struct{}{}
		if !e.Contains(key) {
			pending = append(pending, key)
		}
	}

	if fetch == nil || len(pending) == 0 || !e.beginPrefetch() {
		close(done)
		return done
	}

	go func() {
		defer e.inflight.Done()
		defer close(done)

		var g errgroup.Group
		g.SetLimit(e.prefetchCfg.MaxConcurrent)
		for _, key := range pending {
			key := key
			g.Go(func() error {
				e.prefetchOne(ctx, key, fetch)
				return nil
			})
		}
		_ = g.Wait()
	}()

	return done
}

func (e *Engine) prefetchOne(ctx context.Context, key Key, fetch FetchFunc) {
	// another caller may have filled it while queued
	if e.Contains(key) {
		return
	}

	value, err := e.load(ctx, key, fetch)
	if err != nil {
		e.prefetchFailed.Add(1)
		e.metrics.PrefetchResult(false)
		e.prefetchLogger.Warn("Prefetch failed", map[string]interface{}{
			"key":   key.String(),
			"error": err.Error(),
		})
		return
	}

	e.Set(key, value)
	e.prefetchSucceeded.Add(1)
	e.metrics.PrefetchResult(true)
	e.prefetchLogger.Debug("Prefetched", map[string]interface{}{"key": key.String()})
}

// GetOrFetch returns the cached value or loads it with fetch, caching the
// result if a strategy admits it.
//
// Concurrent loads of one key are shared with other GetOrFetch calls and
// with Prefetch. A caller that joins a load already in flight gets that
// load's result or error, even though it was started with another fetch
// function and context. A cancelled prefetch context therefore surfaces
// here as a fetch error.
func (e *Engine) GetOrFetch(ctx context.Context, key Key, fetch FetchFunc) (any, error) {
	if value, ok := e.Get(key); ok {
		return value, nil
	}
	if !key.Valid() {
		return nil, errors.NewError(errors.ErrCodeInvalidKey, "invalid cache key").
			WithComponent("cache").WithOperation("get_or_fetch").
			WithContext("key", key.String())
	}

	value, err := e.load(ctx, key, fetch)
	if err != nil {
		return nil, err
	}
	e.Set(key, value)
	return value, nil
}

// load runs fetch under the retry policy and the namespace breaker,
// collapsing concurrent loads of the same key.
func (e *Engine) load(ctx context.Context, key Key, fetch FetchFunc) (any, error) {
	value, err, _ := e.flight.Do(key.flightKey(), func() (interface{}, error) {
		var result any
		call := func(ctx context.Context) error {
			v, err := fetch(ctx, key)
			if err != nil {
				return err
			}
			result = v
			return nil
		}

		err := e.retryer.Do(ctx, func(ctx context.Context) error {
			fetchCtx := ctx
			if e.prefetchCfg.FetchTimeout > 0 {
				var cancel context.CancelFunc
				fetchCtx, cancel = context.WithTimeout(ctx, e.prefetchCfg.FetchTimeout)
				defer cancel()
			}

			var err error
			if e.breakers != nil {
				err = e.breakers.Get(key.Namespace.String()).Execute(fetchCtx, call)
			} else {
				err = call(fetchCtx)
			}
			if err != nil {
				return classifyFetchError(key, err)
			}
			return nil
		})
		return result, err
	})
	return value, err
}

// Breakers returns the state of every backend breaker, ordered by namespace
func (e *Engine) Breakers() []circuit.Stats {
	if e.breakers == nil {
		return nil
	}
	return e.breakers.Stats()
}

// ResetBreakers closes every backend breaker
func (e *Engine) ResetBreakers() {
	if e.breakers != nil {
		e.breakers.ResetAll()
	}
}

func (e *Engine) newBreakers(cfg PrefetchConfig) *circuit.Group {
	if !cfg.BreakerEnabled {
		return nil
	}
	bc := cfg.Breaker
	bc.Now = e.clock
	bc.OnStateChange = func(name string, from, to circuit.State) {
		e.prefetchLogger.Warn("Backend breaker state changed", map[string]interface{}{
			"namespace": name,
			"from":      from.String(),
			"to":        to.String(),
		})
	}
	return circuit.NewGroup(bc)
}

func classifyFetchError(key Key, err error) error {
	var cacheErr *errors.CacheError
	if stderrors.As(err, &cacheErr) {
		return err
	}

	if stderrors.Is(err, circuit.ErrOpenState) || stderrors.Is(err, circuit.ErrTooManyProbes) {
		return errors.Wrap(errors.ErrCodeBackendDown, "backend unavailable", err).
			WithComponent("cache.prefetch").
			WithOperation("fetch").
			WithContext("key", key.String()).
			WithContext("namespace", key.Namespace.String())
	}

	code := errors.ErrCodeFetchFailed
	if stderrors.Is(err, context.DeadlineExceeded) {
		code = errors.ErrCodeFetchTimeout
	}
	return errors.Wrap(code, "fetch failed", err).
		WithComponent("cache.prefetch").
		WithOperation("fetch").
		WithContext("key", key.String())
}
