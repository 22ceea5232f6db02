/*
Package cache provides an adaptive two-tier in-memory cache for the legal
document portal.

Values are keyed by a namespaced Key (search results, document metadata,
configuration, user data, UI components). Admission, lifetime and priority
come from pluggable strategies; placement, eviction and promotion come from
access behavior.

# Cache Architecture

	┌─────────────────────────────────────────────┐
	│                 Engine                      │
	│   Set / Get / GetOrFetch / Prefetch         │
	└─────────────────────────────────────────────┘
	        │                │               │
	┌──────────────┐ ┌──────────────┐ ┌──────────────┐
	│  Strategy    │ │   Access     │ │  Prefetch    │
	│  Registry    │ │   Tracker    │ │  Advisor     │
	└──────────────┘ └──────────────┘ └──────────────┘
	        │
	┌─────────────────────────────────────────────┐
	│   Hot tier (fixed entry capacity)           │
	│        ▲ promote          │ demote          │
	│        │                  ▼                 │
	│   Warm tier (entry budget)                  │
	└─────────────────────────────────────────────┘

# Admission

Strategies are evaluated in registration order and the first one whose
Admit returns true decides TTL and priority. The built-in order is:

	high-frequency   ≥5 recorded accesses   TTL 10m   priority = access count
	search           search namespace       TTL 5m    priority 8
	metadata         metadata, config       TTL 30m   priority 10
	user             user namespace         TTL 15m   priority 9

Keys no strategy admits are not cached.

# Placement and Eviction

A new entry goes to the hot tier when its priority is at least 8 or the
hot tier has room, otherwise to the warm tier. A full tier evicts its
lowest scoring entry first:

	score = priority * (accessCount + 1) / ln(secondsSinceLastAccess + 1)

Expired entries are evicted before any live one. A live hot victim is
demoted to the warm tier; a warm victim is discarded. A warm entry whose
access count exceeds the promotion threshold moves to the hot tier on its
next hit.

# Expiry

Expired entries are removed lazily on Get and in bulk by the Scheduler's
expiry sweep, which also forgets access patterns idle for a day.

# Prefetch

Hot hits feed the PrefetchAdvisor, which relates keys hit close together.
With a fetcher configured, the engine loads suggested companions in the
background. Loads are bounded, deduplicated per key and retried with
backoff; a failed load only affects its own key. Each namespace's backend
sits behind a circuit breaker: after repeated failures, loads for that
namespace fail fast with BACKEND_UNAVAILABLE until a probe succeeds.

# Usage

	engine, err := cache.New(cache.WithHotCapacity(200))
	if err != nil {
		return err
	}
	defer engine.Close()

	engine.Set(cache.SearchKey("tenders?q=roads"), results)
	if v, ok := engine.Get(cache.SearchKey("tenders?q=roads")); ok {
		render(v)
	}

	scheduler := cache.NewScheduler(engine, nil, logger)
	if err := scheduler.Start(ctx); err != nil {
		return err
	}
	defer scheduler.Stop()
*/
package cache
