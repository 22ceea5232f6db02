/*
Package metrics exports cache engine events to Prometheus.

Collector implements the engine's metrics sink and serves a scrape
endpoint. All series share the configured namespace and subsystem.

# Exported Series

	requests_total{result,tier}     hits by tier, misses with tier="none"
	evictions_total{tier}           capacity evictions
	demotions_total                 hot entries moved to warm
	promotions_total                warm entries moved to hot
	expirations_total               entries removed after their TTL
	prefetch_total{status}          background loads by success/error
	tier_entries{tier}              current entries per tier
	access_patterns                 keys with tracked access history
	sweep_duration_seconds{sweep}   maintenance sweep latency
	sweep_removed_total{sweep}      entries removed by sweeps

# Endpoints

	/metrics        Prometheus scrape (OpenMetrics enabled)
	/health         liveness
	/debug/sweeps   per-sweep run counts and average duration as JSON

# Usage

	collector, err := metrics.NewCollector(&metrics.Config{
		Enabled:   true,
		Port:      9090,
		Path:      "/metrics",
		Namespace: "tiercache",
	}, logger)
	if err != nil {
		return err
	}
	if err := collector.Start(ctx); err != nil {
		return err
	}
	defer collector.Stop(context.Background())

	engine, err := cache.New(cache.WithMetrics(collector))
*/
package metrics
