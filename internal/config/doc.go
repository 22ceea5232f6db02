/*
Package config provides configuration management for the tiercache engine.

Configuration is layered. Later sources override earlier ones:

	┌─────────────────────────────────────────────┐
	│        Environment Variables                │ ← Highest Priority
	│           (TIERCACHE_*)                     │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│         Configuration File                  │
	│            (YAML format)                    │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│           Default Values                    │ ← Lowest Priority
	└─────────────────────────────────────────────┘

# Configuration Structure

	global:
	  log_level: INFO          # TRACE, DEBUG, INFO, WARN, ERROR
	  log_format: text         # text or json
	  log_file: ""             # empty means stdout
	  metrics_port: 9090

	cache:
	  hot_capacity: 100        # entries; 0 disables the hot tier
	  warm_capacity: 1000
	  promotion_threshold: 3   # warm entries move up after more hits than this
	  hot_priority_threshold: 8
	  pattern_history: 100     # access timestamps kept per key
	  high_frequency:
	    min_accesses: 5
	    ttl: 10m
	  strategies:              # evaluated after the built-in strategies
	    - name: components
	      namespaces: [component]
	      ttl: 20m
	      priority: 5

	maintenance:
	  expiry_interval: 5m
	  optimization_interval: 15m
	  pattern_max_idle: 24h
	  frequent_window: 1h
	  frequent_threshold: 10

	prefetch:
	  enabled: true
	  max_suggestions: 5
	  co_access_window: 10
	  max_concurrent: 4
	  fetch_timeout: 5s
	  retry:
	    max_attempts: 3
	    initial_delay: 50ms
	    max_delay: 2s
	    multiplier: 2.0
	    jitter: true
	  breaker:                 # per-namespace backend breaker
	    enabled: true
	    failure_threshold: 5   # consecutive failures that open it
	    open_timeout: 30s
	    half_open_probes: 1
	    interval: 1m           # closed-state counts reset this often, 0 never

	monitoring:
	  metrics:
	    enabled: true
	    path: /metrics
	    namespace: tiercache

# Environment Variables

	TIERCACHE_LOG_LEVEL, TIERCACHE_LOG_FORMAT, TIERCACHE_LOG_FILE
	TIERCACHE_METRICS_PORT, TIERCACHE_METRICS_ENABLED
	TIERCACHE_HOT_CAPACITY, TIERCACHE_WARM_CAPACITY, TIERCACHE_PROMOTION_THRESHOLD
	TIERCACHE_EXPIRY_INTERVAL, TIERCACHE_OPTIMIZATION_INTERVAL
	TIERCACHE_PREFETCH_ENABLED, TIERCACHE_PREFETCH_MAX_CONCURRENT
	TIERCACHE_PREFETCH_BREAKER_ENABLED

A malformed override fails LoadFromEnv with an INVALID_CONFIG error rather
than being ignored.

# Usage

	cfg, err := config.Load("/etc/tiercache/config.yaml")
	if err != nil {
		log.Fatal(err)
	}
*/
package config
