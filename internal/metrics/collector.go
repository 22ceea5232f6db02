package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lexdesk/tiercache/pkg/utils"
)

// Collector exports cache engine events as Prometheus metrics. It satisfies
// cache.Metrics.
type Collector struct {
	mu       sync.RWMutex
	config   *Config
	registry *prometheus.Registry
	logger   *utils.StructuredLogger

	// Prometheus metrics
	requestCounter    *prometheus.CounterVec
	evictionCounter   *prometheus.CounterVec
	demotionCounter   prometheus.Counter
	promotionCounter  prometheus.Counter
	expirationCounter prometheus.Counter
	prefetchCounter   *prometheus.CounterVec
	tierEntries       *prometheus.GaugeVec
	patternGauge      prometheus.Gauge
	sweepDuration     *prometheus.HistogramVec
	sweepRemoved      *prometheus.CounterVec

	// Internal tracking
	sweeps    map[string]*SweepMetrics
	lastReset time.Time

	// HTTP server for metrics endpoint
	server *http.Server
}

// Config represents metrics configuration
type Config struct {
	Enabled   bool              `yaml:"enabled"`
	Port      int               `yaml:"port"`
	Path      string            `yaml:"path"`
	Labels    map[string]string `yaml:"labels"`
	Namespace string            `yaml:"namespace"`
	Subsystem string            `yaml:"subsystem"`
}

// DefaultConfig returns the default metrics configuration
func DefaultConfig() *Config {
	return &Config{
		Enabled:   true,
		Port:      9090,
		Path:      "/metrics",
		Namespace: "tiercache",
		Labels:    make(map[string]string),
	}
}

// SweepMetrics tracks runs of one maintenance sweep
type SweepMetrics struct {
	Runs          int64         `json:"runs"`
	Removed       int64         `json:"removed"`
	TotalDuration time.Duration `json:"total_duration"`
	AvgDuration   time.Duration `json:"avg_duration"`
	LastRun       time.Time     `json:"last_run"`
}

// NewCollector creates a new metrics collector
func NewCollector(config *Config, logger *utils.StructuredLogger) (*Collector, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = utils.NewDiscardLogger()
	}

	cfg := *config
	switch {
	case cfg.Path == "":
		cfg.Path = "/metrics"
	case !strings.HasPrefix(cfg.Path, "/"):
		cfg.Path = "/" + cfg.Path
	}
	if cfg.Path == "/health" || cfg.Path == "/debug/sweeps" {
		return nil, fmt.Errorf("metrics path %s collides with a built-in endpoint", cfg.Path)
	}
	config = &cfg

	collector := &Collector{
		config:    config,
		logger:    logger.WithComponent("metrics"),
		sweeps:    make(map[string]*SweepMetrics),
		lastReset: time.Now(),
	}

	if !config.Enabled {
		return collector, nil
	}

	// Create Prometheus registry
	collector.registry = prometheus.NewRegistry()

	collector.initMetrics()

	// Register metrics with registry
	if err := collector.registerMetrics(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	return collector, nil
}

// Registry exposes the underlying registry, nil when disabled
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Start serves the metrics endpoint until Stop is called
func (c *Collector) Start(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(c.config.Path, c.Handler())
	mux.HandleFunc("/health", c.healthHandler)
	mux.HandleFunc("/debug/sweeps", c.debugSweepsHandler)

	c.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", c.config.Port),
		Handler:           mux,
		ReadHeaderTimeout: 30 * time.Second, // Prevent Slowloris attacks
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	go func() {
		if err := c.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			c.logger.Error("Metrics server error", map[string]interface{}{"error": err.Error()})
		}
	}()

	c.logger.Info("Metrics server started", map[string]interface{}{
		"port": c.config.Port,
		"path": c.config.Path,
	})
	return nil
}

// Stop stops the metrics server
func (c *Collector) Stop(ctx context.Context) error {
	if c.server != nil {
		return c.server.Shutdown(ctx)
	}
	return nil
}

// Handler returns the Prometheus scrape handler
func (c *Collector) Handler() http.Handler {
	if c.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// CacheHit records a hit served from tier
func (c *Collector) CacheHit(tier string) {
	if !c.config.Enabled {
		return
	}
	c.requestCounter.With(prometheus.Labels{"result": "hit", "tier": tier}).Inc()
}

// CacheMiss records a miss
func (c *Collector) CacheMiss() {
	if !c.config.Enabled {
		return
	}
	c.requestCounter.With(prometheus.Labels{"result": "miss", "tier": "none"}).Inc()
}

// Eviction records an entry evicted from tier
func (c *Collector) Eviction(tier string) {
	if !c.config.Enabled {
		return
	}
	c.evictionCounter.With(prometheus.Labels{"tier": tier}).Inc()
}

// Demotion records a hot entry moved to warm
func (c *Collector) Demotion() {
	if !c.config.Enabled {
		return
	}
	c.demotionCounter.Inc()
}

// Promotion records a warm entry moved to hot
func (c *Collector) Promotion() {
	if !c.config.Enabled {
		return
	}
	c.promotionCounter.Inc()
}

// Expiration records entries removed for being past their TTL
func (c *Collector) Expiration(count int) {
	if !c.config.Enabled || count <= 0 {
		return
	}
	c.expirationCounter.Add(float64(count))
}

// PrefetchResult records the outcome of one background load
func (c *Collector) PrefetchResult(success bool) {
	if !c.config.Enabled {
		return
	}
	c.prefetchCounter.With(prometheus.Labels{
		"status": map[bool]string{true: "success", false: "error"}[success],
	}).Inc()
}

// TierSizes updates the entry count gauges
func (c *Collector) TierSizes(hot, warm int) {
	if !c.config.Enabled {
		return
	}
	c.tierEntries.With(prometheus.Labels{"tier": "hot"}).Set(float64(hot))
	c.tierEntries.With(prometheus.Labels{"tier": "warm"}).Set(float64(warm))
}

// PatternCount updates the number of tracked access patterns
func (c *Collector) PatternCount(n int) {
	if !c.config.Enabled {
		return
	}
	c.patternGauge.Set(float64(n))
}

// SweepCompleted records one maintenance sweep
func (c *Collector) SweepCompleted(sweep string, duration time.Duration, removed int) {
	if !c.config.Enabled {
		return
	}

	c.mu.Lock()
	m, exists := c.sweeps[sweep]
	if !exists {
		m = &SweepMetrics{}
		c.sweeps[sweep] = m
	}
	m.Runs++
	m.Removed += int64(removed)
	m.TotalDuration += duration
	m.AvgDuration = time.Duration(int64(m.TotalDuration) / m.Runs)
	m.LastRun = time.Now()
	c.mu.Unlock()

	c.sweepDuration.With(prometheus.Labels{"sweep": sweep}).Observe(duration.Seconds())
	if removed > 0 {
		c.sweepRemoved.With(prometheus.Labels{"sweep": sweep}).Add(float64(removed))
	}
}

// GetSweeps returns a copy of the per-sweep tracking
func (c *Collector) GetSweeps() map[string]SweepMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]SweepMetrics, len(c.sweeps))
	for name, m := range c.sweeps {
		out[name] = *m
	}
	return out
}

// ResetSweeps clears the per-sweep tracking
func (c *Collector) ResetSweeps() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sweeps = make(map[string]*SweepMetrics)
	c.lastReset = time.Now()
}

func (c *Collector) initMetrics() {
	labels := prometheus.Labels(c.config.Labels)

	c.requestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   c.config.Namespace,
			Subsystem:   c.config.Subsystem,
			Name:        "requests_total",
			Help:        "Total number of cache reads by result and tier",
			ConstLabels: labels,
		},
		[]string{"result", "tier"},
	)

	c.evictionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   c.config.Namespace,
			Subsystem:   c.config.Subsystem,
			Name:        "evictions_total",
			Help:        "Total number of entries evicted for capacity",
			ConstLabels: labels,
		},
		[]string{"tier"},
	)

	c.demotionCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   c.config.Namespace,
		Subsystem:   c.config.Subsystem,
		Name:        "demotions_total",
		Help:        "Total number of entries moved from hot to warm",
		ConstLabels: labels,
	})

	c.promotionCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   c.config.Namespace,
		Subsystem:   c.config.Subsystem,
		Name:        "promotions_total",
		Help:        "Total number of entries moved from warm to hot",
		ConstLabels: labels,
	})

	c.expirationCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   c.config.Namespace,
		Subsystem:   c.config.Subsystem,
		Name:        "expirations_total",
		Help:        "Total number of entries removed after their TTL",
		ConstLabels: labels,
	})

	c.prefetchCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   c.config.Namespace,
			Subsystem:   c.config.Subsystem,
			Name:        "prefetch_total",
			Help:        "Total number of background prefetch loads by status",
			ConstLabels: labels,
		},
		[]string{"status"},
	)

	c.tierEntries = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace:   c.config.Namespace,
			Subsystem:   c.config.Subsystem,
			Name:        "tier_entries",
			Help:        "Current number of entries per tier",
			ConstLabels: labels,
		},
		[]string{"tier"},
	)

	c.patternGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   c.config.Namespace,
		Subsystem:   c.config.Subsystem,
		Name:        "access_patterns",
		Help:        "Number of keys with tracked access history",
		ConstLabels: labels,
	})

	c.sweepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   c.config.Namespace,
			Subsystem:   c.config.Subsystem,
			Name:        "sweep_duration_seconds",
			Help:        "Duration of maintenance sweeps in seconds",
			Buckets:     prometheus.ExponentialBuckets(0.0001, 2, 15), // 100µs to ~1.6s
			ConstLabels: labels,
		},
		[]string{"sweep"},
	)

	c.sweepRemoved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   c.config.Namespace,
			Subsystem:   c.config.Subsystem,
			Name:        "sweep_removed_total",
			Help:        "Total number of entries removed by maintenance sweeps",
			ConstLabels: labels,
		},
		[]string{"sweep"},
	)
}

func (c *Collector) registerMetrics() error {
	metrics := []prometheus.Collector{
		c.requestCounter,
		c.evictionCounter,
		c.demotionCounter,
		c.promotionCounter,
		c.expirationCounter,
		c.prefetchCounter,
		c.tierEntries,
		c.patternGauge,
		c.sweepDuration,
		c.sweepRemoved,
	}

	for _, metric := range metrics {
		if err := c.registry.Register(metric); err != nil {
			return err
		}
	}

	return nil
}

// HTTP handlers

func (c *Collector) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy","service":"tiercache-metrics"}`))
}

func (c *Collector) debugSweepsHandler(w http.ResponseWriter, r *http.Request) {
	c.mu.RLock()
	lastReset := c.lastReset
	c.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"uptime":     time.Since(lastReset).String(),
		"last_reset": lastReset,
		"sweeps":     c.GetSweeps(),
	})
}
