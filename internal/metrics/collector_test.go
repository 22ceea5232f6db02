package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lexdesk/tiercache/internal/cache"
)

// compile-time check that the collector can be handed to the engine
var _ cache.Metrics = (*Collector)(nil)

func newTestCollector(t *testing.T) *Collector {
	t.Helper()
	collector, err := NewCollector(&Config{
		Enabled:   true,
		Port:      0,
		Path:      "/metrics",
		Namespace: "tiercache",
		Subsystem: "test",
	}, nil)
	if err != nil {
		t.Fatalf("NewCollector() error = %v", err)
	}
	return collector
}

// metricValue sums the counter/gauge values of the family whose samples
// carry all of the given labels.
func metricValue(t *testing.T, c *Collector, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := c.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	total := 0.0
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			for k, v := range labels {
				found := false
				for _, lp := range m.GetLabel() {
					if lp.GetName() == k && lp.GetValue() == v {
						found = true
						break
					}
				}
				if !found {
					continue metrics
				}
			}
			total += m.GetCounter().GetValue() + m.GetGauge().GetValue()
		}
	}
	return total
}

func TestNewCollector(t *testing.T) {
	t.Parallel()

	t.Run("with valid config", func(t *testing.T) {
		collector := newTestCollector(t)
		if collector.registry == nil {
			t.Error("collector.registry is nil")
		}
		if collector.sweeps == nil {
			t.Error("collector.sweeps map is nil")
		}
	})

	t.Run("with nil config uses defaults", func(t *testing.T) {
		collector, err := NewCollector(nil, nil)
		if err != nil {
			t.Fatalf("NewCollector(nil) error = %v, want nil", err)
		}
		if collector.config.Port != 9090 {
			t.Errorf("default port = %d, want 9090", collector.config.Port)
		}
		if collector.config.Path != "/metrics" {
			t.Errorf("default path = %q, want %q", collector.config.Path, "/metrics")
		}
		if collector.config.Namespace != "tiercache" {
			t.Errorf("default namespace = %q, want %q", collector.config.Namespace, "tiercache")
		}
	})

	t.Run("with disabled config", func(t *testing.T) {
		collector, err := NewCollector(&Config{Enabled: false}, nil)
		if err != nil {
			t.Fatalf("NewCollector() error = %v, want nil", err)
		}
		if collector.Registry() != nil {
			t.Error("disabled collector should not have registry")
		}

		// every event is a no-op
		collector.CacheHit("hot")
		collector.CacheMiss()
		collector.Eviction("warm")
		collector.Demotion()
		collector.Promotion()
		collector.Expiration(3)
		collector.PrefetchResult(false)
		collector.TierSizes(1, 2)
		collector.PatternCount(5)
		collector.SweepCompleted("expiry", time.Millisecond, 1)
		if len(collector.GetSweeps()) != 0 {
			t.Error("disabled collector should not track sweeps")
		}
		if err := collector.Start(context.Background()); err != nil {
			t.Errorf("Start() on disabled collector error = %v", err)
		}
	})
}

func TestCacheEvents(t *testing.T) {
	t.Parallel()
	collector := newTestCollector(t)

	collector.CacheHit("hot")
	collector.CacheHit("hot")
	collector.CacheHit("warm")
	collector.CacheMiss()
	collector.Eviction("hot")
	collector.Eviction("warm")
	collector.Eviction("warm")
	collector.Demotion()
	collector.Promotion()
	collector.Promotion()
	collector.Expiration(4)
	collector.Expiration(0)
	collector.PrefetchResult(true)
	collector.PrefetchResult(false)
	collector.PrefetchResult(true)

	tests := []struct {
		name   string
		labels map[string]string
		want   float64
	}{
		{"tiercache_test_requests_total", map[string]string{"result": "hit", "tier": "hot"}, 2},
		{"tiercache_test_requests_total", map[string]string{"result": "hit", "tier": "warm"}, 1},
		{"tiercache_test_requests_total", map[string]string{"result": "miss"}, 1},
		{"tiercache_test_evictions_total", map[string]string{"tier": "warm"}, 2},
		{"tiercache_test_evictions_total", nil, 3},
		{"tiercache_test_demotions_total", nil, 1},
		{"tiercache_test_promotions_total", nil, 2},
		{"tiercache_test_expirations_total", nil, 4},
		{"tiercache_test_prefetch_total", map[string]string{"status": "success"}, 2},
		{"tiercache_test_prefetch_total", map[string]string{"status": "error"}, 1},
	}

	for _, tt := range tests {
		if got := metricValue(t, collector, tt.name, tt.labels); got != tt.want {
			t.Errorf("%s%v = %v, want %v", tt.name, tt.labels, got, tt.want)
		}
	}
}

func TestGauges(t *testing.T) {
	t.Parallel()
	collector := newTestCollector(t)

	collector.TierSizes(3, 7)
	collector.TierSizes(2, 8)
	collector.PatternCount(11)

	if got := metricValue(t, collector, "tiercache_test_tier_entries", map[string]string{"tier": "hot"}); got != 2 {
		t.Errorf("hot entries = %v, want 2", got)
	}
	if got := metricValue(t, collector, "tiercache_test_tier_entries", map[string]string{"tier": "warm"}); got != 8 {
		t.Errorf("warm entries = %v, want 8", got)
	}
	if got := metricValue(t, collector, "tiercache_test_access_patterns", nil); got != 11 {
		t.Errorf("access patterns = %v, want 11", got)
	}
}

func TestSweepTracking(t *testing.T) {
	t.Parallel()
	collector := newTestCollector(t)

	collector.SweepCompleted("expiry", 2*time.Millisecond, 3)
	collector.SweepCompleted("expiry", 4*time.Millisecond, 0)
	collector.SweepCompleted("optimization", time.Millisecond, 0)

	sweeps := collector.GetSweeps()
	expiry, ok := sweeps["expiry"]
	if !ok {
		t.Fatal("expiry sweep not tracked")
	}
	if expiry.Runs != 2 || expiry.Removed != 3 {
		t.Errorf("expiry = %+v, want 2 runs and 3 removed", expiry)
	}
	if expiry.AvgDuration != 3*time.Millisecond {
		t.Errorf("expiry avg = %v, want 3ms", expiry.AvgDuration)
	}
	if got := metricValue(t, collector, "tiercache_test_sweep_removed_total", map[string]string{"sweep": "expiry"}); got != 3 {
		t.Errorf("sweep removed = %v, want 3", got)
	}

	collector.ResetSweeps()
	if len(collector.GetSweeps()) != 0 {
		t.Error("ResetSweeps did not clear tracking")
	}
}

func TestHandlers(t *testing.T) {
	t.Parallel()
	collector := newTestCollector(t)
	collector.CacheMiss()
	collector.SweepCompleted("expiry", time.Millisecond, 1)

	server := httptest.NewServer(collector.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("scrape failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "tiercache_test_requests_total") {
		t.Errorf("scrape output missing requests_total:\n%s", body)
	}

	rec := httptest.NewRecorder()
	collector.healthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "healthy") {
		t.Errorf("health = %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	collector.debugSweepsHandler(rec, httptest.NewRequest(http.MethodGet, "/debug/sweeps", nil))
	if !strings.Contains(rec.Body.String(), `"expiry"`) {
		t.Errorf("debug sweeps output = %s", rec.Body.String())
	}

	disabled, _ := NewCollector(&Config{Enabled: false}, nil)
	rec = httptest.NewRecorder()
	disabled.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("disabled handler status = %d, want 404", rec.Code)
	}
}

func TestCollectorWithEngine(t *testing.T) {
	t.Parallel()
	collector := newTestCollector(t)

	engine, err := cache.New(cache.WithMetrics(collector), cache.WithHotCapacity(1), cache.WithWarmCapacity(1))
	if err != nil {
		t.Fatalf("cache.New() error = %v", err)
	}
	defer engine.Close()

	engine.Set(cache.MetadataKey("a"), 1)
	engine.Set(cache.MetadataKey("b"), 2)
	engine.Get(cache.MetadataKey("b"))
	engine.Get(cache.MetadataKey("missing"))

	if got := metricValue(t, collector, "tiercache_test_requests_total", map[string]string{"result": "hit"}); got != 1 {
		t.Errorf("hits = %v, want 1", got)
	}
	if got := metricValue(t, collector, "tiercache_test_demotions_total", nil); got != 1 {
		t.Errorf("demotions = %v, want 1", got)
	}
	if got := metricValue(t, collector, "tiercache_test_tier_entries", nil); got != 2 {
		t.Errorf("tier entries = %v, want 2", got)
	}
}

func TestStopWithoutStart(t *testing.T) {
	t.Parallel()
	collector := newTestCollector(t)
	if err := collector.Stop(context.Background()); err != nil {
		t.Errorf("Stop() without Start error = %v", err)
	}
}

func TestCollectorPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		path    string
		want    string
		wantErr bool
	}{
		{"empty path defaults", "", "/metrics", false},
		{"relative path gets a slash", "stats", "/stats", false},
		{"absolute path kept", "/prom", "/prom", false},
		{"health collides", "/health", "", true},
		{"debug collides", "/debug/sweeps", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Enabled: true, Port: 0, Path: tt.path, Namespace: "tiercache"}
			collector, err := NewCollector(cfg, nil)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("NewCollector(path %q) error = nil, want error", tt.path)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewCollector() error = %v", err)
			}
			if collector.config.Path != tt.want {
				t.Errorf("path = %q, want %q", collector.config.Path, tt.want)
			}
			if cfg.Path != tt.path {
				t.Errorf("caller config mutated to %q", cfg.Path)
			}
		})
	}
}

func TestStartWithEmptyPath(t *testing.T) {
	t.Parallel()

	collector, err := NewCollector(&Config{Enabled: true, Port: 0, Path: "", Namespace: "tiercache"}, nil)
	if err != nil {
		t.Fatalf("NewCollector() error = %v", err)
	}
	if err := collector.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := collector.Stop(ctx); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}
