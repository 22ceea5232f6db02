package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/lexdesk/tiercache/pkg/errors"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "TIERCACHE_"

// Configuration represents the complete application configuration
type Configuration struct {
	Global      GlobalConfig      `yaml:"global"`
	Cache       CacheConfig       `yaml:"cache"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
	Prefetch    PrefetchConfig    `yaml:"prefetch"`
	Monitoring  MonitoringConfig  `yaml:"monitoring"`
}

// GlobalConfig represents global application settings
type GlobalConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	LogFile     string `yaml:"log_file"`
	MetricsPort int    `yaml:"metrics_port"`
}

// CacheConfig represents tier sizing and strategy settings
type CacheConfig struct {
	HotCapacity          int              `yaml:"hot_capacity"`
	WarmCapacity         int              `yaml:"warm_capacity"`
	PromotionThreshold   int              `yaml:"promotion_threshold"`
	HotPriorityThreshold int              `yaml:"hot_priority_threshold"`
	PatternHistory       int              `yaml:"pattern_history"`
	HighFrequency        HighFrequency    `yaml:"high_frequency"`
	Strategies           []StrategyConfig `yaml:"strategies"`
}

// HighFrequency tunes the access-count driven strategy
type HighFrequency struct {
	MinAccesses int           `yaml:"min_accesses"`
	TTL         time.Duration `yaml:"ttl"`
}

// StrategyConfig declares an extra namespace strategy. Configured
// strategies are evaluated after the built-in ones.
type StrategyConfig struct {
	Name       string        `yaml:"name"`
	Namespaces []string      `yaml:"namespaces"`
	TTL        time.Duration `yaml:"ttl"`
	Priority   int           `yaml:"priority"`
}

// MaintenanceConfig represents sweep scheduling
type MaintenanceConfig struct {
	ExpiryInterval       time.Duration `yaml:"expiry_interval"`
	OptimizationInterval time.Duration `yaml:"optimization_interval"`
	PatternMaxIdle       time.Duration `yaml:"pattern_max_idle"`
	FrequentWindow       time.Duration `yaml:"frequent_window"`
	FrequentThreshold    int           `yaml:"frequent_threshold"`
}

// PrefetchConfig represents co-access prefetch settings
type PrefetchConfig struct {
	Enabled        bool          `yaml:"enabled"`
	MaxSuggestions int           `yaml:"max_suggestions"`
	CoAccessWindow int           `yaml:"co_access_window"`
	MaxConcurrent  int           `yaml:"max_concurrent"`
	FetchTimeout   time.Duration `yaml:"fetch_timeout"`
	Retry          RetryConfig   `yaml:"retry"`
	Breaker        BreakerConfig `yaml:"breaker"`
}

// BreakerConfig represents the per-namespace backend circuit breaker
type BreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	FailureThreshold int           `yaml:"failure_threshold"`
	OpenTimeout      time.Duration `yaml:"open_timeout"`
	HalfOpenProbes   int           `yaml:"half_open_probes"`
	Interval         time.Duration `yaml:"interval"`
}

// RetryConfig represents retry settings for prefetch loads
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Multiplier   float64       `yaml:"multiplier"`
	Jitter       bool          `yaml:"jitter"`
}

// MonitoringConfig represents monitoring settings
type MonitoringConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig represents metrics settings
type MetricsConfig struct {
	Enabled      bool              `yaml:"enabled"`
	Path         string            `yaml:"path"`
	Namespace    string            `yaml:"namespace"`
	CustomLabels map[string]string `yaml:"custom_labels"`
}

// NewDefault returns a configuration with sensible defaults
func NewDefault() *Configuration {
	return &Configuration{
		Global: GlobalConfig{
			LogLevel:    "INFO",
			LogFormat:   "text",
			LogFile:     "",
			MetricsPort: 9090,
		},
		Cache: CacheConfig{
			HotCapacity:          100,
			WarmCapacity:         1000,
			PromotionThreshold:   3,
			HotPriorityThreshold: 8,
			PatternHistory:       100,
			HighFrequency: HighFrequency{
				MinAccesses: 5,
				TTL:         10 * time.Minute,
			},
		},
		Maintenance: MaintenanceConfig{
			ExpiryInterval:       5 * time.Minute,
			OptimizationInterval: 15 * time.Minute,
			PatternMaxIdle:       24 * time.Hour,
			FrequentWindow:       time.Hour,
			FrequentThreshold:    10,
		},
		Prefetch: PrefetchConfig{
			Enabled:        true,
			MaxSuggestions: 5,
			CoAccessWindow: 10,
			MaxConcurrent:  4,
			FetchTimeout:   5 * time.Second,
			Retry: RetryConfig{
				MaxAttempts:  3,
				InitialDelay: 50 * time.Millisecond,
				MaxDelay:     2 * time.Second,
				Multiplier:   2.0,
				Jitter:       true,
			},
			Breaker: BreakerConfig{
				Enabled:          true,
				FailureThreshold: 5,
				OpenTimeout:      30 * time.Second,
				HalfOpenProbes:   1,
				Interval:         time.Minute,
			},
		},
		Monitoring: MonitoringConfig{
			Metrics: MetricsConfig{
				Enabled:   true,
				Path:      "/metrics",
				Namespace: "tiercache",
			},
		},
	}
}

// Load builds a configuration from defaults, an optional YAML file and the
// environment, then validates it.
func Load(filename string) (*Configuration, error) {
	cfg := NewDefault()
	if filename != "" {
		if err := cfg.LoadFromFile(filename); err != nil {
			return nil, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return errors.Wrap(errors.ErrCodeConfigLoad, "failed to read config file", err).
			WithContext("file", filename)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.Wrap(errors.ErrCodeConfigLoad, "failed to parse config file", err).
			WithContext("file", filename)
	}

	return nil
}

// LoadFromEnv applies TIERCACHE_* environment overrides
func (c *Configuration) LoadFromEnv() error {
	// Global settings
	if val := os.Getenv(EnvPrefix + "LOG_LEVEL"); val != "" {
		c.Global.LogLevel = val
	}
	if val := os.Getenv(EnvPrefix + "LOG_FORMAT"); val != "" {
		c.Global.LogFormat = val
	}
	if val := os.Getenv(EnvPrefix + "LOG_FILE"); val != "" {
		c.Global.LogFile = val
	}

	overrides := []struct {
		name  string
		apply func(string) error
	}{
		{"METRICS_PORT", intSetter(&c.Global.MetricsPort)},
		{"HOT_CAPACITY", intSetter(&c.Cache.HotCapacity)},
		{"WARM_CAPACITY", intSetter(&c.Cache.WarmCapacity)},
		{"PROMOTION_THRESHOLD", intSetter(&c.Cache.PromotionThreshold)},
		{"EXPIRY_INTERVAL", durationSetter(&c.Maintenance.ExpiryInterval)},
		{"OPTIMIZATION_INTERVAL", durationSetter(&c.Maintenance.OptimizationInterval)},
		{"PREFETCH_ENABLED", boolSetter(&c.Prefetch.Enabled)},
		{"PREFETCH_MAX_CONCURRENT", intSetter(&c.Prefetch.MaxConcurrent)},
		{"PREFETCH_BREAKER_ENABLED", boolSetter(&c.Prefetch.Breaker.Enabled)},
		{"METRICS_ENABLED", boolSetter(&c.Monitoring.Metrics.Enabled)},
	}

	for _, o := range overrides {
		val := os.Getenv(EnvPrefix + o.name)
		if val == "" {
			continue
		}
		if err := o.apply(val); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidConfig, "invalid environment override", err).
				WithContext("variable", EnvPrefix+o.name)
		}
	}

	return nil
}

func intSetter(dst *int) func(string) error {
	return func(val string) error {
		n, err := strconv.Atoi(val)
		if err != nil {
			return err
		}
		*dst = n
		return nil
	}
}

func durationSetter(dst *time.Duration) func(string) error {
	return func(val string) error {
		d, err := time.ParseDuration(val)
		if err != nil {
			return err
		}
		*dst = d
		return nil
	}
}

func boolSetter(dst *bool) func(string) error {
	return func(val string) error {
		b, err := strconv.ParseBool(val)
		if err != nil {
			return err
		}
		*dst = b
		return nil
	}
}

// SaveToFile saves the configuration to a YAML file
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Configuration) Validate() error {
	invalid := func(field, msg string) error {
		return errors.NewError(errors.ErrCodeConfigValidation, msg).
			WithComponent("config").
			WithContext("field", field)
	}

	if c.Cache.HotCapacity < 0 {
		return invalid("cache.hot_capacity", "hot_capacity must not be negative")
	}
	if c.Cache.WarmCapacity < 0 {
		return invalid("cache.warm_capacity", "warm_capacity must not be negative")
	}
	if c.Cache.PromotionThreshold < 0 {
		return invalid("cache.promotion_threshold", "promotion_threshold must not be negative")
	}
	if c.Cache.HighFrequency.MinAccesses <= 0 {
		return invalid("cache.high_frequency.min_accesses", "min_accesses must be greater than 0")
	}
	if c.Cache.HighFrequency.TTL <= 0 {
		return invalid("cache.high_frequency.ttl", "high frequency ttl must be greater than 0")
	}

	seen := make(map[string]struct{}, len(c.Cache.Strategies))
	for i, s := range c.Cache.Strategies {
		field := fmt.Sprintf("cache.strategies[%d]", i)
		if s.Name == "" {
			return invalid(field, "strategy name is required")
		}
		if _, dup := seen[s.Name]; dup {
			return invalid(field, fmt.Sprintf("duplicate strategy name: %s", s.Name))
		}
		seen[s.Name] = struct{}{}
		if len(s.Namespaces) == 0 {
			return invalid(field, fmt.Sprintf("strategy %s must list at least one namespace", s.Name))
		}
		if s.TTL <= 0 {
			return invalid(field, fmt.Sprintf("strategy %s ttl must be greater than 0", s.Name))
		}
	}

	if c.Maintenance.ExpiryInterval <= 0 {
		return invalid("maintenance.expiry_interval", "expiry_interval must be greater than 0")
	}
	if c.Maintenance.OptimizationInterval <= 0 {
		return invalid("maintenance.optimization_interval", "optimization_interval must be greater than 0")
	}
	if c.Maintenance.PatternMaxIdle <= 0 {
		return invalid("maintenance.pattern_max_idle", "pattern_max_idle must be greater than 0")
	}

	if c.Prefetch.MaxConcurrent <= 0 {
		return invalid("prefetch.max_concurrent", "max_concurrent must be greater than 0")
	}
	if c.Prefetch.Retry.MaxAttempts <= 0 {
		return invalid("prefetch.retry.max_attempts", "max_attempts must be greater than 0")
	}
	if b := c.Prefetch.Breaker; b.Enabled {
		if b.FailureThreshold <= 0 {
			return invalid("prefetch.breaker.failure_threshold", "failure_threshold must be greater than 0")
		}
		if b.OpenTimeout <= 0 {
			return invalid("prefetch.breaker.open_timeout", "open_timeout must be greater than 0")
		}
		if b.HalfOpenProbes < 0 {
			return invalid("prefetch.breaker.half_open_probes", "half_open_probes must not be negative")
		}
		if b.Interval < 0 {
			return invalid("prefetch.breaker.interval", "interval must not be negative")
		}
	}

	if c.Monitoring.Metrics.Enabled && (c.Global.MetricsPort <= 0 || c.Global.MetricsPort > 65535) {
		return invalid("global.metrics_port", fmt.Sprintf("invalid metrics_port: %d", c.Global.MetricsPort))
	}
	if c.Monitoring.Metrics.Enabled && !strings.HasPrefix(c.Monitoring.Metrics.Path, "/") {
		return invalid("monitoring.metrics.path", fmt.Sprintf("metrics path must start with /: %q", c.Monitoring.Metrics.Path))
	}

	validLogLevels := []string{"TRACE", "DEBUG", "INFO", "WARN", "ERROR"}
	logLevelValid := false
	for _, level := range validLogLevels {
		if strings.EqualFold(c.Global.LogLevel, level) {
			logLevelValid = true
			break
		}
	}
	if !logLevelValid {
		return invalid("global.log_level", fmt.Sprintf("invalid log_level: %s (must be one of: %s)",
			c.Global.LogLevel, strings.Join(validLogLevels, ", ")))
	}

	switch strings.ToLower(c.Global.LogFormat) {
	case "", "text", "json":
	default:
		return invalid("global.log_format", fmt.Sprintf("invalid log_format: %s", c.Global.LogFormat))
	}

	return nil
}
