package cache

import (
	"github.com/lexdesk/tiercache/internal/circuit"
	"github.com/lexdesk/tiercache/internal/config"
	"github.com/lexdesk/tiercache/pkg/errors"
	"github.com/lexdesk/tiercache/pkg/retry"
)

// NewFromConfig creates an engine from application configuration. Options
// are applied after the configured values and can override them.
func NewFromConfig(cfg *config.Configuration, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.NewDefault()
	}

	configured, err := StrategiesFromConfig(cfg.Cache.Strategies)
	if err != nil {
		return nil, err
	}

	defaults := DefaultStrategyDefaults()
	defaults.HighFrequencyMinAccesses = cfg.Cache.HighFrequency.MinAccesses
	defaults.HighFrequencyTTL = cfg.Cache.HighFrequency.TTL

	base := []Option{
		WithHotCapacity(cfg.Cache.HotCapacity),
		WithWarmCapacity(cfg.Cache.WarmCapacity),
		WithPromotionThreshold(cfg.Cache.PromotionThreshold),
		WithHotPriorityThreshold(cfg.Cache.HotPriorityThreshold),
		WithPatternHistory(cfg.Cache.PatternHistory),
		WithStrategyDefaults(defaults),
		WithPrefetchConfig(prefetchConfigFrom(cfg.Prefetch)),
		WithStrategies(configured...),
	}

	return New(append(base, opts...)...)
}

// StrategiesFromConfig builds namespace strategies from their configured form
func StrategiesFromConfig(configs []config.StrategyConfig) ([]*Strategy, error) {
	strategies := make([]*Strategy, 0, len(configs))
	for _, sc := range configs {
		namespaces := make([]Namespace, 0, len(sc.Namespaces))
		for _, name := range sc.Namespaces {
			ns, ok := ParseNamespace(name)
			if !ok {
				return nil, errors.NewError(errors.ErrCodeInvalidConfig, "unknown namespace in strategy").
					WithComponent("cache").
					WithContext("strategy", sc.Name).
					WithContext("namespace", name)
			}
			namespaces = append(namespaces, ns)
		}
		strategies = append(strategies, NamespaceStrategy(sc.Name, sc.TTL, sc.Priority, namespaces...))
	}
	return strategies, nil
}

// SchedulerConfigFrom maps the maintenance section to scheduler settings
func SchedulerConfigFrom(cfg *config.Configuration) *SchedulerConfig {
	m := cfg.Maintenance
	return &SchedulerConfig{
		ExpiryInterval:       m.ExpiryInterval,
		OptimizationInterval: m.OptimizationInterval,
		PatternMaxIdle:       m.PatternMaxIdle,
		FrequentWindow:       m.FrequentWindow,
		FrequentThreshold:    m.FrequentThreshold,
	}
}

func prefetchConfigFrom(p config.PrefetchConfig) PrefetchConfig {
	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = p.Retry.MaxAttempts
	retryCfg.InitialDelay = p.Retry.InitialDelay
	retryCfg.MaxDelay = p.Retry.MaxDelay
	retryCfg.Multiplier = p.Retry.Multiplier
	retryCfg.Jitter = p.Retry.Jitter

	return PrefetchConfig{
		Enabled:        p.Enabled,
		MaxSuggestions: p.MaxSuggestions,
		CoAccessWindow: p.CoAccessWindow,
		MaxConcurrent:  p.MaxConcurrent,
		FetchTimeout:   p.FetchTimeout,
		Retry:          retryCfg,
		BreakerEnabled: p.Breaker.Enabled,
		Breaker: circuit.Config{
			FailureThreshold: uint32(p.Breaker.FailureThreshold),
			OpenTimeout:      p.Breaker.OpenTimeout,
			HalfOpenProbes:   uint32(p.Breaker.HalfOpenProbes),
			Interval:         p.Breaker.Interval,
		},
	}
}
