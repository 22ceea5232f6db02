package cache

import (
	"context"
	"sync"
	"time"

	"github.com/lexdesk/tiercache/pkg/errors"
	"github.com/lexdesk/tiercache/pkg/utils"
)

// SchedulerConfig controls the maintenance sweeps
type SchedulerConfig struct {
	ExpiryInterval       time.Duration
	OptimizationInterval time.Duration
	PatternMaxIdle       time.Duration
	FrequentWindow       time.Duration
	FrequentThreshold    int
}

// DefaultSchedulerConfig returns the stock sweep cadence
func DefaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		ExpiryInterval:       5 * time.Minute,
		OptimizationInterval: 15 * time.Minute,
		PatternMaxIdle:       24 * time.Hour,
		FrequentWindow:       time.Hour,
		FrequentThreshold:    10,
	}
}

// SweepResult summarizes one expiry sweep
type SweepResult struct {
	ExpiredEntries  int
	DroppedPatterns int
	Duration        time.Duration
}

// Scheduler runs periodic expiry and optimization sweeps against an engine.
// Sweeps take the engine lock per key, so foreground calls interleave with
// them.
type Scheduler struct {
	engine *Engine
	config *SchedulerConfig
	logger *utils.StructuredLogger

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	frequent []Key
}

// NewScheduler creates a scheduler. A nil config uses the defaults.
func NewScheduler(engine *Engine, config *SchedulerConfig, logger *utils.StructuredLogger) *Scheduler {
	if config == nil {
		config = DefaultSchedulerConfig()
	}
	if logger == nil {
		logger = utils.NewDiscardLogger()
	}
	return &Scheduler{
		engine: engine,
		config: config,
		logger: logger.WithComponent("cache.scheduler"),
	}
}

// Start launches the sweep loops. They stop when ctx is canceled or Stop
// is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.NewError(errors.ErrCodeAlreadyStarted, "scheduler already started").
			WithComponent("cache.scheduler").WithOperation("start")
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	s.wg.Add(2)
	go s.loop(ctx, s.config.ExpiryInterval, func() { s.RunExpirySweep() })
	go s.loop(ctx, s.config.OptimizationInterval, func() { s.RunOptimizationSweep() })

	s.logger.Info("Maintenance scheduler started", map[string]interface{}{
		"expiry_interval":       s.config.ExpiryInterval.String(),
		"optimization_interval": s.config.OptimizationInterval.String(),
	})
	return nil
}

// Stop cancels the sweep loops and waits for them to exit
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.running = false
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("Maintenance scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration, sweep func()) {
	defer s.wg.Done()

	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep()
		}
	}
}

// RunExpirySweep removes expired entries and access patterns idle longer
// than PatternMaxIdle.
func (s *Scheduler) RunExpirySweep() SweepResult {
	start := time.Now()
	now := s.engine.Now()

	var result SweepResult
	for _, key := range s.engine.expiredKeys(now) {
		if s.engine.removeExpired(key, now) {
			result.ExpiredEntries++
		}
	}
	result.DroppedPatterns = s.engine.tracker.Compact(now, s.config.PatternMaxIdle)
	result.Duration = time.Since(start)

	metrics := s.engine.metrics
	if result.ExpiredEntries > 0 {
		metrics.Expiration(result.ExpiredEntries)
	}
	metrics.PatternCount(s.engine.tracker.Len())
	metrics.SweepCompleted("expiry", result.Duration, result.ExpiredEntries)

	s.logger.Debug("Expiry sweep completed", map[string]interface{}{
		"expired_entries":  result.ExpiredEntries,
		"dropped_patterns": result.DroppedPatterns,
		"duration":         result.Duration.String(),
	})
	return result
}

// RunOptimizationSweep finds keys accessed at least FrequentThreshold times
// in the last FrequentWindow. The result is diagnostic; nothing is moved.
func (s *Scheduler) RunOptimizationSweep() []Key {
	start := time.Now()
	keys := s.engine.tracker.FrequentKeys(s.engine.Now(), s.config.FrequentWindow, s.config.FrequentThreshold)

	s.mu.Lock()
	s.frequent = keys
	s.mu.Unlock()

	s.engine.metrics.SweepCompleted("optimization", time.Since(start), 0)

	if len(keys) > 0 {
		names := make([]string, len(keys))
		for i, k := range keys {
			names[i] = k.String()
		}
		s.logger.Info("Frequently accessed keys", map[string]interface{}{
			"count": len(keys),
			"keys":  names,
		})
	}
	return keys
}

// FrequentKeys returns the result of the last optimization sweep
func (s *Scheduler) FrequentKeys() []Key {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Key, len(s.frequent))
	copy(out, s.frequent)
	return out
}
