// Command tiercache runs the cache engine with its maintenance scheduler
// and Prometheus endpoint. It is the host process for deployments that
// embed the engine behind a local sidecar and for operating the cache
// configuration in isolation.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lexdesk/tiercache/internal/cache"
	"github.com/lexdesk/tiercache/internal/config"
	"github.com/lexdesk/tiercache/internal/metrics"
	"github.com/lexdesk/tiercache/pkg/utils"
)

func main() {
	var (
		configFile  = flag.String("config", "", "path to YAML configuration file")
		writeConfig = flag.String("write-config", "", "write the effective configuration to this path and exit")
		statsEvery  = flag.Duration("stats-interval", time.Minute, "interval between stats log lines, 0 disables")
	)
	flag.Parse()

	if err := run(*configFile, *writeConfig, *statsEvery); err != nil {
		fmt.Fprintf(os.Stderr, "tiercache: %v\n", err)
		os.Exit(1)
	}
}

func run(configFile, writeConfig string, statsEvery time.Duration) error {
	// 1. Load configuration
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if writeConfig != "" {
		return cfg.SaveToFile(writeConfig)
	}

	// 2. Logger
	logger, closeLog, err := newLogger(cfg.Global)
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Metrics
	collector, err := metrics.NewCollector(&metrics.Config{
		Enabled:   cfg.Monitoring.Metrics.Enabled,
		Port:      cfg.Global.MetricsPort,
		Path:      cfg.Monitoring.Metrics.Path,
		Namespace: cfg.Monitoring.Metrics.Namespace,
		Labels:    cfg.Monitoring.Metrics.CustomLabels,
	}, logger)
	if err != nil {
		return err
	}
	if err := collector.Start(ctx); err != nil {
		return err
	}

	// 4. Engine and maintenance
	engine, err := cache.NewFromConfig(cfg, cache.WithLogger(logger), cache.WithMetrics(collector))
	if err != nil {
		return err
	}

	scheduler := cache.NewScheduler(engine, cache.SchedulerConfigFrom(cfg), logger)
	if err := scheduler.Start(ctx); err != nil {
		return err
	}

	logger.Info("tiercache started", map[string]interface{}{
		"hot_capacity":  cfg.Cache.HotCapacity,
		"warm_capacity": cfg.Cache.WarmCapacity,
		"strategies":    engine.Stats().Strategies,
	})

	if statsEvery > 0 {
		go reportStats(ctx, engine, logger.WithComponent("cache.stats"), statsEvery)
	}

	<-ctx.Done()
	logger.Info("Shutting down")

	// 5. Orderly shutdown
	scheduler.Stop()
	if err := engine.Close(); err != nil {
		logger.Warn("Engine close failed", map[string]interface{}{"error": err.Error()})
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := collector.Stop(shutdownCtx); err != nil {
		logger.Warn("Metrics server shutdown failed", map[string]interface{}{"error": err.Error()})
	}

	return nil
}

func newLogger(global config.GlobalConfig) (*utils.StructuredLogger, func() error, error) {
	level, err := utils.ParseLogLevel(global.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	format, err := utils.ParseLogFormat(global.LogFormat)
	if err != nil {
		return nil, nil, err
	}
	output, closeFn, err := utils.OpenLogOutput(global.LogFile)
	if err != nil {
		return nil, nil, err
	}

	logger, err := utils.NewStructuredLogger(&utils.StructuredLoggerConfig{
		Level:         level,
		Output:        output,
		Format:        format,
		IncludeCaller: level <= utils.DEBUG,
	})
	if err != nil {
		_ = closeFn()
		return nil, nil, err
	}
	return logger, closeFn, nil
}

func reportStats(ctx context.Context, engine *cache.Engine, logger *utils.StructuredLogger, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := engine.Stats()
			logger.Info("Cache stats", map[string]interface{}{
				"hit_rate":       fmt.Sprintf("%.3f", stats.HitRate),
				"hot_size":       stats.HotSize,
				"warm_size":      stats.WarmSize,
				"patterns":       stats.TotalPatterns,
				"evictions":      stats.Evictions,
				"promotions":     stats.Promotions,
				"prefetch_ok":    stats.PrefetchSucceeded,
				"prefetch_error": stats.PrefetchFailed,
				"open_breakers":  stats.OpenBreakers,
			})
		}
	}
}
