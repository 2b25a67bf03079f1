// Package app wires configuration, storage and services for the binaries.
package app

import (
	"context"
	"fmt"
	"time"

	"reelflow/internal/config"
	"reelflow/internal/extract"
	"reelflow/internal/lock"
	"reelflow/internal/logger"
	"reelflow/internal/metrics"
	"reelflow/internal/providers"
	"reelflow/internal/storage"
	"reelflow/internal/supply"
)

// Boot loads and validates configuration, builds the logger and opens the
// database with the schema applied.
func Boot(ctx context.Context) (config.Config, *logger.Logger, *storage.DB, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return cfg, nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return cfg, nil, nil, fmt.Errorf("build logger: %w", err)
	}

	dbCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	db, err := storage.NewDB(dbCtx, cfg.PostgresURL)
	if err != nil {
		return cfg, log, nil, err
	}
	if err := db.Migrate(dbCtx); err != nil {
		db.Close()
		return cfg, log, nil, err
	}
	return cfg, log, db, nil
}

// NewSupplyService builds the supply service over the Postgres store.
func NewSupplyService(cfg config.Config, store *storage.Store, log *logger.Logger, m *metrics.Metrics) (*supply.Service, error) {
	pm, err := providers.NewManager(cfg)
	if err != nil {
		return nil, err
	}
	return supply.NewService(
		store,
		store,
		extract.New(cfg.UploadsRoot),
		pm,
		supply.SettingsFromConfig(cfg),
		log,
		supply.WithMetrics(m),
	), nil
}

// NewPassLocker returns the Redis locker when REELFLOW_REDIS_ADDR is set and a
// process-local one otherwise. The returned close func is never nil.
func NewPassLocker(ctx context.Context, cfg config.Config) (lock.Locker, func(), error) {
	if cfg.RedisAddr == "" {
		return lock.NewLocal(), func() {}, nil
	}
	rl, err := lock.NewRedis(ctx, cfg.RedisAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("redis lock unavailable: %w", err)
	}
	return rl, func() { _ = rl.Close() }, nil
}

// LogSettings records the effective configuration at startup.
func LogSettings(log *logger.Logger, cfg config.Config, component string) {
	log.Info(component+" starting",
		"scheduler_mode", cfg.SchedulerMode,
		"supply_interval", cfg.SupplyInterval.String(),
		"min_buffer", cfg.MinBuffer,
		"chunk_size", cfg.ChunkSize,
		"overlap_padding", cfg.OverlapPadding,
		"generation_enabled", cfg.GenerationEnabled,
		"llm_providers", cfg.LLMProviders,
		"sampling_slack", cfg.SamplingSlack,
		"temporal_address", cfg.TemporalAddress,
		"task_queue", cfg.TemporalTaskQueue)
}
