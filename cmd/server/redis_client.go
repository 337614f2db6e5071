package main

import (
	"context"
	"os"
	"strings"

	"waybill/cmd/server/config"
	"waybill/internal/clients"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// buildInventoryClient wires the Redis-backed reservation ledger when
// REDIS_URL is set and falls back to the in-memory inventory client otherwise.
func buildInventoryClient(ctx context.Context, logger zerolog.Logger) (clients.InventoryClient, func(), error) {
	if strings.TrimSpace(os.Getenv("REDIS_URL")) == "" {
		logger.Info().Msg("REDIS_URL not set, using in-memory inventory")
		return clients.NewInMemoryInventoryClient(), func() {}, nil
	}

	cfg, err := config.LoadRedis()
	if err != nil {
		return nil, nil, err
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, nil, err
	}
	if cfg.DialTimeout != nil {
		opts.DialTimeout = *cfg.DialTimeout
	}
	if cfg.ReadTimeout != nil {
		opts.ReadTimeout = *cfg.ReadTimeout
	}
	if cfg.WriteTimeout != nil {
		opts.WriteTimeout = *cfg.WriteTimeout
	}
	if cfg.PoolSize != nil {
		opts.PoolSize = *cfg.PoolSize
	}
	if cfg.MinIdleConns != nil {
		opts.MinIdleConns = *cfg.MinIdleConns
	}
	if cfg.MaxRetries != nil {
		opts.MaxRetries = *cfg.MaxRetries
	}

	client := redis.NewClient(opts)
	if cfg.EnableOTel {
		if err := redisotel.InstrumentTracing(client); err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		if err := redisotel.InstrumentMetrics(client); err != nil {
			_ = client.Close()
			return nil, nil, err
		}
	}

	pingCtx := ctx
	if cfg.HealthcheckTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(pingCtx, cfg.HealthcheckTimeout)
		defer cancel()
	}
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, err
	}

	logger.Info().Msg("redis inventory ledger enabled")
	cleanup := func() {
		if err := client.Close(); err != nil {
			logger.Warn().Err(err).Msg("close redis")
		}
	}
	return clients.NewRedisInventoryClient(client), cleanup, nil
}
