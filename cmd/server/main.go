package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"waybill/cmd/server/config"
	"waybill/internal/clients"
	"waybill/internal/observability"
	"waybill/internal/orders"
	"waybill/internal/saga"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	_ = godotenv.Load()

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger); err != nil {
		logger.Fatal().Err(err).Msg("server error")
	}
}

func run(ctx context.Context, logger zerolog.Logger) error {
	sagaCfg, err := config.LoadSaga()
	if err != nil {
		return err
	}

	metrics := observability.NewMetrics()

	inventory, cleanupInventory, err := buildInventoryClient(ctx, logger)
	if err != nil {
		return err
	}
	defer cleanupInventory()

	audit, cleanupAudit := buildAuditLog(ctx, logger)
	defer cleanupAudit()

	// Stub user/payment clients stand in until real network clients are
	// registered by the embedding order service.
	users, inventory, payments := guardCollaborators(sagaCfg,
		clients.NoopUserValidationClient{}, inventory, clients.NoopPaymentClient{})

	orderStore := orders.NewInMemoryStore()

	orchestrator := saga.NewOrchestrator(saga.Deps{
		Orders:    orderStore,
		Users:     users,
		Inventory: inventory,
		Payments:  payments,
		Audit:     audit,
		Metrics:   metrics,
		Logger:    logger,
	}, orchestratorConfig(sagaCfg))

	sweeper := saga.NewSweeper(orchestrator, sagaCfg.SweepInterval, logger)
	go sweeper.Run(ctx)

	adminSrv, err := startAdminServer(orchestrator, metrics, logger)
	if err != nil {
		return err
	}
	logger.Info().Str("addr", adminSrv.Addr).Msg("fulfillment saga server running")

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return adminSrv.Shutdown(shutdownCtx)
}

func orchestratorConfig(cfg config.SagaConfig) saga.Config {
	out := saga.Config{
		SagaTimeout: cfg.Timeout,
		Retry: clients.RetryPolicy{
			MaxAttempts: cfg.RetryMaxAttempts,
			BaseDelay:   cfg.RetryBaseDelay,
			MaxDelay:    cfg.RetryMaxDelay,
		},
	}
	if cfg.Retention != nil {
		out.Retention = *cfg.Retention
	}
	if cfg.ReservationTTL != nil {
		out.ReservationTTL = *cfg.ReservationTTL
	}
	return out
}

// guardCollaborators applies the configured rate limiter and circuit breaker
// around each collaborator. Every collaborator gets its own limiter and
// breaker so one failing service cannot starve the others.
func guardCollaborators(cfg config.SagaConfig, users clients.UserValidationClient, inventory clients.InventoryClient, payments clients.PaymentClient) (clients.UserValidationClient, clients.InventoryClient, clients.PaymentClient) {
	newLimiter := func() *clients.RateLimiter {
		if cfg.RateLimitInterval == nil || cfg.RateLimitBurst == nil || *cfg.RateLimitBurst <= 0 {
			return nil
		}
		return clients.NewRateLimiter(*cfg.RateLimitInterval, *cfg.RateLimitBurst)
	}
	newBreaker := func() *clients.CircuitBreaker {
		if cfg.BreakerMaxFailures == nil || *cfg.BreakerMaxFailures <= 0 {
			return nil
		}
		breakerCfg := clients.CircuitBreakerConfig{MaxFailures: *cfg.BreakerMaxFailures}
		if cfg.BreakerResetTimeout != nil {
			breakerCfg.ResetTimeout = *cfg.BreakerResetTimeout
		}
		return clients.NewCircuitBreaker(breakerCfg)
	}

	if newLimiter() == nil && newBreaker() == nil {
		return users, inventory, payments
	}

	return clients.NewGuardedUserValidationClient(users, newLimiter(), newBreaker()),
		clients.NewGuardedInventoryClient(inventory, newLimiter(), newBreaker()),
		clients.NewGuardedPaymentClient(payments, newLimiter(), newBreaker())
}
