package main

import (
	"context"
	"database/sql"
	"os"
	"strings"
	"time"

	sagadb "waybill/internal/db/saga"
	"waybill/internal/saga"

	"github.com/rs/zerolog"
)

// buildAuditLog wires the Postgres saga audit trail when DATABASE_URL is set.
// The audit trail is best-effort, so wiring failures fall back to the no-op
// log instead of refusing to start.
func buildAuditLog(ctx context.Context, logger zerolog.Logger) (saga.AuditLog, func()) {
	dsn := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dsn == "" {
		return saga.NopAuditLog{}, func() {}
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		logger.Warn().Err(err).Msg("postgres open failed, saga audit disabled")
		return saga.NopAuditLog{}, func() {}
	}

	setupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	store, err := sagadb.NewAuditStoreWithSchema(setupCtx, db)
	if err != nil {
		logger.Warn().Err(err).Msg("postgres init failed, saga audit disabled")
		_ = db.Close()
		return saga.NopAuditLog{}, func() {}
	}

	logger.Info().Msg("postgres saga audit enabled")
	cleanup := func() {
		if err := db.Close(); err != nil {
			logger.Warn().Err(err).Msg("close audit db")
		}
	}
	return store, cleanup
}
