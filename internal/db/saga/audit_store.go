package sagadb

import (
	"context"
	"database/sql"

	"waybill/internal/saga"
)

// AuditStore persists a best-effort trail of saga transitions in Postgres.
// It implements saga.AuditLog; the saga itself stays in memory and is never
// rebuilt from these tables.
type AuditStore struct {
	db *sql.DB
}

// NewAuditStore constructs an AuditStore backed by Postgres.
func NewAuditStore(db *sql.DB) *AuditStore {
	return &AuditStore{db: db}
}

// NewAuditStoreWithSchema initializes the schema then returns the store.
func NewAuditStoreWithSchema(ctx context.Context, db *sql.DB) (*AuditStore, error) {
	store := NewAuditStore(db)
	if err := store.InitSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// InitSchema creates the audit tables if they do not exist.
func (s *AuditStore) InitSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS fulfillment_sagas (
			order_id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			status TEXT NOT NULL,
			error_message TEXT NOT NULL DEFAULT '',
			started_at TIMESTAMPTZ NOT NULL,
			timeout_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS fulfillment_saga_steps (
			id BIGSERIAL PRIMARY KEY,
			order_id TEXT NOT NULL,
			step TEXT NOT NULL,
			outcome TEXT NOT NULL,
			detail TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			FOREIGN KEY (order_id) REFERENCES fulfillment_sagas(order_id) ON DELETE CASCADE
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	return nil
}

// SagaStarted records a fresh saga. An order ID can recur once its previous
// saga was evicted, so the row is upserted.
func (s *AuditStore) SagaStarted(ctx context.Context, snap saga.Snapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fulfillment_sagas (order_id, tenant_id, status, error_message, started_at, timeout_at)
		VALUES ($1, $2, $3, '', $4, $5)
		ON CONFLICT (order_id) DO UPDATE
		SET tenant_id = EXCLUDED.tenant_id,
			status = EXCLUDED.status,
			error_message = '',
			started_at = EXCLUDED.started_at,
			timeout_at = EXCLUDED.timeout_at,
			updated_at = NOW()`,
		snap.OrderID, snap.TenantID, string(snap.Status), snap.StartedAt, snap.TimeoutAt,
	)
	return err
}

// StepRecorded appends a step outcome row.
func (s *AuditStore) StepRecorded(ctx context.Context, orderID string, step saga.Step, outcome, detail string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fulfillment_saga_steps (order_id, step, outcome, detail)
		VALUES ($1, $2, $3, $4)`,
		orderID, string(step), outcome, detail,
	)
	return err
}

// SagaFinished records the terminal status and error message.
func (s *AuditStore) SagaFinished(ctx context.Context, orderID string, status saga.Status, errorMessage string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE fulfillment_sagas
		SET status = $2, error_message = $3, updated_at = NOW()
		WHERE order_id = $1`,
		orderID, string(status), errorMessage,
	)
	return err
}
