package saga

import "context"

// AuditLog records saga transitions for operators. It is observational only:
// failures are logged and never change the saga outcome, and nothing is ever
// read back from it.
type AuditLog interface {
	SagaStarted(ctx context.Context, snap Snapshot) error
	StepRecorded(ctx context.Context, orderID string, step Step, outcome, detail string) error
	SagaFinished(ctx context.Context, orderID string, status Status, errorMessage string) error
}

// NopAuditLog discards every record.
type NopAuditLog struct{}

func (NopAuditLog) SagaStarted(ctx context.Context, snap Snapshot) error { return nil }

func (NopAuditLog) StepRecorded(ctx context.Context, orderID string, step Step, outcome, detail string) error {
	return nil
}

func (NopAuditLog) SagaFinished(ctx context.Context, orderID string, status Status, errorMessage string) error {
	return nil
}
