package sagadb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"waybill/internal/saga"
)

func newMock(t *testing.T) (*AuditStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewAuditStore(db), mock
}

func TestInitSchemaCreatesBothTables(t *testing.T) {
	t.Parallel()

	store, mock := newMock(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS fulfillment_sagas").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS fulfillment_saga_steps").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.InitSchema(context.Background()); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSagaStartedUpserts(t *testing.T) {
	t.Parallel()

	store, mock := newMock(t)
	started := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	timeout := started.Add(30 * time.Second)

	mock.ExpectExec("INSERT INTO fulfillment_sagas").
		WithArgs("order-1", "tenant-1", "STARTED", started, timeout).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.SagaStarted(context.Background(), saga.Snapshot{
		OrderID:   "order-1",
		TenantID:  "tenant-1",
		Status:    saga.StatusStarted,
		StartedAt: started,
		TimeoutAt: timeout,
	})
	if err != nil {
		t.Fatalf("saga started: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestStepRecordedInserts(t *testing.T) {
	t.Parallel()

	store, mock := newMock(t)
	mock.ExpectExec("INSERT INTO fulfillment_saga_steps").
		WithArgs("order-1", "PAYMENT_PROCESSING", "failed", "payment declined").
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := store.StepRecorded(context.Background(), "order-1", saga.StepPaymentProcessing, "failed", "payment declined"); err != nil {
		t.Fatalf("step recorded: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSagaFinishedUpdates(t *testing.T) {
	t.Parallel()

	store, mock := newMock(t)
	mock.ExpectExec("UPDATE fulfillment_sagas").
		WithArgs("order-1", "COMPENSATED", "Saga timeout").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.SagaFinished(context.Background(), "order-1", saga.StatusCompensated, "Saga timeout"); err != nil {
		t.Fatalf("saga finished: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestWriteErrorsSurface(t *testing.T) {
	t.Parallel()

	store, mock := newMock(t)
	boom := errors.New("connection refused")
	mock.ExpectExec("UPDATE fulfillment_sagas").WillReturnError(boom)

	if err := store.SagaFinished(context.Background(), "order-1", saga.StatusCompleted, ""); !errors.Is(err, boom) {
		t.Fatalf("expected driver error, got %v", err)
	}
}
