package saga

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"waybill/internal/clients"
	"waybill/internal/observability"
	"waybill/internal/orders"
)

func newSweeperFixture(t *testing.T) (*Orchestrator, *clients.InMemoryInventoryClient, *observability.Metrics) {
	t.Helper()

	inventory := clients.NewInMemoryInventoryClient()
	metrics := observability.NewMetrics()
	o := NewOrchestrator(Deps{
		Orders:    orders.NewInMemoryStore(),
		Users:     clients.NoopUserValidationClient{},
		Inventory: inventory,
		Payments:  clients.NoopPaymentClient{},
		Metrics:   metrics,
		Logger:    zerolog.Nop(),
	}, Config{SagaTimeout: 30 * time.Second, Retention: time.Hour})
	o.now = func() time.Time { return testStart }
	return o, inventory, metrics
}

func TestSweepCompensatesExpiredAndEvictsOld(t *testing.T) {
	t.Parallel()

	o, inventory, metrics := newSweeperFixture(t)
	sweeper := NewSweeper(o, time.Second, zerolog.Nop())

	inventory.SetStock("tenant-1", "widget", 5)
	if _, err := inventory.ReserveInventory(context.Background(), "tenant-1", "widget", 2, "res-1", time.Minute); err != nil {
		t.Fatalf("seed reservation: %v", err)
	}

	st, err := o.registry.create("order-1", "tenant-1", testStart, testTimeout)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	st.appendData(DataReservationIDs, "res-1")

	// Before the deadline a sweep is a no-op.
	sweeper.Sweep(context.Background())
	if snap, _ := o.GetSagaState("order-1"); snap.Status.Terminal() {
		t.Fatalf("sweep compensated before the deadline")
	}

	o.now = func() time.Time { return testTimeout.Add(time.Second) }
	sweeper.Sweep(context.Background())

	snap, ok := o.GetSagaState("order-1")
	if !ok {
		t.Fatalf("saga gone right after compensation")
	}
	if snap.Status != StatusCompensated || snap.ErrorMessage != ErrMsgTimeout {
		t.Fatalf("unexpected state after sweep: %s %q", snap.Status, snap.ErrorMessage)
	}
	if inventory.Released("res-1") != 1 {
		t.Fatalf("reservation not released by sweep")
	}
	if inventory.Stock("tenant-1", "widget") != 5 {
		t.Fatalf("stock not restored: %d", inventory.Stock("tenant-1", "widget"))
	}
	if metrics.Snapshot().SagaTimeouts != 1 {
		t.Fatalf("expected 1 saga timeout, got %d", metrics.Snapshot().SagaTimeouts)
	}

	// A second sweep finds nothing to claim.
	sweeper.Sweep(context.Background())
	if inventory.Released("res-1") != 1 {
		t.Fatalf("second sweep released again")
	}
	if metrics.Snapshot().SagaTimeouts != 1 {
		t.Fatalf("second sweep counted another timeout")
	}

	// Past retention the terminal saga is evicted.
	o.now = func() time.Time { return testTimeout.Add(2 * time.Hour) }
	sweeper.Sweep(context.Background())
	if _, ok := o.GetSagaState("order-1"); ok {
		t.Fatalf("terminal saga survived eviction")
	}
	if metrics.Snapshot().EvictedSagas != 1 {
		t.Fatalf("expected 1 evicted saga, got %d", metrics.Snapshot().EvictedSagas)
	}
}

func TestSweeperRunStopsOnContextEnd(t *testing.T) {
	t.Parallel()

	o, _, _ := newSweeperFixture(t)
	sweeper := NewSweeper(o, 5*time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("sweeper did not stop on context end")
	}
}
