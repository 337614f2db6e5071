package main

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"waybill/internal/observability"
	"waybill/internal/saga"
)

type stubStateReader struct {
	snapshots map[string]saga.Snapshot
}

func (s *stubStateReader) GetSagaState(orderID string) (saga.Snapshot, bool) {
	snap, ok := s.snapshots[orderID]
	return snap, ok
}

func TestSagaStateHandler(t *testing.T) {
	t.Parallel()

	states := &stubStateReader{snapshots: map[string]saga.Snapshot{
		"order-1": {
			OrderID:     "order-1",
			TenantID:    "tenant-1",
			Status:      saga.StatusCompleted,
			CurrentStep: saga.StepCompleted,
		},
	}}
	handler := sagaStateHandler(states)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/sagas?order_id=order-1", nil))
	if rec.Code != 200 {
		t.Fatalf("status %d", rec.Code)
	}
	var snap saga.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.OrderID != "order-1" || snap.Status != saga.StatusCompleted {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/sagas?order_id=order-x", nil))
	if rec.Code != 404 {
		t.Fatalf("unknown order status %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/sagas", nil))
	if rec.Code != 400 {
		t.Fatalf("missing order_id status %d", rec.Code)
	}
}

func TestAdminMuxRoutes(t *testing.T) {
	t.Parallel()

	mux := newAdminMux(&stubStateReader{}, observability.NewMetrics())

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 200 {
		t.Fatalf("metrics status %d", rec.Code)
	}
}
