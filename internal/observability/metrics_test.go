package observability

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
)

func TestMetricsCountsSagaOutcomes(t *testing.T) {
	t.Parallel()

	m := NewMetrics()
	m.SagaStarted()
	m.SagaStarted()
	m.SagaStarted()
	m.SagaCompleted()
	m.SagaCompensated(false)
	m.SagaCompensated(true)
	m.CompensationFailure()
	m.AddEvicted(2)

	snap := m.Snapshot()
	if snap.SagasStarted != 3 {
		t.Fatalf("started %d, want 3", snap.SagasStarted)
	}
	if snap.SagasCompleted != 1 {
		t.Fatalf("completed %d, want 1", snap.SagasCompleted)
	}
	if snap.SagasCompensated != 2 {
		t.Fatalf("compensated %d, want 2", snap.SagasCompensated)
	}
	if snap.SagaTimeouts != 1 {
		t.Fatalf("timeouts %d, want 1", snap.SagaTimeouts)
	}
	if snap.CompensationFailures != 1 {
		t.Fatalf("compensation failures %d, want 1", snap.CompensationFailures)
	}
	if snap.EvictedSagas != 2 {
		t.Fatalf("evicted %d, want 2", snap.EvictedSagas)
	}
}

func TestMetricsStepSpans(t *testing.T) {
	t.Parallel()

	m := NewMetrics()

	span := m.StartStep("PAYMENT_PROCESSING")
	if got := m.Snapshot().Steps["PAYMENT_PROCESSING"].InFlight; got != 1 {
		t.Fatalf("in flight %d, want 1", got)
	}
	span.End(nil)

	span = m.StartStep("PAYMENT_PROCESSING")
	span.End(errors.New("payment declined"))
	m.AddRetry("PAYMENT_PROCESSING")

	step := m.Snapshot().Steps["PAYMENT_PROCESSING"]
	if step.Count != 2 {
		t.Fatalf("count %d, want 2", step.Count)
	}
	if step.Errors != 1 {
		t.Fatalf("errors %d, want 1", step.Errors)
	}
	if step.Retries != 1 {
		t.Fatalf("retries %d, want 1", step.Retries)
	}
	if step.InFlight != 0 {
		t.Fatalf("in flight %d, want 0", step.InFlight)
	}
}

func TestMetricsNilReceiverIsSafe(t *testing.T) {
	t.Parallel()

	var m *Metrics
	m.SagaStarted()
	m.SagaCompleted()
	m.SagaCompensated(true)
	m.CompensationFailure()
	m.AddEvicted(1)
	m.AddRetry("USER_VALIDATION")
	m.StartStep("USER_VALIDATION").End(nil)

	if snap := m.Snapshot(); snap.SagasStarted != 0 {
		t.Fatalf("nil metrics accumulated counts: %+v", snap)
	}
}

func TestHandlerServesSnapshot(t *testing.T) {
	t.Parallel()

	m := NewMetrics()
	m.SagaStarted()
	m.SagaCompleted()

	rec := httptest.NewRecorder()
	Handler(m).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != 200 {
		t.Fatalf("status %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type %q", ct)
	}

	var snap Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if snap.SagasStarted != 1 || snap.SagasCompleted != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}
