package saga

import (
	"sync"
	"time"
)

// Status is the saga lifecycle state. COMPLETED and COMPENSATED are terminal.
type Status string

const (
	StatusStarted     Status = "STARTED"
	StatusInProgress  Status = "IN_PROGRESS"
	StatusCompleted   Status = "COMPLETED"
	StatusCompensated Status = "COMPENSATED"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCompensated
}

// Step is the saga's position in the fixed fulfillment sequence.
type Step string

const (
	StepUserValidation       Step = "USER_VALIDATION"
	StepInventoryReservation Step = "INVENTORY_RESERVATION"
	StepPaymentProcessing    Step = "PAYMENT_PROCESSING"
	StepOrderConfirmation    Step = "ORDER_CONFIRMATION"
	StepCompleted            Step = "COMPLETED"
)

func nextStep(s Step) Step {
	switch s {
	case StepUserValidation:
		return StepInventoryReservation
	case StepInventoryReservation:
		return StepPaymentProcessing
	case StepPaymentProcessing:
		return StepOrderConfirmation
	default:
		return StepCompleted
	}
}

// Saga data keys written by steps and read back during compensation.
const (
	DataReservationIDs = "reservation_ids"
	DataPaymentID      = "payment_id"
	DataTransactionID  = "transaction_id"
)

// ErrMsgTimeout is the error message recorded when the sweeper forces
// compensation of an expired saga.
const ErrMsgTimeout = "Saga timeout"

// State is the per-order saga record. It is shared between the goroutine
// driving the saga and the timeout sweeper; every read-modify-write goes
// through the entry mutex, and both compensation paths race through
// claimCompensation so only one of them ever runs the compensation engine.
type State struct {
	mu           sync.Mutex
	orderID      string
	tenantID     string
	status       Status
	currentStep  Step
	startedAt    time.Time
	timeoutAt    time.Time
	finishedAt   time.Time
	errorMessage string
	data         map[string]any
}

// Snapshot is an immutable copy of a State, safe to hand to callers.
type Snapshot struct {
	OrderID      string         `json:"order_id"`
	TenantID     string         `json:"tenant_id"`
	Status       Status         `json:"status"`
	CurrentStep  Step           `json:"current_step"`
	StartedAt    time.Time      `json:"started_at"`
	TimeoutAt    time.Time      `json:"timeout_at"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
}

func newState(orderID, tenantID string, startedAt, timeoutAt time.Time) *State {
	return &State{
		orderID:     orderID,
		tenantID:    tenantID,
		status:      StatusStarted,
		currentStep: StepUserValidation,
		startedAt:   startedAt,
		timeoutAt:   timeoutAt,
		data:        make(map[string]any),
	}
}

// Snapshot returns a copy of the current state.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *State) snapshotLocked() Snapshot {
	data := make(map[string]any, len(s.data))
	for k, v := range s.data {
		if ids, ok := v.([]string); ok {
			v = append([]string(nil), ids...)
		}
		data[k] = v
	}
	return Snapshot{
		OrderID:      s.orderID,
		TenantID:     s.tenantID,
		Status:       s.status,
		CurrentStep:  s.currentStep,
		StartedAt:    s.startedAt,
		TimeoutAt:    s.timeoutAt,
		ErrorMessage: s.errorMessage,
		Data:         data,
	}
}

// beginStep marks the saga in progress if it still sits at the given step.
// It fails when the sweeper already compensated the saga, in which case the
// in-flight driver must abort without side effects.
func (s *State) beginStep(step Step) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() || s.currentStep != step {
		return false
	}
	s.status = StatusInProgress
	return true
}

// advance moves the saga past a completed step. Completing the confirmation
// step is the success transition: status and step flip to COMPLETED together.
func (s *State) advance(from Step, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() || s.currentStep != from {
		return false
	}
	if from == StepOrderConfirmation {
		s.status = StatusCompleted
		s.currentStep = StepCompleted
		s.finishedAt = now
		return true
	}
	s.currentStep = nextStep(from)
	return true
}

// claimCompensation atomically moves the saga to COMPENSATED and returns the
// snapshot the compensation engine should unwind from. Exactly one caller
// wins; later callers (the losing racer, repeated sweeps) get ok=false and
// must not touch collaborators.
func (s *State) claimCompensation(errorMessage string, now time.Time) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() {
		return Snapshot{}, false
	}
	s.status = StatusCompensated
	s.errorMessage = errorMessage
	s.finishedAt = now
	return s.snapshotLocked(), true
}

// putData records a cross-step value. Refused once the saga is terminal so a
// late write cannot be missed by an already-taken compensation snapshot.
func (s *State) putData(key string, value any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() {
		return false
	}
	s.data[key] = value
	return true
}

// appendData appends to a string-list data entry under the same terminal guard.
func (s *State) appendData(key, value string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() {
		return false
	}
	ids, _ := s.data[key].([]string)
	s.data[key] = append(ids, value)
	return true
}

// expired reports whether the saga is past its deadline and still unwound.
func (s *State) expired(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.status.Terminal() && !s.timeoutAt.After(now)
}

// evictable reports whether a terminal saga has outlived the retention grace.
func (s *State) evictable(now time.Time, retention time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status.Terminal() && !s.finishedAt.IsZero() && !s.finishedAt.Add(retention).After(now)
}
