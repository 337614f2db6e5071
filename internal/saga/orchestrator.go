package saga

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"waybill/internal/clients"
	"waybill/internal/observability"
	"waybill/internal/orders"
)

// errTerminal signals that the saga went terminal underneath an in-flight
// step, usually because the timeout sweeper compensated it first.
var errTerminal = errors.New("saga already terminal")

// Config carries the orchestrator's tunables.
type Config struct {
	// SagaTimeout is the deadline after which the sweeper force-compensates.
	SagaTimeout time.Duration
	// ReservationTTL bounds inventory holds independently of the saga.
	ReservationTTL time.Duration
	// Retention is how long terminal sagas stay queryable before eviction.
	Retention time.Duration
	// Retry applies to every individual collaborator call.
	Retry clients.RetryPolicy
}

func (c Config) withDefaults() Config {
	if c.SagaTimeout <= 0 {
		c.SagaTimeout = 30 * time.Second
	}
	if c.ReservationTTL <= 0 {
		c.ReservationTTL = 5 * time.Minute
	}
	if c.Retention <= 0 {
		c.Retention = time.Hour
	}
	if c.Retry.MaxAttempts < 1 {
		c.Retry.MaxAttempts = 3
	}
	return c
}

// Deps are the collaborators the orchestrator drives. Audit and Metrics are
// optional; Logger defaults to a no-op logger when left zero-valued.
type Deps struct {
	Orders    orders.Store
	Users     clients.UserValidationClient
	Inventory clients.InventoryClient
	Payments  clients.PaymentClient
	Audit     AuditLog
	Metrics   *observability.Metrics
	Logger    zerolog.Logger
}

// Orchestrator drives the order-fulfillment saga: user validation, inventory
// reservation, payment capture, order confirmation, compensating in reverse
// when a step fails for good.
type Orchestrator struct {
	orders    orders.Store
	users     clients.UserValidationClient
	inventory clients.InventoryClient
	payments  clients.PaymentClient
	registry  *Registry
	engine    *CompensationEngine
	audit     AuditLog
	metrics   *observability.Metrics
	logger    zerolog.Logger
	cfg       Config

	now              func() time.Time
	newReservationID func() string
}

// NewOrchestrator constructs an orchestrator with an empty saga registry.
func NewOrchestrator(deps Deps, cfg Config) *Orchestrator {
	audit := deps.Audit
	if audit == nil {
		audit = NopAuditLog{}
	}
	cfg = cfg.withDefaults()
	return &Orchestrator{
		orders:           deps.Orders,
		users:            deps.Users,
		inventory:        deps.Inventory,
		payments:         deps.Payments,
		registry:         NewRegistry(),
		engine:           NewCompensationEngine(deps.Inventory, deps.Logger, deps.Metrics),
		audit:            audit,
		metrics:          deps.Metrics,
		logger:           deps.Logger,
		cfg:              cfg,
		now:              time.Now,
		newReservationID: uuid.NewString,
	}
}

// ProcessOrder starts the fulfillment saga for an order. It fails
// synchronously when the order cannot be loaded or a saga already exists;
// otherwise the saga runs on its own goroutine and the returned channel
// delivers the final outcome: true only if the saga reached COMPLETED.
func (o *Orchestrator) ProcessOrder(ctx context.Context, orderID, paymentMethod, paymentToken string) (<-chan bool, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	order, err := o.orders.Get(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order %s: %w", orderID, err)
	}

	now := o.now()
	st, err := o.registry.create(orderID, order.TenantID, now, now.Add(o.cfg.SagaTimeout))
	if err != nil {
		return nil, err
	}

	o.metrics.SagaStarted()
	o.auditBestEffort(o.audit.SagaStarted(ctx, st.Snapshot()))

	result := make(chan bool, 1)
	go func() {
		result <- o.run(ctx, st, order, paymentMethod, paymentToken)
	}()
	return result, nil
}

// GetSagaState returns a snapshot of the saga for an order, if one was
// started and has not been evicted yet.
func (o *Orchestrator) GetSagaState(orderID string) (Snapshot, bool) {
	st, ok := o.registry.get(orderID)
	if !ok {
		return Snapshot{}, false
	}
	return st.Snapshot(), true
}

// HandleTimeouts force-compensates every saga past its deadline and returns
// how many it compensated. Safe to run concurrently with in-flight sagas and
// with itself: the compensation claim guarantees each saga unwinds once.
func (o *Orchestrator) HandleTimeouts(ctx context.Context) int {
	now := o.now()
	compensated := 0
	o.registry.forEach(func(st *State) {
		if !st.expired(now) {
			return
		}
		snap, ok := st.claimCompensation(ErrMsgTimeout, now)
		if !ok {
			return
		}
		o.logger.Warn().
			Str("order_id", snap.OrderID).
			Str("step", string(snap.CurrentStep)).
			Msg("saga deadline elapsed, forcing compensation")
		o.engine.Compensate(ctx, snap)
		o.metrics.SagaCompensated(true)
		o.auditBestEffort(o.audit.SagaFinished(ctx, snap.OrderID, StatusCompensated, ErrMsgTimeout))
		compensated++
	})
	return compensated
}

// EvictFinished drops terminal sagas past the retention grace and returns
// how many were evicted.
func (o *Orchestrator) EvictFinished() int {
	n := o.registry.evict(o.now(), o.cfg.Retention)
	o.metrics.AddEvicted(n)
	return n
}

func (o *Orchestrator) run(ctx context.Context, st *State, order orders.Order, paymentMethod, paymentToken string) bool {
	logger := o.logger.With().
		Str("order_id", order.ID).
		Str("tenant_id", order.TenantID).
		Logger()

	if !o.executeStep(ctx, st, StepUserValidation, logger, func(ctx context.Context) error {
		return o.validateUser(ctx, order)
	}) {
		return false
	}

	if !o.executeStep(ctx, st, StepInventoryReservation, logger, func(ctx context.Context) error {
		return o.reserveItems(ctx, st, order)
	}) {
		return false
	}

	if !o.executeStep(ctx, st, StepPaymentProcessing, logger, func(ctx context.Context) error {
		return o.capturePayment(ctx, st, order, paymentMethod, paymentToken, logger)
	}) {
		return false
	}

	if !o.executeStep(ctx, st, StepOrderConfirmation, logger, func(ctx context.Context) error {
		return o.call(ctx, StepOrderConfirmation, func() error {
			return o.orders.Confirm(ctx, order.ID)
		})
	}) {
		return false
	}

	o.metrics.SagaCompleted()
	o.auditBestEffort(o.audit.SagaFinished(ctx, order.ID, StatusCompleted, ""))
	logger.Info().Msg("order fulfillment saga completed")
	return true
}

func (o *Orchestrator) validateUser(ctx context.Context, order orders.Order) error {
	var result clients.ValidationResult
	err := o.call(ctx, StepUserValidation, func() error {
		var callErr error
		result, callErr = o.users.ValidateUser(ctx, order.TenantID, order.UserID)
		return callErr
	})
	if err != nil {
		return err
	}
	if !result.Valid {
		return fmt.Errorf("%w: %s", clients.ErrInvalidUser, order.UserID)
	}
	if !result.Active {
		return fmt.Errorf("%w: %s", clients.ErrInactiveUser, order.UserID)
	}
	return nil
}

// reserveItems places one hold per order line. Reservation is all-or-nothing
// for the order: a failed line fails the step and the holds already recorded
// in the saga data are released by the compensation engine.
func (o *Orchestrator) reserveItems(ctx context.Context, st *State, order orders.Order) error {
	for _, item := range order.Items {
		reservationID := o.newReservationID()
		var result clients.ReservationResult
		err := o.call(ctx, StepInventoryReservation, func() error {
			var callErr error
			result, callErr = o.inventory.ReserveInventory(ctx, order.TenantID, item.ProductID, item.Quantity, reservationID, o.cfg.ReservationTTL)
			return callErr
		})
		if err != nil {
			return fmt.Errorf("reserve %s: %w", item.ProductID, err)
		}
		if !st.appendData(DataReservationIDs, result.ReservationID) {
			// The sweeper compensated this saga mid-step; its snapshot cannot
			// see this hold, so undo it here.
			o.engine.ReleaseOrphan(ctx, order.TenantID, result.ReservationID)
			return errTerminal
		}
	}
	return nil
}

func (o *Orchestrator) capturePayment(ctx context.Context, st *State, order orders.Order, paymentMethod, paymentToken string, logger zerolog.Logger) error {
	amount := clients.Money{Amount: order.Total, Currency: order.Currency}
	var result clients.PaymentResult
	err := o.call(ctx, StepPaymentProcessing, func() error {
		var callErr error
		result, callErr = o.payments.ProcessPayment(ctx, order.TenantID, order.UserID, amount, paymentMethod, paymentToken)
		return callErr
	})
	if err != nil {
		return err
	}
	if !st.putData(DataPaymentID, result.PaymentID) {
		// Compensated underneath us after the capture went through. The
		// snapshot never saw the payment, so raise the alarm directly.
		o.metrics.CompensationFailure()
		logger.Error().
			Str("payment_id", result.PaymentID).
			Msg("payment captured for compensated saga, manual remediation required")
		return errTerminal
	}
	st.putData(DataTransactionID, result.TransactionID)
	return nil
}

// executeStep runs one step under the state machine's guards. It returns true
// only when the saga advanced past the step; on terminal business failure it
// claims and runs compensation, and on caller cancellation it leaves the saga
// untouched for the timeout sweeper.
func (o *Orchestrator) executeStep(ctx context.Context, st *State, step Step, logger zerolog.Logger, fn func(context.Context) error) bool {
	if !st.beginStep(step) {
		logger.Warn().Str("step", string(step)).Msg("step skipped, saga no longer at step")
		return false
	}

	if err := fn(ctx); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			// The caller stopped waiting. Holds stay in place; the sweeper
			// resolves the saga once the deadline passes.
			logger.Warn().Str("step", string(step)).Err(err).Msg("step abandoned, deferring to timeout sweeper")
			return false
		}
		if errors.Is(err, errTerminal) {
			return false
		}
		o.fail(ctx, st, step, err, logger)
		return false
	}

	if !st.advance(step, o.now()) {
		logger.Warn().Str("step", string(step)).Msg("step result discarded, saga compensated concurrently")
		return false
	}
	o.auditBestEffort(o.audit.StepRecorded(ctx, st.orderID, step, "completed", ""))
	return true
}

// fail claims compensation for a step's terminal failure. If the sweeper won
// the race the claim misses and there is nothing left to do.
func (o *Orchestrator) fail(ctx context.Context, st *State, step Step, cause error, logger zerolog.Logger) {
	snap, ok := st.claimCompensation(cause.Error(), o.now())
	if !ok {
		return
	}
	logger.Error().Str("step", string(step)).Err(cause).Msg("saga step failed, compensating")
	o.auditBestEffort(o.audit.StepRecorded(ctx, snap.OrderID, step, "failed", cause.Error()))
	o.engine.Compensate(ctx, snap)
	o.metrics.SagaCompensated(false)
	o.auditBestEffort(o.audit.SagaFinished(ctx, snap.OrderID, StatusCompensated, cause.Error()))
}

// call wraps a single collaborator invocation with the retry policy and a
// metrics span per attempt.
func (o *Orchestrator) call(ctx context.Context, step Step, fn func() error) error {
	attempt := 0
	return o.cfg.Retry.Do(ctx, func() error {
		attempt++
		if attempt > 1 {
			o.metrics.AddRetry(string(step))
		}
		span := o.metrics.StartStep(string(step))
		err := fn()
		span.End(err)
		return err
	})
}

func (o *Orchestrator) auditBestEffort(err error) {
	if err != nil {
		o.logger.Warn().Err(err).Msg("saga audit write failed")
	}
}
