package saga

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"waybill/internal/clients"
	"waybill/internal/observability"
)

// CompensationEngine unwinds the side effects a failed saga recorded in its
// state. It works from a claimed snapshot, so it runs at most once per saga,
// and it is data-driven: whatever holds the steps managed to record are
// undone, whether or not the step that wrote them fully completed.
type CompensationEngine struct {
	inventory      clients.InventoryClient
	logger         zerolog.Logger
	metrics        *observability.Metrics
	releaseTimeout time.Duration
}

// NewCompensationEngine constructs a compensation engine releasing holds
// through the given inventory client.
func NewCompensationEngine(inventory clients.InventoryClient, logger zerolog.Logger, metrics *observability.Metrics) *CompensationEngine {
	return &CompensationEngine{
		inventory:      inventory,
		logger:         logger,
		metrics:        metrics,
		releaseTimeout: 10 * time.Second,
	}
}

// Compensate walks the completed work in reverse: payment first, then
// inventory. User validation is a read-only check and has nothing to undo.
// Release failures are reported and counted but never stop the unwind; the
// saga is already COMPENSATED by the time this runs.
func (e *CompensationEngine) Compensate(ctx context.Context, snap Snapshot) {
	logger := e.logger.With().Str("order_id", snap.OrderID).Str("tenant_id", snap.TenantID).Logger()

	// Compensation must survive the caller giving up, so it detaches from the
	// caller's cancellation and runs under its own deadline.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.releaseTimeout)
	defer cancel()

	// A captured payment has no refund path here: capture is the last remote
	// step, so a compensated saga with a payment recorded means confirmation
	// failed afterwards. Surface it for manual remediation.
	if paymentID, ok := snap.Data[DataPaymentID].(string); ok && paymentID != "" {
		e.metrics.CompensationFailure()
		logger.Error().
			Str("payment_id", paymentID).
			Str("error_message", snap.ErrorMessage).
			Msg("payment captured for compensated saga, manual remediation required")
	}

	ids, _ := snap.Data[DataReservationIDs].([]string)
	for i := len(ids) - 1; i >= 0; i-- {
		if err := e.inventory.ReleaseInventory(ctx, snap.TenantID, ids[i]); err != nil {
			e.metrics.CompensationFailure()
			logger.Error().
				Str("reservation_id", ids[i]).
				Err(err).
				Msg("inventory release failed, manual remediation required")
			continue
		}
		logger.Info().Str("reservation_id", ids[i]).Msg("inventory reservation released")
	}
}

// ReleaseOrphan releases a single hold that was placed after the saga had
// already been compensated underneath the driver, and therefore is invisible
// to the compensation snapshot.
func (e *CompensationEngine) ReleaseOrphan(ctx context.Context, tenantID, reservationID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.releaseTimeout)
	defer cancel()
	if err := e.inventory.ReleaseInventory(ctx, tenantID, reservationID); err != nil {
		e.metrics.CompensationFailure()
		e.logger.Error().
			Str("tenant_id", tenantID).
			Str("reservation_id", reservationID).
			Err(err).
			Msg("orphan reservation release failed, manual remediation required")
	}
}
