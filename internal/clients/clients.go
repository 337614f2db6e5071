package clients

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Terminal business failures. These are never retried; the saga compensates
// and reports them through the state's error message.
var (
	ErrInvalidUser           = errors.New("invalid user")
	ErrInactiveUser          = errors.New("inactive user")
	ErrInsufficientInventory = errors.New("insufficient inventory")
	ErrPaymentDeclined       = errors.New("payment declined")
)

// Money is a currency-tagged amount forwarded to the payment collaborator.
type Money struct {
	Amount   float64
	Currency string
}

func (m Money) String() string {
	return fmt.Sprintf("%.2f %s", m.Amount, m.Currency)
}

// ValidationResult reports whether a user may place orders.
type ValidationResult struct {
	Valid  bool
	Active bool
}

// ReservationResult identifies a time-bounded inventory hold.
type ReservationResult struct {
	ReservationID string
}

// PaymentResult identifies a captured payment.
type PaymentResult struct {
	PaymentID     string
	TransactionID string
	Status        string
}

// UserValidationClient checks a user against the account service.
type UserValidationClient interface {
	ValidateUser(ctx context.Context, tenantID, userID string) (ValidationResult, error)
}

// InventoryClient places and releases time-bounded holds on stock.
// Reservations are identified by a caller-supplied reservation ID so a
// release can be issued even if the reserve response was lost.
type InventoryClient interface {
	ReserveInventory(ctx context.Context, tenantID, productID string, quantity int, reservationID string, ttl time.Duration) (ReservationResult, error)
	ReleaseInventory(ctx context.Context, tenantID, reservationID string) error
}

// PaymentClient captures a payment for an order.
type PaymentClient interface {
	ProcessPayment(ctx context.Context, tenantID, userID string, amount Money, paymentMethod, paymentToken string) (PaymentResult, error)
}

type transientError struct {
	err error
}

func (t *transientError) Error() string { return t.err.Error() }

func (t *transientError) Unwrap() error { return t.err }

// Transient marks an error as retryable: a network hiccup, a collaborator
// timeout, anything where a later attempt may succeed. Unmarked errors are
// treated as terminal business failures.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err (or anything it wraps) was marked Transient.
func IsTransient(err error) bool {
	var t *transientError
	return errors.As(err, &t)
}
