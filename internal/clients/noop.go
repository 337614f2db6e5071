package clients

import (
	"context"
	"time"
)

// NoopUserValidationClient is a stub UserValidationClient that accepts every user.
type NoopUserValidationClient struct{}

func (NoopUserValidationClient) ValidateUser(ctx context.Context, tenantID, userID string) (ValidationResult, error) {
	return ValidationResult{Valid: true, Active: true}, nil
}

// NoopInventoryClient is a stub InventoryClient that always succeeds.
type NoopInventoryClient struct{}

func (NoopInventoryClient) ReserveInventory(ctx context.Context, tenantID, productID string, quantity int, reservationID string, ttl time.Duration) (ReservationResult, error) {
	return ReservationResult{ReservationID: reservationID}, nil
}

func (NoopInventoryClient) ReleaseInventory(ctx context.Context, tenantID, reservationID string) error {
	return nil
}

// NoopPaymentClient is a stub PaymentClient that always captures.
type NoopPaymentClient struct{}

func (NoopPaymentClient) ProcessPayment(ctx context.Context, tenantID, userID string, amount Money, paymentMethod, paymentToken string) (PaymentResult, error) {
	return PaymentResult{PaymentID: "noop", TransactionID: "noop", Status: "captured"}, nil
}
