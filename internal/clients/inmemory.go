package clients

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// NewInMemoryUserValidationClient constructs an in-memory user validation client.
// Unknown users validate as invalid.
func NewInMemoryUserValidationClient() *InMemoryUserValidationClient {
	return &InMemoryUserValidationClient{
		users: make(map[string]ValidationResult),
	}
}

// InMemoryUserValidationClient validates users against an in-memory table.
type InMemoryUserValidationClient struct {
	mu       sync.Mutex
	users    map[string]ValidationResult
	failures []error
	calls    int
}

// AddUser registers a user with the given validity and activity flags.
func (c *InMemoryUserValidationClient) AddUser(userID string, valid, active bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users[userID] = ValidationResult{Valid: valid, Active: active}
}

// FailNext queues errors returned by subsequent calls before the table is
// consulted. Used to exercise retry behavior.
func (c *InMemoryUserValidationClient) FailNext(errs ...error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = append(c.failures, errs...)
}

func (c *InMemoryUserValidationClient) ValidateUser(ctx context.Context, tenantID, userID string) (ValidationResult, error) {
	if err := ctx.Err(); err != nil {
		return ValidationResult{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if len(c.failures) > 0 {
		err := c.failures[0]
		c.failures = c.failures[1:]
		return ValidationResult{}, err
	}
	return c.users[userID], nil
}

// Calls reports how many times ValidateUser was invoked (for testing/inspection).
func (c *InMemoryUserValidationClient) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type reservation struct {
	tenantID  string
	productID string
	quantity  int
}

// NewInMemoryInventoryClient constructs an in-memory inventory client with no stock.
func NewInMemoryInventoryClient() *InMemoryInventoryClient {
	return &InMemoryInventoryClient{
		stock:        make(map[string]int),
		reservations: make(map[string]reservation),
		released:     make(map[string]int),
	}
}

// InMemoryInventoryClient tracks stock levels and reservations in memory.
type InMemoryInventoryClient struct {
	mu           sync.Mutex
	stock        map[string]int
	reservations map[string]reservation
	released     map[string]int
	failures     []error
	reserveCalls int
	releaseCalls int
}

func stockKey(tenantID, productID string) string {
	return tenantID + ":" + productID
}

// SetStock sets the available quantity for a product.
func (c *InMemoryInventoryClient) SetStock(tenantID, productID string, quantity int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stock[stockKey(tenantID, productID)] = quantity
}

// FailNext queues errors returned by subsequent ReserveInventory calls.
func (c *InMemoryInventoryClient) FailNext(errs ...error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = append(c.failures, errs...)
}

func (c *InMemoryInventoryClient) ReserveInventory(ctx context.Context, tenantID, productID string, quantity int, reservationID string, ttl time.Duration) (ReservationResult, error) {
	if err := ctx.Err(); err != nil {
		return ReservationResult{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reserveCalls++
	if len(c.failures) > 0 {
		err := c.failures[0]
		c.failures = c.failures[1:]
		return ReservationResult{}, err
	}
	key := stockKey(tenantID, productID)
	if c.stock[key] < quantity {
		return ReservationResult{}, fmt.Errorf("%w: product %s", ErrInsufficientInventory, productID)
	}
	c.stock[key] -= quantity
	c.reservations[reservationID] = reservation{
		tenantID:  tenantID,
		productID: productID,
		quantity:  quantity,
	}
	return ReservationResult{ReservationID: reservationID}, nil
}

func (c *InMemoryInventoryClient) ReleaseInventory(ctx context.Context, tenantID, reservationID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releaseCalls++
	res, ok := c.reservations[reservationID]
	if !ok {
		// Releasing an unknown or expired reservation is a no-op.
		return nil
	}
	delete(c.reservations, reservationID)
	c.stock[stockKey(res.tenantID, res.productID)] += res.quantity
	c.released[reservationID]++
	return nil
}

// Stock returns the available quantity for a product (for testing/inspection).
func (c *InMemoryInventoryClient) Stock(tenantID, productID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stock[stockKey(tenantID, productID)]
}

// Held reports whether a reservation is currently held (for testing/inspection).
func (c *InMemoryInventoryClient) Held(reservationID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.reservations[reservationID]
	return ok
}

// Released returns how many times a reservation was released (for testing/inspection).
func (c *InMemoryInventoryClient) Released(reservationID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.released[reservationID]
}

// ReserveCalls reports how many times ReserveInventory was invoked.
func (c *InMemoryInventoryClient) ReserveCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reserveCalls
}

// ReleaseCalls reports how many times ReleaseInventory was invoked.
func (c *InMemoryInventoryClient) ReleaseCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.releaseCalls
}

// NewInMemoryPaymentClient constructs an in-memory payment client that
// approves every charge.
func NewInMemoryPaymentClient() *InMemoryPaymentClient {
	return &InMemoryPaymentClient{
		payments: make(map[string]Money),
	}
}

// InMemoryPaymentClient records captured payments in memory.
type InMemoryPaymentClient struct {
	mu       sync.Mutex
	payments map[string]Money
	decline  bool
	failures []error
	seq      int
	calls    int
}

// Decline makes every subsequent ProcessPayment call fail with ErrPaymentDeclined.
func (c *InMemoryPaymentClient) Decline(decline bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.decline = decline
}

// FailNext queues errors returned by subsequent ProcessPayment calls.
func (c *InMemoryPaymentClient) FailNext(errs ...error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = append(c.failures, errs...)
}

func (c *InMemoryPaymentClient) ProcessPayment(ctx context.Context, tenantID, userID string, amount Money, paymentMethod, paymentToken string) (PaymentResult, error) {
	if err := ctx.Err(); err != nil {
		return PaymentResult{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if len(c.failures) > 0 {
		err := c.failures[0]
		c.failures = c.failures[1:]
		return PaymentResult{}, err
	}
	if c.decline {
		return PaymentResult{}, ErrPaymentDeclined
	}
	c.seq++
	paymentID := fmt.Sprintf("pay-%d", c.seq)
	c.payments[paymentID] = amount
	return PaymentResult{
		PaymentID:     paymentID,
		TransactionID: fmt.Sprintf("txn-%d", c.seq),
		Status:        "captured",
	}, nil
}

// Captured returns the amount captured under a payment ID (for testing/inspection).
func (c *InMemoryPaymentClient) Captured(paymentID string) (Money, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	amount, ok := c.payments[paymentID]
	return amount, ok
}

// Calls reports how many times ProcessPayment was invoked.
func (c *InMemoryPaymentClient) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}
