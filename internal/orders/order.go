package orders

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Status is the lifecycle state of an order aggregate.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
)

// ErrNotFound indicates the order does not exist in the store.
var ErrNotFound = errors.New("order not found")

// Item is a single order line.
type Item struct {
	ProductID string
	Quantity  int
}

// Order is the aggregate the fulfillment saga acts on. The saga reads it at
// entry and confirms it as its final step; everything else about order
// persistence belongs to the surrounding order service.
type Order struct {
	ID       string
	TenantID string
	UserID   string
	Items    []Item
	Total    float64
	Currency string
	Status   Status
}

// Store is the narrow order-store surface consumed by the saga.
type Store interface {
	Get(ctx context.Context, orderID string) (Order, error)
	Confirm(ctx context.Context, orderID string) error
}

// NewInMemoryStore constructs an empty in-memory order store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{orders: make(map[string]Order)}
}

// InMemoryStore keeps order aggregates in memory.
type InMemoryStore struct {
	mu         sync.Mutex
	orders     map[string]Order
	confirmErr error
}

// Put inserts or replaces an order.
func (s *InMemoryStore) Put(order Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if order.Status == "" {
		order.Status = StatusPending
	}
	s.orders[order.ID] = order
}

// FailConfirm makes subsequent Confirm calls return err (for testing/inspection).
func (s *InMemoryStore) FailConfirm(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.confirmErr = err
}

func (s *InMemoryStore) Get(ctx context.Context, orderID string) (Order, error) {
	if err := ctx.Err(); err != nil {
		return Order{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok {
		return Order{}, fmt.Errorf("%w: %s", ErrNotFound, orderID)
	}
	return order, nil
}

func (s *InMemoryStore) Confirm(ctx context.Context, orderID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.confirmErr != nil {
		return s.confirmErr
	}
	order, ok := s.orders[orderID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, orderID)
	}
	order.Status = StatusConfirmed
	s.orders[orderID] = order
	return nil
}
