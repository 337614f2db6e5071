package saga

import (
	"errors"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// ErrSagaExists indicates a saga was already started for the order.
var ErrSagaExists = errors.New("saga already exists for order")

// Registry holds every in-flight and recently finished saga, keyed by order
// ID. It is the one structure shared between saga goroutines and the sweeper.
type Registry struct {
	states *xsync.MapOf[string, *State]
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{states: xsync.NewMapOf[string, *State]()}
}

// create inserts a fresh state for the order. At most one state per order ID
// exists at a time.
func (r *Registry) create(orderID, tenantID string, startedAt, timeoutAt time.Time) (*State, error) {
	st := newState(orderID, tenantID, startedAt, timeoutAt)
	if _, loaded := r.states.LoadOrStore(orderID, st); loaded {
		return nil, ErrSagaExists
	}
	return st, nil
}

// get returns the state for an order, if one was ever started and not yet evicted.
func (r *Registry) get(orderID string) (*State, bool) {
	return r.states.Load(orderID)
}

// forEach visits every state. The callback must not block on saga work.
func (r *Registry) forEach(fn func(st *State)) {
	r.states.Range(func(_ string, st *State) bool {
		fn(st)
		return true
	})
}

// evict drops terminal states older than the retention grace and returns how
// many were removed. Retention <= 0 disables eviction.
func (r *Registry) evict(now time.Time, retention time.Duration) int {
	if retention <= 0 {
		return 0
	}
	evicted := 0
	r.states.Range(func(orderID string, st *State) bool {
		if st.evictable(now, retention) {
			r.states.Delete(orderID)
			evicted++
		}
		return true
	})
	return evicted
}

// size returns the number of tracked sagas.
func (r *Registry) size() int {
	return r.states.Size()
}
