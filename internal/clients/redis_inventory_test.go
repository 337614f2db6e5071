package clients

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// stubRedisCmds implements RedisInventoryCmds over in-memory maps, with
// injectable errors per command.
type stubRedisCmds struct {
	counters map[string]int64
	hashes   map[string]map[string]string
	expires  map[string]time.Duration

	decrErr    error
	incrErr    error
	hsetErr    error
	expireErr  error
	hgetallErr error
	delErr     error
}

func newStubRedisCmds() *stubRedisCmds {
	return &stubRedisCmds{
		counters: make(map[string]int64),
		hashes:   make(map[string]map[string]string),
		expires:  make(map[string]time.Duration),
	}
}

func (s *stubRedisCmds) DecrBy(ctx context.Context, key string, decrement int64) *redis.IntCmd {
	if s.decrErr != nil {
		return redis.NewIntResult(0, s.decrErr)
	}
	s.counters[key] -= decrement
	return redis.NewIntResult(s.counters[key], nil)
}

func (s *stubRedisCmds) IncrBy(ctx context.Context, key string, value int64) *redis.IntCmd {
	if s.incrErr != nil {
		return redis.NewIntResult(0, s.incrErr)
	}
	s.counters[key] += value
	return redis.NewIntResult(s.counters[key], nil)
}

func (s *stubRedisCmds) HSet(ctx context.Context, key string, values ...any) *redis.IntCmd {
	if s.hsetErr != nil {
		return redis.NewIntResult(0, s.hsetErr)
	}
	hash := s.hashes[key]
	if hash == nil {
		hash = make(map[string]string)
		s.hashes[key] = hash
	}
	for _, v := range values {
		if fields, ok := v.(map[string]any); ok {
			for name, value := range fields {
				switch value := value.(type) {
				case string:
					hash[name] = value
				case int:
					hash[name] = strconv.Itoa(value)
				}
			}
		}
	}
	return redis.NewIntResult(int64(len(hash)), nil)
}

func (s *stubRedisCmds) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	if s.expireErr != nil {
		return redis.NewBoolResult(false, s.expireErr)
	}
	s.expires[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func (s *stubRedisCmds) HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd {
	if s.hgetallErr != nil {
		return redis.NewMapStringStringResult(nil, s.hgetallErr)
	}
	return redis.NewMapStringStringResult(s.hashes[key], nil)
}

func (s *stubRedisCmds) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	if s.delErr != nil {
		return redis.NewIntResult(0, s.delErr)
	}
	var n int64
	for _, key := range keys {
		if _, ok := s.hashes[key]; ok {
			delete(s.hashes, key)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func TestRedisReserveDecrementsStockAndWritesHold(t *testing.T) {
	t.Parallel()

	stub := newStubRedisCmds()
	stub.counters["stock:tenant-1:widget"] = 5
	client := NewRedisInventoryClient(stub)

	result, err := client.ReserveInventory(context.Background(), "tenant-1", "widget", 2, "res-1", time.Minute)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if result.ReservationID != "res-1" {
		t.Fatalf("unexpected reservation id %q", result.ReservationID)
	}
	if stub.counters["stock:tenant-1:widget"] != 3 {
		t.Fatalf("stock not decremented: %d", stub.counters["stock:tenant-1:widget"])
	}

	hash := stub.hashes["reservation:tenant-1:res-1"]
	if hash["tenant_id"] != "tenant-1" || hash["product_id"] != "widget" || hash["quantity"] != "2" {
		t.Fatalf("unexpected reservation hash: %v", hash)
	}
	if stub.expires["reservation:tenant-1:res-1"] != time.Minute {
		t.Fatalf("ttl not set: %v", stub.expires)
	}
}

func TestRedisReserveOversellRestoresStock(t *testing.T) {
	t.Parallel()

	stub := newStubRedisCmds()
	stub.counters["stock:tenant-1:widget"] = 1
	client := NewRedisInventoryClient(stub)

	_, err := client.ReserveInventory(context.Background(), "tenant-1", "widget", 2, "res-1", time.Minute)
	if !errors.Is(err, ErrInsufficientInventory) {
		t.Fatalf("expected ErrInsufficientInventory, got %v", err)
	}
	if IsTransient(err) {
		t.Fatalf("oversell reported transient")
	}
	if stub.counters["stock:tenant-1:widget"] != 1 {
		t.Fatalf("stock not restored after oversell: %d", stub.counters["stock:tenant-1:widget"])
	}
	if len(stub.hashes) != 0 {
		t.Fatalf("reservation written despite oversell: %v", stub.hashes)
	}
}

func TestRedisReserveCommandFailureIsTransient(t *testing.T) {
	t.Parallel()

	stub := newStubRedisCmds()
	stub.decrErr = errors.New("connection refused")
	client := NewRedisInventoryClient(stub)

	_, err := client.ReserveInventory(context.Background(), "tenant-1", "widget", 1, "res-1", time.Minute)
	if err == nil || !IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestRedisReserveRejectsNonPositiveQuantity(t *testing.T) {
	t.Parallel()

	client := NewRedisInventoryClient(newStubRedisCmds())
	if _, err := client.ReserveInventory(context.Background(), "tenant-1", "widget", 0, "res-1", time.Minute); err == nil {
		t.Fatalf("expected error for zero quantity")
	}
}

func TestRedisReleaseRestoresStockOnce(t *testing.T) {
	t.Parallel()

	stub := newStubRedisCmds()
	stub.counters["stock:tenant-1:widget"] = 3
	stub.hashes["reservation:tenant-1:res-1"] = map[string]string{
		"tenant_id":  "tenant-1",
		"product_id": "widget",
		"quantity":   "2",
	}
	client := NewRedisInventoryClient(stub)

	if err := client.ReleaseInventory(context.Background(), "tenant-1", "res-1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if stub.counters["stock:tenant-1:widget"] != 5 {
		t.Fatalf("stock not restored: %d", stub.counters["stock:tenant-1:widget"])
	}
	if _, ok := stub.hashes["reservation:tenant-1:res-1"]; ok {
		t.Fatalf("reservation hash survived release")
	}

	// A repeated or expired release is idempotent.
	if err := client.ReleaseInventory(context.Background(), "tenant-1", "res-1"); err != nil {
		t.Fatalf("repeated release: %v", err)
	}
	if stub.counters["stock:tenant-1:widget"] != 5 {
		t.Fatalf("repeated release changed stock: %d", stub.counters["stock:tenant-1:widget"])
	}
}

func TestRedisReleaseCorruptReservationIsTerminal(t *testing.T) {
	t.Parallel()

	stub := newStubRedisCmds()
	stub.hashes["reservation:tenant-1:res-1"] = map[string]string{
		"product_id": "widget",
		"quantity":   "not-a-number",
	}
	client := NewRedisInventoryClient(stub)

	err := client.ReleaseInventory(context.Background(), "tenant-1", "res-1")
	if err == nil {
		t.Fatalf("expected error for corrupt reservation")
	}
	if IsTransient(err) {
		t.Fatalf("corrupt reservation reported transient")
	}
}
