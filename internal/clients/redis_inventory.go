package clients

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisInventoryCmds is the minimal command surface used by
// RedisInventoryClient. *redis.Client satisfies it directly.
type RedisInventoryCmds interface {
	DecrBy(ctx context.Context, key string, decrement int64) *redis.IntCmd
	IncrBy(ctx context.Context, key string, value int64) *redis.IntCmd
	HSet(ctx context.Context, key string, values ...any) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisInventoryClient implements InventoryClient against Redis: stock lives
// in per-product counters, reservations in hashes that expire with the hold's
// TTL. Stock is decremented before the hash is written, so a crash between
// the two at worst under-sells until the saga's release runs.
type RedisInventoryClient struct {
	client RedisInventoryCmds
}

// NewRedisInventoryClient constructs a Redis-backed inventory client.
func NewRedisInventoryClient(client RedisInventoryCmds) *RedisInventoryClient {
	return &RedisInventoryClient{client: client}
}

func redisStockKey(tenantID, productID string) string {
	return "stock:" + tenantID + ":" + productID
}

func redisReservationKey(tenantID, reservationID string) string {
	return "reservation:" + tenantID + ":" + reservationID
}

func (c *RedisInventoryClient) ReserveInventory(ctx context.Context, tenantID, productID string, quantity int, reservationID string, ttl time.Duration) (ReservationResult, error) {
	if quantity <= 0 {
		return ReservationResult{}, fmt.Errorf("quantity must be positive, got %d", quantity)
	}

	stockKey := redisStockKey(tenantID, productID)
	remaining, err := c.client.DecrBy(ctx, stockKey, int64(quantity)).Result()
	if err != nil {
		return ReservationResult{}, Transient(fmt.Errorf("decrement stock: %w", err))
	}
	if remaining < 0 {
		// Went below zero; put the stock back and report the business failure.
		if _, err := c.client.IncrBy(ctx, stockKey, int64(quantity)).Result(); err != nil {
			return ReservationResult{}, Transient(fmt.Errorf("restore stock after oversell: %w", err))
		}
		return ReservationResult{}, fmt.Errorf("%w: product %s", ErrInsufficientInventory, productID)
	}

	resKey := redisReservationKey(tenantID, reservationID)
	if err := c.client.HSet(ctx, resKey, map[string]any{
		"tenant_id":  tenantID,
		"product_id": productID,
		"quantity":   quantity,
	}).Err(); err != nil {
		if _, restoreErr := c.client.IncrBy(ctx, stockKey, int64(quantity)).Result(); restoreErr != nil {
			return ReservationResult{}, Transient(fmt.Errorf("write reservation: %w; restore stock: %v", err, restoreErr))
		}
		return ReservationResult{}, Transient(fmt.Errorf("write reservation: %w", err))
	}
	if ttl > 0 {
		if err := c.client.Expire(ctx, resKey, ttl).Err(); err != nil {
			return ReservationResult{}, Transient(fmt.Errorf("set reservation ttl: %w", err))
		}
	}

	return ReservationResult{ReservationID: reservationID}, nil
}

func (c *RedisInventoryClient) ReleaseInventory(ctx context.Context, tenantID, reservationID string) error {
	resKey := redisReservationKey(tenantID, reservationID)
	fields, err := c.client.HGetAll(ctx, resKey).Result()
	if err != nil {
		return Transient(fmt.Errorf("load reservation: %w", err))
	}
	if len(fields) == 0 {
		// Unknown or already expired. Release is idempotent.
		return nil
	}

	quantity, err := strconv.Atoi(fields["quantity"])
	if err != nil {
		return fmt.Errorf("corrupt reservation %s: quantity %q", reservationID, fields["quantity"])
	}
	productID := fields["product_id"]

	if err := c.client.Del(ctx, resKey).Err(); err != nil {
		return Transient(fmt.Errorf("delete reservation: %w", err))
	}
	if _, err := c.client.IncrBy(ctx, redisStockKey(tenantID, productID), int64(quantity)).Result(); err != nil {
		return Transient(fmt.Errorf("restore stock: %w", err))
	}
	return nil
}
