package localcart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const GuestCartTTL = 30 * 24 * time.Hour

// RedisBackend keeps one guest's cart on the server, keyed by the guest id
// from the visitor's cookie. Every write refreshes the TTL.
type RedisBackend struct {
	client  redis.Cmdable
	guestID string
	ttl     time.Duration
}

func NewRedisBackend(client redis.Cmdable, guestID string) *RedisBackend {
	return &RedisBackend{client: client, guestID: guestID, ttl: GuestCartTTL}
}

func (r *RedisBackend) key(key string) string {
	return fmt.Sprintf("guestcart:%s:%s", r.guestID, key)
}

func (r *RedisBackend) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	return data, nil
}

func (r *RedisBackend) Save(ctx context.Context, key string, data []byte) error {
	if err := r.client.Set(ctx, r.key(key), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisBackend) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}
