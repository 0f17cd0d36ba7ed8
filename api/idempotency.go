package api

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

const (
	idempotencyKeyPrefix = "idem"
	pendingMarker        = "pending"
	maxPendingTTL        = time.Minute
)

// StoredResponse is the first response produced for an idempotency key.
type StoredResponse struct {
	Status int    `json:"status"`
	Body   []byte `json:"body"`
}

// RedisIdempotency keeps idempotency keys in Redis so every instance replays
// the same response for a retried request.
type RedisIdempotency struct {
	client     *redis.Client
	ttl        time.Duration
	pendingTTL time.Duration
}

// NewRedisIdempotency creates a store whose completed entries live for ttl.
func NewRedisIdempotency(client *redis.Client, ttl time.Duration) *RedisIdempotency {
	pending := ttl
	if pending > maxPendingTTL {
		pending = maxPendingTTL
	}
	return &RedisIdempotency{client: client, ttl: ttl, pendingTTL: pending}
}

func (r *RedisIdempotency) key(userID, key string) string {
	return userID + ":" + idempotencyKeyPrefix + ":" + key
}

// Begin claims the key with a short-lived pending marker.
func (r *RedisIdempotency) Begin(ctx context.Context, userID, key string) (*StoredResponse, bool, error) {
	k := r.key(userID, key)
	for attempt := 0; attempt < 2; attempt++ {
		added, err := r.client.SetNX(ctx, k, pendingMarker, r.pendingTTL).Result()
		if err != nil {
			return nil, false, err
		}
		if added {
			return nil, true, nil
		}
		raw, err := r.client.Get(ctx, k).Bytes()
		if err == redis.Nil {
			// expired between SETNX and GET
			continue
		}
		if err != nil {
			return nil, false, err
		}
		if string(raw) == pendingMarker {
			return nil, false, nil
		}
		var resp StoredResponse
		if err := sonic.Unmarshal(raw, &resp); err != nil {
			return nil, false, err
		}
		return &resp, false, nil
	}
	return nil, false, nil
}

// Complete stores the response for replay.
func (r *RedisIdempotency) Complete(ctx context.Context, userID, key string, resp StoredResponse) error {
	data, err := sonic.Marshal(resp)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.key(userID, key), data, r.ttl).Err()
}

// Abort deletes a claimed key. It is used when the write fails so the caller
// may retry.
func (r *RedisIdempotency) Abort(ctx context.Context, userID, key string) error {
	return r.client.Del(ctx, r.key(userID, key)).Err()
}
