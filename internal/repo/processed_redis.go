package repo

import (
	"context"
	"time"
)

// KV is the subset of the Redis cache the idempotency store needs.
type KV interface {
	SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// ProcessedRedis remembers message ids whose business operation completed.
type ProcessedRedis struct {
	Redis KV
	TTL   time.Duration
}

func processedKey(messageID string) string { return "message:" + messageID + ":processed" }

func (r *ProcessedRedis) IsProcessed(ctx context.Context, messageID string) (bool, error) {
	return r.Redis.Exists(ctx, processedKey(messageID))
}

func (r *ProcessedRedis) MarkProcessed(ctx context.Context, messageID string) error {
	_, err := r.Redis.SetIfAbsent(ctx, processedKey(messageID), time.Now().UTC().Format(time.RFC3339Nano), r.TTL)
	return err
}
