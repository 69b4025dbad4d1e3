package domain

import (
	"context"
	"time"
)

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// LockManager provides distributed locking for background jobs. Market
// operations never take it; they are serialized by the store.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// TokenMetadata is the display metadata of a token series.
type TokenMetadata struct {
	Contract    string `json:"contract"`
	TokenID     string `json:"token_id"`
	URI         string `json:"uri"`
	TotalSupply uint64 `json:"total_supply"`
}

// MetadataCache caches token metadata read from the token collaborator.
type MetadataCache interface {
	Get(ctx context.Context, key ItemKey) (TokenMetadata, error)
	Set(ctx context.Context, key ItemKey, md TokenMetadata) error
	Invalidate(ctx context.Context, key ItemKey) error
}
