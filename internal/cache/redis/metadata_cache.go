package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/assetmarket/internal/domain"
)

// DefaultMetadataTTL bounds how long token metadata is served from cache.
const DefaultMetadataTTL = 10 * time.Minute

// MetadataCache stores token metadata as JSON in a hash field:
//
//	meta:{contract}:{tokenID}  field "data"
type MetadataCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewMetadataCache creates a MetadataCache on c. A non-positive ttl selects
// DefaultMetadataTTL.
func NewMetadataCache(c *Client, ttl time.Duration) *MetadataCache {
	if ttl <= 0 {
		ttl = DefaultMetadataTTL
	}
	return &MetadataCache{rdb: c.Underlying(), ttl: ttl}
}

func metadataKey(key domain.ItemKey) string {
	return "meta:" + strings.ToLower(key.Contract.Hex()) + ":" + key.TokenID.Dec()
}

// Get returns domain.ErrNotFound on a miss.
func (mc *MetadataCache) Get(ctx context.Context, key domain.ItemKey) (domain.TokenMetadata, error) {
	k := metadataKey(key)
	data, err := mc.rdb.HGet(ctx, k, "data").Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.TokenMetadata{}, fmt.Errorf("redis: metadata %s: %w", k, domain.ErrNotFound)
	}
	if err != nil {
		return domain.TokenMetadata{}, fmt.Errorf("redis: get metadata %s: %w", k, err)
	}
	var md domain.TokenMetadata
	if err := json.Unmarshal(data, &md); err != nil {
		return domain.TokenMetadata{}, fmt.Errorf("redis: decode metadata %s: %w", k, err)
	}
	return md, nil
}

func (mc *MetadataCache) Set(ctx context.Context, key domain.ItemKey, md domain.TokenMetadata) error {
	data, err := json.Marshal(md)
	if err != nil {
		return fmt.Errorf("redis: encode metadata: %w", err)
	}
	k := metadataKey(key)
	pipe := mc.rdb.TxPipeline()
	pipe.HSet(ctx, k, "data", data)
	pipe.Expire(ctx, k, mc.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set metadata %s: %w", k, err)
	}
	return nil
}

func (mc *MetadataCache) Invalidate(ctx context.Context, key domain.ItemKey) error {
	k := metadataKey(key)
	if err := mc.rdb.Del(ctx, k).Err(); err != nil {
		return fmt.Errorf("redis: invalidate metadata %s: %w", k, err)
	}
	return nil
}

var _ domain.MetadataCache = (*MetadataCache)(nil)
