// Package redis backs the market's event bus, rate limiting, job locks and
// token metadata cache with go-redis/v9.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const clientName = "marketd"

// ClientConfig holds connection parameters. Zero timeouts use go-redis
// defaults.
type ClientConfig struct {
	Addr        string
	Password    string
	DB          int
	PoolSize    int
	MaxRetries  int
	TLSEnabled  bool
	DialTimeout time.Duration
}

// Client owns the connection pool shared by the bus, limiter, lock manager
// and metadata cache.
type Client struct {
	rdb *redis.Client
}

// New connects to Redis and pings it, so a bad address fails at startup
// rather than on the first market event.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	opts := &redis.Options{
		Addr:        cfg.Addr,
		ClientName:  clientName,
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		MaxRetries:  cfg.MaxRetries,
		DialTimeout: cfg.DialTimeout,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Addr, err)
	}
	return &Client{rdb: rdb}, nil
}

// Healthy pings Redis and reports a pool that has run out of connections.
func (c *Client) Healthy(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	if st := c.rdb.PoolStats(); st.Timeouts > 0 && st.IdleConns == 0 && st.TotalConns >= uint32(c.rdb.Options().PoolSize) {
		return fmt.Errorf("redis: pool exhausted (%d conns, %d timeouts)", st.TotalConns, st.Timeouts)
	}
	return nil
}

// Close closes the connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Underlying returns the driver client for the adapters in this package.
func (c *Client) Underlying() *redis.Client {
	return c.rdb
}
