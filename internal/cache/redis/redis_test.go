package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/alanyoungcy/assetmarket/internal/domain"
)

// setupRedis starts a disposable Redis container.
func setupRedis(t *testing.T) *Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client, err := New(ctx, ClientConfig{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisComponents(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()
	require.NoError(t, client.Healthy(ctx))

	t.Run("stream append and read", func(t *testing.T) {
		bus := NewSignalBus(client, WithStreamMaxLen(100))
		for i := 0; i < 3; i++ {
			require.NoError(t, bus.StreamAppend(ctx, "test:stream", []byte(fmt.Sprintf("evt-%d", i))))
		}
		msgs, err := bus.StreamRead(ctx, "test:stream", "0", 2)
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		assert.Equal(t, "evt-0", string(msgs[0].Payload))

		rest, err := bus.StreamRead(ctx, "test:stream", msgs[1].ID, 10)
		require.NoError(t, err)
		require.Len(t, rest, 1)
		assert.Equal(t, "evt-2", string(rest[0].Payload))

		none, err := bus.StreamRead(ctx, "test:missing", "0", 10)
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("pattern subscribe", func(t *testing.T) {
		bus := NewSignalBus(client)
		subCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		ch, err := bus.Subscribe(subCtx, "market:*")
		require.NoError(t, err)
		require.NoError(t, bus.Publish(ctx, "market:sale", []byte("hello")))

		select {
		case msg := <-ch:
			assert.Equal(t, "hello", string(msg))
		case <-time.After(5 * time.Second):
			t.Fatal("no message received")
		}

		cancel()
		assert.Eventually(t, func() bool {
			_, open := <-ch
			return !open
		}, 5*time.Second, 10*time.Millisecond)
	})

	t.Run("rate limiter", func(t *testing.T) {
		rl := NewRateLimiter(client)
		for i := 0; i < 3; i++ {
			ok, err := rl.Allow(ctx, "alice", 3, time.Minute)
			require.NoError(t, err)
			assert.True(t, ok, "request %d", i)
		}
		ok, err := rl.Allow(ctx, "alice", 3, time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = rl.Allow(ctx, "bob", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "keys are independent")

		_, err = rl.Allow(ctx, "bob", 0, time.Minute)
		assert.Error(t, err)
	})

	t.Run("lock", func(t *testing.T) {
		lm := NewLockManager(client)
		unlock, err := lm.Acquire(ctx, "archive", time.Minute)
		require.NoError(t, err)

		_, err = lm.Acquire(ctx, "archive", time.Minute)
		require.ErrorIs(t, err, domain.ErrLockHeld)

		unlock()
		unlock()

		again, err := lm.Acquire(ctx, "archive", time.Minute)
		require.NoError(t, err)
		again()
	})

	t.Run("metadata cache", func(t *testing.T) {
		mc := NewMetadataCache(client, time.Minute)
		key := domain.ItemKey{
			Contract: common.HexToAddress("0x0000000000000000000000000000000000001155"),
			TokenID:  domain.NewAmount(7),
		}
		_, err := mc.Get(ctx, key)
		require.ErrorIs(t, err, domain.ErrNotFound)

		md := domain.TokenMetadata{Contract: key.Contract.Hex(), TokenID: "7", URI: "ipfs://seven", TotalSupply: 12}
		require.NoError(t, mc.Set(ctx, key, md))
		got, err := mc.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, md, got)

		ttl, err := client.Underlying().TTL(ctx, metadataKey(key)).Result()
		require.NoError(t, err)
		assert.Positive(t, ttl)

		require.NoError(t, mc.Invalidate(ctx, key))
		_, err = mc.Get(ctx, key)
		require.ErrorIs(t, err, domain.ErrNotFound)
	})
}
