package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/assetmarket/internal/domain"
)

// DefaultStreamMaxLen caps each stream, trimmed approximately on append.
const DefaultStreamMaxLen int64 = 10000

const subscribeBuffer = 128

// SignalBus carries committed market events. Pub/Sub fans them out to live
// subscribers such as the websocket hub; streams keep a replayable tail.
type SignalBus struct {
	rdb    *redis.Client
	maxLen int64
}

// SignalBusOption configures a SignalBus.
type SignalBusOption func(*SignalBus)

// WithStreamMaxLen overrides DefaultStreamMaxLen. Values below one keep the
// default.
func WithStreamMaxLen(n int64) SignalBusOption {
	return func(sb *SignalBus) {
		if n > 0 {
			sb.maxLen = n
		}
	}
}

// NewSignalBus creates a SignalBus on c.
func NewSignalBus(c *Client, opts ...SignalBusOption) *SignalBus {
	sb := &SignalBus{rdb: c.Underlying(), maxLen: DefaultStreamMaxLen}
	for _, opt := range opts {
		opt(sb)
	}
	return sb
}

func (sb *SignalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := sb.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe listens on channel, which may be a glob pattern such as
// "market:*". The returned channel closes when ctx is done.
func (sb *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	var pubsub *redis.PubSub
	if strings.ContainsAny(channel, "*?[") {
		pubsub = sb.rdb.PSubscribe(ctx, channel)
	} else {
		pubsub = sb.rdb.Subscribe(ctx, channel)
	}
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	out := make(chan []byte, subscribeBuffer)
	go func() {
		defer close(out)
		defer pubsub.Close()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (sb *SignalBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	args := &redis.XAddArgs{
		Stream: stream,
		MaxLen: sb.maxLen,
		Approx: true,
		Values: map[string]any{"payload": payload},
	}
	if err := sb.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis: stream append %s: %w", stream, err)
	}
	return nil
}

// StreamRead returns up to count entries after lastID ("0" reads from the
// start). It does not block; an empty stream yields no messages.
func (sb *SignalBus) StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	entries, err := sb.rdb.XRangeN(ctx, stream, "("+normalizeStreamID(lastID), "+", int64(count)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis: stream read %s: %w", stream, err)
	}

	messages := make([]domain.StreamMessage, 0, len(entries))
	for _, e := range entries {
		var data []byte
		switch v := e.Values["payload"].(type) {
		case string:
			data = []byte(v)
		case []byte:
			data = v
		default:
			continue
		}
		messages = append(messages, domain.StreamMessage{ID: e.ID, Payload: data})
	}
	return messages, nil
}

// normalizeStreamID turns "0" or "" into a full stream id usable with an
// exclusive XRANGE start.
func normalizeStreamID(id string) string {
	if id == "" || id == "0" {
		return "0-0"
	}
	return id
}

var _ domain.SignalBus = (*SignalBus)(nil)
