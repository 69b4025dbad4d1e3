package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/assetmarket/internal/domain"
)

const relayBatch = 100

// EventSink receives committed market events.
type EventSink interface {
	NotifyEvent(ctx context.Context, evt domain.MarketEvent) error
}

// EventRelay tails the durable market stream and hands each event to a sink,
// so notifications go out once no matter how many API replicas committed
// them.
type EventRelay struct {
	bus      domain.SignalBus
	sink     EventSink
	interval time.Duration
	cursor   string
	logger   *slog.Logger
}

// NewEventRelay starts reading after the stream id from; use the id of the
// current time to skip history.
func NewEventRelay(bus domain.SignalBus, sink EventSink, interval time.Duration, from string, logger *slog.Logger) *EventRelay {
	if interval <= 0 {
		interval = time.Second
	}
	return &EventRelay{
		bus:      bus,
		sink:     sink,
		interval: interval,
		cursor:   from,
		logger:   logger.With(slog.String("component", "event_relay")),
	}
}

// StreamIDAt returns the stream id that sorts before every entry appended
// after t.
func StreamIDAt(t time.Time) string {
	return fmt.Sprintf("%d-0", t.UnixMilli())
}

// Cursor returns the id of the last relayed entry.
func (r *EventRelay) Cursor() string { return r.cursor }

// Poll relays every entry after the cursor and returns how many it
// delivered. Undecodable entries are skipped; a sink failure is logged and
// the entry is not retried.
func (r *EventRelay) Poll(ctx context.Context) (int, error) {
	delivered := 0
	for {
		msgs, err := r.bus.StreamRead(ctx, domain.MarketStream, r.cursor, relayBatch)
		if err != nil {
			return delivered, fmt.Errorf("pipeline: read %s: %w", domain.MarketStream, err)
		}
		for _, m := range msgs {
			r.cursor = m.ID
			var evt domain.MarketEvent
			if err := json.Unmarshal(m.Payload, &evt); err != nil {
				r.logger.WarnContext(ctx, "pipeline: skip undecodable event",
					slog.String("stream_id", m.ID),
					slog.String("error", err.Error()),
				)
				continue
			}
			if err := r.sink.NotifyEvent(ctx, evt); err != nil {
				r.logger.ErrorContext(ctx, "pipeline: deliver event",
					slog.String("event_id", evt.ID),
					slog.String("type", string(evt.Type)),
					slog.String("error", err.Error()),
				)
				continue
			}
			delivered++
		}
		if len(msgs) < relayBatch {
			return delivered, nil
		}
	}
}

// Run polls until ctx ends.
func (r *EventRelay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		if _, err := r.Poll(ctx); err != nil {
			r.logger.ErrorContext(ctx, "pipeline: relay poll failed", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
