package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/assetmarket/internal/clock"
	"github.com/alanyoungcy/assetmarket/internal/domain"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestScheduleNext(t *testing.T) {
	base := time.Date(2025, 3, 14, 10, 17, 30, 0, time.UTC) // a Friday
	cases := []struct {
		expr string
		want time.Time
	}{
		{"* * * * *", time.Date(2025, 3, 14, 10, 18, 0, 0, time.UTC)},
		{"0 3 * * *", time.Date(2025, 3, 15, 3, 0, 0, 0, time.UTC)},
		{"*/15 * * * *", time.Date(2025, 3, 14, 10, 30, 0, 0, time.UTC)},
		{"0 9-17/4 * * *", time.Date(2025, 3, 14, 13, 0, 0, 0, time.UTC)},
		{"30 2 1 * *", time.Date(2025, 4, 1, 2, 30, 0, 0, time.UTC)},
		{"0 0 * * 7", time.Date(2025, 3, 16, 0, 0, 0, 0, time.UTC)},
		{"5,45 10 * * *", time.Date(2025, 3, 14, 10, 45, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		t.Run(tc.expr, func(t *testing.T) {
			s, err := ParseSchedule(tc.expr)
			require.NoError(t, err)
			got, err := s.Next(base)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseScheduleRejects(t *testing.T) {
	for _, expr := range []string{"", "* * * *", "60 * * * *", "* 24 * * *", "5-1 * * * *", "*/0 * * * *", "x * * * *"} {
		_, err := ParseSchedule(expr)
		assert.Error(t, err, expr)
	}
	s, err := ParseSchedule("0 0 30 2 *")
	require.NoError(t, err)
	_, err = s.Next(time.Now())
	assert.Error(t, err, "february 30th never comes")
}

type fakeArchiver struct {
	calls []time.Time
	err   error
}

func (f *fakeArchiver) ArchiveSnapshot(_ context.Context, at time.Time) (domain.SnapshotResult, error) {
	f.calls = append(f.calls, at)
	if f.err != nil {
		return domain.SnapshotResult{}, f.err
	}
	return domain.SnapshotResult{ItemsPath: "i", PositionsPath: "p", Items: 1}, nil
}

type fakeLocks struct {
	mu   sync.Mutex
	held map[string]bool
}

func (l *fakeLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, domain.ErrLockHeld
	}
	l.held[key] = true
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
	}, nil
}

func TestSnapshotJobRun(t *testing.T) {
	arch := &fakeArchiver{}
	locks := &fakeLocks{held: map[string]bool{}}
	clk := clock.NewManual()
	var keptWith int
	pruner := PruneFunc(func(_ context.Context, keep int) (int, error) {
		keptWith = keep
		return 1, nil
	})
	job := NewSnapshotJob(arch, pruner, 7, locks, time.Minute, clk, quietLogger())

	res, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Items)
	assert.Equal(t, []time.Time{clk.Now()}, arch.calls)
	assert.Equal(t, 7, keptWith)
	assert.Empty(t, locks.held, "lock released")

	unlock, err := locks.Acquire(context.Background(), snapshotLockKey, time.Minute)
	require.NoError(t, err)
	_, err = job.Run(context.Background())
	require.ErrorIs(t, err, domain.ErrLockHeld)
	unlock()
	assert.Len(t, arch.calls, 1)

	arch.err = errors.New("bucket gone")
	_, err = job.Run(context.Background())
	require.Error(t, err)
	assert.Empty(t, locks.held)
}

func TestSnapshotJobWithoutLocks(t *testing.T) {
	arch := &fakeArchiver{}
	job := NewSnapshotJob(arch, nil, 0, nil, 0, clock.NewManual(), quietLogger())
	_, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, arch.calls, 1)
}

// streamBus is an in-memory stream.
type streamBus struct {
	entries []domain.StreamMessage
}

func (b *streamBus) Publish(context.Context, string, []byte) error { return nil }
func (b *streamBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, errors.New("unsupported")
}

func (b *streamBus) StreamAppend(_ context.Context, _ string, payload []byte) error {
	b.entries = append(b.entries, domain.StreamMessage{ID: fmt.Sprintf("%d-0", len(b.entries)+1), Payload: payload})
	return nil
}

func (b *streamBus) StreamRead(_ context.Context, _ string, lastID string, count int) ([]domain.StreamMessage, error) {
	var after int
	if lastID != "0" {
		_, _ = fmt.Sscanf(lastID, "%d-0", &after)
	}
	var out []domain.StreamMessage
	for i := after; i < len(b.entries) && len(out) < count; i++ {
		out = append(out, b.entries[i])
	}
	return out, nil
}

type sinkFunc func(context.Context, domain.MarketEvent) error

func (f sinkFunc) NotifyEvent(ctx context.Context, evt domain.MarketEvent) error { return f(ctx, evt) }

func TestEventRelayPoll(t *testing.T) {
	bus := &streamBus{}
	ctx := context.Background()
	for i := 0; i < relayBatch+5; i++ {
		raw, err := json.Marshal(domain.MarketEvent{ID: fmt.Sprint(i), Type: domain.EventSale})
		require.NoError(t, err)
		require.NoError(t, bus.StreamAppend(ctx, domain.MarketStream, raw))
	}
	require.NoError(t, bus.StreamAppend(ctx, domain.MarketStream, []byte("{broken")))

	var got []string
	sink := sinkFunc(func(_ context.Context, evt domain.MarketEvent) error {
		if evt.ID == "3" {
			return errors.New("webhook down")
		}
		got = append(got, evt.ID)
		return nil
	})
	relay := NewEventRelay(bus, sink, time.Second, "0", quietLogger())

	n, err := relay.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, relayBatch+4, n)
	assert.Len(t, got, relayBatch+4)
	assert.Equal(t, fmt.Sprintf("%d-0", relayBatch+6), relay.Cursor())

	n, err = relay.Poll(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "nothing is delivered twice")
}

func TestStreamIDAt(t *testing.T) {
	assert.Equal(t, "1000-0", StreamIDAt(time.UnixMilli(1000)))
}
