package memory

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/assetmarket/internal/domain"
)

const busBuffer = 64

type subscriber struct {
	pattern string
	ch      chan []byte
}

type streamEntry struct {
	ms, seq int64
	payload []byte
}

// Bus is an in-process domain.SignalBus for single-replica runs. Channel
// patterns use the glob syntax of path.Match. Stream ids mimic Redis
// ("<unix ms>-<seq>") so cursors carry over.
type Bus struct {
	mu      sync.Mutex
	subs    map[*subscriber]struct{}
	streams map[string][]streamEntry
	maxLen  int
	now     func() time.Time
}

// NewBus returns a bus whose streams keep at most maxLen entries (0 keeps
// everything).
func NewBus(maxLen int) *Bus {
	return &Bus{
		subs:    map[*subscriber]struct{}{},
		streams: map[string][]streamEntry{},
		maxLen:  maxLen,
		now:     time.Now,
	}
}

// Publish delivers payload to every matching subscriber. Slow subscribers
// miss messages rather than block the publisher.
func (b *Bus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.subs {
		if ok, _ := path.Match(s.pattern, channel); !ok {
			continue
		}
		select {
		case s.ch <- append([]byte(nil), payload...):
		default:
		}
	}
	return nil
}

// Subscribe returns a channel closed when ctx ends.
func (b *Bus) Subscribe(ctx context.Context, pattern string) (<-chan []byte, error) {
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("memory: subscribe %q: %w", pattern, err)
	}
	s := &subscriber{pattern: pattern, ch: make(chan []byte, busBuffer)}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, s)
		close(s.ch)
		b.mu.Unlock()
	}()
	return s.ch, nil
}

// StreamAppend adds payload to the end of stream.
func (b *Bus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	entries := b.streams[stream]
	next := streamEntry{ms: b.now().UnixMilli(), payload: append([]byte(nil), payload...)}
	if n := len(entries); n > 0 && entries[n-1].ms >= next.ms {
		next.ms, next.seq = entries[n-1].ms, entries[n-1].seq+1
	}
	entries = append(entries, next)
	if b.maxLen > 0 && len(entries) > b.maxLen {
		entries = entries[len(entries)-b.maxLen:]
	}
	b.streams[stream] = entries
	return nil
}

// StreamRead returns up to count entries with ids strictly after lastID.
func (b *Bus) StreamRead(_ context.Context, stream, lastID string, count int) ([]domain.StreamMessage, error) {
	ms, seq, err := parseStreamID(lastID)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.StreamMessage
	for _, e := range b.streams[stream] {
		if e.ms < ms || (e.ms == ms && e.seq <= seq) {
			continue
		}
		out = append(out, domain.StreamMessage{
			ID:      fmt.Sprintf("%d-%d", e.ms, e.seq),
			Payload: append([]byte(nil), e.payload...),
		})
		if count > 0 && len(out) == count {
			break
		}
	}
	return out, nil
}

// parseStreamID accepts "", "0", "<ms>" and "<ms>-<seq>". The empty forms
// read from the beginning.
func parseStreamID(id string) (ms, seq int64, err error) {
	if id == "" || id == "0" {
		return -1, 0, nil
	}
	msPart, seqPart, hasSeq := strings.Cut(id, "-")
	if ms, err = strconv.ParseInt(msPart, 10, 64); err != nil {
		return 0, 0, fmt.Errorf("memory: bad stream id %q", id)
	}
	if hasSeq {
		if seq, err = strconv.ParseInt(seqPart, 10, 64); err != nil {
			return 0, 0, fmt.Errorf("memory: bad stream id %q", id)
		}
	}
	return ms, seq, nil
}

var _ domain.SignalBus = (*Bus)(nil)
