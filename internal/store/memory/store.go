// Package memory implements the market store in process memory. Every
// transaction holds the store lock for its whole duration and keeps an undo
// journal, so a failed transaction leaves no trace.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/assetmarket/internal/domain"
)

var errReadOnly = errors.New("memory: write in read-only transaction")

type state struct {
	nextItem  uint64
	nextPos   uint64
	items     map[uint64]domain.Item
	itemKeys  map[domain.ItemKey]uint64
	positions map[uint64]domain.Position
	counts    map[domain.State]uint64
	ledger    map[common.Address]domain.Amount
	custody   domain.Amount
	successor common.Address
	fees      map[domain.State]uint32
}

// Store implements domain.MarketStore.
type Store struct {
	mu sync.RWMutex
	st *state
}

// New returns an empty store. Item and position ids start at 1.
func New() *Store {
	return &Store{st: &state{
		items:     make(map[uint64]domain.Item),
		itemKeys:  make(map[domain.ItemKey]uint64),
		positions: make(map[uint64]domain.Position),
		counts:    make(map[domain.State]uint64),
		ledger:    make(map[common.Address]domain.Amount),
		fees:      make(map[domain.State]uint32),
	}}
}

// InTx runs fn under the exclusive store lock. If fn returns an error every
// write it made is rolled back.
func (s *Store) InTx(ctx context.Context, fn func(tx domain.MarketTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &tx{st: s.st}
	defer func() {
		if r := recover(); r != nil {
			t.rollback()
			panic(r)
		}
	}()
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := fn(t); err != nil {
		t.rollback()
		return err
	}
	return nil
}

// View runs fn against a read-only transaction.
func (s *Store) View(ctx context.Context, fn func(tx domain.MarketTx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(&tx{st: s.st, readOnly: true})
}

type tx struct {
	st       *state
	readOnly bool
	undo     []func()
}

func (t *tx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *tx) writable() error {
	if t.readOnly {
		return errReadOnly
	}
	return nil
}

func (t *tx) NextItemID(_ context.Context) (uint64, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}
	prev := t.st.nextItem
	t.undo = append(t.undo, func() { t.st.nextItem = prev })
	t.st.nextItem++
	return t.st.nextItem, nil
}

func (t *tx) NextPositionID(_ context.Context) (uint64, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}
	prev := t.st.nextPos
	t.undo = append(t.undo, func() { t.st.nextPos = prev })
	t.st.nextPos++
	return t.st.nextPos, nil
}

func (t *tx) StateCount(_ context.Context, s domain.State) (uint64, error) {
	return t.st.counts[s], nil
}

func (t *tx) AdjustStateCount(_ context.Context, s domain.State, delta int64) error {
	if err := t.writable(); err != nil {
		return err
	}
	prev := t.st.counts[s]
	next := int64(prev) + delta
	if next < 0 {
		return fmt.Errorf("memory: %s counter would go negative", s)
	}
	t.undo = append(t.undo, func() { t.st.counts[s] = prev })
	t.st.counts[s] = uint64(next)
	return nil
}

func (t *tx) InsertItem(_ context.Context, it domain.Item) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.st.items[it.ID]; ok {
		return fmt.Errorf("memory: item %d: %w", it.ID, domain.ErrAlreadyExists)
	}
	key := it.Key()
	if _, ok := t.st.itemKeys[key]; ok {
		return fmt.Errorf("memory: item key: %w", domain.ErrAlreadyExists)
	}
	it.PositionIDs = nil
	it.Sales = append([]domain.Sale(nil), it.Sales...)
	t.st.items[it.ID] = it
	t.st.itemKeys[key] = it.ID
	t.undo = append(t.undo, func() {
		delete(t.st.items, it.ID)
		delete(t.st.itemKeys, key)
	})
	return nil
}

func (t *tx) GetItem(_ context.Context, id uint64) (domain.Item, error) {
	it, ok := t.st.items[id]
	if !ok {
		return domain.Item{}, fmt.Errorf("memory: item %d: %w", id, domain.ErrNotFound)
	}
	return t.hydrate(it), nil
}

func (t *tx) FindItem(ctx context.Context, key domain.ItemKey) (domain.Item, error) {
	id, ok := t.st.itemKeys[key]
	if !ok {
		return domain.Item{}, fmt.Errorf("memory: item %s/%s: %w", key.Contract.Hex(), key.TokenID.Dec(), domain.ErrNotFound)
	}
	return t.GetItem(ctx, id)
}

// hydrate copies it and fills in the ids of its live positions.
func (t *tx) hydrate(it domain.Item) domain.Item {
	it.Sales = append([]domain.Sale(nil), it.Sales...)
	it.PositionIDs = nil
	for id, p := range t.st.positions {
		if p.ItemID == it.ID && p.State != domain.StateClosed {
			it.PositionIDs = append(it.PositionIDs, id)
		}
	}
	sort.Slice(it.PositionIDs, func(i, j int) bool { return it.PositionIDs[i] < it.PositionIDs[j] })
	return it
}

func (t *tx) AppendSale(_ context.Context, itemID uint64, sale domain.Sale) error {
	if err := t.writable(); err != nil {
		return err
	}
	it, ok := t.st.items[itemID]
	if !ok {
		return fmt.Errorf("memory: item %d: %w", itemID, domain.ErrNotFound)
	}
	prev := it
	it.Sales = append(append([]domain.Sale(nil), it.Sales...), sale)
	t.st.items[itemID] = it
	t.undo = append(t.undo, func() { t.st.items[itemID] = prev })
	return nil
}

func (t *tx) ListItems(_ context.Context, f domain.ItemFilter, offset, limit int) ([]domain.Item, int, error) {
	ids := make([]uint64, 0, len(t.st.items))
	for id, it := range t.st.items {
		if f.Matches(it) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	total := len(ids)
	ids = window(ids, offset, limit)
	out := make([]domain.Item, 0, len(ids))
	for _, id := range ids {
		out = append(out, t.hydrate(t.st.items[id]))
	}
	return out, total, nil
}

func (t *tx) InsertPosition(_ context.Context, p domain.Position) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.st.positions[p.ID]; ok {
		return fmt.Errorf("memory: position %d: %w", p.ID, domain.ErrAlreadyExists)
	}
	t.st.positions[p.ID] = p.Clone()
	t.undo = append(t.undo, func() { delete(t.st.positions, p.ID) })
	return nil
}

func (t *tx) UpdatePosition(_ context.Context, p domain.Position) error {
	if err := t.writable(); err != nil {
		return err
	}
	prev, ok := t.st.positions[p.ID]
	if !ok {
		return fmt.Errorf("memory: position %d: %w", p.ID, domain.ErrNotFound)
	}
	t.st.positions[p.ID] = p.Clone()
	t.undo = append(t.undo, func() { t.st.positions[p.ID] = prev })
	return nil
}

func (t *tx) GetPosition(_ context.Context, id uint64) (domain.Position, error) {
	p, ok := t.st.positions[id]
	if !ok {
		return domain.Position{}, fmt.Errorf("memory: position %d: %w", id, domain.ErrNotFound)
	}
	return p.Clone(), nil
}

func (t *tx) FindAvailable(_ context.Context, itemID uint64, owner common.Address) (domain.Position, error) {
	var found *domain.Position
	for _, p := range t.st.positions {
		if p.ItemID == itemID && p.Owner == owner && p.State == domain.StateAvailable {
			if found == nil || p.ID < found.ID {
				cp := p
				found = &cp
			}
		}
	}
	if found == nil {
		return domain.Position{}, fmt.Errorf("memory: available position for item %d: %w", itemID, domain.ErrNotFound)
	}
	return found.Clone(), nil
}

func (t *tx) ListPositions(_ context.Context, f domain.PositionFilter, offset, limit int) ([]domain.Position, int, error) {
	ids := make([]uint64, 0)
	for id, p := range t.st.positions {
		if f.Matches(p) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	total := len(ids)
	ids = window(ids, offset, limit)
	out := make([]domain.Position, 0, len(ids))
	for _, id := range ids {
		out = append(out, t.st.positions[id].Clone())
	}
	return out, total, nil
}

func (t *tx) LedgerBalance(_ context.Context, addr common.Address) (domain.Amount, error) {
	return t.st.ledger[addr], nil
}

func (t *tx) SetLedgerBalance(_ context.Context, addr common.Address, amt domain.Amount) error {
	if err := t.writable(); err != nil {
		return err
	}
	prev, had := t.st.ledger[addr]
	t.undo = append(t.undo, func() {
		if had {
			t.st.ledger[addr] = prev
		} else {
			delete(t.st.ledger, addr)
		}
	})
	if amt.IsZero() {
		delete(t.st.ledger, addr)
	} else {
		t.st.ledger[addr] = amt
	}
	return nil
}

func (t *tx) LedgerTotal(_ context.Context) (domain.Amount, error) {
	var total domain.Amount
	for _, v := range t.st.ledger {
		next, err := domain.AddAmount(total, v)
		if err != nil {
			return domain.Amount{}, err
		}
		total = next
	}
	return total, nil
}

func (t *tx) Custody(_ context.Context) (domain.Amount, error) {
	return t.st.custody, nil
}

func (t *tx) SetCustody(_ context.Context, amt domain.Amount) error {
	if err := t.writable(); err != nil {
		return err
	}
	prev := t.st.custody
	t.undo = append(t.undo, func() { t.st.custody = prev })
	t.st.custody = amt
	return nil
}

func (t *tx) Successor(_ context.Context) (common.Address, error) {
	return t.st.successor, nil
}

func (t *tx) SetSuccessor(_ context.Context, addr common.Address) error {
	if err := t.writable(); err != nil {
		return err
	}
	prev := t.st.successor
	t.undo = append(t.undo, func() { t.st.successor = prev })
	t.st.successor = addr
	return nil
}

func (t *tx) MarketFee(_ context.Context, s domain.State) (uint32, bool, error) {
	bps, ok := t.st.fees[s]
	return bps, ok, nil
}

func (t *tx) SetMarketFee(_ context.Context, s domain.State, bps uint32) error {
	if err := t.writable(); err != nil {
		return err
	}
	prev, had := t.st.fees[s]
	t.undo = append(t.undo, func() {
		if had {
			t.st.fees[s] = prev
		} else {
			delete(t.st.fees, s)
		}
	})
	t.st.fees[s] = bps
	return nil
}

// window returns ids[offset:offset+limit], clamped. limit <= 0 means no limit.
func window(ids []uint64, offset, limit int) []uint64 {
	if offset >= len(ids) {
		return nil
	}
	ids = ids[offset:]
	if limit > 0 && limit < len(ids) {
		ids = ids[:limit]
	}
	return ids
}

var (
	_ domain.MarketStore = (*Store)(nil)
	_ domain.MarketTx    = (*tx)(nil)
)
