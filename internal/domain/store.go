package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
	// Events keeps only entries with one of these event names.
	Events []string
}

// MarketStore runs marketplace operations as serialized, all-or-nothing
// transactions. A function passed to InTx either commits every write it made
// or, when it returns an error, none of them.
type MarketStore interface {
	InTx(ctx context.Context, fn func(tx MarketTx) error) error
	View(ctx context.Context, fn func(tx MarketTx) error) error
}

// MarketTx is the persisted state surface of one engine instance, scoped to
// a single transaction.
type MarketTx interface {
	NextItemID(ctx context.Context) (uint64, error)
	NextPositionID(ctx context.Context) (uint64, error)
	StateCount(ctx context.Context, s State) (uint64, error)
	AdjustStateCount(ctx context.Context, s State, delta int64) error

	InsertItem(ctx context.Context, it Item) error
	GetItem(ctx context.Context, id uint64) (Item, error)
	FindItem(ctx context.Context, key ItemKey) (Item, error)
	AppendSale(ctx context.Context, itemID uint64, sale Sale) error
	ListItems(ctx context.Context, f ItemFilter, offset, limit int) ([]Item, int, error)

	InsertPosition(ctx context.Context, p Position) error
	UpdatePosition(ctx context.Context, p Position) error
	GetPosition(ctx context.Context, id uint64) (Position, error)
	// FindAvailable returns the owner's Available position for the item.
	FindAvailable(ctx context.Context, itemID uint64, owner common.Address) (Position, error)
	ListPositions(ctx context.Context, f PositionFilter, offset, limit int) ([]Position, int, error)

	LedgerBalance(ctx context.Context, addr common.Address) (Amount, error)
	SetLedgerBalance(ctx context.Context, addr common.Address, amt Amount) error
	LedgerTotal(ctx context.Context) (Amount, error)
	Custody(ctx context.Context) (Amount, error)
	SetCustody(ctx context.Context, amt Amount) error

	Successor(ctx context.Context) (common.Address, error)
	SetSuccessor(ctx context.Context, addr common.Address) error
	// MarketFee returns the configured fee for a mechanism state; ok is
	// false when none was ever set.
	MarketFee(ctx context.Context, s State) (bps uint32, ok bool, err error)
	SetMarketFee(ctx context.Context, s State, bps uint32) error
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
