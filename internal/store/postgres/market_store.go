package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/assetmarket/internal/domain"
)

// marketLockKey is the advisory lock that serializes market transactions
// across every process sharing the database.
const marketLockKey int64 = 0x6d61726b6574

// MarketStore implements domain.MarketStore using PostgreSQL. InTx holds a
// transaction-scoped advisory lock, so market operations never interleave.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

// InTx runs fn inside a serialized read-write transaction.
func (s *MarketStore) InTx(ctx context.Context, fn func(tx domain.MarketTx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("postgres: begin market tx: %w", err)
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, marketLockKey); err != nil {
		return fmt.Errorf("postgres: market lock: %w", err)
	}
	if err := fn(&marketTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit market tx: %w", err)
	}
	return nil
}

// View runs fn inside a read-only repeatable-read transaction.
func (s *MarketStore) View(ctx context.Context, fn func(tx domain.MarketTx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return fmt.Errorf("postgres: begin market view: %w", err)
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()
	return fn(&marketTx{tx: tx})
}

type marketTx struct {
	tx pgx.Tx
}

// addrText is the stored form of an address: lower-case hex, matching how
// addresses are encoded inside JSONB payloads.
func addrText(a common.Address) string {
	return strings.ToLower(a.Hex())
}

func parseUnits(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("postgres: parse units %q: %w", s, err)
	}
	return v, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

func counterName(s domain.State) string {
	return "state:" + s.String()
}

func (t *marketTx) nextSeq(ctx context.Context, name string) (uint64, error) {
	const query = `
		INSERT INTO market_counters (name, value) VALUES ($1, 1)
		ON CONFLICT (name) DO UPDATE SET value = market_counters.value + 1
		RETURNING value`
	var v int64
	if err := t.tx.QueryRow(ctx, query, name).Scan(&v); err != nil {
		return 0, fmt.Errorf("postgres: next %s: %w", name, err)
	}
	return uint64(v), nil
}

func (t *marketTx) NextItemID(ctx context.Context) (uint64, error) {
	return t.nextSeq(ctx, "next_item")
}

func (t *marketTx) NextPositionID(ctx context.Context) (uint64, error) {
	return t.nextSeq(ctx, "next_position")
}

func (t *marketTx) StateCount(ctx context.Context, s domain.State) (uint64, error) {
	var v int64
	err := t.tx.QueryRow(ctx, `SELECT value FROM market_counters WHERE name = $1`, counterName(s)).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("postgres: state count %s: %w", s, err)
	}
	return uint64(v), nil
}

// AdjustStateCount upserts increments. Decrements update the existing row
// in place, since the CHECK on value rejects a negative insert row before
// ON CONFLICT is considered.
func (t *marketTx) AdjustStateCount(ctx context.Context, s domain.State, delta int64) error {
	name := counterName(s)
	if delta >= 0 {
		const query = `
			INSERT INTO market_counters (name, value) VALUES ($1, $2)
			ON CONFLICT (name) DO UPDATE SET value = market_counters.value + EXCLUDED.value`
		if _, err := t.tx.Exec(ctx, query, name, delta); err != nil {
			return fmt.Errorf("postgres: adjust %s counter by %d: %w", s, delta, err)
		}
		return nil
	}

	tag, err := t.tx.Exec(ctx, `UPDATE market_counters SET value = value + $2 WHERE name = $1`, name, delta)
	if err != nil {
		return fmt.Errorf("postgres: adjust %s counter by %d: %w", s, delta, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: adjust %s counter by %d: no live positions counted", s, delta)
	}
	return nil
}

func (t *marketTx) getSetting(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := t.tx.QueryRow(ctx, `SELECT value FROM market_settings WHERE key = $1`, key).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("postgres: get setting %s: %w", key, err)
	}
	return v, true, nil
}

func (t *marketTx) putSetting(ctx context.Context, key, value string) error {
	const query = `
		INSERT INTO market_settings (key, value, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`
	if _, err := t.tx.Exec(ctx, query, key, value); err != nil {
		return fmt.Errorf("postgres: put setting %s: %w", key, err)
	}
	return nil
}

func (t *marketTx) Custody(ctx context.Context) (domain.Amount, error) {
	v, ok, err := t.getSetting(ctx, "custody")
	if err != nil || !ok {
		return domain.Amount{}, err
	}
	return domain.ParseAmount(v)
}

func (t *marketTx) SetCustody(ctx context.Context, amt domain.Amount) error {
	return t.putSetting(ctx, "custody", amt.Dec())
}

func (t *marketTx) Successor(ctx context.Context) (common.Address, error) {
	v, ok, err := t.getSetting(ctx, "successor")
	if err != nil || !ok {
		return common.Address{}, err
	}
	return common.HexToAddress(v), nil
}

func (t *marketTx) SetSuccessor(ctx context.Context, addr common.Address) error {
	return t.putSetting(ctx, "successor", addrText(addr))
}

func (t *marketTx) MarketFee(ctx context.Context, s domain.State) (uint32, bool, error) {
	v, ok, err := t.getSetting(ctx, "fee:"+s.String())
	if err != nil || !ok {
		return 0, false, err
	}
	bps, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return 0, false, fmt.Errorf("postgres: parse fee %q: %w", v, err)
	}
	return uint32(bps), true, nil
}

func (t *marketTx) SetMarketFee(ctx context.Context, s domain.State, bps uint32) error {
	return t.putSetting(ctx, "fee:"+s.String(), strconv.FormatUint(uint64(bps), 10))
}

var (
	_ domain.MarketStore = (*MarketStore)(nil)
	_ domain.MarketTx    = (*marketTx)(nil)
)
