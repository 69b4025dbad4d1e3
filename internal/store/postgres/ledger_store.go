package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"

	"github.com/alanyoungcy/assetmarket/internal/domain"
)

func (t *marketTx) LedgerBalance(ctx context.Context, addr common.Address) (domain.Amount, error) {
	var bal string
	err := t.tx.QueryRow(ctx, `SELECT balance::text FROM market_ledger WHERE address = $1`, addrText(addr)).Scan(&bal)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Amount{}, nil
	}
	if err != nil {
		return domain.Amount{}, fmt.Errorf("postgres: ledger balance %s: %w", addr.Hex(), err)
	}
	return domain.ParseAmount(bal)
}

// SetLedgerBalance stores amt for addr. A zero balance removes the row.
func (t *marketTx) SetLedgerBalance(ctx context.Context, addr common.Address, amt domain.Amount) error {
	if amt.IsZero() {
		if _, err := t.tx.Exec(ctx, `DELETE FROM market_ledger WHERE address = $1`, addrText(addr)); err != nil {
			return fmt.Errorf("postgres: clear ledger %s: %w", addr.Hex(), err)
		}
		return nil
	}
	const query = `
		INSERT INTO market_ledger (address, balance, updated_at) VALUES ($1, $2::numeric, NOW())
		ON CONFLICT (address) DO UPDATE SET balance = EXCLUDED.balance, updated_at = NOW()`
	if _, err := t.tx.Exec(ctx, query, addrText(addr), amt.Dec()); err != nil {
		return fmt.Errorf("postgres: set ledger %s: %w", addr.Hex(), err)
	}
	return nil
}

func (t *marketTx) LedgerTotal(ctx context.Context) (domain.Amount, error) {
	var total string
	if err := t.tx.QueryRow(ctx, `SELECT COALESCE(SUM(balance), 0)::text FROM market_ledger`).Scan(&total); err != nil {
		return domain.Amount{}, fmt.Errorf("postgres: ledger total: %w", err)
	}
	return domain.ParseAmount(total)
}
