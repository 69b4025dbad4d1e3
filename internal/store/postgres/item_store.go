package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"

	"github.com/alanyoungcy/assetmarket/internal/domain"
)

const itemSelectCols = `id, contract, token_id::text, creator`

func scanItem(row pgx.Row) (domain.Item, error) {
	var (
		it                       domain.Item
		contract, token, creator string
	)
	if err := row.Scan(&it.ID, &contract, &token, &creator); err != nil {
		return domain.Item{}, err
	}
	if err := it.TokenID.SetFromDecimal(token); err != nil {
		return domain.Item{}, fmt.Errorf("postgres: parse token id %q: %w", token, err)
	}
	it.Contract = common.HexToAddress(contract)
	it.Creator = common.HexToAddress(creator)
	return it, nil
}

func (t *marketTx) InsertItem(ctx context.Context, it domain.Item) error {
	const query = `
		INSERT INTO market_items (id, contract, token_id, creator)
		VALUES ($1, $2, $3::numeric, $4)`
	_, err := t.tx.Exec(ctx, query, it.ID, addrText(it.Contract), it.TokenID.Dec(), addrText(it.Creator))
	if isUniqueViolation(err) {
		return fmt.Errorf("postgres: item %d: %w", it.ID, domain.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("postgres: insert item %d: %w", it.ID, err)
	}
	return nil
}

func (t *marketTx) GetItem(ctx context.Context, id uint64) (domain.Item, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+itemSelectCols+` FROM market_items WHERE id = $1`, id)
	it, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Item{}, fmt.Errorf("postgres: item %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Item{}, fmt.Errorf("postgres: get item %d: %w", id, err)
	}
	return t.hydrate(ctx, it)
}

func (t *marketTx) FindItem(ctx context.Context, key domain.ItemKey) (domain.Item, error) {
	row := t.tx.QueryRow(ctx,
		`SELECT `+itemSelectCols+` FROM market_items WHERE contract = $1 AND token_id = $2::numeric`,
		addrText(key.Contract), key.TokenID.Dec(),
	)
	it, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Item{}, fmt.Errorf("postgres: item %s/%s: %w", key.Contract.Hex(), key.TokenID.Dec(), domain.ErrNotFound)
	}
	if err != nil {
		return domain.Item{}, fmt.Errorf("postgres: find item: %w", err)
	}
	return t.hydrate(ctx, it)
}

// hydrate loads the live position ids and the sales history of it.
func (t *marketTx) hydrate(ctx context.Context, it domain.Item) (domain.Item, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT id FROM market_positions WHERE item_id = $1 AND state <> $2 ORDER BY id`,
		it.ID, int(domain.StateClosed),
	)
	if err != nil {
		return domain.Item{}, fmt.Errorf("postgres: item %d positions: %w", it.ID, err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return domain.Item{}, fmt.Errorf("postgres: item %d positions: %w", it.ID, err)
	}
	it.PositionIDs = make([]uint64, 0, len(ids))
	for _, id := range ids {
		it.PositionIDs = append(it.PositionIDs, uint64(id))
	}

	rows, err = t.tx.Query(ctx,
		`SELECT seller, buyer, amount::text, price::text FROM market_sales WHERE item_id = $1 ORDER BY id`,
		it.ID,
	)
	if err != nil {
		return domain.Item{}, fmt.Errorf("postgres: item %d sales: %w", it.ID, err)
	}
	defer rows.Close()
	it.Sales = nil
	for rows.Next() {
		var seller, buyer, amount, price string
		if err := rows.Scan(&seller, &buyer, &amount, &price); err != nil {
			return domain.Item{}, fmt.Errorf("postgres: scan sale: %w", err)
		}
		units, err := parseUnits(amount)
		if err != nil {
			return domain.Item{}, err
		}
		p, err := domain.ParseAmount(price)
		if err != nil {
			return domain.Item{}, err
		}
		it.Sales = append(it.Sales, domain.Sale{
			Seller: common.HexToAddress(seller),
			Buyer:  common.HexToAddress(buyer),
			Amount: units,
			Price:  p,
		})
	}
	if err := rows.Err(); err != nil {
		return domain.Item{}, fmt.Errorf("postgres: item %d sales rows: %w", it.ID, err)
	}
	return it, nil
}

func (t *marketTx) AppendSale(ctx context.Context, itemID uint64, sale domain.Sale) error {
	const query = `
		INSERT INTO market_sales (item_id, seller, buyer, amount, price)
		VALUES ($1, $2, $3, $4::numeric, $5::numeric)`
	_, err := t.tx.Exec(ctx, query,
		itemID, addrText(sale.Seller), addrText(sale.Buyer),
		strconv.FormatUint(sale.Amount, 10), sale.Price.Dec(),
	)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("postgres: item %d: %w", itemID, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("postgres: append sale to item %d: %w", itemID, err)
	}
	return nil
}

func (t *marketTx) ListItems(ctx context.Context, f domain.ItemFilter, offset, limit int) ([]domain.Item, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if f.Creator != nil {
		args = append(args, addrText(*f.Creator))
		where += fmt.Sprintf(" AND creator = $%d", len(args))
	}

	var total int
	if err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM market_items`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("postgres: count items: %w", err)
	}

	query := `SELECT ` + itemSelectCols + ` FROM market_items` + where + ` ORDER BY id`
	query, args = paginate(query, args, offset, limit)
	rows, err := t.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("postgres: list items: %w", err)
	}
	var items []domain.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			rows.Close()
			return nil, 0, fmt.Errorf("postgres: scan item: %w", err)
		}
		items = append(items, it)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("postgres: list items rows: %w", err)
	}

	// Details are loaded after the cursor is closed; a pgx connection runs
	// one query at a time.
	for i := range items {
		if items[i], err = t.hydrate(ctx, items[i]); err != nil {
			return nil, 0, err
		}
	}
	return items, total, nil
}

// paginate appends LIMIT/OFFSET clauses. limit <= 0 means no limit.
func paginate(query string, args []any, offset, limit int) (string, []any) {
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if offset > 0 {
		args = append(args, offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return query, args
}
