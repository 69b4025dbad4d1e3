package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"

	"github.com/alanyoungcy/assetmarket/internal/domain"
)

const positionSelectCols = `id, item_id, owner, amount::text, market_fee_bps, state, state_data`

func scanPosition(row pgx.Row) (domain.Position, error) {
	var (
		p      domain.Position
		owner  string
		amount string
		fee    int32
		state  int16
		data   []byte
	)
	if err := row.Scan(&p.ID, &p.ItemID, &owner, &amount, &fee, &state, &data); err != nil {
		return domain.Position{}, err
	}
	units, err := parseUnits(amount)
	if err != nil {
		return domain.Position{}, err
	}
	var dj domain.StateDataJSON
	if len(data) > 0 {
		if err := json.Unmarshal(data, &dj); err != nil {
			return domain.Position{}, fmt.Errorf("postgres: unmarshal state data of position %d: %w", p.ID, err)
		}
	}
	sd, err := dj.Decode()
	if err != nil {
		return domain.Position{}, fmt.Errorf("postgres: decode state data of position %d: %w", p.ID, err)
	}
	p.Owner = common.HexToAddress(owner)
	p.Amount = units
	p.MarketFeeBps = uint32(fee)
	p.State = domain.State(state)
	p.Apply(sd)
	return p, nil
}

func encodeStateData(p domain.Position) ([]byte, error) {
	data, err := json.Marshal(domain.EncodeStateData(p.Data()))
	if err != nil {
		return nil, fmt.Errorf("postgres: marshal state data of position %d: %w", p.ID, err)
	}
	return data, nil
}

func (t *marketTx) InsertPosition(ctx context.Context, p domain.Position) error {
	data, err := encodeStateData(p)
	if err != nil {
		return err
	}
	const query = `
		INSERT INTO market_positions (id, item_id, owner, amount, market_fee_bps, state, state_data)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7)`
	_, err = t.tx.Exec(ctx, query,
		p.ID, p.ItemID, addrText(p.Owner), strconv.FormatUint(p.Amount, 10),
		int32(p.MarketFeeBps), int16(p.State), data,
	)
	switch {
	case isUniqueViolation(err):
		return fmt.Errorf("postgres: position %d: %w", p.ID, domain.ErrAlreadyExists)
	case isForeignKeyViolation(err):
		return fmt.Errorf("postgres: item %d: %w", p.ItemID, domain.ErrNotFound)
	case err != nil:
		return fmt.Errorf("postgres: insert position %d: %w", p.ID, err)
	}
	return nil
}

func (t *marketTx) UpdatePosition(ctx context.Context, p domain.Position) error {
	data, err := encodeStateData(p)
	if err != nil {
		return err
	}
	const query = `
		UPDATE market_positions
		SET owner = $2, amount = $3::numeric, market_fee_bps = $4, state = $5,
			state_data = $6, updated_at = NOW()
		WHERE id = $1`
	tag, err := t.tx.Exec(ctx, query,
		p.ID, addrText(p.Owner), strconv.FormatUint(p.Amount, 10),
		int32(p.MarketFeeBps), int16(p.State), data,
	)
	if err != nil {
		return fmt.Errorf("postgres: update position %d: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: position %d: %w", p.ID, domain.ErrNotFound)
	}
	return nil
}

func (t *marketTx) GetPosition(ctx context.Context, id uint64) (domain.Position, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+positionSelectCols+` FROM market_positions WHERE id = $1`, id)
	p, err := scanPosition(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Position{}, fmt.Errorf("postgres: position %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Position{}, fmt.Errorf("postgres: get position %d: %w", id, err)
	}
	return p, nil
}

func (t *marketTx) FindAvailable(ctx context.Context, itemID uint64, owner common.Address) (domain.Position, error) {
	const query = `SELECT ` + positionSelectCols + ` FROM market_positions
		WHERE item_id = $1 AND owner = $2 AND state = $3 ORDER BY id LIMIT 1`
	row := t.tx.QueryRow(ctx, query, itemID, addrText(owner), int16(domain.StateAvailable))
	p, err := scanPosition(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Position{}, fmt.Errorf("postgres: available position for item %d: %w", itemID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Position{}, fmt.Errorf("postgres: find available position: %w", err)
	}
	return p, nil
}

// positionWhere builds the WHERE clause for f. Closed positions are always
// excluded.
func positionWhere(f domain.PositionFilter) (string, []any, error) {
	args := []any{int16(domain.StateClosed)}
	where := ` WHERE state <> $1`
	add := func(cond string, v any) {
		args = append(args, v)
		where += fmt.Sprintf(" AND "+cond, len(args))
	}
	if f.Owner != nil {
		add("owner = $%d", addrText(*f.Owner))
	}
	if f.State != nil {
		add("state = $%d", int16(*f.State))
	}
	if f.ItemID != nil {
		add("item_id = $%d", *f.ItemID)
	}
	if f.Bidder != nil {
		add("state_data->'auction'->>'highest_bidder' = $%d", addrText(*f.Bidder))
	}
	if f.Entrant != nil {
		probe, err := json.Marshal([]map[string]string{{"bidder": addrText(*f.Entrant)}})
		if err != nil {
			return "", nil, err
		}
		add("state_data->'raffle'->'entries' @> $%d::jsonb", string(probe))
	}
	if f.Lender != nil {
		add("state_data->'loan'->>'lender' = $%d", addrText(*f.Lender))
	}
	return where, args, nil
}

func (t *marketTx) ListPositions(ctx context.Context, f domain.PositionFilter, offset, limit int) ([]domain.Position, int, error) {
	where, args, err := positionWhere(f)
	if err != nil {
		return nil, 0, fmt.Errorf("postgres: position filter: %w", err)
	}

	var total int
	if err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM market_positions`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("postgres: count positions: %w", err)
	}

	query := `SELECT ` + positionSelectCols + ` FROM market_positions` + where + ` ORDER BY id`
	query, args = paginate(query, args, offset, limit)
	rows, err := t.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("postgres: list positions: %w", err)
	}
	defer rows.Close()

	var out []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("postgres: scan position: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("postgres: list positions rows: %w", err)
	}
	return out, total, nil
}
