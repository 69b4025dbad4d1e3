package service

import (
	"context"
	"fmt"
	"math"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/assetmarket/internal/domain"
)

// position loads a position that must be in state want.
func (o *op) position(id uint64, want domain.State) (domain.Position, error) {
	p, err := o.tx.GetPosition(o.ctx, id)
	if err != nil {
		return domain.Position{}, err
	}
	if p.State != want {
		return domain.Position{}, fmt.Errorf("position %d is %s, want %s: %w", id, p.State, want, domain.ErrInvalidTransition)
	}
	return p, nil
}

// ownedPosition is position plus a check that the caller owns it.
func (o *op) ownedPosition(id uint64, want domain.State) (domain.Position, error) {
	p, err := o.position(id, want)
	if err != nil {
		return domain.Position{}, err
	}
	if p.Owner != o.caller {
		return domain.Position{}, fmt.Errorf("position %d owned by %s: %w", id, p.Owner.Hex(), domain.ErrUnauthorized)
	}
	return p, nil
}

// createPosition stores a new position in state s and bumps its counter.
func (o *op) createPosition(itemID uint64, owner common.Address, amount uint64, feeBps uint32, s domain.State, data domain.StateData) (domain.Position, error) {
	if amount == 0 {
		return domain.Position{}, fmt.Errorf("position of zero units: %w", domain.ErrInvalidAmount)
	}
	if err := data.Validate(s); err != nil {
		return domain.Position{}, err
	}
	id, err := o.tx.NextPositionID(o.ctx)
	if err != nil {
		return domain.Position{}, err
	}
	p := domain.Position{
		ID:           id,
		ItemID:       itemID,
		Owner:        owner,
		Amount:       amount,
		MarketFeeBps: feeBps,
		State:        s,
	}
	p.Apply(data)
	if err := o.tx.InsertPosition(o.ctx, p); err != nil {
		return domain.Position{}, err
	}
	if err := o.tx.AdjustStateCount(o.ctx, s, 1); err != nil {
		return domain.Position{}, err
	}
	return p, nil
}

// transition moves p from its current state to to along a legal edge,
// replacing its payload and keeping the live counters in step.
func (o *op) transition(p *domain.Position, to domain.State, data domain.StateData) error {
	from := p.State
	if !domain.CanTransition(from, to) {
		return fmt.Errorf("position %d: %s -> %s: %w", p.ID, from, to, domain.ErrInvalidTransition)
	}
	if err := data.Validate(to); err != nil {
		return err
	}
	if err := o.tx.AdjustStateCount(o.ctx, from, -1); err != nil {
		return err
	}
	if to != domain.StateClosed {
		if err := o.tx.AdjustStateCount(o.ctx, to, 1); err != nil {
			return err
		}
	}
	p.State = to
	p.Apply(data)
	return o.tx.UpdatePosition(o.ctx, *p)
}

// list moves amount units of the Available position src into a mechanism
// state. Listing everything converts src in place; listing part of it
// splits the units off into a new position and leaves the rest Available.
func (o *op) list(src domain.Position, amount uint64, to domain.State, data domain.StateData) (domain.Position, error) {
	if src.State != domain.StateAvailable {
		return domain.Position{}, fmt.Errorf("position %d is %s: %w", src.ID, src.State, domain.ErrInvalidTransition)
	}
	if amount == 0 || amount > src.Amount {
		return domain.Position{}, fmt.Errorf("amount %d of %d available: %w", amount, src.Amount, domain.ErrInvalidAmount)
	}
	fee, err := o.feeFor(to)
	if err != nil {
		return domain.Position{}, err
	}
	if amount == src.Amount {
		p := src
		p.MarketFeeBps = fee
		if err := o.transition(&p, to, data); err != nil {
			return domain.Position{}, err
		}
		return p, nil
	}
	src.Amount -= amount
	if err := o.tx.UpdatePosition(o.ctx, src); err != nil {
		return domain.Position{}, err
	}
	return o.createPosition(src.ItemID, src.Owner, amount, fee, to, data)
}

// returnAvailable sends a mechanism position back to Available for its
// owner, folding it into the owner's existing Available position if any.
func (o *op) returnAvailable(p domain.Position) (domain.Position, error) {
	existing, err := o.tx.FindAvailable(o.ctx, p.ItemID, p.Owner)
	switch {
	case err == nil:
		if existing.Amount > math.MaxUint64-p.Amount {
			return domain.Position{}, fmt.Errorf("position %d: %w", existing.ID, domain.ErrAmountOverflow)
		}
		existing.Amount += p.Amount
		if err := o.tx.UpdatePosition(o.ctx, existing); err != nil {
			return domain.Position{}, err
		}
		if err := o.transition(&p, domain.StateClosed, domain.StateData{}); err != nil {
			return domain.Position{}, err
		}
		return existing, nil
	case isNotFound(err):
		p.MarketFeeBps = 0
		if err := o.transition(&p, domain.StateAvailable, domain.StateData{}); err != nil {
			return domain.Position{}, err
		}
		return p, nil
	default:
		return domain.Position{}, err
	}
}

// deliverAvailable credits units to owner's Available position for the
// item, creating it when absent.
func (o *op) deliverAvailable(itemID uint64, owner common.Address, amount uint64) (domain.Position, error) {
	existing, err := o.tx.FindAvailable(o.ctx, itemID, owner)
	switch {
	case err == nil:
		if existing.Amount > math.MaxUint64-amount {
			return domain.Position{}, fmt.Errorf("position %d: %w", existing.ID, domain.ErrAmountOverflow)
		}
		existing.Amount += amount
		if err := o.tx.UpdatePosition(o.ctx, existing); err != nil {
			return domain.Position{}, err
		}
		return existing, nil
	case isNotFound(err):
		return o.createPosition(itemID, owner, amount, 0, domain.StateAvailable, domain.StateData{})
	default:
		return domain.Position{}, err
	}
}

// consume removes amount units from a mechanism position during settlement.
// The position is closed when nothing remains.
func (o *op) consume(p *domain.Position, amount uint64) error {
	if amount == 0 || amount > p.Amount {
		return fmt.Errorf("consume %d of %d: %w", amount, p.Amount, domain.ErrInvalidAmount)
	}
	if amount == p.Amount {
		return o.transition(p, domain.StateClosed, domain.StateData{})
	}
	p.Amount -= amount
	return o.tx.UpdatePosition(o.ctx, *p)
}

// StateCount returns the number of live positions in state s.
func (m *Marketplace) StateCount(ctx context.Context, s domain.State) (uint64, error) {
	var n uint64
	err := m.view(ctx, "state count", func(tx domain.MarketTx) error {
		var err error
		n, err = tx.StateCount(ctx, s)
		return err
	})
	return n, err
}
