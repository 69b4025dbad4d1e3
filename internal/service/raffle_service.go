package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/assetmarket/internal/domain"
)

// CreateRaffle lists amount units of an Available position for a raffle
// closing durationMinutes from now. It returns the OnRaffle position id.
func (m *Marketplace) CreateRaffle(ctx context.Context, caller common.Address, positionID, amount, durationMinutes uint64) (uint64, error) {
	var listedID uint64
	err := m.mutate(ctx, "create raffle", caller, true, func(o *op) error {
		if durationMinutes == 0 {
			return fmt.Errorf("zero duration: %w", domain.ErrInvalidAmount)
		}
		src, err := o.ownedPosition(positionID, domain.StateAvailable)
		if err != nil {
			return err
		}
		item, err := o.tx.GetItem(o.ctx, src.ItemID)
		if err != nil {
			return err
		}
		data := &domain.RaffleData{Deadline: o.now.Add(time.Duration(durationMinutes) * time.Minute)}
		listed, err := o.list(src, amount, domain.StateOnRaffle, domain.StateData{Raffle: data})
		if err != nil {
			return err
		}
		if err := o.intoCustody(item, caller, amount); err != nil {
			return err
		}
		listedID = listed.ID
		o.emit(domain.MarketEvent{
			Type:       domain.EventPositionListed,
			ItemID:     item.ID,
			PositionID: listed.ID,
			Units:      amount,
			State:      domain.StateOnRaffle.String(),
		})
		return nil
	})
	return listedID, err
}

// EnterRaffle adds the caller's payment as a raffle entry.
func (m *Marketplace) EnterRaffle(ctx context.Context, caller common.Address, positionID uint64, payment domain.Amount) error {
	return m.mutate(ctx, "enter raffle", caller, true, func(o *op) error {
		if payment.IsZero() {
			return fmt.Errorf("zero entry: %w", domain.ErrInsufficientPay)
		}
		p, err := o.position(positionID, domain.StateOnRaffle)
		if err != nil {
			return err
		}
		r := p.Raffle
		if !o.now.Before(r.Deadline) {
			return fmt.Errorf("raffle %d closed at %s: %w", p.ID, r.Deadline.Format(time.RFC3339), domain.ErrAlreadyExpired)
		}
		total, err := domain.AddAmount(r.TotalValue, payment)
		if err != nil {
			return err
		}
		r.TotalValue = total
		r.Entries = append(r.Entries, domain.RaffleEntry{Bidder: caller, Contributed: payment})
		if err := o.tx.UpdatePosition(o.ctx, p); err != nil {
			return err
		}
		if err := o.receive(caller, payment); err != nil {
			return err
		}
		o.emit(domain.MarketEvent{
			Type:       domain.EventRaffleEntered,
			ItemID:     p.ItemID,
			PositionID: p.ID,
			Value:      payment.Dec(),
			State:      domain.StateOnRaffle.String(),
		})
		return nil
	})
}

// EndRaffle draws a winner once the deadline has passed and settles the
// pooled entries as the sale price. Anyone may call it. A raffle without
// entries returns the units to the owner.
func (m *Marketplace) EndRaffle(ctx context.Context, caller common.Address, positionID uint64) (common.Address, error) {
	var winner common.Address
	err := m.mutate(ctx, "end raffle", caller, true, func(o *op) error {
		p, err := o.position(positionID, domain.StateOnRaffle)
		if err != nil {
			return err
		}
		r := *p.Raffle
		if o.now.Before(r.Deadline) {
			return fmt.Errorf("raffle %d closes at %s: %w", p.ID, r.Deadline.Format(time.RFC3339), domain.ErrDeadlineNotReached)
		}
		item, err := o.tx.GetItem(o.ctx, p.ItemID)
		if err != nil {
			return err
		}
		seller := p.Owner

		if len(r.Entries) == 0 || r.TotalValue.IsZero() {
			if err := o.outOfCustody(item, seller, p.Amount); err != nil {
				return err
			}
			if _, err := o.returnAvailable(p); err != nil {
				return err
			}
			o.emit(domain.MarketEvent{
				Type:       domain.EventRaffleEnded,
				ItemID:     item.ID,
				PositionID: p.ID,
				Units:      p.Amount,
				State:      domain.StateAvailable.String(),
			})
			return nil
		}

		winner = drawWinner(m.cfg.RaffleSeed, p.ID, &r, o.now)
		units := p.Amount
		if err := o.outOfCustody(item, winner, units); err != nil {
			return err
		}
		if err := o.consume(&p, units); err != nil {
			return err
		}
		if _, err := o.deliverAvailable(item.ID, winner, units); err != nil {
			return err
		}
		if err := o.appendSale(item.ID, seller, winner, units, r.TotalValue); err != nil {
			return err
		}
		if _, err := o.settle(item, seller, r.TotalValue, p.MarketFeeBps); err != nil {
			return err
		}
		w := winner
		o.emit(domain.MarketEvent{
			Type:         domain.EventRaffleEnded,
			ItemID:       item.ID,
			PositionID:   p.ID,
			Counterparty: &w,
			Units:        units,
			Value:        r.TotalValue.Dec(),
			State:        domain.StateClosed.String(),
		})
		return nil
	})
	return winner, err
}
