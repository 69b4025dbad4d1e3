package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/assetmarket/internal/domain"
)

// CreateAuction lists amount units of an Available position for auction,
// closing durationMinutes from now. It returns the OnAuction position id.
func (m *Marketplace) CreateAuction(ctx context.Context, caller common.Address, positionID, amount, durationMinutes uint64, minBid domain.Amount) (uint64, error) {
	var listedID uint64
	err := m.mutate(ctx, "create auction", caller, true, func(o *op) error {
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
		data := &domain.AuctionData{
			Deadline: o.now.Add(time.Duration(durationMinutes) * time.Minute),
			MinBid:   minBid,
		}
		listed, err := o.list(src, amount, domain.StateOnAuction, domain.StateData{Auction: data})
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
			Value:      minBid.Dec(),
			State:      domain.StateOnAuction.String(),
		})
		return nil
	})
	return listedID, err
}

// Bid places or tops up a bid. A new highest bidder must beat the current
// highest bid; the outbid amount is credited to the previous bidder's ledger.
// A bid inside the anti-snipe window moves the deadline to now plus the
// window.
func (m *Marketplace) Bid(ctx context.Context, caller common.Address, positionID uint64, payment domain.Amount) error {
	return m.mutate(ctx, "bid", caller, true, func(o *op) error {
		p, err := o.position(positionID, domain.StateOnAuction)
		if err != nil {
			return err
		}
		a := p.Auction
		if !o.now.Before(a.Deadline) {
			return fmt.Errorf("auction %d closed at %s: %w", p.ID, a.Deadline.Format(time.RFC3339), domain.ErrAlreadyExpired)
		}
		if payment.IsZero() {
			return fmt.Errorf("zero bid: %w", domain.ErrBidTooLow)
		}

		switch {
		case a.HighestBidder == nil:
			if payment.Lt(&a.MinBid) {
				return fmt.Errorf("bid %s below minimum %s: %w", payment.Dec(), a.MinBid.Dec(), domain.ErrBidTooLow)
			}
			bidder := caller
			a.HighestBidder = &bidder
			a.HighestBid = payment
		case *a.HighestBidder == caller:
			total, err := domain.AddAmount(a.HighestBid, payment)
			if err != nil {
				return err
			}
			a.HighestBid = total
		default:
			if !payment.Gt(&a.HighestBid) {
				return fmt.Errorf("bid %s not above %s: %w", payment.Dec(), a.HighestBid.Dec(), domain.ErrBidTooLow)
			}
			if err := o.credit(*a.HighestBidder, a.HighestBid); err != nil {
				return err
			}
			bidder := caller
			a.HighestBidder = &bidder
			a.HighestBid = payment
		}

		window := m.cfg.AntiSnipeWindow
		if a.Deadline.Sub(o.now) <= window {
			a.Deadline = o.now.Add(window)
		}

		if err := o.tx.UpdatePosition(o.ctx, p); err != nil {
			return err
		}
		if err := o.receive(caller, payment); err != nil {
			return err
		}
		o.emit(domain.MarketEvent{
			Type:       domain.EventBid,
			ItemID:     p.ItemID,
			PositionID: p.ID,
			Units:      p.Amount,
			Value:      a.HighestBid.Dec(),
			State:      domain.StateOnAuction.String(),
		})
		return nil
	})
}

// EndAuction settles an auction once its deadline has passed. Anyone may
// call it. Without bids the units return to the owner.
func (m *Marketplace) EndAuction(ctx context.Context, caller common.Address, positionID uint64) error {
	return m.mutate(ctx, "end auction", caller, true, func(o *op) error {
		p, err := o.position(positionID, domain.StateOnAuction)
		if err != nil {
			return err
		}
		a := *p.Auction
		if o.now.Before(a.Deadline) {
			return fmt.Errorf("auction %d closes at %s: %w", p.ID, a.Deadline.Format(time.RFC3339), domain.ErrDeadlineNotReached)
		}
		item, err := o.tx.GetItem(o.ctx, p.ItemID)
		if err != nil {
			return err
		}
		seller := p.Owner

		if a.HighestBidder == nil {
			if err := o.outOfCustody(item, seller, p.Amount); err != nil {
				return err
			}
			if _, err := o.returnAvailable(p); err != nil {
				return err
			}
			o.emit(domain.MarketEvent{
				Type:       domain.EventAuctionEnded,
				ItemID:     item.ID,
				PositionID: p.ID,
				Units:      p.Amount,
				State:      domain.StateAvailable.String(),
			})
			return nil
		}

		winner := *a.HighestBidder
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
		if err := o.appendSale(item.ID, seller, winner, units, a.HighestBid); err != nil {
			return err
		}
		if _, err := o.settle(item, seller, a.HighestBid, p.MarketFeeBps); err != nil {
			return err
		}
		o.emit(domain.MarketEvent{
			Type:         domain.EventAuctionEnded,
			ItemID:       item.ID,
			PositionID:   p.ID,
			Counterparty: &winner,
			Units:        units,
			Value:        a.HighestBid.Dec(),
			State:        domain.StateClosed.String(),
		})
		return nil
	})
}
