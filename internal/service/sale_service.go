package service

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/assetmarket/internal/domain"
)

// PutOnSale lists amount units of an Available position at price, the total
// asking price for those units. It returns the OnSale position id.
func (m *Marketplace) PutOnSale(ctx context.Context, caller common.Address, positionID, amount uint64, price domain.Amount) (uint64, error) {
	var listedID uint64
	err := m.mutate(ctx, "put on sale", caller, true, func(o *op) error {
		if price.IsZero() {
			return fmt.Errorf("zero price: %w", domain.ErrInvalidAmount)
		}
		src, err := o.ownedPosition(positionID, domain.StateAvailable)
		if err != nil {
			return err
		}
		item, err := o.tx.GetItem(o.ctx, src.ItemID)
		if err != nil {
			return err
		}
		listed, err := o.list(src, amount, domain.StateOnSale, domain.StateData{Sale: &domain.SaleData{Price: price}})
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
			Value:      price.Dec(),
			State:      domain.StateOnSale.String(),
		})
		return nil
	})
	return listedID, err
}

// Unlist returns an OnSale position to Available for its owner.
func (m *Marketplace) Unlist(ctx context.Context, caller common.Address, positionID uint64) (uint64, error) {
	return m.unlist(ctx, "unlist", caller, positionID, domain.StateOnSale)
}

// unlist is shared by sale and loan-proposal withdrawal.
func (m *Marketplace) unlist(ctx context.Context, name string, caller common.Address, positionID uint64, state domain.State) (uint64, error) {
	var availID uint64
	err := m.mutate(ctx, name, caller, true, func(o *op) error {
		p, err := o.ownedPosition(positionID, state)
		if err != nil {
			return err
		}
		if p.Loan != nil && p.Loan.Lender != nil {
			return fmt.Errorf("loan %d already funded: %w", p.ID, domain.ErrInvalidTransition)
		}
		item, err := o.tx.GetItem(o.ctx, p.ItemID)
		if err != nil {
			return err
		}
		if err := o.outOfCustody(item, p.Owner, p.Amount); err != nil {
			return err
		}
		avail, err := o.returnAvailable(p)
		if err != nil {
			return err
		}
		availID = avail.ID
		o.emit(domain.MarketEvent{
			Type:       domain.EventPositionUnlisted,
			ItemID:     item.ID,
			PositionID: p.ID,
			Units:      p.Amount,
			State:      state.String(),
		})
		return nil
	})
	return availID, err
}

// Buy purchases amount units of an OnSale position. payment must equal the
// listing price pro rata for amount, rounded down. The buyer's units land in
// their Available position, which is returned.
func (m *Marketplace) Buy(ctx context.Context, caller common.Address, positionID, amount uint64, payment domain.Amount) (uint64, error) {
	var boughtID uint64
	err := m.mutate(ctx, "buy", caller, true, func(o *op) error {
		p, err := o.position(positionID, domain.StateOnSale)
		if err != nil {
			return err
		}
		if amount == 0 || amount > p.Amount {
			return fmt.Errorf("amount %d of %d on sale: %w", amount, p.Amount, domain.ErrInvalidAmount)
		}
		required, err := domain.MulDiv(p.Sale.Price, amount, p.Amount)
		if err != nil {
			return err
		}
		if required.IsZero() {
			return fmt.Errorf("%d units price to zero: %w", amount, domain.ErrInvalidAmount)
		}
		if !payment.Eq(&required) {
			return fmt.Errorf("payment %s, price %s: %w", payment.Dec(), required.Dec(), domain.ErrInsufficientPay)
		}
		item, err := o.tx.GetItem(o.ctx, p.ItemID)
		if err != nil {
			return err
		}
		seller := p.Owner

		if err := o.receive(caller, payment); err != nil {
			return err
		}
		if err := o.outOfCustody(item, caller, amount); err != nil {
			return err
		}
		if amount < p.Amount {
			rest, err := domain.SubAmount(p.Sale.Price, required)
			if err != nil {
				return err
			}
			p.Sale.Price = rest
		}
		if err := o.consume(&p, amount); err != nil {
			return err
		}
		bought, err := o.deliverAvailable(item.ID, caller, amount)
		if err != nil {
			return err
		}
		if err := o.appendSale(item.ID, seller, caller, amount, payment); err != nil {
			return err
		}
		if _, err := o.settle(item, seller, payment, p.MarketFeeBps); err != nil {
			return err
		}
		boughtID = bought.ID
		o.emit(domain.MarketEvent{
			Type:         domain.EventSale,
			ItemID:       item.ID,
			PositionID:   p.ID,
			Counterparty: &seller,
			Units:        amount,
			Value:        payment.Dec(),
			State:        domain.StateOnSale.String(),
		})
		return nil
	})
	return boughtID, err
}
