package service

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/assetmarket/internal/domain"
)

// SetMarketFee sets the fee for a mechanism state. Positions keep the fee
// they were listed with. Owner only.
func (m *Marketplace) SetMarketFee(ctx context.Context, caller common.Address, s domain.State, bps uint32) error {
	return m.mutate(ctx, "set market fee", caller, true, func(o *op) error {
		if err := o.requireOwner(); err != nil {
			return err
		}
		if !s.IsMechanism() {
			return fmt.Errorf("fee for %s: %w", s, domain.ErrInvalidFeeType)
		}
		if bps > domain.BasisPoints {
			return fmt.Errorf("fee %d bps above 100%%: %w", bps, domain.ErrInvalidAmount)
		}
		if err := o.tx.SetMarketFee(o.ctx, s, bps); err != nil {
			return err
		}
		o.emit(domain.MarketEvent{Type: domain.EventFeeChanged, State: s.String(), Value: fmt.Sprint(bps)})
		return nil
	})
}

// MarketFee returns the fee currently applied to new positions in state s.
func (m *Marketplace) MarketFee(ctx context.Context, s domain.State) (uint32, error) {
	if !s.IsMechanism() {
		return 0, fmt.Errorf("service: market fee: %s: %w", s, domain.ErrInvalidFeeType)
	}
	var bps uint32
	err := m.view(ctx, "market fee", func(tx domain.MarketTx) error {
		v, ok, err := tx.MarketFee(ctx, s)
		if err != nil {
			return err
		}
		if !ok {
			v = m.cfg.DefaultFees[s]
		}
		bps = v
		return nil
	})
	return bps, err
}

// SetSuccessor designates the instance that supersedes this one. A non-zero
// successor blocks every guarded operation; the zero address lifts the
// block. Owner only.
func (m *Marketplace) SetSuccessor(ctx context.Context, caller, successor common.Address) error {
	return m.mutate(ctx, "set successor", caller, false, func(o *op) error {
		if err := o.requireOwner(); err != nil {
			return err
		}
		if err := o.tx.SetSuccessor(o.ctx, successor); err != nil {
			return err
		}
		c := successor
		o.emit(domain.MarketEvent{Type: domain.EventSuccessorSet, Counterparty: &c})
		return nil
	})
}

// Successor returns the designated successor, or the zero address.
func (m *Marketplace) Successor(ctx context.Context) (common.Address, error) {
	var succ common.Address
	err := m.view(ctx, "successor", func(tx domain.MarketTx) error {
		var err error
		succ, err = tx.Successor(ctx)
		return err
	})
	return succ, err
}
