package service

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/assetmarket/internal/domain"
)

// Split is how a gross sale amount was divided.
type Split struct {
	RoyaltyRecipient common.Address
	Royalty          domain.Amount
	MarketFee        domain.Amount
	SellerNet        domain.Amount
}

// settle divides gross between royalty, market fee and seller. Royalty and
// fee are credited to the ledger; the seller's share is paid directly and
// must be the operation's last effect.
func (o *op) settle(item domain.Item, seller common.Address, gross domain.Amount, feeBps uint32) (Split, error) {
	token, err := o.m.tokens.Lookup(item.Contract)
	if err != nil {
		return Split{}, err
	}
	recipient, royalty, err := token.RoyaltyInfo(o.ctx, item.TokenID, gross)
	if err != nil {
		return Split{}, fmt.Errorf("royalty info: %w", err)
	}
	if recipient == (common.Address{}) {
		royalty = domain.Amount{}
	}
	if royalty.Gt(&gross) {
		royalty = gross
	}
	rest, err := domain.SubAmount(gross, royalty)
	if err != nil {
		return Split{}, err
	}
	fee, err := domain.ApplyBps(rest, feeBps)
	if err != nil {
		return Split{}, err
	}
	net, err := domain.SubAmount(rest, fee)
	if err != nil {
		return Split{}, err
	}

	if err := o.credit(recipient, royalty); err != nil {
		return Split{}, err
	}
	if err := o.credit(o.m.cfg.FeeRecipient, fee); err != nil {
		return Split{}, err
	}
	if err := o.pay(seller, net); err != nil {
		return Split{}, err
	}
	return Split{RoyaltyRecipient: recipient, Royalty: royalty, MarketFee: fee, SellerNet: net}, nil
}

// Withdraw pays out the caller's whole ledger balance. It stays available
// after a successor is set so that balances can always be recovered.
func (m *Marketplace) Withdraw(ctx context.Context, caller common.Address) (domain.Amount, error) {
	var paid domain.Amount
	err := m.mutate(ctx, "withdraw", caller, false, func(o *op) error {
		bal, err := o.tx.LedgerBalance(o.ctx, caller)
		if err != nil {
			return err
		}
		if bal.IsZero() {
			return fmt.Errorf("%s: %w", caller.Hex(), domain.ErrNothingToWithdraw)
		}
		if err := o.tx.SetLedgerBalance(o.ctx, caller, domain.Amount{}); err != nil {
			return err
		}
		if err := o.pay(caller, bal); err != nil {
			return err
		}
		paid = bal
		o.emit(domain.MarketEvent{Type: domain.EventWithdrawal, Value: bal.Dec()})
		return nil
	})
	return paid, err
}

// Balance returns addr's withdrawable ledger balance.
func (m *Marketplace) Balance(ctx context.Context, addr common.Address) (domain.Amount, error) {
	var bal domain.Amount
	err := m.view(ctx, "balance", func(tx domain.MarketTx) error {
		var err error
		bal, err = tx.LedgerBalance(ctx, addr)
		return err
	})
	return bal, err
}

// Custody returns the funds the market holds and the part of them owed
// through the ledger.
func (m *Marketplace) Custody(ctx context.Context) (held, owed domain.Amount, err error) {
	err = m.view(ctx, "custody", func(tx domain.MarketTx) error {
		var err error
		if held, err = tx.Custody(ctx); err != nil {
			return err
		}
		owed, err = tx.LedgerTotal(ctx)
		return err
	})
	return held, owed, err
}
