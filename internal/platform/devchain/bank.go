package devchain

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/assetmarket/internal/domain"
)

// Bank holds wallet balances of the settlement currency and the funds the
// market has taken into custody.
type Bank struct {
	mu       sync.Mutex
	wallets  map[common.Address]domain.Amount
	custody  domain.Amount
	failures map[common.Address]bool
}

// NewBank returns a bank with no balances.
func NewBank() *Bank {
	return &Bank{
		wallets:  make(map[common.Address]domain.Amount),
		failures: make(map[common.Address]bool),
	}
}

// Fund adds amount to addr's wallet.
func (b *Bank) Fund(addr common.Address, amount domain.Amount) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	next, err := domain.AddAmount(b.wallets[addr], amount)
	if err != nil {
		return fmt.Errorf("devchain: fund %s: %w", addr.Hex(), err)
	}
	b.wallets[addr] = next
	return nil
}

// BalanceOf returns addr's wallet balance.
func (b *Bank) BalanceOf(addr common.Address) domain.Amount {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.wallets[addr]
}

// Custody returns the funds held for the market.
func (b *Bank) Custody() domain.Amount {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.custody
}

// FailFor makes every payment to addr fail, the way a recipient that burns
// all forwarded gas would.
func (b *Bank) FailFor(addr common.Address, fail bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if fail {
		b.failures[addr] = true
	} else {
		delete(b.failures, addr)
	}
}

// Receive moves amount from the payer's wallet into custody.
func (b *Bank) Receive(_ context.Context, from common.Address, amount domain.Amount) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	bal := b.wallets[from]
	left, err := domain.SubAmount(bal, amount)
	if err != nil {
		return fmt.Errorf("devchain: %s has %s, needs %s: %w", from.Hex(), bal.Dec(), amount.Dec(), domain.ErrInsufficientPay)
	}
	held, err := domain.AddAmount(b.custody, amount)
	if err != nil {
		return fmt.Errorf("devchain: receive: %w", err)
	}
	b.wallets[from] = left
	b.custody = held
	return nil
}

// Pay moves amount from custody to the recipient's wallet.
func (b *Bank) Pay(_ context.Context, to common.Address, amount domain.Amount) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failures[to] {
		return fmt.Errorf("devchain: payment to %s reverted: %w", to.Hex(), domain.ErrTransferFailed)
	}
	left, err := domain.SubAmount(b.custody, amount)
	if err != nil {
		return fmt.Errorf("devchain: custody %s below payment %s: %w", b.custody.Dec(), amount.Dec(), domain.ErrTransferFailed)
	}
	next, err := domain.AddAmount(b.wallets[to], amount)
	if err != nil {
		return fmt.Errorf("devchain: pay: %w", err)
	}
	b.custody = left
	b.wallets[to] = next
	return nil
}

var _ domain.Bank = (*Bank)(nil)
