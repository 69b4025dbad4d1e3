package service

import (
	"context"
	"fmt"
	"slices"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/assetmarket/internal/domain"
)

// MintResult identifies the item and Available position created for newly
// tracked units.
type MintResult struct {
	ItemID     uint64
	PositionID uint64
	TokenID    domain.TokenID
	Amount     uint64
}

// registerOrGetItem returns the item for (contract, tokenID), registering it
// with creator on first sight. The creator is fixed at first registration.
func (o *op) registerOrGetItem(contract common.Address, tokenID domain.TokenID, creator common.Address) (domain.Item, error) {
	key := domain.ItemKey{Contract: contract, TokenID: tokenID}
	existing, err := o.tx.FindItem(o.ctx, key)
	if err == nil {
		if existing.Creator != creator {
			return domain.Item{}, fmt.Errorf("item %d registered by %s: %w", existing.ID, existing.Creator.Hex(), domain.ErrAlreadyExists)
		}
		return existing, nil
	}
	if !isNotFound(err) {
		return domain.Item{}, err
	}

	id, err := o.tx.NextItemID(o.ctx)
	if err != nil {
		return domain.Item{}, err
	}
	it := domain.Item{ID: id, Contract: contract, TokenID: tokenID, Creator: creator}
	if err := o.tx.InsertItem(o.ctx, it); err != nil {
		return domain.Item{}, err
	}
	o.emit(domain.MarketEvent{Type: domain.EventItemCreated, ItemID: id})
	return it, nil
}

// appendSale records a completed exchange on the item.
func (o *op) appendSale(itemID uint64, seller, buyer common.Address, amount uint64, price domain.Amount) error {
	return o.tx.AppendSale(o.ctx, itemID, domain.Sale{Seller: seller, Buyer: buyer, Amount: amount, Price: price})
}

// trackHeld gives the caller an Available position for every unit of item
// they hold. It fails when the caller already has one for the item.
func (o *op) trackHeld(item domain.Item) (domain.Position, uint64, error) {
	_, err := o.tx.FindAvailable(o.ctx, item.ID, o.caller)
	switch {
	case err == nil:
		return domain.Position{}, 0, fmt.Errorf("%s already tracks units of item %d: %w",
			o.caller.Hex(), item.ID, domain.ErrAlreadyExists)
	case !isNotFound(err):
		return domain.Position{}, 0, err
	}
	token, err := o.m.tokens.Lookup(item.Contract)
	if err != nil {
		return domain.Position{}, 0, err
	}
	held, err := token.BalanceOf(o.ctx, o.caller, item.TokenID)
	if err != nil {
		return domain.Position{}, 0, err
	}
	if held == 0 {
		return domain.Position{}, 0, fmt.Errorf("%s holds no units of item %d: %w",
			o.caller.Hex(), item.ID, domain.ErrInvalidAmount)
	}
	p, err := o.deliverAvailable(item.ID, o.caller, held)
	return p, held, err
}

// Mint mints a new token series to the caller through the default token
// contract and registers it as an item with an Available position.
func (m *Marketplace) Mint(ctx context.Context, caller common.Address, req domain.MintRequest) (MintResult, error) {
	results, err := m.MintBatch(ctx, caller, []domain.MintRequest{req})
	if err != nil {
		return MintResult{}, err
	}
	return results[0], nil
}

// MintBatch mints several series in one operation.
func (m *Marketplace) MintBatch(ctx context.Context, caller common.Address, reqs []domain.MintRequest) ([]MintResult, error) {
	if len(reqs) == 0 {
		return nil, fmt.Errorf("service: mint: empty batch: %w", domain.ErrInvalidAmount)
	}
	reqs = slices.Clone(reqs)
	var out []MintResult
	err := m.mutate(ctx, "mint", caller, true, func(o *op) error {
		token := m.tokens.Default()
		// Every request is checked before the first unit is minted so that a
		// rejected batch leaves no tokens behind.
		for i := range reqs {
			if reqs[i].Amount == 0 {
				return fmt.Errorf("request %d: zero units: %w", i, domain.ErrInvalidAmount)
			}
			if reqs[i].RoyaltyBps > domain.BasisPoints {
				return fmt.Errorf("request %d: royalty %d bps: %w", i, reqs[i].RoyaltyBps, domain.ErrInvalidAmount)
			}
			if reqs[i].RoyaltyRecipient == (common.Address{}) {
				reqs[i].RoyaltyRecipient = caller
			}
			if err := token.CheckMint(o.ctx, reqs[i]); err != nil {
				return fmt.Errorf("request %d: %w", i, err)
			}
		}
		out = make([]MintResult, 0, len(reqs))
		for i, req := range reqs {
			tokenID, err := token.Mint(o.ctx, caller, req)
			if err != nil {
				return fmt.Errorf("request %d: %w", i, err)
			}
			item, err := o.registerOrGetItem(token.Address(), tokenID, caller)
			if err != nil {
				return err
			}
			p, err := o.deliverAvailable(item.ID, caller, req.Amount)
			if err != nil {
				return err
			}
			out = append(out, MintResult{ItemID: item.ID, PositionID: p.ID, TokenID: tokenID, Amount: req.Amount})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CreateItem registers a token minted outside the market and tracks the
// caller's units of it. The caller becomes the item's creator. Registering
// a token the market already knows fails; holders use AddAvailableTokens.
func (m *Marketplace) CreateItem(ctx context.Context, caller, contract common.Address, tokenID domain.TokenID) (MintResult, error) {
	var res MintResult
	err := m.mutate(ctx, "create item", caller, true, func(o *op) error {
		if _, err := m.tokens.Lookup(contract); err != nil {
			return err
		}
		existing, err := o.tx.FindItem(o.ctx, domain.ItemKey{Contract: contract, TokenID: tokenID})
		switch {
		case err == nil:
			return fmt.Errorf("token %s of %s is item %d: %w", tokenID.Dec(), contract.Hex(), existing.ID, domain.ErrAlreadyExists)
		case !isNotFound(err):
			return err
		}
		item, err := o.registerOrGetItem(contract, tokenID, caller)
		if err != nil {
			return err
		}
		p, added, err := o.trackHeld(item)
		if err != nil {
			return err
		}
		res = MintResult{ItemID: item.ID, PositionID: p.ID, TokenID: tokenID, Amount: added}
		return nil
	})
	return res, err
}

// AddAvailableTokens tracks the units of an existing item that the caller
// holds. Anyone holding units may call it once per Available position.
func (m *Marketplace) AddAvailableTokens(ctx context.Context, caller common.Address, itemID uint64) (MintResult, error) {
	var res MintResult
	err := m.mutate(ctx, "add available tokens", caller, true, func(o *op) error {
		item, err := o.tx.GetItem(o.ctx, itemID)
		if err != nil {
			return err
		}
		p, added, err := o.trackHeld(item)
		if err != nil {
			return err
		}
		res = MintResult{ItemID: item.ID, PositionID: p.ID, TokenID: item.TokenID, Amount: added}
		return nil
	})
	return res, err
}

// SetValidMimeType allows or disallows a mime type on the minting contract.
// Owner only.
func (m *Marketplace) SetValidMimeType(ctx context.Context, caller common.Address, mimeType string, valid bool) error {
	return m.mutate(ctx, "set mime type", caller, true, func(o *op) error {
		if err := o.requireOwner(); err != nil {
			return err
		}
		return m.tokens.Default().SetValidMimeType(o.ctx, mimeType, valid)
	})
}
