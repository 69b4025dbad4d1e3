// Package devchain provides in-process token and currency collaborators for
// local development and tests. They keep balances in memory and enforce the
// same failure modes the market relies on: insufficient balances, rejected
// recipients and unknown contracts.
package devchain

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/assetmarket/internal/domain"
)

type series struct {
	uri              string
	mimeType         string
	royaltyRecipient common.Address
	royaltyBps       uint32
	supply           uint64
}

type holding struct {
	id    domain.TokenID
	owner common.Address
}

// Token is a multi-edition token contract with per-series royalty terms.
type Token struct {
	mu        sync.Mutex
	addr      common.Address
	nextID    uint64
	series    map[domain.TokenID]*series
	balances  map[holding]uint64
	mimeTypes map[string]bool
	rejecting map[common.Address]bool
}

// NewToken returns an empty token contract deployed at addr.
func NewToken(addr common.Address) *Token {
	return &Token{
		addr:      addr,
		series:    make(map[domain.TokenID]*series),
		balances:  make(map[holding]uint64),
		mimeTypes: make(map[string]bool),
		rejecting: make(map[common.Address]bool),
	}
}

// Address returns the contract address.
func (t *Token) Address() common.Address { return t.addr }

// CheckMint reports whether Mint would accept req. When at least one mime
// type has been allowed, req.MimeType must be one of them.
func (t *Token) CheckMint(_ context.Context, req domain.MintRequest) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.checkMint(req)
}

func (t *Token) checkMint(req domain.MintRequest) error {
	if req.Amount == 0 {
		return fmt.Errorf("devchain: mint zero units: %w", domain.ErrInvalidAmount)
	}
	if req.RoyaltyBps > domain.BasisPoints {
		return fmt.Errorf("devchain: royalty %d bps above 100%%: %w", req.RoyaltyBps, domain.ErrInvalidAmount)
	}
	if len(t.mimeTypes) > 0 && !t.mimeTypes[req.MimeType] {
		return fmt.Errorf("devchain: mime type %q not allowed: %w", req.MimeType, domain.ErrInvalidAmount)
	}
	return nil
}

// Mint creates a new series and credits req.Amount units to to.
func (t *Token) Mint(_ context.Context, to common.Address, req domain.MintRequest) (domain.TokenID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.checkMint(req); err != nil {
		return domain.TokenID{}, err
	}

	t.nextID++
	id := domain.NewTokenID(t.nextID)
	t.series[id] = &series{
		uri:              req.URI,
		mimeType:         req.MimeType,
		royaltyRecipient: req.RoyaltyRecipient,
		royaltyBps:       req.RoyaltyBps,
		supply:           req.Amount,
	}
	t.balances[holding{id, to}] += req.Amount
	return id, nil
}

// BalanceOf returns owner's units of series id.
func (t *Token) BalanceOf(_ context.Context, owner common.Address, id domain.TokenID) (uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.balances[holding{id, owner}], nil
}

// SafeTransfer moves units between holders. Transfers to a rejecting
// recipient fail.
func (t *Token) SafeTransfer(_ context.Context, from, to common.Address, id domain.TokenID, amount uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.rejecting[to] {
		return fmt.Errorf("devchain: %s rejects token transfers: %w", to.Hex(), domain.ErrTransferFailed)
	}
	src := holding{id, from}
	if t.balances[src] < amount {
		return fmt.Errorf("devchain: %s holds %d of token %s, need %d: %w",
			from.Hex(), t.balances[src], id.Dec(), amount, domain.ErrTransferFailed)
	}
	t.balances[src] -= amount
	if t.balances[src] == 0 {
		delete(t.balances, src)
	}
	t.balances[holding{id, to}] += amount
	return nil
}

// TotalSupplyOf returns the minted units of series id.
func (t *Token) TotalSupplyOf(_ context.Context, id domain.TokenID) (uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.series[id]
	if !ok {
		return 0, fmt.Errorf("devchain: token %s: %w", id.Dec(), domain.ErrNotFound)
	}
	return s.supply, nil
}

// RoyaltyInfo returns the royalty recipient and salePrice*bps/10000. Series
// minted elsewhere pay no royalty.
func (t *Token) RoyaltyInfo(_ context.Context, id domain.TokenID, salePrice domain.Amount) (common.Address, domain.Amount, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.series[id]
	if !ok || s.royaltyBps == 0 {
		return common.Address{}, domain.Amount{}, nil
	}
	royalty, err := domain.ApplyBps(salePrice, s.royaltyBps)
	if err != nil {
		return common.Address{}, domain.Amount{}, err
	}
	return s.royaltyRecipient, royalty, nil
}

// URI returns the metadata URI of series id.
func (t *Token) URI(_ context.Context, id domain.TokenID) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.series[id]
	if !ok {
		return "", fmt.Errorf("devchain: token %s: %w", id.Dec(), domain.ErrNotFound)
	}
	return s.uri, nil
}

// SetValidMimeType allows or disallows a mime type for future mints.
func (t *Token) SetValidMimeType(_ context.Context, mimeType string, valid bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if valid {
		t.mimeTypes[mimeType] = true
	} else {
		delete(t.mimeTypes, mimeType)
	}
	return nil
}

// Reject makes every transfer to addr fail until called again with false.
func (t *Token) Reject(addr common.Address, reject bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if reject {
		t.rejecting[addr] = true
	} else {
		delete(t.rejecting, addr)
	}
}

// Credit gives owner units of an existing or external series without going
// through Mint, as a token minted outside the market would arrive.
func (t *Token) Credit(owner common.Address, id domain.TokenID, amount uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.balances[holding{id, owner}] += amount
	if s, ok := t.series[id]; ok {
		s.supply += amount
	}
}

// Directory resolves token contracts by address.
type Directory struct {
	def    *Token
	tokens map[common.Address]*Token
}

// NewDirectory returns a directory whose default contract is def.
func NewDirectory(def *Token, others ...*Token) *Directory {
	d := &Directory{def: def, tokens: map[common.Address]*Token{def.Address(): def}}
	for _, t := range others {
		d.tokens[t.Address()] = t
	}
	return d
}

// Lookup returns the contract at addr.
func (d *Directory) Lookup(addr common.Address) (domain.TokenContract, error) {
	t, ok := d.tokens[addr]
	if !ok {
		return nil, fmt.Errorf("devchain: contract %s: %w", addr.Hex(), domain.ErrNotFound)
	}
	return t, nil
}

// Default returns the minting contract.
func (d *Directory) Default() domain.TokenContract { return d.def }

var (
	_ domain.TokenContract  = (*Token)(nil)
	_ domain.TokenDirectory = (*Directory)(nil)
)
