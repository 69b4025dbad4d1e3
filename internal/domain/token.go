package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// MintRequest describes a new token series minted through the market.
type MintRequest struct {
	Amount           uint64
	URI              string
	MimeType         string
	RoyaltyRecipient common.Address
	RoyaltyBps       uint32
}

// TokenContract is the multi-edition token collaborator. The market never
// implements token logic; it only moves units and reads royalty terms.
type TokenContract interface {
	Address() common.Address
	CheckMint(ctx context.Context, req MintRequest) error
	Mint(ctx context.Context, to common.Address, req MintRequest) (TokenID, error)
	BalanceOf(ctx context.Context, owner common.Address, id TokenID) (uint64, error)
	SafeTransfer(ctx context.Context, from, to common.Address, id TokenID, amount uint64) error
	TotalSupplyOf(ctx context.Context, id TokenID) (uint64, error)
	RoyaltyInfo(ctx context.Context, id TokenID, salePrice Amount) (common.Address, Amount, error)
	URI(ctx context.Context, id TokenID) (string, error)
	SetValidMimeType(ctx context.Context, mimeType string, valid bool) error
}

// TokenDirectory resolves token contracts by address. Default is the
// contract used for minting through the market.
type TokenDirectory interface {
	Lookup(contract common.Address) (TokenContract, error)
	Default() TokenContract
}

// Bank moves settlement currency between wallets and market custody.
// Receive collects a caller's attached payment; Pay sends custodied funds.
type Bank interface {
	Receive(ctx context.Context, from common.Address, amount Amount) error
	Pay(ctx context.Context, to common.Address, amount Amount) error
}

// Clock supplies the current time for deadline checks.
type Clock interface {
	Now() time.Time
}
