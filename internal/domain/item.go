package domain

import "github.com/ethereum/go-ethereum/common"

// ItemKey is the natural key of an Item: one token series of one contract.
type ItemKey struct {
	Contract common.Address
	TokenID  TokenID
}

// Item is the registry record for one externally custodied token series.
type Item struct {
	ID          uint64
	Contract    common.Address
	TokenID     TokenID
	Creator     common.Address
	PositionIDs []uint64
	Sales       []Sale
}

// Key returns the item's natural key.
func (it Item) Key() ItemKey {
	return ItemKey{Contract: it.Contract, TokenID: it.TokenID}
}

// Sale records one completed exchange of an item's units.
type Sale struct {
	Seller common.Address
	Buyer  common.Address
	Amount uint64
	Price  Amount
}

// ItemFilter narrows item queries. Zero fields match everything.
type ItemFilter struct {
	Creator *common.Address
}

// Matches reports whether it satisfies the filter.
func (f ItemFilter) Matches(it Item) bool {
	return f.Creator == nil || *f.Creator == it.Creator
}
