package handler

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/assetmarket/internal/domain"
	"github.com/alanyoungcy/assetmarket/internal/service"
)

// Amounts cross the wire as base-10 strings.

type saleResponse struct {
	Seller common.Address `json:"seller"`
	Buyer  common.Address `json:"buyer"`
	Amount uint64         `json:"amount"`
	Price  string         `json:"price"`
}

type itemResponse struct {
	ID          uint64         `json:"id"`
	Contract    common.Address `json:"contract"`
	TokenID     string         `json:"token_id"`
	Creator     common.Address `json:"creator"`
	PositionIDs []uint64       `json:"position_ids"`
	Sales       []saleResponse `json:"sales"`
}

func toItemResponse(it domain.Item) itemResponse {
	out := itemResponse{
		ID:          it.ID,
		Contract:    it.Contract,
		TokenID:     it.TokenID.Dec(),
		Creator:     it.Creator,
		PositionIDs: it.PositionIDs,
		Sales:       make([]saleResponse, 0, len(it.Sales)),
	}
	if out.PositionIDs == nil {
		out.PositionIDs = []uint64{}
	}
	for _, s := range it.Sales {
		out.Sales = append(out.Sales, saleResponse{Seller: s.Seller, Buyer: s.Buyer, Amount: s.Amount, Price: s.Price.Dec()})
	}
	return out
}

type positionResponse struct {
	ID           uint64               `json:"id"`
	ItemID       uint64               `json:"item_id"`
	Owner        common.Address       `json:"owner"`
	Amount       uint64               `json:"amount"`
	MarketFeeBps uint32               `json:"market_fee_bps"`
	State        string               `json:"state"`
	Data         domain.StateDataJSON `json:"data"`
}

func toPositionResponse(p domain.Position) positionResponse {
	return positionResponse{
		ID:           p.ID,
		ItemID:       p.ItemID,
		Owner:        p.Owner,
		Amount:       p.Amount,
		MarketFeeBps: p.MarketFeeBps,
		State:        p.State.String(),
		Data:         domain.EncodeStateData(p.Data()),
	}
}

type pageResponse[T any] struct {
	Records    []T `json:"records"`
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

func toPageResponse[S, T any](p service.Page[S], conv func(S) T) pageResponse[T] {
	out := pageResponse[T]{
		Records:    make([]T, 0, len(p.Records)),
		Page:       p.Page,
		PageSize:   p.PageSize,
		Total:      p.Total,
		TotalPages: p.TotalPages,
	}
	for _, r := range p.Records {
		out.Records = append(out.Records, conv(r))
	}
	return out
}

type mintResponse struct {
	ItemID     uint64 `json:"item_id"`
	PositionID uint64 `json:"position_id"`
	TokenID    string `json:"token_id"`
	Amount     uint64 `json:"amount"`
}

func toMintResponse(r service.MintResult) mintResponse {
	return mintResponse{ItemID: r.ItemID, PositionID: r.PositionID, TokenID: r.TokenID.Dec(), Amount: r.Amount}
}

// positionIDResponse answers operations that yield a position id.
type positionIDResponse struct {
	PositionID uint64 `json:"position_id"`
}
