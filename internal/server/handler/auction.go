package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/assetmarket/internal/domain"
)

// AuctionService creates, bids on and settles auctions.
type AuctionService interface {
	CreateAuction(ctx context.Context, caller common.Address, positionID, amount, durationMinutes uint64, minBid domain.Amount) (uint64, error)
	Bid(ctx context.Context, caller common.Address, positionID uint64, payment domain.Amount) error
	EndAuction(ctx context.Context, caller common.Address, positionID uint64) error
}

// AuctionHandler serves auction endpoints.
type AuctionHandler struct {
	auctions AuctionService
	logger   *slog.Logger
}

// NewAuctionHandler creates an AuctionHandler backed by the given service.
func NewAuctionHandler(auctions AuctionService, logger *slog.Logger) *AuctionHandler {
	return &AuctionHandler{auctions: auctions, logger: logHandler(logger, "auctions")}
}

// CreateAuction POST /api/auctions
func (h *AuctionHandler) CreateAuction(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var req struct {
		PositionID      uint64 `json:"position_id"`
		Amount          uint64 `json:"amount"`
		DurationMinutes uint64 `json:"duration_minutes"`
		MinBid          string `json:"min_bid"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	minBid, ok := parseAmount(w, "min_bid", req.MinBid)
	if !ok {
		return
	}
	id, err := h.auctions.CreateAuction(r.Context(), who, req.PositionID, req.Amount, req.DurationMinutes, minBid)
	if err != nil {
		writeServiceError(w, r, h.logger, "create auction", err)
		return
	}
	writeJSON(w, http.StatusCreated, positionIDResponse{PositionID: id})
}

// Bid POST /api/auctions/{id}/bids
func (h *AuctionHandler) Bid(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Payment string `json:"payment"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	payment, ok := parseAmount(w, "payment", req.Payment)
	if !ok {
		return
	}
	if err := h.auctions.Bid(r.Context(), who, id, payment); err != nil {
		writeServiceError(w, r, h.logger, "bid", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

// EndAuction POST /api/auctions/{id}/end
func (h *AuctionHandler) EndAuction(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.auctions.EndAuction(r.Context(), who, id); err != nil {
		writeServiceError(w, r, h.logger, "end auction", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ended"})
}
