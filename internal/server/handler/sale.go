package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/assetmarket/internal/domain"
)

// SaleService lists, unlists and buys fixed-price positions.
type SaleService interface {
	PutOnSale(ctx context.Context, caller common.Address, positionID, amount uint64, price domain.Amount) (uint64, error)
	Unlist(ctx context.Context, caller common.Address, positionID uint64) (uint64, error)
	Buy(ctx context.Context, caller common.Address, positionID, amount uint64, payment domain.Amount) (uint64, error)
}

// SaleHandler serves fixed-price sale endpoints.
type SaleHandler struct {
	sales  SaleService
	logger *slog.Logger
}

// NewSaleHandler creates a SaleHandler backed by the given service.
func NewSaleHandler(sales SaleService, logger *slog.Logger) *SaleHandler {
	return &SaleHandler{sales: sales, logger: logHandler(logger, "sales")}
}

// PutOnSale lists units of an Available position at a price for the lot.
// POST /api/sales
func (h *SaleHandler) PutOnSale(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var req struct {
		PositionID uint64 `json:"position_id"`
		Amount     uint64 `json:"amount"`
		Price      string `json:"price"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	price, ok := parseAmount(w, "price", req.Price)
	if !ok {
		return
	}
	id, err := h.sales.PutOnSale(r.Context(), who, req.PositionID, req.Amount, price)
	if err != nil {
		writeServiceError(w, r, h.logger, "put on sale", err)
		return
	}
	writeJSON(w, http.StatusCreated, positionIDResponse{PositionID: id})
}

// Unlist returns a sale position to the seller's Available holding.
// DELETE /api/sales/{id}
func (h *SaleHandler) Unlist(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	avail, err := h.sales.Unlist(r.Context(), who, id)
	if err != nil {
		writeServiceError(w, r, h.logger, "unlist", err)
		return
	}
	writeJSON(w, http.StatusOK, positionIDResponse{PositionID: avail})
}

// Buy purchases units of a sale position.
// POST /api/sales/{id}/buy
func (h *SaleHandler) Buy(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Amount  uint64 `json:"amount"`
		Payment string `json:"payment"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	payment, ok := parseAmount(w, "payment", req.Payment)
	if !ok {
		return
	}
	bought, err := h.sales.Buy(r.Context(), who, id, req.Amount, payment)
	if err != nil {
		writeServiceError(w, r, h.logger, "buy", err)
		return
	}
	writeJSON(w, http.StatusOK, positionIDResponse{PositionID: bought})
}
