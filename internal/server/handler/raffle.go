package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/assetmarket/internal/domain"
)

// RaffleService creates, enters and draws raffles.
type RaffleService interface {
	CreateRaffle(ctx context.Context, caller common.Address, positionID, amount, durationMinutes uint64) (uint64, error)
	EnterRaffle(ctx context.Context, caller common.Address, positionID uint64, payment domain.Amount) error
	EndRaffle(ctx context.Context, caller common.Address, positionID uint64) (common.Address, error)
}

// RaffleHandler serves raffle endpoints.
type RaffleHandler struct {
	raffles RaffleService
	logger  *slog.Logger
}

// NewRaffleHandler creates a RaffleHandler backed by the given service.
func NewRaffleHandler(raffles RaffleService, logger *slog.Logger) *RaffleHandler {
	return &RaffleHandler{raffles: raffles, logger: logHandler(logger, "raffles")}
}

// CreateRaffle POST /api/raffles
func (h *RaffleHandler) CreateRaffle(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var req struct {
		PositionID      uint64 `json:"position_id"`
		Amount          uint64 `json:"amount"`
		DurationMinutes uint64 `json:"duration_minutes"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	id, err := h.raffles.CreateRaffle(r.Context(), who, req.PositionID, req.Amount, req.DurationMinutes)
	if err != nil {
		writeServiceError(w, r, h.logger, "create raffle", err)
		return
	}
	writeJSON(w, http.StatusCreated, positionIDResponse{PositionID: id})
}

// EnterRaffle POST /api/raffles/{id}/entries
func (h *RaffleHandler) EnterRaffle(w http.ResponseWriter, r *http.Request) {
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
	if err := h.raffles.EnterRaffle(r.Context(), who, id, payment); err != nil {
		writeServiceError(w, r, h.logger, "enter raffle", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "entered"})
}

// EndRaffle draws the winner.
// POST /api/raffles/{id}/end
func (h *RaffleHandler) EndRaffle(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	winner, err := h.raffles.EndRaffle(r.Context(), who, id)
	if err != nil {
		writeServiceError(w, r, h.logger, "end raffle", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"winner": winner})
}
