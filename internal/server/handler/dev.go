package handler

import (
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/assetmarket/internal/domain"
)

// Funder credits development wallets.
type Funder interface {
	Fund(addr common.Address, amount domain.Amount) error
	BalanceOf(addr common.Address) domain.Amount
}

// DevHandler is registered only against the in-process chain.
type DevHandler struct {
	funder Funder
	logger *slog.Logger
}

// NewDevHandler creates a DevHandler that funds wallets through funder.
func NewDevHandler(funder Funder, logger *slog.Logger) *DevHandler {
	return &DevHandler{funder: funder, logger: logHandler(logger, "dev")}
}

// Fund POST /api/dev/fund
func (h *DevHandler) Fund(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Address common.Address `json:"address"`
		Amount  string         `json:"amount"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	amount, ok := parseAmount(w, "amount", req.Amount)
	if !ok {
		return
	}
	if err := h.funder.Fund(req.Address, amount); err != nil {
		writeServiceError(w, r, h.logger, "fund", err)
		return
	}
	bal := h.funder.BalanceOf(req.Address)
	writeJSON(w, http.StatusOK, map[string]any{"address": req.Address, "balance": bal.Dec()})
}
