package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/assetmarket/internal/domain"
)

// LedgerService exposes escrow balances and withdrawal.
type LedgerService interface {
	Balance(ctx context.Context, addr common.Address) (domain.Amount, error)
	Withdraw(ctx context.Context, caller common.Address) (domain.Amount, error)
	Custody(ctx context.Context) (held, owed domain.Amount, err error)
}

// LedgerHandler serves escrow balance and withdrawal endpoints.
type LedgerHandler struct {
	ledger LedgerService
	logger *slog.Logger
}

// NewLedgerHandler creates a LedgerHandler backed by the given service.
func NewLedgerHandler(ledger LedgerService, logger *slog.Logger) *LedgerHandler {
	return &LedgerHandler{ledger: ledger, logger: logHandler(logger, "ledger")}
}

// Balance GET /api/ledger/{address}
func (h *LedgerHandler) Balance(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("address")
	if !common.IsHexAddress(raw) {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}
	addr := common.HexToAddress(raw)
	bal, err := h.ledger.Balance(r.Context(), addr)
	if err != nil {
		writeServiceError(w, r, h.logger, "balance", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"address": addr, "balance": bal.Dec()})
}

// Custody reports funds held by the market against funds it owes.
// GET /api/ledger/custody
func (h *LedgerHandler) Custody(w http.ResponseWriter, r *http.Request) {
	held, owed, err := h.ledger.Custody(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "custody", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"held": held.Dec(), "owed": owed.Dec()})
}

// Withdraw pays out the caller's whole balance.
// POST /api/ledger/withdraw
func (h *LedgerHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	paid, err := h.ledger.Withdraw(r.Context(), who)
	if err != nil {
		writeServiceError(w, r, h.logger, "withdraw", err)
		return
	}
	h.logger.InfoContext(r.Context(), "handler: withdrawal paid",
		slog.String("address", who.Hex()),
		slog.String("amount", paid.Dec()),
	)
	writeJSON(w, http.StatusOK, map[string]string{"withdrawn": paid.Dec()})
}
