package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/assetmarket/internal/domain"
	"github.com/alanyoungcy/assetmarket/internal/service"
)

// LoanService proposes, funds, repays and liquidates loans.
type LoanService interface {
	ProposeLoan(ctx context.Context, caller common.Address, positionID, amount uint64, terms service.LoanTerms) (uint64, error)
	UnlistLoanProposal(ctx context.Context, caller common.Address, positionID uint64) (uint64, error)
	FundLoan(ctx context.Context, caller common.Address, positionID uint64, payment domain.Amount) error
	RepayLoan(ctx context.Context, caller common.Address, positionID uint64, payment domain.Amount) (uint64, error)
	LiquidateLoan(ctx context.Context, caller common.Address, positionID uint64) (uint64, error)
}

// LoanHandler serves loan endpoints.
type LoanHandler struct {
	loans  LoanService
	logger *slog.Logger
}

// NewLoanHandler creates a LoanHandler backed by the given service.
func NewLoanHandler(loans LoanService, logger *slog.Logger) *LoanHandler {
	return &LoanHandler{loans: loans, logger: logHandler(logger, "loans")}
}

// ProposeLoan offers units as collateral.
// POST /api/loans
func (h *LoanHandler) ProposeLoan(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var req struct {
		PositionID      uint64 `json:"position_id"`
		Amount          uint64 `json:"amount"`
		LoanAmount      string `json:"loan_amount"`
		FeeAmount       string `json:"fee_amount"`
		DurationMinutes uint64 `json:"duration_minutes"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	loanAmount, ok := parseAmount(w, "loan_amount", req.LoanAmount)
	if !ok {
		return
	}
	feeAmount, ok := parseAmount(w, "fee_amount", req.FeeAmount)
	if !ok {
		return
	}
	id, err := h.loans.ProposeLoan(r.Context(), who, req.PositionID, req.Amount, service.LoanTerms{
		LoanAmount:      loanAmount,
		FeeAmount:       feeAmount,
		DurationMinutes: req.DurationMinutes,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, "propose loan", err)
		return
	}
	writeJSON(w, http.StatusCreated, positionIDResponse{PositionID: id})
}

// Unlist withdraws an unfunded proposal.
// DELETE /api/loans/{id}
func (h *LoanHandler) Unlist(w http.ResponseWriter, r *http.Request) {
	h.positionOp(w, r, "unlist loan", h.loans.UnlistLoanProposal)
}

// Liquidate hands the collateral of an overdue loan to its lender.
// POST /api/loans/{id}/liquidate
func (h *LoanHandler) Liquidate(w http.ResponseWriter, r *http.Request) {
	h.positionOp(w, r, "liquidate loan", h.loans.LiquidateLoan)
}

// Fund POST /api/loans/{id}/fund
func (h *LoanHandler) Fund(w http.ResponseWriter, r *http.Request) {
	who, id, payment, ok := h.paymentOp(w, r)
	if !ok {
		return
	}
	if err := h.loans.FundLoan(r.Context(), who, id, payment); err != nil {
		writeServiceError(w, r, h.logger, "fund loan", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "funded"})
}

// Repay POST /api/loans/{id}/repay
func (h *LoanHandler) Repay(w http.ResponseWriter, r *http.Request) {
	who, id, payment, ok := h.paymentOp(w, r)
	if !ok {
		return
	}
	avail, err := h.loans.RepayLoan(r.Context(), who, id, payment)
	if err != nil {
		writeServiceError(w, r, h.logger, "repay loan", err)
		return
	}
	writeJSON(w, http.StatusOK, positionIDResponse{PositionID: avail})
}

func (h *LoanHandler) positionOp(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context, common.Address, uint64) (uint64, error)) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	out, err := fn(r.Context(), who, id)
	if err != nil {
		writeServiceError(w, r, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, positionIDResponse{PositionID: out})
}

func (h *LoanHandler) paymentOp(w http.ResponseWriter, r *http.Request) (common.Address, uint64, domain.Amount, bool) {
	who, ok := caller(w, r)
	if !ok {
		return common.Address{}, 0, domain.Amount{}, false
	}
	id, ok := pathID(w, r)
	if !ok {
		return common.Address{}, 0, domain.Amount{}, false
	}
	var req struct {
		Payment string `json:"payment"`
	}
	if !decodeBody(w, r, &req) {
		return common.Address{}, 0, domain.Amount{}, false
	}
	payment, ok := parseAmount(w, "payment", req.Payment)
	if !ok {
		return common.Address{}, 0, domain.Amount{}, false
	}
	return who, id, payment, true
}
