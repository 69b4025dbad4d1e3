package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/assetmarket/internal/domain"
)

// AdminService holds the owner-only settings.
type AdminService interface {
	SetMarketFee(ctx context.Context, caller common.Address, s domain.State, bps uint32) error
	MarketFee(ctx context.Context, s domain.State) (uint32, error)
	SetSuccessor(ctx context.Context, caller, successor common.Address) error
	Successor(ctx context.Context) (common.Address, error)
	SetValidMimeType(ctx context.Context, caller common.Address, mimeType string, valid bool) error
	Owner() common.Address
}

// AdminHandler serves the owner-only fee, successor and mime type endpoints.
type AdminHandler struct {
	admin  AdminService
	logger *slog.Logger
}

// NewAdminHandler creates an AdminHandler backed by the given service.
func NewAdminHandler(admin AdminService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{admin: admin, logger: logHandler(logger, "admin")}
}

// GetFee GET /api/admin/fees/{state}
func (h *AdminHandler) GetFee(w http.ResponseWriter, r *http.Request) {
	s, ok := pathState(w, r)
	if !ok {
		return
	}
	bps, err := h.admin.MarketFee(r.Context(), s)
	if err != nil {
		writeServiceError(w, r, h.logger, "get fee", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"state": s.String(), "bps": bps})
}

// SetFee PUT /api/admin/fees/{state}
func (h *AdminHandler) SetFee(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	s, ok := pathState(w, r)
	if !ok {
		return
	}
	var req struct {
		Bps uint32 `json:"bps"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.admin.SetMarketFee(r.Context(), who, s, req.Bps); err != nil {
		writeServiceError(w, r, h.logger, "set fee", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"state": s.String(), "bps": req.Bps})
}

// GetSuccessor GET /api/admin/successor
func (h *AdminHandler) GetSuccessor(w http.ResponseWriter, r *http.Request) {
	succ, err := h.admin.Successor(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "get successor", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"owner":     h.admin.Owner(),
		"successor": succ,
		"current":   succ == (common.Address{}),
	})
}

// SetSuccessor designates the market that replaces this one. The zero
// address lifts the migration guard.
// PUT /api/admin/successor
func (h *AdminHandler) SetSuccessor(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var req struct {
		Successor common.Address `json:"successor"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.admin.SetSuccessor(r.Context(), who, req.Successor); err != nil {
		writeServiceError(w, r, h.logger, "set successor", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"successor": req.Successor})
}

// SetMimeType allows or forbids a mime type for minting.
// PUT /api/admin/mime-types
func (h *AdminHandler) SetMimeType(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var req struct {
		MimeType string `json:"mime_type"`
		Valid    bool   `json:"valid"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.MimeType == "" {
		writeError(w, http.StatusBadRequest, "mime_type is required")
		return
	}
	if err := h.admin.SetValidMimeType(r.Context(), who, req.MimeType, req.Valid); err != nil {
		writeServiceError(w, r, h.logger, "set mime type", err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}
