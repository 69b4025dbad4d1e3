package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/assetmarket/internal/domain"
	"github.com/alanyoungcy/assetmarket/internal/service"
)

// ItemService is the part of the marketplace the item handler needs.
type ItemService interface {
	Mint(ctx context.Context, caller common.Address, req domain.MintRequest) (service.MintResult, error)
	MintBatch(ctx context.Context, caller common.Address, reqs []domain.MintRequest) ([]service.MintResult, error)
	CreateItem(ctx context.Context, caller, contract common.Address, tokenID domain.TokenID) (service.MintResult, error)
	AddAvailableTokens(ctx context.Context, caller common.Address, itemID uint64) (service.MintResult, error)
	FetchItem(ctx context.Context, id uint64) (domain.Item, error)
	FetchItemsPage(ctx context.Context, f domain.ItemFilter, page, size int) (service.Page[domain.Item], error)
	FetchMetadata(ctx context.Context, itemID uint64) (domain.TokenMetadata, error)
}

// ItemHandler serves item registry endpoints.
type ItemHandler struct {
	items  ItemService
	logger *slog.Logger
}

// NewItemHandler creates an ItemHandler backed by the given service.
func NewItemHandler(items ItemService, logger *slog.Logger) *ItemHandler {
	return &ItemHandler{items: items, logger: logHandler(logger, "items")}
}

type mintRequest struct {
	Amount           uint64         `json:"amount"`
	URI              string         `json:"uri"`
	MimeType         string         `json:"mime_type"`
	RoyaltyRecipient common.Address `json:"royalty_recipient"`
	RoyaltyBps       uint32         `json:"royalty_bps"`
}

func (m mintRequest) toDomain() domain.MintRequest {
	return domain.MintRequest{
		Amount:           m.Amount,
		URI:              m.URI,
		MimeType:         m.MimeType,
		RoyaltyRecipient: m.RoyaltyRecipient,
		RoyaltyBps:       m.RoyaltyBps,
	}
}

// Mint mints a new token series to the caller.
// POST /api/items/mint
func (h *ItemHandler) Mint(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var req mintRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := h.items.Mint(r.Context(), who, req.toDomain())
	if err != nil {
		writeServiceError(w, r, h.logger, "mint", err)
		return
	}
	writeJSON(w, http.StatusCreated, toMintResponse(res))
}

// MintBatch mints several series in one request.
// POST /api/items/mint-batch
func (h *ItemHandler) MintBatch(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var req struct {
		Items []mintRequest `json:"items"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, "items are required")
		return
	}
	reqs := make([]domain.MintRequest, 0, len(req.Items))
	for _, m := range req.Items {
		reqs = append(reqs, m.toDomain())
	}
	results, err := h.items.MintBatch(r.Context(), who, reqs)
	if err != nil {
		writeServiceError(w, r, h.logger, "mint batch", err)
		return
	}
	out := make([]mintResponse, 0, len(results))
	for _, res := range results {
		out = append(out, toMintResponse(res))
	}
	writeJSON(w, http.StatusCreated, map[string]any{"items": out})
}

// CreateItem registers an external token the caller already holds.
// POST /api/items
func (h *ItemHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var req struct {
		Contract common.Address `json:"contract"`
		TokenID  string         `json:"token_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.TokenID == "" {
		writeError(w, http.StatusBadRequest, "token_id is required")
		return
	}
	tokenID, ok := parseAmount(w, "token_id", req.TokenID)
	if !ok {
		return
	}
	res, err := h.items.CreateItem(r.Context(), who, req.Contract, tokenID)
	if err != nil {
		writeServiceError(w, r, h.logger, "create item", err)
		return
	}
	writeJSON(w, http.StatusCreated, toMintResponse(res))
}

// AddAvailable opens a position for the caller's current balance of an item.
// POST /api/items/{id}/available
func (h *ItemHandler) AddAvailable(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	res, err := h.items.AddAvailableTokens(r.Context(), who, id)
	if err != nil {
		writeServiceError(w, r, h.logger, "add available tokens", err)
		return
	}
	writeJSON(w, http.StatusCreated, toMintResponse(res))
}

// ListItems pages through items, optionally by creator.
// GET /api/items?creator=0x...&page=1&size=50
func (h *ItemHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	creator, ok := queryAddress(w, r, "creator")
	if !ok {
		return
	}
	page, size, ok := parsePage(w, r)
	if !ok {
		return
	}
	p, err := h.items.FetchItemsPage(r.Context(), domain.ItemFilter{Creator: creator}, page, size)
	if err != nil {
		writeServiceError(w, r, h.logger, "list items", err)
		return
	}
	writeJSON(w, http.StatusOK, toPageResponse(p, toItemResponse))
}

// GetItem returns one item with its sales history.
// GET /api/items/{id}
func (h *ItemHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	it, err := h.items.FetchItem(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, "get item", err)
		return
	}
	writeJSON(w, http.StatusOK, toItemResponse(it))
}

// GetMetadata returns the token metadata of an item.
// GET /api/items/{id}/metadata
func (h *ItemHandler) GetMetadata(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	md, err := h.items.FetchMetadata(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, "get metadata", err)
		return
	}
	writeJSON(w, http.StatusOK, md)
}
