package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/assetmarket/internal/domain"
	"github.com/alanyoungcy/assetmarket/internal/service"
)

// PositionService is the read side of positions.
type PositionService interface {
	FetchPosition(ctx context.Context, id uint64) (domain.Position, error)
	FetchPositionsPage(ctx context.Context, f domain.PositionFilter, page, size int) (service.Page[domain.Position], error)
	StateCount(ctx context.Context, s domain.State) (uint64, error)
}

// PositionHandler serves position queries, including the participant views
// for bids, raffle entries and funded loans.
type PositionHandler struct {
	positions PositionService
	logger    *slog.Logger
}

// NewPositionHandler creates a PositionHandler backed by the given service.
func NewPositionHandler(positions PositionService, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{positions: positions, logger: logHandler(logger, "positions")}
}

// ListPositions pages through live positions.
// GET /api/positions?owner=0x...&state=on_sale&item_id=1&page=1&size=50
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	var f domain.PositionFilter
	owner, ok := queryAddress(w, r, "owner")
	if !ok {
		return
	}
	f.Owner = owner
	q := r.URL.Query()
	if v := q.Get("state"); v != "" {
		s, err := domain.ParseState(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		f.State = &s
	}
	if v := q.Get("item_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid item_id")
			return
		}
		f.ItemID = &id
	}
	h.page(w, r, f, "list positions")
}

// ListBids pages through auctions where bidder is the highest bidder.
// GET /api/bids?bidder=0x...
func (h *PositionHandler) ListBids(w http.ResponseWriter, r *http.Request) {
	bidder, ok := h.participant(w, r, "bidder")
	if !ok {
		return
	}
	h.page(w, r, domain.PositionFilter{Bidder: bidder}, "list bids")
}

// ListRaffles pages through raffles entrant has entered.
// GET /api/raffles?entrant=0x...
func (h *PositionHandler) ListRaffles(w http.ResponseWriter, r *http.Request) {
	entrant, ok := h.participant(w, r, "entrant")
	if !ok {
		return
	}
	h.page(w, r, domain.PositionFilter{Entrant: entrant}, "list raffles")
}

// ListLoans pages through loans funded by lender.
// GET /api/loans?lender=0x...
func (h *PositionHandler) ListLoans(w http.ResponseWriter, r *http.Request) {
	lender, ok := h.participant(w, r, "lender")
	if !ok {
		return
	}
	h.page(w, r, domain.PositionFilter{Lender: lender}, "list loans")
}

// GetPosition returns one position.
// GET /api/positions/{id}
func (h *PositionHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	p, err := h.positions.FetchPosition(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, "get position", err)
		return
	}
	writeJSON(w, http.StatusOK, toPositionResponse(p))
}

// CountByState returns the live position counter for a state.
// GET /api/positions/count/{state}
func (h *PositionHandler) CountByState(w http.ResponseWriter, r *http.Request) {
	s, ok := pathState(w, r)
	if !ok {
		return
	}
	n, err := h.positions.StateCount(r.Context(), s)
	if err != nil {
		writeServiceError(w, r, h.logger, "count positions", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"state": s.String(), "count": n})
}

// participant reads a required address query parameter.
func (h *PositionHandler) participant(w http.ResponseWriter, r *http.Request, name string) (*common.Address, bool) {
	addr, ok := queryAddress(w, r, name)
	if !ok {
		return nil, false
	}
	if addr == nil {
		writeError(w, http.StatusBadRequest, name+" query parameter required")
		return nil, false
	}
	return addr, true
}

func (h *PositionHandler) page(w http.ResponseWriter, r *http.Request, f domain.PositionFilter, op string) {
	page, size, ok := parsePage(w, r)
	if !ok {
		return
	}
	p, err := h.positions.FetchPositionsPage(r.Context(), f, page, size)
	if err != nil {
		writeServiceError(w, r, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, toPageResponse(p, toPositionResponse))
}
