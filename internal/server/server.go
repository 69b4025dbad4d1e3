// Package server exposes the marketplace over HTTP and websocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/assetmarket/internal/domain"
	"github.com/alanyoungcy/assetmarket/internal/server/handler"
	"github.com/alanyoungcy/assetmarket/internal/server/middleware"
	"github.com/alanyoungcy/assetmarket/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	// RateLimit is the number of requests a client IP may make per
	// RateWindow. Zero disables limiting.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates the route handlers. Dev is optional.
type Handlers struct {
	Health    *handler.HealthHandler
	Items     *handler.ItemHandler
	Positions *handler.PositionHandler
	Sales     *handler.SaleHandler
	Auctions  *handler.AuctionHandler
	Raffles   *handler.RaffleHandler
	Loans     *handler.LoanHandler
	Ledger    *handler.LedgerHandler
	Admin     *handler.AdminHandler
	Dev       *handler.DevHandler
}

// Server is the HTTP + websocket API.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// NewServer registers every route and builds the middleware chain. auth
// authenticates mutating requests; limiter may be nil.
func NewServer(cfg Config, h Handlers, hub *ws.Hub, auth func(http.Handler) http.Handler, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", h.Health.HealthCheck)

	mux.HandleFunc("POST /api/items/mint", h.Items.Mint)
	mux.HandleFunc("POST /api/items/mint-batch", h.Items.MintBatch)
	mux.HandleFunc("POST /api/items", h.Items.CreateItem)
	mux.HandleFunc("POST /api/items/{id}/available", h.Items.AddAvailable)
	mux.HandleFunc("GET /api/items", h.Items.ListItems)
	mux.HandleFunc("GET /api/items/{id}", h.Items.GetItem)
	mux.HandleFunc("GET /api/items/{id}/metadata", h.Items.GetMetadata)

	mux.HandleFunc("GET /api/positions", h.Positions.ListPositions)
	mux.HandleFunc("GET /api/positions/{id}", h.Positions.GetPosition)
	mux.HandleFunc("GET /api/positions/count/{state}", h.Positions.CountByState)

	mux.HandleFunc("POST /api/sales", h.Sales.PutOnSale)
	mux.HandleFunc("DELETE /api/sales/{id}", h.Sales.Unlist)
	mux.HandleFunc("POST /api/sales/{id}/buy", h.Sales.Buy)

	mux.HandleFunc("POST /api/auctions", h.Auctions.CreateAuction)
	mux.HandleFunc("POST /api/auctions/{id}/bids", h.Auctions.Bid)
	mux.HandleFunc("POST /api/auctions/{id}/end", h.Auctions.EndAuction)
	mux.HandleFunc("GET /api/bids", h.Positions.ListBids)

	mux.HandleFunc("POST /api/raffles", h.Raffles.CreateRaffle)
	mux.HandleFunc("POST /api/raffles/{id}/entries", h.Raffles.EnterRaffle)
	mux.HandleFunc("POST /api/raffles/{id}/end", h.Raffles.EndRaffle)
	mux.HandleFunc("GET /api/raffles", h.Positions.ListRaffles)

	mux.HandleFunc("POST /api/loans", h.Loans.ProposeLoan)
	mux.HandleFunc("DELETE /api/loans/{id}", h.Loans.Unlist)
	mux.HandleFunc("POST /api/loans/{id}/fund", h.Loans.Fund)
	mux.HandleFunc("POST /api/loans/{id}/repay", h.Loans.Repay)
	mux.HandleFunc("POST /api/loans/{id}/liquidate", h.Loans.Liquidate)
	mux.HandleFunc("GET /api/loans", h.Positions.ListLoans)

	mux.HandleFunc("GET /api/ledger/custody", h.Ledger.Custody)
	mux.HandleFunc("GET /api/ledger/{address}", h.Ledger.Balance)
	mux.HandleFunc("POST /api/ledger/withdraw", h.Ledger.Withdraw)

	mux.HandleFunc("GET /api/admin/fees/{state}", h.Admin.GetFee)
	mux.HandleFunc("PUT /api/admin/fees/{state}", h.Admin.SetFee)
	mux.HandleFunc("GET /api/admin/successor", h.Admin.GetSuccessor)
	mux.HandleFunc("PUT /api/admin/successor", h.Admin.SetSuccessor)
	mux.HandleFunc("PUT /api/admin/mime-types", h.Admin.SetMimeType)

	if h.Dev != nil {
		mux.HandleFunc("POST /api/dev/fund", h.Dev.Fund)
	}
	if hub != nil {
		mux.HandleFunc("GET /ws", hub.HandleWS)
	}

	var chain http.Handler = mux
	chain = auth(chain)
	if limiter != nil && cfg.RateLimit > 0 {
		chain = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow, logger)(chain)
	}
	chain = middleware.Logging(logger)(chain)
	chain = middleware.CORS(cfg.CORSOrigins)(chain)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           chain,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		handler: chain,
		logger:  logger,
	}
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Start listens until the server fails or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
