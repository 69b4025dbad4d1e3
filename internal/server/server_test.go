package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/assetmarket/internal/clock"
	"github.com/alanyoungcy/assetmarket/internal/crypto"
	"github.com/alanyoungcy/assetmarket/internal/domain"
	"github.com/alanyoungcy/assetmarket/internal/platform/devchain"
	"github.com/alanyoungcy/assetmarket/internal/server/handler"
	"github.com/alanyoungcy/assetmarket/internal/server/middleware"
	"github.com/alanyoungcy/assetmarket/internal/service"
	"github.com/alanyoungcy/assetmarket/internal/store/memory"
)

const (
	ownerKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	buyerKey = "0x59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
)

var apiDomain = crypto.Domain{Name: "AssetMarket", Version: "1", ChainID: 31337}

type apiHarness struct {
	t      *testing.T
	h      http.Handler
	clock  *clock.Manual
	owner  *crypto.Signer
	buyer  *crypto.Signer
	nonce  int64
	market *service.Marketplace
}

func newAPI(t *testing.T) *apiHarness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clk := clock.NewManual()

	owner, err := crypto.NewSigner(ownerKey, apiDomain)
	require.NoError(t, err)
	buyer, err := crypto.NewSigner(buyerKey, apiDomain)
	require.NoError(t, err)

	bank := devchain.NewBank()
	token := devchain.NewToken(common.HexToAddress("0x1155"))
	market := service.NewMarketplace(memory.New(), devchain.NewDirectory(token), bank, clk, service.Config{
		Owner:        owner.Address(),
		FeeRecipient: owner.Address(),
		Custodian:    common.HexToAddress("0xc0c0"),
		DefaultFees:  map[domain.State]uint32{domain.StateOnSale: 250, domain.StateOnAuction: 250, domain.StateOnRaffle: 250, domain.StateOnLoan: 100},
		RaffleSeed:   []byte("api"),
	}, logger)

	auth, err := middleware.SignedRequests(middleware.SignedRequestConfig{Domain: apiDomain, Clock: clk})
	require.NoError(t, err)

	srv := NewServer(Config{Port: 0}, Handlers{
		Health:    handler.NewHealthHandler(nil, logger),
		Items:     handler.NewItemHandler(market, logger),
		Positions: handler.NewPositionHandler(market, logger),
		Sales:     handler.NewSaleHandler(market, logger),
		Auctions:  handler.NewAuctionHandler(market, logger),
		Raffles:   handler.NewRaffleHandler(market, logger),
		Loans:     handler.NewLoanHandler(market, logger),
		Ledger:    handler.NewLedgerHandler(market, logger),
		Admin:     handler.NewAdminHandler(market, logger),
		Dev:       handler.NewDevHandler(bank, logger),
	}, nil, auth, nil, logger)

	return &apiHarness{t: t, h: srv.Handler(), clock: clk, owner: owner, buyer: buyer, market: market}
}

// do sends a request, signed by s when s is non-nil. Each signed request
// uses a fresh timestamp so identical bodies are not taken for replays.
func (a *apiHarness) do(s *crypto.Signer, method, path string, body any) (int, map[string]any) {
	a.t.Helper()
	var raw []byte
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		require.NoError(a.t, err)
	}
	r := httptest.NewRequest(method, path, bytes.NewReader(raw))
	if s != nil {
		a.nonce++
		ts := a.clock.Now().Add(time.Duration(a.nonce) * time.Second)
		sig, err := s.SignRequest(method, r.URL.Path, raw, ts)
		require.NoError(a.t, err)
		r.Header.Set(middleware.HeaderAddress, s.Address().Hex())
		r.Header.Set(middleware.HeaderTimestamp, strconv.FormatInt(ts.Unix(), 10))
		r.Header.Set(middleware.HeaderSignature, sig)
	}
	rec := httptest.NewRecorder()
	a.h.ServeHTTP(rec, r)

	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec.Code, out
}

func id(v any) string {
	return strconv.FormatUint(uint64(v.(float64)), 10)
}

func TestSaleFlowOverHTTP(t *testing.T) {
	a := newAPI(t)

	code, minted := a.do(a.owner, http.MethodPost, "/api/items/mint", map[string]any{
		"amount": 10, "uri": "ipfs://art", "mime_type": "image/png",
	})
	require.Equal(t, http.StatusCreated, code, minted)
	itemID, availID := id(minted["item_id"]), id(minted["position_id"])

	code, listed := a.do(a.owner, http.MethodPost, "/api/sales", map[string]any{
		"position_id": minted["position_id"], "amount": 4, "price": "1000",
	})
	require.Equal(t, http.StatusCreated, code, listed)
	saleID := id(listed["position_id"])

	code, _ = a.do(a.buyer, http.MethodPost, "/api/dev/fund", map[string]any{
		"address": a.buyer.Address(), "amount": "5000",
	})
	require.Equal(t, http.StatusOK, code)

	code, body := a.do(a.buyer, http.MethodPost, "/api/sales/"+saleID+"/buy", map[string]any{"amount": 4, "payment": "999"})
	assert.Equal(t, http.StatusPaymentRequired, code, body)

	code, bought := a.do(a.buyer, http.MethodPost, "/api/sales/"+saleID+"/buy", map[string]any{"amount": 4, "payment": "1000"})
	require.Equal(t, http.StatusOK, code, bought)

	code, bal := a.do(nil, http.MethodGet, "/api/ledger/"+a.owner.Address().Hex(), nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "25", bal["balance"], "the owner collects the 2.5% fee; the seller share goes straight to the wallet")

	code, paid := a.do(a.owner, http.MethodPost, "/api/ledger/withdraw", nil)
	require.Equal(t, http.StatusOK, code, paid)
	assert.Equal(t, "25", paid["withdrawn"])

	code, body = a.do(a.owner, http.MethodPost, "/api/ledger/withdraw", map[string]any{})
	assert.Equal(t, http.StatusConflict, code, body)

	code, item := a.do(nil, http.MethodGet, "/api/items/"+itemID, nil)
	require.Equal(t, http.StatusOK, code)
	sales := item["sales"].([]any)
	require.Len(t, sales, 1)
	assert.Equal(t, "1000", sales[0].(map[string]any)["price"])

	code, pos := a.do(nil, http.MethodGet, "/api/positions/"+availID, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "available", pos["state"])
	assert.EqualValues(t, 6, pos["amount"])

	code, page := a.do(nil, http.MethodGet, "/api/positions?owner="+a.buyer.Address().Hex(), nil)
	require.Equal(t, http.StatusOK, code, page)
	assert.EqualValues(t, 1, page["total"])

	code, count := a.do(nil, http.MethodGet, "/api/positions/count/available", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 2, count["count"])
}

func TestAuctionAndLoanRoutes(t *testing.T) {
	a := newAPI(t)
	_, minted := a.do(a.owner, http.MethodPost, "/api/items/mint", map[string]any{"amount": 5, "uri": "u", "mime_type": "image/png"})

	code, auction := a.do(a.owner, http.MethodPost, "/api/auctions", map[string]any{
		"position_id": minted["position_id"], "amount": 2, "duration_minutes": 60, "min_bid": "100",
	})
	require.Equal(t, http.StatusCreated, code, auction)
	auctionID := id(auction["position_id"])

	a.do(a.buyer, http.MethodPost, "/api/dev/fund", map[string]any{"address": a.buyer.Address(), "amount": "1000"})

	code, body := a.do(a.buyer, http.MethodPost, "/api/auctions/"+auctionID+"/bids", map[string]any{"payment": "50"})
	assert.Equal(t, http.StatusBadRequest, code, body)
	code, body = a.do(a.buyer, http.MethodPost, "/api/auctions/"+auctionID+"/bids", map[string]any{"payment": "150"})
	require.Equal(t, http.StatusOK, code, body)

	code, bids := a.do(nil, http.MethodGet, "/api/bids?bidder="+a.buyer.Address().Hex(), nil)
	require.Equal(t, http.StatusOK, code, bids)
	assert.EqualValues(t, 1, bids["total"])

	code, body = a.do(a.owner, http.MethodPost, "/api/auctions/"+auctionID+"/end", nil)
	assert.Equal(t, http.StatusConflict, code, body)

	code, loan := a.do(a.owner, http.MethodPost, "/api/loans", map[string]any{
		"position_id": minted["position_id"], "amount": 3, "loan_amount": "500", "fee_amount": "50", "duration_minutes": 30,
	})
	require.Equal(t, http.StatusCreated, code, loan)
	loanID := id(loan["position_id"])

	code, body = a.do(a.owner, http.MethodDelete, "/api/loans/"+loanID, nil)
	require.Equal(t, http.StatusOK, code, body)

	code, body = a.do(nil, http.MethodGet, "/api/loans", nil)
	assert.Equal(t, http.StatusBadRequest, code, body, "lender is required")
}

func TestAuthAndErrorMapping(t *testing.T) {
	a := newAPI(t)

	code, _ := a.do(nil, http.MethodPost, "/api/items/mint", map[string]any{"amount": 1})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = a.do(a.buyer, http.MethodPut, "/api/admin/fees/on_sale", map[string]any{"bps": 10})
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = a.do(a.owner, http.MethodPut, "/api/admin/fees/available", map[string]any{"bps": 10})
	assert.Equal(t, http.StatusBadRequest, code)

	code, fee := a.do(a.owner, http.MethodPut, "/api/admin/fees/on_auction", map[string]any{"bps": 300})
	require.Equal(t, http.StatusOK, code)
	code, fee = a.do(nil, http.MethodGet, "/api/admin/fees/on_auction", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 300, fee["bps"])

	code, _ = a.do(nil, http.MethodGet, "/api/admin/fees/nonsense", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = a.do(nil, http.MethodGet, "/api/items/99", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = a.do(nil, http.MethodGet, "/api/items", nil)
	assert.Equal(t, http.StatusBadRequest, code, "an empty registry has no page 1")

	code, _ = a.do(nil, http.MethodGet, "/api/items?page=x", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	successor := common.HexToAddress("0x5000000000000000000000000000000000000005")
	code, _ = a.do(a.owner, http.MethodPut, "/api/admin/successor", map[string]any{"successor": successor})
	require.Equal(t, http.StatusOK, code)
	code, _ = a.do(a.owner, http.MethodPost, "/api/items/mint", map[string]any{"amount": 1, "uri": "u", "mime_type": "image/png"})
	assert.Equal(t, http.StatusGone, code)

	code, status := a.do(nil, http.MethodGet, "/api/admin/successor", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, status["current"])

	code, health := a.do(nil, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", health["status"])
}
