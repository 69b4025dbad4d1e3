package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/assetmarket/internal/clock"
	"github.com/alanyoungcy/assetmarket/internal/crypto"
	"github.com/alanyoungcy/assetmarket/internal/domain"
	"github.com/alanyoungcy/assetmarket/internal/platform/devchain"
	"github.com/alanyoungcy/assetmarket/internal/server"
	"github.com/alanyoungcy/assetmarket/internal/server/handler"
	"github.com/alanyoungcy/assetmarket/internal/server/middleware"
	"github.com/alanyoungcy/assetmarket/internal/service"
	"github.com/alanyoungcy/assetmarket/internal/store/memory"
)

const (
	ownerKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	buyerKey = "0x59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
)

// newAPI serves the real API over the in-memory store with the default
// signing domain.
func newAPI(t *testing.T) string {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	domainCfg := crypto.Domain{Name: "AssetMarket", Version: "1", ChainID: 31337}
	owner, err := crypto.NewSigner(ownerKey, domainCfg)
	require.NoError(t, err)

	bank := devchain.NewBank()
	market := service.NewMarketplace(memory.New(), devchain.NewDirectory(devchain.NewToken(common.HexToAddress("0x1155"))), bank, clock.System{}, service.Config{
		Owner:        owner.Address(),
		FeeRecipient: owner.Address(),
		Custodian:    common.HexToAddress("0xc0c0"),
		DefaultFees:  map[domain.State]uint32{domain.StateOnSale: 250},
	}, logger)

	auth, err := middleware.SignedRequests(middleware.SignedRequestConfig{Domain: domainCfg, Clock: clock.System{}})
	require.NoError(t, err)
	srv := server.NewServer(server.Config{}, server.Handlers{
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

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts.URL
}

func run(t *testing.T, args ...string) (map[string]any, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		return nil, err
	}
	var v map[string]any
	if out.Len() > 0 && out.Bytes()[0] == '{' {
		require.NoError(t, json.Unmarshal(out.Bytes(), &v))
	}
	return v, nil
}

func TestMintListAndBuy(t *testing.T) {
	api := newAPI(t)
	buyer, err := crypto.NewSigner(buyerKey, crypto.Domain{})
	require.NoError(t, err)

	minted, err := run(t, "--api", api, "--key", ownerKey, "item", "mint", "--amount", "5", "--uri", "ipfs://cat")
	require.NoError(t, err)
	assert.EqualValues(t, 1, minted["item_id"])
	posID := "1"

	listed, err := run(t, "--api", api, "--key", ownerKey, "sale", "list", "--position", posID, "--amount", "2", "--price", "1000")
	require.NoError(t, err)
	salePos := listed["position_id"].(float64)

	_, err = run(t, "--api", api, "--key", ownerKey, "dev", "fund", buyer.Address().Hex(), "--amount", "5000")
	require.NoError(t, err)

	_, err = run(t, "--api", api, "--key", buyerKey, "sale", "buy", jsonID(salePos), "--amount", "1", "--payment", "400")
	require.Error(t, err, "price is for the whole lot")

	_, err = run(t, "--api", api, "--key", buyerKey, "sale", "buy", jsonID(salePos), "--amount", "1", "--payment", "500")
	require.NoError(t, err)

	bal, err := run(t, "--api", api, "--key", ownerKey, "ledger", "balance")
	require.NoError(t, err)
	assert.Equal(t, "12", bal["balance"], "2.5% of 500, truncated")

	page, err := run(t, "--api", api, "position", "list", "--owner", buyer.Address().Hex())
	require.NoError(t, err)
	assert.EqualValues(t, 1, page["total"])
}

func TestKeyEncryptAndAddress(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wallet.json")

	_, err := run(t, "--key", ownerKey, "--password", "pw", "key", "encrypt", "--out", path)
	require.NoError(t, err)
	blob, err := os.ReadFile(path)
	require.NoError(t, err)
	key, err := crypto.DecryptKey(blob, "pw")
	require.NoError(t, err)
	assert.Equal(t, ownerKey[2:], key)

	_, err = run(t, "key", "encrypt")
	assert.ErrorContains(t, err, "needs --key and --password")

	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--key-file", path, "--password", "pw", "key", "address"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266\n", out.String())
}

func jsonID(v float64) string {
	b, _ := json.Marshal(uint64(v))
	return string(b)
}
