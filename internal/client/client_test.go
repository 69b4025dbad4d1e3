package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/assetmarket/internal/clock"
	"github.com/alanyoungcy/assetmarket/internal/crypto"
	"github.com/alanyoungcy/assetmarket/internal/server/middleware"
)

const testKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var testDomain = crypto.Domain{Name: "AssetMarket", Version: "1", ChainID: 31337}

func newTestServer(t *testing.T, clk *clock.Manual) *httptest.Server {
	t.Helper()
	auth, err := middleware.SignedRequests(middleware.SignedRequestConfig{Domain: testDomain, Clock: clk})
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/echo", func(w http.ResponseWriter, r *http.Request) {
		caller, _ := middleware.Caller(r.Context())
		body, _ := io.ReadAll(r.Body)
		_ = json.NewEncoder(w).Encode(map[string]string{"caller": caller.Hex(), "body": string(body)})
	})
	mux.HandleFunc("GET /api/query", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"owner": r.URL.Query().Get("owner")})
	})
	mux.HandleFunc("DELETE /api/missing", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "not found"})
	})
	srv := httptest.NewServer(auth(mux))
	t.Cleanup(srv.Close)
	return srv
}

func TestSignedRequestsAreAccepted(t *testing.T) {
	clk := clock.NewManual()
	srv := newTestServer(t, clk)
	signer, err := crypto.NewSigner(testKey, testDomain)
	require.NoError(t, err)
	c := New(srv.URL+"/", signer, WithClock(clk.Now))

	// Identical requests within one second still carry distinct signatures.
	for i := 0; i < 3; i++ {
		var out map[string]string
		require.NoError(t, c.Post(context.Background(), "/api/echo", map[string]int{"n": 1}, &out))
		assert.Equal(t, signer.Address().Hex(), out["caller"])
		assert.JSONEq(t, `{"n":1}`, out["body"])
	}

	var out map[string]string
	require.NoError(t, c.Get(context.Background(), "/api/query", url.Values{"owner": {"0xabc"}}, &out))
	assert.Equal(t, "0xabc", out["owner"])
}

func TestAPIErrors(t *testing.T) {
	clk := clock.NewManual()
	srv := newTestServer(t, clk)
	signer, err := crypto.NewSigner(testKey, testDomain)
	require.NoError(t, err)

	err = New(srv.URL, signer, WithClock(clk.Now)).Delete(context.Background(), "/api/missing", nil)
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusNotFound))
	assert.Contains(t, err.Error(), "not found")

	skewed := New(srv.URL, signer, WithClock(func() time.Time { return clk.Now().Add(time.Hour) }))
	err = skewed.Post(context.Background(), "/api/echo", nil, nil)
	assert.True(t, IsStatus(err, http.StatusUnauthorized))

	err = New(srv.URL, nil).Post(context.Background(), "/api/echo", nil, nil)
	assert.ErrorContains(t, err, "without a wallet key")
}
