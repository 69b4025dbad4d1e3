package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/assetmarket/internal/clock"
	"github.com/alanyoungcy/assetmarket/internal/crypto"
)

const (
	aliceKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	bobKey   = "0x59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
)

var testDomain = crypto.Domain{Name: "AssetMarket", Version: "1", ChainID: 31337}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// echoCaller answers with the authenticated address and the body it saw.
func echoCaller() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		addr, ok := Caller(r.Context())
		if !ok {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Write([]byte(addr.Hex() + "|" + string(body)))
	})
}

func signed(t *testing.T, key, method, path, body string, ts time.Time) *http.Request {
	t.Helper()
	s, err := crypto.NewSigner(key, testDomain)
	require.NoError(t, err)
	sig, err := s.SignRequest(method, path, []byte(body), ts)
	require.NoError(t, err)
	r := httptest.NewRequest(method, path, strings.NewReader(body))
	r.Header.Set(HeaderAddress, s.Address().Hex())
	r.Header.Set(HeaderTimestamp, strconv.FormatInt(ts.Unix(), 10))
	r.Header.Set(HeaderSignature, sig)
	return r
}

func newAuth(t *testing.T, clk *clock.Manual) http.Handler {
	t.Helper()
	mw, err := SignedRequests(SignedRequestConfig{Domain: testDomain, MaxSkew: time.Minute, ReplayCacheSize: 16, Clock: clk})
	require.NoError(t, err)
	return mw(echoCaller())
}

func TestSignedRequestsAcceptsAndRestoresBody(t *testing.T) {
	clk := clock.NewManual()
	h := newAuth(t, clk)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, signed(t, aliceKey, http.MethodPost, "/api/sales", `{"price":"1"}`, clk.Now()))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266|{\"price\":\"1\"}", rec.Body.String())
}

func TestSignedRequestsRejects(t *testing.T) {
	clk := clock.NewManual()
	h := newAuth(t, clk)
	now := clk.Now()

	cases := map[string]*http.Request{
		"unsigned": httptest.NewRequest(http.MethodPost, "/api/sales", strings.NewReader("{}")),
		"stale":    signed(t, aliceKey, http.MethodPost, "/api/sales", "{}", now.Add(-2*time.Minute)),
		"future":   signed(t, aliceKey, http.MethodPost, "/api/sales", "{}", now.Add(2*time.Minute)),
	}

	tampered := signed(t, aliceKey, http.MethodPost, "/api/sales", "{}", now)
	tampered.Body = io.NopCloser(strings.NewReader(`{"x":1}`))
	cases["tampered body"] = tampered

	impostor := signed(t, bobKey, http.MethodPost, "/api/sales", "{}", now)
	impostor.Header.Set(HeaderAddress, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	cases["claimed address mismatch"] = impostor

	badTS := signed(t, aliceKey, http.MethodPost, "/api/sales", "{}", now)
	badTS.Header.Set(HeaderTimestamp, "soon")
	cases["bad timestamp"] = badTS

	for name, r := range cases {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, r)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func TestSignedRequestsRejectsReplay(t *testing.T) {
	clk := clock.NewManual()
	h := newAuth(t, clk)

	first := signed(t, aliceKey, http.MethodDelete, "/api/sales/1", "", clk.Now())
	replay := first.Clone(context.Background())
	replay.Body = io.NopCloser(strings.NewReader(""))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, first)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, replay)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "replayed")
}

func TestSignedRequestsPassesReads(t *testing.T) {
	h := newAuth(t, clock.NewManual())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/items", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code, "reads are anonymous")
}

type fakeLimiter struct {
	allow bool
	err   error
	keys  []string
}

func (f *fakeLimiter) Allow(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	f.keys = append(f.keys, key)
	return f.allow, f.err
}

func (f *fakeLimiter) Wait(context.Context, string) error { return nil }

func TestRateLimit(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	lim := &fakeLimiter{allow: false}
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	rec := httptest.NewRecorder()
	RateLimit(lim, 10, 30*time.Second, quietLogger())(ok).ServeHTTP(rec, r)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))
	assert.Equal(t, []string{"api:203.0.113.7"}, lim.keys)

	down := &fakeLimiter{err: errors.New("redis down")}
	rec = httptest.NewRecorder()
	RateLimit(down, 10, time.Second, quietLogger())(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code, "fails open")
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.1:5555"
	assert.Equal(t, "192.0.2.1", clientIP(r))
	r.Header.Set("X-Real-IP", "198.51.100.2")
	assert.Equal(t, "198.51.100.2", clientIP(r))
	r.Header.Set("X-Forwarded-For", "203.0.113.9")
	assert.Equal(t, "203.0.113.9", clientIP(r))
}

func TestCORS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) })
	h := CORS([]string{"https://app.example"})(next)

	pre := httptest.NewRequest(http.MethodOptions, "/api/sales", nil)
	pre.Header.Set("Origin", "https://app.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, pre)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), HeaderSignature)

	other := httptest.NewRequest(http.MethodGet, "/", nil)
	other.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, other)
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestLoggingRecordsStatus(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	h := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	r := httptest.NewRequest(http.MethodPost, "/api/loans", nil)
	r.Header.Set(HeaderAddress, common.HexToAddress("0xb0b").Hex())
	h.ServeHTTP(httptest.NewRecorder(), r)
	assert.Contains(t, buf.String(), `"status":409`)
	assert.Contains(t, buf.String(), `"claimed_address"`)
}
