package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/alanyoungcy/assetmarket/internal/crypto"
	"github.com/alanyoungcy/assetmarket/internal/domain"
)

// Request headers carrying the caller's signature.
const (
	HeaderAddress   = "X-Market-Address"
	HeaderTimestamp = "X-Market-Timestamp"
	HeaderSignature = "X-Market-Signature"
)

const maxSignedBody = 1 << 20

type callerKey struct{}

// Caller returns the address authenticated for the request.
func Caller(ctx context.Context) (common.Address, bool) {
	addr, ok := ctx.Value(callerKey{}).(common.Address)
	return addr, ok
}

// WithCaller stores addr as the authenticated caller.
func WithCaller(ctx context.Context, addr common.Address) context.Context {
	return context.WithValue(ctx, callerKey{}, addr)
}

// SignedRequestConfig tunes SignedRequests.
type SignedRequestConfig struct {
	Domain crypto.Domain
	// MaxSkew bounds how far the signed timestamp may be from now.
	MaxSkew time.Duration
	// ReplayCacheSize is the number of recent signatures remembered.
	ReplayCacheSize int
	Clock           domain.Clock
}

// SignedRequests authenticates every non-GET request by its EIP-712
// signature. The recovered signer must match the claimed address, the
// timestamp must be fresh and each signature is accepted once.
func SignedRequests(cfg SignedRequestConfig) (func(http.Handler) http.Handler, error) {
	if cfg.MaxSkew <= 0 {
		cfg.MaxSkew = 5 * time.Minute
	}
	if cfg.ReplayCacheSize <= 0 {
		cfg.ReplayCacheSize = 65536
	}
	seen, err := lru.New[string, time.Time](cfg.ReplayCacheSize)
	if err != nil {
		return nil, err
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			claimed := r.Header.Get(HeaderAddress)
			tsRaw := r.Header.Get(HeaderTimestamp)
			sig := strings.ToLower(r.Header.Get(HeaderSignature))
			if !common.IsHexAddress(claimed) || tsRaw == "" || sig == "" {
				writeError(w, http.StatusUnauthorized, "missing request signature")
				return
			}
			unix, err := strconv.ParseInt(tsRaw, 10, 64)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "bad signature timestamp")
				return
			}
			ts := time.Unix(unix, 0)
			now := cfg.Clock.Now()
			if ts.Before(now.Add(-cfg.MaxSkew)) || ts.After(now.Add(cfg.MaxSkew)) {
				writeError(w, http.StatusUnauthorized, "stale request signature")
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxSignedBody+1))
			if err != nil {
				writeError(w, http.StatusBadRequest, "unreadable body")
				return
			}
			if len(body) > maxSignedBody {
				writeError(w, http.StatusRequestEntityTooLarge, "body too large")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			signer, err := cfg.Domain.RecoverRequest(r.Method, r.URL.Path, body, ts, sig)
			if err != nil || signer != common.HexToAddress(claimed) {
				writeError(w, http.StatusUnauthorized, "invalid request signature")
				return
			}
			// ContainsOrAdd is atomic, so two concurrent replays cannot both pass.
			if found, _ := seen.ContainsOrAdd(sig, ts); found {
				writeError(w, http.StatusUnauthorized, "replayed request signature")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), signer)))
		})
	}, nil
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
