package handler

import (
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/trade-schemes/internal/domain/auth"
)

// HeaderAPIKey is the request header that carries the API key.
const HeaderAPIKey = "api_key"

// Authenticator resolves the API key of a request against stored
// HMAC-SHA256 hashes.
type Authenticator struct {
	keys   auth.Repository
	pepper []byte
}

// NewAuthenticator creates an Authenticator using the given repository and
// HMAC pepper.
func NewAuthenticator(keys auth.Repository, pepper []byte) *Authenticator {
	return &Authenticator{keys: keys, pepper: pepper}
}

// Middleware rejects requests without a valid key with 401 and stores the
// key in the context for RequireScope.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(HeaderAPIKey)
		if key == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		hash := auth.HashKey(key, a.pepper)
		info, err := a.keys.FindByHash(r.Context(), hex.EncodeToString(hash))
		if err != nil {
			if !errors.Is(err, auth.ErrUnauthorized) {
				zctx.From(r.Context()).Warn("API key lookup failed", zap.Error(err))
			}
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		// The stored hash is compared again in constant time in case the
		// repository matched on something other than the exact hash.
		stored, err := hex.DecodeString(info.KeyHash)
		if err != nil || subtle.ConstantTimeCompare(hash, stored) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithKey(r.Context(), info)))
	})
}

// RequireScope responds 403 unless the authenticated key has scope.
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info, ok := auth.KeyFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if !info.HasScope(scope) {
				writeError(w, http.StatusForbidden, "api key lacks scope "+scope)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
