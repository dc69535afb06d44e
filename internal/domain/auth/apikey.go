package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"slices"

	"github.com/go-faster/errors"
)

// Scopes granted to API keys.
const (
	// ScopeEvaluate allows cart evaluation and reading active schemes.
	ScopeEvaluate = "schemes:evaluate"
	// ScopeOverride allows editing a session's override ledger.
	ScopeOverride = "schemes:override"
	// ScopeCommit allows writing overrides to the audit log.
	ScopeCommit = "schemes:commit"
)

// ErrUnauthorized is returned when an API key is unknown or lacks a scope.
var ErrUnauthorized = errors.New("unauthorized")

// APIKeyInfo holds the identity and permission data for a validated API key.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	Scopes  []string
}

// HasScope reports whether the key was granted scope.
func (k *APIKeyInfo) HasScope(scope string) bool {
	return slices.Contains(k.Scopes, scope)
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}

// HashKey returns the raw HMAC-SHA256 of key under pepper.
func HashKey(key string, pepper []byte) []byte {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	return mac.Sum(nil)
}

// HashKeyHex is HashKey encoded as lowercase hex, the stored form.
func HashKeyHex(key string, pepper []byte) string {
	return hex.EncodeToString(HashKey(key, pepper))
}

type keyInfoCtx struct{}

// WithKey stores the authenticated key in ctx.
func WithKey(ctx context.Context, info *APIKeyInfo) context.Context {
	return context.WithValue(ctx, keyInfoCtx{}, info)
}

// KeyFromContext returns the authenticated key, if any.
func KeyFromContext(ctx context.Context) (*APIKeyInfo, bool) {
	info, ok := ctx.Value(keyInfoCtx{}).(*APIKeyInfo)
	return info, ok
}
