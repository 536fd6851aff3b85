// Package proxyauth resolves proxy keys presented by callers to the user that
// owns them.
package proxyauth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"
)

// DefaultKeyPrefix is the prefix every proxy key starts with.
const DefaultKeyPrefix = "sk-proxy-"

var (
	ErrMissingKey       = errors.New("missing proxy key")
	ErrInvalidKey       = errors.New("invalid proxy key")
	ErrStoreUnavailable = errors.New("key store unavailable")
	// ErrKeyNotFound is returned by KeyStore implementations for unknown hashes.
	ErrKeyNotFound = errors.New("proxy key not found")
)

// ProxyKey is a stored proxy key. Only the hash of the secret is kept.
type ProxyKey struct {
	ID         string
	UserID     string
	KeyHash    string
	KeyPrefix  string
	IsActive   bool
	LastUsedAt *time.Time
}

// Identity is the result of a successful resolve.
type Identity struct {
	UserID string
	KeyID  string
}

type KeyStore interface {
	FindByHash(ctx context.Context, hash string) (*ProxyKey, error)
	TouchLastUsed(ctx context.Context, id string, at time.Time) error
}

// HashToken returns the hex SHA-256 of a raw key.
func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// SecretFromHeaders reads the key from "Authorization: Bearer <key>" or, for
// Anthropic-style clients, "x-api-key".
func SecretFromHeaders(h http.Header) string {
	if auth := h.Get("Authorization"); auth != "" {
		scheme, token, ok := strings.Cut(auth, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	return strings.TrimSpace(h.Get("x-api-key"))
}
