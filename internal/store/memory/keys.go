package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/mixaill76/byok_router/internal/proxyauth"
)

// KeyStore implements proxyauth.KeyStore. Secrets are hashed on insert and
// never kept.
type KeyStore struct {
	mu     sync.RWMutex
	byHash map[string]*proxyauth.ProxyKey
	byID   map[string]*proxyauth.ProxyKey
}

func NewKeyStore() *KeyStore {
	return &KeyStore{
		byHash: make(map[string]*proxyauth.ProxyKey),
		byID:   make(map[string]*proxyauth.ProxyKey),
	}
}

// Add registers a raw secret for userID. prefix is stored for display only.
func (s *KeyStore) Add(id, userID, secret, prefix string) {
	key := &proxyauth.ProxyKey{
		ID:       id,
		UserID:   userID,
		KeyHash:  proxyauth.HashToken(secret),
		IsActive: true,
	}
	if strings.HasPrefix(secret, prefix) {
		key.KeyPrefix = prefix
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.byID[id]; ok {
		delete(s.byHash, old.KeyHash)
	}
	s.byHash[key.KeyHash] = key
	s.byID[id] = key
}

// Deactivate marks a key inactive. It reports whether the key existed.
func (s *KeyStore) Deactivate(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.byID[id]
	if ok {
		key.IsActive = false
	}
	return ok
}

func (s *KeyStore) FindByHash(ctx context.Context, hash string) (*proxyauth.ProxyKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.byHash[hash]
	if !ok {
		return nil, proxyauth.ErrKeyNotFound
	}
	c := *key
	return &c, nil
}

func (s *KeyStore) TouchLastUsed(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.byID[id]
	if !ok {
		return proxyauth.ErrKeyNotFound
	}
	key.LastUsedAt = &at
	return nil
}
