package proxyauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mixaill76/byok_router/internal/security"
	"github.com/mixaill76/byok_router/internal/worker"
)

// Scheduler runs fire-and-forget jobs.
type Scheduler interface {
	Submit(job worker.Job) bool
}

type Config struct {
	KeyPrefix string
	CacheSize int
	CacheTTL  time.Duration
	Now       func() time.Time
}

// Authenticator resolves proxy keys. Lookups are synchronous; the lastUsedAt
// touch is scheduled in the background on every store hit, so its resolution
// is the cache TTL.
type Authenticator struct {
	store      KeyStore
	cache      *Cache
	prefix     string
	background Scheduler
	now        func() time.Time
	logger     *slog.Logger
}

func NewAuthenticator(store KeyStore, cfg Config, background Scheduler, logger *slog.Logger) (*Authenticator, error) {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	cache, err := NewCache(cfg.CacheSize, cfg.CacheTTL, cfg.Now)
	if err != nil {
		return nil, err
	}
	return &Authenticator{
		store:      store,
		cache:      cache,
		prefix:     cfg.KeyPrefix,
		background: background,
		now:        cfg.Now,
		logger:     logger,
	}, nil
}

// Resolve maps a raw proxy key to its owner.
//
// Algorithm:
// 1. Reject empty keys and keys without the configured prefix
// 2. Hash the key (sha256) and check the cache
// 3. On a miss, look the hash up in the store; inactive keys are rejected
// 4. Cache the identity and schedule the lastUsedAt touch
func (a *Authenticator) Resolve(ctx context.Context, secret string) (*Identity, error) {
	if secret == "" {
		return nil, ErrMissingKey
	}
	if !strings.HasPrefix(secret, a.prefix) {
		return nil, ErrInvalidKey
	}

	hash := HashToken(secret)
	if identity, ok := a.cache.Get(hash); ok {
		return &identity, nil
	}

	key, err := a.store.FindByHash(ctx, hash)
	if errors.Is(err, ErrKeyNotFound) {
		a.logger.Debug("Unknown proxy key", "key", security.MaskAPIKey(secret))
		return nil, ErrInvalidKey
	}
	if err != nil {
		a.logger.Error("Proxy key lookup failed", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !key.IsActive {
		return nil, ErrInvalidKey
	}

	identity := Identity{UserID: key.UserID, KeyID: key.ID}
	a.cache.Set(hash, identity)
	a.touch(key.ID)

	a.logger.Debug("Proxy key resolved",
		"key", security.MaskAPIKey(secret),
		"user_id", identity.UserID,
	)
	return &identity, nil
}

func (a *Authenticator) touch(keyID string) {
	if a.background == nil {
		return
	}
	at := a.now()
	a.background.Submit(worker.Job{
		Name: "touch_proxy_key",
		Run: func(ctx context.Context) error {
			return a.store.TouchLastUsed(ctx, keyID, at)
		},
	})
}

// Invalidate drops a key from the cache, e.g. after revocation.
func (a *Authenticator) Invalidate(secret string) {
	a.cache.Invalidate(HashToken(secret))
}

func (a *Authenticator) CacheStats() CacheStats {
	return a.cache.Stats()
}
