package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mixaill76/byok_router/internal/proxyauth"
)

// KeyStore implements proxyauth.KeyStore.
type KeyStore struct {
	source Source
}

func NewKeyStore(source Source) *KeyStore {
	return &KeyStore{source: source}
}

func (s *KeyStore) FindByHash(ctx context.Context, hash string) (*proxyauth.ProxyKey, error) {
	db, err := s.source.DB()
	if err != nil {
		return nil, err
	}

	var key proxyauth.ProxyKey
	err = db.QueryRow(ctx, QueryFindProxyKeyByHash, hash).Scan(
		&key.ID, &key.UserID, &key.KeyHash, &key.KeyPrefix, &key.IsActive, &key.LastUsedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, proxyauth.ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: find proxy key: %w", err)
	}
	return &key, nil
}

func (s *KeyStore) TouchLastUsed(ctx context.Context, id string, at time.Time) error {
	db, err := s.source.DB()
	if err != nil {
		return err
	}
	if _, err := db.Exec(ctx, QueryTouchProxyKey, id, at); err != nil {
		return fmt.Errorf("postgres: touch proxy key: %w", err)
	}
	return nil
}
