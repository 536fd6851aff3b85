package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/mixaill76/byok_router/internal/provider"
)

// ProviderStore implements provider.Store.
type ProviderStore struct {
	source Source
}

func NewProviderStore(source Source) *ProviderStore {
	return &ProviderStore{source: source}
}

func (s *ProviderStore) ListActiveForFailover(ctx context.Context, userID string) ([]provider.Provider, error) {
	db, err := s.source.DB()
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(ctx, QueryListActiveProviders, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list providers: %w", err)
	}
	defer rows.Close()

	var out []provider.Provider
	for rows.Next() {
		var (
			p        provider.Provider
			format   string
			health   string
			failures int32
		)
		if err := rows.Scan(
			&p.ID, &p.UserID, &p.Name, &p.BaseURL, &p.APIKey, &p.Model, &format,
			&p.Priority, &p.IsActive, &health, &failures, &p.LastUsedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan provider: %w", err)
		}
		p.APIFormat = provider.Format(format)
		if !p.APIFormat.Valid() {
			p.APIFormat = provider.FormatAuto
		}
		p.HealthStatus = provider.HealthStatus(health)
		p.ConsecutiveFailures = uint(max(failures, 0))
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list providers: %w", err)
	}
	return out, nil
}

func (s *ProviderStore) UpdateHealth(ctx context.Context, id string, status provider.HealthStatus, failures uint) error {
	return s.exec(ctx, "update provider health", QueryUpdateProviderHealth, id, string(status), int32(failures))
}

func (s *ProviderStore) MarkUsed(ctx context.Context, id string, at time.Time) error {
	return s.exec(ctx, "mark provider used", QueryMarkProviderUsed, id, at)
}

func (s *ProviderStore) exec(ctx context.Context, op, query string, args ...any) error {
	db, err := s.source.DB()
	if err != nil {
		return err
	}
	tag, err := db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("postgres: %s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return provider.ErrNotFound
	}
	return nil
}
