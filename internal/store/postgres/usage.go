package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mixaill76/byok_router/internal/usage"
)

// UsageSink writes usage entries to proxy_logs, one pgx.Batch per call.
type UsageSink struct {
	source Source
}

func NewUsageSink(source Source) *UsageSink {
	return &UsageSink{source: source}
}

func (s *UsageSink) WriteBatch(ctx context.Context, entries []usage.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	db, err := s.source.DB()
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(QueryInsertProxyLog, insertParams(e)...)
	}

	results := db.SendBatch(ctx, batch)
	for i := range entries {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("postgres: insert usage entry %d/%d: %w", i+1, len(entries), err)
		}
	}
	return results.Close()
}

func insertParams(e usage.Entry) []any {
	var errorMessage *string
	if e.ErrorMessage != "" {
		msg := e.ErrorMessage
		errorMessage = &msg
	}
	return []any{
		e.UserID,
		e.ProviderID,
		e.ProviderName,
		string(e.RequestFormat),
		string(e.TargetFormat),
		e.Model,
		int32(e.InputTokens),
		int32(e.OutputTokens),
		e.LatencyMs,
		string(e.Status),
		errorMessage,
		e.CreatedAt,
	}
}
