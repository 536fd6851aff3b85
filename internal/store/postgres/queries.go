package postgres

import _ "embed"

// Schema creates the tables used by the stores when they do not exist yet.
//
//go:embed schema.sql
var Schema string

const (
	// QueryHealthCheck is a simple connection check
	QueryHealthCheck = `SELECT 1`

	QueryListActiveProviders = `
		SELECT
			id, user_id, name, base_url, api_key, model, api_format,
			priority, is_active, health_status, consecutive_failures, last_used_at
		FROM providers
		WHERE user_id = $1 AND is_active
		ORDER BY priority ASC, created_at ASC
	`

	QueryUpdateProviderHealth = `
		UPDATE providers
		SET health_status = $2, consecutive_failures = $3, updated_at = now()
		WHERE id = $1
	`

	QueryMarkProviderUsed = `
		UPDATE providers
		SET last_used_at = $2
		WHERE id = $1
	`

	QueryFindProxyKeyByHash = `
		SELECT id, user_id, key_hash, key_prefix, is_active, last_used_at
		FROM proxy_keys
		WHERE key_hash = $1
	`

	QueryTouchProxyKey = `
		UPDATE proxy_keys
		SET last_used_at = $2
		WHERE id = $1
	`

	// QueryInsertProxyLog inserts one usage entry; it is queued once per entry
	// in a pgx.Batch.
	QueryInsertProxyLog = `
		INSERT INTO proxy_logs (
			user_id, provider_id, provider_name, request_format, target_format,
			model, input_tokens, output_tokens, latency_ms, status,
			error_message, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
)
