package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/mixaill76/byok_router/internal/security"
)

// resolveEnvString resolves environment variable if value is in format "os.environ/VAR_NAME"
func resolveEnvString(value string) string {
	const prefix = "os.environ/"
	if strings.HasPrefix(value, prefix) {
		envVar := strings.TrimPrefix(value, prefix)
		if envValue := os.Getenv(envVar); envValue != "" {
			return envValue
		}
		slog.Warn("environment variable not set, returning empty string",
			"env_var", envVar,
			"pattern", value,
		)
		return ""
	}
	return value
}

// parseFunc is a function type that parses a string value into the desired type
type parseFunc[T any] func(string) (T, error)

// parseField resolves env variable and parses value with proper error context
func parseField[T any](tempValue string, defaultValue T, parser parseFunc[T], fieldPath string) (T, error) {
	if tempValue == "" {
		return defaultValue, nil
	}

	resolved := resolveEnvString(tempValue)
	if resolved == "" {
		return defaultValue, nil
	}
	parsed, err := parser(resolved)
	if err != nil {
		return defaultValue, fmt.Errorf("invalid %s: %w", fieldPath, err)
	}
	return parsed, nil
}

func parseInt32(s string) (int32, error) {
	v, err := strconv.ParseInt(s, 10, 32)
	return int32(v), err
}

func orDefault[T comparable](value, def T) T {
	var zero T
	if value == zero {
		return def
	}
	return value
}

// validateBaseURL validates that a URL is properly formed with http/https scheme
func validateBaseURL(providerID, baseURL string) error {
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("provider %s: invalid base_url: %w", providerID, err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("provider %s: base_url must use http or https scheme, got: %s", providerID, parsedURL.Scheme)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("provider %s: base_url must have a host", providerID)
	}
	return nil
}

// PrintConfig outputs the configuration in a structured, readable format to the logger
func PrintConfig(logger *slog.Logger, cfg *Config) {
	logger.Info("=== Configuration Loaded ===")

	logger.Info("server",
		"port", cfg.Server.Port,
		"max_body_size_mb", cfg.Server.MaxBodySizeMB,
		"attempt_timeout", cfg.Server.AttemptTimeout.String(),
		"read_timeout", cfg.Server.ReadTimeout.String(),
		"write_timeout", cfg.Server.WriteTimeout.String(),
		"idle_timeout", cfg.Server.IdleTimeout.String(),
		"stream_chunk_timeout", cfg.Server.StreamChunkTimeout.String(),
		"logging_level", cfg.Server.LoggingLevel,
		"logging_format", cfg.Server.LoggingFormat,
		"error_envelope", cfg.Server.ErrorEnvelope,
		"key_prefix", cfg.Server.KeyPrefix,
	)

	if cfg.RateLimit.Enabled {
		logger.Info("rate_limit (ENABLED)",
			"requests_per_second", cfg.RateLimit.RequestsPerSecond,
			"burst", cfg.RateLimit.Burst,
			"max_clients", cfg.RateLimit.MaxClients,
		)
	} else {
		logger.Info("rate_limit", "status", "DISABLED")
	}

	if cfg.Database.Enabled() {
		logger.Info("database (ENABLED)",
			"url", security.MaskDatabaseURL(cfg.Database.URL),
			"max_conns", cfg.Database.MaxConns,
			"min_conns", cfg.Database.MinConns,
			"health_check_interval", cfg.Database.HealthCheckInterval.String(),
			"connect_timeout", cfg.Database.ConnectTimeout.String(),
			"apply_schema", cfg.Database.ApplySchema,
		)
	} else {
		logger.Info("database", "status", "DISABLED")
	}

	logger.Info("auth_cache",
		"size", cfg.AuthCache.Size,
		"ttl", cfg.AuthCache.TTL.String(),
	)
	logger.Info("usage_log",
		"sink", cfg.UsageLog.Sink,
		"queue_size", cfg.UsageLog.QueueSize,
		"batch_size", cfg.UsageLog.BatchSize,
		"flush_interval", cfg.UsageLog.FlushInterval.String(),
	)
	logger.Info("background",
		"workers", cfg.Background.Workers,
		"queue_size", cfg.Background.QueueSize,
		"job_timeout", cfg.Background.JobTimeout.String(),
	)
	logger.Info("monitoring",
		"prometheus_enabled", cfg.Monitoring.PrometheusEnabled,
		"health_check_path", cfg.Monitoring.HealthCheckPath,
		"metrics_path", cfg.Monitoring.MetricsPath,
		"log_errors", cfg.Monitoring.LogErrors,
		"errors_log_path", cfg.Monitoring.ErrorsLogPath,
	)

	logger.Info("providers", "total_count", len(cfg.Providers))
	for i, p := range cfg.Providers {
		logger.Info(fmt.Sprintf("  [%d] provider", i),
			"id", p.ID,
			"user_id", p.UserID,
			"base_url", p.BaseURL,
			"api_format", p.APIFormat,
			"priority", p.Priority,
			"api_key", security.MaskAPIKey(p.APIKey),
		)
	}

	logger.Info("proxy_keys", "total_count", len(cfg.ProxyKeys))
	for i, k := range cfg.ProxyKeys {
		logger.Info(fmt.Sprintf("  [%d] proxy key", i),
			"id", k.ID,
			"user_id", k.UserID,
			"key", security.MaskAPIKey(k.Key),
		)
	}

	logger.Info("=== Configuration Ready ===")
}
