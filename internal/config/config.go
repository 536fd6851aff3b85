package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mixaill76/byok_router/internal/provider"
)

// Defaults applied by Normalize.
const (
	DefaultPort              = 8080
	DefaultMaxBodySizeMB     = 10
	DefaultAttemptTimeout    = 30 * time.Second
	DefaultReadTimeout       = 30 * time.Second
	DefaultWriteTimeout      = 10 * time.Minute
	DefaultIdleTimeout       = 2 * time.Minute
	DefaultShutdownTimeout   = 30 * time.Second
	DefaultStreamChunkWrite  = 30 * time.Second
	DefaultKeyPrefix         = "sk-proxy-"
	DefaultHealthCheckPath   = "/health"
	DefaultMetricsPath       = "/metrics"
	DefaultAuthCacheSize     = 10000
	DefaultAuthCacheTTL      = 30 * time.Second
	DefaultUsageQueueSize    = 10000
	DefaultUsageBatchSize    = 100
	DefaultUsageFlush        = 5 * time.Second
	DefaultBackgroundWorkers = 4
	DefaultBackgroundQueue   = 1000
	DefaultJobTimeout        = 5 * time.Second
	DefaultRateLimitMaxUsers = 10000
)

// Error envelope styles.
const (
	// EnvelopeCaller answers errors in the caller's wire format.
	EnvelopeCaller = "caller"
	// EnvelopeOpenAI always answers with the OpenAI error shape.
	EnvelopeOpenAI = "openai"
)

// Usage sinks.
const (
	UsageSinkAuto     = "auto"
	UsageSinkDatabase = "database"
	UsageSinkLog      = "log"
	UsageSinkNone     = "none"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Database   DatabaseConfig   `yaml:"database"`
	AuthCache  AuthCacheConfig  `yaml:"auth_cache"`
	UsageLog   UsageLogConfig   `yaml:"usage_log"`
	Background BackgroundConfig `yaml:"background"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Providers  []ProviderConfig `yaml:"providers"`
	ProxyKeys  []ProxyKeyConfig `yaml:"proxy_keys"`
}

type ServerConfig struct {
	Port          int
	MaxBodySizeMB int
	// AttemptTimeout bounds each upstream attempt up to its response headers.
	AttemptTimeout  time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	// StreamChunkTimeout is the write deadline for each streamed chunk.
	StreamChunkTimeout time.Duration
	LoggingLevel       string
	LoggingFormat      string
	ErrorEnvelope      string
	AnthropicVersion   string
	AnthropicBeta      string
	KeyPrefix          string

	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
}

type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
	MaxClients        int     `yaml:"max_clients"`
}

type DatabaseConfig struct {
	URL                 string
	MaxConns            int32
	MinConns            int32
	HealthCheckInterval time.Duration
	ConnectTimeout      time.Duration
	ApplySchema         bool
}

// Enabled reports whether a database URL was configured.
func (d DatabaseConfig) Enabled() bool {
	return d.URL != ""
}

type AuthCacheConfig struct {
	Size int
	TTL  time.Duration
}

type UsageLogConfig struct {
	Sink          string
	QueueSize     int
	BatchSize     int
	FlushInterval time.Duration
}

type BackgroundConfig struct {
	Workers    int
	QueueSize  int
	JobTimeout time.Duration
}

type MonitoringConfig struct {
	PrometheusEnabled bool   `yaml:"prometheus_enabled"`
	HealthCheckPath   string `yaml:"health_check_path"`
	MetricsPath       string `yaml:"metrics_path"`
	LogErrors         bool   `yaml:"log_errors"`
	ErrorsLogPath     string `yaml:"errors_log_path"`
}

// ProviderConfig is a statically configured provider, used without a database.
type ProviderConfig struct {
	ID        string `yaml:"id"`
	UserID    string `yaml:"user_id"`
	Name      string `yaml:"name"`
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	APIFormat string `yaml:"api_format"`
	Priority  int    `yaml:"priority"`
	Active    *bool  `yaml:"active"`
}

// Provider converts the entry to the router's model.
func (p ProviderConfig) Provider() provider.Provider {
	active := p.Active == nil || *p.Active
	return provider.Provider{
		ID:           p.ID,
		UserID:       p.UserID,
		Name:         p.Name,
		BaseURL:      p.BaseURL,
		APIKey:       p.APIKey,
		Model:        p.Model,
		APIFormat:    provider.Format(p.APIFormat),
		Priority:     p.Priority,
		IsActive:     active,
		HealthStatus: provider.HealthUnknown,
	}
}

// ProxyKeyConfig is a statically configured proxy key.
type ProxyKeyConfig struct {
	ID     string `yaml:"id"`
	UserID string `yaml:"user_id"`
	Key    string `yaml:"key"`
}

// UnmarshalYAML reads durations and numbers as strings so they may use
// os.environ/VAR indirection.
func (s *ServerConfig) UnmarshalYAML(value *yaml.Node) error {
	type tempConfig struct {
		Port                string `yaml:"port"`
		MaxBodySizeMB       string `yaml:"max_body_size_mb"`
		AttemptTimeout      string `yaml:"attempt_timeout"`
		ReadTimeout         string `yaml:"read_timeout"`
		WriteTimeout        string `yaml:"write_timeout"`
		IdleTimeout         string `yaml:"idle_timeout"`
		ShutdownTimeout     string `yaml:"shutdown_timeout"`
		StreamChunkTimeout  string `yaml:"stream_chunk_timeout"`
		LoggingLevel        string `yaml:"logging_level"`
		LoggingFormat       string `yaml:"logging_format"`
		ErrorEnvelope       string `yaml:"error_envelope"`
		AnthropicVersion    string `yaml:"anthropic_version"`
		AnthropicBeta       string `yaml:"anthropic_beta"`
		KeyPrefix           string `yaml:"key_prefix"`
		MaxIdleConns        string `yaml:"max_idle_conns"`
		MaxIdleConnsPerHost string `yaml:"max_idle_conns_per_host"`
		IdleConnTimeout     string `yaml:"idle_conn_timeout"`
	}

	var temp tempConfig
	if err := value.Decode(&temp); err != nil {
		return err
	}

	var err error
	if s.Port, err = parseField(temp.Port, 0, strconv.Atoi, "server.port"); err != nil {
		return err
	}
	if s.MaxBodySizeMB, err = parseField(temp.MaxBodySizeMB, 0, strconv.Atoi, "server.max_body_size_mb"); err != nil {
		return err
	}
	if s.MaxIdleConns, err = parseField(temp.MaxIdleConns, 0, strconv.Atoi, "server.max_idle_conns"); err != nil {
		return err
	}
	if s.MaxIdleConnsPerHost, err = parseField(temp.MaxIdleConnsPerHost, 0, strconv.Atoi, "server.max_idle_conns_per_host"); err != nil {
		return err
	}

	durations := []struct {
		raw  string
		dst  *time.Duration
		path string
	}{
		{temp.AttemptTimeout, &s.AttemptTimeout, "server.attempt_timeout"},
		{temp.ReadTimeout, &s.ReadTimeout, "server.read_timeout"},
		{temp.WriteTimeout, &s.WriteTimeout, "server.write_timeout"},
		{temp.IdleTimeout, &s.IdleTimeout, "server.idle_timeout"},
		{temp.ShutdownTimeout, &s.ShutdownTimeout, "server.shutdown_timeout"},
		{temp.StreamChunkTimeout, &s.StreamChunkTimeout, "server.stream_chunk_timeout"},
		{temp.IdleConnTimeout, &s.IdleConnTimeout, "server.idle_conn_timeout"},
	}
	for _, d := range durations {
		if *d.dst, err = parseField(d.raw, 0, time.ParseDuration, d.path); err != nil {
			return err
		}
	}

	s.LoggingLevel = resolveEnvString(temp.LoggingLevel)
	s.LoggingFormat = resolveEnvString(temp.LoggingFormat)
	s.ErrorEnvelope = temp.ErrorEnvelope
	s.AnthropicVersion = temp.AnthropicVersion
	s.AnthropicBeta = temp.AnthropicBeta
	s.KeyPrefix = temp.KeyPrefix
	return nil
}

func (d *DatabaseConfig) UnmarshalYAML(value *yaml.Node) error {
	type tempConfig struct {
		URL                 string `yaml:"url"`
		MaxConns            string `yaml:"max_conns"`
		MinConns            string `yaml:"min_conns"`
		HealthCheckInterval string `yaml:"health_check_interval"`
		ConnectTimeout      string `yaml:"connect_timeout"`
		ApplySchema         bool   `yaml:"apply_schema"`
	}

	var temp tempConfig
	if err := value.Decode(&temp); err != nil {
		return err
	}

	var err error
	d.URL = resolveEnvString(temp.URL)
	d.ApplySchema = temp.ApplySchema
	if d.MaxConns, err = parseField(temp.MaxConns, 0, parseInt32, "database.max_conns"); err != nil {
		return err
	}
	if d.MinConns, err = parseField(temp.MinConns, 0, parseInt32, "database.min_conns"); err != nil {
		return err
	}
	if d.HealthCheckInterval, err = parseField(temp.HealthCheckInterval, 0, time.ParseDuration, "database.health_check_interval"); err != nil {
		return err
	}
	if d.ConnectTimeout, err = parseField(temp.ConnectTimeout, 0, time.ParseDuration, "database.connect_timeout"); err != nil {
		return err
	}
	return nil
}

func (a *AuthCacheConfig) UnmarshalYAML(value *yaml.Node) error {
	type tempConfig struct {
		Size string `yaml:"size"`
		TTL  string `yaml:"ttl"`
	}

	var temp tempConfig
	if err := value.Decode(&temp); err != nil {
		return err
	}

	var err error
	if a.Size, err = parseField(temp.Size, 0, strconv.Atoi, "auth_cache.size"); err != nil {
		return err
	}
	if a.TTL, err = parseField(temp.TTL, 0, time.ParseDuration, "auth_cache.ttl"); err != nil {
		return err
	}
	return nil
}

func (u *UsageLogConfig) UnmarshalYAML(value *yaml.Node) error {
	type tempConfig struct {
		Sink          string `yaml:"sink"`
		QueueSize     string `yaml:"queue_size"`
		BatchSize     string `yaml:"batch_size"`
		FlushInterval string `yaml:"flush_interval"`
	}

	var temp tempConfig
	if err := value.Decode(&temp); err != nil {
		return err
	}

	var err error
	u.Sink = temp.Sink
	if u.QueueSize, err = parseField(temp.QueueSize, 0, strconv.Atoi, "usage_log.queue_size"); err != nil {
		return err
	}
	if u.BatchSize, err = parseField(temp.BatchSize, 0, strconv.Atoi, "usage_log.batch_size"); err != nil {
		return err
	}
	if u.FlushInterval, err = parseField(temp.FlushInterval, 0, time.ParseDuration, "usage_log.flush_interval"); err != nil {
		return err
	}
	return nil
}

func (b *BackgroundConfig) UnmarshalYAML(value *yaml.Node) error {
	type tempConfig struct {
		Workers    string `yaml:"workers"`
		QueueSize  string `yaml:"queue_size"`
		JobTimeout string `yaml:"job_timeout"`
	}

	var temp tempConfig
	if err := value.Decode(&temp); err != nil {
		return err
	}

	var err error
	if b.Workers, err = parseField(temp.Workers, 0, strconv.Atoi, "background.workers"); err != nil {
		return err
	}
	if b.QueueSize, err = parseField(temp.QueueSize, 0, strconv.Atoi, "background.queue_size"); err != nil {
		return err
	}
	if b.JobTimeout, err = parseField(temp.JobTimeout, 0, time.ParseDuration, "background.job_timeout"); err != nil {
		return err
	}
	return nil
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Normalize resolves env references in secrets and fills defaults.
func (c *Config) Normalize() {
	s := &c.Server
	s.Port = orDefault(s.Port, DefaultPort)
	s.MaxBodySizeMB = orDefault(s.MaxBodySizeMB, DefaultMaxBodySizeMB)
	s.AttemptTimeout = orDefault(s.AttemptTimeout, DefaultAttemptTimeout)
	s.ReadTimeout = orDefault(s.ReadTimeout, DefaultReadTimeout)
	s.WriteTimeout = orDefault(s.WriteTimeout, DefaultWriteTimeout)
	s.IdleTimeout = orDefault(s.IdleTimeout, DefaultIdleTimeout)
	s.ShutdownTimeout = orDefault(s.ShutdownTimeout, DefaultShutdownTimeout)
	s.StreamChunkTimeout = orDefault(s.StreamChunkTimeout, DefaultStreamChunkWrite)
	s.LoggingLevel = orDefault(strings.ToLower(s.LoggingLevel), "info")
	s.LoggingFormat = orDefault(strings.ToLower(s.LoggingFormat), "text")
	s.ErrorEnvelope = orDefault(strings.ToLower(s.ErrorEnvelope), EnvelopeCaller)
	s.KeyPrefix = orDefault(s.KeyPrefix, DefaultKeyPrefix)

	if c.RateLimit.Enabled {
		c.RateLimit.MaxClients = orDefault(c.RateLimit.MaxClients, DefaultRateLimitMaxUsers)
		if c.RateLimit.Burst <= 0 {
			c.RateLimit.Burst = max(1, int(c.RateLimit.RequestsPerSecond))
		}
	}

	c.AuthCache.Size = orDefault(c.AuthCache.Size, DefaultAuthCacheSize)
	c.AuthCache.TTL = orDefault(c.AuthCache.TTL, DefaultAuthCacheTTL)

	u := &c.UsageLog
	u.Sink = orDefault(strings.ToLower(u.Sink), UsageSinkAuto)
	u.QueueSize = orDefault(u.QueueSize, DefaultUsageQueueSize)
	u.BatchSize = orDefault(u.BatchSize, DefaultUsageBatchSize)
	u.FlushInterval = orDefault(u.FlushInterval, DefaultUsageFlush)

	b := &c.Background
	b.Workers = orDefault(b.Workers, DefaultBackgroundWorkers)
	b.QueueSize = orDefault(b.QueueSize, DefaultBackgroundQueue)
	b.JobTimeout = orDefault(b.JobTimeout, DefaultJobTimeout)

	m := &c.Monitoring
	m.HealthCheckPath = orDefault(m.HealthCheckPath, DefaultHealthCheckPath)
	m.MetricsPath = orDefault(m.MetricsPath, DefaultMetricsPath)

	for i := range c.Providers {
		p := &c.Providers[i]
		p.APIKey = resolveEnvString(p.APIKey)
		p.BaseURL = strings.TrimRight(resolveEnvString(p.BaseURL), "/")
		p.APIFormat = orDefault(strings.ToLower(p.APIFormat), string(provider.FormatAuto))
		p.ID = orDefault(p.ID, p.Name)
		p.Name = orDefault(p.Name, p.ID)
	}
	for i := range c.ProxyKeys {
		k := &c.ProxyKeys[i]
		k.Key = resolveEnvString(k.Key)
		k.ID = orDefault(k.ID, fmt.Sprintf("key-%d", i))
	}
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Server.MaxBodySizeMB <= 0 {
		return fmt.Errorf("invalid max_body_size_mb: %d", c.Server.MaxBodySizeMB)
	}
	if c.Server.AttemptTimeout <= 0 {
		return fmt.Errorf("invalid attempt_timeout: %v", c.Server.AttemptTimeout)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Server.LoggingLevel] {
		return fmt.Errorf("invalid logging_level: %s (must be debug, info, warn, or error)", c.Server.LoggingLevel)
	}
	if c.Server.LoggingFormat != "text" && c.Server.LoggingFormat != "json" {
		return fmt.Errorf("invalid logging_format: %s (must be text or json)", c.Server.LoggingFormat)
	}
	if c.Server.ErrorEnvelope != EnvelopeCaller && c.Server.ErrorEnvelope != EnvelopeOpenAI {
		return fmt.Errorf("invalid error_envelope: %s (must be caller or openai)", c.Server.ErrorEnvelope)
	}

	if c.RateLimit.Enabled && c.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("invalid rate_limit.requests_per_second: %v", c.RateLimit.RequestsPerSecond)
	}

	switch c.UsageLog.Sink {
	case UsageSinkAuto, UsageSinkLog, UsageSinkNone:
	case UsageSinkDatabase:
		if !c.Database.Enabled() {
			return fmt.Errorf("usage_log.sink %q requires database.url", c.UsageLog.Sink)
		}
	default:
		return fmt.Errorf("invalid usage_log.sink: %s", c.UsageLog.Sink)
	}

	if !c.Database.Enabled() && len(c.ProxyKeys) == 0 {
		return fmt.Errorf("no proxy keys configured and no database.url set")
	}

	seen := make(map[string]bool, len(c.Providers))
	for i, p := range c.Providers {
		if p.ID == "" {
			return fmt.Errorf("provider %d: id or name is required", i)
		}
		if seen[p.ID] {
			return fmt.Errorf("provider %s: duplicate id", p.ID)
		}
		seen[p.ID] = true
		if p.UserID == "" {
			return fmt.Errorf("provider %s: user_id is required", p.ID)
		}
		if p.APIKey == "" {
			return fmt.Errorf("provider %s: api_key is required", p.ID)
		}
		if p.BaseURL == "" {
			return fmt.Errorf("provider %s: base_url is required", p.ID)
		}
		if err := validateBaseURL(p.ID, p.BaseURL); err != nil {
			return err
		}
		if !provider.Format(p.APIFormat).Valid() {
			return fmt.Errorf("provider %s: invalid api_format: %s (must be auto, openai, or anthropic)", p.ID, p.APIFormat)
		}
	}

	for _, k := range c.ProxyKeys {
		if k.UserID == "" {
			return fmt.Errorf("proxy key %s: user_id is required", k.ID)
		}
		if !strings.HasPrefix(k.Key, c.Server.KeyPrefix) {
			return fmt.Errorf("proxy key %s: key must start with %q", k.ID, c.Server.KeyPrefix)
		}
		if len(k.Key) == len(c.Server.KeyPrefix) {
			return fmt.Errorf("proxy key %s: key is empty after the prefix", k.ID)
		}
	}

	return nil
}

// MaxBodyBytes is the request body limit in bytes.
func (s ServerConfig) MaxBodyBytes() int64 {
	return int64(s.MaxBodySizeMB) << 20
}
