// Package postgres implements the provider, proxy key and usage stores on
// PostgreSQL through pgx.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mixaill76/byok_router/internal/security"
)

// DB is the subset of *pgxpool.Pool the stores use.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Source hands out a DB while the database is reachable.
type Source interface {
	DB() (DB, error)
}

// Pool manages PostgreSQL connections with a background health check and
// reconnect backoff.
type Pool struct {
	pool   *pgxpool.Pool
	config *Config
	logger *slog.Logger

	healthy atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool

	reconnectMu    sync.Mutex
	lastReconnect  time.Time
	reconnectDelay time.Duration
}

// NewPool connects, pings and starts the health check loop.
func NewPool(cfg *Config) (*Pool, error) {
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	p := &Pool{
		config:         cfg,
		logger:         cfg.Logger,
		ctx:            ctx,
		cancel:         cancel,
		reconnectDelay: time.Second,
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("postgres: invalid database URL: %w", err)
	}

	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.HealthCheckPeriod = cfg.HealthCheckInterval
	poolConfig.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	poolConfig.ConnConfig.OnNotice = func(c *pgconn.PgConn, n *pgconn.Notice) {
		p.logger.Debug("PostgreSQL notice",
			"severity", n.Severity,
			"message", n.Message,
		)
	}

	connectCtx, connectCancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer connectCancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("postgres: failed to connect: %w", err)
	}

	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		cancel()
		return nil, fmt.Errorf("postgres: ping failed: %w", err)
	}

	if cfg.ApplySchema {
		if _, err := pool.Exec(connectCtx, Schema); err != nil {
			pool.Close()
			cancel()
			return nil, fmt.Errorf("postgres: apply schema: %w", err)
		}
	}

	p.pool = pool
	p.healthy.Store(true)

	p.wg.Add(1)
	go p.healthCheckLoop()

	p.logger.Info("Database connection pool initialized",
		"max_conns", cfg.MaxConns,
		"min_conns", cfg.MinConns,
		"database", security.MaskDatabaseURL(cfg.DatabaseURL),
	)

	return p, nil
}

// DB returns the pool, or ErrUnavailable while it is closed or unhealthy.
func (p *Pool) DB() (DB, error) {
	if p.closed.Load() || !p.healthy.Load() || p.pool == nil {
		return nil, ErrUnavailable
	}
	return p.pool, nil
}

func (p *Pool) IsHealthy() bool {
	return p.healthy.Load()
}

// Stats returns pool statistics
func (p *Pool) Stats() *pgxpool.Stat {
	if p.pool == nil {
		return nil
	}
	return p.pool.Stat()
}

// Close stops the health check and closes the pool. It is safe to call twice.
func (p *Pool) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}

	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		p.logger.Warn("Health check goroutine did not stop within timeout")
	}

	if p.pool != nil {
		p.pool.Close()
	}

	p.logger.Info("Database connection pool closed")
}

func (p *Pool) healthCheckLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.performHealthCheck()
		}
	}
}

func (p *Pool) performHealthCheck() {
	ctx, cancel := context.WithTimeout(p.ctx, 5*time.Second)
	defer cancel()

	var result int
	err := p.pool.QueryRow(ctx, QueryHealthCheck).Scan(&result)

	if err != nil {
		if p.healthy.Swap(false) {
			p.logger.Error("Database health check failed", "error", err)
		}
		p.tryReconnect()
		return
	}
	if !p.healthy.Swap(true) {
		p.logger.Info("Database connection restored")
		p.reconnectMu.Lock()
		p.reconnectDelay = time.Second
		p.reconnectMu.Unlock()
	}
}

// tryReconnect pings with exponential backoff (1s doubling up to 30s).
func (p *Pool) tryReconnect() {
	p.reconnectMu.Lock()
	defer p.reconnectMu.Unlock()

	if time.Since(p.lastReconnect) < p.reconnectDelay {
		return
	}

	p.logger.Info("Attempting to reconnect to database", "delay", p.reconnectDelay)

	ctx, cancel := context.WithTimeout(p.ctx, p.config.ConnectTimeout)
	defer cancel()

	err := p.pool.Ping(ctx)
	p.lastReconnect = time.Now()

	if err != nil {
		p.reconnectDelay = min(p.reconnectDelay*2, 30*time.Second)
		p.logger.Error("Reconnection failed",
			"error", err,
			"next_delay", p.reconnectDelay,
		)
		return
	}
	p.healthy.Store(true)
	p.reconnectDelay = time.Second
	p.logger.Info("Reconnection successful")
}
