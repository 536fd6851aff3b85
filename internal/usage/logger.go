package usage

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Sink persists batches of entries. The slice is reused after WriteBatch
// returns and must not be retained.
type Sink interface {
	WriteBatch(ctx context.Context, entries []Entry) error
}

type Config struct {
	QueueSize     int
	BatchSize     int
	FlushInterval time.Duration
	WriteTimeout  time.Duration
	// RetryBackoff holds the delay before each write attempt; its length is the
	// number of attempts.
	RetryBackoff []time.Duration
	// OnDrop is called for every entry dropped because the queue is full.
	OnDrop func()
}

func (c *Config) applyDefaults() {
	if c.QueueSize <= 0 {
		c.QueueSize = 10000
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 5 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if len(c.RetryBackoff) == 0 {
		c.RetryBackoff = []time.Duration{0, time.Second, 5 * time.Second}
	}
}

// Stats is exposed on the health endpoint.
type Stats struct {
	QueueLen  int    `json:"queue_len"`
	QueueCap  int    `json:"queue_cap"`
	Queued    uint64 `json:"queued"`
	Written   uint64 `json:"written"`
	Dropped   uint64 `json:"dropped"`
	Errors    uint64 `json:"errors"`
	BatchesOK uint64 `json:"batches_ok"`
}

// Logger is an asynchronous usage recorder.
//
//   - Non-blocking: Record returns immediately and drops when the queue is full
//   - Batching: entries are flushed by size or by interval
//   - Retry: a failed batch is retried with backoff, then discarded
//   - Graceful shutdown: pending entries are written before Shutdown returns
type Logger struct {
	sink   Sink
	config Config
	logger *slog.Logger

	queue    chan Entry
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	queued    atomic.Uint64
	written   atomic.Uint64
	dropped   atomic.Uint64
	errors    atomic.Uint64
	batchesOK atomic.Uint64
}

func NewLogger(sink Sink, cfg Config, logger *slog.Logger) *Logger {
	cfg.applyDefaults()
	return &Logger{
		sink:     sink,
		config:   cfg,
		logger:   logger,
		queue:    make(chan Entry, cfg.QueueSize),
		stopChan: make(chan struct{}),
	}
}

// Start launches the background writer. Must be called once.
func (l *Logger) Start() {
	l.wg.Add(1)
	go l.worker()
	l.logger.Info("Usage logger started",
		"queue_size", l.config.QueueSize,
		"batch_size", l.config.BatchSize,
		"flush_interval", l.config.FlushInterval,
	)
}

// Record queues an entry. It never blocks.
func (l *Logger) Record(entry Entry) {
	select {
	case l.queue <- entry:
		l.queued.Add(1)
	default:
		l.dropped.Add(1)
		if l.config.OnDrop != nil {
			l.config.OnDrop()
		}
		l.logger.Warn("Usage entry dropped: queue full",
			"provider_id", entry.ProviderID,
			"queue_cap", cap(l.queue),
		)
	}
}

// Shutdown stops the worker and waits for pending entries to be written.
func (l *Logger) Shutdown(ctx context.Context) error {
	l.logger.Info("Usage logger shutting down", "pending", len(l.queue))
	l.stopOnce.Do(func() { close(l.stopChan) })

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		l.logger.Info("Usage logger shutdown complete",
			"written", l.written.Load(),
			"dropped", l.dropped.Load(),
			"errors", l.errors.Load(),
		)
		return nil
	case <-ctx.Done():
		l.logger.Warn("Usage logger shutdown timeout", "pending", len(l.queue))
		return ctx.Err()
	}
}

func (l *Logger) Stats() Stats {
	return Stats{
		QueueLen:  len(l.queue),
		QueueCap:  cap(l.queue),
		Queued:    l.queued.Load(),
		Written:   l.written.Load(),
		Dropped:   l.dropped.Load(),
		Errors:    l.errors.Load(),
		BatchesOK: l.batchesOK.Load(),
	}
}

func (l *Logger) worker() {
	defer l.wg.Done()

	batch := make([]Entry, 0, l.config.BatchSize)
	ticker := time.NewTicker(l.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopChan:
			l.drainQueue(&batch)
			l.flushBatch(batch)
			return

		case entry := <-l.queue:
			batch = append(batch, entry)
			if len(batch) >= l.config.BatchSize {
				l.flushBatch(batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			l.flushBatch(batch)
			batch = batch[:0]
		}
	}
}

func (l *Logger) drainQueue(batch *[]Entry) {
	for {
		select {
		case entry := <-l.queue:
			*batch = append(*batch, entry)
		default:
			return
		}
	}
}

func (l *Logger) flushBatch(batch []Entry) {
	if len(batch) == 0 {
		return
	}

	var lastErr error
	for attempt, backoff := range l.config.RetryBackoff {
		if backoff > 0 {
			time.Sleep(backoff)
		}

		ctx, cancel := context.WithTimeout(context.Background(), l.config.WriteTimeout)
		err := l.sink.WriteBatch(ctx, batch)
		cancel()
		if err == nil {
			l.written.Add(uint64(len(batch)))
			l.batchesOK.Add(1)
			l.logger.Debug("Usage batch written",
				"count", len(batch),
				"attempt", attempt+1,
			)
			return
		}

		lastErr = err
		l.logger.Warn("Usage batch write failed",
			"attempt", attempt+1,
			"max_attempts", len(l.config.RetryBackoff),
			"batch_size", len(batch),
			"error", err,
		)
	}

	l.errors.Add(uint64(len(batch)))
	l.logger.Error("Usage batch discarded after retries",
		"batch_size", len(batch),
		"error", lastErr,
	)
}

// SlogSink writes entries to a structured logger. It is used when no
// database is configured.
type SlogSink struct {
	Logger *slog.Logger
}

func (s SlogSink) WriteBatch(ctx context.Context, entries []Entry) error {
	for _, e := range entries {
		s.Logger.LogAttrs(ctx, slog.LevelInfo, "Upstream attempt",
			slog.String("user_id", e.UserID),
			slog.String("provider_id", e.ProviderID),
			slog.String("provider", e.ProviderName),
			slog.String("request_format", string(e.RequestFormat)),
			slog.String("target_format", string(e.TargetFormat)),
			slog.String("model", e.Model),
			slog.Int("input_tokens", e.InputTokens),
			slog.Int("output_tokens", e.OutputTokens),
			slog.Int64("latency_ms", e.LatencyMs),
			slog.String("status", string(e.Status)),
			slog.String("error", e.ErrorMessage),
		)
	}
	return nil
}
