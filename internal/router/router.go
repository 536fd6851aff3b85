// Package router forwards a parsed chat request to a user's providers in
// priority order, failing over until one of them answers.
package router

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mixaill76/byok_router/internal/converter"
	"github.com/mixaill76/byok_router/internal/format"
	"github.com/mixaill76/byok_router/internal/httputil"
	"github.com/mixaill76/byok_router/internal/monitoring"
	"github.com/mixaill76/byok_router/internal/provider"
	"github.com/mixaill76/byok_router/internal/security"
	"github.com/mixaill76/byok_router/internal/sse"
	"github.com/mixaill76/byok_router/internal/usage"
	"github.com/mixaill76/byok_router/internal/utils"
	"github.com/mixaill76/byok_router/internal/worker"
)

const (
	DefaultAttemptTimeout   = 30 * time.Second
	defaultErrorBodyLimit   = 4 * 1024
	defaultMaxResponseBytes = 32 * 1024 * 1024
)

// Scheduler runs fire-and-forget jobs off the request path.
type Scheduler interface {
	Submit(job worker.Job) bool
}

type Config struct {
	// AttemptTimeout bounds the time from sending a request to receiving
	// response headers, or to the end of a body buffered for translation.
	// It does not limit how long a body may stream.
	AttemptTimeout time.Duration
	Headers        HeaderConfig
	// ErrorBodyLimit is how much of a failed response is kept for logs.
	ErrorBodyLimit int64
	// MaxResponseBytes bounds buffered (non-streaming) bodies that need translation.
	MaxResponseBytes int64
	Now              func() time.Time
}

type Router struct {
	upstream   Upstream
	store      provider.Store
	usage      usage.Recorder
	background Scheduler
	metrics    *monitoring.Metrics
	config     Config
	logger     *slog.Logger
}

func New(
	upstream Upstream,
	store provider.Store,
	recorder usage.Recorder,
	background Scheduler,
	metrics *monitoring.Metrics,
	cfg Config,
	logger *slog.Logger,
) *Router {
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = DefaultAttemptTimeout
	}
	if cfg.ErrorBodyLimit <= 0 {
		cfg.ErrorBodyLimit = defaultErrorBodyLimit
	}
	if cfg.MaxResponseBytes <= 0 {
		cfg.MaxResponseBytes = defaultMaxResponseBytes
	}
	if cfg.Now == nil {
		cfg.Now = utils.NowUTC
	}
	return &Router{
		upstream:   upstream,
		store:      store,
		usage:      recorder,
		background: background,
		metrics:    metrics,
		config:     cfg,
		logger:     logger,
	}
}

// ProxyRequest is one caller request together with the caller's providers.
type ProxyRequest struct {
	UserID    string
	Providers []provider.Provider
	Body      *converter.Request
}

// Response is the upstream answer, already in the caller's format. Body must
// be closed; closing it aborts the upstream request if it is still running.
type Response struct {
	StatusCode   int
	Header       http.Header
	Body         io.ReadCloser
	Streaming    bool
	Provider     provider.Provider
	TargetFormat provider.Format
	Attempts     []Attempt
}

// ProxyRequest tries the candidates in priority order, one attempt each, and
// returns the first successful response. It returns ErrNoProvidersConfigured
// when there is nothing to try and an *ExhaustedError when every attempt failed.
func (r *Router) ProxyRequest(ctx context.Context, req ProxyRequest) (*Response, error) {
	fo := NewFailover(Candidates(req.Providers))
	if fo.State() == StateExhausted {
		return nil, ErrNoProvidersConfigured
	}

	for {
		p, ok := fo.Next()
		if !ok {
			break
		}
		if fo.Index() == 1 {
			r.metrics.RecordFailover()
		}

		target := format.Resolve(p)
		started := time.Now()
		resp, err := r.attempt(ctx, req, p, target, started)
		latency := time.Since(started)

		if err == nil {
			fo.Succeed(latency)
			resp.Attempts = fo.Attempts()
			r.onSuccess(p, target)
			return resp, nil
		}

		if ctx.Err() != nil {
			// The caller went away; that says nothing about the provider.
			return nil, fmt.Errorf("request cancelled: %w", ctx.Err())
		}

		kind := FailureNetwork
		var upErr *UpstreamError
		if errors.As(err, &upErr) {
			kind = upErr.Kind
		}
		fo.Fail(kind, err, latency)
		r.onFailure(req, p, target, kind, err, latency)
	}

	return nil, &ExhaustedError{Attempts: fo.Attempts()}
}

func (r *Router) attempt(ctx context.Context, req ProxyRequest, p *provider.Provider, target provider.Format, started time.Time) (*Response, error) {
	upReq, err := converter.ConvertRequest(req.Body, target, p.Model)
	if err != nil {
		return nil, &UpstreamError{Kind: FailureConfig, ProviderID: p.ID, Err: err}
	}
	body, err := upReq.Marshal()
	if err != nil {
		return nil, &UpstreamError{Kind: FailureConfig, ProviderID: p.ID, Err: err}
	}
	call := buildUpstreamRequest(p, target, body, upReq.Streaming(), r.config.Headers)

	r.logger.Debug("Sending upstream request",
		"provider_id", p.ID,
		"url", call.URL,
		"target_format", target,
		"model", upReq.Model(),
		"headers", security.MaskSensitiveHeaders(call.Header),
	)

	// The timer covers the wait for response headers. A body that has to be
	// buffered for translation stays under it until fully read; any other
	// body is bound to the caller's context and to Close.
	attemptCtx, cancel := context.WithCancel(ctx)
	var timedOut atomic.Bool
	timer := time.AfterFunc(r.config.AttemptTimeout, func() {
		timedOut.Store(true)
		cancel()
	})

	resp, err := r.upstream.Do(attemptCtx, call)
	if err != nil {
		timer.Stop()
		cancel()
		if timedOut.Load() {
			return nil, &UpstreamError{Kind: FailureTimeout, ProviderID: p.ID, Err: err}
		}
		return nil, &UpstreamError{Kind: FailureNetwork, ProviderID: p.ID, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		preview := httputil.ReadPreview(resp.Body, r.config.ErrorBodyLimit)
		timer.Stop()
		_ = resp.Body.Close()
		cancel()
		return nil, &UpstreamError{Kind: FailureHTTP, ProviderID: p.ID, StatusCode: resp.StatusCode, Body: preview}
	}

	streaming := upReq.Streaming() && !isJSON(resp.Header)
	buffered := !streaming && target != req.Body.Format
	if !buffered && !timer.Stop() {
		_ = resp.Body.Close()
		cancel()
		return nil, &UpstreamError{Kind: FailureTimeout, ProviderID: p.ID, Err: context.DeadlineExceeded}
	}

	upstreamBody := &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	out, err := r.respond(req, p, target, upReq, resp, streaming, upstreamBody, time.Since(started))
	if buffered {
		timer.Stop()
	}
	if err != nil {
		_ = upstreamBody.Close()
		if timedOut.Load() {
			return nil, &UpstreamError{Kind: FailureTimeout, ProviderID: p.ID, StatusCode: resp.StatusCode, Err: err}
		}
		return nil, err
	}
	return out, nil
}

// respond wraps a successful upstream response for the caller: passthrough,
// streamed re-encoding or buffered translation.
func (r *Router) respond(
	req ProxyRequest,
	p *provider.Provider,
	target provider.Format,
	upReq *converter.Request,
	resp *http.Response,
	streaming bool,
	upstreamBody io.ReadCloser,
	headerLatency time.Duration,
) (*Response, error) {
	incoming := req.Body.Format

	var meter *usage.Meter
	if streaming {
		meter = usage.NewStreamMeter()
	} else {
		meter = usage.NewBodyMeter(int(r.config.MaxResponseBytes))
	}
	tapped := &readCloser{Reader: io.TeeReader(upstreamBody, meter), Closer: upstreamBody}

	out := &Response{
		StatusCode:   resp.StatusCode,
		Header:       make(http.Header),
		Streaming:    streaming,
		Provider:     *p,
		TargetFormat: target,
	}

	var body io.ReadCloser
	var transformer *sse.Transformer
	switch {
	case target == incoming:
		if ct := resp.Header.Get("Content-Type"); ct != "" {
			out.Header.Set("Content-Type", ct)
		}
		body = tapped

	case streaming:
		conv, err := converter.NewStreamConverter(target, incoming, upReq.Model())
		if err != nil {
			return nil, &UpstreamError{Kind: FailureConfig, ProviderID: p.ID, Err: err}
		}
		transformer = sse.NewTransformer(tapped, conv, r.logger)
		body = transformer
		out.Header.Set("Content-Type", "text/event-stream")

	default:
		raw, err := io.ReadAll(io.LimitReader(tapped, r.config.MaxResponseBytes+1))
		if err != nil {
			return nil, &UpstreamError{Kind: FailureNetwork, ProviderID: p.ID, StatusCode: resp.StatusCode, Err: err}
		}
		if int64(len(raw)) > r.config.MaxResponseBytes {
			return nil, &UpstreamError{Kind: FailureResponse, ProviderID: p.ID, StatusCode: resp.StatusCode, Err: errors.New("response too large to translate")}
		}
		converted, err := converter.ConvertResponse(raw, target, incoming, upReq.Model())
		if err != nil {
			return nil, &UpstreamError{Kind: FailureResponse, ProviderID: p.ID, StatusCode: resp.StatusCode, Err: err}
		}
		_ = tapped.Close()
		body = io.NopCloser(bytes.NewReader(converted))
		out.Header.Set("Content-Type", "application/json")
	}

	entry := usage.Entry{
		UserID:        req.UserID,
		ProviderID:    p.ID,
		ProviderName:  p.Name,
		RequestFormat: incoming,
		TargetFormat:  target,
		Model:         upReq.Model(),
		LatencyMs:     headerLatency.Milliseconds(),
		Status:        usage.StatusSuccess,
	}
	out.Body = &meteredBody{
		ReadCloser: body,
		upstream:   upstreamBody,
		onClose: func() {
			tokens := meter.Tokens()
			entry.InputTokens = tokens.Input
			entry.OutputTokens = tokens.Output
			entry.CreatedAt = r.config.Now()
			r.usage.Record(entry)
			if transformer != nil {
				r.metrics.RecordMalformedEvents(transformer.Malformed())
			}
		},
	}
	return out, nil
}

func (r *Router) onSuccess(p *provider.Provider, target provider.Format) {
	status, failures := provider.AfterSuccess()
	id := p.ID
	at := r.config.Now()

	r.metrics.RecordAttempt(id, target, "success")
	r.metrics.UpdateProviderHealth(id, status)
	r.schedule("mark_provider_healthy", func(ctx context.Context) error {
		if err := r.store.UpdateHealth(ctx, id, status, failures); err != nil {
			return err
		}
		return r.store.MarkUsed(ctx, id, at)
	})
}

func (r *Router) onFailure(req ProxyRequest, p *provider.Provider, target provider.Format, kind FailureKind, err error, latency time.Duration) {
	status, failures := provider.AfterFailure(p.ConsecutiveFailures)
	id := p.ID

	attrs := []any{
		"provider_id", id,
		"provider", p.Name,
		"kind", kind,
		"consecutive_failures", failures,
		"health", status,
		"latency_ms", latency.Milliseconds(),
		"error", err,
	}
	var upErr *UpstreamError
	if errors.As(err, &upErr) && upErr.Body != "" {
		attrs = append(attrs, "upstream_body", upErr.Body)
	}
	r.logger.Warn("Upstream attempt failed", attrs...)

	r.metrics.RecordAttempt(id, target, string(kind))
	r.metrics.UpdateProviderHealth(id, status)
	r.schedule("update_provider_health", func(ctx context.Context) error {
		return r.store.UpdateHealth(ctx, id, status, failures)
	})

	r.usage.Record(usage.Entry{
		UserID:        req.UserID,
		ProviderID:    id,
		ProviderName:  p.Name,
		RequestFormat: req.Body.Format,
		TargetFormat:  target,
		Model:         req.Body.Model(),
		LatencyMs:     latency.Milliseconds(),
		Status:        usage.StatusError,
		ErrorMessage:  err.Error(),
		CreatedAt:     r.config.Now(),
	})
}

func (r *Router) schedule(name string, run func(ctx context.Context) error) {
	if r.background == nil {
		return
	}
	r.background.Submit(worker.Job{Name: name, Run: run})
}

func isJSON(h http.Header) bool {
	mediaType, _, err := mime.ParseMediaType(h.Get("Content-Type"))
	return err == nil && mediaType == "application/json"
}

// cancelOnClose releases the attempt context once the body is done.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

type readCloser struct {
	io.Reader
	io.Closer
}

// meteredBody records the success entry exactly once, when the caller is
// done with the response.
type meteredBody struct {
	io.ReadCloser
	upstream io.Closer
	once     sync.Once
	onClose  func()
}

func (b *meteredBody) Close() error {
	err := b.ReadCloser.Close()
	if b.upstream != nil {
		_ = b.upstream.Close()
	}
	b.once.Do(b.onClose)
	return err
}
