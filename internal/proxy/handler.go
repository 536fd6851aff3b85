// Package proxy is the HTTP surface of the router: it authenticates callers,
// loads their providers and streams the routed response back.
package proxy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/mixaill76/byok_router/internal/converter"
	"github.com/mixaill76/byok_router/internal/monitoring"
	"github.com/mixaill76/byok_router/internal/provider"
	"github.com/mixaill76/byok_router/internal/proxyauth"
	"github.com/mixaill76/byok_router/internal/router"
)

const (
	PathChatCompletions = "/v1/chat/completions"
	PathMessages        = "/v1/messages"

	// statusClientClosedRequest is recorded (never sent) when the caller
	// disconnects before a response starts.
	statusClientClosedRequest = 499
)

// Authenticator resolves a proxy key to its owner.
type Authenticator interface {
	Resolve(ctx context.Context, secret string) (*proxyauth.Identity, error)
}

// ProviderLister loads a user's active providers in failover order.
type ProviderLister interface {
	ListActiveForFailover(ctx context.Context, userID string) ([]provider.Provider, error)
}

// Forwarder routes a parsed request to the user's providers.
type Forwarder interface {
	ProxyRequest(ctx context.Context, req router.ProxyRequest) (*router.Response, error)
}

// Deps are the collaborators of a Handler. Auth, Providers and Router are
// required; everything else is optional.
type Deps struct {
	Auth      Authenticator
	Providers ProviderLister
	Router    Forwarder

	Limiter  *RateLimiter
	Metrics  *monitoring.Metrics
	ErrorLog *ErrorLog
	Health   HealthSources
}

type Config struct {
	MaxBodyBytes       int64
	StreamChunkTimeout time.Duration
	HealthCheckPath    string
	// OpenAIErrors sends the OpenAI error envelope to every caller instead of
	// matching the caller's wire format.
	OpenAIErrors bool
}

type Handler struct {
	deps   Deps
	config Config
	logger *slog.Logger
}

func New(deps Deps, cfg Config, logger *slog.Logger) *Handler {
	if cfg.StreamChunkTimeout <= 0 {
		cfg.StreamChunkTimeout = defaultStreamChunkWriteTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 10 * 1024 * 1024
	}
	if cfg.HealthCheckPath == "" {
		cfg.HealthCheckPath = "/health"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{deps: deps, config: cfg, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case h.config.HealthCheckPath:
		h.handleHealth(w, r)
	case PathChatCompletions:
		h.serveChat(w, r, provider.FormatOpenAI)
	case PathMessages:
		h.serveChat(w, r, provider.FormatAnthropic)
	default:
		WriteError(w, provider.FormatOpenAI, http.StatusNotFound, "Not Found")
	}
}

// requestTrace is what the error log needs to know about a handled request.
type requestTrace struct {
	userID string
	body   []byte
}

func (h *Handler) serveChat(w http.ResponseWriter, r *http.Request, incoming provider.Format) {
	if h.deps.ErrorLog == nil {
		h.handleChat(w, r, incoming)
		return
	}

	rc := newResponseCapture(w)
	trace := h.handleChat(rc, r, incoming)
	if isErrorStatus(rc.statusCode) {
		if err := h.deps.ErrorLog.Write(r, trace.userID, trace.body, rc); err != nil {
			h.logger.Warn("Failed to write error log entry", "error", err)
		}
	}
}

// handleChat runs the proxy pipeline for one request:
//
//  1. Method check (405)
//  2. Proxy key resolution (401, or 503 while the key store is down)
//  3. Per-user rate limit (429)
//  4. Bounded body read (413) and parse in the incoming format (400)
//  5. Provider list (503 while the store is down)
//  6. Failover routing (503 with no providers, 502 when all fail)
//  7. Response copy, flushed per chunk when streaming
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request, incoming provider.Format) requestTrace {
	var trace requestTrace
	start := time.Now()
	ctx := r.Context()

	requestID := uuid.NewString()
	w.Header().Set("X-Request-Id", requestID)
	log := h.logger.With("request_id", requestID, "incoming_format", incoming)

	status := http.StatusOK
	defer func() {
		h.deps.Metrics.RecordRequest(incoming, status, time.Since(start))
	}()
	fail := func(code int, message string) {
		status = code
		h.writeError(w, incoming, code, message)
	}

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		fail(http.StatusMethodNotAllowed, "Method not allowed")
		return trace
	}

	identity, err := h.deps.Auth.Resolve(ctx, proxyauth.SecretFromHeaders(r.Header))
	if err != nil {
		switch {
		case errors.Is(err, proxyauth.ErrStoreUnavailable):
			log.Error("Proxy key lookup unavailable", "error", err)
			fail(http.StatusServiceUnavailable, "Authentication is temporarily unavailable")
		case errors.Is(err, proxyauth.ErrMissingKey):
			fail(http.StatusUnauthorized, "Missing proxy key")
		default:
			log.Debug("Rejected proxy key", "error", err)
			fail(http.StatusUnauthorized, "Invalid proxy key")
		}
		return trace
	}
	trace.userID = identity.UserID
	log = log.With("user_id", identity.UserID)

	if !h.deps.Limiter.Allow(identity.UserID) {
		log.Warn("Rate limit exceeded")
		w.Header().Set("Retry-After", "1")
		fail(http.StatusTooManyRequests, "Rate limit exceeded")
		return trace
	}

	body, ok := h.readBody(w, r, log, fail)
	if !ok {
		return trace
	}
	trace.body = body

	req, err := converter.ParseRequest(body, incoming)
	if err != nil {
		log.Debug("Invalid request body", "error", err)
		fail(http.StatusBadRequest, err.Error())
		return trace
	}

	providers, err := h.deps.Providers.ListActiveForFailover(ctx, identity.UserID)
	if err != nil {
		log.Error("Failed to load providers", "error", err)
		fail(http.StatusServiceUnavailable, "Provider configuration is temporarily unavailable")
		return trace
	}

	resp, err := h.deps.Router.ProxyRequest(ctx, router.ProxyRequest{
		UserID:    identity.UserID,
		Providers: providers,
		Body:      req,
	})
	if err != nil {
		switch {
		case errors.Is(err, router.ErrNoProvidersConfigured):
			log.Info("No active providers configured")
			fail(http.StatusServiceUnavailable, "No active providers configured")
		case errors.Is(err, router.ErrAllProvidersExhausted):
			log.Warn("All providers failed", "error", err)
			fail(http.StatusBadGateway, "All providers failed")
		case ctx.Err() != nil:
			status = statusClientClosedRequest
			log.Debug("Client went away before a response", "error", err)
		default:
			log.Error("Routing failed", "error", err)
			fail(http.StatusInternalServerError, "Internal server error")
		}
		return trace
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			log.Debug("Failed to close upstream body", "error", closeErr)
		}
	}()

	copyResponseHeaders(w, resp.Header)
	w.Header().Set("X-Provider-Id", resp.Provider.ID)
	if resp.Streaming {
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("X-Accel-Buffering", "no")
	}
	status = resp.StatusCode
	w.WriteHeader(resp.StatusCode)

	if resp.Streaming {
		err = streamToClient(w, resp.Body, h.config.StreamChunkTimeout, log)
	} else {
		err = writeBuffered(w, resp.Body, log)
	}

	log.Info("Request completed",
		"provider_id", resp.Provider.ID,
		"target_format", resp.TargetFormat,
		"attempts", len(resp.Attempts),
		"streaming", resp.Streaming,
		"duration_ms", time.Since(start).Milliseconds(),
		"client_error", err != nil,
	)
	return trace
}

// readBody reads at most MaxBodyBytes of the request body.
func (h *Handler) readBody(w http.ResponseWriter, r *http.Request, log *slog.Logger, fail func(int, string)) ([]byte, bool) {
	maxBodyBytes := h.config.MaxBodyBytes
	if r.ContentLength > maxBodyBytes {
		log.Warn("Request body exceeds max size", "max_body_bytes", maxBodyBytes, "content_length", r.ContentLength)
		fail(http.StatusRequestEntityTooLarge, "Request body too large")
		return nil, false
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		log.Error("Failed to read request body", "error", err)
		fail(http.StatusBadRequest, "Failed to read request body")
		return nil, false
	}
	if closeErr := r.Body.Close(); closeErr != nil {
		log.Debug("Failed to close request body", "error", closeErr)
	}
	if int64(len(body)) > maxBodyBytes {
		log.Warn("Request body exceeds max size", "max_body_bytes", maxBodyBytes, "actual_size_bytes", len(body))
		fail(http.StatusRequestEntityTooLarge, "Request body too large")
		return nil, false
	}
	return body, true
}

func (h *Handler) writeError(w http.ResponseWriter, incoming provider.Format, status int, message string) {
	envelope := incoming
	if h.config.OpenAIErrors {
		envelope = provider.FormatOpenAI
	}
	WriteError(w, envelope, status, message)
}
