package proxy

import (
	"encoding/json"
	"net/http"

	"github.com/mixaill76/byok_router/internal/proxyauth"
	"github.com/mixaill76/byok_router/internal/usage"
	"github.com/mixaill76/byok_router/internal/worker"
)

// DatabaseHealth reports the cached health of the database connection.
type DatabaseHealth interface {
	IsHealthy() bool
}

// StatsSource exposes counters of a background component.
type StatsSource[T any] interface {
	Stats() T
}

// AuthCacheStats exposes proxy key cache counters.
type AuthCacheStats interface {
	CacheStats() proxyauth.CacheStats
}

// HealthSources feed the health endpoint. A nil Database means the router
// runs on in-memory stores.
type HealthSources struct {
	Database   DatabaseHealth
	UsageLog   StatsSource[usage.Stats]
	Background StatsSource[worker.Stats]
	AuthCache  AuthCacheStats
}

type HealthResponse struct {
	Status     string                `json:"status"`
	Database   string                `json:"database"`
	UsageLog   *usage.Stats          `json:"usage_log,omitempty"`
	Background *worker.Stats         `json:"background,omitempty"`
	AuthCache  *proxyauth.CacheStats `json:"auth_cache,omitempty"`
	RateLimit  *RateLimitStats       `json:"rate_limit,omitempty"`
}

type RateLimitStats struct {
	TrackedUsers int `json:"tracked_users"`
}

// HealthCheck reports whether the router can serve requests. Only the
// database matters: background queues degrade telemetry, not routing.
func (h *Handler) HealthCheck() (bool, *HealthResponse) {
	src := h.deps.Health
	status := &HealthResponse{Status: "healthy", Database: "disabled"}
	healthy := true

	if src.Database != nil {
		if src.Database.IsHealthy() {
			status.Database = "healthy"
		} else {
			status.Database = "unhealthy"
			healthy = false
		}
	}
	if src.UsageLog != nil {
		stats := src.UsageLog.Stats()
		status.UsageLog = &stats
	}
	if src.Background != nil {
		stats := src.Background.Stats()
		status.Background = &stats
	}
	if src.AuthCache != nil {
		stats := src.AuthCache.CacheStats()
		status.AuthCache = &stats
	}
	if h.deps.Limiter != nil {
		status.RateLimit = &RateLimitStats{TrackedUsers: h.deps.Limiter.Tracked()}
	}

	if !healthy {
		status.Status = "unhealthy"
	}
	return healthy, status
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		WriteError(w, "", http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	healthy, status := h.HealthCheck()

	w.Header().Set("Content-Type", "application/json")
	if !healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	if err := json.NewEncoder(w).Encode(status); err != nil {
		h.logger.Debug("Failed to write health response", "error", err)
	}
}
