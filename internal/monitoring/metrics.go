package monitoring

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mixaill76/byok_router/internal/provider"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "byok_router_requests_total",
			Help: "Total number of proxied requests by incoming format and response status",
		},
		[]string{"incoming_format", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "byok_router_request_duration_seconds",
			Help:    "Time until the response began returning, including failover",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
		},
		[]string{"incoming_format", "status"},
	)

	AttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "byok_router_attempts_total",
			Help: "Upstream attempts by provider, target format and outcome",
		},
		[]string{"provider", "target_format", "outcome"},
	)

	FailoversTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "byok_router_failovers_total",
			Help: "Requests that moved past their first provider",
		},
	)

	ProviderHealth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "byok_router_provider_health",
			Help: "Provider health as last observed (1 = healthy, 0.5 = degraded, 0 = down)",
		},
		[]string{"provider"},
	)

	BackgroundDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "byok_router_background_dropped_total",
			Help: "Fire-and-forget jobs or usage entries dropped because a queue was full",
		},
		[]string{"queue"},
	)

	StreamMalformedEventsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "byok_router_stream_malformed_events_total",
			Help: "Upstream stream events skipped because they could not be decoded",
		},
	)
)

type Metrics struct {
	enabled bool
}

func New(enabled bool) *Metrics {
	return &Metrics{
		enabled: enabled,
	}
}

func (m *Metrics) isEnabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) RecordRequest(incoming provider.Format, statusCode int, duration time.Duration) {
	if !m.isEnabled() {
		return
	}
	status := strconv.Itoa(statusCode)
	RequestsTotal.WithLabelValues(string(incoming), status).Inc()
	RequestDuration.WithLabelValues(string(incoming), status).Observe(duration.Seconds())
}

// RecordAttempt counts one upstream attempt. outcome is "success" or a
// failure kind ("http", "timeout", "network").
func (m *Metrics) RecordAttempt(providerName string, target provider.Format, outcome string) {
	if !m.isEnabled() {
		return
	}
	AttemptsTotal.WithLabelValues(providerName, string(target), outcome).Inc()
}

func (m *Metrics) RecordFailover() {
	if !m.isEnabled() {
		return
	}
	FailoversTotal.Inc()
}

func (m *Metrics) UpdateProviderHealth(providerName string, status provider.HealthStatus) {
	if !m.isEnabled() {
		return
	}
	var value float64
	switch status {
	case provider.HealthHealthy:
		value = 1
	case provider.HealthDegraded:
		value = 0.5
	case provider.HealthDown:
		value = 0
	default:
		return
	}
	ProviderHealth.WithLabelValues(providerName).Set(value)
}

// DropCounter returns a callback suitable for queue OnDrop hooks.
func (m *Metrics) DropCounter(queue string) func() {
	return func() {
		if !m.isEnabled() {
			return
		}
		BackgroundDroppedTotal.WithLabelValues(queue).Inc()
	}
}

func (m *Metrics) RecordMalformedEvents(n int) {
	if !m.isEnabled() || n <= 0 {
		return
	}
	StreamMalformedEventsTotal.Add(float64(n))
}
