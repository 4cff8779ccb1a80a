// Package observability provides Prometheus instrumentation for the relay.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"chatrelay/internal/core"
)

// OutcomeSuccess labels relayed requests that returned a reply.
const OutcomeSuccess = "success"

// Metrics holds the relay's collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	requests         *prometheus.CounterVec
	upstreamDuration prometheus.Histogram
	tokens           *prometheus.CounterVec
}

// NewMetrics registers the relay collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chatrelay_requests_total",
			Help: "Chat relay requests by outcome (success or error type)",
		}, []string{"outcome"}),
		upstreamDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "chatrelay_upstream_duration_seconds",
			Help:    "Latency of the completion service round trip",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		tokens: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chatrelay_tokens_total",
			Help: "Tokens reported by the completion service",
		}, []string{"kind"}),
	}
}

// ObserveRequest counts one finished relay request.
func (m *Metrics) ObserveRequest(outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(outcome).Inc()
}

// ObserveUpstream records the duration of one completion call.
func (m *Metrics) ObserveUpstream(d time.Duration) {
	if m == nil {
		return
	}
	m.upstreamDuration.Observe(d.Seconds())
}

// ObserveTokens adds the usage of one completion.
func (m *Metrics) ObserveTokens(u core.Usage) {
	if m == nil {
		return
	}
	m.tokens.WithLabelValues("prompt").Add(float64(u.PromptTokens))
	m.tokens.WithLabelValues("completion").Add(float64(u.CompletionTokens))
}
