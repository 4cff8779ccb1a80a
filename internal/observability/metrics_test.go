package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatrelay/internal/core"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveRequest(OutcomeSuccess)
	m.ObserveRequest(OutcomeSuccess)
	m.ObserveRequest(string(core.ErrorTypeConfiguration))
	m.ObserveUpstream(150 * time.Millisecond)
	m.ObserveTokens(core.Usage{PromptTokens: 12, CompletionTokens: 3, TotalTokens: 15})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("configuration_error")))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.tokens.WithLabelValues("prompt")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.tokens.WithLabelValues("completion")))

	count, err := testutil.GatherAndCount(reg, "chatrelay_upstream_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRequest(OutcomeSuccess)
		m.ObserveUpstream(time.Second)
		m.ObserveTokens(core.Usage{PromptTokens: 1})
	})
}
