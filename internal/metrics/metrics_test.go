package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterIsIdempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))
	require.NoError(t, Register(reg))
}

func TestObserveSourceSearch(t *testing.T) {
	before := testutil.ToFloat64(sourceRequestsTotal.WithLabelValues("metrics-test", OutcomeError))
	ObserveSourceSearch("metrics-test", 20*time.Millisecond, false)
	ObserveSourceSearch("metrics-test", -time.Second, true)
	assert.Equal(t, before+1, testutil.ToFloat64(sourceRequestsTotal.WithLabelValues("metrics-test", OutcomeError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(sourceRequestsTotal.WithLabelValues("metrics-test", OutcomeSuccess)))
}

func TestGauges(t *testing.T) {
	SetSourceHealthy("gauge-test", true)
	assert.Equal(t, 1.0, testutil.ToFloat64(sourceHealthy.WithLabelValues("gauge-test")))
	SetSourceHealthy("gauge-test", false)
	assert.Equal(t, 0.0, testutil.ToFloat64(sourceHealthy.WithLabelValues("gauge-test")))

	SetBreakerState("gauge-test", 2)
	assert.Equal(t, 2.0, testutil.ToFloat64(breakerState.WithLabelValues("gauge-test")))

	IncFallback("EMAIL")
	assert.GreaterOrEqual(t, testutil.ToFloat64(fallbackTotal.WithLabelValues("EMAIL")), 1.0)
}
