package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestCircuitStateValue(t *testing.T) {
	require.Equal(t, 0.0, CircuitStateValue("closed"))
	require.Equal(t, 1.0, CircuitStateValue("half-open"))
	require.Equal(t, 2.0, CircuitStateValue("open"))
}

func TestTimerObserveDuration(t *testing.T) {
	timer := NewTimer()
	timer.ObserveDurationVec(RunDuration, "store-1", "delta")

	var m dto.Metric
	h := RunDuration.WithLabelValues("store-1", "delta").(prometheus.Metric)
	require.NoError(t, h.Write(&m))
	require.GreaterOrEqual(t, m.GetHistogram().GetSampleCount(), uint64(1))
}

func TestCountersIncrement(t *testing.T) {
	RateLimitHitsTotal.WithLabelValues("venue-test").Inc()

	var m dto.Metric
	require.NoError(t, RateLimitHitsTotal.WithLabelValues("venue-test").Write(&m))
	require.GreaterOrEqual(t, m.GetCounter().GetValue(), 1.0)
}
