package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveQuery("slots", "available", 0.01)
	m.ObserveQuery("slots", "DAY_CLOSED", 0.02)
	m.ObserveQuery("slots", "available", 0.01)
	m.ObserveCache("hit")
	m.ObserveDurationFallback()
	m.ObserveInvalidation("kafka", 3)
	m.ObserveInvalidation("kafka", 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.queriesTotal.WithLabelValues("slots", "available")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.queriesTotal.WithLabelValues("slots", "DAY_CLOSED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheTotal.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.durationFallbacks))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.invalidationsTotal.WithLabelValues("kafka")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveQuery("slots", "available", 1)
		m.ObserveCache("miss")
		m.ObserveDurationFallback()
		m.ObserveInvalidation("api", 1)
	})
}
