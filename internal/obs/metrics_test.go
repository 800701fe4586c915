package obs

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsRegistersEverything(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	require.NotNil(t, m)

	m.WritesTotal.WithLabelValues("put", "ok").Inc()
	m.FlushesTotal.Inc()
	m.MemtableBytes.Set(1024)
	m.SSTablesPerLevel.WithLabelValues("L0").Set(2)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.WritesTotal.WithLabelValues("put", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.FlushesTotal))
	assert.Equal(t, float64(1024), testutil.ToFloat64(m.MemtableBytes))
}

func TestNewMetricsPanicsOnDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg)

	assert.Panics(t, func() { NewMetrics(reg) })
}
