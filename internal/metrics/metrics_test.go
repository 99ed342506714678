package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

func TestRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.FilesDiscovered.Add(3)
	m.PendingFiles.Set(2)
	m.TickDuration.Observe(0.002)

	assert.Equal(t, 3.0, counterValue(t, m.FilesDiscovered))
	assert.Equal(t, 2.0, gaugeValue(t, m.PendingFiles))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["asset_registry_gatherer_files_discovered_total"])
	assert.True(t, names["asset_registry_tick_duration_seconds"])
	assert.True(t, names["asset_registry_assets"])
}

func TestNilRegisterer(t *testing.T) {
	m := New(nil)
	m.CacheHits.Inc()
	assert.Equal(t, 1.0, counterValue(t, m.CacheHits))
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
