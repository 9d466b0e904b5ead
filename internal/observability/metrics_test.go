package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsWithRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.Notifications.Inc()
	m.Cycles.WithLabelValues("live", "success").Inc()
	m.GeocodeEnabled.Set(1)

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]string, len(families))
	for _, f := range families {
		names[f.GetName()] = f.GetHelp()
	}
	assert.Contains(t, names, "quake_watch_notifications_total")
	assert.Contains(t, names, "quake_watch_refresh_cycles_total")
	assert.NotEmpty(t, names["quake_watch_geocode_enabled"], "registered metrics carry help text")
	assert.InDelta(t, 1, testutil.ToFloat64(m.Notifications), 1e-9)
}

func TestNewMetricsWithRegistry_DuplicatePanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetricsWithRegistry(reg)
	assert.Panics(t, func() { NewMetricsWithRegistry(reg) })
}

func TestNewMetricsForTesting_Unregistered(t *testing.T) {
	a := NewMetricsForTesting()
	b := NewMetricsForTesting()
	a.Notifications.Inc()
	assert.InDelta(t, 0, testutil.ToFloat64(b.Notifications), 1e-9)
}
