package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersRegisterAndCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Registration("created")
	m.Registration("already-exists")
	m.Registration("already-exists")
	m.Scan("busy")
	m.ChildCareTransition("checked-in")
	m.CompletionLogAppended()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Registrations.WithLabelValues("created")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Registrations.WithLabelValues("already-exists")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Scans.WithLabelValues("busy")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChildCare.WithLabelValues("checked-in")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CompletionLogs))

	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Registration("created")
		m.Scan("error")
		m.ChildCareTransition("checked-out")
		m.CompletionLogAppended()
	})
}
