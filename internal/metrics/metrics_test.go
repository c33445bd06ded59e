package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerMethodsDriveCounters(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg)
	require.NotNil(t, m)

	m.SignalChecked()
	m.SignalChecked()
	m.SignalApproved()
	m.SignalBlocked("CORRELATED_WITH_OPEN_POSITIONS")
	m.SignalBlocked("CORRELATED_WITH_OPEN_POSITIONS")
	m.SignalBlocked("SECTOR_LIMIT_EXCEEDED")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.SignalsChecked))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SignalsApproved))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SignalsBlocked.WithLabelValues("CORRELATED_WITH_OPEN_POSITIONS")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SignalsBlocked.WithLabelValues("SECTOR_LIMIT_EXCEEDED")))

	m.CorrCacheHit("standard")
	m.CorrCacheMiss("fast")
	m.CorrFallback("standard")
	m.AdvisoryFallback()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CorrCacheHits.WithLabelValues("standard")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CorrCacheMisses.WithLabelValues("fast")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CorrFallbacks.WithLabelValues("standard")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AdvisoryErrors))

	m.StopMoved("tp1")
	m.ProfitEvent("tp2")
	m.TickDone()
	m.EngineError()
	m.SetOpenPositions(7)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StopMoves.WithLabelValues("tp1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProfitEvents.WithLabelValues("tp2")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TicksHandled))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ErrorsTotal))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.OpenPositions))
}

func TestIsolatedRegistriesDoNotCollide(t *testing.T) {
	t.Parallel()

	a := NewWithRegistry(prometheus.NewRegistry())
	b := NewWithRegistry(prometheus.NewRegistry())
	a.SignalChecked()
	assert.Equal(t, 1.0, testutil.ToFloat64(a.SignalsChecked))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.SignalsChecked))
}
