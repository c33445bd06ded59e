// Package metrics exposes the risk core's Prometheus metrics:
// admission outcomes, correlation cache behavior, stop and take-profit
// activity, and the advisory fallback counter. The Metrics struct also
// implements the tracker interfaces the domain packages accept, so
// wiring is a single value passed around at startup.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the risk core.
type Metrics struct {
	// Admission metrics
	SignalsChecked  prometheus.Counter
	SignalsApproved prometheus.Counter
	SignalsBlocked  *prometheus.CounterVec // by rejection reason

	// Correlation metrics
	CorrCacheHits   *prometheus.CounterVec // by window namespace
	CorrCacheMisses *prometheus.CounterVec
	CorrFallbacks   *prometheus.CounterVec
	AdvisoryErrors  prometheus.Counter

	// Position lifecycle metrics
	OpenPositions prometheus.Gauge
	StopMoves     *prometheus.CounterVec // by trailing kind
	ProfitEvents  *prometheus.CounterVec // tp1, tp2, exhaustion

	// Data plane metrics
	WSReconnects prometheus.Counter
	TicksHandled prometheus.Counter
	ErrorsTotal  prometheus.Counter
}

// New creates and registers all metrics on the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics on a custom registry, which keeps
// tests isolated from the global state.
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		SignalsChecked: factory.NewCounter(prometheus.CounterOpts{
			Name: "signals_checked_total",
			Help: "Total signals evaluated by the exposure guard",
		}),
		SignalsApproved: factory.NewCounter(prometheus.CounterOpts{
			Name: "signals_approved_total",
			Help: "Total signals admitted by the exposure guard",
		}),
		SignalsBlocked: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "signals_blocked_total",
			Help: "Total signals rejected, by reason",
		}, []string{"reason"}),
		CorrCacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "correlation_cache_hits_total",
			Help: "Correlation cache hits, by window",
		}, []string{"window"}),
		CorrCacheMisses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "correlation_cache_misses_total",
			Help: "Correlation cache misses, by window",
		}, []string{"window"}),
		CorrFallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "correlation_fallbacks_total",
			Help: "Correlations served from the heuristic table, by window",
		}, []string{"window"}),
		AdvisoryErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "advisory_fallbacks_total",
			Help: "Advisory threshold fetches that fell back to static config",
		}),
		OpenPositions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "open_positions",
			Help: "Number of tracked open positions",
		}),
		StopMoves: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stop_moves_total",
			Help: "Trailing stop updates, by trailing kind",
		}, []string{"kind"}),
		ProfitEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "profit_events_total",
			Help: "Take-profit and exhaustion exits, by kind",
		}, []string{"kind"}),
		WSReconnects: factory.NewCounter(prometheus.CounterOpts{
			Name: "ws_reconnects_total",
			Help: "Price stream reconnections",
		}),
		TicksHandled: factory.NewCounter(prometheus.CounterOpts{
			Name: "ticks_handled_total",
			Help: "Engine evaluation ticks completed",
		}),
		ErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total errors encountered",
		}),
	}
}

// Tracker implementations consumed by the domain packages.

func (m *Metrics) SignalChecked()              { m.SignalsChecked.Inc() }
func (m *Metrics) SignalApproved()             { m.SignalsApproved.Inc() }
func (m *Metrics) SignalBlocked(reason string) { m.SignalsBlocked.WithLabelValues(reason).Inc() }

func (m *Metrics) CorrCacheHit(window string)  { m.CorrCacheHits.WithLabelValues(window).Inc() }
func (m *Metrics) CorrCacheMiss(window string) { m.CorrCacheMisses.WithLabelValues(window).Inc() }
func (m *Metrics) CorrFallback(window string)  { m.CorrFallbacks.WithLabelValues(window).Inc() }
func (m *Metrics) AdvisoryFallback()           { m.AdvisoryErrors.Inc() }

func (m *Metrics) StopMoved(kind string)   { m.StopMoves.WithLabelValues(kind).Inc() }
func (m *Metrics) ProfitEvent(kind string) { m.ProfitEvents.WithLabelValues(kind).Inc() }

func (m *Metrics) TickDone()              { m.TicksHandled.Inc() }
func (m *Metrics) EngineError()           { m.ErrorsTotal.Inc() }
func (m *Metrics) SetOpenPositions(n int) { m.OpenPositions.Set(float64(n)) }
