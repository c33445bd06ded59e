// Package correlation estimates pairwise return correlations between
// futures symbols and classifies symbols into correlation groups
// against the BTC/ETH/SOL anchors. Estimates are cached with a TTL and
// degrade to a static heuristic table when price data is missing or
// degenerate, so the exposure guard always gets an answer.
package correlation

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"riskcore/internal/cfg"
	"riskcore/internal/common"
	"riskcore/internal/series"
)

// KlineSource supplies candles for correlation windows.
type KlineSource interface {
	Klines(ctx context.Context, symbol, interval string, limit int) (series.Series, error)
}

// Tracker receives cache and fallback events. The metrics package
// implements it; tests use a stub.
type Tracker interface {
	CorrCacheHit(namespace string)
	CorrCacheMiss(namespace string)
	CorrFallback(reason string)
	AdvisoryFallback()
}

type nopTracker struct{}

func (nopTracker) CorrCacheHit(string)  {}
func (nopTracker) CorrCacheMiss(string) {}
func (nopTracker) CorrFallback(string)  {}
func (nopTracker) AdvisoryFallback()    {}

type cachedCorr struct {
	value    float64
	expireAt time.Time
}

// Estimator computes Pearson correlations over two windows: the
// standard hourly window used for grouping and admission, and a short
// 5m window used by the kill switch. The two windows cache under
// separate namespaces so a fast reading never shadows a standard one.
type Estimator struct {
	source  KlineSource
	tracker Tracker

	windowBars int
	minBars    int
	minReturns int
	ttl        time.Duration
	fastBars   int
	fastTTL    time.Duration

	mu    sync.RWMutex
	cache map[string]cachedCorr

	now func() time.Time
}

// NewEstimator builds an estimator from settings. tracker may be nil.
func NewEstimator(source KlineSource, s cfg.Settings, tracker Tracker) *Estimator {
	if tracker == nil {
		tracker = nopTracker{}
	}
	return &Estimator{
		source:     source,
		tracker:    tracker,
		windowBars: s.CorrWindowBars,
		minBars:    s.CorrMinBars,
		minReturns: s.CorrMinReturns,
		ttl:        s.CorrTTL,
		fastBars:   s.FastCorrBars,
		fastTTL:    s.FastCorrTTL,
		cache:      make(map[string]cachedCorr),
		now:        time.Now,
	}
}

const (
	nsStandard = "standard"
	nsFast     = "fast"
)

// Correlation returns the hourly-window correlation between two
// symbols. The result is symmetric in its arguments and always in
// [-1, 1]; on insufficient data it comes from the heuristic table.
func (e *Estimator) Correlation(ctx context.Context, a, b string) float64 {
	return e.correlate(ctx, a, b, nsStandard, common.IntervalHourly, e.windowBars, e.ttl)
}

// FastCorrelation returns the short-window correlation used to detect
// fast-market regime shifts. It is cheaper to refresh and cached under
// its own namespace with a short TTL.
func (e *Estimator) FastCorrelation(ctx context.Context, a, b string) float64 {
	return e.correlate(ctx, a, b, nsFast, common.IntervalFast, e.fastBars, e.fastTTL)
}

func (e *Estimator) correlate(ctx context.Context, a, b, ns, interval string, bars int, ttl time.Duration) float64 {
	if a == b {
		return 1.0
	}
	key := pairKey(ns, a, b)

	e.mu.RLock()
	entry, ok := e.cache[key]
	e.mu.RUnlock()
	if ok && e.now().Before(entry.expireAt) {
		e.tracker.CorrCacheHit(ns)
		return entry.value
	}
	e.tracker.CorrCacheMiss(ns)

	corr, ok := e.compute(ctx, a, b, interval, bars)
	if !ok {
		corr = FallbackCorrelation(a, b)
		e.tracker.CorrFallback(ns)
		log.Warn().
			Str("symbol_a", a).
			Str("symbol_b", b).
			Str("window", ns).
			Float64("fallback", corr).
			Msg("insufficient data for correlation, using heuristic estimate")
	}

	e.mu.Lock()
	e.cache[key] = cachedCorr{value: corr, expireAt: e.now().Add(ttl)}
	e.mu.Unlock()
	return corr
}

func (e *Estimator) compute(ctx context.Context, a, b, interval string, bars int) (float64, bool) {
	sa, err := e.source.Klines(ctx, a, interval, bars)
	if err != nil {
		log.Debug().Err(err).Str("symbol", a).Msg("kline fetch failed")
		return 0, false
	}
	sb, err := e.source.Klines(ctx, b, interval, bars)
	if err != nil {
		log.Debug().Err(err).Str("symbol", b).Msg("kline fetch failed")
		return 0, false
	}
	if len(sa) < e.minBars || len(sb) < e.minBars {
		return 0, false
	}

	n := len(sa)
	if len(sb) < n {
		n = len(sb)
	}
	ra := series.Returns(sa.Tail(n).Closes())
	rb := series.Returns(sb.Tail(n).Closes())
	if len(ra) < e.minReturns || len(rb) < e.minReturns {
		return 0, false
	}
	return series.Pearson(ra, rb)
}

// Invalidate drops every cached estimate. Used by tests and on
// provider reconfiguration.
func (e *Estimator) Invalidate() {
	e.mu.Lock()
	e.cache = make(map[string]cachedCorr)
	e.mu.Unlock()
}

// pairKey is symmetric: (a,b) and (b,a) share a cache entry.
func pairKey(ns, a, b string) string {
	if strings.Compare(a, b) > 0 {
		a, b = b, a
	}
	return ns + "|" + a + "|" + b
}
