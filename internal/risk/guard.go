package risk

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"riskcore/internal/cfg"
	"riskcore/internal/common"
	"riskcore/internal/correlation"
	"riskcore/internal/position"
)

// GuardTracker receives admission outcomes for metrics.
type GuardTracker interface {
	SignalChecked()
	SignalApproved()
	SignalBlocked(reason string)
}

type nopGuardTracker struct{}

func (nopGuardTracker) SignalChecked()       {}
func (nopGuardTracker) SignalApproved()      {}
func (nopGuardTracker) SignalBlocked(string) {}

// AdmissionRecorder persists admission decisions for audit. Failures
// are logged and never block admission.
type AdmissionRecorder interface {
	RecordAdmission(sig Signal, adm Admission) error
}

// Guard is the portfolio exposure guard. Admit runs a fixed pipeline:
// fast-market kill switch, sector limit, same-symbol direction check,
// open-position correlation, then group cooldown. The first failing
// step rejects. Admit never writes to the cooldown history itself;
// callers confirm an executed approval with RecordSignal, so retries
// and dry runs do not consume group budget.
type Guard struct {
	estimator  *correlation.Estimator
	classifier *correlation.GroupClassifier
	sectors    *SectorTable
	book       *position.Book
	history    *SignalHistory
	tracker    GuardTracker
	recorder   AdmissionRecorder

	groupLimits    map[string]cfg.GroupLimit
	panicThreshold float64
	highCorr       float64
	cooldown       time.Duration

	mu    sync.Mutex
	stats GuardStats

	now func() time.Time
}

// GuardStats are running admission counters.
type GuardStats struct {
	Checked  int64
	Approved int64
	Blocked  map[string]int64
}

// NewGuard wires the guard. tracker and recorder may be nil.
func NewGuard(est *correlation.Estimator, cls *correlation.GroupClassifier, sectors *SectorTable, book *position.Book, s cfg.Settings, tracker GuardTracker, recorder AdmissionRecorder) *Guard {
	if tracker == nil {
		tracker = nopGuardTracker{}
	}
	return &Guard{
		estimator:      est,
		classifier:     cls,
		sectors:        sectors,
		book:           book,
		history:        NewSignalHistory(time.Duration(s.LookbackHours) * time.Hour),
		tracker:        tracker,
		recorder:       recorder,
		groupLimits:    s.GroupLimits,
		panicThreshold: s.PanicThreshold,
		highCorr:       s.Thresholds.High,
		cooldown:       s.Cooldown,
		stats:          GuardStats{Blocked: make(map[string]int64)},
		now:            time.Now,
	}
}

// Admit evaluates one signal. It never returns an error: every failure
// mode inside the pipeline resolves to a rejection or a degraded
// estimate, so callers always get a definite verdict.
func (g *Guard) Admit(ctx context.Context, sig Signal) Admission {
	g.tracker.SignalChecked()

	adm := g.evaluate(ctx, sig)
	adm.Sector = g.sectors.Sector(sig.Symbol)

	g.mu.Lock()
	g.stats.Checked++
	if adm.Approved {
		g.stats.Approved++
	} else {
		g.stats.Blocked[adm.Reason]++
	}
	g.mu.Unlock()

	if adm.Approved {
		g.tracker.SignalApproved()
		log.Info().
			Int64("user", sig.UserID).
			Str("symbol", sig.Symbol).
			Str("direction", sig.Direction).
			Str("group", adm.Group).
			Float64("size_multiplier", adm.SizeMultiplier).
			Msg("signal admitted")
	} else {
		g.tracker.SignalBlocked(adm.Reason)
		log.Info().
			Int64("user", sig.UserID).
			Str("symbol", sig.Symbol).
			Str("reason", adm.Reason).
			Str("detail", adm.Detail).
			Msg("signal blocked")
	}

	if g.recorder != nil {
		if err := g.recorder.RecordAdmission(sig, adm); err != nil {
			log.Warn().Err(err).Msg("failed to persist admission record")
		}
	}
	return adm
}

func (g *Guard) evaluate(ctx context.Context, sig Signal) Admission {
	now := sig.At
	if now.IsZero() {
		now = g.now()
	}
	btc := common.AnchorSymbols[0]

	// Step 1: fast-market kill switch. When short-window correlation
	// against BTC spikes, the whole market is moving as one and new
	// exposure is refused outright.
	if sig.Symbol != btc {
		fast := g.estimator.FastCorrelation(ctx, sig.Symbol, btc)
		if fast > g.panicThreshold {
			return Admission{
				Reason:         common.ReasonFastMarketPanic,
				Detail:         fmt.Sprintf("fast BTC correlation %.2f exceeds %.2f", fast, g.panicThreshold),
				SizeMultiplier: 0,
			}
		}
	}

	open := g.book.UserPositions(sig.UserID)

	// Step 2: sector concentration.
	sector := g.sectors.Sector(sig.Symbol)
	inSector := 0
	for _, p := range open {
		if p.Sector == sector {
			inSector++
		}
	}
	if limit := g.sectors.Limit(sector); inSector >= limit {
		return Admission{
			Reason: common.ReasonSectorLimit,
			Detail: fmt.Sprintf("%d open positions in sector %s (limit %d)", inSector, sector, limit),
		}
	}

	// Step 3: same-symbol direction. An opposite-direction signal on an
	// open symbol is a flip attempt and must close the position first.
	if existing := g.book.Get(sig.UserID, sig.Symbol); existing != nil && existing.Direction != sig.Direction {
		return Admission{
			Reason: common.ReasonOppositeDirection,
			Detail: fmt.Sprintf("open %s position on %s", existing.Direction, sig.Symbol),
		}
	}

	// Step 4: correlation against open exposure. Anything above the
	// high threshold is duplicate risk regardless of direction; below
	// it the size penalty trims instead of rejecting.
	maxCorr := 0.0
	for _, p := range open {
		if p.Symbol == sig.Symbol {
			continue
		}
		corr := g.estimator.Correlation(ctx, sig.Symbol, p.Symbol)
		if corr > maxCorr {
			maxCorr = corr
		}
		if corr >= g.highCorr {
			return Admission{
				Reason:             common.ReasonHighCorrelation,
				Detail:             fmt.Sprintf("correlation %.2f with open %s", corr, p.Symbol),
				MaxOpenCorrelation: corr,
			}
		}
	}

	// Step 5: group cooldown budget.
	group := g.classifier.Group(ctx, sig.Symbol)
	limit, ok := g.groupLimits[group]
	if !ok {
		limit = g.groupLimits[common.GroupOther]
	}
	recent := g.history.CountSince(group, now.Add(-limit.Cooldown), now)
	if recent >= limit.MaxSignals {
		return Admission{
			Reason: common.ReasonGroupLimitCooldown,
			Detail: fmt.Sprintf("%d signals for group %s within %v (limit %d)", recent, group, limit.Cooldown, limit.MaxSignals),
			Group:  group,
		}
	}

	return Admission{
		Approved:           true,
		Group:              group,
		SizeMultiplier:     SizePenalty(maxCorr),
		MaxOpenCorrelation: maxCorr,
	}
}

// RecordSignal charges an executed approval against its group's
// cooldown budget. Entries are keyed by user and symbol, so a repeated
// signal on the same asset does not inflate the count.
func (g *Guard) RecordSignal(sig Signal, adm Admission) {
	if !adm.Approved || adm.Group == "" {
		return
	}
	at := sig.At
	if at.IsZero() {
		at = g.now()
	}
	g.history.Record(adm.Group, fmt.Sprintf("%d|%s", sig.UserID, sig.Symbol), at)
}

// Stats returns a copy of the running admission counters.
func (g *Guard) Stats() GuardStats {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := GuardStats{
		Checked:  g.stats.Checked,
		Approved: g.stats.Approved,
		Blocked:  make(map[string]int64, len(g.stats.Blocked)),
	}
	for k, v := range g.stats.Blocked {
		out.Blocked[k] = v
	}
	return out
}
