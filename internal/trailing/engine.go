// Package trailing moves stop losses as positions run into profit.
// The engine evaluates one position against current market data and
// emits at most one stop update per tick. Stops are monotonic: they
// only ever tighten in the position's favor, enforced both here and by
// the position's own mutator.
package trailing

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"riskcore/internal/cfg"
	"riskcore/internal/common"
	"riskcore/internal/position"
	"riskcore/internal/series"
)

// Instruction is a stop update for the execution adapter.
type Instruction struct {
	Action  string
	UserID  int64
	Symbol  string
	NewStop float64
	Reason  string
}

// MarketData is the per-symbol snapshot a tick evaluates against.
type MarketData struct {
	Price   float64
	Candles series.Series // short-timeframe bars for the adaptive ratio
	Regime  string
}

// Tracker receives stop-move events for metrics.
type Tracker interface {
	StopMoved(kind string)
}

type nopTracker struct{}

func (nopTracker) StopMoved(string) {}

// Engine computes trailing stop updates.
type Engine struct {
	cfg     cfg.TrailingSettings
	tracker Tracker
	now     func() time.Time
}

func NewEngine(s cfg.Settings, tracker Tracker) *Engine {
	if tracker == nil {
		tracker = nopTracker{}
	}
	return &Engine{cfg: s.Trailing, tracker: tracker, now: time.Now}
}

// Evaluate inspects one position at the current price and returns a
// stop update when the stop should tighten. TP-progress trailing takes
// priority over the generic ATR trail; whichever fires first wins the
// tick. The position's price extremes are updated as a side effect.
func (e *Engine) Evaluate(p *position.Position, md MarketData) (Instruction, bool) {
	if p == nil || md.Price <= 0 {
		return Instruction{}, false
	}
	p.ObservePrice(md.Price)

	if p.TakeProfit1 > 0 {
		if ins, ok := e.tp1Trailing(p, md); ok {
			return ins, true
		}
		if p.TakeProfit2 > 0 {
			if ins, ok := e.tp2Trailing(p, md); ok {
				return ins, true
			}
		}
	}

	profit := p.ProfitPct(md.Price)
	if !p.TrailingActive {
		if profit < e.cfg.ActivationProfitPct {
			return Instruction{}, false
		}
		p.TrailingActive = true
		log.Info().
			Str("symbol", p.Symbol).
			Float64("profit_pct", profit).
			Msg("trailing activated")
	}

	return e.genericTrailing(p, md, profit)
}

// tp1Trailing pulls the stop along as price covers ground toward TP1.
// It engages at the activation progress fraction and scales the pulled
// distance by the adaptive ratio.
func (e *Engine) tp1Trailing(p *position.Position, md MarketData) (Instruction, bool) {
	long := p.Direction == common.DirectionLong
	// Past TP1 the TP2 leg takes over.
	if long && md.Price >= p.TakeProfit1 {
		return Instruction{}, false
	}
	if !long && md.Price <= p.TakeProfit1 {
		return Instruction{}, false
	}

	progress := p.TPProgress(md.Price, p.TakeProfit1)
	if progress < e.cfg.TP1Activation {
		return Instruction{}, false
	}

	ratio := adaptiveRatio(e.cfg, md.Candles, p.Direction, md.Price, e.now())
	pulled := progress * ratio

	var newStop float64
	if long {
		newStop = p.EntryPrice + (p.TakeProfit1-p.EntryPrice)*pulled
		if be := p.EntryPrice * 1.002; newStop < be {
			newStop = be
		}
		if atr, ok := series.ATR(md.Candles, indicatorPeriod); ok {
			if floor := md.Price - atr*e.cfg.MinATRMultiplier; newStop < floor {
				newStop = floor
			}
		}
	} else {
		newStop = p.EntryPrice - (p.EntryPrice-p.TakeProfit1)*pulled
		if be := p.EntryPrice * 0.998; newStop > be {
			newStop = be
		}
		if atr, ok := series.ATR(md.Candles, indicatorPeriod); ok {
			// Keep the stop at least an ATR buffer away from price.
			if ceil := md.Price + atr*e.cfg.MinATRMultiplier; newStop < ceil {
				newStop = ceil
			}
		}
	}

	return e.tighten(p, newStop, fmt.Sprintf("TP1 trailing: %.1f%% progress, ratio %.3f", progress*100, ratio), "tp1")
}

// tp2Trailing trails between TP1 and TP2 once price has cleared TP1.
func (e *Engine) tp2Trailing(p *position.Position, md MarketData) (Instruction, bool) {
	long := p.Direction == common.DirectionLong
	if long && (md.Price < p.TakeProfit1 || md.Price >= p.TakeProfit2) {
		return Instruction{}, false
	}
	if !long && (md.Price > p.TakeProfit1 || md.Price <= p.TakeProfit2) {
		return Instruction{}, false
	}

	var progress float64
	if long {
		progress = (md.Price - p.TakeProfit1) / (p.TakeProfit2 - p.TakeProfit1)
	} else {
		progress = (p.TakeProfit1 - md.Price) / (p.TakeProfit1 - p.TakeProfit2)
	}

	ratio := adaptiveRatio(e.cfg, md.Candles, p.Direction, md.Price, e.now())
	pulled := progress * ratio

	var newStop float64
	if long {
		newStop = p.TakeProfit1 + (p.TakeProfit2-p.TakeProfit1)*pulled
	} else {
		newStop = p.TakeProfit1 - (p.TakeProfit1-p.TakeProfit2)*pulled
	}

	return e.tighten(p, newStop, fmt.Sprintf("TP2 trailing: %.1f%% progress", progress*100), "tp2")
}

// genericTrailing trails off the tracked price extreme with an ATR
// scaled distance, floored at breakeven plus offset.
func (e *Engine) genericTrailing(p *position.Position, md MarketData, profit float64) (Instruction, bool) {
	distPct := e.cfg.MinTrailDistancePct
	if atr, ok := series.ATR(md.Candles, indicatorPeriod); ok && md.Price > 0 {
		atrPct := atr / md.Price * 100
		switch md.Regime {
		case common.RegimeHighVolRange:
			distPct = min(atrPct*2.0, e.cfg.MaxTrailDistancePct)
		case common.RegimeBullTrend:
			distPct = max(atrPct, e.cfg.MinTrailDistancePct)
		default:
			distPct = min(atrPct*1.5, e.cfg.MaxTrailDistancePct)
		}
	}

	var newStop float64
	if p.Direction == common.DirectionLong {
		newStop = p.HighestPrice * (1 - distPct/100)
		if be := p.BreakevenStop(e.cfg.BreakevenOffsetPct); newStop < be {
			newStop = be
		}
	} else {
		newStop = p.LowestPrice * (1 + distPct/100)
		if be := p.BreakevenStop(e.cfg.BreakevenOffsetPct); newStop > be {
			newStop = be
		}
	}

	return e.tighten(p, newStop, fmt.Sprintf("trailing: %.2f%% profit, %.2f%% distance", profit, distPct), "generic")
}

func (e *Engine) tighten(p *position.Position, newStop float64, reason, kind string) (Instruction, bool) {
	prev := p.StopLoss
	if !p.TightenStop(newStop, e.now()) {
		return Instruction{}, false
	}
	e.tracker.StopMoved(kind)
	log.Info().
		Str("symbol", p.Symbol).
		Float64("old_stop", prev).
		Float64("new_stop", newStop).
		Str("reason", reason).
		Msg("stop tightened")
	return Instruction{
		Action:  common.ActionUpdateStopLoss,
		UserID:  p.UserID,
		Symbol:  p.Symbol,
		NewStop: newStop,
		Reason:  reason,
	}, true
}
