// Package profit coordinates staged exits: a partial close at the
// first take-profit with the stop moved to breakeven, a full close at
// the second, and an early exit when trend exhaustion is detected.
// Every action is guarded by a one-way flag on the position (TP1, TP2
// or exhaustion), so a re-delivered tick never emits the same close
// twice.
package profit

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"riskcore/internal/cfg"
	"riskcore/internal/common"
	"riskcore/internal/position"
	"riskcore/internal/series"
)

// Action is one exit instruction for the execution adapter.
type Action struct {
	Type     string
	UserID   int64
	Symbol   string
	Quantity decimal.Decimal
	NewStop  float64
	Reason   string

	// RemovePosition tells the caller to drop the position from the
	// book once the adapter confirms.
	RemovePosition bool
}

// ExhaustionDetector reports whether the move backing a position has
// run out. Implementations look at momentum, divergences or volume;
// the coordinator only cares about the verdict.
type ExhaustionDetector interface {
	Exhausted(symbol, direction string, price float64, candles series.Series) bool
}

// Tracker receives take-profit events for metrics.
type Tracker interface {
	ProfitEvent(kind string)
}

type nopTracker struct{}

func (nopTracker) ProfitEvent(string) {}

// Coordinator evaluates staged exits for one position per tick.
type Coordinator struct {
	cfg      cfg.ProfitSettings
	detector ExhaustionDetector
	tracker  Tracker
	now      func() time.Time
}

// NewCoordinator wires the coordinator. detector and tracker may be
// nil; without a detector the exhaustion override never fires.
func NewCoordinator(s cfg.Settings, detector ExhaustionDetector, tracker Tracker) *Coordinator {
	if tracker == nil {
		tracker = nopTracker{}
	}
	return &Coordinator{cfg: s.Profit, detector: detector, tracker: tracker, now: time.Now}
}

// Evaluate returns the exit actions due at the current price, in the
// order the adapter must apply them. A TP1 hit yields the partial
// close followed by the breakeven stop move in the same batch.
func (c *Coordinator) Evaluate(p *position.Position, price float64, candles series.Series) []Action {
	if p == nil || price <= 0 || p.TP2Executed {
		return nil
	}

	// Exhaustion only overrides while the position is in profit; a
	// losing position whose momentum has flipped is the stop loss's
	// problem, not an early-exit candidate.
	if c.detector != nil && p.ProfitPct(price) > 0 && c.detector.Exhausted(p.Symbol, p.Direction, price, candles) {
		if actions := c.exhaustionExit(p, price); len(actions) > 0 {
			return actions
		}
	}

	long := p.Direction == common.DirectionLong
	tp1Hit := p.TakeProfit1 > 0 && ((long && price >= p.TakeProfit1) || (!long && price <= p.TakeProfit1))
	tp2Hit := p.TakeProfit2 > 0 && ((long && price >= p.TakeProfit2) || (!long && price <= p.TakeProfit2))

	// TP2 straight through TP1: close everything, including the part a
	// missed TP1 would have taken.
	if tp2Hit {
		return c.fullClose(p, price)
	}
	if tp1Hit && !p.TP1Executed {
		return c.partialClose(p, price)
	}
	return nil
}

func (c *Coordinator) partialClose(p *position.Position, price float64) []Action {
	splitQty := p.Quantity.
		Mul(decimal.NewFromFloat(c.cfg.TP1SplitPct)).
		Div(decimal.NewFromInt(100)).
		Round(8)
	remaining := p.Quantity.Sub(splitQty)

	// A remainder too small to manage is not worth keeping open.
	if remaining.Mul(decimal.NewFromFloat(price)).LessThan(decimal.NewFromFloat(c.cfg.MinPositionUSD)) {
		log.Info().
			Str("symbol", p.Symbol).
			Str("remaining", remaining.String()).
			Msg("TP1 remainder below minimum, closing fully")
		return c.fullClose(p, price)
	}

	if !p.MarkTP1() {
		return nil
	}
	p.Quantity = remaining
	c.tracker.ProfitEvent("tp1")

	actions := []Action{{
		Type:     common.ActionTP1PartialClose,
		UserID:   p.UserID,
		Symbol:   p.Symbol,
		Quantity: splitQty,
		Reason:   fmt.Sprintf("TP1 hit at %.4f, closing %.0f%%", price, c.cfg.TP1SplitPct),
	}}

	if !p.BreakevenMoved {
		breakeven := p.BreakevenStop(c.cfg.BreakevenOffsetPct)
		p.TightenStop(breakeven, c.now())
		p.BreakevenMoved = true
		actions = append(actions, Action{
			Type:    common.ActionMoveSLToBreakeven,
			UserID:  p.UserID,
			Symbol:  p.Symbol,
			NewStop: p.StopLoss,
			Reason:  "stop to breakeven after TP1",
		})
	}

	log.Info().
		Str("symbol", p.Symbol).
		Str("closed", splitQty.String()).
		Str("remaining", p.Quantity.String()).
		Float64("breakeven_stop", p.StopLoss).
		Msg("TP1 partial close")
	return actions
}

func (c *Coordinator) fullClose(p *position.Position, price float64) []Action {
	if !p.MarkTP2() {
		return nil
	}
	p.MarkTP1()
	c.tracker.ProfitEvent("tp2")
	log.Info().
		Str("symbol", p.Symbol).
		Str("quantity", p.Quantity.String()).
		Float64("price", price).
		Msg("TP2 full close")
	return []Action{{
		Type:           common.ActionTP2FullClose,
		UserID:         p.UserID,
		Symbol:         p.Symbol,
		Quantity:       p.Quantity,
		Reason:         fmt.Sprintf("TP2 hit at %.4f", price),
		RemovePosition: true,
	}}
}

func (c *Coordinator) exhaustionExit(p *position.Position, price float64) []Action {
	if p.TP1Executed {
		if !p.MarkTP2() {
			return nil
		}
		c.tracker.ProfitEvent("exhaustion_full")
		log.Info().Str("symbol", p.Symbol).Float64("price", price).Msg("exhaustion full close")
		return []Action{{
			Type:           common.ActionExhaustionFullClose,
			UserID:         p.UserID,
			Symbol:         p.Symbol,
			Quantity:       p.Quantity,
			Reason:         "trend exhaustion after TP1",
			RemovePosition: true,
		}}
	}

	// One early partial per position, tracked apart from the TP flags
	// so a later TP1 cross still fires its own close and breakeven
	// move.
	if !p.MarkExhaustion() {
		return nil
	}
	splitQty := p.Quantity.
		Mul(decimal.NewFromFloat(c.cfg.TP1SplitPct)).
		Div(decimal.NewFromInt(100)).
		Round(8)
	p.Quantity = p.Quantity.Sub(splitQty)
	c.tracker.ProfitEvent("exhaustion_partial")
	log.Info().
		Str("symbol", p.Symbol).
		Str("closed", splitQty.String()).
		Float64("price", price).
		Msg("exhaustion partial close")
	return []Action{{
		Type:     common.ActionExhaustionPartial,
		UserID:   p.UserID,
		Symbol:   p.Symbol,
		Quantity: splitQty,
		Reason:   "trend exhaustion before TP1",
	}}
}
