package profit

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"riskcore/internal/cfg"
	"riskcore/internal/common"
	"riskcore/internal/position"
	"riskcore/internal/series"
)

type stubDetector struct{ exhausted bool }

func (d stubDetector) Exhausted(string, string, float64, series.Series) bool { return d.exhausted }

func profitSettings() cfg.Settings {
	return cfg.Settings{
		Profit: cfg.ProfitSettings{
			TP1SplitPct:        50,
			MinPositionUSD:     50,
			BreakevenOffsetPct: 0.3,
		},
	}
}

func newLong(t *testing.T, qty float64) *position.Position {
	t.Helper()
	p, err := position.New(1, "BTCUSDT", common.DirectionLong, 100, decimal.NewFromFloat(qty), 95, 110, 120, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestTP1PartialClose(t *testing.T) {
	t.Parallel()

	c := NewCoordinator(profitSettings(), nil, nil)
	p := newLong(t, 10)

	actions := c.Evaluate(p, 110, nil)
	if len(actions) != 2 {
		t.Fatalf("expected partial close + breakeven move, got %d actions", len(actions))
	}
	if actions[0].Type != common.ActionTP1PartialClose {
		t.Errorf("first action = %q, want %q", actions[0].Type, common.ActionTP1PartialClose)
	}
	if !actions[0].Quantity.Equal(decimal.NewFromInt(5)) {
		t.Errorf("closed quantity = %s, want 5", actions[0].Quantity)
	}
	if actions[1].Type != common.ActionMoveSLToBreakeven {
		t.Errorf("second action = %q, want %q", actions[1].Type, common.ActionMoveSLToBreakeven)
	}
	if math.Abs(actions[1].NewStop-100.3) > 1e-9 {
		t.Errorf("breakeven stop = %f, want 100.3", actions[1].NewStop)
	}

	if !p.Quantity.Equal(decimal.NewFromInt(5)) {
		t.Errorf("remaining quantity = %s, want 5", p.Quantity)
	}
	if !p.TP1Executed || !p.BreakevenMoved {
		t.Error("TP1 and breakeven flags should be set")
	}

	// A re-delivered tick at the same price must be a no-op.
	if again := c.Evaluate(p, 110, nil); len(again) != 0 {
		t.Errorf("second TP1 evaluation should be empty, got %d actions", len(again))
	}
}

func TestTP1RemainderBelowMinimumClosesFully(t *testing.T) {
	t.Parallel()

	c := NewCoordinator(profitSettings(), nil, nil)
	// Half of 0.8 at $110 is $44 notional, below the $50 floor.
	p := newLong(t, 0.8)

	actions := c.Evaluate(p, 110, nil)
	if len(actions) != 1 {
		t.Fatalf("expected a single full close, got %d actions", len(actions))
	}
	if actions[0].Type != common.ActionTP2FullClose {
		t.Errorf("action = %q, want %q", actions[0].Type, common.ActionTP2FullClose)
	}
	if !actions[0].RemovePosition {
		t.Error("full close should remove the position")
	}
	if !actions[0].Quantity.Equal(decimal.NewFromFloat(0.8)) {
		t.Errorf("closed quantity = %s, want 0.8", actions[0].Quantity)
	}
}

func TestTP2FullClose(t *testing.T) {
	t.Parallel()

	c := NewCoordinator(profitSettings(), nil, nil)
	p := newLong(t, 10)

	// TP1 fires first and halves the position.
	c.Evaluate(p, 110, nil)

	actions := c.Evaluate(p, 120, nil)
	if len(actions) != 1 {
		t.Fatalf("expected a full close, got %d actions", len(actions))
	}
	if actions[0].Type != common.ActionTP2FullClose {
		t.Errorf("action = %q, want %q", actions[0].Type, common.ActionTP2FullClose)
	}
	if !actions[0].Quantity.Equal(decimal.NewFromInt(5)) {
		t.Errorf("closed quantity = %s, want remaining 5", actions[0].Quantity)
	}
	if !actions[0].RemovePosition {
		t.Error("full close should remove the position")
	}

	// Anything after TP2 is a no-op.
	if again := c.Evaluate(p, 125, nil); len(again) != 0 {
		t.Errorf("post-TP2 evaluation should be empty, got %d actions", len(again))
	}
}

func TestTP2StraightThrough(t *testing.T) {
	t.Parallel()

	c := NewCoordinator(profitSettings(), nil, nil)
	p := newLong(t, 10)

	// A gap straight through both targets closes everything at once.
	actions := c.Evaluate(p, 121, nil)
	if len(actions) != 1 {
		t.Fatalf("expected a single full close, got %d actions", len(actions))
	}
	if actions[0].Type != common.ActionTP2FullClose {
		t.Errorf("action = %q, want %q", actions[0].Type, common.ActionTP2FullClose)
	}
	if !actions[0].Quantity.Equal(decimal.NewFromInt(10)) {
		t.Errorf("closed quantity = %s, want the full 10", actions[0].Quantity)
	}
}

func TestTP1Short(t *testing.T) {
	t.Parallel()

	c := NewCoordinator(profitSettings(), nil, nil)
	p, err := position.New(1, "ETHUSDT", common.DirectionShort, 100, decimal.NewFromInt(10), 105, 90, 80, time.Now())
	if err != nil {
		t.Fatal(err)
	}

	actions := c.Evaluate(p, 90, nil)
	if len(actions) != 2 {
		t.Fatalf("expected partial close + breakeven move, got %d actions", len(actions))
	}
	if math.Abs(actions[1].NewStop-99.7) > 1e-9 {
		t.Errorf("short breakeven stop = %f, want 99.7", actions[1].NewStop)
	}
}

func TestExhaustionPartialBeforeTP1(t *testing.T) {
	t.Parallel()

	c := NewCoordinator(profitSettings(), stubDetector{exhausted: true}, nil)
	p := newLong(t, 10)

	actions := c.Evaluate(p, 105, nil)
	if len(actions) != 1 {
		t.Fatalf("expected an exhaustion partial, got %d actions", len(actions))
	}
	if actions[0].Type != common.ActionExhaustionPartial {
		t.Errorf("action = %q, want %q", actions[0].Type, common.ActionExhaustionPartial)
	}
	if !actions[0].Quantity.Equal(decimal.NewFromInt(5)) {
		t.Errorf("closed quantity = %s, want 5", actions[0].Quantity)
	}
	if actions[0].RemovePosition {
		t.Error("partial exhaustion exit keeps the position open")
	}
	if p.TP1Executed {
		t.Error("exhaustion partial must leave the TP1 flag for the real TP1 cross")
	}
	if !p.ExhaustionDone {
		t.Error("exhaustion flag should be set")
	}

	// A second exhausted tick takes nothing more off.
	if again := c.Evaluate(p, 104, nil); len(again) != 0 {
		t.Errorf("repeated exhaustion before TP1 should be a no-op, got %d actions", len(again))
	}
}

func TestExhaustionIgnoredWhileLosing(t *testing.T) {
	t.Parallel()

	// Momentum flipping against an underwater position is what the stop
	// loss is for; no early exit fires at a loss.
	c := NewCoordinator(profitSettings(), stubDetector{exhausted: true}, nil)
	p := newLong(t, 10)

	if actions := c.Evaluate(p, 96, nil); len(actions) != 0 {
		t.Errorf("losing position should see no exhaustion exit, got %d actions", len(actions))
	}
	if p.ExhaustionDone || p.TP1Executed {
		t.Error("no flags should be set on a losing position")
	}
}

func TestTP1FiresAfterExhaustionPartial(t *testing.T) {
	t.Parallel()

	c := NewCoordinator(profitSettings(), stubDetector{exhausted: true}, nil)
	p := newLong(t, 10)

	c.Evaluate(p, 105, nil) // exhaustion partial, 5 remaining

	// The TP1 cross still runs the normal partial close and breakeven
	// move even though the detector stays exhausted.
	actions := c.Evaluate(p, 110, nil)
	if len(actions) != 2 {
		t.Fatalf("expected TP1 partial + breakeven move, got %d actions", len(actions))
	}
	if actions[0].Type != common.ActionTP1PartialClose {
		t.Errorf("first action = %q, want %q", actions[0].Type, common.ActionTP1PartialClose)
	}
	if !actions[0].Quantity.Equal(decimal.NewFromFloat(2.5)) {
		t.Errorf("closed quantity = %s, want 2.5", actions[0].Quantity)
	}
	if actions[1].Type != common.ActionMoveSLToBreakeven {
		t.Errorf("second action = %q, want %q", actions[1].Type, common.ActionMoveSLToBreakeven)
	}
	if !p.TP1Executed {
		t.Error("TP1 flag should now be set")
	}
}

func TestExhaustionFullAfterTP1(t *testing.T) {
	t.Parallel()

	c := NewCoordinator(profitSettings(), stubDetector{exhausted: true}, nil)
	p := newLong(t, 10)
	p.MarkTP1()

	actions := c.Evaluate(p, 105, nil)
	if len(actions) != 1 {
		t.Fatalf("expected an exhaustion full close, got %d actions", len(actions))
	}
	if actions[0].Type != common.ActionExhaustionFullClose {
		t.Errorf("action = %q, want %q", actions[0].Type, common.ActionExhaustionFullClose)
	}
	if !actions[0].RemovePosition {
		t.Error("full exhaustion exit should remove the position")
	}

	if again := c.Evaluate(p, 104, nil); len(again) != 0 {
		t.Errorf("repeated exhaustion should be a no-op, got %d actions", len(again))
	}
}

func TestEvaluateGuards(t *testing.T) {
	t.Parallel()

	c := NewCoordinator(profitSettings(), nil, nil)
	if actions := c.Evaluate(nil, 100, nil); actions != nil {
		t.Error("nil position should yield nothing")
	}
	p := newLong(t, 10)
	if actions := c.Evaluate(p, 0, nil); actions != nil {
		t.Error("zero price should yield nothing")
	}
	if actions := c.Evaluate(p, 105, nil); actions != nil {
		t.Error("price between entry and TP1 should yield nothing")
	}
}

func TestMomentumDetectorQuietWithoutData(t *testing.T) {
	t.Parallel()

	d := NewMomentumDetector()
	if d.Exhausted("BTCUSDT", common.DirectionLong, 100, nil) {
		t.Error("detector must stay quiet without candles")
	}
}

func TestMomentumDetectorFlagsRollover(t *testing.T) {
	t.Parallel()

	// A long uptrend that rolls over hard: -DI overtakes +DI and the
	// 20-bar average turns down.
	closes := make([]float64, 60)
	for i := range closes {
		if i < 30 {
			closes[i] = 100 + float64(i)*2
		} else {
			closes[i] = 160 - float64(i-30)*3
		}
	}
	s := make(series.Series, len(closes))
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		s[i] = series.Candle{
			OpenTime: base.Add(time.Duration(i) * 5 * time.Minute),
			High:     c + 1,
			Low:      c - 1,
			Close:    c,
		}
	}

	d := NewMomentumDetector()
	if !d.Exhausted("BTCUSDT", common.DirectionLong, closes[len(closes)-1], s) {
		t.Error("hard rollover should flag exhaustion for a long")
	}
	if d.Exhausted("BTCUSDT", common.DirectionShort, closes[len(closes)-1], s) {
		t.Error("a falling tape is not exhaustion for a short")
	}
}
