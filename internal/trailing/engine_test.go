package trailing

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

func trailingSettings() cfg.Settings {
	return cfg.Settings{
		Trailing: cfg.TrailingSettings{
			ActivationProfitPct: 1.0,
			MinTrailDistancePct: 0.5,
			MaxTrailDistancePct: 8.0,
			BreakevenOffsetPct:  0.3,
			TP1Activation:       0.5,
			MinRatio:            0.15,
			MaxRatio:            1.2,
			MinATRMultiplier:    2.0,
			ExtremeATRPct:       0.10,
			ExtremeATRRatioCap:  0.3,
			VolLow:              cfg.VolatilityBand{Threshold: 0.01, Ratio: 1.0},
			VolMedium:           cfg.VolatilityBand{Threshold: 0.025, Ratio: 0.8},
			VolHigh:             cfg.VolatilityBand{Threshold: 0.05, Ratio: 0.6},
			VolExtreme:          cfg.VolatilityBand{Threshold: 0.05, Ratio: 0.2},
		},
	}
}

func newLong(t *testing.T, stop, tp1, tp2 float64) *position.Position {
	t.Helper()
	p, err := position.New(1, "BTCUSDT", common.DirectionLong, 100, decimal.NewFromInt(1), stop, tp1, tp2, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func newShort(t *testing.T, stop, tp1, tp2 float64) *position.Position {
	t.Helper()
	p, err := position.New(1, "ETHUSDT", common.DirectionShort, 100, decimal.NewFromInt(1), stop, tp1, tp2, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestActivationThreshold(t *testing.T) {
	t.Parallel()

	e := NewEngine(trailingSettings(), nil)
	p := newLong(t, 95, 0, 0)

	if _, ok := e.Evaluate(p, MarketData{Price: 100.5}); ok {
		t.Error("0.5% profit is below the activation threshold")
	}
	if p.TrailingActive {
		t.Error("trailing should not activate below the threshold")
	}

	ins, ok := e.Evaluate(p, MarketData{Price: 101.5})
	if !ok {
		t.Fatal("1.5% profit should activate trailing and move the stop")
	}
	if !p.TrailingActive {
		t.Error("trailing should be active")
	}
	// Highest 101.5 trailed by the minimum 0.5% distance.
	if want := 101.5 * 0.995; math.Abs(ins.NewStop-want) > 1e-9 {
		t.Errorf("new stop = %f, want %f", ins.NewStop, want)
	}
	if ins.Action != common.ActionUpdateStopLoss {
		t.Errorf("action = %q, want %q", ins.Action, common.ActionUpdateStopLoss)
	}
}

func TestTP1TrailingLong(t *testing.T) {
	t.Parallel()

	e := NewEngine(trailingSettings(), nil)
	p := newLong(t, 95, 110, 120)

	// 60% of the way to TP1; with no candles the ratio is 1.0, so the
	// stop is pulled to entry + 60% of the TP1 distance.
	ins, ok := e.Evaluate(p, MarketData{Price: 106})
	if !ok {
		t.Fatal("60% TP1 progress should move the stop")
	}
	if math.Abs(ins.NewStop-106) > 1e-9 {
		t.Errorf("new stop = %f, want 106", ins.NewStop)
	}
	if p.StopLoss != ins.NewStop {
		t.Errorf("position stop = %f, want %f", p.StopLoss, ins.NewStop)
	}

	// Price retreats: progress drops below activation and the generic
	// trail cannot beat the existing stop. The stop must not loosen.
	if _, ok := e.Evaluate(p, MarketData{Price: 103}); ok {
		t.Error("retreating price must not move the stop")
	}
	if p.StopLoss != 106 {
		t.Errorf("stop loosened to %f", p.StopLoss)
	}
}

func TestTP1TrailingBelowActivationProgress(t *testing.T) {
	t.Parallel()

	e := NewEngine(trailingSettings(), nil)
	p := newLong(t, 95, 110, 120)

	// 30% progress is below the 50% TP1 activation, so the move comes
	// from the generic trail instead (3% profit clears its threshold).
	ins, ok := e.Evaluate(p, MarketData{Price: 103})
	if !ok {
		t.Fatal("generic trail should fire at 3% profit")
	}
	if want := 103 * 0.995; math.Abs(ins.NewStop-want) > 1e-9 {
		t.Errorf("new stop = %f, want %f", ins.NewStop, want)
	}
}

func TestTP1TrailingShort(t *testing.T) {
	t.Parallel()

	e := NewEngine(trailingSettings(), nil)
	p := newShort(t, 105, 90, 80)

	ins, ok := e.Evaluate(p, MarketData{Price: 94})
	if !ok {
		t.Fatal("60% TP1 progress should move the short stop")
	}
	if math.Abs(ins.NewStop-94) > 1e-9 {
		t.Errorf("new stop = %f, want 94", ins.NewStop)
	}
}

func TestTP1StopNeverBelowBreakeven(t *testing.T) {
	t.Parallel()

	s := trailingSettings()
	s.Trailing.TP1Activation = 0.1
	e := NewEngine(s, nil)
	p := newLong(t, 95, 110, 120)

	ins, ok := e.Evaluate(p, MarketData{Price: 101})
	if !ok {
		t.Fatal("10% progress should move the stop above the old 95")
	}
	if ins.NewStop < 100.2 {
		t.Errorf("stop %f below breakeven floor", ins.NewStop)
	}
}

func TestTP2TrailingLong(t *testing.T) {
	t.Parallel()

	e := NewEngine(trailingSettings(), nil)
	p := newLong(t, 95, 110, 120)
	// The run toward TP1 already tightened the stop to 108.
	if !p.TightenStop(108, time.Now()) {
		t.Fatal("setup stop move failed")
	}

	// Past TP1, halfway to TP2: stop pulls to TP1 + 50% of the leg.
	ins, ok := e.Evaluate(p, MarketData{Price: 115})
	if !ok {
		t.Fatal("TP2 leg should move the stop")
	}
	if math.Abs(ins.NewStop-115) > 1e-9 {
		t.Errorf("new stop = %f, want 115", ins.NewStop)
	}
}

func TestTP2TrailingShort(t *testing.T) {
	t.Parallel()

	e := NewEngine(trailingSettings(), nil)
	p := newShort(t, 105, 90, 80)
	if !p.TightenStop(92, time.Now()) {
		t.Fatal("setup stop move failed")
	}

	ins, ok := e.Evaluate(p, MarketData{Price: 85})
	if !ok {
		t.Fatal("short TP2 leg should move the stop")
	}
	if math.Abs(ins.NewStop-85) > 1e-9 {
		t.Errorf("new stop = %f, want 85", ins.NewStop)
	}
}

func TestGenericTrailingBreakevenFloor(t *testing.T) {
	t.Parallel()

	s := trailingSettings()
	s.Trailing.MinTrailDistancePct = 2.0
	e := NewEngine(s, nil)
	p := newLong(t, 95, 0, 0)

	// Highest 101 trailed by 2% lands at 98.98, below the breakeven
	// floor of 100.3, so the floor wins.
	ins, ok := e.Evaluate(p, MarketData{Price: 101})
	if !ok {
		t.Fatal("expected a stop move")
	}
	if math.Abs(ins.NewStop-100.3) > 1e-9 {
		t.Errorf("new stop = %f, want breakeven floor 100.3", ins.NewStop)
	}
}

func TestGenericTrailingRegimeDistance(t *testing.T) {
	t.Parallel()

	// Flat candles with a constant 2-point true range give ATR = 2
	// exactly, so each regime arm lands on a known stop.
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	candles := make(series.Series, 20)
	for i := range candles {
		candles[i] = series.Candle{
			OpenTime: base.Add(time.Duration(i) * 5 * time.Minute),
			High:     101,
			Low:      99,
			Close:    100,
		}
	}

	cases := []struct {
		regime   string
		wantStop float64
	}{
		{common.RegimeNormal, 107},       // 1.5 x ATR off the high
		{common.RegimeHighVolRange, 106}, // 2 x ATR, wider trail
		{common.RegimeBullTrend, 108},    // 1 x ATR, tightest
	}
	e := NewEngine(trailingSettings(), nil)
	for _, tc := range cases {
		p := newLong(t, 95, 0, 0)
		ins, ok := e.Evaluate(p, MarketData{Price: 110, Candles: candles, Regime: tc.regime})
		if !ok {
			t.Fatalf("%s: expected a stop move", tc.regime)
		}
		if math.Abs(ins.NewStop-tc.wantStop) > 1e-9 {
			t.Errorf("%s: new stop = %f, want %f", tc.regime, ins.NewStop, tc.wantStop)
		}
	}
}

func TestEvaluateNilAndBadPrice(t *testing.T) {
	t.Parallel()

	e := NewEngine(trailingSettings(), nil)
	if _, ok := e.Evaluate(nil, MarketData{Price: 100}); ok {
		t.Error("nil position should be a no-op")
	}
	p := newLong(t, 95, 0, 0)
	if _, ok := e.Evaluate(p, MarketData{Price: 0}); ok {
		t.Error("zero price should be a no-op")
	}
}

func TestAdaptiveRatioNoCandles(t *testing.T) {
	t.Parallel()

	s := trailingSettings()
	if got := adaptiveRatio(s.Trailing, nil, common.DirectionLong, 100, time.Now()); got != 1.0 {
		t.Errorf("ratio without candles = %f, want 1.0", got)
	}
}

func TestInterpolate(t *testing.T) {
	t.Parallel()

	if got := interpolate(0.0175, 0.01, 0.025, 1.0, 0.8); math.Abs(got-0.9) > 1e-9 {
		t.Errorf("midpoint = %f, want 0.9", got)
	}
	if got := interpolate(0.01, 0.01, 0.025, 1.0, 0.8); got != 1.0 {
		t.Errorf("left edge = %f, want 1.0", got)
	}
	if got := interpolate(0.5, 1, 1, 0.3, 0.9); got != 0.3 {
		t.Errorf("degenerate range should return y0, got %f", got)
	}
}

func TestTimeFactor(t *testing.T) {
	t.Parallel()

	// Tuesday midday: quiet hours, no weekday adjustment.
	tuesday := time.Date(2025, 3, 4, 12, 0, 0, 0, time.UTC)
	if got := timeFactor(tuesday); math.Abs(got-1.2) > 1e-9 {
		t.Errorf("tuesday midday = %f, want 1.2", got)
	}
	// Monday overnight: 0.7 * 0.9.
	monday := time.Date(2025, 3, 3, 23, 0, 0, 0, time.UTC)
	if got := timeFactor(monday); math.Abs(got-0.63) > 1e-9 {
		t.Errorf("monday overnight = %f, want 0.63", got)
	}
	// Friday session open: 0.8 * 1.1.
	friday := time.Date(2025, 3, 7, 9, 0, 0, 0, time.UTC)
	if got := timeFactor(friday); math.Abs(got-0.88) > 1e-9 {
		t.Errorf("friday open = %f, want 0.88", got)
	}
}
