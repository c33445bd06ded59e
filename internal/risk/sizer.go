package risk

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"riskcore/internal/cfg"
)

// Sizer converts an admitted signal into a position size. The base leg
// is fixed-fractional risk against the stop distance; a fractional
// Kelly estimate from recent performance caps it when available.
// Money stays decimal end to end.
type Sizer struct {
	cfg cfg.SizingSettings
}

func NewSizer(s cfg.Settings) *Sizer {
	return &Sizer{cfg: s.Sizing}
}

// KellyFraction computes the fraction of capital to stake from win
// rate p and win/loss ratio b, scaled by the safety fraction. The raw
// Kelly value is clamped to [0, 1] before scaling; a negative edge
// yields zero.
func KellyFraction(winRate, winLossRatio, safety float64) float64 {
	if winLossRatio <= 0 || winRate <= 0 || winRate >= 1 {
		return 0
	}
	q := 1 - winRate
	f := (winRate*winLossRatio - q) / winLossRatio
	if f < 0 {
		f = 0
	} else if f > 1 {
		f = 1
	}
	return f * safety
}

// Size computes the position size for an admitted signal.
func (z *Sizer) Size(req SizeRequest) (SizeResult, error) {
	if req.Balance.LessThanOrEqual(decimal.Zero) {
		return SizeResult{}, fmt.Errorf("balance must be positive, got %s", req.Balance)
	}
	if req.EntryPrice <= 0 {
		return SizeResult{}, fmt.Errorf("entry price must be positive, got %f", req.EntryPrice)
	}
	stopDist := req.EntryPrice - req.StopPrice
	if stopDist < 0 {
		stopDist = -stopDist
	}
	if stopDist == 0 {
		// Stop at entry would divide by zero; assume the configured
		// minimum distance instead of refusing to size.
		stopDist = req.EntryPrice * z.cfg.MinStopDistPct / 100
	}

	riskPct := z.cfg.BaseRiskPct
	if mult, ok := z.cfg.RegimeMultipliers[req.Regime]; ok {
		riskPct *= mult
	}
	if req.SizeMultiplier > 0 {
		riskPct *= req.SizeMultiplier
	}
	if req.DrawdownPct >= z.cfg.DrawdownCutoffPct {
		riskPct *= z.cfg.DrawdownCutFactor
	}

	riskUSD := req.Balance.Mul(decimal.NewFromFloat(riskPct)).Div(decimal.NewFromInt(100))
	qty := riskUSD.Div(decimal.NewFromFloat(stopDist))

	result := SizeResult{RiskPct: riskPct, RiskUSD: riskUSD}

	// Fractional Kelly cap from recent performance.
	if req.WinRate > 0 {
		kellyF := KellyFraction(req.WinRate, req.WinLossRatio, z.cfg.KellyFraction)
		if req.Confidence > 0 {
			kellyF *= req.Confidence
		}
		if kellyF > 0 {
			kellyQty := req.Balance.
				Mul(decimal.NewFromFloat(kellyF)).
				Div(decimal.NewFromFloat(req.EntryPrice))
			if kellyQty.LessThan(qty) {
				qty = kellyQty
				result.KellyUsed = true
			}
		}
	}

	// Hard notional cap.
	entry := decimal.NewFromFloat(req.EntryPrice)
	maxNotional := req.Balance.Mul(decimal.NewFromFloat(z.cfg.MaxPositionPct)).Div(decimal.NewFromInt(100))
	if qty.Mul(entry).GreaterThan(maxNotional) {
		qty = maxNotional.Div(entry)
		result.Capped = true
	}

	result.Quantity = qty.Round(8)
	result.NotionalUSD = result.Quantity.Mul(entry).Round(8)

	log.Debug().
		Str("quantity", result.Quantity.String()).
		Str("notional", result.NotionalUSD.String()).
		Float64("risk_pct", result.RiskPct).
		Bool("kelly_used", result.KellyUsed).
		Bool("capped", result.Capped).
		Msg("position sized")
	return result, nil
}

// PerformanceSnapshot summarizes recent account behavior for adaptive
// risk adjustment.
type PerformanceSnapshot struct {
	WinRate          float64
	RecentVolatility float64 // stdev of recent returns
	Balance          decimal.Decimal
}

// AdaptiveRiskPct scales the base risk percentage by recent
// performance, volatility and account size, clamped to [0.5%, 5%].
func (z *Sizer) AdaptiveRiskPct(perf PerformanceSnapshot) float64 {
	pct := z.cfg.BaseRiskPct

	switch {
	case perf.WinRate > 0.6:
		pct *= 1.2
	case perf.WinRate > 0 && perf.WinRate < 0.4:
		pct *= 0.8
	}

	switch {
	case perf.RecentVolatility > 0.05:
		pct *= 0.7
	case perf.RecentVolatility > 0 && perf.RecentVolatility < 0.02:
		pct *= 1.1
	}

	if perf.Balance.GreaterThan(decimal.Zero) {
		switch {
		case perf.Balance.LessThan(decimal.NewFromInt(100)):
			pct *= 0.8
		case perf.Balance.GreaterThan(decimal.NewFromInt(10000)):
			pct *= 1.1
		}
	}

	if pct < 0.5 {
		pct = 0.5
	} else if pct > 5.0 {
		pct = 5.0
	}
	return pct
}
