package trailing

import (
	"time"

	"riskcore/internal/cfg"
	"riskcore/internal/common"
	"riskcore/internal/series"
)

// Trend strength multipliers for the adaptive ratio. A strong aligned
// trend lets the stop trail loosely; a reversal against the position
// pulls it in hard.
const (
	trendStrong   = 1.3
	trendMedium   = 1.1
	trendWeak     = 1.0
	trendRanging  = 0.7
	trendReversal = 0.5
)

const indicatorPeriod = 14

// adaptiveRatio combines volatility, trend, regime and time-of-day
// factors into the progress ratio used for TP trailing. Weights:
// volatility 0.40, trend 0.30, regime 0.20, time 0.10. The result is
// constrained by the extreme-ATR cap and the configured ratio band.
func adaptiveRatio(t cfg.TrailingSettings, candles series.Series, direction string, price float64, now time.Time) float64 {
	if len(candles) == 0 || price <= 0 {
		return 1.0
	}

	vol := volatilityFactor(t, candles, price)
	trend := trendFactor(candles, direction)
	regime := regimeFactor(candles)
	tod := timeFactor(now)

	ratio := vol*0.40 + trend*0.30 + regime*0.20 + tod*0.10

	// Extreme ATR forces a conservative ratio regardless of the blend.
	if atr, ok := series.ATR(candles, indicatorPeriod); ok && price > 0 {
		if atr/price > t.ExtremeATRPct && ratio > t.ExtremeATRRatioCap {
			ratio = t.ExtremeATRRatioCap
		}
	}

	if ratio < t.MinRatio {
		ratio = t.MinRatio
	} else if ratio > t.MaxRatio {
		ratio = t.MaxRatio
	}
	return ratio
}

// volatilityFactor buckets combined volatility (0.7 ATR% + 0.3 return
// stdev) into the configured bands, interpolating between adjacent
// band ratios so the factor moves smoothly as volatility rises.
func volatilityFactor(t cfg.TrailingSettings, candles series.Series, price float64) float64 {
	atr, ok := series.ATR(candles, indicatorPeriod)
	if !ok || price <= 0 {
		return 0.7
	}
	atrPct := atr / price
	stdev := series.StdDev(series.Returns(candles.Closes()))
	combined := atrPct*0.7 + stdev*0.3

	low, med, high, extreme := t.VolLow, t.VolMedium, t.VolHigh, t.VolExtreme
	switch {
	case combined < low.Threshold:
		return low.Ratio
	case combined < med.Threshold:
		return interpolate(combined, low.Threshold, med.Threshold, low.Ratio, med.Ratio)
	case combined < high.Threshold:
		return interpolate(combined, med.Threshold, high.Threshold, med.Ratio, high.Ratio)
	default:
		return extreme.Ratio
	}
}

func interpolate(x, x0, x1, y0, y1 float64) float64 {
	if x1 <= x0 {
		return y0
	}
	progress := (x - x0) / (x1 - x0)
	return y0*(1-progress) + y1*progress
}

// trendFactor grades trend strength from ADX and moving-average
// alignment, then checks the DI lines against the position direction:
// a dominant DI on the wrong side means the trend is turning and the
// stop should tighten.
func trendFactor(candles series.Series, direction string) float64 {
	dm, ok := series.DirectionalMovement(candles, indicatorPeriod)
	if !ok {
		return trendWeak
	}

	closes := candles.Closes()
	alignment := 0.5
	fastSlope, fastOK := series.MASlope(closes, 20, 5)
	slowSlope, slowOK := series.MASlope(closes, 50, 5)
	if fastOK && slowOK && fastSlope*slowSlope > 0 {
		alignment = 1.0
	}

	var strength float64
	switch {
	case dm.ADX > 40 && alignment > 0.8:
		strength = trendStrong
	case dm.ADX > 25:
		strength = trendMedium
	case dm.ADX < 20:
		strength = trendRanging
	default:
		strength = trendWeak
	}

	if direction == common.DirectionLong && dm.PlusDI < dm.MinusDI {
		strength = trendReversal
	} else if direction == common.DirectionShort && dm.PlusDI > dm.MinusDI {
		strength = trendReversal
	}
	return strength
}

// regimeFactor compares current rolling return volatility to its
// window average: clustered high volatility trims the ratio, quiet
// tape loosens it.
func regimeFactor(candles series.Series) float64 {
	returns := series.Returns(candles.Closes())
	rolling := series.RollingStdDev(returns, 20)
	if len(rolling) == 0 {
		return 1.0
	}
	current := rolling[len(rolling)-1]
	avg := series.Mean(rolling)
	switch {
	case avg > 0 && current > avg*1.5:
		return 0.8
	case avg > 0 && current < avg*0.7:
		return 1.1
	default:
		return 1.0
	}
}

// timeFactor is conservative around session opens and overnight, and
// slightly looser into the end of the week.
func timeFactor(now time.Time) float64 {
	hour := now.UTC().Hour()
	var mult float64
	switch {
	case hour == 9 || hour == 10 || hour == 16 || hour == 17:
		mult = 0.8
	case hour >= 22 || hour <= 4:
		mult = 0.7
	default:
		mult = 1.2
	}

	switch now.UTC().Weekday() {
	case time.Monday:
		mult *= 0.9
	case time.Friday, time.Saturday, time.Sunday:
		mult *= 1.1
	}
	return mult
}
