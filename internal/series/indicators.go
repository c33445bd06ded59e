package series

import "math"

// trueRange for a candle given the previous candle.
func trueRange(cur, prev Candle) float64 {
	hl := cur.High - cur.Low
	hc := math.Abs(cur.High - prev.Close)
	lc := math.Abs(cur.Low - prev.Close)
	return math.Max(hl, math.Max(hc, lc))
}

// ATR computes Wilder's Average True Range over the given period.
// ok is false when fewer than period+1 candles are available.
func ATR(s Series, period int) (float64, bool) {
	if period <= 0 || len(s) < period+1 {
		return 0, false
	}
	trs := make([]float64, 0, len(s)-1)
	for i := 1; i < len(s); i++ {
		trs = append(trs, trueRange(s[i], s[i-1]))
	}
	var sum float64
	for i := 0; i < period; i++ {
		sum += trs[i]
	}
	atr := sum / float64(period)
	for i := period; i < len(trs); i++ {
		atr = (atr*float64(period-1) + trs[i]) / float64(period)
	}
	return atr, true
}

// Directional holds the output of a directional movement calculation.
type Directional struct {
	ADX     float64
	PlusDI  float64
	MinusDI float64
}

// DirectionalMovement computes Wilder's ADX along with the final
// +DI/-DI values. ok is false before 2*period+1 candles are available,
// which is the minimum for a seeded ADX.
func DirectionalMovement(s Series, period int) (Directional, bool) {
	if period <= 0 || len(s) < 2*period+1 {
		return Directional{}, false
	}

	var tr, pdm, mdm float64
	var dxs []float64
	var plusDI, minusDI float64

	for i := 1; i < len(s); i++ {
		cur, prev := s[i], s[i-1]

		up := cur.High - prev.High
		down := prev.Low - cur.Low
		var p, m float64
		if up > down && up > 0 {
			p = up
		}
		if down > up && down > 0 {
			m = down
		}
		t := trueRange(cur, prev)

		if i <= period {
			tr += t
			pdm += p
			mdm += m
			if i == period {
				tr /= float64(period)
				pdm /= float64(period)
				mdm /= float64(period)
			}
			continue
		}

		fp := float64(period)
		tr = (tr*(fp-1) + t) / fp
		pdm = (pdm*(fp-1) + p) / fp
		mdm = (mdm*(fp-1) + m) / fp

		if tr == 0 {
			continue
		}
		plusDI = 100 * pdm / tr
		minusDI = 100 * mdm / tr
		den := plusDI + minusDI
		if den == 0 {
			continue
		}
		dxs = append(dxs, 100*math.Abs(plusDI-minusDI)/den)
	}

	if len(dxs) < period {
		return Directional{}, false
	}
	var adx float64
	for i := 0; i < period; i++ {
		adx += dxs[i]
	}
	adx /= float64(period)
	for i := period; i < len(dxs); i++ {
		adx = (adx*float64(period-1) + dxs[i]) / float64(period)
	}
	return Directional{ADX: adx, PlusDI: plusDI, MinusDI: minusDI}, true
}

// SMA is the simple moving average of the last period closes ending at
// index end (inclusive). ok is false when not enough data precedes end.
func SMA(closes []float64, end, period int) (float64, bool) {
	if period <= 0 || end < period-1 || end >= len(closes) {
		return 0, false
	}
	var sum float64
	for i := end - period + 1; i <= end; i++ {
		sum += closes[i]
	}
	return sum / float64(period), true
}

// MASlope returns the relative slope of a period-SMA over the last
// lookback bars: (ma_now - ma_then) / ma_then.
func MASlope(closes []float64, period, lookback int) (float64, bool) {
	last := len(closes) - 1
	maNow, ok := SMA(closes, last, period)
	if !ok {
		return 0, false
	}
	maThen, ok := SMA(closes, last-lookback, period)
	if !ok || maThen == 0 {
		return 0, false
	}
	return (maNow - maThen) / maThen, true
}

// RollingStdDev computes the standard deviation of each trailing
// window of size window over xs. Output has len(xs)-window+1 entries.
func RollingStdDev(xs []float64, window int) []float64 {
	if window <= 0 || len(xs) < window {
		return nil
	}
	out := make([]float64, 0, len(xs)-window+1)
	for i := window; i <= len(xs); i++ {
		out = append(out, StdDev(xs[i-window:i]))
	}
	return out
}
