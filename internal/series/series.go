// Package series provides OHLCV candle series and the statistical
// primitives the risk core derives from them: percentage returns,
// Pearson correlation, ATR, directional movement (ADX) and moving
// average slope. Series are read-only views over data fetched by a
// price provider; nothing in this package mutates candles.
package series

import (
	"math"
	"time"
)

// Candle is one OHLCV bar.
type Candle struct {
	OpenTime time.Time `json:"openTime"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// Series is an ordered sequence of candles for one symbol at one
// timeframe, oldest first.
type Series []Candle

// Tail returns the most recent n candles (the whole series if shorter).
func (s Series) Tail(n int) Series {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// Closes extracts close prices in order.
func (s Series) Closes() []float64 {
	out := make([]float64, len(s))
	for i, c := range s {
		out[i] = c.Close
	}
	return out
}

// Returns computes percentage returns between consecutive closes.
// A zero previous close yields a zero return rather than Inf.
func Returns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	out := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		prev := closes[i-1]
		if prev == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, (closes[i]-prev)/prev)
	}
	return out
}

// Pearson computes the Pearson correlation coefficient of two equal
// length samples. ok is false when the inputs are too short, mismatched
// or degenerate (zero variance), in which case the caller must fall
// back to an estimate.
func Pearson(a, b []float64) (corr float64, ok bool) {
	n := len(a)
	if n != len(b) || n < 2 {
		return 0, false
	}
	var sumA, sumB float64
	for i := 0; i < n; i++ {
		sumA += a[i]
		sumB += b[i]
	}
	meanA := sumA / float64(n)
	meanB := sumB / float64(n)

	var cov, varA, varB float64
	for i := 0; i < n; i++ {
		da := a[i] - meanA
		db := b[i] - meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}
	if varA == 0 || varB == 0 {
		return 0, false
	}
	corr = cov / math.Sqrt(varA*varB)
	if math.IsNaN(corr) || math.IsInf(corr, 0) {
		return 0, false
	}
	// Clamp rounding spill outside [-1, 1].
	if corr > 1 {
		corr = 1
	} else if corr < -1 {
		corr = -1
	}
	return corr, true
}

// StdDev is the population standard deviation of a sample.
func StdDev(xs []float64) float64 {
	n := len(xs)
	if n == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(n)
	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	v := ss / float64(n)
	if v <= 0 {
		return 0
	}
	return math.Sqrt(v)
}

// Mean of a sample; zero for an empty one.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
