package profit

import (
	"riskcore/internal/common"
	"riskcore/internal/series"
)

// MomentumDetector flags exhaustion when the directional movement
// lines flip against the position while the short moving average rolls
// over. It needs roughly 30 bars; with less data it stays quiet.
type MomentumDetector struct{}

func NewMomentumDetector() MomentumDetector { return MomentumDetector{} }

func (MomentumDetector) Exhausted(symbol, direction string, price float64, candles series.Series) bool {
	dm, ok := series.DirectionalMovement(candles, 14)
	if !ok {
		return false
	}
	slope, ok := series.MASlope(candles.Closes(), 20, 5)
	if !ok {
		return false
	}
	if direction == common.DirectionLong {
		return dm.PlusDI < dm.MinusDI && slope < 0
	}
	return dm.PlusDI > dm.MinusDI && slope > 0
}
