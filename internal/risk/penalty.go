package risk

// SizePenalty maps the strongest correlation against open exposure to
// a position-size multiplier. The cut is nonlinear: near-duplicate
// exposure is cut hard, moderate overlap only trimmed.
func SizePenalty(maxCorrelation float64) float64 {
	abs := maxCorrelation
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs > 0.85:
		return 0.3
	case abs > 0.75:
		return 0.5
	case abs > 0.65:
		return 0.7
	case abs > 0.55:
		return 0.85
	default:
		return 1.0
	}
}
