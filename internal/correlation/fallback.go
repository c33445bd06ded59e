package correlation

import "strings"

// Heuristic correlation estimates used when price history is missing or
// degenerate. Values reflect long-run behavior of the listed cohorts
// against each anchor.
var (
	btcMajors = map[string]bool{
		"ETH": true, "BNB": true, "SOL": true, "ADA": true, "DOT": true,
		"AVAX": true, "LTC": true, "LINK": true, "XRP": true,
	}
	defiTokens = map[string]bool{
		"UNI": true, "AAVE": true, "MKR": true, "COMP": true, "CRV": true,
		"DYDX": true, "SNX": true, "LDO": true, "SUSHI": true,
	}
	memeTokens = map[string]bool{
		"DOGE": true, "SHIB": true, "PEPE": true, "FLOKI": true,
		"BONK": true, "WIF": true, "POPCAT": true,
	}
	ethL2 = map[string]bool{
		"OP": true, "ARB": true, "MATIC": true, "STRK": true, "METIS": true,
	}
	solEcosystem = map[string]bool{
		"JTO": true, "JUP": true, "BONK": true, "WIF": true,
		"PYTH": true, "RAY": true, "ORCA": true,
	}
)

// Per-anchor default for pairs that match no cohort. BTC and ETH sit
// at the global moderate 0.50; the SOL book runs looser.
var anchorDefaults = []struct {
	anchor string
	value  float64
}{
	{"BTC", 0.50},
	{"ETH", 0.50},
	{"SOL", 0.40},
}

// FallbackCorrelation returns the heuristic estimate for a pair. Both
// orientations are tried against the cohort tables before any default
// applies, and anchor defaults resolve in a fixed priority order, so
// the result never depends on argument order. Unknown pairs land on a
// moderate 0.50, which keeps the guard conservative rather than
// permissive.
func FallbackCorrelation(a, b string) float64 {
	baseA, baseB := BaseAsset(a), BaseAsset(b)
	if baseA == baseB {
		return 1.0
	}
	if v, ok := cohortFallback(baseA, baseB); ok {
		return v
	}
	if v, ok := cohortFallback(baseB, baseA); ok {
		return v
	}
	for _, d := range anchorDefaults {
		if baseA == d.anchor || baseB == d.anchor {
			return d.value
		}
	}
	return 0.50
}

func cohortFallback(anchor, other string) (float64, bool) {
	switch anchor {
	case "BTC":
		switch {
		case btcMajors[other]:
			return 0.80, true
		case defiTokens[other]:
			return 0.65, true
		case memeTokens[other]:
			return 0.30, true
		}
	case "ETH":
		switch {
		case defiTokens[other]:
			return 0.85, true
		case ethL2[other]:
			return 0.75, true
		}
	case "SOL":
		if solEcosystem[other] {
			return 0.75, true
		}
	}
	return 0, false
}

// BaseAsset strips the quote suffix from a futures symbol, e.g.
// "ETHUSDT" -> "ETH".
func BaseAsset(symbol string) string {
	s := strings.ToUpper(symbol)
	for _, quote := range []string{"USDT", "BUSD", "USDC", "USD"} {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			return strings.TrimSuffix(s, quote)
		}
	}
	return s
}
