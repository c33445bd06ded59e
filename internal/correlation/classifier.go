package correlation

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog/log"

	"riskcore/internal/cfg"
	"riskcore/internal/common"
)

// GroupClassifier assigns each symbol to one correlation group based on
// its strongest correlation with the BTC/ETH/SOL anchors. Thresholds
// come from the advisory client so they can be tuned centrally without
// redeploying.
type GroupClassifier struct {
	estimator *Estimator
	advisory  *AdvisoryClient
	anchors   []string
}

func NewClassifier(estimator *Estimator, advisory *AdvisoryClient) *GroupClassifier {
	return &GroupClassifier{
		estimator: estimator,
		advisory:  advisory,
		anchors:   common.AnchorSymbols,
	}
}

// Group classifies a symbol. An anchor classifies into its own HIGH
// group. A symbol whose strongest anchor correlation falls below the
// low threshold lands in that anchor's INDEPENDENT group.
func (c *GroupClassifier) Group(ctx context.Context, symbol string) string {
	t := c.advisory.Thresholds(ctx)

	bestAnchor := ""
	bestAbs := -1.0
	for _, anchor := range c.anchors {
		corr := c.estimator.Correlation(ctx, symbol, anchor)
		if abs := math.Abs(corr); abs > bestAbs {
			bestAbs = abs
			bestAnchor = anchor
		}
	}
	if bestAnchor == "" {
		return common.GroupOther
	}

	group := bucket(BaseAsset(bestAnchor), bestAbs, t)
	log.Debug().
		Str("symbol", symbol).
		Str("anchor", bestAnchor).
		Float64("correlation", bestAbs).
		Str("group", group).
		Msg("classified symbol")
	return group
}

func bucket(anchor string, abs float64, t cfg.Thresholds) string {
	switch {
	case abs >= t.High:
		return fmt.Sprintf("%s_HIGH", anchor)
	case abs >= t.Medium:
		return fmt.Sprintf("%s_MEDIUM", anchor)
	case abs >= t.Low:
		return fmt.Sprintf("%s_LOW", anchor)
	default:
		return fmt.Sprintf("%s_INDEPENDENT", anchor)
	}
}
