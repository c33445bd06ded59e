package risk

import (
	"context"
	"fmt"
	"strings"

	"riskcore/internal/common"
	"riskcore/internal/correlation"
)

// RiskLevel grades portfolio correlation concentration.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// AnchorExposure summarizes one anchor's share of a user's book.
type AnchorExposure struct {
	Anchor         string
	HighGroupCount int
	AvgCorrelation float64
}

// PortfolioReport is the correlation risk summary for one user.
type PortfolioReport struct {
	UserID    int64
	Positions int
	Level     RiskLevel
	Anchors   []AnchorExposure
	Alerts    []string
}

// PortfolioRisk builds a correlation concentration report over a
// user's open book: per anchor, how many positions sit in the HIGH
// group and how strongly the book as a whole tracks that anchor.
func (g *Guard) PortfolioRisk(ctx context.Context, userID int64) PortfolioReport {
	open := g.book.UserPositions(userID)
	report := PortfolioReport{UserID: userID, Positions: len(open), Level: RiskLow}
	if len(open) == 0 {
		return report
	}

	worst := RiskLow
	for _, anchor := range common.AnchorSymbols {
		base := correlation.BaseAsset(anchor)
		exp := AnchorExposure{Anchor: base}
		var sum float64
		for _, p := range open {
			if strings.HasPrefix(p.Group, base+"_HIGH") {
				exp.HighGroupCount++
			}
			sum += g.estimator.Correlation(ctx, p.Symbol, anchor)
		}
		exp.AvgCorrelation = sum / float64(len(open))
		report.Anchors = append(report.Anchors, exp)

		level := anchorRiskLevel(exp)
		if riskRank(level) > riskRank(worst) {
			worst = level
		}
		switch level {
		case RiskCritical:
			report.Alerts = append(report.Alerts,
				fmt.Sprintf("CRITICAL: %d positions highly correlated with %s (avg %.2f)", exp.HighGroupCount, base, exp.AvgCorrelation))
		case RiskHigh:
			report.Alerts = append(report.Alerts,
				fmt.Sprintf("portfolio heavily tied to %s: avg correlation %.2f", base, exp.AvgCorrelation))
		}
	}
	report.Level = worst
	return report
}

func anchorRiskLevel(exp AnchorExposure) RiskLevel {
	switch {
	case exp.HighGroupCount >= 3 && exp.AvgCorrelation > 0.8:
		return RiskCritical
	case exp.HighGroupCount >= 2 || exp.AvgCorrelation > 0.7:
		return RiskHigh
	case exp.HighGroupCount >= 1 || exp.AvgCorrelation > 0.5:
		return RiskMedium
	default:
		return RiskLow
	}
}

func riskRank(l RiskLevel) int {
	switch l {
	case RiskCritical:
		return 3
	case RiskHigh:
		return 2
	case RiskMedium:
		return 1
	default:
		return 0
	}
}
