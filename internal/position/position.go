// Package position holds the open-position records the risk core
// tracks between ticks and the book that indexes them per user. All
// mutation goes through validated methods so invariants (monotonic
// stops, price extremes, one-way take-profit flags) hold no matter who
// calls.
package position

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"riskcore/internal/common"
)

// Position is one tracked futures position.
type Position struct {
	UserID    int64
	Symbol    string
	Direction string // common.DirectionLong or DirectionShort
	Sector    string
	Group     string
	Regime    string // market regime reported with the admitting signal

	EntryPrice  float64
	Quantity    decimal.Decimal
	StopLoss    float64
	TakeProfit1 float64
	TakeProfit2 float64

	OpenedAt time.Time

	// Tracking state maintained tick by tick.
	HighestPrice   float64
	LowestPrice    float64
	TrailingActive bool
	BreakevenMoved bool
	TP1Executed    bool
	TP2Executed    bool
	ExhaustionDone bool
	StopMoves      int
	LastStopUpdate time.Time
	PartialCloses  int
}

// New validates and builds a position record.
func New(userID int64, symbol, direction string, entry float64, qty decimal.Decimal, stop, tp1, tp2 float64, openedAt time.Time) (*Position, error) {
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	if direction != common.DirectionLong && direction != common.DirectionShort {
		return nil, fmt.Errorf("invalid direction %q", direction)
	}
	if entry <= 0 {
		return nil, fmt.Errorf("entry price must be positive, got %f", entry)
	}
	if qty.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("quantity must be positive, got %s", qty)
	}
	if direction == common.DirectionLong {
		if stop > 0 && stop >= entry {
			return nil, fmt.Errorf("long stop %f must be below entry %f", stop, entry)
		}
		if tp1 > 0 && tp1 <= entry {
			return nil, fmt.Errorf("long TP1 %f must be above entry %f", tp1, entry)
		}
		if tp2 > 0 && tp1 > 0 && tp2 <= tp1 {
			return nil, fmt.Errorf("long TP2 %f must be above TP1 %f", tp2, tp1)
		}
	} else {
		if stop > 0 && stop <= entry {
			return nil, fmt.Errorf("short stop %f must be above entry %f", stop, entry)
		}
		if tp1 > 0 && tp1 >= entry {
			return nil, fmt.Errorf("short TP1 %f must be below entry %f", tp1, entry)
		}
		if tp2 > 0 && tp1 > 0 && tp2 >= tp1 {
			return nil, fmt.Errorf("short TP2 %f must be below TP1 %f", tp2, tp1)
		}
	}
	return &Position{
		UserID:       userID,
		Symbol:       symbol,
		Direction:    direction,
		EntryPrice:   entry,
		Quantity:     qty,
		StopLoss:     stop,
		TakeProfit1:  tp1,
		TakeProfit2:  tp2,
		OpenedAt:     openedAt,
		HighestPrice: entry,
		LowestPrice:  entry,
	}, nil
}

// ObservePrice folds a new price into the tracked extremes.
func (p *Position) ObservePrice(price float64) {
	if price <= 0 {
		return
	}
	if price > p.HighestPrice {
		p.HighestPrice = price
	}
	if price < p.LowestPrice || p.LowestPrice == 0 {
		p.LowestPrice = price
	}
}

// TightenStop moves the stop loss if and only if the candidate is
// strictly tighter in the position's favor: higher for longs, lower
// for shorts. It reports whether the stop actually moved.
func (p *Position) TightenStop(stop float64, now time.Time) bool {
	if stop <= 0 {
		return false
	}
	if p.Direction == common.DirectionLong {
		if p.StopLoss > 0 && stop <= p.StopLoss {
			return false
		}
	} else {
		if p.StopLoss > 0 && stop >= p.StopLoss {
			return false
		}
	}
	p.StopLoss = stop
	p.StopMoves++
	p.LastStopUpdate = now
	return true
}

// ProfitPct is the unrealized profit at price, in percent of entry,
// positive when the position is in the money.
func (p *Position) ProfitPct(price float64) float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	if p.Direction == common.DirectionLong {
		return (price - p.EntryPrice) / p.EntryPrice * 100
	}
	return (p.EntryPrice - price) / p.EntryPrice * 100
}

// TPProgress is the fraction of the way from entry to the given target
// the price has traveled, clamped to [0, +inf). Zero when no target.
func (p *Position) TPProgress(price, target float64) float64 {
	if target == 0 || p.EntryPrice == 0 || target == p.EntryPrice {
		return 0
	}
	var progress float64
	if p.Direction == common.DirectionLong {
		progress = (price - p.EntryPrice) / (target - p.EntryPrice)
	} else {
		progress = (p.EntryPrice - price) / (p.EntryPrice - target)
	}
	if progress < 0 {
		return 0
	}
	return progress
}

// BreakevenStop is the entry price padded by offsetPct in the
// position's favor, so a filled breakeven stop still covers fees.
func (p *Position) BreakevenStop(offsetPct float64) float64 {
	if p.Direction == common.DirectionLong {
		return p.EntryPrice * (1 + offsetPct/100)
	}
	return p.EntryPrice * (1 - offsetPct/100)
}

// MarkTP1 flags the first take-profit as executed. Idempotent.
func (p *Position) MarkTP1() bool {
	if p.TP1Executed {
		return false
	}
	p.TP1Executed = true
	p.PartialCloses++
	return true
}

// MarkExhaustion flags the one early partial close an exhaustion
// signal may take before TP1. Independent of the TP flags: a later TP1
// cross still fires normally. Idempotent.
func (p *Position) MarkExhaustion() bool {
	if p.ExhaustionDone {
		return false
	}
	p.ExhaustionDone = true
	p.PartialCloses++
	return true
}

// MarkTP2 flags the second take-profit as executed. Idempotent.
func (p *Position) MarkTP2() bool {
	if p.TP2Executed {
		return false
	}
	p.TP2Executed = true
	return true
}

// NotionalUSD is the position notional at the given price.
func (p *Position) NotionalUSD(price float64) decimal.Decimal {
	return p.Quantity.Mul(decimal.NewFromFloat(price))
}
