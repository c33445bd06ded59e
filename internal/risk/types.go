// Package risk implements portfolio admission control and position
// sizing: the exposure guard that decides whether a signal may become a
// position, the correlation size penalty, the fixed-fractional and
// Kelly sizers, and the per-user risk budget.
package risk

import (
	"time"

	"github.com/shopspring/decimal"
)

// Signal is a candidate trade submitted for admission.
type Signal struct {
	UserID     int64
	Symbol     string
	Direction  string
	Confidence float64 // [0, 1]
	Regime     string
	At         time.Time
}

// Admission is the guard's verdict on a signal.
type Admission struct {
	Approved bool
	Reason   string // rejection reason, empty when approved
	Detail   string
	Group    string
	Sector   string

	// SizeMultiplier scales the position size down when the signal
	// correlates with existing exposure. 1.0 means no penalty.
	SizeMultiplier float64

	// MaxOpenCorrelation is the strongest correlation observed against
	// the user's open positions, for reporting.
	MaxOpenCorrelation float64
}

// SizeRequest asks the sizer for a position size.
type SizeRequest struct {
	Balance    decimal.Decimal
	EntryPrice float64
	StopPrice  float64
	Confidence float64
	Regime     string

	// Kelly inputs from recent performance; zero WinRate disables the
	// Kelly leg and the fixed-fractional size stands alone.
	WinRate      float64
	WinLossRatio float64

	// DrawdownPct is the user's current drawdown from peak balance.
	DrawdownPct float64

	// SizeMultiplier is the correlation penalty from admission.
	SizeMultiplier float64
}

// SizeResult is the sizer's output. Quantities and notionals are
// decimal so repeated scaling never accumulates float drift.
type SizeResult struct {
	Quantity    decimal.Decimal
	NotionalUSD decimal.Decimal
	RiskUSD     decimal.Decimal
	RiskPct     float64
	KellyUsed   bool
	Capped      bool
}
