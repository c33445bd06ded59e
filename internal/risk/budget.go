package risk

import (
	"sync"

	"github.com/shopspring/decimal"
)

// Budget tracks one user's balance and drawdown from peak. All
// arithmetic is decimal; drawdown only ratchets down when a new peak is
// made.
type Budget struct {
	mu          sync.Mutex
	userID      int64
	balance     decimal.Decimal
	peakBalance decimal.Decimal
	realizedPnL decimal.Decimal
}

func NewBudget(userID int64, balance decimal.Decimal) *Budget {
	return &Budget{userID: userID, balance: balance, peakBalance: balance}
}

// UserID identifies the budget's owner.
func (b *Budget) UserID() int64 { return b.userID }

// SetBalance replaces the tracked balance, updating the peak.
func (b *Budget) SetBalance(balance decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balance = balance
	if balance.GreaterThan(b.peakBalance) {
		b.peakBalance = balance
	}
}

// ApplyPnL folds a realized profit or loss into the balance.
func (b *Budget) ApplyPnL(pnl decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.realizedPnL = b.realizedPnL.Add(pnl)
	b.balance = b.balance.Add(pnl)
	if b.balance.GreaterThan(b.peakBalance) {
		b.peakBalance = b.balance
	}
}

// Balance returns the current balance.
func (b *Budget) Balance() decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balance
}

// Peak returns the highest balance seen.
func (b *Budget) Peak() decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.peakBalance
}

// Restore overwrites the tracked state from a persisted snapshot.
func (b *Budget) Restore(balance, peak, realized decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balance = balance
	b.peakBalance = peak
	b.realizedPnL = realized
}

// RealizedPnL returns the cumulative realized profit and loss.
func (b *Budget) RealizedPnL() decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.realizedPnL
}

// DrawdownPct is the percentage drop from the peak balance.
func (b *Budget) DrawdownPct() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.peakBalance.LessThanOrEqual(decimal.Zero) {
		return 0
	}
	dd := b.peakBalance.Sub(b.balance).
		Div(b.peakBalance).
		Mul(decimal.NewFromInt(100))
	f, _ := dd.Float64()
	if f < 0 {
		return 0
	}
	return f
}
