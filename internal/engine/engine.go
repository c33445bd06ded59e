// Package engine drives the risk core: it admits incoming signals
// through the exposure guard, sizes approved ones, and on a fixed
// interval re-evaluates every open position for trailing stop moves
// and staged exits. Users are processed concurrently; positions within
// one user are processed in order.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"riskcore/internal/cfg"
	"riskcore/internal/common"
	"riskcore/internal/position"
	"riskcore/internal/profit"
	"riskcore/internal/risk"
	"riskcore/internal/series"
	"riskcore/internal/trailing"
)

// PriceSource supplies candles and last prices for tick evaluation.
type PriceSource interface {
	Klines(ctx context.Context, symbol, interval string, limit int) (series.Series, error)
	LastPrice(ctx context.Context, symbol string) (float64, error)
}

// Persister stores position snapshots between restarts. May be nil.
type Persister interface {
	SavePosition(p *position.Position) error
	DeletePosition(userID int64, symbol string) error
}

// Tracker receives engine-level events for metrics.
type Tracker interface {
	TickDone()
	EngineError()
	SetOpenPositions(n int)
}

type nopTracker struct{}

func (nopTracker) TickDone()            {}
func (nopTracker) EngineError()         {}
func (nopTracker) SetOpenPositions(int) {}

// TradeRequest is a signal plus the price levels the strategy wants.
type TradeRequest struct {
	risk.Signal
	EntryPrice  float64
	StopPrice   float64
	TakeProfit1 float64
	TakeProfit2 float64
	Balance     decimal.Decimal

	// Optional Kelly inputs from the caller's performance tracking.
	WinRate      float64
	WinLossRatio float64
}

// SubmitResult reports what happened to a trade request.
type SubmitResult struct {
	Admission risk.Admission
	Size      risk.SizeResult
	Position  *position.Position
}

// Engine wires the guard, sizer, trailing engine and profit
// coordinator over a shared position book.
type Engine struct {
	cfg         cfg.Settings
	guard       *risk.Guard
	sizer       *risk.Sizer
	trailer     *trailing.Engine
	coordinator *profit.Coordinator
	book        *position.Book
	source      PriceSource
	adapter     ExecutionAdapter
	persister   Persister
	tracker     Tracker

	budgetMu sync.Mutex
	budgets  map[int64]*risk.Budget

	priceMu sync.RWMutex
	prices  map[string]float64
}

// New assembles the engine. persister and tracker may be nil.
func New(s cfg.Settings, guard *risk.Guard, sizer *risk.Sizer, trailer *trailing.Engine, coordinator *profit.Coordinator, book *position.Book, source PriceSource, adapter ExecutionAdapter, persister Persister, tracker Tracker) *Engine {
	if tracker == nil {
		tracker = nopTracker{}
	}
	return &Engine{
		cfg:         s,
		guard:       guard,
		sizer:       sizer,
		trailer:     trailer,
		coordinator: coordinator,
		book:        book,
		source:      source,
		adapter:     adapter,
		persister:   persister,
		tracker:     tracker,
		budgets:     make(map[int64]*risk.Budget),
		prices:      make(map[string]float64),
	}
}

// Budget returns the tracked budget for a user, creating one with the
// given balance on first use.
func (e *Engine) Budget(userID int64, initial decimal.Decimal) *risk.Budget {
	e.budgetMu.Lock()
	defer e.budgetMu.Unlock()
	b, ok := e.budgets[userID]
	if !ok {
		b = risk.NewBudget(userID, initial)
		e.budgets[userID] = b
	}
	return b
}

// SetPrice feeds a live last price from the stream. Tick evaluation
// prefers streamed prices over REST lookups.
func (e *Engine) SetPrice(symbol string, price float64) {
	if price <= 0 {
		return
	}
	e.priceMu.Lock()
	e.prices[symbol] = price
	e.priceMu.Unlock()
}

func (e *Engine) lastPrice(ctx context.Context, symbol string) (float64, error) {
	e.priceMu.RLock()
	price, ok := e.prices[symbol]
	e.priceMu.RUnlock()
	if ok {
		return price, nil
	}
	return e.source.LastPrice(ctx, symbol)
}

// Submit runs a trade request through admission and sizing, opens the
// position on approval and persists it. A rejection is not an error;
// the zero SubmitResult carries the reason.
func (e *Engine) Submit(ctx context.Context, req TradeRequest) (SubmitResult, error) {
	adm := e.guard.Admit(ctx, req.Signal)
	result := SubmitResult{Admission: adm}
	if !adm.Approved {
		return result, nil
	}

	budget := e.Budget(req.UserID, req.Balance)
	if req.Balance.GreaterThan(decimal.Zero) {
		budget.SetBalance(req.Balance)
	}

	size, err := e.sizer.Size(risk.SizeRequest{
		Balance:        budget.Balance(),
		EntryPrice:     req.EntryPrice,
		StopPrice:      req.StopPrice,
		Confidence:     req.Confidence,
		Regime:         req.Regime,
		WinRate:        req.WinRate,
		WinLossRatio:   req.WinLossRatio,
		DrawdownPct:    budget.DrawdownPct(),
		SizeMultiplier: adm.SizeMultiplier,
	})
	if err != nil {
		return result, fmt.Errorf("sizing failed: %w", err)
	}
	result.Size = size

	at := req.At
	if at.IsZero() {
		at = time.Now()
	}
	pos, err := position.New(req.UserID, req.Symbol, req.Direction, req.EntryPrice, size.Quantity, req.StopPrice, req.TakeProfit1, req.TakeProfit2, at)
	if err != nil {
		return result, fmt.Errorf("invalid position: %w", err)
	}
	pos.Sector = adm.Sector
	pos.Group = adm.Group
	pos.Regime = req.Regime

	if err := e.book.Open(pos); err != nil {
		return result, err
	}
	result.Position = pos
	e.guard.RecordSignal(req.Signal, adm)
	e.tracker.SetOpenPositions(e.book.Count())

	if e.persister != nil {
		if err := e.persister.SavePosition(pos); err != nil {
			log.Warn().Err(err).Str("symbol", pos.Symbol).Msg("failed to persist position")
		}
	}
	return result, nil
}

// Run evaluates all open positions every poll interval until ctx is
// done.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	log.Info().Dur("interval", e.cfg.PollInterval).Msg("engine started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("engine stopped")
			return ctx.Err()
		case <-ticker.C:
			e.Tick(ctx)
		}
	}
}

// Tick evaluates every user's positions once. Users run concurrently;
// per-user evaluation is sequential so stop updates for one position
// stay ordered.
func (e *Engine) Tick(ctx context.Context) {
	var wg sync.WaitGroup
	for _, userID := range e.book.Users() {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			e.tickUser(ctx, userID)
		}(userID)
	}
	wg.Wait()
	e.tracker.SetOpenPositions(e.book.Count())
	e.tracker.TickDone()
}

func (e *Engine) tickUser(ctx context.Context, userID int64) {
	for _, p := range e.book.UserPositions(userID) {
		if err := e.evaluatePosition(ctx, p); err != nil {
			e.tracker.EngineError()
			log.Warn().Err(err).
				Int64("user", userID).
				Str("symbol", p.Symbol).
				Msg("position evaluation failed")
		}
	}
}

func (e *Engine) evaluatePosition(ctx context.Context, p *position.Position) error {
	fetchCtx, cancel := context.WithTimeout(ctx, e.cfg.RESTTimeout)
	defer cancel()

	price, err := e.lastPrice(fetchCtx, p.Symbol)
	if err != nil {
		return fmt.Errorf("no price for %s: %w", p.Symbol, err)
	}

	// Candles are best effort: without them trailing falls back to its
	// static ratio and fixed distance.
	candles, err := e.source.Klines(fetchCtx, p.Symbol, common.IntervalFast, e.cfg.FastCorrBars)
	if err != nil {
		log.Debug().Err(err).Str("symbol", p.Symbol).Msg("kline fetch failed, trailing degrades to static")
		candles = nil
	}

	// Staged exits first: a TP hit takes priority over tightening the
	// stop on the same tick.
	for _, act := range e.coordinator.Evaluate(p, price, candles) {
		if err := e.adapter.ApplyExit(ctx, act); err != nil {
			return fmt.Errorf("exit %s failed: %w", act.Type, err)
		}
		if act.RemovePosition {
			e.book.Close(p.UserID, p.Symbol)
			if e.persister != nil {
				if err := e.persister.DeletePosition(p.UserID, p.Symbol); err != nil {
					log.Warn().Err(err).Str("symbol", p.Symbol).Msg("failed to delete persisted position")
				}
			}
			return nil
		}
	}

	if ins, ok := e.trailer.Evaluate(p, trailing.MarketData{Price: price, Candles: candles, Regime: p.Regime}); ok {
		if err := e.adapter.ApplyStop(ctx, ins); err != nil {
			return fmt.Errorf("stop update failed: %w", err)
		}
	}

	if e.persister != nil {
		if err := e.persister.SavePosition(p); err != nil {
			log.Warn().Err(err).Str("symbol", p.Symbol).Msg("failed to persist position")
		}
	}
	return nil
}

// Restore loads persisted positions into the book on startup.
func (e *Engine) Restore(positions []*position.Position) {
	for _, p := range positions {
		if err := e.book.Open(p); err != nil {
			log.Warn().Err(err).Str("symbol", p.Symbol).Msg("skipping duplicate persisted position")
		}
	}
	e.tracker.SetOpenPositions(e.book.Count())
}
