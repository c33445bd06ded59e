package binance

import (
	"context"
	"fmt"
	"sync"

	"riskcore/internal/series"
)

// StaticProvider serves candles and prices from memory. It backs tests
// and the "static" provider mode, where the core evaluates risk against
// preloaded data without touching the network.
type StaticProvider struct {
	mu     sync.RWMutex
	klines map[string]series.Series // key: symbol + "|" + interval
	prices map[string]float64
}

func NewStatic() *StaticProvider {
	return &StaticProvider{
		klines: make(map[string]series.Series),
		prices: make(map[string]float64),
	}
}

// SetKlines installs a candle series for a symbol/interval pair.
func (p *StaticProvider) SetKlines(symbol, interval string, s series.Series) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.klines[symbol+"|"+interval] = s
}

// SetPrice installs the last price for a symbol.
func (p *StaticProvider) SetPrice(symbol string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[symbol] = price
}

func (p *StaticProvider) Klines(_ context.Context, symbol, interval string, limit int) (series.Series, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.klines[symbol+"|"+interval]
	if !ok {
		return nil, fmt.Errorf("no static klines for %s %s", symbol, interval)
	}
	return s.Tail(limit), nil
}

func (p *StaticProvider) LastPrice(_ context.Context, symbol string) (float64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	price, ok := p.prices[symbol]
	if !ok {
		return 0, fmt.Errorf("no static price for %s", symbol)
	}
	return price, nil
}
