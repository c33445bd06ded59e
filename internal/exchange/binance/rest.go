// Package binance provides the price data providers the risk core runs
// against: a REST kline client, a miniTicker websocket stream for live
// last prices, and a static in-memory provider for tests and degraded
// operation. All network calls carry bounded timeouts; callers are
// expected to fall back on stale or heuristic data when a fetch fails.
package binance

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"riskcore/internal/series"
)

// Client talks to the Binance futures REST API.
type Client struct {
	base string
	rest *resty.Client
}

// NewREST builds a kline client with the given base URL and per-request
// timeout.
func NewREST(base string, timeout time.Duration) *Client {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(5 * time.Second)
	}
	return &Client{base: base, rest: r}
}

// Klines fetches up to limit candles for symbol at the given interval,
// oldest first. The futures kline endpoint returns rows of the form
// [openTime, open, high, low, close, volume, closeTime, ...] with the
// prices as strings.
func (c *Client) Klines(ctx context.Context, symbol, interval string, limit int) (series.Series, error) {
	var rows [][]any
	resp, err := c.rest.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"symbol":   symbol,
			"interval": interval,
			"limit":    strconv.Itoa(limit),
		}).
		SetResult(&rows).
		Get(c.base + "/fapi/v1/klines")
	if err != nil {
		return nil, fmt.Errorf("kline request failed: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("kline API error: status %d, body: %s", resp.StatusCode(), resp.String())
	}

	out := make(series.Series, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			return nil, fmt.Errorf("malformed kline row: %d fields", len(row))
		}
		openTime, err := toFloat(row[0])
		if err != nil {
			return nil, fmt.Errorf("invalid open time: %w", err)
		}
		c := series.Candle{OpenTime: time.UnixMilli(int64(openTime))}
		for i, dst := range []*float64{&c.Open, &c.High, &c.Low, &c.Close, &c.Volume} {
			v, err := toFloat(row[i+1])
			if err != nil {
				return nil, fmt.Errorf("invalid kline field %d: %w", i+1, err)
			}
			*dst = v
		}
		out = append(out, c)
	}
	return out, nil
}

// LastPrice fetches the current mark price for one symbol.
func (c *Client) LastPrice(ctx context.Context, symbol string) (float64, error) {
	var result struct {
		MarkPrice float64 `json:"markPrice,string"`
	}
	resp, err := c.rest.R().
		SetContext(ctx).
		SetQueryParam("symbol", symbol).
		SetResult(&result).
		Get(c.base + "/fapi/v1/premiumIndex")
	if err != nil {
		return 0, fmt.Errorf("mark price request failed: %w", err)
	}
	if resp.StatusCode() != 200 {
		return 0, fmt.Errorf("mark price API error: status %d", resp.StatusCode())
	}
	if result.MarkPrice <= 0 {
		return 0, fmt.Errorf("invalid mark price %f for %s", result.MarkPrice, symbol)
	}
	return result.MarkPrice, nil
}

func toFloat(v any) (float64, error) {
	switch val := v.(type) {
	case string:
		if val == "" {
			return 0, fmt.Errorf("empty string")
		}
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, fmt.Errorf("failed to parse %q as float: %w", val, err)
		}
		return f, nil
	case float64:
		return val, nil
	case int64:
		return float64(val), nil
	case int:
		return float64(val), nil
	default:
		return 0, fmt.Errorf("value type %T is not convertible to float", v)
	}
}
