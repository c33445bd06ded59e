package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Ticker is one last-price update from the miniTicker stream.
type Ticker struct {
	Symbol string
	Price  float64
	Ts     time.Time
}

// WS streams miniTicker last prices over the futures websocket.
type WS struct{ url string }

func NewWS(u string) WS { return WS{u} }

// Stream subscribes to the miniTicker channel for the given symbols and
// pushes updates until ctx is done, reconnecting with exponential
// backoff on failure. Delivery errors are reported on the errors
// channel without blocking.
func (w WS) Stream(ctx context.Context, symbols []string, ticks chan<- Ticker, errors chan<- error) error {
	backoff := time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if err := w.streamOnce(ctx, symbols, ticks, errors); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Warn().Err(err).Dur("backoff", backoff).Msg("price stream disconnected, reconnecting")
				select {
				case errors <- fmt.Errorf("ws reconnect: %w", err):
				default:
				}
				select {
				case <-time.After(backoff):
				case <-ctx.Done():
					return ctx.Err()
				}
				backoff *= 2
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
				continue
			}
			backoff = time.Second
		}
	}
}

func (w WS) streamOnce(ctx context.Context, symbols []string, ticks chan<- Ticker, errors chan<- error) error {
	log.Info().Str("url", w.url).Int("symbols", len(symbols)).Msg("connecting price stream")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}
	defer conn.Close()

	conn.SetReadLimit(512 * 1024)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(90 * time.Second))
	})

	params := make([]string, 0, len(symbols))
	for _, s := range symbols {
		params = append(params, strings.ToLower(s)+"@miniTicker")
	}
	sub := map[string]any{"method": "SUBSCRIBE", "params": params, "id": 1}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("subscribe failed: %w", err)
	}

	pingTicker := time.NewTicker(3 * time.Minute)
	defer pingTicker.Stop()

	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case <-ctx.Done():
				conn.Close()
				return
			case <-done:
				return
			case <-pingTicker.C:
				conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					conn.Close()
					return
				}
			}
		}
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(90 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read message failed: %w", err)
		}

		var raw struct {
			Event  string `json:"e"`
			Symbol string `json:"s"`
			Close  string `json:"c"`
			Time   int64  `json:"E"`
		}
		if err := json.Unmarshal(msg, &raw); err != nil {
			log.Debug().Err(err).Msg("failed to parse stream message")
			continue
		}
		if raw.Event != "24hrMiniTicker" {
			continue
		}
		price, err := strconv.ParseFloat(raw.Close, 64)
		if err != nil || price <= 0 {
			select {
			case errors <- fmt.Errorf("bad miniTicker price %q for %s", raw.Close, raw.Symbol):
			default:
			}
			continue
		}

		tick := Ticker{Symbol: raw.Symbol, Price: price, Ts: time.UnixMilli(raw.Time)}
		select {
		case ticks <- tick:
		default:
			log.Warn().Str("symbol", raw.Symbol).Msg("ticker channel full, dropping update")
		}
	}
}
