package correlation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"riskcore/internal/cfg"
)

// AdvisoryClient fetches grouping thresholds from an external advisory
// service. Responses are cached for a short TTL; on timeout or any
// fetch error the static thresholds from configuration are used, so a
// slow advisory never blocks classification.
type AdvisoryClient struct {
	url     string
	static  cfg.Thresholds
	ttl     time.Duration
	rest    *resty.Client
	tracker Tracker

	mu       sync.RWMutex
	cached   cfg.Thresholds
	expireAt time.Time

	now func() time.Time
}

// NewAdvisory builds an advisory client. An empty URL disables fetching
// entirely; Thresholds then always returns the static values.
func NewAdvisory(s cfg.Settings, tracker Tracker) *AdvisoryClient {
	if tracker == nil {
		tracker = nopTracker{}
	}
	r := resty.New()
	r.SetTimeout(s.AdvisoryTimeout)
	return &AdvisoryClient{
		url:     s.AdvisoryURL,
		static:  s.Thresholds,
		ttl:     s.AdvisoryTTL,
		rest:    r,
		tracker: tracker,
		now:     time.Now,
	}
}

// Thresholds returns the current grouping thresholds: the advisory
// values when fresh ones are available, the static configuration
// otherwise.
func (a *AdvisoryClient) Thresholds(ctx context.Context) cfg.Thresholds {
	if a.url == "" {
		return a.static
	}

	a.mu.RLock()
	cached, expireAt := a.cached, a.expireAt
	a.mu.RUnlock()
	if a.now().Before(expireAt) {
		return cached
	}

	fresh, err := a.fetch(ctx)
	if err != nil {
		a.tracker.AdvisoryFallback()
		log.Warn().Err(err).Msg("advisory threshold fetch failed, using static thresholds")
		// Cache the fallback briefly so a dead advisory is not hammered
		// on every classification.
		a.store(a.static, a.ttl/10)
		return a.static
	}
	a.store(fresh, a.ttl)
	return fresh
}

func (a *AdvisoryClient) fetch(ctx context.Context) (cfg.Thresholds, error) {
	var result struct {
		High   float64 `json:"high"`
		Medium float64 `json:"medium"`
		Low    float64 `json:"low"`
	}
	resp, err := a.rest.R().
		SetContext(ctx).
		SetResult(&result).
		Get(a.url)
	if err != nil {
		return cfg.Thresholds{}, fmt.Errorf("advisory request failed: %w", err)
	}
	if resp.StatusCode() != 200 {
		return cfg.Thresholds{}, fmt.Errorf("advisory API error: status %d", resp.StatusCode())
	}
	t := cfg.Thresholds{High: result.High, Medium: result.Medium, Low: result.Low}
	if !(t.High > t.Medium && t.Medium > t.Low && t.Low > 0 && t.High <= 1) {
		return cfg.Thresholds{}, fmt.Errorf("advisory returned invalid thresholds %+v", t)
	}
	return t, nil
}

func (a *AdvisoryClient) store(t cfg.Thresholds, ttl time.Duration) {
	a.mu.Lock()
	a.cached = t
	a.expireAt = a.now().Add(ttl)
	a.mu.Unlock()
}
