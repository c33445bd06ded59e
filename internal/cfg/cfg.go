// Package cfg loads and validates the risk core configuration.
// Configuration comes from a YAML file pointed at by CONFIG_FILE with
// environment-variable overrides, or from the environment alone when no
// file is given. Settings are read once at startup and treated as
// immutable afterwards.
package cfg

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// GroupLimit caps concurrent signals within one correlation group
// inside the cooldown window.
type GroupLimit struct {
	MaxSignals int
	Cooldown   time.Duration
}

// Thresholds bucket correlation magnitude into levels.
type Thresholds struct {
	High   float64 `yaml:"high"`
	Medium float64 `yaml:"medium"`
	Low    float64 `yaml:"low"`
}

// VolatilityBand maps a combined-volatility threshold to the trailing
// ratio used at that regime.
type VolatilityBand struct {
	Threshold float64 `yaml:"threshold"`
	Ratio     float64 `yaml:"ratio"`
}

// TrailingSettings drive the adaptive trailing stop engine.
type TrailingSettings struct {
	ActivationProfitPct float64 `yaml:"activationProfitPct"`
	MinTrailDistancePct float64 `yaml:"minTrailDistancePct"`
	MaxTrailDistancePct float64 `yaml:"maxTrailDistancePct"`
	BreakevenOffsetPct  float64 `yaml:"breakevenOffsetPct"`
	TP1Activation       float64 `yaml:"tp1ActivationProgress"`
	MinRatio            float64 `yaml:"minRatio"`
	MaxRatio            float64 `yaml:"maxRatio"`
	MinATRMultiplier    float64 `yaml:"minATRMultiplier"`
	ExtremeATRPct       float64 `yaml:"extremeATRPct"`
	ExtremeATRRatioCap  float64 `yaml:"extremeATRRatioCap"`

	VolLow     VolatilityBand `yaml:"volLow"`
	VolMedium  VolatilityBand `yaml:"volMedium"`
	VolHigh    VolatilityBand `yaml:"volHigh"`
	VolExtreme VolatilityBand `yaml:"volExtreme"`
}

// SizingSettings drive the position sizer.
type SizingSettings struct {
	BaseRiskPct       float64            `yaml:"baseRiskPct"`
	MaxPositionPct    float64            `yaml:"maxPositionPct"`
	MinStopDistPct    float64            `yaml:"minStopDistPct"`
	KellyFraction     float64            `yaml:"kellyFraction"`
	DrawdownCutoffPct float64            `yaml:"drawdownCutoffPct"`
	DrawdownCutFactor float64            `yaml:"drawdownCutFactor"`
	RegimeMultipliers map[string]float64 `yaml:"regimeMultipliers"`
}

// ProfitSettings drive the partial profit coordinator.
type ProfitSettings struct {
	TP1SplitPct        float64 `yaml:"tp1SplitPct"`
	MinPositionUSD     float64 `yaml:"minPositionUSD"`
	BreakevenOffsetPct float64 `yaml:"breakevenOffsetPct"`
}

// Settings is the full, validated runtime configuration.
type Settings struct {
	ProviderMode string // "live" or "static"
	BaseURL      string
	WsURL        string
	RESTTimeout  time.Duration
	PollInterval time.Duration
	DataPath     string
	MetricsPort  int

	// Correlation estimation.
	CorrWindowBars int
	CorrMinBars    int
	CorrMinReturns int
	CorrTTL        time.Duration
	FastCorrBars   int
	FastCorrTTL    time.Duration
	PanicThreshold float64
	Thresholds     Thresholds

	// Advisory threshold override service.
	AdvisoryURL     string
	AdvisoryTimeout time.Duration
	AdvisoryTTL     time.Duration

	// Exposure limits.
	LookbackHours int
	Cooldown      time.Duration
	GroupLimits   map[string]GroupLimit
	SectorLimits  map[string]int
	Sectors       map[string][]string

	Sizing   SizingSettings
	Trailing TrailingSettings
	Profit   ProfitSettings
}

type configFile struct {
	Provider struct {
		Mode        string `yaml:"mode"`
		BaseURL     string `yaml:"baseURL"`
		WsURL       string `yaml:"wsURL"`
		RESTTimeout string `yaml:"restTimeout"`
	} `yaml:"provider"`

	Correlation struct {
		WindowBars     int        `yaml:"windowBars"`
		MinBars        int        `yaml:"minBars"`
		MinReturns     int        `yaml:"minReturns"`
		CacheTTL       string     `yaml:"cacheTTL"`
		FastBars       int        `yaml:"fastBars"`
		FastCacheTTL   string     `yaml:"fastCacheTTL"`
		PanicThreshold float64    `yaml:"panicThreshold"`
		Thresholds     Thresholds `yaml:"thresholds"`
	} `yaml:"correlation"`

	Advisory struct {
		URL      string `yaml:"url"`
		Timeout  string `yaml:"timeout"`
		CacheTTL string `yaml:"cacheTTL"`
	} `yaml:"advisory"`

	Limits struct {
		LookbackHours int                 `yaml:"lookbackHours"`
		Cooldown      string              `yaml:"cooldown"`
		Groups        map[string]int      `yaml:"groups"`
		Sectors       map[string]int      `yaml:"sectors"`
		SectorMembers map[string][]string `yaml:"sectorMembers"`
	} `yaml:"limits"`

	Sizing   SizingSettings   `yaml:"sizing"`
	Trailing TrailingSettings `yaml:"trailing"`
	Profit   ProfitSettings   `yaml:"profit"`

	System struct {
		DataPath     string `yaml:"dataPath"`
		PollInterval string `yaml:"pollInterval"`
		MetricsPort  int    `yaml:"metricsPort"`
	} `yaml:"system"`
}

// Load reads configuration from the YAML file named by CONFIG_FILE,
// falling back to environment variables alone.
func Load() (Settings, error) {
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		return loadFromYAML(path)
	}
	return applyDefaults(configFile{})
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	var file configFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}
	return applyDefaults(file)
}

func applyDefaults(file configFile) (Settings, error) {
	s := Settings{
		ProviderMode: getEnvOrDefault("PROVIDER_MODE", strOr(file.Provider.Mode, "live")),
		BaseURL:      getEnvOrDefault("BASE_URL", strOr(file.Provider.BaseURL, "https://fapi.binance.com")),
		WsURL:        getEnvOrDefault("WS_URL", strOr(file.Provider.WsURL, "wss://fstream.binance.com/ws")),
		RESTTimeout:  durationFromEnvOrConfig("REST_TIMEOUT", file.Provider.RESTTimeout, 5*time.Second),
		PollInterval: durationFromEnvOrConfig("POLL_INTERVAL", file.System.PollInterval, 30*time.Second),
		DataPath:     getEnvOrDefault("DATA_PATH", file.System.DataPath),
		MetricsPort:  intFromEnvOrConfig("METRICS_PORT", file.System.MetricsPort, 8080),

		CorrWindowBars: intFromEnvOrConfig("CORR_WINDOW_BARS", file.Correlation.WindowBars, 200),
		CorrMinBars:    intFromEnvOrConfig("CORR_MIN_BARS", file.Correlation.MinBars, 50),
		CorrMinReturns: intFromEnvOrConfig("CORR_MIN_RETURNS", file.Correlation.MinReturns, 10),
		CorrTTL:        durationFromEnvOrConfig("CORR_CACHE_TTL", file.Correlation.CacheTTL, time.Hour),
		FastCorrBars:   intFromEnvOrConfig("FAST_CORR_BARS", file.Correlation.FastBars, 100),
		FastCorrTTL:    durationFromEnvOrConfig("FAST_CORR_CACHE_TTL", file.Correlation.FastCacheTTL, 2*time.Minute),
		PanicThreshold: floatFromEnvOrConfig("PANIC_THRESHOLD", file.Correlation.PanicThreshold, 0.95),

		AdvisoryURL:     getEnvOrDefault("ADVISORY_URL", file.Advisory.URL),
		AdvisoryTimeout: durationFromEnvOrConfig("ADVISORY_TIMEOUT", file.Advisory.Timeout, 20*time.Second),
		AdvisoryTTL:     durationFromEnvOrConfig("ADVISORY_CACHE_TTL", file.Advisory.CacheTTL, 30*time.Minute),

		LookbackHours: intFromEnvOrConfig("LOOKBACK_HOURS", file.Limits.LookbackHours, 24),
		Cooldown:      durationFromEnvOrConfig("GROUP_COOLDOWN", file.Limits.Cooldown, time.Hour),
	}

	s.Thresholds = file.Correlation.Thresholds
	if s.Thresholds.High == 0 {
		s.Thresholds = Thresholds{High: 0.75, Medium: 0.50, Low: 0.25}
	}

	s.GroupLimits = defaultGroupLimits(s.Cooldown)
	for group, max := range file.Limits.Groups {
		s.GroupLimits[group] = GroupLimit{MaxSignals: max, Cooldown: s.Cooldown}
	}

	s.SectorLimits = defaultSectorLimits()
	for sector, max := range file.Limits.Sectors {
		s.SectorLimits[sector] = max
	}

	s.Sectors = defaultSectorMembers()
	for sector, members := range file.Limits.SectorMembers {
		s.Sectors[sector] = members
	}

	s.Sizing = file.Sizing
	applySizingDefaults(&s.Sizing)
	s.Trailing = file.Trailing
	applyTrailingDefaults(&s.Trailing)
	s.Profit = file.Profit
	applyProfitDefaults(&s.Profit)

	if err := validateSettings(&s); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return s, nil
}

func applySizingDefaults(z *SizingSettings) {
	if z.BaseRiskPct == 0 {
		z.BaseRiskPct = 2.0
	}
	if z.MaxPositionPct == 0 {
		z.MaxPositionPct = 10.0
	}
	if z.MinStopDistPct == 0 {
		z.MinStopDistPct = 2.0
	}
	if z.KellyFraction == 0 {
		z.KellyFraction = 0.25
	}
	if z.DrawdownCutoffPct == 0 {
		z.DrawdownCutoffPct = 10.0
	}
	if z.DrawdownCutFactor == 0 {
		z.DrawdownCutFactor = 0.5
	}
	if z.RegimeMultipliers == nil {
		z.RegimeMultipliers = defaultRegimeMultipliers()
	}
}

func applyTrailingDefaults(t *TrailingSettings) {
	if t.ActivationProfitPct == 0 {
		t.ActivationProfitPct = 1.0
	}
	if t.MinTrailDistancePct == 0 {
		t.MinTrailDistancePct = 0.5
	}
	if t.MaxTrailDistancePct == 0 {
		t.MaxTrailDistancePct = 8.0
	}
	if t.BreakevenOffsetPct == 0 {
		t.BreakevenOffsetPct = 0.3
	}
	if t.TP1Activation == 0 {
		t.TP1Activation = 0.5
	}
	if t.MinRatio == 0 {
		t.MinRatio = 0.15
	}
	if t.MaxRatio == 0 {
		t.MaxRatio = 1.2
	}
	if t.MinATRMultiplier == 0 {
		t.MinATRMultiplier = 2.0
	}
	if t.ExtremeATRPct == 0 {
		t.ExtremeATRPct = 0.10
	}
	if t.ExtremeATRRatioCap == 0 {
		t.ExtremeATRRatioCap = 0.3
	}
	if t.VolLow.Threshold == 0 {
		t.VolLow = VolatilityBand{Threshold: 0.01, Ratio: 1.0}
	}
	if t.VolMedium.Threshold == 0 {
		t.VolMedium = VolatilityBand{Threshold: 0.025, Ratio: 0.8}
	}
	if t.VolHigh.Threshold == 0 {
		t.VolHigh = VolatilityBand{Threshold: 0.05, Ratio: 0.6}
	}
	if t.VolExtreme.Ratio == 0 {
		t.VolExtreme = VolatilityBand{Threshold: 0.05, Ratio: 0.2}
	}
}

func applyProfitDefaults(p *ProfitSettings) {
	if p.TP1SplitPct == 0 {
		p.TP1SplitPct = 50
	}
	if p.MinPositionUSD == 0 {
		p.MinPositionUSD = 50
	}
	if p.BreakevenOffsetPct == 0 {
		p.BreakevenOffsetPct = 0.3
	}
}

func defaultGroupLimits(cooldown time.Duration) map[string]GroupLimit {
	max := map[string]int{
		"BTC_HIGH": 2, "BTC_MEDIUM": 3, "BTC_LOW": 3, "BTC_INDEPENDENT": 5,
		"ETH_HIGH": 2, "ETH_MEDIUM": 3, "ETH_LOW": 3, "ETH_INDEPENDENT": 4,
		"SOL_HIGH": 4, "SOL_MEDIUM": 3, "SOL_LOW": 3, "SOL_INDEPENDENT": 4,
		"OTHER": 5,
	}
	out := make(map[string]GroupLimit, len(max))
	for g, m := range max {
		out[g] = GroupLimit{MaxSignals: m, Cooldown: cooldown}
	}
	return out
}

func defaultSectorLimits() map[string]int {
	return map[string]int{
		"AI": 3, "DEFI": 4, "MEMES": 2, "L1": 5, "INFRA": 4, "OTHER": 3,
	}
}

func defaultSectorMembers() map[string][]string {
	return map[string][]string{
		"AI":    {"FET", "AGIX", "OCEAN", "RENDER", "NEAR", "TAO", "GRT"},
		"DEFI":  {"UNI", "AAVE", "MKR", "COMP", "CRV", "DYDX", "SNX", "LDO"},
		"MEMES": {"DOGE", "SHIB", "PEPE", "FLOKI", "BONK", "WIF", "POPCAT"},
		"L1":    {"BTC", "ETH", "SOL", "ADA", "DOT", "AVAX", "MATIC", "SUI", "APT"},
		"INFRA": {"LINK", "FIL", "AR", "TIA", "STX", "PYTH"},
	}
}

func defaultRegimeMultipliers() map[string]float64 {
	return map[string]float64{
		"BULL_TREND":     1.2,
		"BEAR_TREND":     1.0,
		"HIGH_VOL_RANGE": 0.8,
		"LOW_VOL_RANGE":  0.7,
		"REVERSAL":       0.9,
		"CRASH":          0.4,
		"NORMAL":         1.0,
	}
}

func validateSettings(s *Settings) error {
	if s.ProviderMode != "live" && s.ProviderMode != "static" {
		return fmt.Errorf("provider mode must be live or static, got %q", s.ProviderMode)
	}
	if s.ProviderMode == "live" && s.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty in live mode")
	}
	if s.RESTTimeout < time.Second || s.RESTTimeout > time.Minute {
		return fmt.Errorf("REST timeout must be between 1s and 1m, got %v", s.RESTTimeout)
	}
	if s.PollInterval < 5*time.Second || s.PollInterval > 5*time.Minute {
		return fmt.Errorf("poll interval must be between 5s and 5m, got %v", s.PollInterval)
	}
	if s.MetricsPort < 1024 || s.MetricsPort > 65535 {
		return fmt.Errorf("metrics port must be between 1024 and 65535, got %d", s.MetricsPort)
	}
	if s.CorrWindowBars < s.CorrMinBars {
		return fmt.Errorf("correlation window (%d bars) is below the minimum bar count (%d)", s.CorrWindowBars, s.CorrMinBars)
	}
	if s.PanicThreshold <= 0 || s.PanicThreshold > 1 {
		return fmt.Errorf("panic threshold must be in (0, 1], got %f", s.PanicThreshold)
	}
	t := s.Thresholds
	if !(t.High > t.Medium && t.Medium > t.Low && t.Low > 0 && t.High <= 1) {
		return fmt.Errorf("correlation thresholds must satisfy 0 < low < medium < high <= 1, got %+v", t)
	}
	if s.Sizing.BaseRiskPct <= 0 || s.Sizing.BaseRiskPct > 10 {
		return fmt.Errorf("base risk must be between 0 and 10%%, got %f", s.Sizing.BaseRiskPct)
	}
	if s.Sizing.MaxPositionPct <= 0 || s.Sizing.MaxPositionPct > 50 {
		return fmt.Errorf("max position must be between 0 and 50%%, got %f", s.Sizing.MaxPositionPct)
	}
	if s.Sizing.KellyFraction <= 0 || s.Sizing.KellyFraction > 1 {
		return fmt.Errorf("kelly fraction must be in (0, 1], got %f", s.Sizing.KellyFraction)
	}
	if s.Trailing.MinRatio >= s.Trailing.MaxRatio {
		return fmt.Errorf("trailing ratio band invalid: min %f >= max %f", s.Trailing.MinRatio, s.Trailing.MaxRatio)
	}
	if s.Trailing.ActivationProfitPct <= 0 {
		return fmt.Errorf("trailing activation profit must be positive, got %f", s.Trailing.ActivationProfitPct)
	}
	if s.Profit.TP1SplitPct <= 0 || s.Profit.TP1SplitPct >= 100 {
		return fmt.Errorf("TP1 split must be between 0 and 100%%, got %f", s.Profit.TP1SplitPct)
	}
	return nil
}

func strOr(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func durationFromEnvOrConfig(key, configValue string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	if configValue != "" {
		if d, err := time.ParseDuration(configValue); err == nil {
			return d
		}
	}
	return def
}

func intFromEnvOrConfig(key string, configValue, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	if configValue != 0 {
		return configValue
	}
	return def
}

func floatFromEnvOrConfig(key string, configValue, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	if configValue != 0 {
		return configValue
	}
	return def
}
