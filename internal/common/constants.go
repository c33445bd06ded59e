package common

// Signal directions.
const (
	DirectionLong  = "LONG"
	DirectionShort = "SHORT"
)

// Correlation groups. A symbol belongs to at most one group per tick,
// chosen by its strongest anchor correlation.
const (
	GroupBTCHigh        = "BTC_HIGH"
	GroupBTCMedium      = "BTC_MEDIUM"
	GroupBTCLow         = "BTC_LOW"
	GroupBTCIndependent = "BTC_INDEPENDENT"
	GroupETHHigh        = "ETH_HIGH"
	GroupETHMedium      = "ETH_MEDIUM"
	GroupETHLow         = "ETH_LOW"
	GroupETHIndependent = "ETH_INDEPENDENT"
	GroupSOLHigh        = "SOL_HIGH"
	GroupSOLMedium      = "SOL_MEDIUM"
	GroupSOLLow         = "SOL_LOW"
	GroupSOLIndependent = "SOL_INDEPENDENT"
	GroupOther          = "OTHER"
)

// Anchor symbols used for correlation grouping, in priority order.
var AnchorSymbols = []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}

// Sectors.
const (
	SectorAI    = "AI"
	SectorDeFi  = "DEFI"
	SectorMemes = "MEMES"
	SectorL1    = "L1"
	SectorInfra = "INFRA"
	SectorOther = "OTHER"
)

// Market regimes as reported by the caller alongside a signal.
const (
	RegimeBullTrend    = "BULL_TREND"
	RegimeBearTrend    = "BEAR_TREND"
	RegimeHighVolRange = "HIGH_VOL_RANGE"
	RegimeLowVolRange  = "LOW_VOL_RANGE"
	RegimeReversal     = "REVERSAL"
	RegimeCrash        = "CRASH"
	RegimeNormal       = "NORMAL"
)

// Rejection reasons emitted by the exposure guard.
const (
	ReasonFastMarketPanic    = "FAST_MARKET_PANIC"
	ReasonSectorLimit        = "SECTOR_LIMIT_EXCEEDED"
	ReasonOppositeDirection  = "OPPOSITE_SIGNAL_ON_SAME_ASSET"
	ReasonHighCorrelation    = "CORRELATED_WITH_OPEN_POSITIONS"
	ReasonGroupLimitCooldown = "GROUP_LIMIT_EXCEEDED"
)

// Stop/profit actions handed to the execution adapter.
const (
	ActionUpdateStopLoss      = "UPDATE_STOP_LOSS"
	ActionMoveSLToBreakeven   = "MOVE_SL_TO_BREAKEVEN"
	ActionTP1PartialClose     = "TP1_PARTIAL_CLOSE"
	ActionTP2FullClose        = "TP2_FULL_CLOSE"
	ActionExhaustionPartial   = "EXHAUSTION_PARTIAL_CLOSE"
	ActionExhaustionFullClose = "EXHAUSTION_FULL_CLOSE"
)

// Environment variable keys read by cfg.
const (
	EnvConfigFile     = "CONFIG_FILE"
	EnvProviderMode   = "PROVIDER_MODE"
	EnvBaseURL        = "BASE_URL"
	EnvWsURL          = "WS_URL"
	EnvDataPath       = "DATA_PATH"
	EnvMetricsPort    = "METRICS_PORT"
	EnvPollInterval   = "POLL_INTERVAL"
	EnvRESTTimeout    = "REST_TIMEOUT"
	EnvAdvisoryURL    = "ADVISORY_URL"
	EnvPanicThreshold = "PANIC_THRESHOLD"
)

// Kline intervals used by the correlation estimator.
const (
	IntervalHourly = "1h"
	IntervalFast   = "5m"
)
