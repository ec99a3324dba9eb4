package config

import "time"

// Config is the full engine configuration. Every threshold that the regime
// classifier and gatekeeper depend on is named here; the defaults mirror the
// values the strategy was tuned with and are overridable per deployment.
type Config struct {
	LogLevel string `mapstructure:"log_level"`

	// Symbols is the instrument universe, e.g. "BTC/USDT".
	Symbols []string `mapstructure:"symbols"`

	Leader     LeaderConfig     `mapstructure:"leader"`
	Timeframes TimeframeConfig  `mapstructure:"timeframes"`
	Risk       RiskConfig       `mapstructure:"risk"`
	Gatekeeper GatekeeperConfig `mapstructure:"gatekeeper"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Drift      DriftConfig      `mapstructure:"drift"`
	VPIN       VPINConfig       `mapstructure:"vpin"`
	Oracle     OracleConfig     `mapstructure:"oracle"`
	Exchange   ExchangeConfig   `mapstructure:"exchange"`
	Store      StoreConfig      `mapstructure:"store"`
	Signals    SignalConfig     `mapstructure:"signals"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`

	// CycleInterval is the pause between orchestrator cycles.
	CycleInterval time.Duration `mapstructure:"cycle_interval"`
}

// LeaderConfig names the instrument whose short-horizon percent change gates
// the classifier (the market leader, BTC by default).
type LeaderConfig struct {
	Symbol   string `mapstructure:"symbol"`
	Interval string `mapstructure:"interval"`
}

type TimeframeConfig struct {
	Micro      string `mapstructure:"micro"`
	Macro      string `mapstructure:"macro"`
	MicroLimit int    `mapstructure:"micro_limit"`
	MacroLimit int    `mapstructure:"macro_limit"`
}

type RiskConfig struct {
	// RiskPct is the percent of balance risked per trade (2 = 2%).
	RiskPct      float64 `mapstructure:"risk_pct"`
	MaxPositions int     `mapstructure:"max_positions"`
	LeverageCap  float64 `mapstructure:"leverage_cap"`
}

// GatekeeperConfig is the micro-timeframe pre-filter: a symbol with no open
// position must look interesting before the macro fetch and oracle spend.
type GatekeeperConfig struct {
	ADXActive   float64 `mapstructure:"adx_active"`
	RSILow      float64 `mapstructure:"rsi_low"`
	RSIHigh     float64 `mapstructure:"rsi_high"`
	BBProximity float64 `mapstructure:"bb_proximity"`
}

type ClassifierConfig struct {
	ADXTrend        float64 `mapstructure:"adx_trend"`
	HurstTrend      float64 `mapstructure:"hurst_trend"`
	HurstRange      float64 `mapstructure:"hurst_range"`
	HurstNoiseLow   float64 `mapstructure:"hurst_noise_low"`
	HurstNoiseHigh  float64 `mapstructure:"hurst_noise_high"`
	LeaderActivePct float64 `mapstructure:"leader_active_pct"`
	LeaderQuietPct  float64 `mapstructure:"leader_quiet_pct"`
	ChannelWidthMin float64 `mapstructure:"channel_width_min"`
	BreakoutVolume  float64 `mapstructure:"breakout_volume"`
	BreakoutHighVol float64 `mapstructure:"breakout_high_volume"`
	BreakoutBandPct float64 `mapstructure:"breakout_band_pct"`
	ProfileLookback int     `mapstructure:"profile_lookback"`
}

type DriftConfig struct {
	Alpha          float64 `mapstructure:"alpha"`
	CurrentWindow  int     `mapstructure:"current_window"`
	BaselineWindow int     `mapstructure:"baseline_window"`
}

type VPINConfig struct {
	Buckets          int     `mapstructure:"buckets"`
	BucketSizeFactor float64 `mapstructure:"bucket_size_factor"`
}

type OracleConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	APIKey   string        `mapstructure:"api_key"`
	Model    string        `mapstructure:"model"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Cooldown time.Duration `mapstructure:"cooldown"`
	// Pacing is the minimum spacing between consecutive oracle calls
	// within one cycle.
	Pacing time.Duration `mapstructure:"pacing"`
}

type ExchangeConfig struct {
	RESTBaseURL string        `mapstructure:"rest_base_url"`
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`
}

type StoreConfig struct {
	StatePath   string `mapstructure:"state_path"`
	LessonsPath string `mapstructure:"lessons_path"`
	// InitialBalance seeds a freshly created state document.
	InitialBalance float64 `mapstructure:"initial_balance"`
}

type SignalConfig struct {
	Dir string `mapstructure:"dir"`
}

type HTTPConfig struct {
	Addr    string `mapstructure:"addr"`
	Enabled bool   `mapstructure:"enabled"`
}

type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}
