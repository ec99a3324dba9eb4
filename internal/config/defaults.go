package config

import "time"

// Default returns the tuned baseline configuration. The classifier and
// gatekeeper thresholds are empirically chosen constants carried over from
// the strategy they were validated with; override them in the YAML file, not
// here.
func Default() Config {
	return Config{
		LogLevel: "info",
		Symbols: []string{
			"BTC/USDT", "ETH/USDT", "SOL/USDT",
		},
		Leader: LeaderConfig{
			Symbol:   "BTC/USDT",
			Interval: "1h",
		},
		Timeframes: TimeframeConfig{
			Micro:      "15m",
			Macro:      "4h",
			MicroLimit: 250,
			MacroLimit: 250,
		},
		Risk: RiskConfig{
			RiskPct:      2.0,
			MaxPositions: 3,
			LeverageCap:  5.0,
		},
		Gatekeeper: GatekeeperConfig{
			ADXActive:   20,
			RSILow:      35,
			RSIHigh:     65,
			BBProximity: 0.002,
		},
		Classifier: ClassifierConfig{
			ADXTrend:        25,
			HurstTrend:      0.65,
			HurstRange:      0.45,
			HurstNoiseLow:   0.35,
			HurstNoiseHigh:  0.65,
			LeaderActivePct: 1.5,
			LeaderQuietPct:  1.0,
			ChannelWidthMin: 0.025,
			BreakoutVolume:  1.5,
			BreakoutHighVol: 2.0,
			BreakoutBandPct: 0.002,
			ProfileLookback: 24,
		},
		Drift: DriftConfig{
			Alpha:          0.05,
			CurrentWindow:  50,
			BaselineWindow: 150,
		},
		VPIN: VPINConfig{
			Buckets:          10,
			BucketSizeFactor: 1.0,
		},
		Oracle: OracleConfig{
			BaseURL:  "https://api.openai.com/v1",
			Model:    "gpt-4o",
			Timeout:  60 * time.Second,
			Cooldown: 14 * time.Minute,
			Pacing:   2 * time.Second,
		},
		Exchange: ExchangeConfig{
			HTTPTimeout: 15 * time.Second,
		},
		Store: StoreConfig{
			StatePath:      "data/agent_state.db",
			LessonsPath:    "data/lessons.db",
			InitialBalance: 10000,
		},
		Signals: SignalConfig{
			Dir: "data/signals",
		},
		HTTP: HTTPConfig{
			Addr:    ":8088",
			Enabled: true,
		},
		CycleInterval: 60 * time.Second,
	}
}
