package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load reads the YAML file at path on top of the tuned defaults. An empty
// path returns the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return &cfg, validate(&cfg)
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file failed (%s): %w", path, err)
	}
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.WeaklyTypedInput = true
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	if len(cfg.Symbols) == 0 {
		return fmt.Errorf("config: symbols cannot be empty")
	}
	seen := make(map[string]bool, len(cfg.Symbols))
	for _, s := range cfg.Symbols {
		s = strings.TrimSpace(s)
		if s == "" {
			return fmt.Errorf("config: empty symbol in universe")
		}
		if seen[s] {
			return fmt.Errorf("config: duplicate symbol %s", s)
		}
		seen[s] = true
	}
	if cfg.Risk.RiskPct <= 0 || cfg.Risk.RiskPct > 100 {
		return fmt.Errorf("config: risk_pct must be in (0,100], got %v", cfg.Risk.RiskPct)
	}
	if cfg.Risk.MaxPositions < 1 {
		return fmt.Errorf("config: max_positions must be >= 1, got %d", cfg.Risk.MaxPositions)
	}
	if cfg.Risk.LeverageCap <= 0 {
		return fmt.Errorf("config: leverage_cap must be positive, got %v", cfg.Risk.LeverageCap)
	}
	if cfg.Oracle.Cooldown < time.Minute {
		return fmt.Errorf("config: oracle cooldown must be at least 1m, got %s", cfg.Oracle.Cooldown)
	}
	if cfg.Drift.Alpha <= 0 || cfg.Drift.Alpha >= 1 {
		return fmt.Errorf("config: drift alpha must be in (0,1), got %v", cfg.Drift.Alpha)
	}
	if cfg.Timeframes.Micro == cfg.Timeframes.Macro {
		return fmt.Errorf("config: micro and macro timeframes must differ")
	}
	if cfg.Classifier.ProfileLookback < 2 {
		return fmt.Errorf("config: profile_lookback must be >= 2, got %d", cfg.Classifier.ProfileLookback)
	}
	return nil
}
