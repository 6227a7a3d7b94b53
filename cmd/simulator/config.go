package main

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Config is the simulator's TOML configuration. Every field has a default so
// the binary runs without a config file.
type Config struct {
	ScenarioPath string  `toml:"scenario_path"`
	DurationSec  float64 `toml:"duration_sec"`
	TickMs       int     `toml:"tick_ms"`
	MetricsAddr  string  `toml:"metrics_addr"`

	Log LogConfig `toml:"log"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

func defaults() Config {
	return Config{
		ScenarioPath: "configs/town_scenario.json",
		DurationSec:  0, // 0 = run until interrupted
		TickMs:       100,
		MetricsAddr:  ":9090",
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// loadConfig returns the defaults overlaid with the TOML file at path. An
// empty path returns the defaults untouched.
func loadConfig(path string) (Config, error) {
	cfg := defaults()
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("load config %q: %w", path, err)
	}
	if cfg.TickMs <= 0 {
		return cfg, fmt.Errorf("load config %q: tick_ms must be positive, got %d", path, cfg.TickMs)
	}
	return cfg, nil
}
