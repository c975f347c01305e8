// Package config loads the process configuration from YAML with
// environment-variable overrides for secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration object, plus the ambient keys added
// for logging and metrics.
type Config struct {
	DBURL    string `yaml:"db_url"`
	PoolSize int    `yaml:"pool_size"`

	KVURL string `yaml:"kv_url"`

	APIKeys  APIKeys  `yaml:"api_keys"`
	FeedURLs FeedURLs `yaml:"feed_urls"`

	PulseSyncIntervalMS     int64 `yaml:"pulse_sync_interval_ms"`
	DashboardSyncIntervalMS int64 `yaml:"dashboard_sync_interval_ms"`
	LiveCandleRefreshMS     int64 `yaml:"live_candle_refresh_ms"`

	GraduationMCRangeUSD     [2]float64 `yaml:"graduation_mc_range_usd"`
	GraduationProximitySolMC float64    `yaml:"graduation_proximity_sol_mc"`

	PulseTTL PulseTTL `yaml:"pulse_ttl"`

	SwapBackfill SwapBackfill `yaml:"swap_backfill"`

	ImageGateways  []string `yaml:"image_gateways"`
	ImageTimeoutMS int64    `yaml:"image_timeout_ms"`

	LogLevel        string `yaml:"log_level"`
	LogFormat       string `yaml:"log_format"` // console|json
	MetricsAddr     string `yaml:"metrics_addr"`
	HTTPAddr        string `yaml:"http_addr"`
	ShutdownGraceMS int64  `yaml:"shutdown_grace_ms"`
}

// APIKeys holds upstream credentials. An empty key disables that client.
type APIKeys struct {
	Metadata  string `yaml:"metadata"`
	Dashboard string `yaml:"dashboard"`
	Supply    string `yaml:"supply"`
}

// FeedURLs holds the base endpoint for each C1 client. The recognized
// config keys otherwise only list the api_keys that gate a client
// on/off; this gives C0 somewhere real to read endpoints from instead
// of hardcoding hostnames into the composition root.
type FeedURLs struct {
	Metadata  string `yaml:"metadata"`
	Dex       string `yaml:"dex"`
	Dashboard string `yaml:"dashboard"`
	Supply    string `yaml:"supply"`
	PushWS    string `yaml:"push_ws"`
}

// PulseTTL controls the stale-row expiry policy for pulse_token rows.
type PulseTTL struct {
	New        time.Duration `yaml:"new"`
	Graduating time.Duration `yaml:"graduating"`
	Graduated  time.Duration `yaml:"graduated"`
}

// SwapBackfill bounds the historical swap backfill C6 runs per address.
type SwapBackfill struct {
	MaxPages int `yaml:"max_pages"`
	PageSize int `yaml:"page_size"`
}

// Default returns the configuration with every recognized default applied.
func Default() Config {
	return Config{
		PoolSize:                 10,
		PulseSyncIntervalMS:      5000,
		DashboardSyncIntervalMS:  60000,
		LiveCandleRefreshMS:      300000,
		GraduationMCRangeUSD:     [2]float64{10_000, 69_000},
		GraduationProximitySolMC: 400,
		PulseTTL: PulseTTL{
			New:        24 * time.Hour,
			Graduating: 48 * time.Hour,
			Graduated:  7 * 24 * time.Hour,
		},
		SwapBackfill: SwapBackfill{
			MaxPages: 200,
			PageSize: 100,
		},
		FeedURLs: FeedURLs{
			Metadata:  "https://api.solscan.io",
			Dex:       "https://api.dexscreener.com",
			Dashboard: "https://api.dexscreener.com",
			Supply:    "https://api.coingecko.com",
			PushWS:    "wss://pumpportal.fun/api/data",
		},
		ImageTimeoutMS:  10_000,
		LogLevel:        "info",
		LogFormat:       "console",
		MetricsAddr:     ":9090",
		HTTPAddr:        "127.0.0.1:8080",
		ShutdownGraceMS: 10_000,
	}
}

// Load reads a YAML file over the defaults, then applies environment
// variable overrides for values operators should never commit to disk.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if cfg.DBURL == "" {
		return cfg, fmt.Errorf("db_url is required")
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DB_URL"); v != "" {
		cfg.DBURL = v
	}
	if v := os.Getenv("KV_URL"); v != "" {
		cfg.KVURL = v
	}
	if v := os.Getenv("METADATA_API_KEY"); v != "" {
		cfg.APIKeys.Metadata = v
	}
	if v := os.Getenv("DASHBOARD_API_KEY"); v != "" {
		cfg.APIKeys.Dashboard = v
	}
	if v := os.Getenv("SUPPLY_API_KEY"); v != "" {
		cfg.APIKeys.Supply = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

// Duration helpers used where durations are given as *_ms config keys
// but consumed as time.Duration downstream.
func (c Config) PulseSyncInterval() time.Duration {
	return time.Duration(c.PulseSyncIntervalMS) * time.Millisecond
}

func (c Config) DashboardSyncInterval() time.Duration {
	return time.Duration(c.DashboardSyncIntervalMS) * time.Millisecond
}

func (c Config) LiveCandleRefresh() time.Duration {
	return time.Duration(c.LiveCandleRefreshMS) * time.Millisecond
}

func (c Config) ImageTimeout() time.Duration {
	return time.Duration(c.ImageTimeoutMS) * time.Millisecond
}

func (c Config) ShutdownGrace() time.Duration {
	return time.Duration(c.ShutdownGraceMS) * time.Millisecond
}
