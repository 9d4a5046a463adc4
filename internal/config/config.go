package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Data source providers.
const (
	ProviderAlphaVantage = "alphavantage"
	ProviderYahoo        = "yahoo"
	ProviderAlpaca       = "alpaca"
	ProviderMock         = "mock"
)

// Retry defaults.
const (
	DefaultRetryAttempts = 3
	DefaultRetryDelay    = 60 * time.Second
)

// Config holds all application configuration.
type Config struct {
	Ticker     string `yaml:"ticker"`
	DataSource struct {
		Provider  string `yaml:"provider"`
		BaseURL   string `yaml:"base_url"`
		APIKey    string `yaml:"api_key"`
		APISecret string `yaml:"api_secret"`
		Bars      int    `yaml:"bars"`
	} `yaml:"data_source"`
	Retry struct {
		Attempts     int           `yaml:"attempts"`
		InitialDelay time.Duration `yaml:"initial_delay"`
	} `yaml:"retry"`
	Chart struct {
		Disabled bool   `yaml:"disabled"`
		Output   string `yaml:"output"`
		Width    int    `yaml:"width"`
		Height   int    `yaml:"height"`
	} `yaml:"chart"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Cache struct {
		RedisAddr     string        `yaml:"redis_addr"`
		RedisPassword string        `yaml:"redis_password"`
		RedisDB       int           `yaml:"redis_db"`
		TTL           time.Duration `yaml:"ttl"`
	} `yaml:"cache"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Metrics struct {
		Addr string `yaml:"addr"`
	} `yaml:"metrics"`
	Schedule struct {
		Cron string `yaml:"cron"`
	} `yaml:"schedule"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Proxy string `yaml:"proxy"`
}

// Load reads config from a YAML file, then applies environment variable overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	// Seeded before decoding so an explicit zero in the file is kept and
	// checked by Validate instead of being replaced.
	cfg.Retry.Attempts = DefaultRetryAttempts
	cfg.Retry.InitialDelay = DefaultRetryDelay

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("TICKER"); v != "" {
		cfg.Ticker = v
	}
	if v := os.Getenv("DATA_PROVIDER"); v != "" {
		cfg.DataSource.Provider = v
	}
	if v := os.Getenv("ALPHAVANTAGE_API_KEY"); v != "" && cfg.provider() == ProviderAlphaVantage {
		cfg.DataSource.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_KEY"); v != "" && cfg.provider() == ProviderAlpaca {
		cfg.DataSource.APIKey = v
	}
	if v := os.Getenv("ALPACA_SECRET_KEY"); v != "" && cfg.provider() == ProviderAlpaca {
		cfg.DataSource.APISecret = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
	if v := os.Getenv("CRON_SCHEDULE"); v != "" {
		cfg.Schedule.Cron = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}
	if v := os.Getenv("RETRY_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Retry.Attempts = n
		}
	}

	// Defaults
	cfg.DataSource.Provider = cfg.provider()
	if cfg.Ticker == "" {
		cfg.Ticker = "ADANIPOWER.BSE"
	}
	if cfg.DataSource.Bars == 0 {
		cfg.DataSource.Bars = 200
	}
	if cfg.Chart.Width == 0 {
		cfg.Chart.Width = 1400
	}
	if cfg.Chart.Height == 0 {
		cfg.Chart.Height = 1200
	}
	if cfg.Chart.Output == "" {
		cfg.Chart.Output = DefaultChartPath(cfg.Ticker)
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = 6 * time.Hour
	}
	if cfg.Schedule.Cron == "" {
		cfg.Schedule.Cron = "0 30 18 * * 1-5"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}

	return cfg, nil
}

func (c *Config) provider() string {
	if c.DataSource.Provider == "" {
		return ProviderAlphaVantage
	}
	return strings.ToLower(c.DataSource.Provider)
}

// DefaultChartPath derives the chart file name from the ticker.
func DefaultChartPath(ticker string) string {
	safe := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', ' ', '^':
			return '_'
		}
		return r
	}, ticker)
	return safe + "_technical_analysis.png"
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	if c.Ticker == "" {
		return fmt.Errorf("ticker is required")
	}
	switch c.DataSource.Provider {
	case ProviderAlphaVantage:
		if c.DataSource.APIKey == "" {
			return fmt.Errorf("data_source.api_key is required for %s", ProviderAlphaVantage)
		}
	case ProviderAlpaca:
		if c.DataSource.APIKey == "" || c.DataSource.APISecret == "" {
			return fmt.Errorf("data_source.api_key and data_source.api_secret are required for %s", ProviderAlpaca)
		}
	case ProviderYahoo, ProviderMock:
	default:
		return fmt.Errorf("data_source.provider %q is not supported", c.DataSource.Provider)
	}
	if c.DataSource.Bars < 1 {
		return fmt.Errorf("data_source.bars must be positive")
	}
	if c.Retry.Attempts < 1 {
		return fmt.Errorf("retry.attempts must be at least 1")
	}
	if c.Retry.InitialDelay < 0 {
		return fmt.Errorf("retry.initial_delay must not be negative")
	}
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram.bot_token and telegram.chat_id must be set together")
	}
	if !c.Chart.Disabled && (c.Chart.Width <= 0 || c.Chart.Height <= 0) {
		return fmt.Errorf("chart.width and chart.height must be positive")
	}
	return nil
}
