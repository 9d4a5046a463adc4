package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Ticker != "ADANIPOWER.BSE" {
		t.Errorf("ticker = %q", cfg.Ticker)
	}
	if cfg.DataSource.Provider != ProviderAlphaVantage {
		t.Errorf("provider = %q", cfg.DataSource.Provider)
	}
	if cfg.DataSource.Bars != 200 || cfg.Retry.Attempts != 3 || cfg.Retry.InitialDelay != 60*time.Second {
		t.Errorf("unexpected defaults: bars=%d attempts=%d delay=%v", cfg.DataSource.Bars, cfg.Retry.Attempts, cfg.Retry.InitialDelay)
	}
	if cfg.Chart.Output != "ADANIPOWER.BSE_technical_analysis.png" {
		t.Errorf("chart output = %q", cfg.Chart.Output)
	}
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	path := writeConfig(t, `
ticker: IBM
data_source:
  provider: Yahoo
  bars: 300
retry:
  attempts: 5
  initial_delay: 2s
chart:
  output: out/ibm.png
`)
	t.Setenv("TICKER", "MSFT")
	t.Setenv("RETRY_ATTEMPTS", "4")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Ticker != "MSFT" {
		t.Errorf("env should override ticker, got %q", cfg.Ticker)
	}
	if cfg.DataSource.Provider != ProviderYahoo {
		t.Errorf("provider = %q, want yahoo", cfg.DataSource.Provider)
	}
	if cfg.DataSource.Bars != 300 || cfg.Retry.Attempts != 4 || cfg.Retry.InitialDelay != 2*time.Second {
		t.Errorf("unexpected values: bars=%d attempts=%d delay=%v", cfg.DataSource.Bars, cfg.Retry.Attempts, cfg.Retry.InitialDelay)
	}
	if cfg.Chart.Output != "out/ibm.png" {
		t.Errorf("chart output = %q", cfg.Chart.Output)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("validate: %v", err)
	}
}

func TestLoad_ExplicitZeroRetryValues(t *testing.T) {
	t.Setenv("RETRY_ATTEMPTS", "")
	t.Setenv("DATA_PROVIDER", "")

	cfg, err := Load(writeConfig(t, `
data_source:
  provider: mock
retry:
  initial_delay: 0s
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Retry.InitialDelay != 0 {
		t.Errorf("initial_delay = %v, want 0", cfg.Retry.InitialDelay)
	}
	if cfg.Retry.Attempts != DefaultRetryAttempts {
		t.Errorf("attempts = %d, want default %d", cfg.Retry.Attempts, DefaultRetryAttempts)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("zero delay should validate: %v", err)
	}

	cfg, err = Load(writeConfig(t, `
data_source:
  provider: mock
retry:
  attempts: 0
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Retry.Attempts != 0 {
		t.Errorf("attempts = %d, want 0 kept", cfg.Retry.Attempts)
	}
	if cfg.Retry.InitialDelay != DefaultRetryDelay {
		t.Errorf("initial_delay = %v, want default", cfg.Retry.InitialDelay)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected Validate to reject zero attempts")
	}
}

func TestLoad_ProviderKeysFromEnv(t *testing.T) {
	path := writeConfig(t, "data_source:\n  provider: alpaca\n")
	t.Setenv("ALPACA_API_KEY", "key")
	t.Setenv("ALPACA_SECRET_KEY", "secret")
	t.Setenv("ALPHAVANTAGE_API_KEY", "ignored")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DataSource.APIKey != "key" || cfg.DataSource.APISecret != "secret" {
		t.Errorf("alpaca keys = %q/%q", cfg.DataSource.APIKey, cfg.DataSource.APISecret)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	if _, err := Load(writeConfig(t, "ticker: [unterminated")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		cfg.DataSource.APIKey = "demo"
		return cfg
	}
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing api key", func(c *Config) { c.DataSource.APIKey = "" }, true},
		{"yahoo needs no key", func(c *Config) { c.DataSource.Provider = ProviderYahoo; c.DataSource.APIKey = "" }, false},
		{"alpaca needs secret", func(c *Config) { c.DataSource.Provider = ProviderAlpaca }, true},
		{"unknown provider", func(c *Config) { c.DataSource.Provider = "bloomberg" }, true},
		{"zero attempts", func(c *Config) { c.Retry.Attempts = 0 }, true},
		{"negative delay", func(c *Config) { c.Retry.InitialDelay = -time.Second }, true},
		{"half telegram", func(c *Config) { c.Telegram.BotToken = "t" }, true},
		{"empty ticker", func(c *Config) { c.Ticker = "" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDefaultChartPath(t *testing.T) {
	if got := DefaultChartPath("^GSPC"); got != "_GSPC_technical_analysis.png" {
		t.Errorf("got %q", got)
	}
}
