package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

const sampleTOML = `
[app]
load_timeout_ms = 1500
exchange_order = ["OKX", "binance"]

[arbitrage]
required_return = 1.01

[exchanges.binance]
enabled = true
symbols = ["btcusdt", "BTCUSDT", " ethusdt "]

[exchanges.okx]
enabled = true
trading = true
api_key = "k"
secret_key = "s"
passphrase = "p"

[exchanges.bybit]
enabled = true

[exchanges.bitget]
enabled = false

[rename.OKX]
XBT = "BTC"

[storage.sqlite]
enabled = true
`

func TestLoadTOML(t *testing.T) {
	cfg, err := Load(writeFile(t, "config.toml", sampleTOML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.App.LoadTimeoutMs != 1500 || cfg.App.RefreshIntervalSec != 30 || cfg.App.LogLevel != "info" {
		t.Errorf("app = %+v", cfg.App)
	}
	if cfg.Arbitrage.RequiredReturn != 1.01 || cfg.Arbitrage.TriangularRequiredReturn != 1.01 {
		t.Errorf("arbitrage = %+v", cfg.Arbitrage)
	}
	if cfg.Storage.SQLite.Path != "data/xtrader.db" {
		t.Errorf("sqlite path = %q", cfg.Storage.SQLite.Path)
	}

	got := strings.Join(cfg.EnabledExchanges(), ",")
	if got != "okx,binance,bybit" {
		t.Errorf("enabled = %s, want okx,binance,bybit", got)
	}
	if tr := cfg.TradingExchanges(); len(tr) != 1 || tr[0] != "okx" {
		t.Errorf("trading = %v", tr)
	}

	bn := cfg.Exchanges["binance"]
	if strings.Join(bn.Symbols, ",") != "BTCUSDT,ETHUSDT" {
		t.Errorf("symbols = %v", bn.Symbols)
	}
	if bn.MaxRetries != 3 || bn.TimeoutSec != 10 {
		t.Errorf("binance defaults = %+v", bn)
	}
	if cfg.Rename["okx"]["XBT"] != "BTC" {
		t.Errorf("rename = %v", cfg.Rename)
	}
}

func TestLoadYAML(t *testing.T) {
	yml := `
app:
  log_level: debug
  btc_usd_price: 65000
arbitrage:
  required_return: 1.002
  triangular_required_return: 1.005
exchanges:
  bybit:
    enabled: true
    http_url: http://localhost:9000
`
	cfg, err := Load(writeFile(t, "config.yaml", yml))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.App.LogLevel != "debug" || cfg.App.BtcUsdPrice != 65000 {
		t.Errorf("app = %+v", cfg.App)
	}
	if cfg.Arbitrage.TriangularRequiredReturn != 1.005 {
		t.Errorf("triangular rr = %v", cfg.Arbitrage.TriangularRequiredReturn)
	}
	if cfg.Exchanges["bybit"].HttpURL != "http://localhost:9000" {
		t.Errorf("bybit = %+v", cfg.Exchanges["bybit"])
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := &Config{Exchanges: map[string]ExchangeConfig{
			"binance": {Enabled: true},
			"okx":     {Enabled: false},
		}}
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"required return below one", func(c *Config) { c.Arbitrage.RequiredReturn = 0.5 }, "required_return"},
		{"negative btc price", func(c *Config) { c.App.BtcUsdPrice = -1 }, "btc_usd_price"},
		{"unknown exchange in order", func(c *Config) { c.App.ExchangeOrder = []string{"kraken"} }, "unknown exchange"},
		{"disabled exchange in order", func(c *Config) { c.App.ExchangeOrder = []string{"okx"} }, "not enabled"},
		{"duplicate order", func(c *Config) { c.App.ExchangeOrder = []string{"binance", "Binance"} }, "twice"},
		{"trading without keys", func(c *Config) {
			c.Exchanges["binance"] = ExchangeConfig{Enabled: true, Trading: true, APIKey: "k"}
		}, "api_key"},
		{"rename for disabled exchange", func(c *Config) {
			c.Rename = map[string]map[string]string{"okx": {"XBT": "BTC"}}
		}, "rename.okx"},
		{"empty rename target", func(c *Config) {
			c.Rename = map[string]map[string]string{"binance": {"XBT": ""}}
		}, "empty code"},
		{"postgres without dsn", func(c *Config) { c.Storage.Postgres.Enabled = true }, "postgres"},
		{"redis without addr", func(c *Config) { c.Storage.Redis.Enabled = true }, "redis"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Prepare()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want containing %q", err, tt.want)
			}
		})
	}

	if err := base().Prepare(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}

	none := &Config{Exchanges: map[string]ExchangeConfig{"okx": {}}}
	if err := none.Prepare(); !errors.Is(err, ErrNoExchanges) {
		t.Errorf("err = %v, want ErrNoExchanges", err)
	}
}
