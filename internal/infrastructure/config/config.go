package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// ErrNoExchanges 没有启用任何交易所
var ErrNoExchanges = errors.New("no exchanges enabled")

// ExchangeConfig 单个交易所配置
type ExchangeConfig struct {
	Enabled    bool     `toml:"enabled" yaml:"enabled"`
	Trading    bool     `toml:"trading" yaml:"trading"` // 是否加载余额（需要 API key）
	APIKey     string   `toml:"api_key" yaml:"api_key"`
	SecretKey  string   `toml:"secret_key" yaml:"secret_key"`
	Passphrase string   `toml:"passphrase" yaml:"passphrase"` // okx
	HttpURL    string   `toml:"http_url" yaml:"http_url"`
	WsURL      string   `toml:"ws_url" yaml:"ws_url"`
	Symbols    []string `toml:"symbols" yaml:"symbols"` // 通过 websocket 订阅的交易对
	MaxRetries int      `toml:"max_retries" yaml:"max_retries"`
	TimeoutSec int      `toml:"timeout_sec" yaml:"timeout_sec"`
}

// HasCredentials reports whether trading credentials are configured.
func (e ExchangeConfig) HasCredentials() bool {
	return e.Trading && strings.TrimSpace(e.APIKey) != "" && strings.TrimSpace(e.SecretKey) != ""
}

type Config struct {
	App struct {
		LogLevel             string   `toml:"log_level" yaml:"log_level"`
		RefreshIntervalSec   int      `toml:"refresh_interval_sec" yaml:"refresh_interval_sec"`
		LoadTimeoutMs        int      `toml:"load_timeout_ms" yaml:"load_timeout_ms"`
		CurrencyRefreshEvery int      `toml:"currency_refresh_every" yaml:"currency_refresh_every"`
		BtcUsdPrice          float64  `toml:"btc_usd_price" yaml:"btc_usd_price"`
		ExchangeOrder        []string `toml:"exchange_order" yaml:"exchange_order"`
		TopN                 int      `toml:"top_n" yaml:"top_n"`
		NoColor              bool     `toml:"no_color" yaml:"no_color"`
	} `toml:"app" yaml:"app"`

	Arbitrage struct {
		RequiredReturn           float64 `toml:"required_return" yaml:"required_return"`
		TriangularRequiredReturn float64 `toml:"triangular_required_return" yaml:"triangular_required_return"`
	} `toml:"arbitrage" yaml:"arbitrage"`

	Exchanges map[string]ExchangeConfig `toml:"exchanges" yaml:"exchanges"`

	// Rename exchange -> local code -> canonical code
	Rename map[string]map[string]string `toml:"rename" yaml:"rename"`

	Storage struct {
		SQLite struct {
			Enabled bool   `toml:"enabled" yaml:"enabled"`
			Path    string `toml:"path" yaml:"path"`
		} `toml:"sqlite" yaml:"sqlite"`

		Redis struct {
			Enabled       bool   `toml:"enabled" yaml:"enabled"`
			Addr          string `toml:"addr" yaml:"addr"`
			Password      string `toml:"password" yaml:"password"`
			DB            int    `toml:"db" yaml:"db"`
			Prefix        string `toml:"prefix" yaml:"prefix"`
			TTLSeconds    int    `toml:"ttl_seconds" yaml:"ttl_seconds"`
			SignalStream  string `toml:"signal_stream" yaml:"signal_stream"`
			SignalChannel string `toml:"signal_channel" yaml:"signal_channel"`
			StreamMaxLen  int64  `toml:"stream_max_len" yaml:"stream_max_len"`
		} `toml:"redis" yaml:"redis"`

		Postgres struct {
			Enabled bool   `toml:"enabled" yaml:"enabled"`
			DSN     string `toml:"dsn" yaml:"dsn"`
		} `toml:"postgres" yaml:"postgres"`
	} `toml:"storage" yaml:"storage"`
}

// Load reads a TOML file, or YAML when the extension is .yaml/.yml.
func Load(path string) (*Config, error) {
	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	default:
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.Prepare(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Prepare applies defaults and validates. Load calls it; tests building a
// Config by hand call it directly.
func (cfg *Config) Prepare() error {
	applyDefaults(cfg)
	return validate(cfg)
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.App.LogLevel) == "" {
		cfg.App.LogLevel = "info"
	}
	if cfg.App.RefreshIntervalSec <= 0 {
		cfg.App.RefreshIntervalSec = 30
	}
	if cfg.App.LoadTimeoutMs <= 0 {
		cfg.App.LoadTimeoutMs = 1000
	}
	if cfg.App.CurrencyRefreshEvery < 0 {
		cfg.App.CurrencyRefreshEvery = 0
	}
	if cfg.App.TopN <= 0 {
		cfg.App.TopN = 10
	}
	if cfg.Arbitrage.RequiredReturn == 0 {
		cfg.Arbitrage.RequiredReturn = 1.002
	}
	if cfg.Arbitrage.TriangularRequiredReturn == 0 {
		cfg.Arbitrage.TriangularRequiredReturn = cfg.Arbitrage.RequiredReturn
	}
	if cfg.Storage.SQLite.Enabled && strings.TrimSpace(cfg.Storage.SQLite.Path) == "" {
		cfg.Storage.SQLite.Path = "data/xtrader.db"
	}
	if cfg.Storage.Redis.Enabled && strings.TrimSpace(cfg.Storage.Redis.Prefix) == "" {
		cfg.Storage.Redis.Prefix = "xtrader"
	}

	// 交易所名称统一小写
	exchanges := make(map[string]ExchangeConfig, len(cfg.Exchanges))
	for name, ex := range cfg.Exchanges {
		if ex.MaxRetries <= 0 {
			ex.MaxRetries = 3
		}
		if ex.TimeoutSec <= 0 {
			ex.TimeoutSec = 10
		}
		ex.Symbols = normalizeSymbols(ex.Symbols)
		exchanges[normalizeName(name)] = ex
	}
	cfg.Exchanges = exchanges

	rename := make(map[string]map[string]string, len(cfg.Rename))
	for name, codes := range cfg.Rename {
		rename[normalizeName(name)] = codes
	}
	cfg.Rename = rename

	order := make([]string, 0, len(cfg.App.ExchangeOrder))
	for _, name := range cfg.App.ExchangeOrder {
		if n := normalizeName(name); n != "" {
			order = append(order, n)
		}
	}
	cfg.App.ExchangeOrder = order
}

func validate(cfg *Config) error {
	if cfg.Arbitrage.RequiredReturn < 1 {
		return fmt.Errorf("arbitrage.required_return must be >= 1, got %v", cfg.Arbitrage.RequiredReturn)
	}
	if cfg.Arbitrage.TriangularRequiredReturn < 1 {
		return fmt.Errorf("arbitrage.triangular_required_return must be >= 1, got %v", cfg.Arbitrage.TriangularRequiredReturn)
	}
	if cfg.App.BtcUsdPrice < 0 {
		return errors.New("app.btc_usd_price must not be negative")
	}

	seen := make(map[string]struct{}, len(cfg.App.ExchangeOrder))
	for _, name := range cfg.App.ExchangeOrder {
		ex, ok := cfg.Exchanges[name]
		if !ok {
			return fmt.Errorf("app.exchange_order: unknown exchange %q", name)
		}
		if !ex.Enabled {
			return fmt.Errorf("app.exchange_order: exchange %q is not enabled", name)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("app.exchange_order: exchange %q listed twice", name)
		}
		seen[name] = struct{}{}
	}

	enabled := cfg.EnabledExchanges()
	if len(enabled) == 0 {
		return ErrNoExchanges
	}
	for _, name := range enabled {
		ex := cfg.Exchanges[name]
		if ex.Trading && !ex.HasCredentials() {
			return fmt.Errorf("exchanges.%s: trading enabled but api_key/secret_key empty", name)
		}
	}

	for name, codes := range cfg.Rename {
		ex, ok := cfg.Exchanges[name]
		if !ok || !ex.Enabled {
			return fmt.Errorf("rename.%s: exchange not enabled", name)
		}
		for local, global := range codes {
			if strings.TrimSpace(local) == "" || strings.TrimSpace(global) == "" {
				return fmt.Errorf("rename.%s: empty code in %q = %q", name, local, global)
			}
		}
	}

	if cfg.Storage.Postgres.Enabled && strings.TrimSpace(cfg.Storage.Postgres.DSN) == "" {
		return errors.New("storage.postgres.dsn empty but enabled")
	}
	if cfg.Storage.Redis.Enabled && strings.TrimSpace(cfg.Storage.Redis.Addr) == "" {
		return errors.New("storage.redis.addr empty but enabled")
	}
	return nil
}

// EnabledExchanges 返回启用的交易所，按加载顺序：先 exchange_order，再按名称排序
func (cfg *Config) EnabledExchanges() []string {
	out := make([]string, 0, len(cfg.Exchanges))
	seen := make(map[string]struct{})
	for _, name := range cfg.App.ExchangeOrder {
		if ex, ok := cfg.Exchanges[name]; ok && ex.Enabled {
			if _, dup := seen[name]; !dup {
				out = append(out, name)
				seen[name] = struct{}{}
			}
		}
	}
	rest := make([]string, 0)
	for name, ex := range cfg.Exchanges {
		if _, ok := seen[name]; ok || !ex.Enabled {
			continue
		}
		rest = append(rest, name)
	}
	sort.Strings(rest)
	return append(out, rest...)
}

// TradingExchanges 配置了交易凭证的交易所
func (cfg *Config) TradingExchanges() []string {
	var out []string
	for _, name := range cfg.EnabledExchanges() {
		if cfg.Exchanges[name].HasCredentials() {
			out = append(out, name)
		}
	}
	return out
}

func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func normalizeSymbols(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, s := range in {
		u := strings.ToUpper(strings.TrimSpace(s))
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
