package factory

import (
	"testing"

	"xtrader/internal/infrastructure/config"
	"xtrader/internal/infrastructure/exchange"
)

func TestAdaptersRegistered(t *testing.T) {
	registered := map[string]bool{}
	for _, name := range exchange.Registered() {
		registered[name] = true
	}
	for _, name := range []string{"binance", "bybit", "okx", "bitget"} {
		if !registered[name] {
			t.Errorf("%s not registered", name)
		}
	}
}

func TestNewExchangesLoadOrder(t *testing.T) {
	cfg := &config.Config{Exchanges: map[string]config.ExchangeConfig{
		"binance": {Enabled: true},
		"bybit":   {Enabled: true},
		"okx":     {Enabled: true, Trading: true, APIKey: "k", SecretKey: "s", Passphrase: "p"},
		"bitget":  {Enabled: false},
	}}
	cfg.App.ExchangeOrder = []string{"okx"}
	if err := cfg.Prepare(); err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	exs, err := NewExchanges(cfg)
	if err != nil {
		t.Fatalf("NewExchanges: %v", err)
	}
	var names []string
	for _, ex := range exs {
		names = append(names, ex.Name())
	}
	want := []string{"okx", "binance", "bybit"}
	if len(names) != len(want) {
		t.Fatalf("names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %s, want %s", i, names[i], want[i])
		}
	}
	if !exs[0].HasCredentials() || exs[1].HasCredentials() {
		t.Error("credentials not wired from config")
	}
}

func TestNewExchangesUnknown(t *testing.T) {
	cfg := &config.Config{Exchanges: map[string]config.ExchangeConfig{"kraken": {Enabled: true}}}
	if _, err := NewExchanges(cfg); err == nil {
		t.Error("unknown exchange should fail")
	}
	if _, err := NewExchanges(nil); err == nil {
		t.Error("nil config should fail")
	}
}

func TestNewRenameMap(t *testing.T) {
	cfg := &config.Config{Rename: map[string]map[string]string{"okx": {" xbt ": "btc"}}}
	m := NewRenameMap(cfg)
	if m["okx"]["XBT"] != "BTC" {
		t.Errorf("rename = %v", m)
	}
}
