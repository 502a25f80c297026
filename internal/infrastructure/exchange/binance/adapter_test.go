package binance

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"xtrader/internal/infrastructure/config"
	"xtrader/internal/infrastructure/exchange"
)

const exchangeInfoJSON = `{"symbols":[
 {"symbol":"BTCUSDT","status":"TRADING","baseAsset":"BTC","quoteAsset":"USDT","isSpotTradingAllowed":true},
 {"symbol":"ETHBTC","status":"BREAK","baseAsset":"ETH","quoteAsset":"BTC","isSpotTradingAllowed":true},
 {"symbol":"DOGEUSDT","status":"TRADING","baseAsset":"DOGE","quoteAsset":"USDT","isSpotTradingAllowed":true}
]}`

const tickerJSON = `[
 {"symbol":"BTCUSDT","bidPrice":"9000.00","askPrice":"9010.00","volume":"12.5","quoteVolume":"112500","priceChangePercent":"-1.25","closeTime":1700000000000},
 {"symbol":"ETHBTC","bidPrice":"0.05","askPrice":"0","volume":"0","quoteVolume":"0","priceChangePercent":"0","closeTime":1700000000000}
]`

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v3/exchangeInfo":
			_, _ = w.Write([]byte(exchangeInfoJSON))
		case "/api/v3/ticker/24hr":
			_, _ = w.Write([]byte(tickerJSON))
		case "/sapi/v1/capital/config/getall":
			if r.Header.Get("X-MBX-APIKEY") != "key" || r.URL.Query().Get("signature") == "" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = w.Write([]byte(`[
				{"coin":"BTC","name":"Bitcoin","trading":true,"depositAllEnable":true,"withdrawAllEnable":false},
				{"coin":"XRP","name":"Ripple","trading":true,"depositAllEnable":false,"withdrawAllEnable":false},
				{"coin":"ADA","name":"Cardano","trading":false,"depositAllEnable":false,"withdrawAllEnable":true},
				{"coin":"","name":"junk"}]`))
		case "/api/v3/account":
			if r.URL.Query().Get("timestamp") == "" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			_, _ = w.Write([]byte(`{"balances":[{"asset":"BTC","free":"1.5","locked":"0.5"},{"asset":"USDT","free":"1000","locked":""},{"asset":"BAD","free":"x","locked":"0"}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestAdapter(t *testing.T, trading bool) *Adapter {
	cfg := config.ExchangeConfig{HttpURL: newServer(t).URL, MaxRetries: 1}
	if trading {
		cfg.Trading, cfg.APIKey, cfg.SecretKey = true, "key", "secret"
	}
	return New(cfg)
}

func TestLoadCurrenciesPublic(t *testing.T) {
	a := newTestAdapter(t, false)
	cur, err := a.LoadCurrencies(context.Background())
	if err != nil {
		t.Fatalf("LoadCurrencies: %v", err)
	}
	if len(cur) != 4 {
		t.Fatalf("currencies = %v", cur)
	}
	// ETH 只出现在暂停交易的市场
	if cur["ETH"].Enabled || !cur["BTC"].Enabled {
		t.Errorf("enabled flags = %+v", cur)
	}
	if !a.IsCurrencyEnabled("USDT") {
		t.Error("enabled flags should be recorded on the adapter")
	}
}

func TestLoadCurrenciesSigned(t *testing.T) {
	a := newTestAdapter(t, true)
	cur, err := a.LoadCurrencies(context.Background())
	if err != nil {
		t.Fatalf("LoadCurrencies: %v", err)
	}
	if len(cur) != 3 || cur["BTC"].Name != "Bitcoin" {
		t.Errorf("currencies = %+v", cur)
	}
	// 可用性只看充提开关，不看 trading
	if !cur["BTC"].Enabled || cur["XRP"].Enabled || !cur["ADA"].Enabled {
		t.Errorf("enabled flags = %+v", cur)
	}
	if a.IsCurrencyEnabled("XRP") {
		t.Error("XRP has deposits and withdrawals closed")
	}
}

func TestLoadMarkets(t *testing.T) {
	a := newTestAdapter(t, false)
	a.SetCodeTable(map[string]string{"BTC": "BTC", "ETH": "ETH", "USDT": "USDT"})

	table, err := a.LoadMarkets(context.Background())
	if err != nil {
		t.Fatalf("LoadMarkets: %v", err)
	}
	if table.Len() != 2 {
		t.Fatalf("len = %d, want 2 (DOGE unmapped)", table.Len())
	}
	q := table["USDT"]["BTC"]
	if q.Exchange != Name || q.MarketSymbol != "BTCUSDT" || !q.Tradeable() {
		t.Errorf("BTCUSDT = %+v", q)
	}
	if !q.Bid.Decimal.Equal(decimal.NewFromInt(9000)) || !q.Change24h.Decimal.Equal(decimal.RequireFromString("-1.25")) {
		t.Errorf("prices = %v %v", q.Bid, q.Change24h)
	}
	eth := table["BTC"]["ETH"]
	if eth.IsActive || eth.Ask.Valid {
		t.Errorf("ETHBTC = %+v", eth)
	}
}

func TestOverlayUsesNewerBook(t *testing.T) {
	a := newTestAdapter(t, false)
	a.SetCodeTable(map[string]string{"BTC": "BTC", "USDT": "USDT"})
	a.handleBook([]byte(`{"stream":"btcusdt@bookTicker","data":{"s":"BTCUSDT","b":"9050.1","a":"9051.2"}}`))

	table, err := a.LoadMarkets(context.Background())
	if err != nil {
		t.Fatalf("LoadMarkets: %v", err)
	}
	q := table["USDT"]["BTC"]
	if !q.Bid.Decimal.Equal(decimal.RequireFromString("9050.1")) {
		t.Errorf("bid = %s, want websocket price", q.Bid.Decimal)
	}
	if !q.UpdatedAt.After(time.UnixMilli(1700000000000)) {
		t.Errorf("updatedAt = %v", q.UpdatedAt)
	}
}

func TestLoadBalances(t *testing.T) {
	if _, err := newTestAdapter(t, false).LoadBalances(context.Background()); !errors.Is(err, exchange.ErrNoCredentials) {
		t.Fatalf("err = %v, want ErrNoCredentials", err)
	}

	bals, err := newTestAdapter(t, true).LoadBalances(context.Background())
	if err != nil {
		t.Fatalf("LoadBalances: %v", err)
	}
	if len(bals) != 2 {
		t.Fatalf("balances = %+v", bals)
	}
	btc := bals["BTC"]
	if !btc.Total.Equal(decimal.NewFromInt(2)) || !btc.OnOrders.Equal(decimal.RequireFromString("0.5")) {
		t.Errorf("BTC = %+v", btc)
	}
	if !bals["USDT"].Total.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("USDT = %+v", bals["USDT"])
	}
}

func TestBuildCombinedURL(t *testing.T) {
	u, err := buildCombinedURL(defaultWSURL, []string{"BTCUSDT", " ", "ethbtc"})
	if err != nil {
		t.Fatalf("buildCombinedURL: %v", err)
	}
	if !strings.HasSuffix(u, "/stream?streams=btcusdt@bookTicker/ethbtc@bookTicker") {
		t.Errorf("url = %s", u)
	}
	if _, err := buildCombinedURL("", []string{"BTCUSDT"}); err == nil {
		t.Error("empty base should fail")
	}
}
