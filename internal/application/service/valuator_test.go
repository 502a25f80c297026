package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"xtrader/internal/domain/model"
)

func btcUsdtMarket() *model.AggregatedMarket {
	m := model.NewAggregatedMarket(time.Now())
	m.Put("USDT", "BTC", "x", model.MarketQuote{Bid: price(9000), Ask: price(9010), IsActive: true})
	return m
}

func between(d decimal.Decimal, lo, hi string) bool {
	return d.GreaterThan(dec(lo)) && d.LessThan(dec(hi))
}

func TestConsolidateBalances(t *testing.T) {
	x := NewMockExchange("x").WithBalance("BTC", 2).WithBalance("USDT", 1000)
	mapping := mappingOf([]string{"x"}, "BTC", "USDT")

	v := NewValuator(time.Second)
	cb := v.Consolidate(context.Background(), adapters(x), btcUsdtMarket(), mapping)

	if len(cb.Faults) != 0 {
		t.Fatalf("unexpected faults: %v", cb.Faults)
	}
	if cb.ID == "" {
		t.Error("snapshot id empty")
	}
	if got := cb.Codes(); len(got) != 2 {
		t.Fatalf("codes = %v", got)
	}
	usdt := cb.Currencies["USDT"]
	// 1000 * 2 / (9000 + 9010)
	if !between(usdt.TotalBtcValue, "0.11104", "0.11105") {
		t.Errorf("USDT btc value = %s", usdt.TotalBtcValue)
	}

	totals := Totals(cb, btcUsdtMarket(), decimal.NullDecimal{})
	if !between(totals.TotalBtc, "2.11104", "2.11105") {
		t.Errorf("total btc = %s, want ~2.1110", totals.TotalBtc)
	}
	if len(totals.Unpriced) != 0 {
		t.Errorf("unpriced = %v", totals.Unpriced)
	}
	// 未提供 BTC/USD 参考价时回退到 USDT 行情
	if !totals.UsdAvailable || !between(totals.BtcUsdPrice, "9004.99", "9005.01") {
		t.Errorf("btc/usd = %s (available=%v), want ~9005", totals.BtcUsdPrice, totals.UsdAvailable)
	}
}

func TestTotalsSuppliedBtcUsd(t *testing.T) {
	x := NewMockExchange("x").WithBalance("BTC", 2)
	cb := NewValuator(time.Second).Consolidate(context.Background(), adapters(x), btcUsdtMarket(), mappingOf([]string{"x"}, "BTC"))

	totals := Totals(cb, btcUsdtMarket(), model.Price(dec("10000")))
	if !totals.TotalUsd.Equal(dec("20000")) {
		t.Errorf("total usd = %s, want 20000", totals.TotalUsd)
	}
}

func TestTotalsWithoutUsdReference(t *testing.T) {
	x := NewMockExchange("x").WithBalance("BTC", 1)
	empty := model.NewAggregatedMarket(time.Now())
	cb := NewValuator(time.Second).Consolidate(context.Background(), adapters(x), empty, mappingOf([]string{"x"}, "BTC"))

	totals := Totals(cb, empty, decimal.NullDecimal{})
	if totals.UsdAvailable {
		t.Error("usd total should be unavailable without a reference price")
	}
	if !totals.TotalBtc.Equal(dec("1")) {
		t.Errorf("total btc = %s", totals.TotalBtc)
	}
}

func TestConsolidateUnpricedHolding(t *testing.T) {
	x := NewMockExchange("x").WithBalance("BTC", 1).WithBalance("FOO", 5)
	cb := NewValuator(time.Second).Consolidate(context.Background(), adapters(x), btcUsdtMarket(), mappingOf([]string{"x"}, "BTC"))

	if len(cb.Faults) != 1 {
		t.Fatalf("faults = %v, want 1", cb.Faults)
	}
	if !errors.Is(cb.Faults[0], ErrNoBtcMarket) {
		t.Errorf("fault = %v, want ErrNoBtcMarket", cb.Faults[0])
	}
	foo := cb.Currencies["FOO"]
	if foo == nil || !foo.Unpriced || foo.Entries["x"].Priced {
		t.Fatalf("FOO = %+v", foo)
	}
	// 未估值的余额不能当作 0 计入
	totals := Totals(cb, btcUsdtMarket(), decimal.NullDecimal{})
	if len(totals.Unpriced) != 1 || totals.Unpriced[0] != "FOO" {
		t.Errorf("unpriced = %v", totals.Unpriced)
	}
	if !totals.TotalBtc.Equal(dec("1")) {
		t.Errorf("total btc = %s, want 1", totals.TotalBtc)
	}
}

func TestConsolidateSuppliedBtcValue(t *testing.T) {
	x := NewMockExchange("x")
	x.trading = true
	x.balances["FOO"] = model.RawBalance{Total: dec("5"), Available: dec("5"), BtcValue: model.Price(dec("0.25"))}

	cb := NewValuator(time.Second).Consolidate(context.Background(), adapters(x), btcUsdtMarket(), mappingOf([]string{"x"}, "FOO"))
	e := cb.Currencies["FOO"].Entries["x"]
	if !e.BtcSupplied || !e.Priced || !e.BtcValue.Equal(dec("0.25")) {
		t.Errorf("entry = %+v", e)
	}
	if len(cb.Faults) != 0 {
		t.Errorf("faults = %v", cb.Faults)
	}
}

func TestConsolidateAcrossExchanges(t *testing.T) {
	x := NewMockExchange("x").WithBalance("BTC", 1)
	y := NewMockExchange("y").WithBalance("XBT", 0.5).WithBalance("USDT", 0)
	noKeys := NewMockExchange("public")
	noKeys.balanceErr = errors.New("must not be called")

	b := model.NewCodeMappingBuilder()
	b.Add("x", "BTC", "BTC", "Bitcoin")
	b.Add("y", "XBT", "BTC", "")
	mapping := b.Build()

	cb := NewValuator(time.Second).Consolidate(context.Background(), adapters(x, y, noKeys), btcUsdtMarket(), mapping)
	btc := cb.Currencies["BTC"]
	if btc == nil || len(btc.Entries) != 2 {
		t.Fatalf("BTC = %+v", btc)
	}
	if !btc.Total.Equal(dec("1.5")) || btc.Name != "Bitcoin" {
		t.Errorf("BTC total = %s name = %s", btc.Total, btc.Name)
	}
	if btc.Entries["y"].LocalCode != "XBT" {
		t.Errorf("local code = %s", btc.Entries["y"].LocalCode)
	}
	if _, ok := cb.Currencies["USDT"]; ok {
		t.Error("zero balance should be skipped")
	}
}

func TestConsolidateFailedExchangeSkipped(t *testing.T) {
	x := NewMockExchange("x").WithBalance("BTC", 1)
	y := NewMockExchange("y").WithBalance("BTC", 3)
	y.balanceErr = errors.New("401")

	cb := NewValuator(time.Second).Consolidate(context.Background(), adapters(x, y), btcUsdtMarket(), mappingOf([]string{"x", "y"}, "BTC"))
	if !cb.Currencies["BTC"].Total.Equal(dec("1")) {
		t.Errorf("total = %s, want 1", cb.Currencies["BTC"].Total)
	}
}

func TestBtcRate(t *testing.T) {
	m := model.NewAggregatedMarket(time.Now())
	m.Put("BTC", "ETH", "x", model.MarketQuote{Bid: price(0.05), Ask: price(0.06), IsActive: true})
	m.Put("BTC", "ETH", "y", model.MarketQuote{Bid: price(0.07), Ask: price(0.08), IsActive: true})
	m.Put("USD", "BTC", "x", model.MarketQuote{Bid: price(10000), Ask: price(10000), IsActive: true})

	if r, _ := BtcRate(m, "BTC"); !r.Equal(dec("1")) {
		t.Errorf("BTC rate = %s", r)
	}
	// 两家交易所 mid 取平均
	if r, err := BtcRate(m, "ETH"); err != nil || !r.Equal(dec("0.065")) {
		t.Errorf("ETH rate = %s, %v", r, err)
	}
	if r, err := BtcRate(m, "USDT"); err != nil || !r.Equal(dec("0.0001")) {
		t.Errorf("USDT rate via USD = %s, %v", r, err)
	}
	if _, err := BtcRate(m, "DOGE"); !errors.Is(err, ErrNoBtcMarket) {
		t.Errorf("err = %v", err)
	}
	if ref, err := BtcUsdReference(m); err != nil || !ref.Equal(dec("10000")) {
		t.Errorf("btc/usd = %s, %v", ref, err)
	}
}
