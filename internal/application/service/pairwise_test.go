package service

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"xtrader/internal/domain/model"
)

func pairwiseMarket() *model.AggregatedMarket {
	m := model.NewAggregatedMarket(time.Now())
	m.Put("USD", "BTC", "x", model.MarketQuote{Exchange: "x", Bid: price(9000), Ask: price(9010), IsActive: true})
	m.Put("USD", "BTC", "y", model.MarketQuote{Exchange: "y", Bid: price(9100), Ask: price(9120), IsActive: true})
	return m
}

func TestFindPairwise(t *testing.T) {
	mapping := mappingOf([]string{"x", "y"}, "BTC", "USD")

	opps, err := FindPairwise(pairwiseMarket(), mapping, AllEnabled, decimal.NewFromInt(1))
	if err != nil {
		t.Fatalf("FindPairwise: %v", err)
	}
	if len(opps) != 1 {
		t.Fatalf("got %d opportunities, want 1", len(opps))
	}
	o := opps[0]
	if o.BidExchange != "y" || !o.BidPrice.Equal(dec("9100")) {
		t.Errorf("best bid = %s@%s, want 9100@y", o.BidPrice, o.BidExchange)
	}
	if o.AskExchange != "x" || !o.AskPrice.Equal(dec("9010")) {
		t.Errorf("best ask = %s@%s, want 9010@x", o.AskPrice, o.AskExchange)
	}
	if o.Base != "USD" || o.Currency != "BTC" {
		t.Errorf("pair = %s/%s", o.Base, o.Currency)
	}
	if !o.Spread().IsPositive() {
		t.Errorf("spread = %s", o.Spread())
	}
}

func TestFindPairwiseRequiredReturnSuppresses(t *testing.T) {
	mapping := mappingOf([]string{"x", "y"}, "BTC", "USD")
	// 9100 <= 9010 * 1.02 = 9190.2
	opps, err := FindPairwise(pairwiseMarket(), mapping, AllEnabled, dec("1.02"))
	if err != nil {
		t.Fatalf("FindPairwise: %v", err)
	}
	if len(opps) != 0 {
		t.Errorf("got %d opportunities, want 0", len(opps))
	}
}

func TestFindPairwiseInvalidRequiredReturn(t *testing.T) {
	_, err := FindPairwise(pairwiseMarket(), nil, AllEnabled, dec("0.99"))
	if !errors.Is(err, ErrInvalidRequiredReturn) {
		t.Errorf("err = %v, want ErrInvalidRequiredReturn", err)
	}
}

func TestFindPairwiseSkipsDisabledCurrency(t *testing.T) {
	mapping := mappingOf([]string{"x", "y"}, "BTC", "USD")
	// y 暂停了 BTC 充提，只剩 x 一家
	gate := func(exchange, local string) bool {
		return !(exchange == "y" && local == "BTC")
	}
	opps, err := FindPairwise(pairwiseMarket(), mapping, gate, decimal.NewFromInt(1))
	if err != nil {
		t.Fatalf("FindPairwise: %v", err)
	}
	if len(opps) != 0 {
		t.Errorf("got %+v, want none", opps)
	}
}

func TestFindPairwiseUnmappedNotEnabled(t *testing.T) {
	// y 没有 BTC 的映射
	mapping := mappingOf([]string{"x"}, "BTC", "USD")
	opps, _ := FindPairwise(pairwiseMarket(), mapping, AllEnabled, decimal.NewFromInt(1))
	if len(opps) != 0 {
		t.Errorf("got %+v, want none", opps)
	}
}

func TestFindPairwiseSingleExchangeIgnored(t *testing.T) {
	m := model.NewAggregatedMarket(time.Now())
	// 同一交易所 bid > ask 的异常行情不构成跨所机会
	m.Put("USD", "BTC", "x", model.MarketQuote{Bid: price(9200), Ask: price(9000), IsActive: true})
	opps, _ := FindPairwise(m, mappingOf([]string{"x"}, "BTC", "USD"), AllEnabled, decimal.NewFromInt(1))
	if len(opps) != 0 {
		t.Errorf("got %+v, want none", opps)
	}
}

func TestFindPairwiseOrderedBySpread(t *testing.T) {
	m := pairwiseMarket()
	m.Put("USD", "ETH", "x", model.MarketQuote{Bid: price(100), Ask: price(101), IsActive: true})
	m.Put("USD", "ETH", "y", model.MarketQuote{Bid: price(110), Ask: price(111), IsActive: true})
	mapping := mappingOf([]string{"x", "y"}, "BTC", "USD", "ETH")

	opps, err := FindPairwise(m, mapping, AllEnabled, decimal.NewFromInt(1))
	if err != nil {
		t.Fatalf("FindPairwise: %v", err)
	}
	if len(opps) != 2 {
		t.Fatalf("got %d opportunities, want 2", len(opps))
	}
	if opps[0].Currency != "ETH" {
		t.Errorf("first = %s, want ETH (larger spread)", opps[0].Currency)
	}
}

func crossedMarket() *model.AggregatedMarket {
	m := model.NewAggregatedMarket(time.Now())
	m.Put("USD", "BTC", "x", model.MarketQuote{Exchange: "x", Bid: price(9100), Ask: price(9000), IsActive: true})
	m.Put("USD", "BTC", "y", model.MarketQuote{Exchange: "y", Bid: price(9050), Ask: price(9060), IsActive: true})
	return m
}

func TestFindPairwiseNeverSameExchange(t *testing.T) {
	mapping := mappingOf([]string{"x", "y"}, "BTC", "USD")
	onlyX := func(ex, _ string) bool { return ex == "x" }

	opps, err := FindPairwise(crossedMarket(), mapping, onlyX, decimal.NewFromInt(1))
	if err != nil {
		t.Fatalf("FindPairwise: %v", err)
	}
	if len(opps) != 0 {
		t.Errorf("crossed book on one exchange reported: %+v", opps)
	}
}

func TestFindPairwiseCrossedBookPicksBestCross(t *testing.T) {
	mapping := mappingOf([]string{"x", "y"}, "BTC", "USD")

	opps, err := FindPairwise(crossedMarket(), mapping, AllEnabled, decimal.NewFromInt(1))
	if err != nil {
		t.Fatalf("FindPairwise: %v", err)
	}
	if len(opps) != 1 {
		t.Fatalf("got %d opportunities, want 1", len(opps))
	}
	// x: 9100/9000, y: 9050/9060; 9050/9000 优于 9100/9060
	o := opps[0]
	if o.BidExchange != "y" || o.AskExchange != "x" {
		t.Errorf("bid %s@%s ask %s@%s, want bid@y ask@x", o.BidPrice, o.BidExchange, o.AskPrice, o.AskExchange)
	}
	if !o.BidPrice.Equal(dec("9050")) || !o.AskPrice.Equal(dec("9000")) {
		t.Errorf("prices = %s/%s, want 9050/9000", o.BidPrice, o.AskPrice)
	}
}

func TestBestCross(t *testing.T) {
	tests := []struct {
		name             string
		bids, asks       []side
		wantBid, wantAsk string
		wantOK           bool
	}{
		{"distinct", []side{{"x", dec("10")}, {"y", dec("12")}}, []side{{"x", dec("9")}, {"y", dec("13")}}, "y", "x", true},
		{"one exchange only", []side{{"x", dec("10")}}, []side{{"x", dec("9")}}, "", "", false},
		{"other ask only", []side{{"x", dec("10")}}, []side{{"x", dec("9")}, {"y", dec("9.5")}}, "x", "y", true},
		{"no asks", []side{{"x", dec("10")}}, nil, "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bid, ask, ok := bestCross(tt.bids, tt.asks)
			if ok != tt.wantOK || bid.exchange != tt.wantBid || ask.exchange != tt.wantAsk {
				t.Errorf("bestCross = %s/%s %v, want %s/%s %v", bid.exchange, ask.exchange, ok, tt.wantBid, tt.wantAsk, tt.wantOK)
			}
		})
	}
}
