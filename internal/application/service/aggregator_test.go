package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"xtrader/internal/domain/model"
)

func fixedAggregator(timeout time.Duration, at time.Time) *Aggregator {
	a := NewAggregator(timeout)
	a.now = func() time.Time { return at }
	return a
}

func TestAggregateMergesExchanges(t *testing.T) {
	x := NewMockExchange("x").WithQuote("USD", "BTC", 9000, 9010)
	y := NewMockExchange("y").WithQuote("USD", "BTC", 9100, 9120).WithQuote("BTC", "ETH", 0.05, 0.051)
	mapping := mappingOf([]string{"x", "y"}, "BTC", "USD", "ETH")

	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	market, report := fixedAggregator(time.Second, at).Aggregate(context.Background(), adapters(x, y), mapping)

	if market.Len() != 3 || report.Quotes != 3 {
		t.Fatalf("len = %d, report = %d, want 3", market.Len(), report.Quotes)
	}
	if got := market.Exchanges("USD", "BTC"); len(got) != 2 || got[0] != "x" || got[1] != "y" {
		t.Errorf("exchanges = %v", got)
	}
	q, ok := market.Quote("USD", "BTC", "y")
	if !ok || q.Exchange != "y" || !q.Bid.Decimal.Equal(dec("9100")) {
		t.Errorf("quote = %+v", q)
	}
	if !market.BuiltAt().Equal(at) {
		t.Errorf("builtAt = %v", market.BuiltAt())
	}
}

func TestAggregateDropsInactiveAndUnmapped(t *testing.T) {
	x := NewMockExchange("x").WithQuote("USD", "BTC", 9000, 9010)
	x.markets.Put("USD", "LTC", model.MarketQuote{Bid: price(60), Ask: price(61)}) // inactive
	x.markets.Put("USD", "XRP", model.MarketQuote{Bid: price(1), Ask: price(1.1), IsActive: true, IsRestricted: true})
	x.markets.Put("USD", "DOGE", model.MarketQuote{Bid: price(0.1), Ask: price(0.11), IsActive: true})

	mapping := mappingOf([]string{"x"}, "BTC", "USD", "LTC", "XRP")
	market, report := NewAggregator(time.Second).Aggregate(context.Background(), adapters(x), mapping)

	if market.Len() != 1 {
		t.Errorf("len = %d, want 1", market.Len())
	}
	if report.Dropped != 3 {
		t.Errorf("dropped = %d, want 3", report.Dropped)
	}
	for _, c := range []string{"LTC", "XRP", "DOGE"} {
		if _, ok := market.Quote("USD", c, "x"); ok {
			t.Errorf("%s should have been dropped", c)
		}
	}
}

func TestAggregateIsIdempotent(t *testing.T) {
	x := NewMockExchange("x").WithQuote("USD", "BTC", 9000, 9010).WithQuote("BTC", "ETH", 0.05, 0.051)
	y := NewMockExchange("y").WithQuote("USD", "BTC", 9100, 9120)
	mapping := mappingOf([]string{"x", "y"}, "BTC", "USD", "ETH")

	agg := fixedAggregator(time.Second, time.Unix(1700000000, 0))
	m1, _ := agg.Aggregate(context.Background(), adapters(x, y), mapping)
	m2, _ := agg.Aggregate(context.Background(), adapters(x, y), mapping)

	p1, p2 := m1.Pairs(), m2.Pairs()
	if len(p1) != len(p2) {
		t.Fatalf("pairs differ: %v vs %v", p1, p2)
	}
	for i := range p1 {
		if p1[i] != p2[i] {
			t.Fatalf("pair %d differs: %v vs %v", i, p1[i], p2[i])
		}
		for _, ex := range m1.Exchanges(p1[i].Base, p1[i].Currency) {
			q1, _ := m1.Quote(p1[i].Base, p1[i].Currency, ex)
			q2, _ := m2.Quote(p1[i].Base, p1[i].Currency, ex)
			if !q1.Bid.Decimal.Equal(q2.Bid.Decimal) || !q1.Ask.Decimal.Equal(q2.Ask.Decimal) {
				t.Errorf("%v@%s differs", p1[i], ex)
			}
		}
	}
	if !m1.BuiltAt().Equal(m2.BuiltAt()) {
		t.Error("builtAt differs")
	}
}

func TestAggregateStaleAfterFailure(t *testing.T) {
	x := NewMockExchange("x").WithQuote("USD", "BTC", 9000, 9010)
	mapping := mappingOf([]string{"x"}, "BTC", "USD")

	agg := NewAggregator(time.Second)
	if _, report := agg.Aggregate(context.Background(), adapters(x), mapping); report.Exchanges["x"].State != LoadOK {
		t.Fatalf("first pass state = %s", report.Exchanges["x"].State)
	}

	x.marketErr = errors.New("503")
	market, report := agg.Aggregate(context.Background(), adapters(x), mapping)
	load := report.Exchanges["x"]
	if load.State != LoadStale {
		t.Errorf("state = %s, want %s", load.State, LoadStale)
	}
	if load.Err == nil {
		t.Error("error should be reported")
	}
	if _, ok := market.Quote("USD", "BTC", "x"); !ok {
		t.Error("stale quote should be carried forward")
	}
}

func TestAggregateFailureWithoutHistory(t *testing.T) {
	x := NewMockExchange("x")
	x.marketErr = errors.New("down")
	y := NewMockExchange("y").WithQuote("USD", "BTC", 9100, 9120)
	mapping := mappingOf([]string{"x", "y"}, "BTC", "USD")

	market, report := NewAggregator(time.Second).Aggregate(context.Background(), adapters(x, y), mapping)
	if report.Exchanges["x"].State != LoadFailed {
		t.Errorf("state = %s, want %s", report.Exchanges["x"].State, LoadFailed)
	}
	if market.Len() != 1 {
		t.Errorf("len = %d, want 1", market.Len())
	}
}

func TestAggregateTimeoutDoesNotBlock(t *testing.T) {
	fast := NewMockExchange("fast").WithQuote("USD", "BTC", 9000, 9010)
	slow := NewMockExchange("slow").WithQuote("USD", "BTC", 9100, 9120)
	slow.delay = 2 * time.Second
	mapping := mappingOf([]string{"fast", "slow"}, "BTC", "USD")

	start := time.Now()
	market, report := NewAggregator(50*time.Millisecond).Aggregate(context.Background(), adapters(fast, slow), mapping)
	if time.Since(start) > time.Second {
		t.Errorf("aggregate blocked for %v", time.Since(start))
	}
	if report.Exchanges["slow"].State != LoadTimeout {
		t.Errorf("state = %s, want %s", report.Exchanges["slow"].State, LoadTimeout)
	}
	if got := market.Exchanges("USD", "BTC"); len(got) != 1 || got[0] != "fast" {
		t.Errorf("exchanges = %v, want [fast]", got)
	}
}
