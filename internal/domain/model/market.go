package model

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// MarketQuote 单个交易所单个交易对的行情
type MarketQuote struct {
	Exchange     string              `json:"exchange"`
	MarketSymbol string              `json:"market_symbol"` // 交易所原生交易对
	Bid          decimal.NullDecimal `json:"bid"`
	Ask          decimal.NullDecimal `json:"ask"`
	IsActive     bool                `json:"is_active"`
	IsRestricted bool                `json:"is_restricted"`
	BaseVolume   decimal.NullDecimal `json:"base_volume"`
	QuoteVolume  decimal.NullDecimal `json:"quote_volume"`
	Change24h    decimal.NullDecimal `json:"change_24h"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// Tradeable reports whether the quote belongs in the active view.
func (q MarketQuote) Tradeable() bool {
	return q.IsActive && !q.IsRestricted
}

// Mid returns (bid+ask)/2 when both sides are positive.
func (q MarketQuote) Mid() (decimal.Decimal, bool) {
	if !Positive(q.Bid) || !Positive(q.Ask) {
		return decimal.Zero, false
	}
	return q.Bid.Decimal.Add(q.Ask.Decimal).Div(decimal.NewFromInt(2)), true
}

// Positive reports whether a nullable price is present and > 0.
func Positive(d decimal.NullDecimal) bool {
	return d.Valid && d.Decimal.IsPositive()
}

// Price wraps a decimal as a present nullable price.
func Price(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NewNullDecimal(d)
}

// MarketTable is one exchange's markets keyed by global base -> global currency.
type MarketTable map[string]map[string]MarketQuote

// Put 写入一条行情
func (t MarketTable) Put(base, currency string, q MarketQuote) {
	row, ok := t[base]
	if !ok {
		row = make(map[string]MarketQuote)
		t[base] = row
	}
	row[currency] = q
}

// Len 行情条数
func (t MarketTable) Len() int {
	n := 0
	for _, row := range t {
		n += len(row)
	}
	return n
}

// Pair is a (base, currency) key of the aggregated view.
type Pair struct {
	Base     string `json:"base"`
	Currency string `json:"currency"`
}

// AggregatedMarket base -> currency -> exchange -> quote. Built once per
// pass and read-only afterwards.
type AggregatedMarket struct {
	quotes  map[string]map[string]map[string]MarketQuote
	builtAt time.Time
}

// NewAggregatedMarket creates an empty market stamped with builtAt.
func NewAggregatedMarket(builtAt time.Time) *AggregatedMarket {
	return &AggregatedMarket{
		quotes:  make(map[string]map[string]map[string]MarketQuote),
		builtAt: builtAt,
	}
}

// Put is only called by the aggregator while the market is under construction.
func (a *AggregatedMarket) Put(base, currency, exchange string, q MarketQuote) {
	byCurr, ok := a.quotes[base]
	if !ok {
		byCurr = make(map[string]map[string]MarketQuote)
		a.quotes[base] = byCurr
	}
	byEx, ok := byCurr[currency]
	if !ok {
		byEx = make(map[string]MarketQuote)
		byCurr[currency] = byEx
	}
	byEx[exchange] = q
}

// Quote 获取指定交易所的行情
func (a *AggregatedMarket) Quote(base, currency, exchange string) (MarketQuote, bool) {
	if a == nil {
		return MarketQuote{}, false
	}
	q, ok := a.quotes[base][currency][exchange]
	return q, ok
}

// Quotes returns exchange -> quote for one pair. The map must not be modified.
func (a *AggregatedMarket) Quotes(base, currency string) map[string]MarketQuote {
	if a == nil {
		return nil
	}
	return a.quotes[base][currency]
}

// Exchanges returns the sorted exchanges quoting a pair.
func (a *AggregatedMarket) Exchanges(base, currency string) []string {
	byEx := a.Quotes(base, currency)
	out := make([]string, 0, len(byEx))
	for ex := range byEx {
		out = append(out, ex)
	}
	sort.Strings(out)
	return out
}

// Currencies returns the sorted currency codes quoted against base.
func (a *AggregatedMarket) Currencies(base string) []string {
	if a == nil {
		return nil
	}
	out := make([]string, 0, len(a.quotes[base]))
	for c := range a.quotes[base] {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Bases returns all base codes, sorted.
func (a *AggregatedMarket) Bases() []string {
	if a == nil {
		return nil
	}
	out := make([]string, 0, len(a.quotes))
	for b := range a.quotes {
		out = append(out, b)
	}
	sort.Strings(out)
	return out
}

// Pairs returns every (base, currency) key in deterministic order.
func (a *AggregatedMarket) Pairs() []Pair {
	var out []Pair
	for _, b := range a.Bases() {
		for _, c := range a.Currencies(b) {
			out = append(out, Pair{Base: b, Currency: c})
		}
	}
	return out
}

// Len 行情总条数
func (a *AggregatedMarket) Len() int {
	if a == nil {
		return 0
	}
	n := 0
	for _, byCurr := range a.quotes {
		for _, byEx := range byCurr {
			n += len(byEx)
		}
	}
	return n
}

// BuiltAt 构建时间
func (a *AggregatedMarket) BuiltAt() time.Time {
	if a == nil {
		return time.Time{}
	}
	return a.builtAt
}
