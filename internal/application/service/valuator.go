package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"xtrader/internal/application/port"
	"xtrader/internal/domain/model"
)

// ErrNoBtcMarket 没有可用于估值的 BTC 交易对
var ErrNoBtcMarket = errors.New("no BTC market to value currency")

const (
	CodeBTC  = "BTC"
	CodeUSD  = "USD"
	CodeUSDT = "USDT"

	ratePrecision = 18
)

var one = decimal.NewFromInt(1)

// usdAliases USD 与 USDT 互为后备
var usdAliases = map[string]string{CodeUSD: CodeUSDT, CodeUSDT: CodeUSD}

// Valuator values every credentialed exchange's balances in BTC using the
// aggregated market.
type Valuator struct {
	timeout time.Duration
	now     func() time.Time
}

func NewValuator(timeout time.Duration) *Valuator {
	return &Valuator{timeout: timeout, now: time.Now}
}

// Consolidate fetches balances from every adapter with trading credentials and
// values each positive holding in BTC. Holdings that cannot be priced are kept
// with Priced=false and recorded in Faults; they never count as zero.
func (v *Valuator) Consolidate(ctx context.Context, adapters []port.Exchange, market *model.AggregatedMarket, mapping *model.CodeMapping) *model.ConsolidatedBalance {
	traders := make([]port.Exchange, 0, len(adapters))
	for _, ex := range adapters {
		if ex.HasCredentials() {
			traders = append(traders, ex)
		}
	}

	results := fanOut(ctx, traders, v.timeout, func(ctx context.Context, ex port.Exchange) (map[string]model.RawBalance, error) {
		return ex.LoadBalances(ctx)
	})

	cb := &model.ConsolidatedBalance{
		ID:         uuid.NewString(),
		Currencies: make(map[string]*model.CurrencyBalance),
		Timestamp:  v.now().UnixMilli(),
	}
	rates := make(map[string]decimal.Decimal)

	for i, ex := range traders {
		name := ex.Name()
		res := results[i]
		switch {
		case !res.done:
			log.Warn().Str("exchange", name).Msg("balance load timed out")
			continue
		case res.err != nil:
			log.Error().Err(res.err).Str("exchange", name).Msg("balance load failed")
			continue
		}

		locals := make([]string, 0, len(res.val))
		for local := range res.val {
			locals = append(locals, local)
		}
		sort.Strings(locals)

		for _, local := range locals {
			raw := res.val[local]
			if !raw.Total.IsPositive() {
				continue
			}
			global, ok := mapping.GlobalCode(name, local)
			if !ok {
				if global, ok = ex.GlobalCode(local); !ok {
					global = local
					log.Warn().Str("exchange", name).Str("currency", local).Msg("balance currency not reconciled, using local code")
				}
			}

			entry := model.BalanceEntry{
				Exchange:  name,
				Currency:  global,
				LocalCode: local,
				Available: raw.Available,
				OnOrders:  raw.OnOrders,
				Total:     raw.Total,
			}
			if raw.BtcValue.Valid {
				entry.BtcValue = raw.BtcValue.Decimal
				entry.BtcSupplied = true
				entry.Priced = true
			} else {
				rate, cached := rates[global]
				if !cached {
					var err error
					if rate, err = BtcRate(market, global); err != nil {
						fault := model.ValuationFault{Exchange: name, Currency: global, Err: err}
						cb.Faults = append(cb.Faults, fault)
						log.Warn().Err(err).Str("exchange", name).Str("currency", global).Msg("balance not valued")
					} else {
						rates[global] = rate
						cached = true
					}
				}
				if cached {
					entry.BtcValue = raw.Total.Mul(rate)
					entry.Priced = true
				}
			}

			cur := cb.Currencies[global]
			if cur == nil {
				cur = &model.CurrencyBalance{Code: global, Name: global, Entries: make(map[string]model.BalanceEntry)}
				if c, ok := mapping.Currency(global); ok {
					cur.Name = c.Name
				}
				cb.Currencies[global] = cur
			}
			cur.Entries[name] = entry
			cur.Total = cur.Total.Add(entry.Total)
			if entry.Priced {
				cur.TotalBtcValue = cur.TotalBtcValue.Add(entry.BtcValue)
			} else {
				cur.Unpriced = true
			}
		}
	}

	log.Info().
		Int("exchanges", len(traders)).
		Int("currencies", len(cb.Currencies)).
		Int("faults", len(cb.Faults)).
		Msg("balances consolidated")
	return cb
}

// Totals sums the BTC value of every priced currency and converts it to USD
// with btcUsd. When btcUsd is null the aggregated BTC/USD mid-price is used.
func Totals(cb *model.ConsolidatedBalance, market *model.AggregatedMarket, btcUsd decimal.NullDecimal) model.BalanceTotals {
	var t model.BalanceTotals
	for _, code := range cb.Codes() {
		cur := cb.Currencies[code]
		t.TotalBtc = t.TotalBtc.Add(cur.TotalBtcValue)
		if cur.Unpriced {
			t.Unpriced = append(t.Unpriced, code)
		}
	}

	price := btcUsd
	if !model.Positive(price) {
		if ref, err := BtcUsdReference(market); err == nil {
			price = model.Price(ref)
		}
	}
	if model.Positive(price) {
		t.BtcUsdPrice = price.Decimal
		t.TotalUsd = t.TotalBtc.Mul(price.Decimal)
		t.UsdAvailable = true
	}
	return t
}

// BtcRate returns how much BTC one unit of code is worth. BTC/code markets are
// read as BTC per unit; code/BTC markets (fiat and stablecoins) are read as
// units per BTC and inverted.
func BtcRate(market *model.AggregatedMarket, code string) (decimal.Decimal, error) {
	if code == CodeBTC {
		return one, nil
	}
	codes := []string{code}
	if alias, ok := usdAliases[code]; ok {
		codes = append(codes, alias)
	}
	for _, c := range codes {
		if mid, ok := averageMid(market, CodeBTC, c); ok {
			return mid, nil
		}
		if mid, ok := averageMid(market, c, CodeBTC); ok {
			return one.DivRound(mid, ratePrecision), nil
		}
	}
	return decimal.Zero, fmt.Errorf("%w: %s", ErrNoBtcMarket, code)
}

// BtcUsdReference returns USD per BTC from the aggregated market.
func BtcUsdReference(market *model.AggregatedMarket) (decimal.Decimal, error) {
	rate, err := BtcRate(market, CodeUSD)
	if err != nil {
		return decimal.Zero, err
	}
	return one.DivRound(rate, ratePrecision), nil
}

// averageMid averages the mid-prices of every exchange quoting base/currency.
func averageMid(market *model.AggregatedMarket, base, currency string) (decimal.Decimal, bool) {
	sum := decimal.Zero
	n := 0
	for _, ex := range market.Exchanges(base, currency) {
		q, _ := market.Quote(base, currency, ex)
		if mid, ok := q.Mid(); ok {
			sum = sum.Add(mid)
			n++
		}
	}
	if n == 0 {
		return decimal.Zero, false
	}
	return sum.Div(decimal.NewFromInt(int64(n))), true
}
