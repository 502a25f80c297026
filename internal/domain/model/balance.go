package model

import (
	"sort"

	"github.com/shopspring/decimal"
)

// RawBalance 交易所返回的余额（key 为本地币种代码）
type RawBalance struct {
	Available decimal.Decimal     `json:"available"`
	OnOrders  decimal.Decimal     `json:"on_orders"`
	Total     decimal.Decimal     `json:"total"`
	BtcValue  decimal.NullDecimal `json:"btc_value"` // 仅当交易所直接提供时有效
}

// BalanceEntry 单个交易所单个统一币种的余额
type BalanceEntry struct {
	Exchange    string          `json:"exchange"`
	Currency    string          `json:"currency"`
	LocalCode   string          `json:"local_code"`
	Available   decimal.Decimal `json:"available"`
	OnOrders    decimal.Decimal `json:"on_orders"`
	Total       decimal.Decimal `json:"total"`
	BtcValue    decimal.Decimal `json:"btc_value"`
	BtcSupplied bool            `json:"btc_supplied"`
	Priced      bool            `json:"priced"`
}

// ValuationFault marks a balance that could not be valued in BTC.
type ValuationFault struct {
	Exchange string `json:"exchange"`
	Currency string `json:"currency"`
	Err      error  `json:"-"`
}

func (f ValuationFault) Error() string {
	return f.Exchange + " " + f.Currency + ": " + f.Err.Error()
}

func (f ValuationFault) Unwrap() error { return f.Err }

// CurrencyBalance 一个统一币种在所有交易所的余额汇总
type CurrencyBalance struct {
	Code          string                  `json:"code"`
	Name          string                  `json:"name"`
	Entries       map[string]BalanceEntry `json:"entries"` // exchange -> entry
	Total         decimal.Decimal         `json:"total"`
	TotalBtcValue decimal.Decimal         `json:"total_btc_value"` // 仅包含已估值部分
	Unpriced      bool                    `json:"unpriced"`
}

// ConsolidatedBalance is rebuilt on every valuation and then shared read-only.
type ConsolidatedBalance struct {
	ID         string                      `json:"id"`
	Currencies map[string]*CurrencyBalance `json:"currencies"`
	Faults     []ValuationFault            `json:"-"`
	Timestamp  int64                       `json:"ts_ms"`
}

// Codes returns the held currency codes, sorted.
func (c *ConsolidatedBalance) Codes() []string {
	if c == nil {
		return nil
	}
	out := make([]string, 0, len(c.Currencies))
	for code := range c.Currencies {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// BalanceTotals 组合总值
type BalanceTotals struct {
	TotalBtc     decimal.Decimal `json:"total_btc"`
	TotalUsd     decimal.Decimal `json:"total_usd"`
	BtcUsdPrice  decimal.Decimal `json:"btc_usd_price"`
	UsdAvailable bool            `json:"usd_available"`
	Unpriced     []string        `json:"unpriced,omitempty"` // 无法估值的币种
}
