package storage

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"xtrader/internal/application/port"
	"xtrader/internal/domain/model"
)

// Opportunity kinds
const (
	KindPairwise   = "pairwise"
	KindTriangular = "triangular"
)

// QuoteRow 一条行情，按 (exchange, base, currency) 唯一
type QuoteRow struct {
	Exchange  string              `json:"exchange"`
	Base      string              `json:"base"`
	Currency  string              `json:"currency"`
	Symbol    string              `json:"symbol"`
	Bid       decimal.NullDecimal `json:"bid"`
	Ask       decimal.NullDecimal `json:"ask"`
	UpdatedMs int64               `json:"updated_ms"`
}

// OpportunityRow 一条套利机会，Payload 为完整 JSON
type OpportunityRow struct {
	Kind     string          `json:"kind"`
	Key      string          `json:"key"`
	Exchange string          `json:"exchange"`
	Return   decimal.Decimal `json:"return"` // 百分比
	Payload  string          `json:"payload"`
}

// BalanceRow 一条余额，按 (exchange, currency) 唯一
type BalanceRow struct {
	Exchange  string              `json:"exchange"`
	Currency  string              `json:"currency"`
	Available decimal.Decimal     `json:"available"`
	OnOrders  decimal.Decimal     `json:"on_orders"`
	Total     decimal.Decimal     `json:"total"`
	BtcValue  decimal.NullDecimal `json:"btc_value"`
}

// Quotes flattens the aggregated market in deterministic order.
func Quotes(snap *port.Snapshot) []QuoteRow {
	if snap.Market == nil {
		return nil
	}
	var out []QuoteRow
	for _, p := range snap.Market.Pairs() {
		for _, ex := range snap.Market.Exchanges(p.Base, p.Currency) {
			q, _ := snap.Market.Quote(p.Base, p.Currency, ex)
			row := QuoteRow{
				Exchange: ex,
				Base:     p.Base,
				Currency: p.Currency,
				Symbol:   q.MarketSymbol,
				Bid:      q.Bid,
				Ask:      q.Ask,
			}
			if !q.UpdatedAt.IsZero() {
				row.UpdatedMs = q.UpdatedAt.UnixMilli()
			}
			out = append(out, row)
		}
	}
	return out
}

// Opportunities flattens both detector outputs.
func Opportunities(snap *port.Snapshot) ([]OpportunityRow, error) {
	out := make([]OpportunityRow, 0, len(snap.Pairwise)+len(snap.Triangular))
	for _, o := range snap.Pairwise {
		b, err := json.Marshal(o)
		if err != nil {
			return nil, fmt.Errorf("marshal pairwise: %w", err)
		}
		out = append(out, OpportunityRow{
			Kind:     KindPairwise,
			Key:      o.Base + "/" + o.Currency,
			Exchange: o.AskExchange + ">" + o.BidExchange,
			Return:   o.Spread(),
			Payload:  string(b),
		})
	}
	for _, o := range snap.Triangular {
		b, err := json.Marshal(o)
		if err != nil {
			return nil, fmt.Errorf("marshal triangular: %w", err)
		}
		legs := make([]string, 0, len(o.Legs))
		for _, l := range o.Legs {
			legs = append(legs, l.Base+"/"+l.Currency)
		}
		out = append(out, OpportunityRow{
			Kind:     KindTriangular,
			Key:      string(o.Direction) + ":" + strings.Join(legs, ","),
			Exchange: o.Exchange,
			Return:   o.Return,
			Payload:  string(b),
		})
	}
	return out, nil
}

// Balances flattens the consolidated balance; unpriced entries have a null BtcValue.
func Balances(snap *port.Snapshot) []BalanceRow {
	if snap.Balances == nil {
		return nil
	}
	var out []BalanceRow
	for _, code := range snap.Balances.Codes() {
		cur := snap.Balances.Currencies[code]
		for _, ex := range sortedKeys(cur.Entries) {
			e := cur.Entries[ex]
			row := BalanceRow{
				Exchange:  ex,
				Currency:  code,
				Available: e.Available,
				OnOrders:  e.OnOrders,
				Total:     e.Total,
			}
			if e.Priced {
				row.BtcValue = decimal.NewNullDecimal(e.BtcValue)
			}
			out = append(out, row)
		}
	}
	return out
}

func sortedKeys(m map[string]model.BalanceEntry) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// SortByReturn 按收益降序，收益相同按 kind/key/exchange
func SortByReturn(rows []OpportunityRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		if c := rows[i].Return.Cmp(rows[j].Return); c != 0 {
			return c > 0
		}
		if rows[i].Kind != rows[j].Kind {
			return rows[i].Kind < rows[j].Kind
		}
		if rows[i].Key != rows[j].Key {
			return rows[i].Key < rows[j].Key
		}
		return rows[i].Exchange < rows[j].Exchange
	})
}
