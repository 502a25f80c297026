package service

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"xtrader/internal/domain/model"
)

// ErrInvalidRequiredReturn required return multiplier must be >= 1
var ErrInvalidRequiredReturn = errors.New("required return must be >= 1")

// CurrencyGate reports whether a local currency code is enabled (deposits and
// withdrawals open) on an exchange.
type CurrencyGate func(exchange, local string) bool

// AllEnabled is a gate that treats every currency as enabled.
func AllEnabled(string, string) bool { return true }

func checkRequiredReturn(rr decimal.Decimal) error {
	if rr.LessThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: got %s", ErrInvalidRequiredReturn, rr)
	}
	return nil
}

// enabled resolves the global code to the exchange's local code and asks the gate.
// A code the exchange has no mapping for is never enabled.
func enabled(mapping *model.CodeMapping, gate CurrencyGate, exchange, global string) bool {
	local, ok := mapping.LocalCode(exchange, global)
	if !ok {
		return false
	}
	return gate(exchange, local)
}

// FindPairwise scans every (base, currency) pair quoted on two or more
// exchanges for a best bid that beats the best ask by requiredReturn. Only
// quotes whose traded currency is enabled on their exchange take part, and
// the bid and ask always come from different exchanges. Results are ordered by spread, largest first.
func FindPairwise(market *model.AggregatedMarket, mapping *model.CodeMapping, gate CurrencyGate, requiredReturn decimal.Decimal) ([]model.PairwiseOpportunity, error) {
	if err := checkRequiredReturn(requiredReturn); err != nil {
		return nil, err
	}
	if gate == nil {
		gate = AllEnabled
	}

	var out []model.PairwiseOpportunity
	for _, p := range market.Pairs() {
		exchanges := market.Exchanges(p.Base, p.Currency)
		if len(exchanges) < 2 {
			continue
		}
		quotes := market.Quotes(p.Base, p.Currency)

		var bids, asks []side
		for _, ex := range exchanges {
			if !enabled(mapping, gate, ex, p.Currency) {
				continue
			}
			q := quotes[ex]
			if model.Positive(q.Bid) {
				bids = append(bids, side{ex, q.Bid.Decimal})
			}
			if model.Positive(q.Ask) {
				asks = append(asks, side{ex, q.Ask.Decimal})
			}
		}
		bid, ask, ok := bestCross(bids, asks)
		if !ok {
			continue
		}
		bestBid, bestAsk, bidEx, askEx := bid.price, ask.price, bid.exchange, ask.exchange
		if !bestBid.GreaterThan(bestAsk.Mul(requiredReturn)) {
			continue
		}
		out = append(out, model.PairwiseOpportunity{
			Base:        p.Base,
			Currency:    p.Currency,
			BidExchange: bidEx,
			AskExchange: askEx,
			BidPrice:    bestBid,
			AskPrice:    bestAsk,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Spread().GreaterThan(out[j].Spread())
	})
	return out, nil
}

type side struct {
	exchange string
	price    decimal.Decimal
}

// bestCross picks the highest bid and lowest ask on two different exchanges.
// When both extremes sit on one exchange, the better of (its bid, best other
// ask) and (best other bid, its ask) is taken.
func bestCross(bids, asks []side) (bid, ask side, ok bool) {
	hi, okBid := extreme(bids, "", decimal.Decimal.GreaterThan)
	lo, okAsk := extreme(asks, "", decimal.Decimal.LessThan)
	if !okBid || !okAsk {
		return side{}, side{}, false
	}
	if hi.exchange != lo.exchange {
		return hi, lo, true
	}

	lo2, okAsk2 := extreme(asks, hi.exchange, decimal.Decimal.LessThan)
	hi2, okBid2 := extreme(bids, lo.exchange, decimal.Decimal.GreaterThan)
	switch {
	case okAsk2 && okBid2:
		// 比较 bid/ask 比值：hi/lo2 与 hi2/lo
		if hi.price.Mul(lo.price).GreaterThanOrEqual(hi2.price.Mul(lo2.price)) {
			return hi, lo2, true
		}
		return hi2, lo, true
	case okAsk2:
		return hi, lo2, true
	case okBid2:
		return hi2, lo, true
	}
	return side{}, side{}, false
}

// extreme returns the best entry under better, skipping exclude.
func extreme(sides []side, exclude string, better func(decimal.Decimal, decimal.Decimal) bool) (side, bool) {
	var best side
	found := false
	for _, s := range sides {
		if s.exchange == exclude {
			continue
		}
		if !found || better(s.price, best.price) {
			best, found = s, true
		}
	}
	return best, found
}
