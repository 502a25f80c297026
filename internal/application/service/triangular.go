package service

import (
	"sort"

	"github.com/shopspring/decimal"

	"xtrader/internal/domain/model"
)

var hundred = decimal.NewFromInt(100)

// FindTriangular looks for three-leg cycles base1 -> base2 -> currency -> base1
// (and the reverse) whose legs all trade on the same exchange. A leg whose
// traded currency is disabled on the exchange makes the cycle ineligible,
// the same rule FindPairwise applies. Results are ordered by return.
func FindTriangular(market *model.AggregatedMarket, mapping *model.CodeMapping, gate CurrencyGate, requiredReturn decimal.Decimal) ([]model.TriangularOpportunity, error) {
	if err := checkRequiredReturn(requiredReturn); err != nil {
		return nil, err
	}
	if gate == nil {
		gate = AllEnabled
	}

	var out []model.TriangularOpportunity
	for _, base1 := range market.Bases() {
		for _, base2 := range market.Currencies(base1) {
			if base2 == base1 {
				continue
			}
			for _, curr := range market.Currencies(base2) {
				if curr == base1 || curr == base2 {
					continue
				}
				b1c := market.Quotes(base1, curr)
				if len(b1c) == 0 {
					continue
				}
				for _, ex := range market.Exchanges(base2, curr) {
					leg13, ok := b1c[ex]
					if !ok {
						continue
					}
					leg12, ok := market.Quote(base1, base2, ex)
					if !ok {
						continue
					}
					leg23, _ := market.Quote(base2, curr, ex)
					if !enabled(mapping, gate, ex, base2) || !enabled(mapping, gate, ex, curr) {
						continue
					}
					t := triangle{base1: base1, base2: base2, curr: curr, b1b2: leg12, b2c: leg23, b1c: leg13}
					if opp, ok := t.forward(requiredReturn); ok {
						opp.Exchange = ex
						out = append(out, opp)
					}
					if opp, ok := t.reverse(requiredReturn); ok {
						opp.Exchange = ex
						out = append(out, opp)
					}
				}
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Return.GreaterThan(out[j].Return)
	})
	return out, nil
}

type triangle struct {
	base1, base2, curr string
	b1b2, b2c, b1c     model.MarketQuote
}

// forward: buy base2 with base1, buy currency with base2, sell currency for base1.
func (t triangle) forward(rr decimal.Decimal) (model.TriangularOpportunity, bool) {
	if !model.Positive(t.b1b2.Ask) || !model.Positive(t.b2c.Ask) || !model.Positive(t.b1c.Bid) {
		return model.TriangularOpportunity{}, false
	}
	cost := t.b1b2.Ask.Decimal.Mul(t.b2c.Ask.Decimal)
	if !cost.Mul(rr).LessThan(t.b1c.Bid.Decimal) {
		return model.TriangularOpportunity{}, false
	}
	return model.TriangularOpportunity{
		Direction: model.DirectionForward,
		Legs: [3]model.TriangleLeg{
			leg(t.base1, t.base2, t.b1b2, model.ActionBuy, t.b1b2.Ask.Decimal),
			leg(t.base2, t.curr, t.b2c, model.ActionBuy, t.b2c.Ask.Decimal),
			leg(t.base1, t.curr, t.b1c, model.ActionSell, t.b1c.Bid.Decimal),
		},
		Return: hundred.Mul(t.b1c.Bid.Decimal.Div(cost).Sub(decimal.NewFromInt(1))),
	}, true
}

// reverse: buy currency with base1, sell currency for base2, sell base2 for base1.
func (t triangle) reverse(rr decimal.Decimal) (model.TriangularOpportunity, bool) {
	if !model.Positive(t.b1b2.Bid) || !model.Positive(t.b2c.Bid) || !model.Positive(t.b1c.Ask) {
		return model.TriangularOpportunity{}, false
	}
	proceeds := t.b1b2.Bid.Decimal.Mul(t.b2c.Bid.Decimal)
	if !proceeds.GreaterThan(t.b1c.Ask.Decimal.Mul(rr)) {
		return model.TriangularOpportunity{}, false
	}
	return model.TriangularOpportunity{
		Direction: model.DirectionReverse,
		Legs: [3]model.TriangleLeg{
			leg(t.base1, t.curr, t.b1c, model.ActionBuy, t.b1c.Ask.Decimal),
			leg(t.base2, t.curr, t.b2c, model.ActionSell, t.b2c.Bid.Decimal),
			leg(t.base1, t.base2, t.b1b2, model.ActionSell, t.b1b2.Bid.Decimal),
		},
		Return: hundred.Mul(proceeds.Div(t.b1c.Ask.Decimal).Sub(decimal.NewFromInt(1))),
	}, true
}

func leg(base, curr string, q model.MarketQuote, action model.Action, price decimal.Decimal) model.TriangleLeg {
	return model.TriangleLeg{
		Base:         base,
		Currency:     curr,
		MarketSymbol: q.MarketSymbol,
		Action:       action,
		Price:        price,
	}
}
