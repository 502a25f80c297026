package model

import "github.com/shopspring/decimal"

// ========== Pairwise (cross-exchange) ==========

// PairwiseOpportunity 跨交易所价差套利机会：在 AskExchange 买入，在 BidExchange 卖出
type PairwiseOpportunity struct {
	Base        string          `json:"base"`
	Currency    string          `json:"currency"`
	BidExchange string          `json:"bid_exchange"` // 卖出交易所（最高买价）
	AskExchange string          `json:"ask_exchange"` // 买入交易所（最低卖价）
	BidPrice    decimal.Decimal `json:"bid_price"`
	AskPrice    decimal.Decimal `json:"ask_price"`
}

// Spread 价差百分比 (bid-ask)/ask*100
func (o PairwiseOpportunity) Spread() decimal.Decimal {
	if o.AskPrice.IsZero() {
		return decimal.Zero
	}
	return o.BidPrice.Sub(o.AskPrice).Div(o.AskPrice).Mul(decimal.NewFromInt(100))
}

// ========== Triangular (single exchange) ==========

// Action 交易方向
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
)

// Direction 三角套利方向
type Direction string

const (
	// DirectionForward base1 -> base2 -> currency -> base1
	DirectionForward Direction = "forward"
	// DirectionReverse base1 -> currency -> base2 -> base1
	DirectionReverse Direction = "reverse"
)

// TriangleLeg 三角套利中的一条腿
type TriangleLeg struct {
	Base         string          `json:"base"`
	Currency     string          `json:"currency"`
	MarketSymbol string          `json:"market_symbol"`
	Action       Action          `json:"action"`
	Price        decimal.Decimal `json:"price"`
}

// TriangularOpportunity 单交易所三角套利机会；三条腿必须在同一交易所成交
type TriangularOpportunity struct {
	Exchange  string          `json:"exchange"`
	Direction Direction       `json:"direction"`
	Legs      [3]TriangleLeg  `json:"legs"`
	Return    decimal.Decimal `json:"return"` // 预期收益百分比
}
