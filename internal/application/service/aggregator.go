package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"xtrader/internal/application/port"
	"xtrader/internal/domain/model"
)

// ExchangeLoad 单个交易所的行情加载情况
type ExchangeLoad struct {
	State   LoadState
	Quotes  int
	Elapsed time.Duration
	Err     error
}

// AggregateReport 行情聚合报告
type AggregateReport struct {
	Exchanges map[string]ExchangeLoad
	Quotes    int
	Dropped   int // 未激活/受限/无映射的行情
}

// Aggregator merges every exchange's active markets into one global-code view.
type Aggregator struct {
	timeout time.Duration
	now     func() time.Time

	mu   sync.Mutex
	last map[string]model.MarketTable // exchange -> last successful table
}

func NewAggregator(timeout time.Duration) *Aggregator {
	return &Aggregator{
		timeout: timeout,
		now:     time.Now,
		last:    make(map[string]model.MarketTable),
	}
}

// Aggregate rebuilds the aggregated market from scratch. Adapters that fail or
// miss the deadline contribute their previous table, if any.
func (a *Aggregator) Aggregate(ctx context.Context, adapters []port.Exchange, mapping *model.CodeMapping) (*model.AggregatedMarket, AggregateReport) {
	results := fanOut(ctx, adapters, a.timeout, func(ctx context.Context, ex port.Exchange) (model.MarketTable, error) {
		return ex.LoadMarkets(ctx)
	})

	report := AggregateReport{Exchanges: make(map[string]ExchangeLoad, len(adapters))}
	market := model.NewAggregatedMarket(a.now())

	a.mu.Lock()
	defer a.mu.Unlock()

	for i, ex := range adapters {
		name := ex.Name()
		res := results[i]
		load := ExchangeLoad{Elapsed: res.elapsed, Err: res.err}

		table := res.val
		switch {
		case !res.done:
			load.State = LoadTimeout
			table = a.last[name]
		case res.err != nil:
			load.State = LoadFailed
			table = a.last[name]
		default:
			load.State = LoadOK
			a.last[name] = table
		}
		if load.State != LoadOK {
			if table != nil {
				load.State = LoadStale
			}
			log.Warn().
				Err(res.err).
				Str("exchange", name).
				Str("state", string(load.State)).
				Msg("market load incomplete")
		}

		for base, row := range table {
			for curr, q := range row {
				if !q.Tradeable() || !mapping.Has(base) || !mapping.Has(curr) {
					report.Dropped++
					continue
				}
				q.Exchange = name
				market.Put(base, curr, name, q)
				load.Quotes++
			}
		}
		report.Quotes += load.Quotes
		report.Exchanges[name] = load
	}

	log.Info().
		Int("exchanges", len(adapters)).
		Int("quotes", report.Quotes).
		Int("dropped", report.Dropped).
		Msg("markets aggregated")
	return market, report
}
