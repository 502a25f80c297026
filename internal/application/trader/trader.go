package trader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"xtrader/internal/application/port"
	"xtrader/internal/application/service"
	"xtrader/internal/domain/model"
)

// ErrNotInitialized Init 尚未完成
var ErrNotInitialized = errors.New("trader not initialized")

// Deps 构建 Trader 所需的依赖
type Deps struct {
	Exchanges   []port.Exchange // 按配置的加载顺序
	Rename      service.RenameMap
	LoadTimeout time.Duration
	BtcUsdPrice decimal.NullDecimal // 外部 BTC/USD 参考价，可为空
}

// Trader owns initialization order (currencies, then markets) and the
// current snapshots. Each snapshot is replaced by a single atomic store, so
// readers always see a complete structure.
type Trader struct {
	exchanges   []port.Exchange
	byName      map[string]port.Exchange
	rename      service.RenameMap
	btcUsdPrice decimal.NullDecimal

	reconciler *service.Reconciler
	aggregator *service.Aggregator
	valuator   *service.Valuator

	// 对账与行情刷新互斥，保证行情总是基于完整的映射
	refreshMu sync.Mutex

	mapping  atomic.Pointer[model.CodeMapping]
	market   atomic.Pointer[model.AggregatedMarket]
	balances atomic.Pointer[model.ConsolidatedBalance]
}

// New validates the configuration-derived inputs. Errors here are fatal.
func New(deps Deps) (*Trader, error) {
	if len(deps.Exchanges) == 0 {
		return nil, errors.New("no exchanges configured")
	}
	byName := make(map[string]port.Exchange, len(deps.Exchanges))
	names := make([]string, 0, len(deps.Exchanges))
	for _, ex := range deps.Exchanges {
		if _, dup := byName[ex.Name()]; dup {
			return nil, fmt.Errorf("exchange %s configured twice", ex.Name())
		}
		byName[ex.Name()] = ex
		names = append(names, ex.Name())
	}
	if err := deps.Rename.Validate(names); err != nil {
		return nil, err
	}

	timeout := deps.LoadTimeout
	if timeout <= 0 {
		timeout = service.DefaultLoadTimeout
	}
	return &Trader{
		exchanges:   deps.Exchanges,
		byName:      byName,
		rename:      deps.Rename,
		btcUsdPrice: deps.BtcUsdPrice,
		reconciler:  service.NewReconciler(timeout),
		aggregator:  service.NewAggregator(timeout),
		valuator:    service.NewValuator(timeout),
	}, nil
}

// Init reconciles currencies and then loads markets. The market pass only
// starts after reconciliation has fully completed.
func (t *Trader) Init(ctx context.Context) error {
	t.refreshMu.Lock()
	defer t.refreshMu.Unlock()

	t.reconcileLocked(ctx)
	if len(t.mapping.Load().Codes()) == 0 {
		return errors.New("no currencies loaded from any exchange")
	}
	t.aggregateLocked(ctx)
	return nil
}

// RefreshCurrencies 重新对账（频率较低）
func (t *Trader) RefreshCurrencies(ctx context.Context) service.ReconcileReport {
	t.refreshMu.Lock()
	defer t.refreshMu.Unlock()
	return t.reconcileLocked(ctx)
}

// RefreshMarkets 重新聚合行情
func (t *Trader) RefreshMarkets(ctx context.Context) (service.AggregateReport, error) {
	t.refreshMu.Lock()
	defer t.refreshMu.Unlock()
	if t.mapping.Load() == nil {
		return service.AggregateReport{}, ErrNotInitialized
	}
	return t.aggregateLocked(ctx), nil
}

func (t *Trader) reconcileLocked(ctx context.Context) service.ReconcileReport {
	mapping, report := t.reconciler.Reconcile(ctx, t.exchanges, t.rename, t.mapping.Load())
	t.mapping.Store(mapping)
	return report
}

func (t *Trader) aggregateLocked(ctx context.Context) service.AggregateReport {
	market, report := t.aggregator.Aggregate(ctx, t.exchanges, t.mapping.Load())
	t.market.Store(market)
	return report
}

// Mapping 当前币种映射快照
func (t *Trader) Mapping() *model.CodeMapping { return t.mapping.Load() }

// Market 当前聚合行情快照
func (t *Trader) Market() *model.AggregatedMarket { return t.market.Load() }

// Exchanges returns the adapters in load order.
func (t *Trader) Exchanges() []port.Exchange { return t.exchanges }

// CanonicalCode 交易所本地代码 -> 统一代码
func (t *Trader) CanonicalCode(exchange, local string) (string, bool) {
	return t.mapping.Load().GlobalCode(exchange, local)
}

// MarketSymbol returns the exchange-native symbol of base/currency.
func (t *Trader) MarketSymbol(exchange, base, currency string) (string, bool) {
	q, ok := t.market.Load().Quote(base, currency, exchange)
	if !ok || q.MarketSymbol == "" {
		return "", false
	}
	return q.MarketSymbol, true
}

// IsCurrencyEnabled is the CurrencyGate backed by the adapters.
func (t *Trader) IsCurrencyEnabled(exchange, local string) bool {
	ex, ok := t.byName[exchange]
	if !ok {
		return false
	}
	return ex.IsCurrencyEnabled(local)
}

// PairwiseArbitrage 跨交易所套利机会
func (t *Trader) PairwiseArbitrage(requiredReturn decimal.Decimal) ([]model.PairwiseOpportunity, error) {
	market, mapping := t.market.Load(), t.mapping.Load()
	if market == nil {
		return nil, ErrNotInitialized
	}
	return service.FindPairwise(market, mapping, t.IsCurrencyEnabled, requiredReturn)
}

// TriangularArbitrage 单交易所三角套利机会
func (t *Trader) TriangularArbitrage(requiredReturn decimal.Decimal) ([]model.TriangularOpportunity, error) {
	market, mapping := t.market.Load(), t.mapping.Load()
	if market == nil {
		return nil, ErrNotInitialized
	}
	return service.FindTriangular(market, mapping, t.IsCurrencyEnabled, requiredReturn)
}

// HasTrading reports whether any adapter has trading credentials.
func (t *Trader) HasTrading() bool {
	for _, ex := range t.exchanges {
		if ex.HasCredentials() {
			return true
		}
	}
	return false
}

// ConsolidatedBalances recomputes balances and keeps the result as the last snapshot.
func (t *Trader) ConsolidatedBalances(ctx context.Context) (*model.ConsolidatedBalance, error) {
	market, mapping := t.market.Load(), t.mapping.Load()
	if market == nil {
		return nil, ErrNotInitialized
	}
	cb := t.valuator.Consolidate(ctx, t.exchanges, market, mapping)
	t.balances.Store(cb)
	return cb, nil
}

// LastBalances returns the snapshot computed by the last ConsolidatedBalances call.
func (t *Trader) LastBalances() *model.ConsolidatedBalance { return t.balances.Load() }

// ConsolidatedTotals values the last balance snapshot (computing one if none
// exists) in BTC and USD. btcUsd overrides the configured reference price.
func (t *Trader) ConsolidatedTotals(ctx context.Context, btcUsd decimal.NullDecimal) (model.BalanceTotals, error) {
	cb := t.balances.Load()
	if cb == nil {
		var err error
		if cb, err = t.ConsolidatedBalances(ctx); err != nil {
			return model.BalanceTotals{}, err
		}
	}
	if !btcUsd.Valid {
		btcUsd = t.btcUsdPrice
	}
	return service.Totals(cb, t.market.Load(), btcUsd), nil
}

// Status 各交易所适配器状态
func (t *Trader) Status() []port.AdapterStatus {
	out := make([]port.AdapterStatus, 0, len(t.exchanges))
	for _, ex := range t.exchanges {
		out = append(out, ex.Status())
	}
	return out
}

// LogStatus logs adapters that reported errors.
func (t *Trader) LogStatus() {
	for _, st := range t.Status() {
		if st.LastError == "" {
			continue
		}
		log.Warn().
			Str("exchange", st.Exchange).
			Str("last_error", st.LastError).
			Time("at", st.LastErrorAt).
			Int("retries", st.Retries).
			Msg("exchange adapter degraded")
	}
}
