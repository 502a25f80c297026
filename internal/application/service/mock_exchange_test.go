package service

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"xtrader/internal/application/port"
	"xtrader/internal/domain/model"
)

// MockExchange 测试用交易所适配器
type MockExchange struct {
	name       string
	currencies map[string]model.CurrencyInfo
	markets    model.MarketTable
	balances   map[string]model.RawBalance
	trading    bool
	delay      time.Duration

	currErr    error
	marketErr  error
	balanceErr error

	mu        sync.Mutex
	codeTable map[string]string
	tableSets int
}

func NewMockExchange(name string) *MockExchange {
	return &MockExchange{
		name:       name,
		currencies: make(map[string]model.CurrencyInfo),
		markets:    make(model.MarketTable),
		balances:   make(map[string]model.RawBalance),
	}
}

func (m *MockExchange) WithCurrency(local, name string, enabled bool) *MockExchange {
	m.currencies[local] = model.CurrencyInfo{Name: name, Enabled: enabled}
	return m
}

// WithQuote 写入 base/currency 行情（统一代码）
func (m *MockExchange) WithQuote(base, currency string, bid, ask float64) *MockExchange {
	m.markets.Put(base, currency, model.MarketQuote{
		MarketSymbol: currency + "-" + base,
		Bid:          price(bid),
		Ask:          price(ask),
		IsActive:     true,
	})
	return m
}

func (m *MockExchange) WithBalance(local string, total float64) *MockExchange {
	d := decimal.NewFromFloat(total)
	m.balances[local] = model.RawBalance{Available: d, Total: d}
	m.trading = true
	return m
}

func (m *MockExchange) wait(ctx context.Context) error {
	if m.delay <= 0 {
		return nil
	}
	select {
	case <-time.After(m.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *MockExchange) Name() string { return m.name }

func (m *MockExchange) LoadCurrencies(ctx context.Context) (map[string]model.CurrencyInfo, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	if m.currErr != nil {
		return nil, m.currErr
	}
	return m.currencies, nil
}

func (m *MockExchange) SetCodeTable(localToGlobal map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codeTable = localToGlobal
	m.tableSets++
}

func (m *MockExchange) LoadMarkets(ctx context.Context) (model.MarketTable, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	if m.marketErr != nil {
		return nil, m.marketErr
	}
	return m.markets, nil
}

func (m *MockExchange) LoadBalances(ctx context.Context) (map[string]model.RawBalance, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	if m.balanceErr != nil {
		return nil, m.balanceErr
	}
	return m.balances, nil
}

func (m *MockExchange) LocalCode(global string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for l, g := range m.codeTable {
		if g == global {
			return l, true
		}
	}
	return "", false
}

func (m *MockExchange) GlobalCode(local string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.codeTable[local]
	return g, ok
}

func (m *MockExchange) IsCurrencyEnabled(local string) bool {
	return m.currencies[local].Enabled
}

func (m *MockExchange) HasCredentials() bool { return m.trading }

func (m *MockExchange) Status() port.AdapterStatus {
	return port.AdapterStatus{Exchange: m.name}
}

func (m *MockExchange) table() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.codeTable
}

func price(v float64) decimal.NullDecimal {
	if v == 0 {
		return decimal.NullDecimal{}
	}
	return model.Price(decimal.NewFromFloat(v))
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// mappingOf 为每个交易所登记相同的统一代码（本地代码 = 统一代码）
func mappingOf(exchanges []string, codes ...string) *model.CodeMapping {
	b := model.NewCodeMappingBuilder()
	for _, ex := range exchanges {
		for _, c := range codes {
			b.Add(ex, c, c, "")
		}
	}
	return b.Build()
}

func adapters(ms ...*MockExchange) []port.Exchange {
	out := make([]port.Exchange, 0, len(ms))
	for _, m := range ms {
		out = append(out, m)
	}
	return out
}
