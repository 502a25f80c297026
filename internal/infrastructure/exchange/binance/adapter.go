package binance

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"xtrader/internal/domain/model"
	"xtrader/internal/infrastructure/config"
	"xtrader/internal/infrastructure/exchange"
)

const (
	Name = "binance"

	defaultHTTPURL = "https://api.binance.com"
	defaultWSURL   = "wss://stream.binance.com:9443"
)

// Adapter Binance 现货适配器
type Adapter struct {
	*exchange.Base

	booksMu sync.RWMutex
	books   map[string]bookTicker // symbol -> 最新 websocket 盘口
}

func New(cfg config.ExchangeConfig) *Adapter {
	return &Adapter{
		Base:  exchange.NewBase(Name, cfg, defaultHTTPURL, defaultWSURL),
		books: make(map[string]bookTicker),
	}
}

type symbolInfo struct {
	Symbol               string `json:"symbol"`
	Status               string `json:"status"`
	BaseAsset            string `json:"baseAsset"`
	QuoteAsset           string `json:"quoteAsset"`
	IsSpotTradingAllowed bool   `json:"isSpotTradingAllowed"`
}

type exchangeInfo struct {
	Symbols []symbolInfo `json:"symbols"`
}

type ticker24h struct {
	Symbol             string `json:"symbol"`
	BidPrice           string `json:"bidPrice"`
	AskPrice           string `json:"askPrice"`
	Volume             string `json:"volume"`
	QuoteVolume        string `json:"quoteVolume"`
	PriceChangePercent string `json:"priceChangePercent"`
	CloseTime          int64  `json:"closeTime"`
}

// coinConfig GET /sapi/v1/capital/config/getall
type coinConfig struct {
	Coin              string `json:"coin"`
	Name              string `json:"name"`
	DepositAllEnable  bool   `json:"depositAllEnable"`
	WithdrawAllEnable bool   `json:"withdrawAllEnable"`
}

type accountResponse struct {
	Balances []struct {
		Asset  string `json:"asset"`
		Free   string `json:"free"`
		Locked string `json:"locked"`
	} `json:"balances"`
}

// LoadCurrencies 有凭证时读取币种配置（含名称），否则从 exchangeInfo 推导
func (a *Adapter) LoadCurrencies(ctx context.Context) (map[string]model.CurrencyInfo, error) {
	var out map[string]model.CurrencyInfo
	err := a.Retry(ctx, "currencies", func(ctx context.Context) error {
		var err error
		if a.HasCredentials() {
			out, err = a.coinConfigs(ctx)
		} else {
			out, err = a.assetsFromExchangeInfo(ctx)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	a.RecordCurrencies(out)
	return out, nil
}

func (a *Adapter) coinConfigs(ctx context.Context) (map[string]model.CurrencyInfo, error) {
	var coins []coinConfig
	if err := a.signedGet(ctx, "/sapi/v1/capital/config/getall", nil, &coins); err != nil {
		return nil, err
	}
	out := make(map[string]model.CurrencyInfo, len(coins))
	for _, c := range coins {
		code := strings.ToUpper(strings.TrimSpace(c.Coin))
		if code == "" {
			log.Warn().Str("exchange", Name).Msg("currency without code, skipped")
			continue
		}
		// 充值或提现任一开放即视为可用
		out[code] = model.CurrencyInfo{
			Name:    strings.TrimSpace(c.Name),
			Enabled: c.DepositAllEnable || c.WithdrawAllEnable,
		}
	}
	return out, nil
}

func (a *Adapter) assetsFromExchangeInfo(ctx context.Context) (map[string]model.CurrencyInfo, error) {
	var info exchangeInfo
	if err := a.DoJSON(ctx, http.MethodGet, "/api/v3/exchangeInfo", nil, nil, &info); err != nil {
		return nil, err
	}
	out := make(map[string]model.CurrencyInfo)
	for _, s := range info.Symbols {
		trading := s.Status == "TRADING" && s.IsSpotTradingAllowed
		for _, asset := range []string{s.BaseAsset, s.QuoteAsset} {
			if asset == "" {
				continue
			}
			cur := out[asset]
			cur.Enabled = cur.Enabled || trading
			out[asset] = cur
		}
	}
	return out, nil
}

// LoadMarkets 合并 exchangeInfo 与 24h ticker，websocket 盘口更新时覆盖 bid/ask
func (a *Adapter) LoadMarkets(ctx context.Context) (model.MarketTable, error) {
	var (
		info    exchangeInfo
		tickers []ticker24h
	)
	err := a.Retry(ctx, "markets", func(ctx context.Context) error {
		if err := a.DoJSON(ctx, http.MethodGet, "/api/v3/exchangeInfo", nil, nil, &info); err != nil {
			return err
		}
		return a.DoJSON(ctx, http.MethodGet, "/api/v3/ticker/24hr", nil, nil, &tickers)
	})
	if err != nil {
		return nil, err
	}

	bysymbol := make(map[string]ticker24h, len(tickers))
	for _, t := range tickers {
		bysymbol[t.Symbol] = t
	}

	table := make(model.MarketTable)
	unmapped := 0
	for _, s := range info.Symbols {
		q := model.MarketQuote{
			MarketSymbol: s.Symbol,
			IsActive:     s.Status == "TRADING",
			IsRestricted: !s.IsSpotTradingAllowed,
		}
		if t, ok := bysymbol[s.Symbol]; ok {
			q.Bid = exchange.ParsePrice(t.BidPrice)
			q.Ask = exchange.ParsePrice(t.AskPrice)
			q.BaseVolume = exchange.ParseNullable(t.Volume)
			q.QuoteVolume = exchange.ParseNullable(t.QuoteVolume)
			q.Change24h = exchange.ParseNullable(t.PriceChangePercent)
			if t.CloseTime > 0 {
				q.UpdatedAt = time.UnixMilli(t.CloseTime)
			}
		}
		a.overlay(&q)
		if !a.PutMarket(table, s.BaseAsset, s.QuoteAsset, q) {
			unmapped++
		}
	}
	if unmapped > 0 {
		log.Debug().Str("exchange", Name).Int("unmapped", unmapped).Msg("markets with unreconciled assets skipped")
	}
	return table, nil
}

// LoadBalances GET /api/v3/account
func (a *Adapter) LoadBalances(ctx context.Context) (map[string]model.RawBalance, error) {
	if !a.HasCredentials() {
		return nil, exchange.ErrNoCredentials
	}
	var resp accountResponse
	err := a.Retry(ctx, "balances", func(ctx context.Context) error {
		return a.signedGet(ctx, "/api/v3/account", nil, &resp)
	})
	if err != nil {
		return nil, err
	}

	out := make(map[string]model.RawBalance, len(resp.Balances))
	for _, b := range resp.Balances {
		free, err := exchange.ParseDecimal(b.Free)
		if err != nil {
			log.Warn().Str("exchange", Name).Str("asset", b.Asset).Err(err).Msg("parse free balance failed")
			continue
		}
		locked, err := exchange.ParseDecimal(b.Locked)
		if err != nil {
			log.Warn().Str("exchange", Name).Str("asset", b.Asset).Err(err).Msg("parse locked balance failed")
			continue
		}
		out[b.Asset] = model.RawBalance{Available: free, OnOrders: locked, Total: free.Add(locked)}
	}
	return out, nil
}
