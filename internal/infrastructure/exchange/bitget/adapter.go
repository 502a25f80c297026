package bitget

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"xtrader/internal/domain/model"
	"xtrader/internal/infrastructure/config"
	"xtrader/internal/infrastructure/exchange"
)

const (
	Name = "bitget"

	defaultHTTPURL = "https://api.bitget.com"
)

var hundred = decimal.NewFromInt(100)

// Adapter Bitget V2 现货适配器
type Adapter struct {
	*exchange.Base
}

func New(cfg config.ExchangeConfig) *Adapter {
	return &Adapter{Base: exchange.NewBase(Name, cfg, defaultHTTPURL, "")}
}

type envelope struct {
	Code        string `json:"code"`
	Msg         string `json:"msg"`
	RequestTime int64  `json:"requestTime"`
}

func (e envelope) err() error {
	if e.Code != "00000" {
		return fmt.Errorf("bitget api error %s: %s", e.Code, e.Msg)
	}
	return nil
}

// coinsResponse GET /api/v2/spot/public/coins（公共接口，含链状态）
type coinsResponse struct {
	envelope
	Data []struct {
		Coin   string `json:"coin"`
		Chains []struct {
			Rechargeable string `json:"rechargeable"`
			Withdrawable string `json:"withdrawable"`
		} `json:"chains"`
	} `json:"data"`
}

type symbolsResponse struct {
	envelope
	Data []struct {
		Symbol    string `json:"symbol"`
		BaseCoin  string `json:"baseCoin"`
		QuoteCoin string `json:"quoteCoin"`
		Status    string `json:"status"`
	} `json:"data"`
}

type tickersResponse struct {
	envelope
	Data []struct {
		Symbol      string `json:"symbol"`
		BidPr       string `json:"bidPr"`
		AskPr       string `json:"askPr"`
		BaseVolume  string `json:"baseVolume"`
		QuoteVolume string `json:"quoteVolume"`
		Change24h   string `json:"change24h"`
		Ts          string `json:"ts"`
	} `json:"data"`
}

type assetsResponse struct {
	envelope
	Data []struct {
		Coin      string `json:"coin"`
		Available string `json:"available"`
		Frozen    string `json:"frozen"`
		Locked    string `json:"locked"`
	} `json:"data"`
}

func (a *Adapter) LoadCurrencies(ctx context.Context) (map[string]model.CurrencyInfo, error) {
	var resp coinsResponse
	err := a.Retry(ctx, "currencies", func(ctx context.Context) error {
		if err := a.DoJSON(ctx, http.MethodGet, "/api/v2/spot/public/coins", nil, nil, &resp); err != nil {
			return err
		}
		return resp.err()
	})
	if err != nil {
		return nil, err
	}

	out := make(map[string]model.CurrencyInfo, len(resp.Data))
	for _, c := range resp.Data {
		code := strings.ToUpper(strings.TrimSpace(c.Coin))
		if code == "" {
			log.Warn().Str("exchange", Name).Msg("currency without code, skipped")
			continue
		}
		enabled := len(c.Chains) == 0
		for _, ch := range c.Chains {
			if ch.Rechargeable == "true" || ch.Withdrawable == "true" {
				enabled = true
				break
			}
		}
		// bitget 不提供全名
		out[code] = model.CurrencyInfo{Enabled: enabled}
	}
	a.RecordCurrencies(out)
	return out, nil
}

func (a *Adapter) LoadMarkets(ctx context.Context) (model.MarketTable, error) {
	var (
		symbols symbolsResponse
		tickers tickersResponse
	)
	err := a.Retry(ctx, "markets", func(ctx context.Context) error {
		if err := a.DoJSON(ctx, http.MethodGet, "/api/v2/spot/public/symbols", nil, nil, &symbols); err != nil {
			return err
		}
		if err := symbols.err(); err != nil {
			return err
		}
		if err := a.DoJSON(ctx, http.MethodGet, "/api/v2/spot/market/tickers", nil, nil, &tickers); err != nil {
			return err
		}
		return tickers.err()
	})
	if err != nil {
		return nil, err
	}

	bySymbol := make(map[string]int, len(tickers.Data))
	for i, t := range tickers.Data {
		bySymbol[t.Symbol] = i
	}

	table := make(model.MarketTable)
	unmapped := 0
	for _, s := range symbols.Data {
		q := model.MarketQuote{
			MarketSymbol: s.Symbol,
			IsActive:     s.Status == "online",
			IsRestricted: s.Status == "halt",
		}
		if i, ok := bySymbol[s.Symbol]; ok {
			t := tickers.Data[i]
			q.Bid = exchange.ParsePrice(t.BidPr)
			q.Ask = exchange.ParsePrice(t.AskPr)
			q.BaseVolume = exchange.ParseNullable(t.BaseVolume)
			q.QuoteVolume = exchange.ParseNullable(t.QuoteVolume)
			if pct := exchange.ParseNullable(t.Change24h); pct.Valid {
				q.Change24h = decimal.NewNullDecimal(pct.Decimal.Mul(hundred))
			}
			if ms, err := strconv.ParseInt(t.Ts, 10, 64); err == nil {
				q.UpdatedAt = time.UnixMilli(ms)
			}
		}
		if !a.PutMarket(table, s.BaseCoin, s.QuoteCoin, q) {
			unmapped++
		}
	}
	if unmapped > 0 {
		log.Debug().Str("exchange", Name).Int("unmapped", unmapped).Msg("markets with unreconciled assets skipped")
	}
	return table, nil
}

// LoadBalances GET /api/v2/spot/account/assets
func (a *Adapter) LoadBalances(ctx context.Context) (map[string]model.RawBalance, error) {
	if !a.HasCredentials() {
		return nil, exchange.ErrNoCredentials
	}
	var resp assetsResponse
	err := a.Retry(ctx, "balances", func(ctx context.Context) error {
		if err := a.signedGet(ctx, "/api/v2/spot/account/assets", url.Values{"assetType": []string{"hold_only"}}, &resp); err != nil {
			return err
		}
		return resp.err()
	})
	if err != nil {
		return nil, err
	}

	out := make(map[string]model.RawBalance, len(resp.Data))
	for _, d := range resp.Data {
		avail, err := exchange.ParseDecimal(d.Available)
		if err != nil {
			log.Warn().Str("exchange", Name).Str("asset", d.Coin).Err(err).Msg("parse available balance failed")
			continue
		}
		frozen, err := exchange.ParseDecimal(d.Frozen)
		if err != nil {
			log.Warn().Str("exchange", Name).Str("asset", d.Coin).Err(err).Msg("parse frozen balance failed")
			continue
		}
		locked, err := exchange.ParseDecimal(d.Locked)
		if err != nil {
			log.Warn().Str("exchange", Name).Str("asset", d.Coin).Err(err).Msg("parse locked balance failed")
			continue
		}
		onOrders := frozen.Add(locked)
		out[strings.ToUpper(d.Coin)] = model.RawBalance{Available: avail, OnOrders: onOrders, Total: avail.Add(onOrders)}
	}
	return out, nil
}
