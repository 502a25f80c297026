package okx

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"xtrader/internal/domain/model"
	"xtrader/internal/infrastructure/config"
	"xtrader/internal/infrastructure/exchange"
)

const (
	Name = "okx"

	defaultHTTPURL = "https://www.okx.com"
	defaultWSURL   = "wss://ws.okx.com:8443/ws/v5/public"
)

var hundred = decimal.NewFromInt(100)

// Adapter OKX V5 现货适配器
type Adapter struct {
	*exchange.Base
	symbols *exchange.SymbolConverter

	booksMu sync.RWMutex
	books   map[string]bookTicker // instId -> 最新 websocket 盘口
}

func New(cfg config.ExchangeConfig) *Adapter {
	return &Adapter{
		Base:    exchange.NewBase(Name, cfg, defaultHTTPURL, defaultWSURL),
		symbols: exchange.NewSymbolConverter("-"),
		books:   make(map[string]bookTicker),
	}
}

// envelope OKX 通用响应
type envelope struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

func (e envelope) err() error {
	if e.Code != "0" {
		return fmt.Errorf("okx api error %s: %s", e.Code, e.Msg)
	}
	return nil
}

type instrumentsResponse struct {
	envelope
	Data []struct {
		InstID   string `json:"instId"`
		BaseCcy  string `json:"baseCcy"`
		QuoteCcy string `json:"quoteCcy"`
		State    string `json:"state"`
	} `json:"data"`
}

type tickersResponse struct {
	envelope
	Data []struct {
		InstID    string `json:"instId"`
		Last      string `json:"last"`
		BidPx     string `json:"bidPx"`
		AskPx     string `json:"askPx"`
		Open24h   string `json:"open24h"`
		Vol24h    string `json:"vol24h"`
		VolCcy24h string `json:"volCcy24h"`
		Ts        string `json:"ts"`
	} `json:"data"`
}

type currenciesResponse struct {
	envelope
	Data []struct {
		Ccy    string `json:"ccy"`
		Name   string `json:"name"`
		CanDep bool   `json:"canDep"`
		CanWd  bool   `json:"canWd"`
	} `json:"data"`
}

// balanceResponse OKX 账户余额 API 响应结构
type balanceResponse struct {
	envelope
	Data []struct {
		Details []struct {
			Ccy       string `json:"ccy"`       // 币种
			CashBal   string `json:"cashBal"`   // 账户余额
			FrozenBal string `json:"frozenBal"` // 冻结余额
			AvailBal  string `json:"availBal"`  // 可用余额
		} `json:"details"`
	} `json:"data"`
}

func spotParams() url.Values {
	return url.Values{"instType": []string{"SPOT"}}
}

func (a *Adapter) LoadCurrencies(ctx context.Context) (map[string]model.CurrencyInfo, error) {
	var out map[string]model.CurrencyInfo
	err := a.Retry(ctx, "currencies", func(ctx context.Context) error {
		var err error
		if a.HasCredentials() {
			out, err = a.currencies(ctx)
		} else {
			out, err = a.assetsFromInstruments(ctx)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	a.RecordCurrencies(out)
	return out, nil
}

// currencies GET /api/v5/asset/currencies，每条链一行
func (a *Adapter) currencies(ctx context.Context) (map[string]model.CurrencyInfo, error) {
	var resp currenciesResponse
	if err := a.signedGet(ctx, "/api/v5/asset/currencies", nil, &resp); err != nil {
		return nil, err
	}
	if err := resp.err(); err != nil {
		return nil, err
	}
	out := make(map[string]model.CurrencyInfo)
	for _, row := range resp.Data {
		code := strings.ToUpper(strings.TrimSpace(row.Ccy))
		if code == "" {
			log.Warn().Str("exchange", Name).Msg("currency without code, skipped")
			continue
		}
		cur := out[code]
		if cur.Name == "" {
			cur.Name = strings.TrimSpace(row.Name)
		}
		cur.Enabled = cur.Enabled || row.CanDep || row.CanWd
		out[code] = cur
	}
	return out, nil
}

func (a *Adapter) instruments(ctx context.Context) (*instrumentsResponse, error) {
	var resp instrumentsResponse
	if err := a.DoJSON(ctx, http.MethodGet, "/api/v5/public/instruments", spotParams(), nil, &resp); err != nil {
		return nil, err
	}
	if err := resp.err(); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (a *Adapter) assetsFromInstruments(ctx context.Context) (map[string]model.CurrencyInfo, error) {
	resp, err := a.instruments(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]model.CurrencyInfo)
	for _, s := range resp.Data {
		live := s.State == "live"
		for _, ccy := range []string{s.BaseCcy, s.QuoteCcy} {
			if ccy == "" {
				continue
			}
			cur := out[ccy]
			cur.Enabled = cur.Enabled || live
			out[ccy] = cur
		}
	}
	return out, nil
}

func (a *Adapter) LoadMarkets(ctx context.Context) (model.MarketTable, error) {
	var (
		inst    *instrumentsResponse
		tickers tickersResponse
	)
	err := a.Retry(ctx, "markets", func(ctx context.Context) error {
		var err error
		if inst, err = a.instruments(ctx); err != nil {
			return err
		}
		if err := a.DoJSON(ctx, http.MethodGet, "/api/v5/market/tickers", spotParams(), nil, &tickers); err != nil {
			return err
		}
		return tickers.err()
	})
	if err != nil {
		return nil, err
	}

	byInst := make(map[string]int, len(tickers.Data))
	for i, t := range tickers.Data {
		byInst[t.InstID] = i
	}

	table := make(model.MarketTable)
	unmapped := 0
	for _, s := range inst.Data {
		base, quote := s.BaseCcy, s.QuoteCcy
		if base == "" || quote == "" {
			var ok bool
			if base, quote, ok = a.symbols.Split(s.InstID); !ok {
				log.Warn().Str("exchange", Name).Str("inst", s.InstID).Msg("unparseable instrument, skipped")
				continue
			}
		}
		q := model.MarketQuote{
			MarketSymbol: s.InstID,
			IsActive:     s.State == "live",
			IsRestricted: s.State == "suspend",
		}
		if i, ok := byInst[s.InstID]; ok {
			t := tickers.Data[i]
			q.Bid = exchange.ParsePrice(t.BidPx)
			q.Ask = exchange.ParsePrice(t.AskPx)
			q.BaseVolume = exchange.ParseNullable(t.Vol24h)
			q.QuoteVolume = exchange.ParseNullable(t.VolCcy24h)
			q.Change24h = change24h(t.Last, t.Open24h)
			if ms, err := strconv.ParseInt(t.Ts, 10, 64); err == nil {
				q.UpdatedAt = time.UnixMilli(ms)
			}
		}
		a.overlay(&q)
		if !a.PutMarket(table, base, quote, q) {
			unmapped++
		}
	}
	if unmapped > 0 {
		log.Debug().Str("exchange", Name).Int("unmapped", unmapped).Msg("markets with unreconciled assets skipped")
	}
	return table, nil
}

func change24h(last, open string) decimal.NullDecimal {
	l, o := exchange.ParsePrice(last), exchange.ParsePrice(open)
	if !l.Valid || !o.Valid {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(l.Decimal.Sub(o.Decimal).Div(o.Decimal).Mul(hundred))
}

// LoadBalances GET /api/v5/account/balance
func (a *Adapter) LoadBalances(ctx context.Context) (map[string]model.RawBalance, error) {
	if !a.HasCredentials() {
		return nil, exchange.ErrNoCredentials
	}
	var resp balanceResponse
	err := a.Retry(ctx, "balances", func(ctx context.Context) error {
		if err := a.signedGet(ctx, "/api/v5/account/balance", nil, &resp); err != nil {
			return err
		}
		return resp.err()
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return map[string]model.RawBalance{}, nil
	}

	out := make(map[string]model.RawBalance, len(resp.Data[0].Details))
	for _, d := range resp.Data[0].Details {
		total, err := exchange.ParseDecimal(d.CashBal)
		if err != nil {
			log.Warn().Str("exchange", Name).Str("asset", d.Ccy).Err(err).Msg("parse cash balance failed")
			continue
		}
		avail, err := exchange.ParseDecimal(d.AvailBal)
		if err != nil {
			log.Warn().Str("exchange", Name).Str("asset", d.Ccy).Err(err).Msg("parse available balance failed")
			continue
		}
		frozen, err := exchange.ParseDecimal(d.FrozenBal)
		if err != nil {
			log.Warn().Str("exchange", Name).Str("asset", d.Ccy).Err(err).Msg("parse frozen balance failed")
			continue
		}
		out[d.Ccy] = model.RawBalance{Available: avail, OnOrders: frozen, Total: total}
	}
	return out, nil
}
