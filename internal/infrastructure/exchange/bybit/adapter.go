package bybit

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
	Name = "bybit"

	defaultHTTPURL = "https://api.bybit.com"
)

var hundred = decimal.NewFromInt(100)

// Adapter Bybit V5 现货适配器
type Adapter struct {
	*exchange.Base
}

func New(cfg config.ExchangeConfig) *Adapter {
	return &Adapter{Base: exchange.NewBase(Name, cfg, defaultHTTPURL, "")}
}

// envelope Bybit V5 通用响应
type envelope struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Time    int64  `json:"time"`
}

func (e envelope) err() error {
	if e.RetCode != 0 {
		return fmt.Errorf("bybit api error %d: %s", e.RetCode, e.RetMsg)
	}
	return nil
}

type instrumentsResponse struct {
	envelope
	Result struct {
		List []struct {
			Symbol    string `json:"symbol"`
			BaseCoin  string `json:"baseCoin"`
			QuoteCoin string `json:"quoteCoin"`
			Status    string `json:"status"`
		} `json:"list"`
	} `json:"result"`
}

type tickersResponse struct {
	envelope
	Result struct {
		List []struct {
			Symbol       string `json:"symbol"`
			Bid1Price    string `json:"bid1Price"`
			Ask1Price    string `json:"ask1Price"`
			Volume24h    string `json:"volume24h"`
			Turnover24h  string `json:"turnover24h"`
			Price24hPcnt string `json:"price24hPcnt"`
		} `json:"list"`
	} `json:"result"`
}

type coinInfoResponse struct {
	envelope
	Result struct {
		Rows []struct {
			Name   string `json:"name"`
			Coin   string `json:"coin"`
			Chains []struct {
				ChainDeposit  string `json:"chainDeposit"`
				ChainWithdraw string `json:"chainWithdraw"`
			} `json:"chains"`
		} `json:"rows"`
	} `json:"result"`
}

// walletBalanceResponse Bybit wallet-balance API 响应结构
type walletBalanceResponse struct {
	envelope
	Result struct {
		List []struct {
			AccountType string `json:"accountType"`
			Coin        []struct {
				Coin          string `json:"coin"`
				WalletBalance string `json:"walletBalance"`
				Locked        string `json:"locked"`
			} `json:"coin"`
		} `json:"list"`
	} `json:"result"`
}

func spotParams() url.Values {
	return url.Values{"category": []string{"spot"}}
}

func (a *Adapter) LoadCurrencies(ctx context.Context) (map[string]model.CurrencyInfo, error) {
	var out map[string]model.CurrencyInfo
	err := a.Retry(ctx, "currencies", func(ctx context.Context) error {
		var err error
		if a.HasCredentials() {
			out, err = a.coinInfo(ctx)
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

func (a *Adapter) coinInfo(ctx context.Context) (map[string]model.CurrencyInfo, error) {
	var resp coinInfoResponse
	if err := a.signedGet(ctx, "/v5/asset/coin/query-info", nil, &resp); err != nil {
		return nil, err
	}
	if err := resp.err(); err != nil {
		return nil, err
	}
	out := make(map[string]model.CurrencyInfo, len(resp.Result.Rows))
	for _, row := range resp.Result.Rows {
		code := strings.ToUpper(strings.TrimSpace(row.Coin))
		if code == "" {
			log.Warn().Str("exchange", Name).Msg("currency without code, skipped")
			continue
		}
		// 没有链信息时视为可用
		enabled := len(row.Chains) == 0
		for _, c := range row.Chains {
			if c.ChainDeposit == "1" || c.ChainWithdraw == "1" {
				enabled = true
				break
			}
		}
		out[code] = model.CurrencyInfo{Name: strings.TrimSpace(row.Name), Enabled: enabled}
	}
	return out, nil
}

func (a *Adapter) instruments(ctx context.Context) (*instrumentsResponse, error) {
	var resp instrumentsResponse
	if err := a.DoJSON(ctx, http.MethodGet, "/v5/market/instruments-info", spotParams(), nil, &resp); err != nil {
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
	for _, s := range resp.Result.List {
		trading := s.Status == "Trading"
		for _, coin := range []string{s.BaseCoin, s.QuoteCoin} {
			if coin == "" {
				continue
			}
			cur := out[coin]
			cur.Enabled = cur.Enabled || trading
			out[coin] = cur
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
		if err := a.DoJSON(ctx, http.MethodGet, "/v5/market/tickers", spotParams(), nil, &tickers); err != nil {
			return err
		}
		return tickers.err()
	})
	if err != nil {
		return nil, err
	}

	updated := time.Now()
	if tickers.Time > 0 {
		updated = time.UnixMilli(tickers.Time)
	}
	bySymbol := make(map[string]int, len(tickers.Result.List))
	for i, t := range tickers.Result.List {
		bySymbol[t.Symbol] = i
	}

	table := make(model.MarketTable)
	unmapped := 0
	for _, s := range inst.Result.List {
		q := model.MarketQuote{
			MarketSymbol: s.Symbol,
			IsActive:     s.Status == "Trading",
			UpdatedAt:    updated,
		}
		if i, ok := bySymbol[s.Symbol]; ok {
			t := tickers.Result.List[i]
			q.Bid = exchange.ParsePrice(t.Bid1Price)
			q.Ask = exchange.ParsePrice(t.Ask1Price)
			q.BaseVolume = exchange.ParseNullable(t.Volume24h)
			q.QuoteVolume = exchange.ParseNullable(t.Turnover24h)
			// price24hPcnt 为小数形式
			if pct := exchange.ParseNullable(t.Price24hPcnt); pct.Valid {
				q.Change24h = decimal.NewNullDecimal(pct.Decimal.Mul(hundred))
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

// LoadBalances GET /v5/account/wallet-balance (UNIFIED)
func (a *Adapter) LoadBalances(ctx context.Context) (map[string]model.RawBalance, error) {
	if !a.HasCredentials() {
		return nil, exchange.ErrNoCredentials
	}
	var resp walletBalanceResponse
	err := a.Retry(ctx, "balances", func(ctx context.Context) error {
		params := url.Values{"accountType": []string{"UNIFIED"}}
		if err := a.signedGet(ctx, "/v5/account/wallet-balance", params, &resp); err != nil {
			return err
		}
		return resp.err()
	})
	if err != nil {
		return nil, err
	}

	out := make(map[string]model.RawBalance)
	for _, account := range resp.Result.List {
		for _, c := range account.Coin {
			total, err := exchange.ParseDecimal(c.WalletBalance)
			if err != nil {
				log.Warn().Str("exchange", Name).Str("asset", c.Coin).Err(err).Msg("parse wallet balance failed")
				continue
			}
			locked, err := exchange.ParseDecimal(c.Locked)
			if err != nil {
				log.Warn().Str("exchange", Name).Str("asset", c.Coin).Err(err).Msg("parse locked balance failed")
				continue
			}
			prev := out[c.Coin]
			out[c.Coin] = model.RawBalance{
				Available: prev.Available.Add(total.Sub(locked)),
				OnOrders:  prev.OnOrders.Add(locked),
				Total:     prev.Total.Add(total),
			}
		}
	}
	return out, nil
}

func timestamp() string {
	return strconv.FormatInt(time.Now().UnixMilli(), 10)
}
