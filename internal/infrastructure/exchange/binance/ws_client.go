package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"xtrader/internal/domain/model"
	"xtrader/internal/infrastructure/exchange"
)

type bookTicker struct {
	bid decimal.NullDecimal
	ask decimal.NullDecimal
	at  time.Time
}

type bookCombined struct {
	Stream string `json:"stream"`
	Data   struct {
		Symbol string `json:"s"`
		Bid    string `json:"b"`
		Ask    string `json:"a"`
	} `json:"data"`
}

// Start 订阅配置的交易对的 bookTicker，直到 ctx 结束
func (a *Adapter) Start(ctx context.Context) {
	symbols := a.Symbols()
	if len(symbols) == 0 {
		return
	}
	wsURL, err := buildCombinedURL(a.WSURL(), symbols)
	if err != nil {
		log.Error().Str("exchange", Name).Err(err).Msg("build ws url failed")
		return
	}
	go exchange.RunStream(ctx, Name, wsURL, nil, a.handleBook)
}

func (a *Adapter) handleBook(b []byte) {
	var msg bookCombined
	if err := json.Unmarshal(b, &msg); err != nil {
		log.Warn().Str("exchange", Name).Err(err).Msg("json unmarshal failed")
		return
	}
	sym := strings.ToUpper(msg.Data.Symbol)
	if sym == "" {
		return
	}
	book := bookTicker{
		bid: exchange.ParsePrice(msg.Data.Bid),
		ask: exchange.ParsePrice(msg.Data.Ask),
		at:  time.Now(),
	}
	a.booksMu.Lock()
	a.books[sym] = book
	a.booksMu.Unlock()
}

// overlay 用更新的 websocket 盘口替换 REST 价格
func (a *Adapter) overlay(q *model.MarketQuote) {
	a.booksMu.RLock()
	book, ok := a.books[q.MarketSymbol]
	a.booksMu.RUnlock()
	if !ok || !book.at.After(q.UpdatedAt) {
		return
	}
	if book.bid.Valid {
		q.Bid = book.bid
	}
	if book.ask.Valid {
		q.Ask = book.ask
	}
	q.UpdatedAt = book.at
}

func buildCombinedURL(base string, symbols []string) (string, error) {
	if strings.TrimSpace(base) == "" {
		return "", errors.New("binance ws url empty")
	}

	streams := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		streams = append(streams, fmt.Sprintf("%s@bookTicker", s))
	}
	if len(streams) == 0 {
		return "", errors.New("no valid symbols")
	}

	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	u.Path = "/stream"
	u.RawQuery = "streams=" + strings.Join(streams, "/")
	return u.String(), nil
}
