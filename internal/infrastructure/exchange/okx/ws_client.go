package okx

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
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

type subReq struct {
	Op   string   `json:"op"`
	Args []subArg `json:"args"`
}

type subArg struct {
	Channel string `json:"channel"`
	InstID  string `json:"instId"`
}

type tickerMsg struct {
	Event string `json:"event,omitempty"`
	Arg   subArg `json:"arg"`
	Data  []struct {
		InstID string `json:"instId"`
		BidPx  string `json:"bidPx"`
		AskPx  string `json:"askPx"`
		Ts     string `json:"ts"`
	} `json:"data,omitempty"`
}

// Start 订阅配置交易对的 tickers 频道
func (a *Adapter) Start(ctx context.Context) {
	args := make([]subArg, 0, len(a.Symbols()))
	for _, s := range a.Symbols() {
		base, quote, ok := a.symbols.Split(s)
		if !ok {
			log.Warn().Str("exchange", Name).Str("symbol", s).Msg("ws symbol must look like BTC-USDT, skipped")
			continue
		}
		args = append(args, subArg{Channel: "tickers", InstID: a.symbols.Join(base, quote)})
	}
	if len(args) == 0 {
		return
	}
	subscribe := func(conn *websocket.Conn) error {
		return conn.WriteJSON(subReq{Op: "subscribe", Args: args})
	}
	go exchange.RunStream(ctx, Name, a.WSURL(), subscribe, a.handleTicker)
}

func (a *Adapter) handleTicker(b []byte) {
	// OKX 对文本 ping 回复 pong
	if strings.TrimSpace(string(b)) == "pong" {
		return
	}
	var msg tickerMsg
	if err := json.Unmarshal(b, &msg); err != nil {
		log.Warn().Str("exchange", Name).Err(err).Msg("json unmarshal failed")
		return
	}
	if msg.Event != "" {
		log.Debug().Str("exchange", Name).Str("event", msg.Event).Msg("ws event")
		return
	}
	for _, d := range msg.Data {
		at := time.Now()
		if ms, err := strconv.ParseInt(d.Ts, 10, 64); err == nil {
			at = time.UnixMilli(ms)
		}
		a.booksMu.Lock()
		a.books[d.InstID] = bookTicker{bid: exchange.ParsePrice(d.BidPx), ask: exchange.ParsePrice(d.AskPx), at: at}
		a.booksMu.Unlock()
	}
}

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
