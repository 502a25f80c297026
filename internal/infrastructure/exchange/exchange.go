package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"xtrader/internal/application/port"
	"xtrader/internal/domain/model"
	"xtrader/internal/infrastructure/config"
)

// ErrNoCredentials 未配置交易凭证
var ErrNoCredentials = errors.New("exchange credentials not configured")

// ===== Credentials 凭证 =====

// Credentials 包含 API 凭证和签名方法
type Credentials struct {
	apiKey     string
	apiSecret  string
	passphrase string
}

func NewCredentials(apiKey, apiSecret, passphrase string) *Credentials {
	return &Credentials{apiKey: apiKey, apiSecret: apiSecret, passphrase: passphrase}
}

func (c *Credentials) mac(data string) []byte {
	h := hmac.New(sha256.New, []byte(c.apiSecret))
	h.Write([]byte(data))
	return h.Sum(nil)
}

// SignHex HMAC-SHA256，十六进制输出（binance / bybit）
func (c *Credentials) SignHex(data string) string {
	return hex.EncodeToString(c.mac(data))
}

// SignBase64 HMAC-SHA256，base64 输出（okx）
func (c *Credentials) SignBase64(data string) string {
	return base64.StdEncoding.EncodeToString(c.mac(data))
}

func (c *Credentials) APIKey() string     { return c.apiKey }
func (c *Credentials) Passphrase() string { return c.passphrase }

// ===== Base 适配器公共部分 =====

// Signer 在请求发出前签名，可以改写 req.URL.RawQuery 与请求头
type Signer func(req *http.Request, query string)

// Base carries what every adapter shares: the reconciled code table, the
// enabled flags of the last currency list, credentials, an HTTP client and
// error/retry bookkeeping. Adapters embed it.
type Base struct {
	name       string
	httpURL    string
	wsURL      string
	symbols    []string
	maxRetries int
	creds      *Credentials
	httpClient *http.Client

	mu       sync.RWMutex
	toGlobal map[string]string
	toLocal  map[string]string
	enabled  map[string]bool

	statusMu     sync.Mutex
	lastErr      string
	lastErrAt    time.Time
	retries      int
	retryBackoff time.Duration
}

// NewBase builds the shared part from the exchange's config section.
// defaultHTTP / defaultWS are used when the config leaves the URLs empty.
func NewBase(name string, cfg config.ExchangeConfig, defaultHTTP, defaultWS string) *Base {
	b := &Base{
		name:         name,
		httpURL:      firstNonEmpty(cfg.HttpURL, defaultHTTP),
		wsURL:        firstNonEmpty(cfg.WsURL, defaultWS),
		symbols:      cfg.Symbols,
		maxRetries:   cfg.MaxRetries,
		toGlobal:     map[string]string{},
		toLocal:      map[string]string{},
		enabled:      map[string]bool{},
		retryBackoff: 200 * time.Millisecond,
	}
	if b.maxRetries <= 0 {
		b.maxRetries = 1
	}
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b.httpClient = &http.Client{Timeout: timeout}
	if cfg.HasCredentials() {
		b.creds = NewCredentials(cfg.APIKey, cfg.SecretKey, cfg.Passphrase)
	}
	return b
}

func (b *Base) Name() string              { return b.name }
func (b *Base) HTTPURL() string           { return b.httpURL }
func (b *Base) WSURL() string             { return b.wsURL }
func (b *Base) Symbols() []string         { return b.symbols }
func (b *Base) Credentials() *Credentials { return b.creds }
func (b *Base) HasCredentials() bool      { return b.creds != nil }

// SetRetryBackoff 设置首次重试间隔
func (b *Base) SetRetryBackoff(d time.Duration) { b.retryBackoff = d }

// SetCodeTable installs the reconciler's local -> global table.
func (b *Base) SetCodeTable(localToGlobal map[string]string) {
	toGlobal := make(map[string]string, len(localToGlobal))
	toLocal := make(map[string]string, len(localToGlobal))
	for local, global := range localToGlobal {
		toGlobal[local] = global
		toLocal[global] = local
	}
	b.mu.Lock()
	b.toGlobal, b.toLocal = toGlobal, toLocal
	b.mu.Unlock()
}

func (b *Base) GlobalCode(local string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	g, ok := b.toGlobal[local]
	return g, ok
}

func (b *Base) LocalCode(global string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	l, ok := b.toLocal[global]
	return l, ok
}

// RecordCurrencies remembers the enabled flag of every currency of the last
// successful currency load.
func (b *Base) RecordCurrencies(currencies map[string]model.CurrencyInfo) {
	enabled := make(map[string]bool, len(currencies))
	for local, info := range currencies {
		enabled[local] = info.Enabled
	}
	b.mu.Lock()
	b.enabled = enabled
	b.mu.Unlock()
}

func (b *Base) IsCurrencyEnabled(local string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.enabled[local]
}

// Status 最近一次错误及连续重试次数
func (b *Base) Status() port.AdapterStatus {
	b.statusMu.Lock()
	defer b.statusMu.Unlock()
	return port.AdapterStatus{
		Exchange:    b.name,
		LastError:   b.lastErr,
		LastErrorAt: b.lastErrAt,
		Retries:     b.retries,
		MaxRetries:  b.maxRetries,
	}
}

func (b *Base) recordError(op string, err error) {
	b.statusMu.Lock()
	b.lastErr = op + ": " + err.Error()
	b.lastErrAt = time.Now()
	b.retries++
	b.statusMu.Unlock()
}

func (b *Base) recordSuccess() {
	b.statusMu.Lock()
	b.retries = 0
	b.statusMu.Unlock()
}

// Retry runs fn up to maxRetries times with doubling backoff. Errors are kept
// in the adapter's status; the last one is returned.
func (b *Base) Retry(ctx context.Context, op string, fn func(context.Context) error) error {
	backoff := b.retryBackoff
	maxBackoff := 5 * time.Second

	var err error
	for attempt := 1; attempt <= b.maxRetries; attempt++ {
		if err = fn(ctx); err == nil {
			b.recordSuccess()
			return nil
		}
		b.recordError(op, err)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrNoCredentials) {
			break
		}
		if attempt == b.maxRetries {
			break
		}
		log.Debug().Str("exchange", b.name).Str("op", op).Int("attempt", attempt).Err(err).Msg("request failed, retrying")
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s %s: %w", b.name, op, ctx.Err())
		case <-time.After(backoff):
		}
		backoff = MinDuration(backoff*2, maxBackoff)
	}
	return fmt.Errorf("%s %s: %w", b.name, op, err)
}

// PutMarket stores a quote under global codes. An exchange market that
// trades baseAsset against quoteAsset is keyed table[quote][base] and priced
// in quoteAsset per baseAsset. Returns false when either asset is unmapped.
func (b *Base) PutMarket(table model.MarketTable, baseAsset, quoteAsset string, q model.MarketQuote) bool {
	base, ok := b.GlobalCode(baseAsset)
	if !ok {
		return false
	}
	quote, ok := b.GlobalCode(quoteAsset)
	if !ok {
		return false
	}
	q.Exchange = b.name
	table.Put(quote, base, q)
	return true
}

// DoJSON 发送 REST 请求并把响应解析到 v；sign 为空表示公共接口
func (b *Base) DoJSON(ctx context.Context, method, path string, params url.Values, sign Signer, v any) error {
	var query string
	if params != nil {
		query = params.Encode()
	}
	endpoint, err := BuildQueryURL(b.httpURL, path, query)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return err
	}
	if sign != nil {
		sign(req, query)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s http %d: %s", b.name, resp.StatusCode, truncate(string(body), 256))
	}
	return ParseJSON(body, v)
}

// ===== helpers =====

// ParseJSON safely parses JSON
func ParseJSON(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("json unmarshal: %w", err)
	}
	return nil
}

// BuildQueryURL builds a URL with query parameters
func BuildQueryURL(base, path, query string) (string, error) {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		return "", errors.New("base url is empty")
	}

	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	u.Path = path
	u.RawQuery = query
	return u.String(), nil
}

// ParseDecimal 解析交易所返回的数字字符串，空串视为 0
func ParseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

// ParsePrice 解析价格；空串、非法或非正数返回 null
func ParsePrice(s string) decimal.NullDecimal {
	d, err := ParseDecimal(s)
	if err != nil || !d.IsPositive() {
		return decimal.NullDecimal{}
	}
	return model.Price(d)
}

// ParseNullable 解析可空数值（成交量、涨跌幅），允许 0 和负数
func ParseNullable(s string) decimal.NullDecimal {
	if strings.TrimSpace(s) == "" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

// MinDuration returns the minimum of two durations
func MinDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// ===== websocket =====

// ReadWithPing reads WebSocket messages with periodic pings until ctx ends or
// the connection fails.
func ReadWithPing(ctx context.Context, conn *websocket.Conn, onMessage func([]byte)) error {
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	pingTicker := time.NewTicker(25 * time.Second)
	defer pingTicker.Stop()

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		for {
			_, b, err := conn.ReadMessage()
			if err != nil {
				errCh <- err
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			onMessage(b)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			return err
		case <-pingTicker.C:
			_ = conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(5*time.Second))
		}
	}
}

// RunStream keeps a websocket stream alive with reconnection and backoff
// until ctx is cancelled.
func RunStream(ctx context.Context, name, wsURL string, onConnect func(*websocket.Conn) error, onMessage func([]byte)) {
	backoff := 500 * time.Millisecond
	maxBackoff := 10 * time.Second

	for {
		if ctx.Err() != nil {
			return
		}

		log.Debug().Str("exchange", name).Str("url", wsURL).Msg("ws connecting")
		cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		conn, _, err := websocket.DefaultDialer.DialContext(cctx, wsURL, nil)
		cancel()
		if err == nil && onConnect != nil {
			if err = onConnect(conn); err != nil {
				_ = conn.Close()
			}
		}
		if err != nil {
			log.Warn().Str("exchange", name).Err(err).Msg("ws dial failed")
			if !sleepCtx(ctx, backoff) {
				return
			}
			backoff = MinDuration(backoff*2, maxBackoff)
			continue
		}

		backoff = 500 * time.Millisecond
		log.Info().Str("exchange", name).Msg("ws connected")
		err = ReadWithPing(ctx, conn, onMessage)
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}
		log.Warn().Str("exchange", name).Err(err).Msg("ws disconnected, reconnecting")
		if !sleepCtx(ctx, backoff) {
			return
		}
		backoff = MinDuration(backoff*2, maxBackoff)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Streamer 由带有 websocket 行情的适配器实现，服务启动时调用
type Streamer interface {
	Start(ctx context.Context)
}
