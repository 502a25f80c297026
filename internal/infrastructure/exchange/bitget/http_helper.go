package bitget

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"xtrader/internal/infrastructure/exchange"
)

// signedGet Bitget 签名: BASE64(HMAC-SHA256(timestamp + method + requestPath + "?" + query + body))
func (a *Adapter) signedGet(ctx context.Context, path string, params url.Values, v any) error {
	creds := a.Credentials()
	if creds == nil {
		return exchange.ErrNoCredentials
	}
	return a.DoJSON(ctx, http.MethodGet, path, params, func(req *http.Request, query string) {
		timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
		requestPath := path
		if query != "" {
			requestPath += "?" + query
		}

		req.Header.Set("ACCESS-KEY", creds.APIKey())
		req.Header.Set("ACCESS-SIGN", creds.SignBase64(timestamp+req.Method+requestPath))
		req.Header.Set("ACCESS-TIMESTAMP", timestamp)
		req.Header.Set("ACCESS-PASSPHRASE", creds.Passphrase())
		req.Header.Set("locale", "en-US")
	}, v)
}
