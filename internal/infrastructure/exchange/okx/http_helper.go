package okx

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"xtrader/internal/infrastructure/exchange"
)

// signedGet 发送带 query 的签名请求
func (a *Adapter) signedGet(ctx context.Context, path string, params url.Values, v any) error {
	creds := a.Credentials()
	if creds == nil {
		return exchange.ErrNoCredentials
	}
	return a.DoJSON(ctx, http.MethodGet, path, params, func(req *http.Request, query string) {
		timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")

		// OKX signature
		// message = timestamp + method + requestPath(+query) + body
		requestPath := path
		if query != "" {
			requestPath += "?" + query
		}
		signature := creds.SignBase64(timestamp + req.Method + requestPath)

		req.Header.Set("OK-ACCESS-KEY", creds.APIKey())
		req.Header.Set("OK-ACCESS-SIGN", signature)
		req.Header.Set("OK-ACCESS-TIMESTAMP", timestamp)
		req.Header.Set("OK-ACCESS-PASSPHRASE", creds.Passphrase())
	}, v)
}
