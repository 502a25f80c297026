package bybit

import (
	"context"
	"net/http"
	"net/url"

	"xtrader/internal/infrastructure/exchange"
)

const recvWindow = "5000"

// signedGet 发送带 query 的签名请求
func (a *Adapter) signedGet(ctx context.Context, path string, params url.Values, v any) error {
	creds := a.Credentials()
	if creds == nil {
		return exchange.ErrNoCredentials
	}
	return a.DoJSON(ctx, http.MethodGet, path, params, func(req *http.Request, query string) {
		ts := timestamp()
		// Bybit V5 signature: timestamp + apiKey + recvWindow + payload
		signature := creds.SignHex(ts + creds.APIKey() + recvWindow + query)

		req.Header.Set("X-BAPI-API-KEY", creds.APIKey())
		req.Header.Set("X-BAPI-TIMESTAMP", ts)
		req.Header.Set("X-BAPI-RECV-WINDOW", recvWindow)
		req.Header.Set("X-BAPI-SIGN", signature)
	}, v)
}
