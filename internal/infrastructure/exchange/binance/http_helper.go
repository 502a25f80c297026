package binance

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"xtrader/internal/infrastructure/exchange"
)

// signedGet is shared helper for signed REST calls.
func (a *Adapter) signedGet(ctx context.Context, path string, params url.Values, v any) error {
	creds := a.Credentials()
	if creds == nil {
		return exchange.ErrNoCredentials
	}
	if params == nil {
		params = url.Values{}
	}
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	if params.Get("recvWindow") == "" {
		params.Set("recvWindow", "5000")
	}

	return a.DoJSON(ctx, http.MethodGet, path, params, func(req *http.Request, query string) {
		req.URL.RawQuery = query + "&signature=" + creds.SignHex(query)
		req.Header.Set("X-MBX-APIKEY", creds.APIKey())
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}, v)
}
