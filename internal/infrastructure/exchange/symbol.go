package exchange

import (
	"sort"
	"strings"
)

// SymbolConverter 交易对符号与 (base, quote) 资产之间的转换
// 例: BTC-USDT (sep "-"), BTCUSDT (sep "")
type SymbolConverter struct {
	sep    string
	quotes []string // 无分隔符时用于识别后缀，长的优先
}

// NewSymbolConverter 创建符号转换器；quotes 为无分隔符时可识别的计价资产
func NewSymbolConverter(sep string, quotes ...string) *SymbolConverter {
	qs := make([]string, 0, len(quotes))
	for _, q := range quotes {
		if q = strings.ToUpper(strings.TrimSpace(q)); q != "" {
			qs = append(qs, q)
		}
	}
	sort.SliceStable(qs, func(i, j int) bool { return len(qs[i]) > len(qs[j]) })
	return &SymbolConverter{sep: sep, quotes: qs}
}

// Join 将资产拼成交易对
// 例: BTC, USDT -> BTC-USDT
func (c *SymbolConverter) Join(base, quote string) string {
	return strings.ToUpper(strings.TrimSpace(base)) + c.sep + strings.ToUpper(strings.TrimSpace(quote))
}

// Split 将交易对拆成资产
// 例: BTC-USDT -> BTC, USDT；BTCUSDT -> BTC, USDT
func (c *SymbolConverter) Split(symbol string) (base, quote string, ok bool) {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	if sym == "" {
		return "", "", false
	}
	if c.sep != "" {
		parts := strings.Split(sym, c.sep)
		if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
			return "", "", false
		}
		return parts[0], parts[1], true
	}
	for _, q := range c.quotes {
		if strings.HasSuffix(sym, q) && len(sym) > len(q) {
			return strings.TrimSuffix(sym, q), q, true
		}
	}
	return "", "", false
}
