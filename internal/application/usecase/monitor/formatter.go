package monitor

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"xtrader/internal/application/port"
)

const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiDim    = "\033[2m"
)

func colorize(s, c string) string { return c + s + ansiReset }

type Formatter struct {
	TopN    int
	NoColor bool
}

func NewFormatter(topN int, noColor bool) *Formatter {
	if topN <= 0 {
		topN = 10
	}
	return &Formatter{TopN: topN, NoColor: noColor}
}

func (f *Formatter) color(s, c string) string {
	if f.NoColor {
		return s
	}
	return colorize(s, c)
}

// Render 将一次刷新结果渲染为若干行
func (f *Formatter) Render(snap *port.Snapshot) []string {
	var lines []string

	lines = append(lines, f.color("[XTRADER] ", ansiDim)+
		fmt.Sprintf("quotes=%d pairwise=%d triangular=%d", snap.Market.Len(), len(snap.Pairwise), len(snap.Triangular)))

	for i, o := range snap.Pairwise {
		if i >= f.TopN {
			break
		}
		lines = append(lines, fmt.Sprintf("  %s/%s buy@%s %s sell@%s %s %s",
			o.Base, o.Currency,
			o.AskExchange, o.AskPrice.String(),
			o.BidExchange, o.BidPrice.String(),
			f.color(fmt.Sprintf("Δ=%s%%", o.Spread().StringFixed(3)), ansiGreen)))
	}

	for i, o := range snap.Triangular {
		if i >= f.TopN {
			break
		}
		legs := make([]string, 0, len(o.Legs))
		for _, l := range o.Legs {
			legs = append(legs, fmt.Sprintf("%s %s/%s@%s", l.Action, l.Base, l.Currency, l.Price.String()))
		}
		lines = append(lines, fmt.Sprintf("  %s %s [%s] %s",
			o.Exchange, o.Direction, strings.Join(legs, " -> "),
			f.color(fmt.Sprintf("ret=%s%%", o.Return.StringFixed(3)), ansiGreen)))
	}

	if t := snap.Totals; t != nil {
		usd := "--"
		if t.UsdAvailable {
			usd = t.TotalUsd.StringFixed(2)
		}
		line := fmt.Sprintf("  balance btc=%s usd=%s", t.TotalBtc.StringFixed(8), usd)
		if len(t.Unpriced) > 0 {
			line += " " + f.color("unpriced="+strings.Join(t.Unpriced, ","), ansiRed)
		}
		lines = append(lines, line)
	}
	if snap.Balances != nil {
		for _, code := range snap.Balances.Codes() {
			cur := snap.Balances.Currencies[code]
			val := cur.TotalBtcValue.StringFixed(8)
			col := ansiYellow
			if cur.Unpriced {
				val, col = "n/a", ansiRed
			}
			lines = append(lines, fmt.Sprintf("    %-8s total=%s btc=%s", code, trim(cur.Total), f.color(val, col)))
		}
	}
	return lines
}

func trim(d decimal.Decimal) string {
	return d.Truncate(8).String()
}
