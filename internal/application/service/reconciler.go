package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"xtrader/internal/application/port"
	"xtrader/internal/domain/model"
)

var (
	// ErrUnknownExchange 配置中引用了未启用/未知的交易所
	ErrUnknownExchange = errors.New("unknown exchange")
	// ErrMalformedCurrency 单条币种数据不合法
	ErrMalformedCurrency = errors.New("malformed currency entry")
)

// RenameMap exchange -> local code -> canonical code
type RenameMap map[string]map[string]string

// Validate checks the rename map against the configured exchanges. A fault
// here is a configuration error and must abort startup.
func (m RenameMap) Validate(exchanges []string) error {
	known := make(map[string]struct{}, len(exchanges))
	for _, ex := range exchanges {
		known[ex] = struct{}{}
	}
	for ex, codes := range m {
		if _, ok := known[ex]; !ok {
			return fmt.Errorf("rename: %w: %s", ErrUnknownExchange, ex)
		}
		for local, global := range codes {
			if strings.TrimSpace(local) == "" || strings.TrimSpace(global) == "" {
				return fmt.Errorf("rename.%s: empty code in %q -> %q", ex, local, global)
			}
		}
	}
	return nil
}

// ReconcileReport 对账结果统计
type ReconcileReport struct {
	States     map[string]LoadState
	Currencies int
	Skipped    int
}

// Reconciler builds the canonical code space from every adapter's currency list.
type Reconciler struct {
	timeout time.Duration
}

func NewReconciler(timeout time.Duration) *Reconciler {
	return &Reconciler{timeout: timeout}
}

// Reconcile loads all currency lists in parallel and then folds them in
// configured load order, so the first exchange to introduce an asset names
// it. Adapters whose fetch failed keep their previous tables; those tables
// are carried into the new mapping from prev.
func (r *Reconciler) Reconcile(ctx context.Context, adapters []port.Exchange, rename RenameMap, prev *model.CodeMapping) (*model.CodeMapping, ReconcileReport) {
	results := fanOut(ctx, adapters, r.timeout, func(ctx context.Context, ex port.Exchange) (map[string]model.CurrencyInfo, error) {
		return ex.LoadCurrencies(ctx)
	})

	report := ReconcileReport{States: make(map[string]LoadState, len(adapters))}
	b := model.NewCodeMappingBuilder()
	loaded := make([]bool, len(adapters))

	for i, ex := range adapters {
		name := ex.Name()
		res := results[i]
		switch {
		case !res.done:
			log.Warn().Str("exchange", name).Dur("timeout", r.timeout).Msg("currency load timed out")
			report.States[name] = LoadTimeout
		case res.err != nil:
			log.Error().Err(res.err).Str("exchange", name).Msg("currency load failed")
			report.States[name] = LoadFailed
		case len(res.val) == 0:
			log.Warn().Str("exchange", name).Msg("currency load returned nothing")
			report.States[name] = LoadFailed
		default:
			loaded[i] = true
			report.States[name] = LoadOK
			report.Skipped += foldCurrencies(b, name, res.val, rename[name])
			continue
		}

		// 失败的交易所沿用上一次的映射，仍按加载顺序参与命名
		if carryForward(b, name, prev) {
			report.States[name] = LoadStale
		}
	}

	mapping := b.Build()
	report.Currencies = len(mapping.Codes())

	for i, ex := range adapters {
		if loaded[i] {
			ex.SetCodeTable(mapping.Table(ex.Name()))
		}
	}

	log.Info().
		Int("exchanges", len(adapters)).
		Int("currencies", report.Currencies).
		Int("skipped", report.Skipped).
		Msg("currencies reconciled")
	return mapping, report
}

// foldCurrencies adds one exchange's currencies to b and returns how many
// were skipped. Configured renames go first so an identity code never
// displaces an explicit override.
func foldCurrencies(b *model.CodeMappingBuilder, exchange string, currencies map[string]model.CurrencyInfo, renames map[string]string) int {
	var renamed, identity []string
	for local := range currencies {
		if _, ok := renames[local]; ok {
			renamed = append(renamed, local)
		} else {
			identity = append(identity, local)
		}
	}
	sort.Strings(renamed)
	sort.Strings(identity)

	skipped := 0
	for _, local := range append(renamed, identity...) {
		if err := addCurrency(b, exchange, local, currencies[local], renames); err != nil {
			skipped++
			log.Warn().Err(err).Str("exchange", exchange).Str("currency", local).Msg("currency skipped")
		}
	}
	return skipped
}

func carryForward(b *model.CodeMappingBuilder, exchange string, prev *model.CodeMapping) bool {
	if prev == nil {
		return false
	}
	table := prev.Table(exchange)
	if len(table) == 0 {
		return false
	}
	for _, local := range sortedKeys(table) {
		global := table[local]
		var display string
		if c, ok := prev.Currency(global); ok {
			display = c.LocalNames[exchange]
		}
		b.Add(exchange, local, global, display)
	}
	return true
}

func addCurrency(b *model.CodeMappingBuilder, exchange, local string, info model.CurrencyInfo, renames map[string]string) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", ErrMalformedCurrency, p)
		}
	}()

	if local == "" || strings.TrimSpace(local) != local {
		return fmt.Errorf("%w: local code %q", ErrMalformedCurrency, local)
	}
	global := local
	if to, ok := renames[local]; ok {
		global = to
	}

	// 同一交易所两个本地代码映射到同一统一代码时，保留先到的（重命名优先）
	if prev, ok := b.LocalCode(exchange, global); ok && prev != local {
		return fmt.Errorf("%s already maps to %s via %s", local, global, prev)
	}
	b.Add(exchange, local, global, info.Name)
	return nil
}

func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
