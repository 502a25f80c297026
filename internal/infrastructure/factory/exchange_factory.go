package factory

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"xtrader/internal/application/port"
	"xtrader/internal/application/service"
	"xtrader/internal/infrastructure/config"
	"xtrader/internal/infrastructure/exchange"

	// 各交易所包在 init() 中注册自己的适配器
	_ "xtrader/internal/infrastructure/exchange/binance"
	_ "xtrader/internal/infrastructure/exchange/bitget"
	_ "xtrader/internal/infrastructure/exchange/bybit"
	_ "xtrader/internal/infrastructure/exchange/okx"
)

// NewExchanges 按加载顺序创建所有启用的交易所适配器
// 未注册的交易所名称是配置错误
func NewExchanges(cfg *config.Config) ([]port.Exchange, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	names := cfg.EnabledExchanges()
	out := make([]port.Exchange, 0, len(names))
	for _, name := range names {
		ex, err := exchange.Build(name, cfg.Exchanges[name])
		if err != nil {
			return nil, err
		}
		out = append(out, ex)
		log.Info().
			Str("exchange", name).
			Bool("trading", ex.HasCredentials()).
			Msg("exchange adapter initialized")
	}
	return out, nil
}

// NewRenameMap 配置中的重命名表，代码统一大写
func NewRenameMap(cfg *config.Config) service.RenameMap {
	out := make(service.RenameMap, len(cfg.Rename))
	for ex, codes := range cfg.Rename {
		m := make(map[string]string, len(codes))
		for local, global := range codes {
			m[strings.ToUpper(strings.TrimSpace(local))] = strings.ToUpper(strings.TrimSpace(global))
		}
		out[ex] = m
	}
	return out
}
