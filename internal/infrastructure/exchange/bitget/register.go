package bitget

import (
	"xtrader/internal/application/port"
	"xtrader/internal/infrastructure/config"
	"xtrader/internal/infrastructure/exchange"
)

// init() 自动注册 Bitget 适配器
func init() {
	exchange.Register(Name, func(cfg config.ExchangeConfig) port.Exchange {
		return New(cfg)
	})
}
