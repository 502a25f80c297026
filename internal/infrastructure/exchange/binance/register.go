package binance

import (
	"xtrader/internal/application/port"
	"xtrader/internal/infrastructure/config"
	"xtrader/internal/infrastructure/exchange"
)

// init() 自动注册 Binance 适配器，factory 中无需硬编码
func init() {
	exchange.Register(Name, func(cfg config.ExchangeConfig) port.Exchange {
		return New(cfg)
	})
}
