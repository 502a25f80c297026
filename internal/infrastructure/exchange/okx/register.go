package okx

import (
	"xtrader/internal/application/port"
	"xtrader/internal/infrastructure/config"
	"xtrader/internal/infrastructure/exchange"
)

func init() {
	exchange.Register(Name, func(cfg config.ExchangeConfig) port.Exchange {
		return New(cfg)
	})
}
