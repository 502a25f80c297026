package exchange

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"xtrader/internal/application/port"
	"xtrader/internal/infrastructure/config"
)

// Factory 根据交易所配置构建适配器
type Factory func(cfg config.ExchangeConfig) port.Exchange

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register 由各交易所包的 init() 调用
func Register(name string, factory Factory) {
	if factory == nil {
		log.Warn().Str("exchange", name).Msg("invalid exchange factory")
		return
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[name]; exists {
		log.Warn().Str("exchange", name).Msg("exchange factory already registered, overwriting")
	}
	registry[name] = factory
}

// Get 获取已注册的 factory
func Get(name string) (Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[name]
	return f, ok
}

// Registered 已注册的交易所名称（排序）
func Registered() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build 创建单个适配器，未注册的交易所返回错误
func Build(name string, cfg config.ExchangeConfig) (port.Exchange, error) {
	f, ok := Get(name)
	if !ok {
		return nil, fmt.Errorf("unknown exchange %q (registered: %v)", name, Registered())
	}
	return f(cfg), nil
}
