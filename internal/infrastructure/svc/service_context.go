package svc

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"xtrader/internal/application/port"
	"xtrader/internal/application/trader"
	"xtrader/internal/application/usecase/monitor"
	"xtrader/internal/infrastructure/config"
	"xtrader/internal/infrastructure/container"
	"xtrader/internal/infrastructure/factory"
	"xtrader/internal/infrastructure/websocket"
	"xtrader/internal/interfaces/console"
)

type ServiceContext struct {
	Ctx    context.Context
	Config *config.Config

	// 基础设施层
	exchanges []port.Exchange
	streams   *websocket.Manager
	container *container.Container

	// 输出端口
	Sink port.Sink

	// 应用层
	trader *trader.Trader

	// 资源管理
	closerChain []func() error
}

// New 创建并初始化 ServiceContext
// 这是应用启动的唯一入口点，所有依赖初始化都在这里完成
func New(ctx context.Context, cfg *config.Config) (*ServiceContext, error) {
	sc := &ServiceContext{
		Ctx:         ctx,
		Config:      cfg,
		Sink:        console.NewSink(),
		closerChain: make([]func() error, 0),
	}

	if err := sc.initializeComponents(); err != nil {
		// 清理已初始化的资源
		_ = sc.Close()
		return nil, err
	}
	return sc, nil
}

// initializeComponents 按依赖顺序初始化：适配器 -> 门面 -> 存储
func (sc *ServiceContext) initializeComponents() error {
	exchanges, err := factory.NewExchanges(sc.Config)
	if err != nil {
		return fmt.Errorf("exchange initialization failed: %w", err)
	}
	if len(exchanges) == 0 {
		return ErrNoAdapters
	}
	sc.exchanges = exchanges
	sc.streams = websocket.NewManager()
	sc.streams.Initialize(exchanges)

	tr, err := trader.New(trader.Deps{
		Exchanges:   exchanges,
		Rename:      factory.NewRenameMap(sc.Config),
		LoadTimeout: time.Duration(sc.Config.App.LoadTimeoutMs) * time.Millisecond,
		BtcUsdPrice: btcUsdPrice(sc.Config),
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTraderInitFailed, err)
	}
	sc.trader = tr

	c, err := container.New(sc.Config)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageInitFailed, err)
	}
	sc.container = c
	sc.closerChain = append(sc.closerChain, c.Close)

	log.Info().
		Int("exchanges", len(exchanges)).
		Strs("trading", sc.Config.TradingExchanges()).
		Msg("all components initialized")
	return nil
}

// StartStreams 启动支持 websocket 的适配器
func (sc *ServiceContext) StartStreams(ctx context.Context) {
	sc.streams.Start(ctx)
}

// Trader 获取交易门面
func (sc *ServiceContext) Trader() *trader.Trader {
	return sc.trader
}

// BuildMonitorServiceDeps 构建 Monitor Service 所需的所有依赖
func (sc *ServiceContext) BuildMonitorServiceDeps() monitor.ServiceDeps {
	cfg := sc.Config
	return monitor.ServiceDeps{
		Trader:               sc.trader,
		RefreshInterval:      time.Duration(cfg.App.RefreshIntervalSec) * time.Second,
		CurrencyRefreshEvery: cfg.App.CurrencyRefreshEvery,
		RequiredReturn:       decimal.NewFromFloat(cfg.Arbitrage.RequiredReturn),
		TriangularReturn:     decimal.NewFromFloat(cfg.Arbitrage.TriangularRequiredReturn),
		BtcUsdPrice:          btcUsdPrice(cfg),
		Sink:                 sc.Sink,
		Publisher:            sc.container.Publisher(),
		Formatter:            monitor.NewFormatter(cfg.App.TopN, cfg.App.NoColor),
	}
}

// Close 关闭 ServiceContext 中的所有资源，按相反的顺序
func (sc *ServiceContext) Close() error {
	for i := len(sc.closerChain) - 1; i >= 0; i-- {
		if err := sc.closerChain[i](); err != nil {
			log.Error().Err(err).Msg("error closing resource")
		}
	}
	sc.closerChain = nil
	return nil
}

func btcUsdPrice(cfg *config.Config) decimal.NullDecimal {
	if cfg.App.BtcUsdPrice <= 0 {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(decimal.NewFromFloat(cfg.App.BtcUsdPrice))
}
