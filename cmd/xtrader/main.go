package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"xtrader/internal/application/usecase/monitor"
	"xtrader/internal/infrastructure/config"
	"xtrader/internal/infrastructure/logger"
	"xtrader/internal/infrastructure/svc"
)

func main() {
	logger.Setup("info")

	configPath := flag.String("config", "configs/config.toml", "path to config.toml or config.yaml")
	once := flag.Bool("once", false, "run a single refresh pass and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config", *configPath).Msg("load config failed")
	}
	logger.SetLevel(cfg.App.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sc, err := svc.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("service context initialization failed")
	}
	defer sc.Close()

	service := monitor.NewService(sc.BuildMonitorServiceDeps())

	log.Info().
		Str("config", *configPath).
		Strs("exchanges", cfg.EnabledExchanges()).
		Int("refresh_interval_sec", cfg.App.RefreshIntervalSec).
		Float64("required_return", cfg.Arbitrage.RequiredReturn).
		Msg("xtrader started")

	if *once {
		if err := service.Once(ctx); err != nil {
			log.Error().Err(err).Msg("refresh failed")
		}
		return
	}

	sc.StartStreams(ctx)
	if err := service.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("monitor service exited")
	}
}
