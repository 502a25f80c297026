package monitor

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"xtrader/internal/application/port"
	"xtrader/internal/application/trader"
)

type ServiceDeps struct {
	Trader               *trader.Trader
	RefreshInterval      time.Duration
	CurrencyRefreshEvery int // 每 N 次行情刷新重新对账一次，<=0 表示不重新对账
	RequiredReturn       decimal.Decimal
	TriangularReturn     decimal.Decimal
	BtcUsdPrice          decimal.NullDecimal
	Sink                 port.Sink
	Publisher            port.Publisher
	Formatter            *Formatter
}

// Service drives the refresh cadence: markets every tick, currencies every
// CurrencyRefreshEvery ticks, then detection, valuation and publishing.
type Service struct {
	deps ServiceDeps
}

func NewService(deps ServiceDeps) *Service {
	if deps.RefreshInterval <= 0 {
		deps.RefreshInterval = 30 * time.Second
	}
	if deps.Publisher == nil {
		deps.Publisher = NewNoopPublisher()
	}
	if deps.Formatter == nil {
		deps.Formatter = NewFormatter(10, false)
	}
	return &Service{deps: deps}
}

func (s *Service) Run(ctx context.Context) error {
	if s.deps.Trader == nil {
		return errors.New("no trader")
	}
	if err := s.deps.Trader.Init(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(s.deps.RefreshInterval)
	defer ticker.Stop()

	pass := 0
	s.report(ctx, pass)
	for {
		select {
		case <-ctx.Done():
			_ = s.deps.Sink.NewLine()
			return ctx.Err()
		case <-ticker.C:
			pass++
			if err := s.Refresh(ctx, pass); err != nil {
				log.Error().Err(err).Int("pass", pass).Msg("refresh failed")
				continue
			}
			s.report(ctx, pass)
		}
	}
}

// Once 初始化并输出一次结果
func (s *Service) Once(ctx context.Context) error {
	if s.deps.Trader == nil {
		return errors.New("no trader")
	}
	if err := s.deps.Trader.Init(ctx); err != nil {
		return err
	}
	s.report(ctx, 0)
	return nil
}

// Refresh 执行第 pass 次刷新（对账 + 行情）
func (s *Service) Refresh(ctx context.Context, pass int) error {
	tr := s.deps.Trader
	if every := s.deps.CurrencyRefreshEvery; every > 0 && pass%every == 0 {
		tr.RefreshCurrencies(ctx)
	}
	_, err := tr.RefreshMarkets(ctx)
	return err
}

// BuildSnapshot runs detection and valuation against the current market.
func (s *Service) BuildSnapshot(ctx context.Context) (*port.Snapshot, error) {
	tr := s.deps.Trader
	snap := &port.Snapshot{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UnixMilli(),
		Market:    tr.Market(),
	}

	var err error
	if snap.Pairwise, err = tr.PairwiseArbitrage(s.deps.RequiredReturn); err != nil {
		return nil, err
	}
	if snap.Triangular, err = tr.TriangularArbitrage(s.deps.TriangularReturn); err != nil {
		return nil, err
	}

	if tr.HasTrading() {
		if snap.Balances, err = tr.ConsolidatedBalances(ctx); err != nil {
			return nil, err
		}
		totals, err := tr.ConsolidatedTotals(ctx, s.deps.BtcUsdPrice)
		if err != nil {
			return nil, err
		}
		snap.Totals = &totals
	}
	return snap, nil
}

func (s *Service) report(ctx context.Context, pass int) {
	snap, err := s.BuildSnapshot(ctx)
	if err != nil {
		log.Error().Err(err).Int("pass", pass).Msg("build snapshot failed")
		return
	}

	now := time.UnixMilli(snap.Timestamp)
	for _, line := range s.deps.Formatter.Render(snap) {
		_ = s.deps.Sink.WriteSnapshot(now, line)
	}
	if err := s.deps.Publisher.Publish(ctx, snap); err != nil {
		log.Error().Err(err).Str("snapshot", snap.ID).Msg("publish snapshot failed")
	}
	s.deps.Trader.LogStatus()
}
