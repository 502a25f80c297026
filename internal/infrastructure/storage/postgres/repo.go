package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"xtrader/internal/application/port"
	"xtrader/internal/infrastructure/storage"
)

// Repo Postgres 最新快照发布者
type Repo struct {
	db *sql.DB
}

func New(dsn string) (*Repo, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	r := &Repo{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS xt_snapshot (
  slot TEXT PRIMARY KEY,
  id UUID NOT NULL,
  ts_ms BIGINT NOT NULL,
  quotes INTEGER NOT NULL,
  pairwise INTEGER NOT NULL,
  triangular INTEGER NOT NULL,
  total_btc NUMERIC,
  total_usd NUMERIC
);
CREATE TABLE IF NOT EXISTS xt_quotes (
  exchange TEXT NOT NULL,
  base TEXT NOT NULL,
  currency TEXT NOT NULL,
  symbol TEXT NOT NULL,
  bid NUMERIC,
  ask NUMERIC,
  updated_ms BIGINT NOT NULL,
  PRIMARY KEY(exchange, base, currency)
);
CREATE TABLE IF NOT EXISTS xt_opportunities (
  kind TEXT NOT NULL,
  key TEXT NOT NULL,
  exchange TEXT NOT NULL,
  return_pct NUMERIC NOT NULL,
  payload JSONB NOT NULL,
  PRIMARY KEY(kind, key, exchange)
);
CREATE TABLE IF NOT EXISTS xt_balances (
  exchange TEXT NOT NULL,
  currency TEXT NOT NULL,
  available NUMERIC NOT NULL,
  on_orders NUMERIC NOT NULL,
  total NUMERIC NOT NULL,
  btc_value NUMERIC,
  PRIMARY KEY(exchange, currency)
);
`)
	return err
}

func (r *Repo) Publish(ctx context.Context, snap *port.Snapshot) error {
	opps, err := storage.Opportunities(snap)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `TRUNCATE xt_quotes, xt_opportunities, xt_balances`); err != nil {
		return fmt.Errorf("truncate: %w", err)
	}

	var totalBtc, totalUsd decimal.NullDecimal
	if snap.Totals != nil {
		totalBtc = decimal.NewNullDecimal(snap.Totals.TotalBtc)
		if snap.Totals.UsdAvailable {
			totalUsd = decimal.NewNullDecimal(snap.Totals.TotalUsd)
		}
	}
	quotes := storage.Quotes(snap)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO xt_snapshot(slot, id, ts_ms, quotes, pairwise, triangular, total_btc, total_usd)
		VALUES('latest', $1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT(slot) DO UPDATE SET
		id=EXCLUDED.id, ts_ms=EXCLUDED.ts_ms, quotes=EXCLUDED.quotes, pairwise=EXCLUDED.pairwise,
		triangular=EXCLUDED.triangular, total_btc=EXCLUDED.total_btc, total_usd=EXCLUDED.total_usd
	`, snap.ID, snap.Timestamp, len(quotes), len(snap.Pairwise), len(snap.Triangular), totalBtc, totalUsd)
	if err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}

	for _, q := range quotes {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO xt_quotes(exchange, base, currency, symbol, bid, ask, updated_ms)
			VALUES($1, $2, $3, $4, $5, $6, $7)
		`, q.Exchange, q.Base, q.Currency, q.Symbol, q.Bid, q.Ask, q.UpdatedMs); err != nil {
			return fmt.Errorf("insert quote: %w", err)
		}
	}
	for _, o := range opps {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO xt_opportunities(kind, key, exchange, return_pct, payload)
			VALUES($1, $2, $3, $4, $5)
			ON CONFLICT(kind, key, exchange) DO UPDATE SET
			return_pct=EXCLUDED.return_pct, payload=EXCLUDED.payload
		`, o.Kind, o.Key, o.Exchange, o.Return, o.Payload); err != nil {
			return fmt.Errorf("insert opportunity: %w", err)
		}
	}
	for _, b := range storage.Balances(snap) {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO xt_balances(exchange, currency, available, on_orders, total, btc_value)
			VALUES($1, $2, $3, $4, $5, $6)
		`, b.Exchange, b.Currency, b.Available, b.OnOrders, b.Total, b.BtcValue); err != nil {
			return fmt.Errorf("insert balance: %w", err)
		}
	}
	return tx.Commit()
}

var _ port.Publisher = (*Repo)(nil)
