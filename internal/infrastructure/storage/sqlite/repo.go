package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"xtrader/internal/application/port"
	"xtrader/internal/infrastructure/storage"
)

// Repo keeps the latest refresh snapshot in SQLite. Every Publish replaces
// the previous contents in one transaction.
type Repo struct {
	db *sql.DB
}

func New(path string) (*Repo, error) {
	// ensure directory exists
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	r := &Repo{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) GetDB() *sql.DB {
	return r.db
}

func (r *Repo) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS snapshot (
  slot TEXT PRIMARY KEY,
  id TEXT NOT NULL,
  ts_ms INTEGER NOT NULL,
  quotes INTEGER NOT NULL,
  pairwise INTEGER NOT NULL,
  triangular INTEGER NOT NULL,
  total_btc TEXT,
  total_usd TEXT
);

CREATE TABLE IF NOT EXISTS quotes (
  exchange TEXT NOT NULL,
  base TEXT NOT NULL,
  currency TEXT NOT NULL,
  symbol TEXT NOT NULL,
  bid TEXT,
  ask TEXT,
  updated_ms INTEGER NOT NULL,
  PRIMARY KEY(exchange, base, currency)
);
CREATE INDEX IF NOT EXISTS idx_quotes_pair ON quotes(base, currency);

CREATE TABLE IF NOT EXISTS opportunities (
  kind TEXT NOT NULL,
  key TEXT NOT NULL,
  exchange TEXT NOT NULL,
  return_pct TEXT NOT NULL,
  payload TEXT NOT NULL,
  PRIMARY KEY(kind, key, exchange)
);

CREATE TABLE IF NOT EXISTS balances (
  exchange TEXT NOT NULL,
  currency TEXT NOT NULL,
  available TEXT NOT NULL,
  on_orders TEXT NOT NULL,
  total TEXT NOT NULL,
  btc_value TEXT,
  PRIMARY KEY(exchange, currency)
);
`)
	return err
}

// Publish replaces the stored snapshot with snap.
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

	for _, table := range []string{"quotes", "opportunities", "balances"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
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
		INSERT INTO snapshot(slot, id, ts_ms, quotes, pairwise, triangular, total_btc, total_usd)
		VALUES('latest', ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(slot) DO UPDATE SET
		id=excluded.id, ts_ms=excluded.ts_ms, quotes=excluded.quotes, pairwise=excluded.pairwise,
		triangular=excluded.triangular, total_btc=excluded.total_btc, total_usd=excluded.total_usd
	`, snap.ID, snap.Timestamp, len(quotes), len(snap.Pairwise), len(snap.Triangular), totalBtc, totalUsd)
	if err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}

	for _, q := range quotes {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO quotes(exchange, base, currency, symbol, bid, ask, updated_ms)
			VALUES(?, ?, ?, ?, ?, ?, ?)
		`, q.Exchange, q.Base, q.Currency, q.Symbol, q.Bid, q.Ask, q.UpdatedMs); err != nil {
			return fmt.Errorf("insert quote: %w", err)
		}
	}
	for _, o := range opps {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO opportunities(kind, key, exchange, return_pct, payload)
			VALUES(?, ?, ?, ?, ?)
			ON CONFLICT(kind, key, exchange) DO UPDATE SET
			return_pct=excluded.return_pct, payload=excluded.payload
		`, o.Kind, o.Key, o.Exchange, o.Return, o.Payload); err != nil {
			return fmt.Errorf("insert opportunity: %w", err)
		}
	}
	for _, b := range storage.Balances(snap) {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO balances(exchange, currency, available, on_orders, total, btc_value)
			VALUES(?, ?, ?, ?, ?, ?)
		`, b.Exchange, b.Currency, b.Available, b.OnOrders, b.Total, b.BtcValue); err != nil {
			return fmt.Errorf("insert balance: %w", err)
		}
	}
	return tx.Commit()
}

// LatestSnapshot 返回最近一次发布的快照 ID 与时间
func (r *Repo) LatestSnapshot(ctx context.Context) (id string, ts int64, err error) {
	err = r.db.QueryRowContext(ctx, `SELECT id, ts_ms FROM snapshot WHERE slot='latest'`).Scan(&id, &ts)
	return
}

// LatestQuote 返回某交易所某交易对的最新买卖价
func (r *Repo) LatestQuote(ctx context.Context, exchange, base, currency string) (bid, ask decimal.NullDecimal, err error) {
	err = r.db.QueryRowContext(ctx, `SELECT bid, ask FROM quotes WHERE exchange=? AND base=? AND currency=?`,
		exchange, base, currency).Scan(&bid, &ask)
	return
}

// ListOpportunities 按收益降序列出某类机会
func (r *Repo) ListOpportunities(ctx context.Context, kind string) ([]storage.OpportunityRow, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT kind, key, exchange, return_pct, payload FROM opportunities WHERE kind=?`, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.OpportunityRow
	for rows.Next() {
		var o storage.OpportunityRow
		if err := rows.Scan(&o.Kind, &o.Key, &o.Exchange, &o.Return, &o.Payload); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	storage.SortByReturn(out)
	return out, nil
}

// Count 表行数
func (r *Repo) Count(ctx context.Context, table string) (int, error) {
	switch table {
	case "quotes", "opportunities", "balances":
	default:
		return 0, fmt.Errorf("unknown table %q", table)
	}
	var n int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n)
	return n, err
}

var _ port.Publisher = (*Repo)(nil)
