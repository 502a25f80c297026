package port

import (
	"context"

	"xtrader/internal/domain/model"
)

// Snapshot is everything one refresh pass produced.
type Snapshot struct {
	ID         string
	Timestamp  int64 // unix ms
	Market     *model.AggregatedMarket
	Pairwise   []model.PairwiseOpportunity
	Triangular []model.TriangularOpportunity
	Balances   *model.ConsolidatedBalance
	Totals     *model.BalanceTotals
}

// Publisher exposes the latest snapshot to external readers. Implementations
// overwrite the previous snapshot; they do not keep history.
type Publisher interface {
	Publish(ctx context.Context, snap *Snapshot) error
	Close() error
}
