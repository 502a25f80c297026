package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"xtrader/internal/application/port"
	"xtrader/internal/infrastructure/storage"
)

// Repo publishes the latest snapshot to Redis:
//   - <prefix>:quotes    hash "exchange:base:currency" -> quote json
//   - <prefix>:balances  hash "exchange:currency" -> balance json
//   - <prefix>:snapshot  hash of snapshot metadata
//   - signal stream (capped) and pub/sub channel with every opportunity
type Repo struct {
	rdb          *redis.Client
	prefix       string
	ttl          time.Duration
	signalStream string
	signalChan   string
	maxLen       int64
}

func New(rdb *redis.Client, prefix string, ttl time.Duration, signalStream, signalChan string, maxLen int64) *Repo {
	if strings.TrimSpace(signalStream) == "" {
		signalStream = prefix + ":signals"
	}
	if strings.TrimSpace(signalChan) == "" {
		signalChan = prefix + ":signals:pub"
	}
	if maxLen <= 0 {
		maxLen = 1000
	}
	return &Repo{
		rdb:          rdb,
		prefix:       prefix,
		ttl:          ttl,
		signalStream: signalStream,
		signalChan:   signalChan,
		maxLen:       maxLen,
	}
}

func (r *Repo) key(name string) string { return r.prefix + ":" + name }

func (r *Repo) Close() error { return r.rdb.Close() }

func (r *Repo) Publish(ctx context.Context, snap *port.Snapshot) error {
	opps, err := storage.Opportunities(snap)
	if err != nil {
		return err
	}

	pipe := r.rdb.TxPipeline()
	keyQuotes, keyBalances, keySnap := r.key("quotes"), r.key("balances"), r.key("snapshot")
	pipe.Del(ctx, keyQuotes, keyBalances)

	quotes := storage.Quotes(snap)
	if len(quotes) > 0 {
		fields := make(map[string]any, len(quotes))
		for _, q := range quotes {
			b, _ := json.Marshal(q)
			fields[fmt.Sprintf("%s:%s:%s", q.Exchange, q.Base, q.Currency)] = string(b)
		}
		pipe.HSet(ctx, keyQuotes, fields)
	}
	if balances := storage.Balances(snap); len(balances) > 0 {
		fields := make(map[string]any, len(balances))
		for _, bal := range balances {
			b, _ := json.Marshal(bal)
			fields[bal.Exchange+":"+bal.Currency] = string(b)
		}
		pipe.HSet(ctx, keyBalances, fields)
	}

	meta := map[string]any{
		"id":         snap.ID,
		"ts_ms":      snap.Timestamp,
		"quotes":     len(quotes),
		"pairwise":   len(snap.Pairwise),
		"triangular": len(snap.Triangular),
	}
	if snap.Totals != nil {
		meta["total_btc"] = snap.Totals.TotalBtc.String()
		if snap.Totals.UsdAvailable {
			meta["total_usd"] = snap.Totals.TotalUsd.String()
		}
	}
	pipe.HSet(ctx, keySnap, meta)
	if r.ttl > 0 {
		pipe.Expire(ctx, keyQuotes, r.ttl)
		pipe.Expire(ctx, keyBalances, r.ttl)
		pipe.Expire(ctx, keySnap, r.ttl)
	}

	// Stream: XADD <stream> MAXLEN ~ n * ...
	for _, o := range opps {
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: r.signalStream,
			MaxLen: r.maxLen,
			Approx: true,
			Values: map[string]any{
				"snapshot":   snap.ID,
				"ts_ms":      snap.Timestamp,
				"kind":       o.Kind,
				"key":        o.Key,
				"exchange":   o.Exchange,
				"return_pct": o.Return.String(),
				"payload":    o.Payload,
			},
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}

	if len(opps) == 0 {
		return nil
	}
	// PubSub: 一次发布整批机会，便于消费者
	msg, err := json.Marshal(struct {
		Snapshot      string                   `json:"snapshot"`
		Ts            int64                    `json:"ts_ms"`
		Opportunities []storage.OpportunityRow `json:"opportunities"`
	}{snap.ID, snap.Timestamp, opps})
	if err != nil {
		return err
	}
	return r.rdb.Publish(ctx, r.signalChan, string(msg)).Err()
}

var _ port.Publisher = (*Repo)(nil)
