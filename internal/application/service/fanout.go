package service

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"xtrader/internal/application/port"
)

// LoadState 单个交易所在一次刷新中的结果
type LoadState string

const (
	LoadOK      LoadState = "ok"
	LoadFailed  LoadState = "failed"
	LoadTimeout LoadState = "timeout"
	LoadStale   LoadState = "stale" // 使用上一次成功的数据
)

// DefaultLoadTimeout is the bounded wait applied to each fan-out.
const DefaultLoadTimeout = time.Second

type loadResult[T any] struct {
	val     T
	err     error
	done    bool
	elapsed time.Duration
}

// fanOut runs fn once per adapter, each in its own goroutine, and returns
// when all have finished or timeout elapses, whichever comes first. Slots of
// adapters that missed the deadline have done=false; their late results are
// dropped.
func fanOut[T any](ctx context.Context, adapters []port.Exchange, timeout time.Duration,
	fn func(context.Context, port.Exchange) (T, error)) []loadResult[T] {
	if timeout <= 0 {
		timeout = DefaultLoadTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		mu     sync.Mutex
		closed bool
		slots  = make([]loadResult[T], len(adapters))
		g      errgroup.Group
	)
	for i, ex := range adapters {
		g.Go(func() error {
			start := time.Now()
			v, err := fn(cctx, ex)
			mu.Lock()
			defer mu.Unlock()
			if closed {
				return nil
			}
			slots[i] = loadResult[T]{val: v, err: err, done: true, elapsed: time.Since(start)}
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-cctx.Done():
	}

	mu.Lock()
	closed = true
	out := make([]loadResult[T], len(slots))
	copy(out, slots)
	mu.Unlock()
	return out
}
