package composite

import (
	"context"
	"errors"

	"xtrader/internal/application/port"
)

type Repo struct {
	pubs []port.Publisher
}

func New(pubs ...port.Publisher) *Repo {
	// nil publishers are allowed; filter in constructor for safety
	out := make([]port.Publisher, 0, len(pubs))
	for _, p := range pubs {
		if p != nil {
			out = append(out, p)
		}
	}
	return &Repo{pubs: out}
}

// Len 有效发布者数量
func (r *Repo) Len() int { return len(r.pubs) }

// Publish sends snap to every publisher; one failing does not stop the rest.
func (r *Repo) Publish(ctx context.Context, snap *port.Snapshot) error {
	var firstErr error
	for _, p := range r.pubs {
		if err := p.Publish(ctx, snap); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Repo) Close() error {
	var errs []error
	for _, p := range r.pubs {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ port.Publisher = (*Repo)(nil)
