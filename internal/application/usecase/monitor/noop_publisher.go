package monitor

import (
	"context"

	"xtrader/internal/application/port"
)

type noopPublisher struct{}

func NewNoopPublisher() port.Publisher { return &noopPublisher{} }

func (n *noopPublisher) Publish(ctx context.Context, snap *port.Snapshot) error { return nil }
func (n *noopPublisher) Close() error                                           { return nil }
