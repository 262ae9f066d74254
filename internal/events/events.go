package events

import (
	"context"

	"github.com/splax/livelog/internal/domain"
)

// Publisher mirrors accepted error reports to downstream consumers.
type Publisher interface {
	PublishError(ctx context.Context, event domain.ErrorEvent) error
	Close() error
}

// NoopPublisher discards everything. Used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishError(context.Context, domain.ErrorEvent) error { return nil }

func (NoopPublisher) Close() error { return nil }
