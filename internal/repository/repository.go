package repository

import (
	"context"

	"github.com/splax/livelog/internal/domain"
)

// ArchiveRepository persists every accepted error report.
type ArchiveRepository interface {
	AppendError(ctx context.Context, event domain.ErrorEvent) error
	ListErrors(ctx context.Context) ([]domain.ErrorEvent, error)
}

// SessionRepository stores viewing sessions.
type SessionRepository interface {
	CreateSession(ctx context.Context, session *domain.Session) error
	GetSession(ctx context.Context, token string) (*domain.Session, error)
	ListSavedSessions(ctx context.Context) ([]domain.Session, error)
	DeleteSession(ctx context.Context, token string) error
}

// Store bundles the repositories a backend provides along with its health probe.
type Store interface {
	ArchiveRepository
	SessionRepository
	Ping(ctx context.Context) error
	Close()
}
