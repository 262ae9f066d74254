package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/splax/livelog/internal/domain"
	"github.com/splax/livelog/internal/repository"
)

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ensure Repository satisfies interfaces.
var (
	_ repository.ArchiveRepository = (*Repository)(nil)
	_ repository.SessionRepository = (*Repository)(nil)
	_ repository.Store             = (*Repository)(nil)
)

const (
	errorColumns = `id, reported_at, type, message, source, line, col, stack, url, user_agent, remote_address, session_token`
	errorInsert  = `INSERT INTO error_events (` + errorColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	errorSelect = `SELECT ` + errorColumns + ` FROM error_events ORDER BY seq ASC`

	sessionColumns = `token, name, password_hash, created_at, is_saved`
)

// AppendError inserts an error event.
func (r *Repository) AppendError(ctx context.Context, event domain.ErrorEvent) error {
	_, err := r.pool.Exec(ctx, errorInsert,
		event.ID,
		event.Timestamp.UTC(),
		event.Type,
		event.Message,
		event.Source,
		event.Line,
		event.Column,
		event.Stack,
		event.URL,
		event.UserAgent,
		event.RemoteAddress,
		event.SessionToken,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("insert error event: %w", err)
	}
	return nil
}

// ListErrors returns the archive, oldest first.
func (r *Repository) ListErrors(ctx context.Context) ([]domain.ErrorEvent, error) {
	rows, err := r.pool.Query(ctx, errorSelect)
	if err != nil {
		return nil, fmt.Errorf("query error events: %w", err)
	}
	defer rows.Close()

	var events []domain.ErrorEvent
	for rows.Next() {
		var e domain.ErrorEvent
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Type, &e.Message, &e.Source, &e.Line, &e.Column, &e.Stack, &e.URL, &e.UserAgent, &e.RemoteAddress, &e.SessionToken); err != nil {
			return nil, err
		}
		e.Timestamp = e.Timestamp.UTC()
		events = append(events, e)
	}
	return events, rows.Err()
}

// CreateSession inserts a session.
func (r *Repository) CreateSession(ctx context.Context, session *domain.Session) error {
	const query = `INSERT INTO sessions (` + sessionColumns + `) VALUES ($1, $2, $3, $4, $5)`
	createdAt := session.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx, query, session.Token, session.Name, session.PasswordHash, createdAt, session.IsSaved)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSession fetches a session by token.
func (r *Repository) GetSession(ctx context.Context, token string) (*domain.Session, error) {
	const query = `SELECT ` + sessionColumns + ` FROM sessions WHERE token = $1`
	row := r.pool.QueryRow(ctx, query, token)
	var s domain.Session
	if err := row.Scan(&s.Token, &s.Name, &s.PasswordHash, &s.CreatedAt, &s.IsSaved); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	s.CreatedAt = s.CreatedAt.UTC()
	return &s, nil
}

// ListSavedSessions returns saved sessions ordered by creation time.
func (r *Repository) ListSavedSessions(ctx context.Context) ([]domain.Session, error) {
	const query = `SELECT ` + sessionColumns + ` FROM sessions WHERE is_saved ORDER BY created_at ASC, token ASC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		var s domain.Session
		if err := rows.Scan(&s.Token, &s.Name, &s.PasswordHash, &s.CreatedAt, &s.IsSaved); err != nil {
			return nil, err
		}
		s.CreatedAt = s.CreatedAt.UTC()
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// DeleteSession removes a session.
func (r *Repository) DeleteSession(ctx context.Context, token string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE token = $1`, token)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Ping checks database connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close releases the pool.
func (r *Repository) Close() {
	r.pool.Close()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
