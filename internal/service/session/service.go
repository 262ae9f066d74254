package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	nanoid "github.com/matoous/go-nanoid/v2"

	"github.com/splax/livelog/internal/domain"
	"github.com/splax/livelog/internal/repository"
	"github.com/splax/livelog/pkg/crypto"
	"github.com/splax/livelog/pkg/jwt"
)

const (
	tokenAlphabet    = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	tokenLength      = 12
	maxNameLength    = 120
	tokenAttempts    = 3
	defaultViewerTTL = 12 * time.Hour
)

var (
	// ErrInvalidPassword is returned when joining a protected session fails.
	ErrInvalidPassword = errors.New("invalid session password")
	// ErrAccessDenied is returned when a stream subscription lacks a valid viewer token.
	ErrAccessDenied = errors.New("session access denied")
)

// CreateInput describes a new session.
type CreateInput struct {
	Name     string `json:"name"`
	Password string `json:"password,omitempty"`
	Save     bool   `json:"save"`
}

// JoinResult carries the viewer token granted on a successful join.
type JoinResult struct {
	Session   domain.Session
	Access    string
	ExpiresAt time.Time
}

// Service manages viewing sessions.
type Service struct {
	repo     repository.SessionRepository
	secret   string
	ttl      time.Duration
	logger   *slog.Logger
	now      func() time.Time
	newToken func() (string, error)
}

// New constructs a Service. secret signs viewer tokens.
func New(repo repository.SessionRepository, secret string, ttl time.Duration, logger *slog.Logger) *Service {
	if ttl <= 0 {
		ttl = defaultViewerTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:   repo,
		secret: secret,
		ttl:    ttl,
		logger: logger.With("component", "sessions"),
		now:    time.Now,
		newToken: func() (string, error) {
			return nanoid.Generate(tokenAlphabet, tokenLength)
		},
	}
}

// Create registers a session, hashing the password when one is given.
func (s *Service) Create(ctx context.Context, in CreateInput) (*domain.Session, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, &domain.ValidationError{Field: "name", Reason: "is required"}
	}
	if len(name) > maxNameLength {
		return nil, &domain.ValidationError{Field: "name", Reason: fmt.Sprintf("must be at most %d characters", maxNameLength)}
	}
	session := &domain.Session{
		Name:      name,
		CreatedAt: s.now().UTC(),
		IsSaved:   in.Save,
	}
	if in.Password != "" {
		hash, err := crypto.HashPassword(in.Password)
		if err != nil {
			return nil, fmt.Errorf("hash session password: %w", err)
		}
		session.PasswordHash = hash
	}

	for attempt := 1; ; attempt++ {
		token, err := s.newToken()
		if err != nil {
			return nil, fmt.Errorf("generate session token: %w", err)
		}
		session.Token = token
		err = s.repo.CreateSession(ctx, session)
		if err == nil {
			break
		}
		if !errors.Is(err, repository.ErrConflict) || attempt == tokenAttempts {
			return nil, fmt.Errorf("create session: %w", err)
		}
	}
	s.logger.Info("session created", "token", session.Token, "protected", session.Protected(), "saved", session.IsSaved)
	return session, nil
}

// List returns saved sessions.
func (s *Service) List(ctx context.Context) ([]domain.Session, error) {
	sessions, err := s.repo.ListSavedSessions(ctx)
	if err != nil {
		return nil, err
	}
	if sessions == nil {
		sessions = []domain.Session{}
	}
	return sessions, nil
}

// Get returns the session with token.
func (s *Service) Get(ctx context.Context, token string) (*domain.Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, repository.ErrNotFound
	}
	return s.repo.GetSession(ctx, token)
}

// Join checks the password of a protected session and issues a viewer token.
func (s *Service) Join(ctx context.Context, token, password string) (JoinResult, error) {
	session, err := s.Get(ctx, token)
	if err != nil {
		return JoinResult{}, err
	}
	if session.Protected() {
		if err := crypto.ComparePassword(session.PasswordHash, password); err != nil {
			s.logger.Warn("session join rejected", "token", session.Token)
			return JoinResult{}, ErrInvalidPassword
		}
	}
	access, expires, err := jwt.IssueViewerToken(session.Token, s.secret, s.ttl)
	if err != nil {
		return JoinResult{}, fmt.Errorf("issue viewer token: %w", err)
	}
	return JoinResult{Session: *session, Access: access, ExpiresAt: expires}, nil
}

// Authorize decides whether a stream may be scoped to token. Unprotected
// sessions are open; protected ones need a viewer token from Join.
func (s *Service) Authorize(ctx context.Context, token, access string) error {
	session, err := s.Get(ctx, token)
	if err != nil {
		return err
	}
	if !session.Protected() {
		return nil
	}
	if access == "" {
		return ErrAccessDenied
	}
	if err := jwt.VerifyViewerToken(access, session.Token, s.secret); err != nil {
		s.logger.Warn("viewer token rejected", "token", session.Token, "error", err)
		return ErrAccessDenied
	}
	return nil
}

// Delete removes a session.
func (s *Service) Delete(ctx context.Context, token string) error {
	if err := s.repo.DeleteSession(ctx, strings.TrimSpace(token)); err != nil {
		return err
	}
	s.logger.Info("session deleted", "token", token)
	return nil
}
