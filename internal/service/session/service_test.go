package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/splax/livelog/internal/domain"
	"github.com/splax/livelog/internal/repository"
)

type stubSessionRepository struct {
	mu       sync.Mutex
	sessions map[string]domain.Session
	creates  int
}

func newStubRepo() *stubSessionRepository {
	return &stubSessionRepository{sessions: make(map[string]domain.Session)}
}

func (s *stubSessionRepository) CreateSession(ctx context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates++
	if _, ok := s.sessions[session.Token]; ok {
		return repository.ErrConflict
	}
	s.sessions[session.Token] = *session
	return nil
}

func (s *stubSessionRepository) GetSession(ctx context.Context, token string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[token]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &session, nil
}

func (s *stubSessionRepository) ListSavedSessions(ctx context.Context) ([]domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Session
	for _, session := range s.sessions {
		if session.IsSaved {
			out = append(out, session)
		}
	}
	return out, nil
}

func (s *stubSessionRepository) DeleteSession(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[token]; !ok {
		return repository.ErrNotFound
	}
	delete(s.sessions, token)
	return nil
}

func newTestService(repo *stubSessionRepository) *Service {
	return New(repo, "test-secret", time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestCreateValidatesName(t *testing.T) {
	svc := newTestService(newStubRepo())
	if _, err := svc.Create(context.Background(), CreateInput{Name: "  "}); !domain.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreateHashesPasswordAndGeneratesToken(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)
	session, err := svc.Create(context.Background(), CreateInput{Name: " Checkout ", Password: "hunter2", Save: true})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if session.Name != "Checkout" || len(session.Token) != tokenLength || !session.IsSaved {
		t.Fatalf("unexpected session: %+v", session)
	}
	if !session.Protected() || string(session.PasswordHash) == "hunter2" {
		t.Fatal("expected password to be hashed")
	}
}

func TestCreateRetriesTokenCollisions(t *testing.T) {
	repo := newStubRepo()
	repo.sessions["taken"] = domain.Session{Token: "taken"}
	svc := newTestService(repo)
	tokens := []string{"taken", "fresh"}
	svc.newToken = func() (string, error) {
		next := tokens[0]
		tokens = tokens[1:]
		return next, nil
	}
	session, err := svc.Create(context.Background(), CreateInput{Name: "retry"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if session.Token != "fresh" || repo.creates != 2 {
		t.Fatalf("expected retry onto fresh token, got %q after %d creates", session.Token, repo.creates)
	}
}

func TestJoinProtectedSession(t *testing.T) {
	svc := newTestService(newStubRepo())
	ctx := context.Background()
	session, err := svc.Create(ctx, CreateInput{Name: "secret", Password: "pw"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.Join(ctx, session.Token, "wrong"); !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("expected invalid password, got %v", err)
	}
	if err := svc.Authorize(ctx, session.Token, ""); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected access denied without token, got %v", err)
	}

	joined, err := svc.Join(ctx, session.Token, "pw")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if joined.Access == "" {
		t.Fatal("expected viewer token")
	}
	if err := svc.Authorize(ctx, session.Token, joined.Access); err != nil {
		t.Fatalf("authorize with viewer token: %v", err)
	}
	if err := svc.Authorize(ctx, session.Token, "garbage"); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected access denied for bad token, got %v", err)
	}
}

func TestAuthorizeOpenAndMissingSessions(t *testing.T) {
	svc := newTestService(newStubRepo())
	ctx := context.Background()
	open, err := svc.Create(ctx, CreateInput{Name: "open"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.Authorize(ctx, open.Token, ""); err != nil {
		t.Fatalf("open session should not need a token: %v", err)
	}
	if err := svc.Authorize(ctx, "missing", ""); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListAndDelete(t *testing.T) {
	svc := newTestService(newStubRepo())
	ctx := context.Background()
	saved, err := svc.Create(ctx, CreateInput{Name: "saved", Save: true})
	if err != nil {
		t.Fatalf("create saved: %v", err)
	}
	if _, err := svc.Create(ctx, CreateInput{Name: "adhoc"}); err != nil {
		t.Fatalf("create adhoc: %v", err)
	}
	list, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Token != saved.Token {
		t.Fatalf("expected only saved session, got %+v", list)
	}
	if err := svc.Delete(ctx, saved.Token); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := svc.Delete(ctx, saved.Token); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
