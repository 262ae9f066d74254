package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/splax/livelog/internal/domain"
	"github.com/splax/livelog/internal/repository"
)

// Store keeps the error archive and saved sessions in JSON files. Every write
// rewrites the whole file through a temporary file and a rename.
type Store struct {
	archivePath  string
	sessionsPath string

	archiveMu sync.Mutex
	archive   []domain.ErrorEvent

	sessionsMu sync.RWMutex
	sessions   map[string]domain.Session
}

var (
	_ repository.ArchiveRepository = (*Store)(nil)
	_ repository.SessionRepository = (*Store)(nil)
	_ repository.Store             = (*Store)(nil)
)

type sessionRecord struct {
	Token        string    `json:"token"`
	Name         string    `json:"name"`
	PasswordHash []byte    `json:"passwordHash,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Open loads existing files (missing files start empty) and returns a store.
func Open(archivePath, sessionsPath string) (*Store, error) {
	s := &Store{
		archivePath:  archivePath,
		sessionsPath: sessionsPath,
		sessions:     make(map[string]domain.Session),
	}
	if err := readJSON(archivePath, &s.archive); err != nil {
		return nil, fmt.Errorf("load archive: %w", err)
	}
	var records []sessionRecord
	if err := readJSON(sessionsPath, &records); err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	for _, rec := range records {
		s.sessions[rec.Token] = domain.Session{
			Token:        rec.Token,
			Name:         rec.Name,
			PasswordHash: rec.PasswordHash,
			CreatedAt:    rec.CreatedAt,
			IsSaved:      true,
		}
	}
	return s, nil
}

// AppendError adds an event to the archive and rewrites the archive file.
func (s *Store) AppendError(ctx context.Context, event domain.ErrorEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.archiveMu.Lock()
	defer s.archiveMu.Unlock()
	next := append(s.archive, event)
	if err := writeJSON(s.archivePath, next); err != nil {
		return err
	}
	s.archive = next
	return nil
}

// ListErrors returns a copy of the archive, oldest first.
func (s *Store) ListErrors(ctx context.Context) ([]domain.ErrorEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.archiveMu.Lock()
	defer s.archiveMu.Unlock()
	out := make([]domain.ErrorEvent, len(s.archive))
	copy(out, s.archive)
	return out, nil
}

// CreateSession stores a session; only saved sessions reach disk.
func (s *Store) CreateSession(ctx context.Context, session *domain.Session) error {
	if session == nil || session.Token == "" {
		return fmt.Errorf("create session: empty token")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	if _, exists := s.sessions[session.Token]; exists {
		return repository.ErrConflict
	}
	s.sessions[session.Token] = *session
	if !session.IsSaved {
		return nil
	}
	if err := s.flushSessionsLocked(); err != nil {
		delete(s.sessions, session.Token)
		return err
	}
	return nil
}

// GetSession looks a session up by token.
func (s *Store) GetSession(ctx context.Context, token string) (*domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.sessionsMu.RLock()
	defer s.sessionsMu.RUnlock()
	session, ok := s.sessions[token]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &session, nil
}

// ListSavedSessions returns saved sessions ordered by creation time.
func (s *Store) ListSavedSessions(ctx context.Context) ([]domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.sessionsMu.RLock()
	defer s.sessionsMu.RUnlock()
	return s.savedLocked(), nil
}

// DeleteSession removes a session.
func (s *Store) DeleteSession(ctx context.Context, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	session, ok := s.sessions[token]
	if !ok {
		return repository.ErrNotFound
	}
	delete(s.sessions, token)
	if !session.IsSaved {
		return nil
	}
	if err := s.flushSessionsLocked(); err != nil {
		s.sessions[token] = session
		return err
	}
	return nil
}

// Ping checks that the archive directory is still usable.
func (s *Store) Ping(context.Context) error {
	dir := filepath.Dir(s.archivePath)
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("archive dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("archive dir: %s is not a directory", dir)
	}
	return nil
}

// Close is a no-op; every write is already on disk.
func (s *Store) Close() {}

func (s *Store) savedLocked() []domain.Session {
	saved := make([]domain.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		if session.IsSaved {
			saved = append(saved, session)
		}
	}
	sort.Slice(saved, func(i, j int) bool {
		if saved[i].CreatedAt.Equal(saved[j].CreatedAt) {
			return saved[i].Token < saved[j].Token
		}
		return saved[i].CreatedAt.Before(saved[j].CreatedAt)
	})
	return saved
}

func (s *Store) flushSessionsLocked() error {
	saved := s.savedLocked()
	records := make([]sessionRecord, 0, len(saved))
	for _, session := range saved {
		records = append(records, sessionRecord{
			Token:        session.Token,
			Name:         session.Name,
			PasswordHash: session.PasswordHash,
			CreatedAt:    session.CreatedAt,
		})
	}
	return writeJSON(s.sessionsPath, records)
}

func readJSON(path string, dst any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dst)
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
