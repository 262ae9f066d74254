package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/splax/livelog/internal/domain"
	"github.com/splax/livelog/internal/events"
	"github.com/splax/livelog/internal/repository"
)

const defaultRecentLimit = 100

// Broadcaster pushes accepted events to live subscribers.
type Broadcaster interface {
	Broadcast(event domain.ErrorEvent)
}

// Receipt describes the outcome of an accepted report.
type Receipt struct {
	Event domain.ErrorEvent
	// PersistErr is set when the archive append failed. The event was still
	// broadcast.
	PersistErr error
}

// Service accepts error reports and feeds them to the archive and the stream.
type Service struct {
	// mu keeps archive order, recent order and broadcast order identical.
	mu sync.Mutex

	archive   repository.ArchiveRepository
	hub       Broadcaster
	publisher events.Publisher
	recent    *recentList
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
}

// New constructs an ingest service. A nil publisher disables mirroring.
func New(archive repository.ArchiveRepository, hub Broadcaster, publisher events.Publisher, recentLimit int, logger *slog.Logger) *Service {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		archive:   archive,
		hub:       hub,
		publisher: publisher,
		recent:    newRecentList(recentLimit),
		logger:    logger.With("component", "ingest"),
		now:       time.Now,
		newID:     func() string { return uuid.NewString() },
	}
}

// Warm seeds the recent list with the tail of the archive.
func (s *Service) Warm(ctx context.Context) error {
	archived, err := s.archive.ListErrors(ctx)
	if err != nil {
		return fmt.Errorf("load archive: %w", err)
	}
	if over := len(archived) - s.recent.limit; over > 0 {
		archived = archived[over:]
	}
	s.recent.add(archived...)
	s.logger.Info("recent errors loaded", "count", len(archived))
	return nil
}

// Report stamps, stores and broadcasts a parsed report. Storage failures are
// reported on the receipt and never block delivery.
func (s *Service) Report(ctx context.Context, in Input, remoteAddr string) Receipt {
	s.mu.Lock()
	event := s.build(in, remoteAddr)
	receipt := Receipt{Event: event}
	if err := s.archive.AppendError(ctx, event); err != nil {
		receipt.PersistErr = &domain.PersistenceError{Op: "append error", Err: err}
		s.logger.Error("archive append failed", "event_id", event.ID, "error", err)
	}
	s.recent.add(event)
	s.hub.Broadcast(event)
	s.mu.Unlock()

	if err := s.publisher.PublishError(ctx, event); err != nil {
		s.logger.Warn("event mirror publish failed", "event_id", event.ID, "error", err)
	}
	s.logger.Debug("error reported", "event_id", event.ID, "type", event.Type, "remote_addr", event.RemoteAddress, "session", event.SessionToken)
	return receipt
}

// Recent returns up to limit of the newest events, oldest first. A
// non-positive limit returns the whole list.
func (s *Service) Recent(limit int) []domain.ErrorEvent {
	return s.recent.last(limit)
}

// RecentCount returns the size of the recent list.
func (s *Service) RecentCount() int {
	return s.recent.len()
}

// Archive returns every persisted event, oldest first.
func (s *Service) Archive(ctx context.Context) ([]domain.ErrorEvent, error) {
	archived, err := s.archive.ListErrors(ctx)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "list archive", Err: err}
	}
	if archived == nil {
		archived = []domain.ErrorEvent{}
	}
	return archived, nil
}

func (s *Service) build(in Input, remoteAddr string) domain.ErrorEvent {
	timestamp, ok := parseTimestamp(in.Timestamp)
	if !ok {
		if in.Timestamp != "" {
			s.logger.Debug("client timestamp ignored", "timestamp", in.Timestamp)
		}
		timestamp = s.now()
	}
	id := in.ID
	if id == "" {
		id = s.newID()
	}
	typ := in.Type
	if typ == "" {
		typ = domain.DefaultErrorType
	}
	addr := in.RemoteAddr
	if addr == "" {
		addr = remoteAddr
	}
	return domain.ErrorEvent{
		ID:            id,
		Timestamp:     timestamp.UTC(),
		Type:          typ,
		Message:       in.Message,
		Source:        in.Source,
		Line:          in.Line,
		Column:        in.Column,
		Stack:         in.Stack,
		URL:           in.URL,
		UserAgent:     in.UserAgent,
		RemoteAddress: addr,
		SessionToken:  in.SessionToken,
	}
}

// parseTimestamp accepts RFC 3339 text or Unix milliseconds.
func parseTimestamp(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t, true
	}
	if ms, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.UnixMilli(int64(ms)), true
	}
	return time.Time{}, false
}

// IsPersistence reports whether err is a storage failure.
func IsPersistence(err error) bool {
	var target *domain.PersistenceError
	return errors.As(err, &target)
}
