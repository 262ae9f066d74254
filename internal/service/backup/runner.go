package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/splax/livelog/internal/domain"
)

// Destination stores an archive snapshot.
type Destination interface {
	Write(ctx context.Context, data []byte) error
}

// ArchiveSource lists the archive to snapshot.
type ArchiveSource interface {
	ListErrors(ctx context.Context) ([]domain.ErrorEvent, error)
}

// Runner periodically uploads the archive when it has grown.
type Runner struct {
	source   ArchiveSource
	dest     Destination
	interval time.Duration
	logger   *slog.Logger

	lastCount int
}

// NewRunner constructs a Runner.
func NewRunner(source ArchiveSource, dest Destination, interval time.Duration, logger *slog.Logger) *Runner {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{source: source, dest: dest, interval: interval, logger: logger.With("component", "backup"), lastCount: -1}
}

// Run snapshots on every tick until ctx is done, then takes a final snapshot.
func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if _, err := r.Snapshot(flushCtx); err != nil {
				r.logger.Error("final archive backup failed", "error", err)
			}
			cancel()
			return
		case <-ticker.C:
			if _, err := r.Snapshot(ctx); err != nil {
				r.logger.Error("archive backup failed", "error", err)
			}
		}
	}
}

// Snapshot uploads the archive if it changed since the last upload. It
// reports whether an upload happened.
func (r *Runner) Snapshot(ctx context.Context) (bool, error) {
	events, err := r.source.ListErrors(ctx)
	if err != nil {
		return false, fmt.Errorf("list archive: %w", err)
	}
	if len(events) == r.lastCount {
		return false, nil
	}
	if events == nil {
		events = []domain.ErrorEvent{}
	}
	data, err := json.Marshal(events)
	if err != nil {
		return false, fmt.Errorf("encode archive: %w", err)
	}
	if err := r.dest.Write(ctx, data); err != nil {
		return false, err
	}
	r.lastCount = len(events)
	r.logger.Info("archive backed up", "events", len(events), "bytes", len(data))
	return true, nil
}
