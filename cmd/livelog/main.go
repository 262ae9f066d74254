package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/splax/livelog/internal/app/migrate"
	"github.com/splax/livelog/internal/events"
	httpx "github.com/splax/livelog/internal/http"
	"github.com/splax/livelog/internal/repository"
	"github.com/splax/livelog/internal/repository/file"
	"github.com/splax/livelog/internal/repository/postgres"
	"github.com/splax/livelog/internal/service/backup"
	"github.com/splax/livelog/internal/service/ingest"
	"github.com/splax/livelog/internal/service/session"
	"github.com/splax/livelog/internal/stream"
	"github.com/splax/livelog/pkg/config"
	"github.com/splax/livelog/pkg/logger"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}
	cfg := config.LoadConfig()
	log := logger.New("livelog", logger.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open storage", "storage", cfg.Storage, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	limiter := httpx.NewMemoryRateLimiter()
	if addr := strings.TrimSpace(cfg.RateLimitRedisAddr); addr != "" {
		redisLimiter, err := httpx.NewRedisRateLimiter(addr, cfg.RateLimitRedisPass, cfg.RateLimitRedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter.Close()
			limiter = redisLimiter
		}
	}

	var publisher events.Publisher = events.NoopPublisher{}
	if url := strings.TrimSpace(cfg.NATSURL); url != "" {
		natsPublisher, err := events.NewNATSPublisher(url, cfg.NATSSubject, log)
		if err != nil {
			log.Warn("nats publisher unavailable", "error", err)
		} else {
			publisher = natsPublisher
		}
	}
	defer publisher.Close()

	hub := stream.NewHub(stream.NewRegistry(), stream.NewOfflineBuffer(cfg.OfflineBufferSize), log, stream.Options{
		PingInterval:  cfg.PingInterval,
		MaxPerAddress: cfg.MaxConnsPerIP,
		QueueSize:     cfg.ClientQueueSize,
	})
	defer hub.Close()

	ingestSvc := ingest.New(store, hub, publisher, cfg.RecentErrors, log)
	if err := ingestSvc.Warm(ctx); err != nil {
		log.Warn("failed to warm recent errors", "error", err)
	}

	secret := cfg.SessionSecret
	if secret == "" {
		secret, err = randomSecret()
		if err != nil {
			log.Error("failed to generate session secret", "error", err)
			os.Exit(1)
		}
		log.Warn("LIVELOG_SESSION_SECRET not set; viewer tokens will not survive a restart")
	}
	sessionSvc := session.New(store, secret, cfg.ViewerTokenTTL, log)

	backupDone := make(chan struct{})
	if bucket := strings.TrimSpace(cfg.BackupBucket); bucket != "" {
		dest, err := backup.NewS3Destination(ctx, bucket, cfg.BackupKey, cfg.BackupRegion, cfg.BackupEndpoint)
		if err != nil {
			log.Error("failed to configure archive backup", "error", err)
			os.Exit(1)
		}
		runner := backup.NewRunner(store, dest, cfg.BackupInterval, log)
		log.Info("archive backup enabled", "destination", dest.String(), "interval", cfg.BackupInterval)
		go func() {
			defer close(backupDone)
			runner.Run(ctx)
		}()
	} else {
		close(backupDone)
	}

	router := httpx.NewRouter(log, hub, ingestSvc, sessionSvc, limiter, httpx.Options{
		StreamRateLimit:  cfg.StreamRateLimit,
		StreamRateWindow: cfg.StreamRateWindow,
		IngestRateLimit:  cfg.IngestRateLimit,
		StorageName:      cfg.Storage,
		StorageHealth:    store.Ping,
	})
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("livelog server starting", "addr", cfg.Addr, "storage", cfg.Storage, "env", cfg.Environment)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		// Streams never finish on their own; closing the hub releases them
		// so Shutdown can drain the remaining requests.
		hub.Close()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		<-backupDone
		log.Info("livelog server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}

func openStore(ctx context.Context, cfg config.Config, log *slog.Logger) (repository.Store, error) {
	switch cfg.Storage {
	case config.StorageFile, "":
		return file.Open(cfg.ArchivePath, cfg.SessionsPath)
	case config.StoragePostgres:
		runner, err := migrate.New(ctx, cfg.DatabaseURL, cfg.MigrationsDir, log)
		if err != nil {
			return nil, fmt.Errorf("configure migrations: %w", err)
		}
		defer runner.Close()
		if err := runner.Ensure(ctx); err != nil {
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}
		return postgres.New(pool), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage)
	}
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
