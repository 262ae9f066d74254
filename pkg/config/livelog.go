package config

import (
	"strings"
	"time"
)

// Storage backends understood by LoadConfig.
const (
	StorageFile     = "file"
	StoragePostgres = "postgres"
)

// Config holds runtime configuration for the livelog server.
type Config struct {
	Environment string
	Addr        string
	LogLevel    string

	Storage       string
	ArchivePath   string
	SessionsPath  string
	DatabaseURL   string
	MigrationsDir string

	PingInterval      time.Duration
	MaxConnsPerIP     int
	StreamRateLimit   int
	StreamRateWindow  time.Duration
	IngestRateLimit   int
	OfflineBufferSize int
	RecentErrors      int
	ClientQueueSize   int

	RateLimitRedisAddr string
	RateLimitRedisPass string
	RateLimitRedisDB   int

	NATSURL     string
	NATSSubject string

	SessionSecret  string
	ViewerTokenTTL time.Duration

	BackupBucket   string
	BackupKey      string
	BackupRegion   string
	BackupEndpoint string
	BackupInterval time.Duration
}

// LoadConfig constructs a Config from environment variables.
func LoadConfig() Config {
	return Config{
		Environment:        GetString("LIVELOG_ENV", "development"),
		Addr:               GetString("LIVELOG_ADDR", ":3000"),
		LogLevel:           GetString("LIVELOG_LOG_LEVEL", "info"),
		Storage:            strings.ToLower(strings.TrimSpace(GetString("LIVELOG_STORAGE", StorageFile))),
		ArchivePath:        GetString("LIVELOG_ARCHIVE_PATH", "data/error-archive.json"),
		SessionsPath:       GetString("LIVELOG_SESSIONS_PATH", "data/sessions.json"),
		DatabaseURL:        GetString("DATABASE_URL", ""),
		MigrationsDir:      GetString("DB_MIGRATIONS_DIR", "db/migrations"),
		PingInterval:       time.Duration(GetInt("LIVELOG_PING_INTERVAL_SECONDS", 30)) * time.Second,
		MaxConnsPerIP:      GetInt("LIVELOG_MAX_CONNECTIONS_PER_IP", 3),
		StreamRateLimit:    GetInt("LIVELOG_STREAM_RATE_LIMIT", 20),
		StreamRateWindow:   time.Duration(GetInt("LIVELOG_STREAM_RATE_WINDOW_SECONDS", 60)) * time.Second,
		IngestRateLimit:    GetInt("LIVELOG_INGEST_RATE_LIMIT", 600),
		OfflineBufferSize:  GetInt("LIVELOG_OFFLINE_BUFFER", 500),
		RecentErrors:       GetInt("LIVELOG_RECENT_ERRORS", 100),
		ClientQueueSize:    GetInt("LIVELOG_CLIENT_QUEUE", 256),
		RateLimitRedisAddr: GetString("RATE_LIMIT_REDIS_ADDR", ""),
		RateLimitRedisPass: GetString("RATE_LIMIT_REDIS_PASSWORD", ""),
		RateLimitRedisDB:   GetInt("RATE_LIMIT_REDIS_DB", 0),
		NATSURL:            GetString("LIVELOG_NATS_URL", ""),
		NATSSubject:        GetString("LIVELOG_NATS_SUBJECT", "livelog.errors.reported"),
		SessionSecret:      GetString("LIVELOG_SESSION_SECRET", ""),
		ViewerTokenTTL:     time.Duration(GetInt("LIVELOG_VIEWER_TOKEN_TTL_MIN", 720)) * time.Minute,
		BackupBucket:       GetString("LIVELOG_BACKUP_S3_BUCKET", ""),
		BackupKey:          GetString("LIVELOG_BACKUP_S3_KEY", "livelog/error-archive.json"),
		BackupRegion:       GetString("LIVELOG_BACKUP_S3_REGION", "us-east-1"),
		BackupEndpoint:     GetString("LIVELOG_BACKUP_S3_ENDPOINT", ""),
		BackupInterval:     GetDuration("LIVELOG_BACKUP_INTERVAL", 10*time.Minute),
	}
}
