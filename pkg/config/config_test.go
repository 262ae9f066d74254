package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig()
	if cfg.Addr != ":3000" {
		t.Fatalf("expected default addr :3000, got %q", cfg.Addr)
	}
	if cfg.PingInterval != 30*time.Second {
		t.Fatalf("expected 30s ping interval, got %s", cfg.PingInterval)
	}
	if cfg.MaxConnsPerIP != 3 || cfg.StreamRateLimit != 20 || cfg.StreamRateWindow != time.Minute {
		t.Fatalf("unexpected stream limits: %+v", cfg)
	}
	if cfg.Storage != StorageFile {
		t.Fatalf("expected file storage, got %q", cfg.Storage)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("LIVELOG_STORAGE", " Postgres ")
	t.Setenv("LIVELOG_PING_INTERVAL_SECONDS", "5")
	t.Setenv("LIVELOG_BACKUP_INTERVAL", "90s")
	t.Setenv("LIVELOG_STREAM_RATE_LIMIT", "not-a-number")

	cfg := LoadConfig()
	if cfg.Storage != StoragePostgres {
		t.Fatalf("expected postgres storage, got %q", cfg.Storage)
	}
	if cfg.PingInterval != 5*time.Second {
		t.Fatalf("expected 5s ping interval, got %s", cfg.PingInterval)
	}
	if cfg.BackupInterval != 90*time.Second {
		t.Fatalf("expected 90s backup interval, got %s", cfg.BackupInterval)
	}
	if cfg.StreamRateLimit != 20 {
		t.Fatalf("expected fallback on invalid int, got %d", cfg.StreamRateLimit)
	}
}

func TestLoadDotEnvKeepsExistingValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("LIVELOG_TEST_FROM_FILE=file\nLIVELOG_TEST_PRESET=file\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("LIVELOG_TEST_PRESET", "env")
	t.Cleanup(func() { os.Unsetenv("LIVELOG_TEST_FROM_FILE") })

	if err := LoadDotEnv(path, filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("load dotenv: %v", err)
	}
	if got := GetString("LIVELOG_TEST_FROM_FILE", ""); got != "file" {
		t.Fatalf("expected value from file, got %q", got)
	}
	if got := GetString("LIVELOG_TEST_PRESET", ""); got != "env" {
		t.Fatalf("expected environment to win, got %q", got)
	}
}
