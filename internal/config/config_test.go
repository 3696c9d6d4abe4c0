package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv(FileEnv, "")
	t.Setenv("DB_DRIVER", "")
	t.Setenv("DB_DSN", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DB.Driver != "sqlite" || cfg.MaxConcurrency != 4 || cfg.Lock.TTL != 30*time.Second {
		t.Fatalf("defaults: got=%+v", cfg)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agg.yaml")
	raw := `
log_mode: production
db:
  driver: postgres
  dsn: postgres://app:pw@db:5432/agg
  max_open_conns: 8
redis:
  addr: redis:6379
lock:
  ttl: 10s
max_concurrency: 2
otel:
  enabled: true
  sample_ratio: 0.5
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv(FileEnv, path)
	t.Setenv("MAX_CONCURRENCY", "6")
	t.Setenv("LOCK_PREFIX", "test:")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogMode != "production" || cfg.DB.Driver != "postgres" || cfg.DB.MaxOpenConns != 8 {
		t.Fatalf("file values: got=%+v", cfg)
	}
	if cfg.Redis.Addr != "redis:6379" || cfg.Lock.TTL != 10*time.Second || !cfg.Otel.Enabled || cfg.Otel.SampleRatio != 0.5 {
		t.Fatalf("file values: got=%+v", cfg)
	}
	if cfg.MaxConcurrency != 6 || cfg.Lock.Prefix != "test:" {
		t.Fatalf("env overrides: got=%+v", cfg)
	}
	if cfg.Lock.Poll != 50*time.Millisecond {
		t.Fatalf("unset file keys keep defaults: got=%s", cfg.Lock.Poll)
	}
}

func TestLoadErrors(t *testing.T) {
	t.Setenv(FileEnv, filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Fatalf("missing file should fail")
	}

	t.Setenv(FileEnv, "")
	t.Setenv("DB_DRIVER", "mysql")
	if _, err := Load(); err == nil {
		t.Fatalf("unknown driver should fail")
	}

	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("MAX_CONCURRENCY", "0")
	if _, err := Load(); err == nil {
		t.Fatalf("zero concurrency should fail")
	}
}
