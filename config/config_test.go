package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Port != "8000" {
		t.Errorf("Port = %q, want 8000", cfg.Port)
	}
	if cfg.StoreDriver != DriverSQLite {
		t.Errorf("StoreDriver = %q, want sqlite", cfg.StoreDriver)
	}
	if cfg.PollInterval() != time.Second {
		t.Errorf("PollInterval = %v, want 1s", cfg.PollInterval())
	}
	if cfg.DispatchConcurrency != 1 {
		t.Errorf("DispatchConcurrency = %d, want 1", cfg.DispatchConcurrency)
	}
	if cfg.RetryBackoff() != 0 {
		t.Errorf("RetryBackoff = %v, want 0", cfg.RetryBackoff())
	}
	if !cfg.SchedulerEnabled {
		t.Error("SchedulerEnabled = false, want true")
	}
}

func TestLoad_PostgresRequiresDatabaseURL(t *testing.T) {
	t.Setenv("STORE_DRIVER", "postgres")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when DATABASE_URL is missing for postgres")
	}

	t.Setenv("DATABASE_URL", "postgres://localhost/tasks")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StoreDriver != DriverPostgres {
		t.Errorf("StoreDriver = %q, want postgres", cfg.StoreDriver)
	}
}

func TestLoad_RejectsOutOfRange(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"POLL_INTERVAL_SEC", "0"},
		{"DISPATCH_TIMEOUT_SEC", "301"},
		{"DISPATCH_CONCURRENCY", "0"},
		{"RETRY_BACKOFF_SEC", "-1"},
		{"STORE_DRIVER", "mysql"},
		{"ENV", "dev"},
		{"LOG_LEVEL", "trace"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("%s=%s: expected error", tt.key, tt.value)
			}
		})
	}
}

func TestSlogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for in, want := range tests {
		cfg := &Config{LogLevel: in}
		if got := cfg.SlogLevel(); got != want {
			t.Errorf("SlogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
