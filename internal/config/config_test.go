package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"LISTEN_ADDR", "BACKEND_URL", "BACKEND_TIMEOUT_MS", "SNAPSHOT_STORE", "MOVE_LABELS", "AUTOPLAY_DELAY_MS", "BACKEND_API_KEY", "BACKEND_DETECT_RETRY", "BACKEND_MAX_CONNS"} {
		t.Setenv(k, "")
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":8080" || cfg.BackendTimeout != 15*time.Second || cfg.BackendRetry != 3 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.SnapshotStore != SnapshotMemory || cfg.CaptureInterval != 3*time.Second || cfg.AutoplayDelay != 2*time.Second {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.BackendDetectRetry != 2 || cfg.BackendMaxConns != 64 || cfg.BackendAPIKey != "" {
		t.Fatalf("unexpected backend defaults: %+v", cfg)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("LISTEN_ADDR", "127.0.0.1:9000")
	t.Setenv("BACKEND_URL", "http://vision:8000")
	t.Setenv("BACKEND_TIMEOUT_MS", "2500")
	t.Setenv("SESSION_TTL_SEC", "60")
	t.Setenv("SNAPSHOT_STORE", "Bolt")
	t.Setenv("MOVE_LABELS", "SAN")
	t.Setenv("CAPTURE_INTERVAL_MS", "1000")
	t.Setenv("BACKEND_API_KEY", "secret")
	t.Setenv("BACKEND_DETECT_RETRY", "1")
	t.Setenv("BACKEND_MAX_CONNS", "8")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != "127.0.0.1:9000" || cfg.BackendURL != "http://vision:8000" {
		t.Fatalf("unexpected addresses: %+v", cfg)
	}
	if cfg.BackendTimeout != 2500*time.Millisecond || cfg.SessionTTL != time.Minute || cfg.CaptureInterval != time.Second {
		t.Fatalf("unexpected durations: %+v", cfg)
	}
	if cfg.SnapshotStore != SnapshotBolt || cfg.MoveLabels != "san" {
		t.Fatalf("unexpected modes: %+v", cfg)
	}
	if cfg.BackendAPIKey != "secret" || cfg.BackendDetectRetry != 1 || cfg.BackendMaxConns != 8 {
		t.Fatalf("unexpected backend overrides: %+v", cfg)
	}
}

func TestLoadValidation(t *testing.T) {
	t.Setenv("BACKEND_TIMEOUT_MS", "soon")
	t.Setenv("SNAPSHOT_STORE", "postgres")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("MOVE_LABELS", "uci")
	t.Setenv("BACKEND_DETECT_RETRY", "0")

	_, err := Load()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"BACKEND_TIMEOUT_MS", "DATABASE_URL", "MOVE_LABELS", "BACKEND_DETECT_RETRY"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %s", err, want)
		}
	}
}
