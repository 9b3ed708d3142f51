package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type AppConfig struct {
	ListenAddr string

	BackendURL         string
	BackendAPIKey      string
	BackendTimeout     time.Duration
	BackendRetry       int
	BackendDetectRetry int
	BackendMaxConns    int

	RedisURL   string
	SessionTTL time.Duration

	SnapshotStore string
	DatabaseURL   string
	SnapshotPath  string

	FrameSource     string
	CaptureInterval time.Duration
	CaptureTimeout  time.Duration

	AutoplayDelay   time.Duration
	MoveLabels      string
	ShowSuggestions bool

	MessagesDir    string
	MaxUploadBytes int
}

const (
	SnapshotMemory   = "memory"
	SnapshotBolt     = "bolt"
	SnapshotPostgres = "postgres"
)

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr:         ":8080",
		BackendTimeout:     15 * time.Second,
		BackendRetry:       3,
		BackendDetectRetry: 2,
		BackendMaxConns:    64,
		SessionTTL:         24 * time.Hour,
		SnapshotStore:      SnapshotMemory,
		SnapshotPath:       "data/snapshots.db",
		CaptureInterval:    3 * time.Second,
		CaptureTimeout:     10 * time.Second,
		AutoplayDelay:      2 * time.Second,
		MoveLabels:         "placeholder",
		MaxUploadBytes:     10 << 20,
	}

	if v := env("LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	cfg.BackendURL = env("BACKEND_URL")
	cfg.BackendAPIKey = env("BACKEND_API_KEY")
	cfg.RedisURL = env("REDIS_URL")
	cfg.DatabaseURL = env("DATABASE_URL")
	cfg.FrameSource = env("FRAME_SOURCE")
	cfg.MessagesDir = env("MESSAGES_DIR")

	var errs []error
	millis := func(key string, dst *time.Duration) {
		if v := env(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				errs = append(errs, fmt.Errorf("%s must be a positive integer, got %q", key, v))
				return
			}
			*dst = time.Duration(n) * time.Millisecond
		}
	}
	millis("BACKEND_TIMEOUT_MS", &cfg.BackendTimeout)
	millis("CAPTURE_INTERVAL_MS", &cfg.CaptureInterval)
	millis("CAPTURE_TIMEOUT_MS", &cfg.CaptureTimeout)
	millis("AUTOPLAY_DELAY_MS", &cfg.AutoplayDelay)

	positive := func(key string, dst *int) {
		if v := env(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				*dst = n
			} else {
				errs = append(errs, fmt.Errorf("%s must be a positive integer, got %q", key, v))
			}
		}
	}
	positive("BACKEND_RETRY", &cfg.BackendRetry)
	positive("BACKEND_DETECT_RETRY", &cfg.BackendDetectRetry)
	positive("BACKEND_MAX_CONNS", &cfg.BackendMaxConns)
	positive("MAX_UPLOAD_BYTES", &cfg.MaxUploadBytes)
	if v := env("SESSION_TTL_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SessionTTL = time.Duration(n) * time.Second
		} else {
			errs = append(errs, fmt.Errorf("SESSION_TTL_SEC must be a positive integer, got %q", v))
		}
	}
	if v := env("SHOW_SUGGESTIONS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			cfg.ShowSuggestions = b
		}
	}

	if v := strings.ToLower(env("MOVE_LABELS")); v != "" {
		switch v {
		case "placeholder", "san":
			cfg.MoveLabels = v
		default:
			errs = append(errs, fmt.Errorf("MOVE_LABELS must be placeholder or san, got %q", v))
		}
	}

	if v := strings.ToLower(env("SNAPSHOT_STORE")); v != "" {
		cfg.SnapshotStore = v
	}
	if v := env("SNAPSHOT_PATH"); v != "" {
		cfg.SnapshotPath = v
	}
	switch cfg.SnapshotStore {
	case SnapshotMemory, SnapshotBolt:
	case SnapshotPostgres:
		if cfg.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required when SNAPSHOT_STORE=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("SNAPSHOT_STORE must be memory, bolt or postgres, got %q", cfg.SnapshotStore))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}
