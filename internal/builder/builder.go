package builder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/park285/chess-vision/internal/backend"
	"github.com/park285/chess-vision/internal/board"
	"github.com/park285/chess-vision/internal/capture"
	"github.com/park285/chess-vision/internal/config"
	"github.com/park285/chess-vision/internal/msgcat"
	"github.com/park285/chess-vision/internal/obslog"
	"github.com/park285/chess-vision/internal/preview"
	"github.com/park285/chess-vision/internal/relay"
	"github.com/park285/chess-vision/internal/session"
	"github.com/park285/chess-vision/internal/snapshot"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Deps struct {
	Backend   *backend.Client
	Sessions  *session.Service
	Snapshots snapshot.Repository
	Source    capture.Source
	Redis     *redis.Client
	Relay     *relay.Server
}

// New wires every component from cfg. Call Close on the result.
func New(ctx context.Context, cfg *config.AppConfig) (*Deps, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	d := &Deps{}
	ok := false
	defer func() {
		if !ok {
			d.Close()
		}
	}()

	msgs, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}

	d.Backend = backend.NewClient(cfg.BackendURL,
		backend.WithTimeout(cfg.BackendTimeout),
		backend.WithRetry(cfg.BackendRetry),
		backend.WithDetectRetry(cfg.BackendDetectRetry),
		backend.WithMaxConnsPerHost(cfg.BackendMaxConns),
		backend.WithHeaderProvider(backend.APIKeyHeader(cfg.BackendAPIKey)),
	)

	var store session.Store
	if cfg.RedisURL != "" {
		d.Redis, err = session.DialRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("init redis: %w", err)
		}
		store = session.NewRedisStore(d.Redis, cfg.SessionTTL)
	} else {
		store = session.NewMemoryStore(cfg.SessionTTL)
	}

	d.Snapshots, err = openSnapshots(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if cfg.FrameSource != "" {
		d.Source, err = capture.NewSource(cfg.FrameSource)
		if err != nil {
			return nil, fmt.Errorf("frame source: %w", err)
		}
	}

	d.Sessions, err = session.NewService(store, d.Backend, session.Config{
		Labeler:         board.LabelerFor(cfg.MoveLabels),
		Source:          d.Source,
		Snapshots:       d.Snapshots,
		CaptureInterval: cfg.CaptureInterval,
		CaptureTimeout:  cfg.CaptureTimeout,
		AutoplayDelay:   cfg.AutoplayDelay,
		ShowSuggestions: cfg.ShowSuggestions,
	})
	if err != nil {
		return nil, err
	}

	d.Relay, err = relay.New(d.Backend, d.Sessions, d.Snapshots, preview.NewRenderer(), msgs, relay.Config{
		MaxUploadBytes: cfg.MaxUploadBytes,
		RequestTimeout: cfg.BackendTimeout*time.Duration(cfg.BackendRetry) + 5*time.Second,
	})
	if err != nil {
		return nil, err
	}

	obslog.L().Info("deps_ready",
		zap.String("backend", d.Backend.BaseURL()),
		zap.Bool("redis", d.Redis != nil),
		zap.String("snapshots", cfg.SnapshotStore),
		zap.Bool("frame_source", d.Source != nil),
		zap.String("move_labels", cfg.MoveLabels),
	)
	ok = true
	return d, nil
}

func openSnapshots(ctx context.Context, cfg *config.AppConfig) (snapshot.Repository, error) {
	switch cfg.SnapshotStore {
	case config.SnapshotPostgres:
		repo, err := snapshot.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres snapshots: %w", err)
		}
		return repo, nil
	case config.SnapshotBolt:
		repo, err := snapshot.OpenBolt(cfg.SnapshotPath)
		if err != nil {
			return nil, fmt.Errorf("init bolt snapshots: %w", err)
		}
		return repo, nil
	default:
		return snapshot.NewMemoryRepository(), nil
	}
}

// Close stops background work and releases stores. Safe on a partial Deps.
func (d *Deps) Close() error {
	var errs []error
	if d.Sessions != nil {
		d.Sessions.Close()
	}
	if d.Source != nil {
		errs = append(errs, d.Source.Close())
	}
	if d.Snapshots != nil {
		errs = append(errs, d.Snapshots.Close())
	}
	if d.Redis != nil {
		errs = append(errs, d.Redis.Close())
	}
	return errors.Join(errs...)
}
