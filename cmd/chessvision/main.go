package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/park285/chess-vision/internal/builder"
	appcfg "github.com/park285/chess-vision/internal/config"
	"github.com/park285/chess-vision/internal/obslog"
	"go.uber.org/zap"
)

func main() {
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.L()
	defer func() { _ = logger.Sync() }()

	cfg, err := appcfg.Load()
	if err != nil {
		logger.Fatal("config_error", zap.Error(err))
	}

	ictx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	deps, err := builder.New(ictx, cfg)
	cancel()
	if err != nil {
		logger.Fatal("init_error", zap.Error(err))
	}

	errCh := make(chan error, 1)
	go func() { errCh <- deps.Relay.ListenAndServe(cfg.ListenAddr) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutdown_signal", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			logger.Error("relay_stopped", zap.Error(err))
		}
	}

	sctx, scancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer scancel()
	if err := deps.Relay.Shutdown(sctx); err != nil {
		logger.Warn("relay_shutdown_error", zap.Error(err))
	}
	if err := deps.Close(); err != nil {
		logger.Warn("deps_close_error", zap.Error(err))
	}
	logger.Info("stopped")
}
