package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"kinescope/internal/config"
	"kinescope/internal/daemon"
	"kinescope/internal/logging"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("ensure directories: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	d, err := daemon.New(cfg, daemon.DefaultSource(cfg), daemon.DefaultEncoder(cfg), logger)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		os.Exit(1)
	}

	if err := d.Start(ctx); err != nil {
		logger.Error("daemon start failed", logging.Error(err))
		d.Close() //nolint:errcheck
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("kinescoped shutting down")
	if err := d.Close(); err != nil {
		logger.Warn("shutdown incomplete", logging.Error(err))
	}
}
