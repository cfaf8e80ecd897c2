package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"indicator-enginev1/config"
	"indicator-enginev1/internal/engine"
	"indicator-enginev1/internal/logger"
)

func main() {
	cfg := config.Load()
	slogger := logger.Init("indicator-engine", logger.ParseLevel(cfg.LogLevel))

	profile, err := config.LoadProfile(cfg.ProfilePath)
	if err != nil {
		log.Fatalf("[engine] profile load failed: %v", err)
	}

	svc, err := engine.New(cfg, profile, slogger)
	if err != nil {
		log.Fatalf("[engine] init failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("[engine] fatal: %v", err)
	}
}
