package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/roomoperable/fleetpulse/internal/agent"
	"github.com/roomoperable/fleetpulse/internal/version"
	"go.uber.org/zap"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "actuate" {
		runActuate(os.Args[2:])
		return
	}

	configPath := flag.String("config", "", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Info())
		return
	}

	logger, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("FleetPulse agent starting", zap.String("version", version.Short()))

	cfg, err := agent.LoadConfig(*configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	a, err := agent.New(cfg, logger)
	if err != nil {
		logger.Fatal("failed to build agent", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- a.Run(ctx)
	}()

	logger.Info("FleetPulse agent ready",
		zap.String("server", cfg.ServerURL),
		zap.String("site", cfg.SiteName))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	cancel()

	select {
	case <-done:
	case <-time.After(cfg.ShutdownGrace):
		logger.Warn("shutdown grace elapsed, exiting")
	}

	logger.Info("FleetPulse agent stopped")
}
