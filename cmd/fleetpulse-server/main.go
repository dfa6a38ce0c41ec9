package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/roomoperable/fleetpulse/internal/central"
	"github.com/roomoperable/fleetpulse/internal/event"
	"github.com/roomoperable/fleetpulse/internal/server"
	"github.com/roomoperable/fleetpulse/internal/store"
	"github.com/roomoperable/fleetpulse/internal/version"
	"go.uber.org/zap"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "backup":
			runBackup(os.Args[2:])
			return
		case "restore":
			runRestore(os.Args[2:])
			return
		}
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

	logger.Info("FleetPulse registry starting", zap.String("version", version.Short()))

	cfg, err := server.LoadConfig(*configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	sq, err := store.New(cfg.DBPath)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer sq.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := central.NewStore(sq)
	if err := st.Migrate(ctx); err != nil {
		logger.Fatal("failed to migrate store", zap.Error(err))
	}

	bus := event.NewBus(logger)
	lifecycle := central.NewLifecycle(st, bus, logger)
	metrics := central.NewMetrics(prometheus.DefaultRegisterer)
	service := central.NewService(st, lifecycle, bus, metrics, logger)

	srv := server.New(cfg.ListenAddr, logger)
	service.RegisterRoutes(srv.Mux())
	srv.Mux().Handle("GET /metrics", promhttp.Handler())

	purger := central.NewPurger(st, cfg.PurgeEvery, logger)
	go purger.Run(ctx)

	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	logger.Info("FleetPulse registry ready", zap.String("addr", cfg.ListenAddr))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}

	logger.Info("FleetPulse registry stopped")
}
