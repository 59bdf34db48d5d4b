package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/notifyd/notifyd/internal/broadcast"
	"github.com/notifyd/notifyd/internal/config"
	"github.com/notifyd/notifyd/internal/logging"
	"github.com/notifyd/notifyd/internal/metrics"
	"github.com/notifyd/notifyd/internal/registry"
	"github.com/notifyd/notifyd/internal/scheduler"
	"github.com/notifyd/notifyd/internal/server"
	"github.com/notifyd/notifyd/internal/shutdown"
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func runGracefulShutdown(srv *server.Server, coordinator *shutdown.Coordinator) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		// Drain clients first so the HTTP listener stays up for
		// in-flight websocket close handshakes and health probes.
		coordinator.RequestShutdown()
		<-coordinator.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	// Initialize structured logging
	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port)

	reg := registry.New(cfg.MaxConnections, clock)
	engine := broadcast.NewEngine(reg, clock)
	sched := scheduler.New(engine, reg, clock, cfg.NotificationInterval)
	coordinator := shutdown.NewCoordinator(reg, engine, sched, clock, cfg.ShutdownTimeout, cfg.DrainPollInterval)
	aggregator := metrics.NewAggregator(reg, engine, sched, clock)

	srv := server.NewServer(cfg, clock, reg, sched, coordinator, aggregator)

	sched.Start()
	defer sched.Stop()

	done := runGracefulShutdown(srv, coordinator)

	slog.Info("Server starting", "port", cfg.Port)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
