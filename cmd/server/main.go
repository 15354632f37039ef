package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/stmtnorm/internal/app"
	"github.com/JonMunkholm/stmtnorm/internal/config"
	"github.com/JonMunkholm/stmtnorm/internal/logging"
	"github.com/JonMunkholm/stmtnorm/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded", "config", cfg.String())

	ctx := context.Background()
	a, err := app.New(ctx, cfg, slog.Default())
	if err != nil {
		slog.Error("failed to start normalizer", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	server := web.NewServer(cfg, a.Service, a.Limiter, slog.Default())

	// Background interval trigger
	jobCtx, cancelJobs := context.WithCancel(ctx)
	defer cancelJobs()
	if cfg.Trigger.Interval > 0 {
		go a.Service.StartScheduler(jobCtx, cfg.Trigger.Interval, cfg.Trigger.RunTimeout, a.Limiter)
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}

		// Let a running batch finish its files before the ledger closes.
		if st := a.Limiter.Status(); st.Active > 0 {
			slog.Info("waiting for runs to complete", "active", st.Active)
			if err := a.Limiter.WaitForDrain(shutdownCtx); err != nil {
				slog.Warn("runs did not complete in time", "error", err)
			}
		}
	}()

	if err := server.Start(); err != nil {
		slog.Error("server stopped", "error", err)
		a.Close()
		os.Exit(1)
	}

	// Start returns as soon as Shutdown begins; wait for in-flight runs.
	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	_ = a.Limiter.WaitForDrain(drainCtx)
	slog.Info("server stopped")
}
