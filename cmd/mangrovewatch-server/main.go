package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx := context.Background()
	app, cleanup, err := BuildApp(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize app: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	cfg := app.Config

	slog.Info("starting mangrovewatch server",
		"environment", cfg.Environment,
		"profile", cfg.Profile,
		"address", cfg.Server.Address,
		"storage_adapter", cfg.Storage.Adapter,
		"dispatch_mode", cfg.Gamification.DispatchMode,
		"jobs", app.Scheduler.Jobs())

	app.Scheduler.Start()

	srv := app.Server
	serverErr := make(chan error, 1)
	go func() {
		slog.Info("server listening", "address", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	exitCode := 0
	select {
	case <-sigCtx.Done():
	case err := <-serverErr:
		slog.Error("failed to start server", "error", err)
		exitCode = 1
	}

	slog.Info("shutting down server", "timeout", cfg.Server.ShutdownTimeout)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("error during server shutdown", "error", err)
		exitCode = 1
	}
	if err := app.Scheduler.Shutdown(); err != nil {
		slog.Error("error stopping scheduler", "error", err)
	}
	if err := app.Exporter.Close(); err != nil {
		slog.Error("error flushing analytics", "error", err)
	}

	slog.Info("server stopped")
	if exitCode != 0 {
		cleanup()
		os.Exit(exitCode)
	}
}
