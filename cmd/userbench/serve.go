package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"userbench/internal/app"
	"userbench/internal/handlers"
	"userbench/internal/logger"

	"github.com/spf13/cobra"
)

const shutdownTimeout = 30 * time.Second

func newServeCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the benchmark HTTP server.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, opts)
		},
	}
}

// serve runs until ctx is cancelled, then drains in-flight requests.
func serve(ctx context.Context, opts *options) error {
	log := logger.New("main").Function("serve")

	a, err := app.NewWithConfig(opts.config)
	if err != nil {
		return log.Err("failed to initialize app", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Er("failed to close app", err)
		}
	}()

	server, err := handlers.NewServer(a)
	if err != nil {
		return log.Err("failed to create server", err)
	}

	addr := fmt.Sprintf(":%d", opts.config.ServerPort)
	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting server", "addr", addr, "backend", opts.config.Backend, "version", opts.config.GeneralVersion)
		errCh <- server.Listen(addr)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return log.Err("server stopped", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("Shutting down server", "timeout", shutdownTimeout)
	if err := server.ShutdownWithTimeout(shutdownTimeout); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return log.Err("failed to shut down server", err)
	}
	return nil
}
