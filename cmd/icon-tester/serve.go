package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tendant/simple-icon-tester/internal/app"
	"github.com/tendant/simple-icon-tester/pkg/pipeline"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(cfgFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, *cfgFile)
		},
	}

	cmd.Flags().Int("port", 0, "Listen port (default 3000, or $PORT)")
	cmd.Flags().String("static-dir", "", "Directory served at / (default public)")
	cmd.Flags().String("ledger-dsn", "", "Postgres URL of the job ledger (disabled when empty)")
	cmd.Flags().Bool("metrics", true, "Serve Prometheus metrics on "+pipeline.RouteMetrics)
	return cmd
}

func runServe(cmd *cobra.Command, cfgFile string) error {
	cfg, logger, err := loadConfig(cmd, cfgFile)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Icon tester", "version", version)

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           a.Routes("server"),
		ReadHeaderTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("✓ Icon tester ready", "addr", addr)
		logger.Info("Available endpoints",
			"health", "GET "+pipeline.RouteHealth,
			"svg", "POST "+pipeline.RouteTestSVG,
			"visual", "POST "+pipeline.RouteTestVisual,
			"metrics", cfg.Metrics.Enabled)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server failed: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("Server stopped")
	return nil
}
