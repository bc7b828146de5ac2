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

	"github.com/OldStager01/cloud-vm-monitor/api"
	"github.com/OldStager01/cloud-vm-monitor/internal/logger"
	"github.com/OldStager01/cloud-vm-monitor/internal/metrics"
	"github.com/OldStager01/cloud-vm-monitor/pkg/database"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and the HTTP API until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply database migrations before starting")
	return cmd
}

func runServe(parent context.Context, opts *rootOptions, migrate bool) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	logger.Infof("Starting %s in %s mode", cfg.App.Name, cfg.App.Mode)

	ctx, stop := signal.NotifyContext(contextOrBackground(parent), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := buildRuntime(ctx, cfg, migrate)
	if err != nil {
		return err
	}
	defer rt.Close()

	orch, err := rt.orchestrator()
	if err != nil {
		return err
	}
	if err := orch.Start(true); err != nil {
		return fmt.Errorf("failed to start orchestrator: %w", err)
	}
	defer orch.Stop()

	errChan := make(chan error, 1)
	var (
		server     *api.Server
		metricsSrv *http.Server
	)
	if cfg.API.Enabled {
		server = api.NewServer(cfg, rt.dependencies(orch))
		go func() {
			if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- err
			}
		}()
	} else if cfg.Prometheus.Enabled {
		metricsSrv = metrics.StartServer(cfg.Prometheus.Port, cfg.Prometheus.Path)
	}

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	}

	timeout := cfg.App.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warnf("Metrics server shutdown error: %v", err)
		}
	}

	logger.Info("Server stopped gracefully")
	return nil
}

func runMigrations(ctx context.Context, db *database.DB, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	logger.Info("Running database migrations")
	if err := database.NewMigrator(db).Run(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("Migrations completed successfully")
	return nil
}

func requireSchema(ctx context.Context, db *database.DB) error {
	ok, err := db.TableExists(ctx, "schema_migrations")
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("database schema is missing: run `vmmonitor migrate` or start with --migrate")
	}
	return nil
}

func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
