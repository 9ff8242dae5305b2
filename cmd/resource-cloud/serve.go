package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/app"
	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/config"
	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/pkg/logger"
)

func apiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "api",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), app.Options{Roles: []app.Role{app.RoleAPI}})
		},
	}
}

func workerCmd() *cobra.Command {
	var queues []string
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Consume lifecycle tasks from the queues",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), app.Options{Roles: []app.Role{app.RoleWorker}, Queues: queues})
		},
	}
	cmd.Flags().StringSliceVarP(&queues, "queues", "Q", nil, "Queues to consume (default: all)")
	return cmd
}

func schedulerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scheduler",
		Short: "Run the periodic reconciliation tick",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), app.Options{Roles: []app.Role{app.RoleScheduler}})
		},
	}
}

func allCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "all",
		Short: "Run api, worker and scheduler in one process",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), app.Options{
				Roles: []app.Role{app.RoleAPI, app.RoleWorker, app.RoleScheduler},
			})
		},
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, nil
}

// serve runs the selected roles until SIGINT or SIGTERM.
func serve(parent context.Context, opts app.Options) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting resource-cloud",
		zap.Any("roles", opts.Roles),
		zap.String("log_level", cfg.Log.Level),
	)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.Bootstrap(ctx, cfg, opts)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer application.Shutdown()

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("start background services: %w", err)
	}

	if application.Router == nil {
		<-ctx.Done()
		logger.Info("Shutdown signal received")
		return nil
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      application.Router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	logger.Info("Server started", zap.String("addr", srv.Addr))

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	logger.Info("Shutting down server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info("Server stopped gracefully")
	return nil
}
