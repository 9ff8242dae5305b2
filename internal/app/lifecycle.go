package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/pkg/logger"
)

// Start starts the background services of the selected roles: the River
// workers and the reconciliation tick.
func (a *Application) Start(ctx context.Context) error {
	if a.options.has(RoleWorker) && a.DB != nil && a.DB.RiverClient != nil {
		if err := a.DB.RiverClient.Start(ctx); err != nil {
			return fmt.Errorf("start river client: %w", err)
		}
		logger.Info("River client started, jobs will now be consumed")
	}
	if a.options.has(RoleScheduler) && a.reconcile != nil {
		if err := a.reconcile.Start(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Shutdown gracefully shuts down all application components.
func (a *Application) Shutdown() {
	shutdownCtx := context.Background()

	for _, mod := range a.Modules {
		if mod == nil {
			continue
		}
		if err := mod.Shutdown(shutdownCtx); err != nil {
			logger.Warn("module shutdown returned error",
				zap.String("module", mod.Name()),
				zap.Error(err),
			)
		}
	}

	if a.options.has(RoleWorker) && a.DB != nil && a.DB.RiverClient != nil {
		if err := a.DB.RiverClient.Stop(shutdownCtx); err != nil {
			logger.Error("failed to stop river client", zap.Error(err))
		}
		logger.Info("River client stopped")
	}

	if a.Pools != nil {
		a.Pools.Shutdown()
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
