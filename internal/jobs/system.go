package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/pkg/logger"
)

// DriverMaintainer is the part of the driver gateway the system workers use.
type DriverMaintainer interface {
	Housekeep(ctx context.Context) error
	PublishConfigurations(ctx context.Context) (int, error)
}

// ReconcileFunc runs one reconciliation pass.
type ReconcileFunc func(ctx context.Context) error

// PeriodicUpdateWorker runs a reconciliation pass on behalf of a scheduler
// that only enqueues.
type PeriodicUpdateWorker struct {
	river.WorkerDefaults[PeriodicUpdateArgs]
	reconcile ReconcileFunc
}

func NewPeriodicUpdateWorker(reconcile ReconcileFunc) *PeriodicUpdateWorker {
	return &PeriodicUpdateWorker{reconcile: reconcile}
}

func (w *PeriodicUpdateWorker) Work(ctx context.Context, _ *river.Job[PeriodicUpdateArgs]) error {
	if w == nil || w.reconcile == nil {
		return fmt.Errorf("periodic update worker is not initialized")
	}
	return w.reconcile(ctx)
}

// HousekeepingWorker runs every driver's housekeeping.
type HousekeepingWorker struct {
	river.WorkerDefaults[HousekeepingArgs]
	gateway DriverMaintainer
}

func NewHousekeepingWorker(gateway DriverMaintainer) *HousekeepingWorker {
	return &HousekeepingWorker{gateway: gateway}
}

// Work returns the joined driver failures; drivers that succeeded have
// already done their part.
func (w *HousekeepingWorker) Work(ctx context.Context, _ *river.Job[HousekeepingArgs]) error {
	if w == nil || w.gateway == nil {
		return fmt.Errorf("housekeeping worker is not initialized")
	}
	return w.gateway.Housekeep(ctx)
}

// PublishPluginsWorker stores every driver's current configuration schema.
type PublishPluginsWorker struct {
	river.WorkerDefaults[PublishPluginsArgs]
	gateway DriverMaintainer
}

func NewPublishPluginsWorker(gateway DriverMaintainer) *PublishPluginsWorker {
	return &PublishPluginsWorker{gateway: gateway}
}

func (w *PublishPluginsWorker) Work(ctx context.Context, _ *river.Job[PublishPluginsArgs]) error {
	if w == nil || w.gateway == nil {
		return fmt.Errorf("publish plugins worker is not initialized")
	}
	n, err := w.gateway.PublishConfigurations(ctx)
	logger.Info("Driver configurations published", zap.Int("published", n))
	return err
}

// Gateway is everything the workers need from the driver gateway.
type Gateway interface {
	InstanceDispatcher
	DriverMaintainer
}

// Register adds every worker of this package to workers.
func Register(workers *river.Workers, gateway Gateway, reconcile ReconcileFunc, timeout time.Duration) {
	river.AddWorker(workers, NewUpdateWorker(gateway, timeout))
	river.AddWorker(workers, NewUpdateConnectivityWorker(gateway, timeout))
	river.AddWorker(workers, NewPeriodicUpdateWorker(reconcile))
	river.AddWorker(workers, NewHousekeepingWorker(gateway))
	river.AddWorker(workers, NewPublishPluginsWorker(gateway))
}
