package modules

import (
	"context"
	"fmt"

	"github.com/riverqueue/river"

	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/api/handlers"
	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/reconcile"
	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/repository"
	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/usecase"
)

// ReconcileModule owns the reconciliation scheduler. The scheduler role
// starts its tick; the worker role runs the pass when periodic_update arrives.
type ReconcileModule struct {
	scheduler *reconcile.Scheduler
	started   bool
}

// NewReconcileModule creates the reconcile module.
func NewReconcileModule(infra *Infrastructure, svc *usecase.Service) *ReconcileModule {
	store := reconcileStore{Store: infra.Store, service: svc}
	return &ReconcileModule{
		scheduler: reconcile.New(store, infra.Enqueuer, reconcile.Config{
			Interval:  infra.Config.Scheduler.Interval,
			BatchSize: infra.Config.Scheduler.BatchSize,
		}),
	}
}

// RunOnce runs a single reconciliation pass.
func (m *ReconcileModule) RunOnce(ctx context.Context) error {
	_, err := m.scheduler.RunOnce(ctx)
	return err
}

// Start begins the periodic tick.
func (m *ReconcileModule) Start(ctx context.Context) error {
	if err := m.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start reconcile scheduler: %w", err)
	}
	m.started = true
	return nil
}

func (m *ReconcileModule) Name() string { return "reconcile" }

func (m *ReconcileModule) ContributeServerDeps(*handlers.ServerDeps) {}

func (m *ReconcileModule) RegisterWorkers(*river.Workers) {}

func (m *ReconcileModule) Shutdown(context.Context) error {
	if m.started {
		m.scheduler.Stop()
		m.started = false
	}
	return nil
}

// reconcileStore reads live instances straight from the repository and
// flags through the use case service, so flagging emits its events.
type reconcileStore struct {
	*repository.Store
	service *usecase.Service
}

func (s reconcileStore) FlagForDeletion(ctx context.Context, instanceID string) error {
	return s.service.FlagForDeletion(ctx, instanceID)
}
