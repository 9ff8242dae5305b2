package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/pkg/logger"
)

// InstanceDispatcher is the part of the driver gateway the instance workers use.
type InstanceDispatcher interface {
	Update(ctx context.Context, instanceID string) error
	UpdateConnectivity(ctx context.Context, instanceID string) error
}

// UpdateWorker runs a driver update for one instance. It executes on a
// provisioning shard, so updates for the same instance never overlap.
type UpdateWorker struct {
	river.WorkerDefaults[UpdateArgs]
	gateway InstanceDispatcher
	timeout time.Duration
}

// NewUpdateWorker creates an UpdateWorker. A non-positive timeout keeps the
// river client's job timeout.
func NewUpdateWorker(gateway InstanceDispatcher, timeout time.Duration) *UpdateWorker {
	return &UpdateWorker{gateway: gateway, timeout: timeout}
}

func (w *UpdateWorker) Timeout(*river.Job[UpdateArgs]) time.Duration {
	return w.timeout
}

// Work calls the instance's driver. A failure is final for this job; the
// reconciliation loop enqueues the instance again on a later tick.
func (w *UpdateWorker) Work(ctx context.Context, job *river.Job[UpdateArgs]) error {
	if w == nil || w.gateway == nil {
		return fmt.Errorf("update worker is not initialized")
	}
	id := job.Args.InstanceID
	logger.Debug("Processing instance update",
		zap.String("instance_id", id),
		zap.String("queue", job.Queue),
	)
	if err := w.gateway.Update(ctx, id); err != nil {
		logger.Warn("Instance update failed",
			zap.String("instance_id", id),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// UpdateConnectivityWorker re-applies client access rules for one instance.
type UpdateConnectivityWorker struct {
	river.WorkerDefaults[UpdateConnectivityArgs]
	gateway InstanceDispatcher
	timeout time.Duration
}

func NewUpdateConnectivityWorker(gateway InstanceDispatcher, timeout time.Duration) *UpdateConnectivityWorker {
	return &UpdateConnectivityWorker{gateway: gateway, timeout: timeout}
}

func (w *UpdateConnectivityWorker) Timeout(*river.Job[UpdateConnectivityArgs]) time.Duration {
	return w.timeout
}

func (w *UpdateConnectivityWorker) Work(ctx context.Context, job *river.Job[UpdateConnectivityArgs]) error {
	if w == nil || w.gateway == nil {
		return fmt.Errorf("update connectivity worker is not initialized")
	}
	id := job.Args.InstanceID
	if err := w.gateway.UpdateConnectivity(ctx, id); err != nil {
		logger.Warn("Connectivity update failed",
			zap.String("instance_id", id),
			zap.Error(err),
		)
		return err
	}
	return nil
}
