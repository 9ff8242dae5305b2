package queue

import (
	"context"
	"fmt"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"go.uber.org/zap"

	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/jobs"
	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/pkg/logger"
)

// Inserter is the part of *river.Client the Enqueuer uses.
type Inserter interface {
	Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
}

// Enqueuer inserts jobs on the queue chosen by the Router. Inserts are
// fire-and-forget: nothing waits for the job to run.
type Enqueuer struct {
	router *Router
	client Inserter
}

// NewEnqueuer creates an Enqueuer.
func NewEnqueuer(router *Router, client Inserter) *Enqueuer {
	return &Enqueuer{router: router, client: client}
}

// Router returns the router the Enqueuer places jobs with.
func (e *Enqueuer) Router() *Router {
	return e.router
}

// EnqueueUpdate queues a driver update for the instance on its shard.
func (e *Enqueuer) EnqueueUpdate(ctx context.Context, instanceID string) error {
	return e.enqueue(ctx, KindUpdate, instanceID, jobs.UpdateArgs{InstanceID: instanceID})
}

// EnqueueUpdateConnectivity queues a connectivity refresh for the instance on its shard.
func (e *Enqueuer) EnqueueUpdateConnectivity(ctx context.Context, instanceID string) error {
	return e.enqueue(ctx, KindUpdateConnectivity, instanceID, jobs.UpdateConnectivityArgs{InstanceID: instanceID})
}

// EnqueuePeriodicUpdate queues a reconciliation pass on the system queue.
func (e *Enqueuer) EnqueuePeriodicUpdate(ctx context.Context) error {
	return e.enqueue(ctx, KindPeriodicUpdate, "", jobs.PeriodicUpdateArgs{})
}

// EnqueueHousekeeping queues driver housekeeping on the system queue.
func (e *Enqueuer) EnqueueHousekeeping(ctx context.Context) error {
	return e.enqueue(ctx, KindHousekeeping, "", jobs.HousekeepingArgs{})
}

// EnqueuePublishPlugins queues publication of driver configurations.
func (e *Enqueuer) EnqueuePublishPlugins(ctx context.Context) error {
	return e.enqueue(ctx, KindPublishPlugins, "", jobs.PublishPluginsArgs{})
}

func (e *Enqueuer) enqueue(ctx context.Context, kind TaskKind, instanceID string, args river.JobArgs) error {
	q, err := e.router.Route(kind, instanceID)
	if err != nil {
		return err
	}

	// Insert-time options win over the args' own InsertOpts field by field,
	// so only the queue is overridden here.
	res, err := e.client.Insert(ctx, args, &river.InsertOpts{Queue: q})
	if err != nil {
		return fmt.Errorf("enqueue %s on %s: %w", kind, q, err)
	}

	fields := []zap.Field{
		zap.String("kind", string(kind)),
		zap.String("queue", q),
	}
	if instanceID != "" {
		fields = append(fields, zap.String("instance_id", instanceID))
	}
	if res != nil && res.UniqueSkippedAsDuplicate {
		logger.Debug("Job already queued", fields...)
		return nil
	}
	logger.Debug("Job enqueued", fields...)
	return nil
}
