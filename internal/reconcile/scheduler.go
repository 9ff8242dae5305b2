// Package reconcile drives every live instance towards its desired state.
//
// The scheduler process only ticks: every Interval it enqueues a
// periodic_update task on the system queue, and a worker runs the pass.
// A pass looks at all non-deleted instances once. Running instances past
// their maximum lifetime are flagged for deletion; instances in a transient
// state are handed to their driver again. At most BatchSize instances of each
// kind are acted on per pass, chosen uniformly at random, so under sustained
// overload every candidate is still picked eventually.
package reconcile

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/blueprint"
	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/domain"
	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/pkg/logger"
)

// DefaultBatchSize caps the instances acted on per kind and tick.
const DefaultBatchSize = 10

// Store is the instance access the scheduler needs.
type Store interface {
	// ListLiveInstances returns every instance not in state deleted.
	ListLiveInstances(ctx context.Context) ([]*domain.Instance, error)
	// FlagForDeletion sets to_be_deleted and the deprovisioning timestamp.
	FlagForDeletion(ctx context.Context, instanceID string) error
}

// Enqueuer places work on the queues.
type Enqueuer interface {
	EnqueueUpdate(ctx context.Context, instanceID string) error
	EnqueuePeriodicUpdate(ctx context.Context) error
	EnqueueHousekeeping(ctx context.Context) error
	EnqueuePublishPlugins(ctx context.Context) error
}

// Config controls the tick.
type Config struct {
	Interval  time.Duration
	BatchSize int
}

// Result summarises one pass.
type Result struct {
	UpdateCandidates      int
	DeprovisionCandidates int
	Updated               []string
	Deprovisioned         []string
}

// Scheduler runs reconciliation passes, either on demand or on a gocron tick.
type Scheduler struct {
	store    Store
	enqueuer Enqueuer
	cfg      Config
	now      func() time.Time

	mu   sync.Mutex // guards rng
	rng  *rand.Rand
	cron *gocron.Scheduler
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithRand sets the sampling source.
func WithRand(r *rand.Rand) Option {
	return func(s *Scheduler) { s.rng = r }
}

// WithClock sets the clock lifetimes are measured against.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// New creates a Scheduler. Zero config values fall back to one minute and
// DefaultBatchSize.
func New(store Store, enqueuer Enqueuer, cfg Config, opts ...Option) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	s := &Scheduler{
		store:    store,
		enqueuer: enqueuer,
		cfg:      cfg,
		now:      time.Now,
		rng:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunOnce performs one reconciliation pass. Failures for single instances are
// logged and left for the next pass; only a failed listing is returned.
func (s *Scheduler) RunOnce(ctx context.Context) (Result, error) {
	start := time.Now()
	defer func() { passDuration.Observe(time.Since(start).Seconds()) }()

	instances, err := s.store.ListLiveInstances(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list live instances: %w", err)
	}

	now := s.now()
	var deprovision, update []*domain.Instance
	for _, inst := range instances {
		switch inst.EffectiveState() {
		case domain.StateDeleted, domain.StateFailed:
			// left alone until an admin or the owner acts
		case domain.StateRunning:
			left, err := blueprint.LifetimeLeft(inst.ProvisioningConfig, inst.ProvisionedAt, now)
			if err != nil {
				logger.Warn("Skipping instance with unreadable maximum lifetime",
					zap.String("instance_id", inst.ID),
					zap.Error(err),
				)
				continue
			}
			if left <= 0 {
				deprovision = append(deprovision, inst)
			}
		default:
			update = append(update, inst)
		}
	}

	res := Result{
		UpdateCandidates:      len(update),
		DeprovisionCandidates: len(deprovision),
	}
	candidatesTotal.WithLabelValues(kindDeprovision).Add(float64(len(deprovision)))
	candidatesTotal.WithLabelValues(kindUpdate).Add(float64(len(update)))

	deprovision = s.sample(deprovision, kindDeprovision)
	update = s.sample(update, kindUpdate)

	for _, inst := range deprovision {
		logger.Info("Deprovisioning triggered",
			zap.String("instance_id", inst.ID),
			zap.String("reason", "maximum lifetime exceeded"),
		)
		if err := s.store.FlagForDeletion(ctx, inst.ID); err != nil {
			logger.Warn("Flagging expired instance failed",
				zap.String("instance_id", inst.ID),
				zap.Error(err),
			)
			continue
		}
		if s.enqueue(ctx, inst.ID, kindDeprovision) {
			res.Deprovisioned = append(res.Deprovisioned, inst.ID)
		}
	}
	for _, inst := range update {
		if s.enqueue(ctx, inst.ID, kindUpdate) {
			res.Updated = append(res.Updated, inst.ID)
		}
	}

	logger.Debug("Reconciliation pass done",
		zap.Int("instances", len(instances)),
		zap.Int("update_candidates", res.UpdateCandidates),
		zap.Int("deprovision_candidates", res.DeprovisionCandidates),
		zap.Int("updated", len(res.Updated)),
		zap.Int("deprovisioned", len(res.Deprovisioned)),
	)
	return res, nil
}

func (s *Scheduler) enqueue(ctx context.Context, instanceID, kind string) bool {
	if err := s.enqueuer.EnqueueUpdate(ctx, instanceID); err != nil {
		logger.Warn("Enqueue update failed",
			zap.String("instance_id", instanceID),
			zap.String("kind", kind),
			zap.Error(err),
		)
		return false
	}
	enqueuedTotal.WithLabelValues(kind).Inc()
	return true
}

// sample returns at most BatchSize elements of list chosen uniformly at
// random. list is reordered in place.
func (s *Scheduler) sample(list []*domain.Instance, kind string) []*domain.Instance {
	n := s.cfg.BatchSize
	if len(list) <= n {
		return list
	}
	deferredTotal.WithLabelValues(kind).Add(float64(len(list) - n))

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < n; i++ {
		j := i + s.rng.IntN(len(list)-i)
		list[i], list[j] = list[j], list[i]
	}
	return list[:n]
}

// Tick is the scheduled unit of work: it enqueues the reconciliation pass
// and the driver-wide system tasks. Duplicate system tasks within a minute
// are dropped by the queue.
func (s *Scheduler) Tick(ctx context.Context) {
	if err := s.enqueuer.EnqueuePeriodicUpdate(ctx); err != nil {
		logger.Warn("Enqueue periodic update failed", zap.Error(err))
	}
	if err := s.enqueuer.EnqueueHousekeeping(ctx); err != nil {
		logger.Warn("Enqueue housekeeping failed", zap.Error(err))
	}
	if err := s.enqueuer.EnqueuePublishPlugins(ctx); err != nil {
		logger.Warn("Enqueue publish plugins failed", zap.Error(err))
	}
}

// Start runs Tick every Interval until Stop. A tick still running when the
// next one is due causes that one to be skipped.
func (s *Scheduler) Start(ctx context.Context) error {
	cron := gocron.NewScheduler(time.UTC)
	cron.SetMaxConcurrentJobs(1, gocron.RescheduleMode)
	if _, err := cron.Every(s.cfg.Interval).Do(func() { s.Tick(ctx) }); err != nil {
		return fmt.Errorf("schedule reconciliation: %w", err)
	}
	cron.StartAsync()
	s.cron = cron

	logger.Info("Reconciliation scheduler started",
		zap.Duration("interval", s.cfg.Interval),
		zap.Int("batch_size", s.cfg.BatchSize),
	)
	return nil
}

// Stop halts the tick.
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	s.cron.Stop()
	s.cron = nil
	logger.Info("Reconciliation scheduler stopped")
}
