// Package usecase provides the operations the CRUD layer and the worker
// processes call: admission, deletion, driver patches, logs, listings,
// quotas and statistics.
//
// Multi-row writes run in one storage transaction. Domain events are
// dispatched and jobs enqueued only after that transaction has committed;
// a failed enqueue is logged and picked up by the next reconciliation pass.
package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/duke-git/lancet/v2/random"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/domain"
	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/pkg/logger"
	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/pkg/worker"
	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/quota"
	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/repository"
)

// Tx is the storage surface available inside and outside a transaction.
// *repository.Queries implements it.
type Tx interface {
	CreateInstance(ctx context.Context, inst *domain.Instance) error
	GetInstance(ctx context.Context, id string) (*domain.Instance, error)
	GetInstanceForUpdate(ctx context.Context, id string) (*domain.Instance, error)
	UpdateInstance(ctx context.Context, inst *domain.Instance) error
	ListInstances(ctx context.Context, f repository.InstanceFilter) ([]repository.ListedInstance, error)
	CountLiveInstances(ctx context.Context, userID, environmentID string) (int, error)
	InstanceNameExists(ctx context.Context, name string) (bool, error)
	FlagEnvironmentInstances(ctx context.Context, environmentID string, at time.Time) ([]string, error)
	DriverNameFor(ctx context.Context, instanceID string) (string, error)

	GetTemplate(ctx context.Context, id string) (*domain.Template, error)
	GetEnvironment(ctx context.Context, id string) (*domain.Environment, error)
	SetEnvironmentStatus(ctx context.Context, id string, status domain.EnvironmentStatus) error

	AppendLog(ctx context.Context, l *domain.InstanceLog) error
	DeleteLogs(ctx context.Context, instanceID, logType string) (int64, error)
	ListLogs(ctx context.Context, instanceID, logType string) ([]*domain.InstanceLog, error)

	EnsureUser(ctx context.Context, id string, admin bool) error
	Stats(ctx context.Context) (*repository.Stats, error)
}

// Store is Tx plus the ability to open a transaction.
type Store interface {
	Tx
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Enqueuer places instance work on the queue.
type Enqueuer interface {
	EnqueueUpdate(ctx context.Context, instanceID string) error
	EnqueueUpdateConnectivity(ctx context.Context, instanceID string) error
}

// NewPostgresStore adapts the repository to Store.
func NewPostgresStore(s *repository.Store) Store {
	return postgresStore{s}
}

type postgresStore struct {
	*repository.Store
}

func (s postgresStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return s.WithTx(ctx, func(q *repository.Queries) error {
		return fn(q)
	})
}

// maxNameAttempts bounds the retries when a generated name loses the race
// on the unique index.
const maxNameAttempts = 5

// Service implements the use cases.
type Service struct {
	store      Store
	enqueuer   Enqueuer
	quotas     *quota.Service
	dispatcher *domain.EventDispatcher

	namePrefix string
	newName    func(prefix string) string
	now        func() time.Time
	background Detacher
}

// Detacher runs work that must outlive the request that started it.
// *worker.Pools implements it.
type Detacher interface {
	SubmitDetached(poolName string, task worker.Task) error
}

// Option configures a Service.
type Option func(*Service)

// WithDispatcher sets the dispatcher that receives domain events after commit.
func WithDispatcher(d *domain.EventDispatcher) Option {
	return func(s *Service) { s.dispatcher = d }
}

// WithNamePrefix sets the prefix of generated instance names.
func WithNamePrefix(prefix string) Option {
	return func(s *Service) { s.namePrefix = prefix }
}

// WithNameGenerator replaces the random instance name generator.
func WithNameGenerator(fn func(prefix string) string) Option {
	return func(s *Service) { s.newName = fn }
}

// WithBackground runs post-commit enqueues on d instead of the caller's
// goroutine, so a client hanging up does not drop them.
func WithBackground(d Detacher) Option {
	return func(s *Service) { s.background = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates the use case Service. quotas may be nil when the
// caller never reads or changes quotas.
func NewService(store Store, enqueuer Enqueuer, quotas *quota.Service, opts ...Option) *Service {
	s := &Service{
		store:      store,
		enqueuer:   enqueuer,
		quotas:     quotas,
		namePrefix: "pb-",
		newName:    randomName,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// randomName returns prefix followed by eight random lower-case letters.
func randomName(prefix string) string {
	return prefix + random.RandLower(8)
}

// newInstanceID returns a random UUID as 32 hex digits. The router shards on
// the trailing two digits.
func newInstanceID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// dispatch publishes a committed change. Handler failures are logged by the
// dispatcher and never undo the change.
func (s *Service) dispatch(ctx context.Context, eventType domain.EventType, aggregateType, aggregateID, actor string, payload []byte) {
	_ = s.dispatcher.Dispatch(ctx, &domain.DomainEvent{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Payload:       payload,
		CreatedBy:     actor,
		CreatedAt:     s.now(),
	})
}

func (s *Service) enqueueUpdate(ctx context.Context, instanceID string) {
	task := func(ctx context.Context) {
		if err := s.enqueuer.EnqueueUpdate(ctx, instanceID); err != nil {
			logger.Warn("Failed to enqueue update, reconciliation will retry",
				zap.String("instance_id", instanceID),
				zap.Error(err),
			)
		}
	}
	if s.background != nil {
		err := s.background.SubmitDetached(worker.PoolGeneral, task)
		if err == nil {
			return
		}
		logger.Warn("Background pool rejected enqueue, running inline",
			zap.String("instance_id", instanceID),
			zap.Error(err),
		)
	}
	task(context.WithoutCancel(ctx))
}
