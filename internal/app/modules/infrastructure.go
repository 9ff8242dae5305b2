package modules

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"

	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/config"
	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/domain"
	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/infrastructure"
	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/pkg/worker"
	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/queue"
	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/repository"
)

var errRiverNotReady = errors.New("river client is not initialized")

// Infrastructure holds shared cross-cutting dependencies for all modules.
// It is a provider, not a Module.
type Infrastructure struct {
	Config     *config.Config
	DB         *infrastructure.DatabaseClients
	Pools      *worker.Pools
	Pool       *pgxpool.Pool
	Store      *repository.Store
	Router     *queue.Router
	Enqueuer   *queue.Enqueuer
	Dispatcher *domain.EventDispatcher
}

// NewInfrastructure initializes DB/pools and shared services.
func NewInfrastructure(ctx context.Context, cfg *config.Config) (*Infrastructure, error) {
	router, err := queue.NewRouter(RouterConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("init task router: %w", err)
	}

	db, err := infrastructure.NewDatabaseClients(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}

	// Dev-mode: apply the schema and the river tables.
	if cfg.Database.AutoMigrate {
		if err := db.AutoMigrate(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("auto-migrate: %w", err)
		}
	}

	pools, err := worker.NewPools(ctx, worker.PoolConfig{
		GeneralPoolSize: cfg.Worker.GeneralPoolSize,
		DriverPoolSize:  cfg.Worker.DriverPoolSize,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init worker pools: %w", err)
	}

	return &Infrastructure{
		Config:     cfg,
		DB:         db,
		Pools:      pools,
		Pool:       db.Pool,
		Store:      repository.NewStore(db.Pool),
		Router:     router,
		Enqueuer:   queue.NewEnqueuer(router, riverInserter{db: db}),
		Dispatcher: domain.NewEventDispatcher(),
	}, nil
}

// RouterConfig maps the provisioning settings onto the task router.
func RouterConfig(cfg *config.Config) queue.RouterConfig {
	return queue.RouterConfig{
		ProvisioningWorkers:     cfg.Provisioning.NumWorkers,
		ProvisioningQueuePrefix: cfg.Provisioning.QueuePrefix,
		SystemQueue:             cfg.Provisioning.SystemQueue,
		ProxyQueue:              cfg.Provisioning.ProxyQueue,
		DefaultQueue:            cfg.Provisioning.DefaultQueue,
	}
}

// InitRiver initializes the River client. queues are the queues this
// process works; with none the client only inserts.
func (i *Infrastructure) InitRiver(workers *river.Workers, queues []string) error {
	if i == nil || i.Router == nil || i.Config == nil {
		return fmt.Errorf("infrastructure is not initialized")
	}
	known := i.Router.QueueNames()
	for _, q := range queues {
		if !slices.Contains(known, q) {
			return fmt.Errorf("unknown queue %q, expected one of %v", q, known)
		}
	}
	if i.DB == nil {
		return fmt.Errorf("database is not initialized")
	}

	plan := infrastructure.QueuePlan{Queues: queues, SingleWorker: i.Router.IsProvisioningQueue}
	if err := i.DB.InitRiverClient(workers, plan, i.Config.River); err != nil {
		return fmt.Errorf("init river: %w", err)
	}
	return nil
}

// Close releases infra resources in reverse dependency order.
func (i *Infrastructure) Close() {
	if i == nil {
		return
	}
	if i.Pools != nil {
		i.Pools.Shutdown()
	}
	if i.DB != nil {
		i.DB.Close()
	}
}

// riverInserter resolves the river client at insert time: the client only
// exists once every module has registered its workers.
type riverInserter struct {
	db *infrastructure.DatabaseClients
}

func (r riverInserter) Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error) {
	if r.db == nil || r.db.RiverClient == nil {
		return nil, errRiverNotReady
	}
	return r.db.RiverClient.Insert(ctx, args, opts)
}
