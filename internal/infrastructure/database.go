// Package infrastructure provides database and connection pool setup.
//
// One pgxpool is shared by the repository and River, so an instance row and
// the job that drives it can be written in the same transaction.
package infrastructure

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"go.uber.org/zap"

	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/config"
	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/pkg/logger"
	"github.com/CSC-IT-Center-for-Science/resource-cloud/migrations"
)

// DatabaseClients contains all database-related clients.
//
// Do not open separate pools next to this one; it doubles connections.
type DatabaseClients struct {
	// Pool is the shared connection pool (repository + River).
	Pool *pgxpool.Pool

	// RiverClient is the River client backed by Pool. It only inserts jobs
	// unless it was initialized with workers.
	RiverClient *river.Client[pgx.Tx]

	dsn string
}

// NewDatabaseClients creates the shared connection pool.
func NewDatabaseClients(ctx context.Context, cfg config.DatabaseConfig) (*DatabaseClients, error) {
	dsn := cfg.DSN()

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}
	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolConfig.HealthCheckPeriod = time.Minute

	// Timestamps are compared across processes; keep sessions in UTC.
	poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, "SET timezone = 'UTC'")
		return err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger.Info("Database connection pool created",
		zap.Int32("max_conns", cfg.MaxConns),
		zap.Int32("min_conns", cfg.MinConns),
	)

	return &DatabaseClients{Pool: pool, dsn: dsn}, nil
}

// AutoMigrate applies the application schema and River's queue tables.
// Only use in development; production runs `resource-cloud migrate up`.
func (c *DatabaseClients) AutoMigrate(ctx context.Context) error {
	logger.Info("Running schema migrations...")
	version, err := migrations.Up(c.dsn)
	if err != nil {
		return fmt.Errorf("schema migrate: %w", err)
	}
	logger.Info("Schema migrations completed", zap.Uint("version", version))

	return c.MigrateRiver(ctx)
}

// MigrateRiver creates or upgrades River's tables (river_job, river_queue, ...).
func (c *DatabaseClients) MigrateRiver(ctx context.Context) error {
	logger.Info("Running River migration...")
	migrator, err := rivermigrate.New(riverpgxv5.New(c.Pool), nil)
	if err != nil {
		return fmt.Errorf("create river migrator: %w", err)
	}
	res, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil)
	if err != nil {
		return fmt.Errorf("river migrate up: %w", err)
	}
	if len(res.Versions) > 0 {
		logger.Info("River migration completed",
			zap.Int("versions_applied", len(res.Versions)),
		)
	} else {
		logger.Info("River migration: already up-to-date")
	}
	return nil
}

// QueuePlan says which queues a worker process consumes and how wide.
type QueuePlan struct {
	// Queues to work. Empty means insert only.
	Queues []string
	// SingleWorker reports queues that must run one job at a time.
	SingleWorker func(queue string) bool
}

// InitRiverClient creates the River client. With a nil workers bundle or an
// empty plan the client only inserts jobs, which is what the api and
// scheduler processes need.
func (c *DatabaseClients) InitRiverClient(workers *river.Workers, plan QueuePlan, cfg config.RiverConfig) error {
	riverCfg := &river.Config{
		CompletedJobRetentionPeriod: cfg.CompletedJobRetentionPeriod,
		JobTimeout:                  cfg.JobTimeout,
	}

	if workers != nil && len(plan.Queues) > 0 {
		queues := make(map[string]river.QueueConfig, len(plan.Queues))
		for _, name := range plan.Queues {
			maxWorkers := cfg.MaxWorkers
			if plan.SingleWorker != nil && plan.SingleWorker(name) {
				maxWorkers = 1
			}
			queues[name] = river.QueueConfig{MaxWorkers: maxWorkers}
		}
		riverCfg.Queues = queues
		riverCfg.Workers = workers
	}

	riverClient, err := river.NewClient(riverpgxv5.New(c.Pool), riverCfg)
	if err != nil {
		return fmt.Errorf("create river client: %w", err)
	}
	c.RiverClient = riverClient
	logger.Info("River client initialized",
		zap.Strings("queues", plan.Queues),
		zap.Int("max_workers", cfg.MaxWorkers),
		zap.Duration("job_timeout", cfg.JobTimeout),
	)
	return nil
}

// Close closes the connection pool.
func (c *DatabaseClients) Close() {
	if c.Pool != nil {
		c.Pool.Close()
	}
}
