package driver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/CSC-IT-Center-for-Science/resource-cloud/internal/pkg/errors"
	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/pkg/logger"
	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/pkg/worker"
)

// Operation names, as used in logs and metrics.
const (
	OpUpdate             = "update"
	OpUpdateConnectivity = "update_connectivity"
	OpHousekeep          = "housekeep"
	OpGetConfiguration   = "get_configuration"
)

// InstanceResolver finds the driver responsible for an instance: the plugin
// of its environment's template.
type InstanceResolver interface {
	DriverNameFor(ctx context.Context, instanceID string) (string, error)
}

// PluginStore persists published driver configurations.
type PluginStore interface {
	UpsertPlugin(ctx context.Context, name string, cfg *Configuration) error
}

// Gateway dispatches operations to the one matching driver, or to all of
// them for driver-wide operations.
type Gateway struct {
	registry *Registry
	resolver InstanceResolver
	store    PluginStore
	pool     *worker.Pool
}

// NewGateway creates a Gateway. pool runs the per-driver fan-out; with a nil
// pool drivers are called one after another.
func NewGateway(registry *Registry, resolver InstanceResolver, store PluginStore, pool *worker.Pool) *Gateway {
	return &Gateway{registry: registry, resolver: resolver, store: store, pool: pool}
}

// Registry returns the gateway's driver registry.
func (g *Gateway) Registry() *Registry {
	return g.registry
}

// Update dispatches an update for the instance to its driver.
func (g *Gateway) Update(ctx context.Context, instanceID string) error {
	return g.dispatch(ctx, OpUpdate, instanceID, func(d Driver) error {
		return d.Update(ctx, instanceID)
	})
}

// UpdateConnectivity dispatches a connectivity update for the instance to its driver.
func (g *Gateway) UpdateConnectivity(ctx context.Context, instanceID string) error {
	return g.dispatch(ctx, OpUpdateConnectivity, instanceID, func(d Driver) error {
		return d.UpdateConnectivity(ctx, instanceID)
	})
}

// dispatch resolves the instance's driver and calls op on it. An instance
// that no longer exists, or whose driver is not registered, is a logged no-op.
func (g *Gateway) dispatch(ctx context.Context, op, instanceID string, call func(Driver) error) error {
	name, err := g.resolver.DriverNameFor(ctx, instanceID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			logger.Warn("Instance vanished before driver dispatch",
				zap.String("instance_id", instanceID),
				zap.String("operation", op),
			)
			return nil
		}
		return fmt.Errorf("resolve driver for %s: %w", instanceID, err)
	}

	d, ok := g.registry.Resolve(name)
	if !ok {
		logger.Warn("No driver for instance",
			zap.String("instance_id", instanceID),
			zap.String("driver", name),
			zap.String("operation", op),
			zap.Error(apperrors.ErrDriverUnavailable),
		)
		recordCall(name, op, resultUnavailable, 0)
		return nil
	}

	start := time.Now()
	err = call(d)
	if err != nil {
		recordCall(name, op, resultError, time.Since(start).Seconds())
		return fmt.Errorf("driver %s %s %s: %w", name, op, instanceID, err)
	}
	recordCall(name, op, resultOK, time.Since(start).Seconds())
	return nil
}

// Housekeep runs every driver's housekeeping concurrently. A failing driver
// does not stop the others; all failures are returned together.
func (g *Gateway) Housekeep(ctx context.Context) error {
	return g.fanOut(ctx, OpHousekeep, func(ctx context.Context, d Driver) error {
		return d.Housekeep(ctx)
	})
}

// PublishConfigurations fetches every driver's configuration and stores the
// non-empty ones. It returns the number of configurations published.
func (g *Gateway) PublishConfigurations(ctx context.Context) (int, error) {
	var (
		mu        sync.Mutex
		published int
	)
	err := g.fanOut(ctx, OpGetConfiguration, func(ctx context.Context, d Driver) error {
		cfg, err := d.GetConfiguration(ctx)
		if err != nil {
			return err
		}
		if cfg.IsEmpty() {
			logger.Warn("Driver returned empty configuration, not publishing",
				zap.String("driver", d.Name()))
			return nil
		}
		if err := g.store.UpsertPlugin(ctx, d.Name(), cfg); err != nil {
			return fmt.Errorf("store configuration: %w", err)
		}
		mu.Lock()
		published++
		mu.Unlock()
		return nil
	})
	return published, err
}

func (g *Gateway) fanOut(ctx context.Context, op string, call func(context.Context, Driver) error) error {
	drivers := g.registry.All()

	var (
		mu   sync.Mutex
		errs []error
	)
	run := func(ctx context.Context, d Driver) {
		start := time.Now()
		err := call(ctx, d)
		elapsed := time.Since(start).Seconds()
		if err != nil {
			logger.Error("Driver operation failed",
				zap.String("driver", d.Name()),
				zap.String("operation", op),
				zap.Error(err),
			)
			recordCall(d.Name(), op, resultError, elapsed)
			mu.Lock()
			errs = append(errs, fmt.Errorf("driver %s %s: %w", d.Name(), op, err))
			mu.Unlock()
			return
		}
		recordCall(d.Name(), op, resultOK, elapsed)
	}

	if g.pool == nil {
		for _, d := range drivers {
			run(ctx, d)
		}
		return errors.Join(errs...)
	}

	tasks := make([]worker.Task, 0, len(drivers))
	for _, d := range drivers {
		d := d
		tasks = append(tasks, func(ctx context.Context) { run(ctx, d) })
	}
	if err := g.pool.Group(ctx, tasks...); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
