package modules

import (
	"context"
	"fmt"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/api/handlers"
	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/driver"
	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/driver/dummy"
	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/jobs"
	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/pkg/logger"
	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/usecase"
)

// DriverModule owns the driver registry and the lifecycle workers that call
// into it.
type DriverModule struct {
	infra     *Infrastructure
	gateway   *driver.Gateway
	reconcile jobs.ReconcileFunc
}

// NewDriverModule builds the registry from the configured plugin
// allow-list. reconcile backs the periodic_update job.
func NewDriverModule(infra *Infrastructure, svc *usecase.Service, reconcile jobs.ReconcileFunc) (*DriverModule, error) {
	var drivers []driver.Driver
	if infra.Config.Provisioning.FakeProvisioning {
		d, err := dummy.New(svc.Reporter())
		if err != nil {
			return nil, fmt.Errorf("init dummy driver: %w", err)
		}
		drivers = append(drivers, d)
	}

	registry, err := driver.NewRegistry(infra.Config.Provisioning.PluginWhitelist, drivers...)
	if err != nil {
		return nil, fmt.Errorf("init driver registry: %w", err)
	}
	if len(registry.Names()) == 0 {
		logger.Warn("No provisioning drivers registered; instance tasks will be skipped")
	} else {
		logger.Info("Provisioning drivers registered", zap.Strings("drivers", registry.Names()))
	}

	return &DriverModule{
		infra:     infra,
		gateway:   driver.NewGateway(registry, svc, infra.Store, infra.Pools.Driver),
		reconcile: reconcile,
	}, nil
}

// Gateway returns the driver gateway.
func (m *DriverModule) Gateway() *driver.Gateway { return m.gateway }

func (m *DriverModule) Name() string { return "driver" }

func (m *DriverModule) ContributeServerDeps(*handlers.ServerDeps) {}

func (m *DriverModule) RegisterWorkers(workers *river.Workers) {
	jobs.Register(workers, m.gateway, m.reconcile, m.infra.Config.River.JobTimeout)
}

func (m *DriverModule) Shutdown(context.Context) error { return nil }
