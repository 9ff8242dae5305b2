package modules

import (
	"context"

	"github.com/riverqueue/river"

	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/api/handlers"
	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/quota"
	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/usecase"
)

// InstanceModule wires the instance use cases: admission, deletion, driver
// patches, logs, quotas and listings.
type InstanceModule struct {
	infra   *Infrastructure
	service *usecase.Service
}

// NewInstanceModule creates the instance module.
func NewInstanceModule(infra *Infrastructure) *InstanceModule {
	opts := []usecase.Option{usecase.WithDispatcher(infra.Dispatcher)}
	if prefix := infra.Config.Provisioning.InstanceNamePrefix; prefix != "" {
		opts = append(opts, usecase.WithNamePrefix(prefix))
	}
	if infra.Pools != nil {
		opts = append(opts, usecase.WithBackground(infra.Pools))
	}
	RegisterEventMetrics(infra.Dispatcher)

	svc := usecase.NewService(
		usecase.NewPostgresStore(infra.Store),
		infra.Enqueuer,
		quota.NewService(infra.Store),
		opts...,
	)
	return &InstanceModule{infra: infra, service: svc}
}

// Service returns the use case service shared with the other modules.
func (m *InstanceModule) Service() *usecase.Service { return m.service }

func (m *InstanceModule) Name() string { return "instance" }

func (m *InstanceModule) ContributeServerDeps(deps *handlers.ServerDeps) {
	if deps == nil {
		return
	}
	deps.Instances = m.service
	deps.Plugins = m.infra.Store
}

func (m *InstanceModule) RegisterWorkers(*river.Workers) {}

func (m *InstanceModule) Shutdown(context.Context) error { return nil }
