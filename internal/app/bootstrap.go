// Package app is the composition root. Bootstrap only wires modules; the
// behaviour lives in the packages it assembles.
package app

import (
	"context"
	"fmt"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/riverqueue/river"

	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/api/handlers"
	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/app/modules"
	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/config"
	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/infrastructure"
	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/pkg/worker"
)

// Role is a process responsibility. One process may take several.
type Role string

const (
	RoleAPI       Role = "api"
	RoleWorker    Role = "worker"
	RoleScheduler Role = "scheduler"
)

// Options select what a process runs.
type Options struct {
	Roles []Role
	// Queues the worker role consumes. Empty means every known queue.
	Queues []string
}

func (o Options) has(r Role) bool { return slices.Contains(o.Roles, r) }

// Application holds composed application dependencies.
type Application struct {
	Config  *config.Config
	Router  *gin.Engine
	DB      *infrastructure.DatabaseClients
	Pools   *worker.Pools
	Modules []modules.Module

	reconcile *modules.ReconcileModule
	options   Options
}

// Bootstrap initializes all dependencies using module-oriented manual DI.
func Bootstrap(ctx context.Context, cfg *config.Config, opts Options) (*Application, error) {
	if len(opts.Roles) == 0 {
		return nil, fmt.Errorf("no role selected")
	}

	infra, err := modules.NewInfrastructure(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init infrastructure: %w", err)
	}

	instanceModule := modules.NewInstanceModule(infra)
	reconcileModule := modules.NewReconcileModule(infra, instanceModule.Service())
	driverModule, err := modules.NewDriverModule(infra, instanceModule.Service(), reconcileModule.RunOnce)
	if err != nil {
		infra.Close()
		return nil, fmt.Errorf("init driver module: %w", err)
	}
	allModules := []modules.Module{instanceModule, driverModule, reconcileModule}

	var queues []string
	workers := river.NewWorkers()
	if opts.has(RoleWorker) {
		for _, mod := range allModules {
			mod.RegisterWorkers(workers)
		}
		queues = opts.Queues
		if len(queues) == 0 {
			queues = infra.Router.QueueNames()
		}
	}
	if err := infra.InitRiver(workers, queues); err != nil {
		infra.Close()
		return nil, fmt.Errorf("init river workers: %w", err)
	}

	application := &Application{
		Config:    cfg,
		DB:        infra.DB,
		Pools:     infra.Pools,
		Modules:   allModules,
		reconcile: reconcileModule,
		options:   opts,
	}
	if opts.has(RoleAPI) {
		server := handlers.NewServer(modules.NewServerDeps(infra, allModules))
		application.Router = newRouter(server, modules.JWTConfig(cfg))
	}
	return application, nil
}
