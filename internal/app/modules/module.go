// Package modules contains the dependency modules the composition root is
// assembled from. Each module owns one slice of the system and contributes
// HTTP dependencies, river workers or both.
package modules

import (
	"context"

	"github.com/riverqueue/river"

	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/api/handlers"
)

// Module represents a domain-specific dependency unit in the composition root.
type Module interface {
	// Name returns a stable module identifier for logging/debugging.
	Name() string

	// ContributeServerDeps injects module-owned dependencies into the HTTP server deps.
	ContributeServerDeps(*handlers.ServerDeps)

	// RegisterWorkers registers module workers into a shared River worker registry.
	RegisterWorkers(*river.Workers)

	// Shutdown performs module-local graceful cleanup.
	Shutdown(context.Context) error
}
