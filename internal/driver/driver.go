// Package driver dispatches lifecycle operations to provisioning drivers.
//
// Drivers are registered once at startup. The operator's allow-list is
// applied when the registry is built, so a driver that is not allowed is
// simply absent afterwards. Absence is never fatal: callers log it and move on.
package driver

import (
	"context"

	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/domain"
)

// Driver is the capability set every provisioning driver implements.
type Driver interface {
	// Name is the plugin name templates refer to.
	Name() string
	// Update moves the instance one step towards its desired state and reports
	// progress through the instance callbacks.
	Update(ctx context.Context, instanceID string) error
	// UpdateConnectivity re-applies client access rules for the instance.
	UpdateConnectivity(ctx context.Context, instanceID string) error
	// Housekeep performs driver-wide maintenance.
	Housekeep(ctx context.Context) error
	// GetConfiguration returns the configuration schema published to admins.
	// A nil or empty configuration is not published.
	GetConfiguration(ctx context.Context) (*Configuration, error)
}

// Configuration is what a driver publishes about its configurable keys.
type Configuration struct {
	Schema map[string]any `json:"schema" yaml:"schema"`
	Form   []any          `json:"form" yaml:"form"`
	Model  map[string]any `json:"model" yaml:"model"`
}

// IsEmpty reports whether there is nothing worth publishing.
func (c *Configuration) IsEmpty() bool {
	return c == nil || (len(c.Schema) == 0 && len(c.Form) == 0 && len(c.Model) == 0)
}

// InstanceReporter is how an in-process driver reads instances and reports
// back. Out-of-process drivers use the worker HTTP API for the same calls.
type InstanceReporter interface {
	GetInstance(ctx context.Context, instanceID string) (*domain.Instance, error)
	PatchInstance(ctx context.Context, instanceID string, patch domain.InstancePatch) error
	AppendLog(ctx context.Context, log *domain.InstanceLog) error
}
