package domain

import "time"

// Template is the admin-owned base configuration shared by many environments.
type Template struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Plugin string `json:"plugin"` // name of the provisioning driver

	BaseConfig map[string]any `json:"base_config"`
	// AllowedAttrs are the only keys an environment may override, in
	// addition to name and description.
	AllowedAttrs []string `json:"allowed_attrs"`

	IsEnabled bool `json:"is_enabled"`
}

// EnvironmentStatus is the administrative status of an environment.
type EnvironmentStatus string

const (
	EnvironmentActive   EnvironmentStatus = "active"
	EnvironmentArchived EnvironmentStatus = "archived"
	EnvironmentDeleted  EnvironmentStatus = "deleted"
)

// Environment (blueprint) is a configured instantiation of a template that
// users launch instances from. Environments are never physically removed.
type Environment struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	TemplateID  string         `json:"template_id"`
	WorkspaceID string         `json:"workspace_id"`
	Config      map[string]any `json:"config"`

	IsEnabled               bool              `json:"is_enabled"`
	MaximumInstancesPerUser int               `json:"maximum_instances_per_user"`
	Status                  EnvironmentStatus `json:"status"`

	CreatedAt time.Time `json:"created_at"`
}

// IsActive reports whether instances may still be launched from the environment.
func (e *Environment) IsActive() bool {
	return e.Status == "" || e.Status == EnvironmentActive
}
