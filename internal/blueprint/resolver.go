// Package blueprint resolves the effective provisioning configuration of an
// environment and derives the typed operational fields read from it.
package blueprint

import (
	"github.com/duke-git/lancet/v2/convertor"

	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/domain"
)

// Config is a resolved provisioning configuration.
type Config map[string]any

// Keys read by the orchestration core. Every other key belongs to the driver.
const (
	KeyName                          = "name"
	KeyDescription                   = "description"
	KeyCostMultiplier                = "cost_multiplier"
	KeyMaximumLifetime               = "maximum_lifetime"
	KeyPreallocatedCredits           = "preallocated_credits"
	KeyAllowUpdateClientConnectivity = "allow_update_client_connectivity"
)

// alwaysAllowed may be overridden by every environment.
var alwaysAllowed = []string{KeyName, KeyDescription}

// Resolve builds the effective configuration of env: a deep copy of the
// template's base config with the environment's values applied for name,
// description and the template's allowed attributes. Environment keys outside
// that set are dropped. Neither input is modified.
func Resolve(tpl *domain.Template, env *domain.Environment) Config {
	cfg := Config(convertor.DeepClone(tpl.BaseConfig))
	if cfg == nil {
		cfg = Config{}
	}
	if env == nil || len(env.Config) == 0 {
		return cfg
	}

	for _, key := range AllowedKeys(tpl) {
		if v, ok := env.Config[key]; ok {
			cfg[key] = convertor.DeepClone(v)
		}
	}
	return cfg
}

// AllowedKeys returns the keys an environment of tpl may set.
func AllowedKeys(tpl *domain.Template) []string {
	keys := make([]string, 0, len(alwaysAllowed)+len(tpl.AllowedAttrs))
	keys = append(keys, alwaysAllowed...)
	keys = append(keys, tpl.AllowedAttrs...)
	return keys
}
