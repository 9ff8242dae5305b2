// Package quota converts instance usage into credits and guards admission
// and quota changes.
package quota

import (
	"time"

	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/blueprint"
	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/domain"
)

// ActiveDuration is the billable time of inst: from provisioned_at until
// deprovisioned_at, or until now while no cutoff is set. Zero if the
// instance never reached running.
func ActiveDuration(inst *domain.Instance, now time.Time) time.Duration {
	if inst.ProvisionedAt == nil {
		return 0
	}
	end := now
	if inst.DeprovisionedAt != nil {
		end = *inst.DeprovisionedAt
	}
	d := end.Sub(*inst.ProvisionedAt)
	if d < 0 {
		return 0
	}
	return d
}

// CreditsSpent is cost_multiplier × active hours, with the multiplier taken
// from the configuration frozen on the instance.
func CreditsSpent(inst *domain.Instance, now time.Time) float64 {
	multiplier := blueprint.CostMultiplier(inst.ProvisioningConfig)
	return multiplier * ActiveDuration(inst, now).Seconds() / 3600
}
