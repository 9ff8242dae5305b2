// Package domain holds the orchestration core's entities and the instance
// lifecycle state machine.
//
// Nothing in this package touches storage or queues; callers load an
// Instance, mutate it through the methods here and persist the result.
package domain

import (
	"fmt"
	"time"

	apperrors "github.com/CSC-IT-Center-for-Science/resource-cloud/internal/pkg/errors"
)

// InstanceState is the lifecycle state of an instance.
type InstanceState string

// The closed set of instance states. No other value is ever persisted.
const (
	StateQueued       InstanceState = "queued"
	StateProvisioning InstanceState = "provisioning"
	StateRunning      InstanceState = "running"
	StateDeleting     InstanceState = "deleting"
	StateDeleted      InstanceState = "deleted"
	StateFailed       InstanceState = "failed"
)

// ValidStates lists every member of the state set in lifecycle order.
var ValidStates = []InstanceState{
	StateQueued,
	StateProvisioning,
	StateRunning,
	StateDeleting,
	StateDeleted,
	StateFailed,
}

// transitions maps a state to the states it may move to. Re-entering the
// current state is handled separately and always allowed.
var transitions = map[InstanceState][]InstanceState{
	StateQueued:       {StateProvisioning, StateDeleting},
	StateProvisioning: {StateRunning, StateFailed, StateDeleting},
	StateRunning:      {StateDeleting, StateFailed},
	StateDeleting:     {StateDeleted},
	StateFailed:       {StateQueued, StateDeleting, StateDeleted},
	StateDeleted:      nil,
}

// ParseInstanceState validates s against the state set. Matching is exact:
// "Running", " running" and "running2" are all rejected.
func ParseInstanceState(s string) (InstanceState, error) {
	for _, st := range ValidStates {
		if string(st) == s {
			return st, nil
		}
	}
	return "", apperrors.Validation(apperrors.CodeInvalidState, fmt.Sprintf("invalid state %q", s)).
		WithParams(map[string]interface{}{"state": s})
}

// IsTerminal reports whether no driver-driven transition leaves s.
func (s InstanceState) IsTerminal() bool {
	return s == StateDeleted || s == StateFailed
}

// CanTransition reports whether from → to is a legal move. The failed → queued
// retry is reserved for privileged callers.
func CanTransition(from, to InstanceState, privileged bool) bool {
	if from == to {
		return true
	}
	if from == StateFailed && to == StateQueued {
		return privileged
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Instance is one provisioned (or provisioning) unit of compute owned by a
// single user and created from a single environment.
type Instance struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	UserID          string         `json:"user_id"`
	EnvironmentID   string         `json:"environment_id"`
	State           InstanceState  `json:"state"`
	ToBeDeleted     bool           `json:"to_be_deleted"`
	LogFetchPending bool           `json:"log_fetch_pending"`
	ErrorMsg        string         `json:"error_msg,omitempty"`
	Errored         bool           `json:"errored"`
	PublicIP        string         `json:"public_ip,omitempty"`
	ClientIP        string         `json:"client_ip,omitempty"`
	InstanceData    map[string]any `json:"instance_data,omitempty"`

	// ProvisioningConfig is the resolved configuration frozen at creation.
	ProvisioningConfig map[string]any `json:"provisioning_config"`

	CreatedAt       time.Time  `json:"created_at"`
	ProvisionedAt   *time.Time `json:"provisioned_at,omitempty"`
	DeprovisionedAt *time.Time `json:"deprovisioned_at,omitempty"`
}

// ApplyState moves the instance to state "to" and applies the side effects
// of entering it. purgeLogs is true when the instance entered deleted and
// its log records must be removed.
func (i *Instance) ApplyState(to InstanceState, now time.Time, privileged bool) (purgeLogs bool, err error) {
	if !CanTransition(i.State, to, privileged) {
		return false, apperrors.Validation(apperrors.CodeInvalidStateTransition,
			fmt.Sprintf("cannot move instance from %s to %s", i.State, to)).
			WithParams(map[string]interface{}{"from": string(i.State), "to": string(to)})
	}

	i.State = to
	switch to {
	case StateRunning:
		if i.ProvisionedAt == nil {
			t := now
			i.ProvisionedAt = &t
		}
	case StateFailed:
		i.Errored = true
	case StateDeleted:
		if i.DeprovisionedAt == nil {
			t := now
			i.DeprovisionedAt = &t
		}
		return true, nil
	}
	return false, nil
}

// RequestDeletion flags the instance for deprovisioning. deprovisioned_at is
// the billing cutoff and is set now, before the driver has done anything.
func (i *Instance) RequestDeletion(now time.Time) {
	i.ToBeDeleted = true
	t := now
	i.DeprovisionedAt = &t
}

// CanRequestDeletion reports whether RequestDeletion would change anything.
// A deleted instance keeps the deprovisioned_at it was deleted with.
func (i *Instance) CanRequestDeletion() bool {
	return !i.ToBeDeleted && i.State != StateDeleted
}

// EffectiveState is the state shown to users: a flagged instance reads as
// deleting until the driver reports deleted.
func (i *Instance) EffectiveState() InstanceState {
	if i.ToBeDeleted && i.State != StateDeleted {
		return StateDeleting
	}
	return i.State
}

// IsLive reports whether the instance still counts against the
// one-instance-per-environment limit.
func (i *Instance) IsLive() bool {
	return i.State != StateDeleted
}
