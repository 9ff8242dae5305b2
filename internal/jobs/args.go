// Package jobs defines the river job types of the worker fleet and their workers.
//
// Job args carry ids only; workers always reload current state, so a job
// that runs late acts on what is true now, not on what was true at enqueue.
package jobs

import (
	"time"

	"github.com/riverqueue/river"
)

// UpdateArgs asks the instance's driver to move it towards its desired state.
type UpdateArgs struct {
	InstanceID string `json:"instance_id"`
}

func (UpdateArgs) Kind() string { return "update" }

// InsertOpts for provisioning work: a single attempt; the next reconciliation
// tick is the retry.
func (UpdateArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{MaxAttempts: 1}
}

// UpdateConnectivityArgs asks the instance's driver to re-apply client access rules.
type UpdateConnectivityArgs struct {
	InstanceID string `json:"instance_id"`
}

func (UpdateConnectivityArgs) Kind() string { return "update_connectivity" }

func (UpdateConnectivityArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{MaxAttempts: 1}
}

// PeriodicUpdateArgs runs one reconciliation pass on a worker.
type PeriodicUpdateArgs struct{}

func (PeriodicUpdateArgs) Kind() string { return "periodic_update" }

func (PeriodicUpdateArgs) InsertOpts() river.InsertOpts {
	return systemInsertOpts()
}

// HousekeepingArgs runs every driver's housekeeping.
type HousekeepingArgs struct{}

func (HousekeepingArgs) Kind() string { return "housekeeping" }

func (HousekeepingArgs) InsertOpts() river.InsertOpts {
	return systemInsertOpts()
}

// PublishPluginsArgs republishes every driver's configuration schema.
type PublishPluginsArgs struct{}

func (PublishPluginsArgs) Kind() string { return "publish_plugins" }

func (PublishPluginsArgs) InsertOpts() river.InsertOpts {
	return systemInsertOpts()
}

// systemInsertOpts deduplicates system jobs within a minute, so several
// schedulers (or a restarted one) do not pile up identical work.
func systemInsertOpts() river.InsertOpts {
	return river.InsertOpts{
		MaxAttempts: 1,
		UniqueOpts: river.UniqueOpts{
			ByPeriod: time.Minute,
		},
	}
}
