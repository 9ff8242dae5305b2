// Package queue decides which river queue a unit of work lands on and
// inserts it there.
//
// Lifecycle work for one instance always lands on the same provisioning
// shard, so a shard consumed by a single worker processes an instance's
// tasks in enqueue order. Nothing about the assignment is persisted: changing
// the worker count re-shards on the next enqueue.
package queue

import (
	"fmt"
	"strconv"

	apperrors "github.com/CSC-IT-Center-for-Science/resource-cloud/internal/pkg/errors"
)

// TaskKind names a unit of background work. The values double as river job kinds.
type TaskKind string

const (
	KindPeriodicUpdate     TaskKind = "periodic_update"
	KindPublishPlugins     TaskKind = "publish_plugins"
	KindHousekeeping       TaskKind = "housekeeping"
	KindSendMails          TaskKind = "send_mails"
	KindProxyAddRoute      TaskKind = "proxy_add_route"
	KindProxyRemoveRoute   TaskKind = "proxy_remove_route"
	KindUpdate             TaskKind = "update"
	KindUpdateConnectivity TaskKind = "update_connectivity"
)

// RouterConfig names the queues and the provisioning shard count.
type RouterConfig struct {
	ProvisioningWorkers     int
	ProvisioningQueuePrefix string
	SystemQueue             string
	ProxyQueue              string
	DefaultQueue            string
}

// DefaultRouterConfig returns the standard queue names with a single shard.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		ProvisioningWorkers:     1,
		ProvisioningQueuePrefix: "provisioning_tasks",
		SystemQueue:             "system_tasks",
		ProxyQueue:              "proxy_tasks",
		DefaultQueue:            "default",
	}
}

// Router maps tasks to queue names. It is immutable and safe for concurrent use.
type Router struct {
	cfg RouterConfig
}

// NewRouter validates cfg and builds a Router.
func NewRouter(cfg RouterConfig) (*Router, error) {
	if cfg.ProvisioningWorkers < 1 {
		return nil, fmt.Errorf("provisioning workers must be at least 1, got %d", cfg.ProvisioningWorkers)
	}
	if cfg.ProvisioningQueuePrefix == "" || cfg.SystemQueue == "" || cfg.ProxyQueue == "" || cfg.DefaultQueue == "" {
		return nil, fmt.Errorf("queue names must not be empty")
	}
	return &Router{cfg: cfg}, nil
}

// Route returns the queue for a task. instanceID is only consulted for
// instance-affecting kinds, where it is required.
func (r *Router) Route(kind TaskKind, instanceID string) (string, error) {
	switch kind {
	case KindPeriodicUpdate, KindPublishPlugins, KindHousekeeping, KindSendMails:
		return r.cfg.SystemQueue, nil
	case KindProxyAddRoute, KindProxyRemoveRoute:
		return r.cfg.ProxyQueue, nil
	case KindUpdate, KindUpdateConnectivity:
		if instanceID == "" {
			return "", apperrors.Validation(apperrors.CodeValidationFailed,
				fmt.Sprintf("task %s requires an instance id", kind))
		}
		return r.provisioningQueue(int(lastByte(instanceID))%r.cfg.ProvisioningWorkers + 1), nil
	default:
		return r.cfg.DefaultQueue, nil
	}
}

// QueueNames lists every queue a full worker fleet consumes: system, proxy,
// default and provisioning shards 1..N.
func (r *Router) QueueNames() []string {
	names := []string{r.cfg.SystemQueue, r.cfg.ProxyQueue, r.cfg.DefaultQueue}
	for i := 1; i <= r.cfg.ProvisioningWorkers; i++ {
		names = append(names, r.provisioningQueue(i))
	}
	return names
}

// IsProvisioningQueue reports whether name is one of the provisioning shards.
func (r *Router) IsProvisioningQueue(name string) bool {
	for i := 1; i <= r.cfg.ProvisioningWorkers; i++ {
		if name == r.provisioningQueue(i) {
			return true
		}
	}
	return false
}

func (r *Router) provisioningQueue(index int) string {
	return r.cfg.ProvisioningQueuePrefix + "-" + strconv.Itoa(index)
}

// lastByte reads the trailing two hex digits of id as a byte. Ids that do not
// end in hex fall back to the raw value of their final byte.
func lastByte(id string) byte {
	tail := id
	if len(tail) > 2 {
		tail = tail[len(tail)-2:]
	}
	if v, err := strconv.ParseUint(tail, 16, 8); err == nil {
		return byte(v)
	}
	return id[len(id)-1]
}
