package driver

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/pkg/logger"
)

// Registry maps driver names to implementations. It is built at startup and
// read-only afterwards.
type Registry struct {
	allowed map[string]bool // nil allows every driver
	drivers map[string]Driver
}

// NewRegistry builds a registry from drivers, keeping only those named in
// allowList. An empty allowList keeps all of them.
func NewRegistry(allowList []string, drivers ...Driver) (*Registry, error) {
	r := &Registry{drivers: map[string]Driver{}}
	for _, name := range allowList {
		name = normalize(name)
		if name == "" {
			continue
		}
		if r.allowed == nil {
			r.allowed = map[string]bool{}
		}
		r.allowed[name] = true
	}

	for _, d := range drivers {
		if _, err := r.Register(d); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds d unless the allow-list excludes it. Duplicate names are rejected.
func (r *Registry) Register(d Driver) (bool, error) {
	if d == nil {
		return false, fmt.Errorf("driver is nil")
	}
	name := normalize(d.Name())
	if name == "" {
		return false, fmt.Errorf("driver name is empty")
	}
	if _, exists := r.drivers[name]; exists {
		return false, fmt.Errorf("driver already registered: %s", name)
	}
	if r.allowed != nil && !r.allowed[name] {
		logger.Info("Driver not in allow-list, skipping", zap.String("driver", name))
		return false, nil
	}
	r.drivers[name] = d
	return true, nil
}

// Resolve returns the driver registered under name.
func (r *Registry) Resolve(name string) (Driver, bool) {
	d, ok := r.drivers[normalize(name)]
	return d, ok
}

// Names returns the registered driver names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.drivers))
	for name := range r.drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns the registered drivers ordered by name.
func (r *Registry) All() []Driver {
	out := make([]Driver, 0, len(r.drivers))
	for _, name := range r.Names() {
		out = append(out, r.drivers[name])
	}
	return out
}

func normalize(name string) string {
	return strings.TrimSpace(name)
}
