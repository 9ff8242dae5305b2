// Package dummy is a provisioning driver whose instances only exist in the
// database. It is enabled with provisioning.fake_provisioning and is what
// local development and the test suite run against.
package dummy

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/domain"
	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/driver"
	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/pkg/logger"
)

// Name is the plugin name templates use to select this driver.
const Name = "dummy"

const dummyPublicIP = "127.0.0.1"

//go:embed config.yaml
var configYAML []byte

// Driver simulates provisioning by walking the instance through its states.
type Driver struct {
	reporter driver.InstanceReporter
	config   driver.Configuration
	now      func() time.Time
}

// Option configures a Driver.
type Option func(*Driver)

// WithClock overrides the clock used for log timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Driver) { d.now = now }
}

// New creates the dummy driver.
func New(reporter driver.InstanceReporter, opts ...Option) (*Driver, error) {
	d := &Driver{reporter: reporter, now: time.Now}
	if err := yaml.Unmarshal(configYAML, &d.config); err != nil {
		return nil, fmt.Errorf("parse dummy driver configuration: %w", err)
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

func (d *Driver) Name() string { return Name }

// Update moves the instance towards its desired state. Provisioning runs to
// completion in one call; a flagged instance goes through deleting to deleted.
func (d *Driver) Update(ctx context.Context, instanceID string) error {
	inst, err := d.reporter.GetInstance(ctx, instanceID)
	if err != nil {
		return err
	}

	if inst.State == domain.StateDeleted {
		return nil
	}
	if inst.ToBeDeleted {
		return d.deprovision(ctx, inst)
	}

	switch inst.State {
	case domain.StateQueued:
		return d.provision(ctx, inst)
	case domain.StateProvisioning:
		// Left over from an interrupted run.
		return d.markRunning(ctx, inst)
	case domain.StateRunning:
		return d.log(ctx, inst.ID, domain.LogTypeRunning, "info", "instance is running")
	}
	return nil
}

func (d *Driver) provision(ctx context.Context, inst *domain.Instance) error {
	if err := d.patch(ctx, inst.ID, domain.StatePatch(domain.StateProvisioning)); err != nil {
		return err
	}
	if err := d.log(ctx, inst.ID, domain.LogTypeProvisioning, "info", "provisioning started"); err != nil {
		return err
	}

	if failProvisioning(inst.ProvisioningConfig) {
		msg := "provisioning failed as configured"
		p := domain.StatePatch(domain.StateFailed)
		p.ErrorMsg = &msg
		if err := d.log(ctx, inst.ID, domain.LogTypeProvisioning, "error", msg); err != nil {
			return err
		}
		return d.patch(ctx, inst.ID, p)
	}

	if delay := provisioningDelay(inst.ProvisioningConfig); delay > 0 {
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return d.markRunning(ctx, inst)
}

func (d *Driver) markRunning(ctx context.Context, inst *domain.Instance) error {
	ip := dummyPublicIP
	data := fmt.Sprintf(`{"endpoints":[{"name":"http","access":"http://%s/%s"}]}`, ip, inst.Name)
	p := domain.StatePatch(domain.StateRunning)
	p.PublicIP = &ip
	p.InstanceData = &data
	if err := d.patch(ctx, inst.ID, p); err != nil {
		return err
	}
	return d.log(ctx, inst.ID, domain.LogTypeProvisioning, "info", "provisioning done")
}

func (d *Driver) deprovision(ctx context.Context, inst *domain.Instance) error {
	if inst.State != domain.StateDeleting {
		if err := d.patch(ctx, inst.ID, domain.StatePatch(domain.StateDeleting)); err != nil {
			return err
		}
	}
	if err := d.log(ctx, inst.ID, domain.LogTypeDeprovisioning, "info", "deprovisioning"); err != nil {
		return err
	}
	return d.patch(ctx, inst.ID, domain.StatePatch(domain.StateDeleted))
}

// UpdateConnectivity has no access rules to apply; it only records the request.
func (d *Driver) UpdateConnectivity(ctx context.Context, instanceID string) error {
	inst, err := d.reporter.GetInstance(ctx, instanceID)
	if err != nil {
		return err
	}
	logger.Info("Dummy connectivity update",
		zap.String("instance_id", inst.ID),
		zap.String("client_ip", inst.ClientIP),
	)
	return nil
}

func (d *Driver) Housekeep(_ context.Context) error {
	logger.Debug("Dummy driver housekeeping")
	return nil
}

// GetConfiguration returns the embedded configuration schema.
func (d *Driver) GetConfiguration(_ context.Context) (*driver.Configuration, error) {
	cfg := d.config
	return &cfg, nil
}

func (d *Driver) patch(ctx context.Context, instanceID string, p domain.InstancePatch) error {
	if err := d.reporter.PatchInstance(ctx, instanceID, p); err != nil {
		return fmt.Errorf("patch instance %s: %w", instanceID, err)
	}
	return nil
}

func (d *Driver) log(ctx context.Context, instanceID, logType, level, msg string) error {
	now := d.now()
	rec := &domain.InstanceLog{
		InstanceID: instanceID,
		LogType:    logType,
		LogLevel:   level,
		Timestamp:  float64(now.UnixNano()) / float64(time.Second),
		Message:    msg,
	}
	if err := d.reporter.AppendLog(ctx, rec); err != nil {
		return fmt.Errorf("append log for %s: %w", instanceID, err)
	}
	return nil
}

func failProvisioning(cfg map[string]any) bool {
	switch v := cfg["fail_provisioning"].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	}
	return false
}

func provisioningDelay(cfg map[string]any) time.Duration {
	s, ok := cfg["provisioning_delay"].(string)
	if !ok || s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0
	}
	return d
}
