package jobs

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"

	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/pkg/logger"
)

func init() {
	_ = logger.Init("error", "json")
}

type fakeGateway struct {
	updated      []string
	connectivity []string
	housekept    int
	published    int
	err          error
}

func (g *fakeGateway) Update(_ context.Context, id string) error {
	g.updated = append(g.updated, id)
	return g.err
}

func (g *fakeGateway) UpdateConnectivity(_ context.Context, id string) error {
	g.connectivity = append(g.connectivity, id)
	return g.err
}

func (g *fakeGateway) Housekeep(context.Context) error {
	g.housekept++
	return g.err
}

func (g *fakeGateway) PublishConfigurations(context.Context) (int, error) {
	g.published++
	return 2, g.err
}

func jobFor[T river.JobArgs](args T) *river.Job[T] {
	return &river.Job[T]{
		JobRow: &rivertype.JobRow{Queue: "provisioning_tasks-1", Kind: args.Kind()},
		Args:   args,
	}
}

func TestArgsKinds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		args river.JobArgs
		want string
	}{
		{UpdateArgs{}, "update"},
		{UpdateConnectivityArgs{}, "update_connectivity"},
		{PeriodicUpdateArgs{}, "periodic_update"},
		{HousekeepingArgs{}, "housekeeping"},
		{PublishPluginsArgs{}, "publish_plugins"},
	}
	for _, tt := range tests {
		if got := tt.args.Kind(); got != tt.want {
			t.Fatalf("Kind() = %q, want %q", got, tt.want)
		}
	}
}

func TestProvisioningArgsInsertOpts(t *testing.T) {
	t.Parallel()

	for _, opts := range []river.InsertOpts{
		(UpdateArgs{}).InsertOpts(),
		(UpdateConnectivityArgs{}).InsertOpts(),
	} {
		if opts.MaxAttempts != 1 {
			t.Fatalf("MaxAttempts = %d, want 1", opts.MaxAttempts)
		}
		if opts.Queue != "" {
			t.Fatalf("Queue = %q, want empty so the router decides", opts.Queue)
		}
	}
}

func TestSystemArgsInsertOpts(t *testing.T) {
	t.Parallel()

	for _, opts := range []river.InsertOpts{
		(PeriodicUpdateArgs{}).InsertOpts(),
		(HousekeepingArgs{}).InsertOpts(),
		(PublishPluginsArgs{}).InsertOpts(),
	} {
		if opts.UniqueOpts.ByPeriod != time.Minute {
			t.Fatalf("UniqueOpts.ByPeriod = %s, want %s", opts.UniqueOpts.ByPeriod, time.Minute)
		}
		if opts.MaxAttempts != 1 {
			t.Fatalf("MaxAttempts = %d, want 1", opts.MaxAttempts)
		}
	}
}

func TestUpdateWorker(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{}
	w := NewUpdateWorker(gw, 5*time.Minute)
	if err := w.Work(context.Background(), jobFor(UpdateArgs{InstanceID: "abc"})); err != nil {
		t.Fatalf("Work() error = %v", err)
	}
	if len(gw.updated) != 1 || gw.updated[0] != "abc" {
		t.Fatalf("updated = %v, want [abc]", gw.updated)
	}
	if got := w.Timeout(nil); got != 5*time.Minute {
		t.Fatalf("Timeout() = %s, want 5m", got)
	}
}

func TestUpdateWorker_PropagatesDriverError(t *testing.T) {
	t.Parallel()

	boom := errors.New("driver exploded")
	w := NewUpdateWorker(&fakeGateway{err: boom}, 0)
	err := w.Work(context.Background(), jobFor(UpdateArgs{InstanceID: "abc"}))
	if !errors.Is(err, boom) {
		t.Fatalf("Work() error = %v, want %v", err, boom)
	}
}

func TestUpdateConnectivityWorker(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{}
	w := NewUpdateConnectivityWorker(gw, 0)
	if err := w.Work(context.Background(), jobFor(UpdateConnectivityArgs{InstanceID: "ff"})); err != nil {
		t.Fatalf("Work() error = %v", err)
	}
	if len(gw.connectivity) != 1 {
		t.Fatalf("connectivity calls = %d, want 1", len(gw.connectivity))
	}
	if len(gw.updated) != 0 {
		t.Fatalf("update calls = %d, want 0", len(gw.updated))
	}
}

func TestSystemWorkers(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{}
	ran := 0
	reconcile := func(context.Context) error { ran++; return nil }

	if err := NewPeriodicUpdateWorker(reconcile).Work(context.Background(), jobFor(PeriodicUpdateArgs{})); err != nil {
		t.Fatalf("periodic update: %v", err)
	}
	if err := NewHousekeepingWorker(gw).Work(context.Background(), jobFor(HousekeepingArgs{})); err != nil {
		t.Fatalf("housekeeping: %v", err)
	}
	if err := NewPublishPluginsWorker(gw).Work(context.Background(), jobFor(PublishPluginsArgs{})); err != nil {
		t.Fatalf("publish plugins: %v", err)
	}
	if ran != 1 || gw.housekept != 1 || gw.published != 1 {
		t.Fatalf("ran=%d housekept=%d published=%d, want 1 each", ran, gw.housekept, gw.published)
	}
}

func TestWorkers_Uninitialized(t *testing.T) {
	t.Parallel()

	var uw *UpdateWorker
	err := uw.Work(context.Background(), jobFor(UpdateArgs{InstanceID: "x"}))
	if err == nil || !strings.Contains(err.Error(), "not initialized") {
		t.Fatalf("Work() error = %v, want contains %q", err, "not initialized")
	}

	err = NewHousekeepingWorker(nil).Work(context.Background(), jobFor(HousekeepingArgs{}))
	if err == nil || !strings.Contains(err.Error(), "not initialized") {
		t.Fatalf("Work() error = %v, want contains %q", err, "not initialized")
	}
}

func TestRegister(t *testing.T) {
	t.Parallel()

	workers := river.NewWorkers()
	Register(workers, &fakeGateway{}, func(context.Context) error { return nil }, time.Minute)

	// Registering a kind twice fails, so a second add proves the first happened.
	if err := river.AddWorkerSafely(workers, NewUpdateWorker(&fakeGateway{}, 0)); err == nil {
		t.Fatal("AddWorkerSafely() for update succeeded, want duplicate error")
	}
}
