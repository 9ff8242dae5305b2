package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/domain"
	apperrors "github.com/CSC-IT-Center-for-Science/resource-cloud/internal/pkg/errors"
	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/pkg/worker"
	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/quota"
)

var t0 = time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

var (
	owner   = domain.User{ID: "u1"}
	other   = domain.User{ID: "u2"}
	manager = domain.User{ID: "m1", ManagedWorkspaces: []string{"ws-1"}}
	admin   = domain.User{ID: "admin", Admin: true}
)

type fixture struct {
	store    *memStore
	enqueuer *recordingEnqueuer
	events   []domain.DomainEvent
	svc      *Service
	clock    time.Time
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{store: newMemStore(), enqueuer: &recordingEnqueuer{}, clock: t0}

	f.store.templates["tpl-1"] = &domain.Template{
		ID:           "tpl-1",
		Plugin:       "dummy",
		BaseConfig:   map[string]any{"maximum_lifetime": "1h", "memory_limit": "512M"},
		AllowedAttrs: []string{"maximum_lifetime", "cost_multiplier", "allow_update_client_connectivity"},
	}
	f.store.envs["env-1"] = &domain.Environment{
		ID: "env-1", Name: "Course", TemplateID: "tpl-1", WorkspaceID: "ws-1",
		Config:    map[string]any{"maximum_lifetime": "2h", "memory_limit": "64G", "cost_multiplier": "2"},
		IsEnabled: true, Status: domain.EnvironmentActive,
	}
	f.store.envs["env-off"] = &domain.Environment{
		ID: "env-off", Name: "Draft", TemplateID: "tpl-1", WorkspaceID: "ws-1",
		IsEnabled: false, Status: domain.EnvironmentActive,
	}
	f.store.envs["env-2"] = &domain.Environment{
		ID: "env-2", Name: "Other", TemplateID: "tpl-1", WorkspaceID: "ws-2",
		Config:    map[string]any{"allow_update_client_connectivity": true},
		IsEnabled: true, Status: domain.EnvironmentActive,
	}

	dispatcher := domain.NewEventDispatcher()
	dispatcher.Register(func(_ context.Context, e *domain.DomainEvent) error {
		f.events = append(f.events, *e)
		return nil
	},
		domain.EventInstanceCreated,
		domain.EventInstanceStateChanged,
		domain.EventInstanceDeletionRequested,
		domain.EventEnvironmentArchived,
		domain.EventQuotaUpdated,
	)

	names := 0
	opts = append([]Option{
		WithDispatcher(dispatcher),
		WithClock(func() time.Time { return f.clock }),
		WithNameGenerator(func(prefix string) string {
			names++
			return fmt.Sprintf("%sname-%d", prefix, names)
		}),
	}, opts...)
	f.svc = NewService(f.store, f.enqueuer, quota.NewService(quotaStore{f.store}), opts...)
	return f
}

func (f *fixture) eventTypes() []domain.EventType {
	var out []domain.EventType
	for _, e := range f.events {
		out = append(out, e.EventType)
	}
	return out
}

// quotaStore feeds the quota engine from the memStore.
type quotaStore struct{ m *memStore }

func (q quotaStore) UpdateQuotas(_ context.Context, userID string, value float64, relative bool) (int64, error) {
	q.m.mu.Lock()
	defer q.m.mu.Unlock()
	if userID != "" {
		if _, ok := q.m.users[userID]; !ok {
			return 0, apperrors.NotFound(apperrors.CodeUserNotFound, "user not found")
		}
	}
	var n int64
	for id := range q.m.users {
		if userID != "" && id != userID {
			continue
		}
		if relative {
			q.m.users[id] += value
		} else {
			q.m.users[id] = value
		}
		n++
	}
	return n, nil
}

func (q quotaStore) GetUserQuota(_ context.Context, userID string) (float64, error) {
	q.m.mu.Lock()
	defer q.m.mu.Unlock()
	v, ok := q.m.users[userID]
	if !ok {
		return 0, apperrors.NotFound(apperrors.CodeUserNotFound, "user not found")
	}
	return v, nil
}

func (q quotaStore) ListUserInstances(_ context.Context, userID string) ([]*domain.Instance, error) {
	q.m.mu.Lock()
	defer q.m.mu.Unlock()
	var out []*domain.Instance
	for _, inst := range q.m.instances {
		if inst.UserID == userID {
			cp := *inst
			out = append(out, &cp)
		}
	}
	return out, nil
}

func TestCreateInstance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inst, err := f.svc.CreateInstance(ctx, owner, CreateInstanceInput{EnvironmentID: "env-1", ClientIP: "192.0.2.1"})
	require.NoError(t, err)

	assert.Len(t, inst.ID, 32)
	assert.Equal(t, "pb-name-1", inst.Name)
	assert.Equal(t, domain.StateQueued, inst.State)
	assert.Equal(t, "192.0.2.1", inst.ClientIP)
	assert.Equal(t, t0, inst.CreatedAt)
	assert.Equal(t, map[string]any{
		"maximum_lifetime": "2h",
		"memory_limit":     "512M",
		"cost_multiplier":  "2",
	}, inst.ProvisioningConfig)

	assert.Equal(t, []string{inst.ID}, f.enqueuer.updates)
	assert.Equal(t, []domain.EventType{domain.EventInstanceCreated}, f.eventTypes())
	assert.Contains(t, f.store.users, "u1")
}

func TestCreateInstance_ConfigIsFrozen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inst, err := f.svc.CreateInstance(ctx, owner, CreateInstanceInput{EnvironmentID: "env-1"})
	require.NoError(t, err)

	f.store.envs["env-1"].Config["maximum_lifetime"] = "8h"
	f.store.templates["tpl-1"].BaseConfig["memory_limit"] = "1G"

	assert.Equal(t, "2h", f.store.instance(inst.ID).ProvisioningConfig["maximum_lifetime"])
	assert.Equal(t, "512M", f.store.instance(inst.ID).ProvisioningConfig["memory_limit"])
}

func TestCreateInstance_AdmissionConflictThenSuccessAfterDeleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.CreateInstance(ctx, owner, CreateInstanceInput{EnvironmentID: "env-1"})
	require.NoError(t, err)

	_, err = f.svc.CreateInstance(ctx, owner, CreateInstanceInput{EnvironmentID: "env-1"})
	require.Error(t, err)
	assert.True(t, apperrors.IsAdmissionDenied(err))
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInstanceLimitReached))

	// a different user is admitted meanwhile
	_, err = f.svc.CreateInstance(ctx, other, CreateInstanceInput{EnvironmentID: "env-1"})
	require.NoError(t, err)

	for _, st := range []string{"provisioning", "running", "deleting", "deleted"} {
		_, err = f.svc.PatchInstance(ctx, admin, first.ID, domain.StatePatch(domain.InstanceState(st)))
		require.NoError(t, err, st)
	}

	_, err = f.svc.CreateInstance(ctx, owner, CreateInstanceInput{EnvironmentID: "env-1"})
	assert.NoError(t, err)
}

func TestCreateInstance_DisabledEnvironment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateInstance(ctx, owner, CreateInstanceInput{EnvironmentID: "env-off"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeEnvironmentDisabled))

	_, err = f.svc.CreateInstance(ctx, manager, CreateInstanceInput{EnvironmentID: "env-off"})
	assert.NoError(t, err)

	_, err = f.svc.CreateInstance(ctx, owner, CreateInstanceInput{EnvironmentID: "missing"})
	assert.True(t, apperrors.IsNotFound(err))
	assert.Empty(t, f.enqueuer.updates[1:])
}

func TestCreateInstance_InvalidLifetimeIsRejected(t *testing.T) {
	f := newFixture(t)
	f.store.envs["env-1"].Config["maximum_lifetime"] = "forever"

	_, err := f.svc.CreateInstance(context.Background(), owner, CreateInstanceInput{EnvironmentID: "env-1"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidDuration))
	assert.Empty(t, f.store.instances)
}

func TestCreateInstance_SkipsTakenNamesAndRetriesLostRace(t *testing.T) {
	f := newFixture(t)
	f.store.nameTaken["pb-name-1"] = true
	f.store.failCreate = []error{apperrors.Conflict(apperrors.CodeInstanceNameConflict, "taken")}

	inst, err := f.svc.CreateInstance(context.Background(), owner, CreateInstanceInput{EnvironmentID: "env-1"})
	require.NoError(t, err)
	assert.Equal(t, "pb-name-3", inst.Name)
}

func TestCreateInstance_EnqueueFailureStillCreates(t *testing.T) {
	f := newFixture(t)
	f.enqueuer.err = errors.New("queue down")

	inst, err := f.svc.CreateInstance(context.Background(), owner, CreateInstanceInput{EnvironmentID: "env-1"})
	require.NoError(t, err)
	assert.Equal(t, domain.StateQueued, f.store.instance(inst.ID).State)
}

func TestCreateInstance_EnqueuesOnBackgroundPool(t *testing.T) {
	pools, err := worker.NewPools(context.Background(), worker.PoolConfig{GeneralPoolSize: 2, DriverPoolSize: 1})
	require.NoError(t, err)
	defer pools.Shutdown()
	f := newFixture(t, WithBackground(pools))

	ctx, cancel := context.WithCancel(context.Background())
	inst, err := f.svc.CreateInstance(ctx, owner, CreateInstanceInput{EnvironmentID: "env-1"})
	require.NoError(t, err)
	cancel()

	require.Eventually(t, func() bool {
		f.enqueuer.mu.Lock()
		defer f.enqueuer.mu.Unlock()
		return len(f.enqueuer.updates) == 1 && f.enqueuer.updates[0] == inst.ID
	}, 5*time.Second, 10*time.Millisecond)
}

func TestCreateInstance_ClosedBackgroundPoolEnqueuesInline(t *testing.T) {
	pools, err := worker.NewPools(context.Background(), worker.PoolConfig{GeneralPoolSize: 1, DriverPoolSize: 1})
	require.NoError(t, err)
	pools.Shutdown()
	f := newFixture(t, WithBackground(pools))

	inst, err := f.svc.CreateInstance(context.Background(), owner, CreateInstanceInput{EnvironmentID: "env-1"})
	require.NoError(t, err)
	assert.Equal(t, []string{inst.ID}, f.enqueuer.updates)
}

func TestRequestDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inst, err := f.svc.CreateInstance(ctx, owner, CreateInstanceInput{EnvironmentID: "env-1"})
	require.NoError(t, err)

	err = f.svc.RequestDelete(ctx, other, inst.ID)
	assert.True(t, apperrors.IsForbidden(err))

	err = f.svc.RequestDelete(ctx, owner, "missing")
	assert.True(t, apperrors.IsNotFound(err))

	f.clock = t0.Add(30 * time.Minute)
	require.NoError(t, f.svc.RequestDelete(ctx, owner, inst.ID))
	got := f.store.instance(inst.ID)
	assert.True(t, got.ToBeDeleted)
	require.NotNil(t, got.DeprovisionedAt)
	assert.Equal(t, f.clock, *got.DeprovisionedAt)

	// a second request keeps the first cutoff
	f.clock = t0.Add(time.Hour)
	require.NoError(t, f.svc.RequestDelete(ctx, manager, inst.ID))
	assert.Equal(t, t0.Add(30*time.Minute), *f.store.instance(inst.ID).DeprovisionedAt)

	assert.Equal(t, []string{inst.ID, inst.ID}, f.enqueuer.updates)
	assert.Equal(t, []domain.EventType{domain.EventInstanceCreated, domain.EventInstanceDeletionRequested}, f.eventTypes())
}

func TestRequestDelete_Deleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inst, err := f.svc.CreateInstance(ctx, owner, CreateInstanceInput{EnvironmentID: "env-1"})
	require.NoError(t, err)
	f.store.instances[inst.ID].State = domain.StateDeleted

	err = f.svc.RequestDelete(ctx, admin, inst.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInstanceAlreadyDeleted))
}

func TestFlagForDeletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inst, err := f.svc.CreateInstance(ctx, owner, CreateInstanceInput{EnvironmentID: "env-1"})
	require.NoError(t, err)

	require.NoError(t, f.svc.FlagForDeletion(ctx, inst.ID))
	require.NoError(t, f.svc.FlagForDeletion(ctx, inst.ID))
	assert.True(t, f.store.instance(inst.ID).ToBeDeleted)

	// only the creation enqueued an update; the scheduler enqueues its own
	assert.Len(t, f.enqueuer.updates, 1)
	assert.Equal(t, []domain.EventType{domain.EventInstanceCreated, domain.EventInstanceDeletionRequested}, f.eventTypes())
}

func TestPatchInstance_StateMachine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inst, err := f.svc.CreateInstance(ctx, owner, CreateInstanceInput{EnvironmentID: "env-1"})
	require.NoError(t, err)

	_, err = f.svc.PatchInstance(ctx, owner, inst.ID, domain.StatePatch(domain.StateRunning))
	assert.True(t, apperrors.IsForbidden(err))

	for _, bad := range []string{"Running", " running", "running2", "stopped", ""} {
		bad := bad
		_, err = f.svc.PatchInstance(ctx, admin, inst.ID, domain.InstancePatch{State: &bad})
		assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidState), "state %q", bad)
	}

	_, err = f.svc.PatchInstance(ctx, admin, inst.ID, domain.StatePatch(domain.StateRunning))
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidStateTransition))

	_, err = f.svc.PatchInstance(ctx, admin, inst.ID, domain.StatePatch(domain.StateProvisioning))
	require.NoError(t, err)

	f.clock = t0.Add(time.Minute)
	got, err := f.svc.PatchInstance(ctx, admin, inst.ID, domain.StatePatch(domain.StateRunning))
	require.NoError(t, err)
	require.NotNil(t, got.ProvisionedAt)
	assert.Equal(t, f.clock, *got.ProvisionedAt)

	// re-entering running keeps provisioned_at
	f.clock = t0.Add(time.Hour)
	got, err = f.svc.PatchInstance(ctx, admin, inst.ID, domain.StatePatch(domain.StateRunning))
	require.NoError(t, err)
	assert.Equal(t, t0.Add(time.Minute), *got.ProvisionedAt)

	_, err = f.svc.PatchInstance(ctx, admin, inst.ID, domain.StatePatch(domain.StateFailed))
	require.NoError(t, err)
	assert.True(t, f.store.instance(inst.ID).Errored)

	var changes []domain.StateChangedPayload
	for _, e := range f.events {
		if e.EventType == domain.EventInstanceStateChanged {
			var p domain.StateChangedPayload
			require.NoError(t, json.Unmarshal(e.Payload, &p))
			changes = append(changes, p)
		}
	}
	assert.Equal(t, []domain.StateChangedPayload{
		{From: domain.StateQueued, To: domain.StateProvisioning},
		{From: domain.StateProvisioning, To: domain.StateRunning},
		{From: domain.StateRunning, To: domain.StateFailed},
	}, changes)
}

func TestPatchInstance_DeletedPurgesLogs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inst, err := f.svc.CreateInstance(ctx, owner, CreateInstanceInput{EnvironmentID: "env-1"})
	require.NoError(t, err)

	require.NoError(t, f.svc.AppendLog(ctx, admin, inst.ID, &domain.InstanceLog{LogType: "provisioning", LogLevel: "info", Timestamp: 1}))
	require.NoError(t, f.svc.AppendLog(ctx, admin, inst.ID, &domain.InstanceLog{LogType: "running", LogLevel: "info", Timestamp: 2}))

	for _, st := range []domain.InstanceState{domain.StateDeleting, domain.StateDeleted} {
		_, err = f.svc.PatchInstance(ctx, admin, inst.ID, domain.StatePatch(st))
		require.NoError(t, err)
	}
	assert.Empty(t, f.store.logs[inst.ID])
	assert.NotNil(t, f.store.instance(inst.ID).DeprovisionedAt)
}

func TestPatchInstance_Fields(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inst, err := f.svc.CreateInstance(ctx, owner, CreateInstanceInput{EnvironmentID: "env-1"})
	require.NoError(t, err)

	yes, ip, msg, data := true, "10.1.2.3", "quota exceeded", `{"endpoints":[{"name":"https","access":"https://x"}]}`
	got, err := f.svc.PatchInstance(ctx, admin, inst.ID, domain.InstancePatch{
		ToBeDeleted: &yes, LogFetchPending: &yes, PublicIP: &ip, ErrorMsg: &msg, InstanceData: &data,
	})
	require.NoError(t, err)
	assert.True(t, got.ToBeDeleted)
	assert.Equal(t, t0, *got.DeprovisionedAt)
	assert.True(t, got.LogFetchPending)
	assert.Equal(t, ip, got.PublicIP)
	assert.Equal(t, msg, got.ErrorMsg)
	assert.Contains(t, got.InstanceData, "endpoints")

	// invalid instance_data is ignored, the rest still applies
	bad, no := "not json", false
	got, err = f.svc.PatchInstance(ctx, admin, inst.ID, domain.InstancePatch{InstanceData: &bad, LogFetchPending: &no})
	require.NoError(t, err)
	assert.Contains(t, got.InstanceData, "endpoints")
	assert.False(t, got.LogFetchPending)

	array := `[1,2]`
	got, err = f.svc.PatchInstance(ctx, admin, inst.ID, domain.InstancePatch{InstanceData: &array})
	require.NoError(t, err)
	assert.Contains(t, got.InstanceData, "endpoints")
}

func TestPatchInstance_FailedRetry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inst, err := f.svc.CreateInstance(ctx, owner, CreateInstanceInput{EnvironmentID: "env-1"})
	require.NoError(t, err)
	f.store.instances[inst.ID].State = domain.StateFailed

	got, err := f.svc.PatchInstance(ctx, admin, inst.ID, domain.StatePatch(domain.StateQueued))
	require.NoError(t, err)
	assert.Equal(t, domain.StateQueued, got.State)
}

func TestPatchInstance_WorkerCannotRetryFailed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inst, err := f.svc.CreateInstance(ctx, owner, CreateInstanceInput{EnvironmentID: "env-1"})
	require.NoError(t, err)
	f.store.instances[inst.ID].State = domain.StateFailed

	err = f.svc.Reporter().PatchInstance(ctx, inst.ID, domain.StatePatch(domain.StateQueued))
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidStateTransition))
	assert.Equal(t, domain.StateFailed, f.store.instance(inst.ID).State)
}

func TestPatchInstance_DeletedKeepsDeprovisionedAt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inst, err := f.svc.CreateInstance(ctx, owner, CreateInstanceInput{EnvironmentID: "env-1"})
	require.NoError(t, err)

	steps := []domain.InstanceState{domain.StateProvisioning, domain.StateRunning, domain.StateFailed, domain.StateDeleted}
	for i, st := range steps {
		f.clock = t0.Add(time.Duration(i*10) * time.Minute)
		_, err = f.svc.PatchInstance(ctx, admin, inst.ID, domain.StatePatch(st))
		require.NoError(t, err)
	}
	deleted := f.store.instance(inst.ID)
	require.NotNil(t, deleted.DeprovisionedAt)
	require.Equal(t, t0.Add(30*time.Minute), *deleted.DeprovisionedAt)
	require.False(t, deleted.ToBeDeleted)
	spent := quota.CreditsSpent(deleted, t0.Add(72*time.Hour))

	f.clock = t0.Add(48*time.Hour + 30*time.Minute)
	yes := true
	got, err := f.svc.PatchInstance(ctx, admin, inst.ID, domain.InstancePatch{ToBeDeleted: &yes})
	require.NoError(t, err)
	assert.Equal(t, t0.Add(30*time.Minute), *got.DeprovisionedAt)
	assert.False(t, got.ToBeDeleted)
	assert.Equal(t, spent, quota.CreditsSpent(f.store.instance(inst.ID), t0.Add(72*time.Hour)))
	assert.NotContains(t, f.eventTypes(), domain.EventInstanceDeletionRequested)
}

func TestReporter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inst, err := f.svc.CreateInstance(ctx, owner, CreateInstanceInput{EnvironmentID: "env-1"})
	require.NoError(t, err)

	r := f.svc.Reporter()
	require.NoError(t, r.PatchInstance(ctx, inst.ID, domain.StatePatch(domain.StateProvisioning)))
	require.NoError(t, r.AppendLog(ctx, &domain.InstanceLog{InstanceID: inst.ID, LogType: "provisioning", LogLevel: "info", Timestamp: 5}))

	got, err := r.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateProvisioning, got.State)
	assert.Len(t, f.store.logs[inst.ID], 1)
}

func TestLogs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inst, err := f.svc.CreateInstance(ctx, owner, CreateInstanceInput{EnvironmentID: "env-1"})
	require.NoError(t, err)

	err = f.svc.AppendLog(ctx, owner, inst.ID, &domain.InstanceLog{LogType: "x", LogLevel: "info"})
	assert.True(t, apperrors.IsForbidden(err))
	err = f.svc.AppendLog(ctx, admin, inst.ID, &domain.InstanceLog{LogLevel: "info"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidLogRecord))
	err = f.svc.AppendLog(ctx, admin, "missing", &domain.InstanceLog{LogType: "x", LogLevel: "info"})
	assert.True(t, apperrors.IsNotFound(err))

	require.NoError(t, f.svc.AppendLog(ctx, admin, inst.ID, &domain.InstanceLog{LogType: "running", LogLevel: "info", Timestamp: 1, Message: "one"}))
	require.NoError(t, f.svc.AppendLog(ctx, admin, inst.ID, &domain.InstanceLog{LogType: "running", LogLevel: "info", Timestamp: 2, Message: "two"}))
	require.NoError(t, f.svc.AppendLog(ctx, admin, inst.ID, &domain.InstanceLog{LogType: "provisioning", LogLevel: "info", Timestamp: 3}))

	logs, err := f.svc.ListLogs(ctx, owner, inst.ID, "running")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "two", logs[0].Message)

	_, err = f.svc.ListLogs(ctx, other, inst.ID, "")
	assert.True(t, apperrors.IsNotFound(err))

	n, err := f.svc.PurgeLogs(ctx, admin, inst.ID, "provisioning")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	_, err = f.svc.PurgeLogs(ctx, manager, inst.ID, "")
	assert.True(t, apperrors.IsForbidden(err))
}

func TestListInstances_Scope(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mine, err := f.svc.CreateInstance(ctx, owner, CreateInstanceInput{EnvironmentID: "env-1"})
	require.NoError(t, err)
	theirs, err := f.svc.CreateInstance(ctx, other, CreateInstanceInput{EnvironmentID: "env-1"})
	require.NoError(t, err)
	elsewhere, err := f.svc.CreateInstance(ctx, other, CreateInstanceInput{EnvironmentID: "env-2"})
	require.NoError(t, err)

	ids := func(views []InstanceView) []string {
		var out []string
		for _, v := range views {
			out = append(out, v.ID)
		}
		return out
	}

	views, err := f.svc.ListInstances(ctx, owner, ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{mine.ID}, ids(views))

	views, err = f.svc.ListInstances(ctx, manager, ListOptions{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{mine.ID, theirs.ID}, ids(views))

	views, err = f.svc.ListInstances(ctx, admin, ListOptions{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{mine.ID, theirs.ID, elsewhere.ID}, ids(views))

	views, err = f.svc.ListInstances(ctx, manager, ListOptions{Offset: 1, Limit: 5})
	require.NoError(t, err)
	assert.Len(t, views, 1)

	views, err = f.svc.ListInstances(ctx, other, ListOptions{ShowOnlyMine: true})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{theirs.ID, elsewhere.ID}, ids(views))
}

func TestGetInstance_View(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inst, err := f.svc.CreateInstance(ctx, owner, CreateInstanceInput{EnvironmentID: "env-1"})
	require.NoError(t, err)
	_, err = f.svc.PatchInstance(ctx, admin, inst.ID, domain.StatePatch(domain.StateProvisioning))
	require.NoError(t, err)
	_, err = f.svc.PatchInstance(ctx, admin, inst.ID, domain.StatePatch(domain.StateRunning))
	require.NoError(t, err)
	require.NoError(t, f.svc.RequestDelete(ctx, owner, inst.ID))

	f.clock = t0.Add(30 * time.Minute)
	view, err := f.svc.GetInstance(ctx, owner, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateDeleting, view.State)
	assert.Equal(t, domain.StateRunning, view.Instance.State)
	assert.Equal(t, int64(7200), view.MaximumLifetime)
	assert.Equal(t, int64(5400), view.LifetimeLeft)
	assert.Equal(t, 2.0, view.CostMultiplier)
	assert.False(t, view.CanUpdateConnectivity)
	assert.Equal(t, "Course", view.EnvironmentName)

	_, err = f.svc.GetInstance(ctx, other, inst.ID)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestArchiveEnvironment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, err := f.svc.CreateInstance(ctx, owner, CreateInstanceInput{EnvironmentID: "env-1"})
	require.NoError(t, err)
	b, err := f.svc.CreateInstance(ctx, other, CreateInstanceInput{EnvironmentID: "env-1"})
	require.NoError(t, err)
	f.enqueuer.updates = nil

	_, err = f.svc.ArchiveEnvironment(ctx, owner, "env-1", domain.EnvironmentArchived)
	assert.True(t, apperrors.IsForbidden(err))
	assert.Equal(t, domain.EnvironmentActive, f.store.envs["env-1"].Status)

	_, err = f.svc.ArchiveEnvironment(ctx, admin, "env-1", domain.EnvironmentActive)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidEnvStatus))

	n, err := f.svc.ArchiveEnvironment(ctx, manager, "env-1", domain.EnvironmentArchived)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.ElementsMatch(t, []string{a.ID, b.ID}, f.enqueuer.updates)
	assert.True(t, f.store.instance(a.ID).ToBeDeleted)

	_, err = f.svc.CreateInstance(ctx, admin, CreateInstanceInput{EnvironmentID: "env-1"})
	assert.True(t, apperrors.IsNotFound(err))
}

func TestUpdateConnectivity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	locked, err := f.svc.CreateInstance(ctx, owner, CreateInstanceInput{EnvironmentID: "env-1"})
	require.NoError(t, err)
	open, err := f.svc.CreateInstance(ctx, other, CreateInstanceInput{EnvironmentID: "env-2"})
	require.NoError(t, err)

	err = f.svc.UpdateConnectivity(ctx, owner, locked.ID, "198.51.100.7")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConnectivityNotAllowed))

	err = f.svc.UpdateConnectivity(ctx, owner, open.ID, "198.51.100.7")
	assert.True(t, apperrors.IsForbidden(err))

	require.NoError(t, f.svc.UpdateConnectivity(ctx, other, open.ID, "198.51.100.7"))
	assert.Equal(t, "198.51.100.7", f.store.instance(open.ID).ClientIP)
	assert.Equal(t, []string{open.ID}, f.enqueuer.connectivity)
}

func TestQuotaAndStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inst, err := f.svc.CreateInstance(ctx, owner, CreateInstanceInput{EnvironmentID: "env-1"})
	require.NoError(t, err)
	for _, st := range []domain.InstanceState{domain.StateProvisioning, domain.StateRunning} {
		_, err = f.svc.PatchInstance(ctx, admin, inst.ID, domain.StatePatch(st))
		require.NoError(t, err)
	}

	// the deletion cutoff fixes the billed time at 90 minutes
	f.clock = t0.Add(90 * time.Minute)
	require.NoError(t, f.svc.RequestDelete(ctx, owner, inst.ID))
	usage, err := f.svc.GetQuota(ctx, owner, "")
	require.NoError(t, err)
	assert.InDelta(t, 3.0, usage.Spent, 1e-9)
	assert.Equal(t, 1.0, usage.Quota)

	_, err = f.svc.GetQuota(ctx, other, "u1")
	assert.True(t, apperrors.IsForbidden(err))

	n, err := f.svc.UpdateQuota(ctx, admin, quota.Update{Type: quota.UpdateRelative, Value: "4", UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	usage, err = f.svc.GetQuota(ctx, admin, "u1")
	require.NoError(t, err)
	assert.Equal(t, 5.0, usage.Quota)

	_, err = f.svc.Stats(ctx, owner)
	assert.True(t, apperrors.IsForbidden(err))
	stats, err := f.svc.Stats(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.OverallRunning)

	name, err := f.svc.DriverNameFor(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, "dummy", name)
}

func TestRandomName(t *testing.T) {
	name := randomName("pb-")
	assert.Regexp(t, `^pb-[a-z]{8}$`, name)
	assert.Len(t, newInstanceID(), 32)
}
