package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/domain"
	apperrors "github.com/CSC-IT-Center-for-Science/resource-cloud/internal/pkg/errors"
	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/pkg/logger"
	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/repository"
)

func init() {
	_ = logger.Init("error", "json")
}

// memStore is an in-memory Store. InTx runs fn under the store lock and
// restores a snapshot when fn fails.
type memStore struct {
	mu        sync.Mutex
	inTx      bool
	templates map[string]*domain.Template
	envs      map[string]*domain.Environment
	instances map[string]*domain.Instance
	logs      map[string][]*domain.InstanceLog
	users     map[string]float64
	nameTaken map[string]bool

	// failCreate, when set, is returned by the next CreateInstance calls.
	failCreate []error
}

func newMemStore() *memStore {
	return &memStore{
		templates: map[string]*domain.Template{},
		envs:      map[string]*domain.Environment{},
		instances: map[string]*domain.Instance{},
		logs:      map[string][]*domain.InstanceLog{},
		users:     map[string]float64{},
		nameTaken: map[string]bool{},
	}
}

func (m *memStore) lock() func() {
	if m.inTx {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

func (m *memStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := make(map[string]domain.Instance, len(m.instances))
	for id, inst := range m.instances {
		snapshot[id] = *inst
	}
	envStatus := make(map[string]domain.EnvironmentStatus, len(m.envs))
	for id, env := range m.envs {
		envStatus[id] = env.Status
	}

	m.inTx = true
	err := fn(m)
	m.inTx = false

	if err != nil {
		m.instances = make(map[string]*domain.Instance, len(snapshot))
		for id, inst := range snapshot {
			inst := inst
			m.instances[id] = &inst
		}
		for id, st := range envStatus {
			m.envs[id].Status = st
		}
	}
	return err
}

func (m *memStore) CreateInstance(_ context.Context, inst *domain.Instance) error {
	defer m.lock()()
	if len(m.failCreate) > 0 {
		err := m.failCreate[0]
		m.failCreate = m.failCreate[1:]
		return err
	}
	for _, other := range m.instances {
		if other.Name == inst.Name {
			return apperrors.Conflict(apperrors.CodeInstanceNameConflict, "instance name already taken")
		}
		if other.UserID == inst.UserID && other.EnvironmentID == inst.EnvironmentID && other.State != domain.StateDeleted {
			return apperrors.ErrInstanceLimitReached(inst.EnvironmentID)
		}
	}
	cp := *inst
	m.instances[inst.ID] = &cp
	return nil
}

func (m *memStore) get(id string) (*domain.Instance, error) {
	inst, ok := m.instances[id]
	if !ok {
		return nil, apperrors.ErrInstanceNotFoundf(id)
	}
	cp := *inst
	return &cp, nil
}

func (m *memStore) GetInstance(_ context.Context, id string) (*domain.Instance, error) {
	defer m.lock()()
	return m.get(id)
}

func (m *memStore) GetInstanceForUpdate(_ context.Context, id string) (*domain.Instance, error) {
	defer m.lock()()
	return m.get(id)
}

func (m *memStore) UpdateInstance(_ context.Context, inst *domain.Instance) error {
	defer m.lock()()
	if _, ok := m.instances[inst.ID]; !ok {
		return apperrors.ErrInstanceNotFoundf(inst.ID)
	}
	cp := *inst
	m.instances[inst.ID] = &cp
	return nil
}

func (m *memStore) ListInstances(_ context.Context, f repository.InstanceFilter) ([]repository.ListedInstance, error) {
	defer m.lock()()
	var out []repository.ListedInstance
	for _, inst := range m.instances {
		if f.InstanceID != "" && inst.ID != f.InstanceID {
			continue
		}
		if f.UserID != "" && inst.UserID != f.UserID {
			continue
		}
		if !f.IncludeDeleted && inst.State == domain.StateDeleted {
			continue
		}
		cp := *inst
		env := m.envs[inst.EnvironmentID]
		out = append(out, repository.ListedInstance{Instance: &cp, EnvironmentName: env.Name, WorkspaceID: env.WorkspaceID})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *memStore) CountLiveInstances(_ context.Context, userID, environmentID string) (int, error) {
	defer m.lock()()
	n := 0
	for _, inst := range m.instances {
		if inst.UserID == userID && inst.EnvironmentID == environmentID && inst.State != domain.StateDeleted {
			n++
		}
	}
	return n, nil
}

func (m *memStore) InstanceNameExists(_ context.Context, name string) (bool, error) {
	defer m.lock()()
	if m.nameTaken[name] {
		return true, nil
	}
	for _, inst := range m.instances {
		if inst.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) FlagEnvironmentInstances(_ context.Context, environmentID string, at time.Time) ([]string, error) {
	defer m.lock()()
	var ids []string
	for _, inst := range m.instances {
		if inst.EnvironmentID == environmentID && inst.State != domain.StateDeleted && !inst.ToBeDeleted {
			inst.RequestDeletion(at)
			ids = append(ids, inst.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *memStore) DriverNameFor(_ context.Context, instanceID string) (string, error) {
	defer m.lock()()
	inst, err := m.get(instanceID)
	if err != nil {
		return "", err
	}
	return m.templates[m.envs[inst.EnvironmentID].TemplateID].Plugin, nil
}

func (m *memStore) GetTemplate(_ context.Context, id string) (*domain.Template, error) {
	defer m.lock()()
	tpl, ok := m.templates[id]
	if !ok {
		return nil, apperrors.NotFound(apperrors.CodeTemplateNotFound, "template not found")
	}
	return tpl, nil
}

func (m *memStore) GetEnvironment(_ context.Context, id string) (*domain.Environment, error) {
	defer m.lock()()
	env, ok := m.envs[id]
	if !ok {
		return nil, apperrors.ErrEnvironmentNotFoundf(id)
	}
	cp := *env
	return &cp, nil
}

func (m *memStore) SetEnvironmentStatus(_ context.Context, id string, status domain.EnvironmentStatus) error {
	defer m.lock()()
	env, ok := m.envs[id]
	if !ok {
		return apperrors.ErrEnvironmentNotFoundf(id)
	}
	env.Status = status
	return nil
}

func (m *memStore) AppendLog(_ context.Context, l *domain.InstanceLog) error {
	defer m.lock()()
	if l.IsSnapshot() {
		for _, existing := range m.logs[l.InstanceID] {
			if existing.LogType == domain.LogTypeRunning {
				existing.Timestamp, existing.Message = l.Timestamp, l.Message
				return nil
			}
		}
	}
	cp := *l
	m.logs[l.InstanceID] = append(m.logs[l.InstanceID], &cp)
	return nil
}

func (m *memStore) DeleteLogs(_ context.Context, instanceID, logType string) (int64, error) {
	defer m.lock()()
	var kept []*domain.InstanceLog
	var n int64
	for _, l := range m.logs[instanceID] {
		if logType == "" || l.LogType == logType {
			n++
			continue
		}
		kept = append(kept, l)
	}
	m.logs[instanceID] = kept
	return n, nil
}

func (m *memStore) ListLogs(_ context.Context, instanceID, logType string) ([]*domain.InstanceLog, error) {
	defer m.lock()()
	var out []*domain.InstanceLog
	for _, l := range m.logs[instanceID] {
		if logType == "" || l.LogType == logType {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memStore) EnsureUser(_ context.Context, id string, _ bool) error {
	defer m.lock()()
	if _, ok := m.users[id]; !ok {
		m.users[id] = 1
	}
	return nil
}

func (m *memStore) Stats(context.Context) (*repository.Stats, error) {
	defer m.lock()()
	return &repository.Stats{OverallRunning: len(m.instances)}, nil
}

func (m *memStore) instance(id string) *domain.Instance {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.instances[id]
	return &cp
}

type recordingEnqueuer struct {
	mu           sync.Mutex
	updates      []string
	connectivity []string
	err          error
}

func (e *recordingEnqueuer) EnqueueUpdate(_ context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.updates = append(e.updates, id)
	return nil
}

func (e *recordingEnqueuer) EnqueueUpdateConnectivity(_ context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.connectivity = append(e.connectivity, id)
	return nil
}
