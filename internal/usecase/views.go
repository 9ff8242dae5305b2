package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/blueprint"
	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/domain"
	apperrors "github.com/CSC-IT-Center-for-Science/resource-cloud/internal/pkg/errors"
	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/pkg/logger"
	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/quota"
	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/repository"
)

// InstanceView is an instance as users see it. State is the effective state:
// a flagged instance reads as deleting.
type InstanceView struct {
	*domain.Instance
	State domain.InstanceState `json:"state"`

	EnvironmentName       string  `json:"environment"`
	WorkspaceID           string  `json:"workspace_id,omitempty"`
	LifetimeLeft          int64   `json:"lifetime_left"`
	MaximumLifetime       int64   `json:"maximum_lifetime"`
	CostMultiplier        float64 `json:"cost_multiplier"`
	CreditsSpent          float64 `json:"credits_spent"`
	CanUpdateConnectivity bool    `json:"can_update_connectivity"`

	Logs []*domain.InstanceLog `json:"logs,omitempty"`
}

// ListOptions narrows ListInstances.
type ListOptions struct {
	ShowOnlyMine   bool
	IncludeDeleted bool
	Offset         int
	Limit          int
}

// ListInstances returns the instances p may see: everything for admins, own
// instances plus those in managed workspaces for everybody else.
func (s *Service) ListInstances(ctx context.Context, p domain.Principal, opts ListOptions) ([]InstanceView, error) {
	filter := repository.InstanceFilter{IncludeDeleted: opts.IncludeDeleted && p.IsAdmin()}
	if opts.ShowOnlyMine {
		filter.UserID = p.UserID()
	}
	// Scope for non-admins is applied below, so paging has to follow it.
	paged := p.IsAdmin() || opts.ShowOnlyMine
	if paged {
		filter.Offset, filter.Limit = opts.Offset, opts.Limit
	}

	rows, err := s.store.ListInstances(ctx, filter)
	if err != nil {
		return nil, err
	}

	now := s.now()
	views := make([]InstanceView, 0, len(rows))
	for _, row := range rows {
		if !visible(p, row) {
			continue
		}
		views = append(views, newInstanceView(row, now))
	}
	if !paged {
		views = page(views, opts.Offset, opts.Limit)
	}
	return views, nil
}

// GetInstance returns one instance with its logs if p may see it.
func (s *Service) GetInstance(ctx context.Context, p domain.Principal, instanceID string) (*InstanceView, error) {
	row, err := s.visibleInstance(ctx, p, instanceID)
	if err != nil {
		return nil, err
	}
	view := newInstanceView(*row, s.now())
	view.Logs, err = s.store.ListLogs(ctx, instanceID, "")
	if err != nil {
		return nil, err
	}
	return &view, nil
}

// visibleInstance loads an instance, deleted ones included, and hides it from
// principals outside its scope.
func (s *Service) visibleInstance(ctx context.Context, p domain.Principal, instanceID string) (*repository.ListedInstance, error) {
	rows, err := s.store.ListInstances(ctx, repository.InstanceFilter{InstanceID: instanceID, IncludeDeleted: true})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 || !visible(p, rows[0]) {
		return nil, apperrors.ErrInstanceNotFoundf(instanceID)
	}
	return &rows[0], nil
}

func visible(p domain.Principal, row repository.ListedInstance) bool {
	return p.IsAdmin() || row.UserID == p.UserID() || p.IsWorkspaceManager(row.WorkspaceID)
}

func page[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return items[:0]
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func newInstanceView(row repository.ListedInstance, now time.Time) InstanceView {
	cfg := blueprint.Config(row.ProvisioningConfig)
	view := InstanceView{
		Instance:              row.Instance,
		State:                 row.EffectiveState(),
		EnvironmentName:       row.EnvironmentName,
		WorkspaceID:           row.WorkspaceID,
		CostMultiplier:        blueprint.CostMultiplier(cfg),
		CreditsSpent:          quota.CreditsSpent(row.Instance, now),
		CanUpdateConnectivity: blueprint.AllowUpdateConnectivity(cfg),
	}

	maxLife, err := blueprint.MaximumLifetime(cfg)
	if err != nil {
		logger.Warn("Instance has an unparseable maximum_lifetime",
			zap.String("instance_id", row.ID),
			zap.Error(err),
		)
		return view
	}
	view.MaximumLifetime = maxLife
	if left, err := blueprint.LifetimeLeftSeconds(cfg, row.ProvisionedAt, now); err == nil {
		view.LifetimeLeft = left
	}
	return view
}
