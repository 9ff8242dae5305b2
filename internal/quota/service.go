package quota

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/domain"
	apperrors "github.com/CSC-IT-Center-for-Science/resource-cloud/internal/pkg/errors"
	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/pkg/logger"
)

// UpdateType selects how a quota update is applied.
type UpdateType string

const (
	// UpdateAbsolute replaces the quota with Value.
	UpdateAbsolute UpdateType = "absolute"
	// UpdateRelative adds Value (possibly negative) to the current quota.
	UpdateRelative UpdateType = "relative"
)

// Update is a quota change request. An empty UserID targets every user.
type Update struct {
	Type   UpdateType `json:"type"`
	Value  string     `json:"value"`
	UserID string     `json:"user_id,omitempty"`
}

// Usage is a user's consumption against their quota, in credits.
type Usage struct {
	UserID string  `json:"user_id"`
	Spent  float64 `json:"credits_spent"`
	Quota  float64 `json:"credits_quota"`
}

// Store is the persistence the quota engine needs.
type Store interface {
	// UpdateQuotas applies value to one user (userID != "") or all users in a
	// single transaction and returns the number of rows changed. A missing
	// single user is reported as a not-found error.
	UpdateQuotas(ctx context.Context, userID string, value float64, relative bool) (int64, error)
	GetUserQuota(ctx context.Context, userID string) (float64, error)
	ListUserInstances(ctx context.Context, userID string) ([]*domain.Instance, error)
}

// Service applies quota updates and reports usage.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService creates a quota Service.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// ParseValue validates a quota value. Non-numeric, NaN and infinite values
// are rejected.
func ParseValue(raw string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, apperrors.Validation(apperrors.CodeInvalidQuota,
			fmt.Sprintf("quota value %q is not a number", raw)).
			WithParams(map[string]interface{}{"value": raw})
	}
	return v, nil
}

// UpdateQuota applies u on behalf of p. Only admins may change quotas, and
// the value is validated before anything is written.
func (s *Service) UpdateQuota(ctx context.Context, p domain.Principal, u Update) (int64, error) {
	if !p.IsAdmin() {
		return 0, apperrors.ErrForbiddenf("update quotas")
	}

	var relative bool
	switch u.Type {
	case UpdateAbsolute:
	case UpdateRelative:
		relative = true
	default:
		return 0, apperrors.Validation(apperrors.CodeInvalidQuotaType,
			fmt.Sprintf("quota update type %q must be absolute or relative", u.Type))
	}

	value, err := ParseValue(u.Value)
	if err != nil {
		return 0, err
	}

	n, err := s.store.UpdateQuotas(ctx, u.UserID, value, relative)
	if err != nil {
		return 0, fmt.Errorf("update quotas: %w", err)
	}

	logger.Info("Quota updated",
		zap.String("type", string(u.Type)),
		zap.String("user_id", u.UserID),
		zap.Float64("value", value),
		zap.Int64("users", n),
		zap.String("actor", p.UserID()),
	)
	return n, nil
}

// UserUsage sums the credits spent by all instances of userID, deleted ones
// included, and pairs the total with the user's quota.
func (s *Service) UserUsage(ctx context.Context, userID string) (Usage, error) {
	q, err := s.store.GetUserQuota(ctx, userID)
	if err != nil {
		return Usage{}, fmt.Errorf("get quota of %s: %w", userID, err)
	}
	instances, err := s.store.ListUserInstances(ctx, userID)
	if err != nil {
		return Usage{}, fmt.Errorf("list instances of %s: %w", userID, err)
	}

	now := s.now()
	usage := Usage{UserID: userID, Quota: q}
	for _, inst := range instances {
		usage.Spent += CreditsSpent(inst, now)
	}
	return usage, nil
}
