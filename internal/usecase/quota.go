package usecase

import (
	"context"
	"errors"

	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/domain"
	apperrors "github.com/CSC-IT-Center-for-Science/resource-cloud/internal/pkg/errors"
	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/quota"
	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/repository"
)

var errQuotaUnavailable = errors.New("quota service not configured")

// GetQuota returns the credit usage of userID, or of p when userID is empty.
// Only admins may read somebody else's quota.
func (s *Service) GetQuota(ctx context.Context, p domain.Principal, userID string) (quota.Usage, error) {
	if s.quotas == nil {
		return quota.Usage{}, errQuotaUnavailable
	}
	if userID == "" {
		userID = p.UserID()
	}
	if userID != p.UserID() && !p.IsAdmin() {
		return quota.Usage{}, apperrors.ErrForbiddenf("read the quota of another user")
	}
	return s.quotas.UserUsage(ctx, userID)
}

// UpdateQuota applies a quota change; see quota.Service.UpdateQuota.
func (s *Service) UpdateQuota(ctx context.Context, p domain.Principal, u quota.Update) (int64, error) {
	if s.quotas == nil {
		return 0, errQuotaUnavailable
	}
	n, err := s.quotas.UpdateQuota(ctx, p, u)
	if err != nil {
		return 0, err
	}
	s.dispatch(ctx, domain.EventQuotaUpdated, "user", u.UserID, p.UserID(), nil)
	return n, nil
}

// Stats returns per-environment usage. Admin only.
func (s *Service) Stats(ctx context.Context, p domain.Principal) (*repository.Stats, error) {
	if !p.IsAdmin() {
		return nil, apperrors.ErrForbiddenf("read usage statistics")
	}
	return s.store.Stats(ctx)
}
