package usecase

import (
	"context"

	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/domain"
	apperrors "github.com/CSC-IT-Center-for-Science/resource-cloud/internal/pkg/errors"
)

// AppendLog stores a log record reported for the instance. A running record
// replaces the previous one.
func (s *Service) AppendLog(ctx context.Context, p domain.Principal, instanceID string, l *domain.InstanceLog) error {
	if !p.IsAdmin() {
		return apperrors.ErrForbiddenf("append instance logs")
	}
	if err := l.Validate(); err != nil {
		return err
	}
	if _, err := s.store.GetInstance(ctx, instanceID); err != nil {
		return err
	}
	l.InstanceID = instanceID
	return s.store.AppendLog(ctx, l)
}

// PurgeLogs removes the instance's logs, only those of logType when set.
func (s *Service) PurgeLogs(ctx context.Context, p domain.Principal, instanceID, logType string) (int64, error) {
	if !p.IsAdmin() {
		return 0, apperrors.ErrForbiddenf("purge instance logs")
	}
	if _, err := s.store.GetInstance(ctx, instanceID); err != nil {
		return 0, err
	}
	return s.store.DeleteLogs(ctx, instanceID, logType)
}

// ListLogs returns the instance's logs oldest first if p may see the instance.
func (s *Service) ListLogs(ctx context.Context, p domain.Principal, instanceID, logType string) ([]*domain.InstanceLog, error) {
	if _, err := s.visibleInstance(ctx, p, instanceID); err != nil {
		return nil, err
	}
	logs, err := s.store.ListLogs(ctx, instanceID, logType)
	if err != nil {
		return nil, err
	}
	if logs == nil {
		logs = []*domain.InstanceLog{}
	}
	return logs, nil
}
