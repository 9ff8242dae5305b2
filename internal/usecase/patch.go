package usecase

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/domain"
	apperrors "github.com/CSC-IT-Center-for-Science/resource-cloud/internal/pkg/errors"
	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/pkg/logger"
)

// PatchInstance applies a driver or admin report to an instance. Only admins
// (which includes the worker identity) may patch.
//
// A state change goes through the lifecycle state machine; entering deleted
// purges the instance's logs in the same transaction. Empty strings in
// error_msg, public_ip and instance_data leave the field untouched.
func (s *Service) PatchInstance(ctx context.Context, p domain.Principal, instanceID string, patch domain.InstancePatch) (*domain.Instance, error) {
	if !p.IsAdmin() {
		return nil, apperrors.ErrForbiddenf("patch instances")
	}

	var target domain.InstanceState
	if patch.State != nil {
		st, err := domain.ParseInstanceState(*patch.State)
		if err != nil {
			return nil, err
		}
		target = st
	}

	var (
		inst      *domain.Instance
		from      domain.InstanceState
		flagged   bool
		purged    int64
		purgeLogs bool
	)
	err := s.store.InTx(ctx, func(tx Tx) error {
		var err error
		inst, err = tx.GetInstanceForUpdate(ctx, instanceID)
		if err != nil {
			return err
		}
		from = inst.State
		now := s.now().UTC()

		if target != "" {
			purgeLogs, err = inst.ApplyState(target, now, domain.CanRetryFailed(p))
			if err != nil {
				return err
			}
		}
		if patch.ToBeDeleted != nil && *patch.ToBeDeleted && inst.CanRequestDeletion() {
			inst.RequestDeletion(now)
			flagged = true
		}
		if patch.LogFetchPending != nil {
			inst.LogFetchPending = *patch.LogFetchPending
		}
		if patch.ErrorMsg != nil && *patch.ErrorMsg != "" {
			inst.ErrorMsg = *patch.ErrorMsg
		}
		if patch.PublicIP != nil && *patch.PublicIP != "" {
			inst.PublicIP = *patch.PublicIP
		}
		if patch.InstanceData != nil && *patch.InstanceData != "" {
			if data, ok := decodeInstanceData(*patch.InstanceData); ok {
				inst.InstanceData = data
			} else {
				logger.Warn("Ignoring invalid instance_data",
					zap.String("instance_id", instanceID),
					zap.String("instance_data", *patch.InstanceData),
				)
			}
		}

		if err := tx.UpdateInstance(ctx, inst); err != nil {
			return err
		}
		if purgeLogs {
			purged, err = tx.DeleteLogs(ctx, instanceID, "")
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if purgeLogs && purged == 0 && from != domain.StateDeleted {
		logger.Warn("No log entries to purge", zap.String("instance_id", instanceID))
	}
	if inst.State != from {
		logger.Info("Instance state changed",
			zap.String("instance_id", instanceID),
			zap.String("from", string(from)),
			zap.String("to", string(inst.State)),
			zap.String("actor", p.UserID()),
		)
		payload, _ := domain.StateChangedPayload{From: from, To: inst.State}.ToJSON()
		s.dispatch(ctx, domain.EventInstanceStateChanged, "instance", instanceID, p.UserID(), payload)
	}
	if flagged {
		s.dispatch(ctx, domain.EventInstanceDeletionRequested, "instance", instanceID, p.UserID(), nil)
	}
	return inst, nil
}

// decodeInstanceData accepts only a JSON object.
func decodeInstanceData(raw string) (map[string]any, bool) {
	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err != nil || data == nil {
		return nil, false
	}
	return data, true
}

// Reporter lets in-process drivers read and patch instances with the worker
// identity. It implements driver.InstanceReporter.
type Reporter struct {
	svc *Service
}

// Reporter returns the in-process driver callback surface.
func (s *Service) Reporter() *Reporter {
	return &Reporter{svc: s}
}

// GetInstance loads an instance without a scope check.
func (r *Reporter) GetInstance(ctx context.Context, instanceID string) (*domain.Instance, error) {
	return r.svc.store.GetInstance(ctx, instanceID)
}

// PatchInstance patches as the worker.
func (r *Reporter) PatchInstance(ctx context.Context, instanceID string, patch domain.InstancePatch) error {
	_, err := r.svc.PatchInstance(ctx, domain.WorkerPrincipal(), instanceID, patch)
	return err
}

// AppendLog appends a log record as the worker.
func (r *Reporter) AppendLog(ctx context.Context, l *domain.InstanceLog) error {
	return r.svc.AppendLog(ctx, domain.WorkerPrincipal(), l.InstanceID, l)
}
