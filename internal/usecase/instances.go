package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/blueprint"
	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/domain"
	apperrors "github.com/CSC-IT-Center-for-Science/resource-cloud/internal/pkg/errors"
	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/pkg/logger"
	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/quota"
)

// CreateInstanceInput is an admission request.
type CreateInstanceInput struct {
	EnvironmentID string `json:"environment_id" binding:"required"`
	ClientIP      string `json:"client_ip,omitempty"`
}

// CreateInstance admits a new instance of an environment for p, freezes its
// provisioning configuration and queues the first driver update.
func (s *Service) CreateInstance(ctx context.Context, p domain.Principal, in CreateInstanceInput) (*domain.Instance, error) {
	env, err := s.store.GetEnvironment(ctx, in.EnvironmentID)
	if err != nil {
		return nil, err
	}
	tpl, err := s.store.GetTemplate(ctx, env.TemplateID)
	if err != nil {
		return nil, err
	}

	live, err := s.store.CountLiveInstances(ctx, p.UserID(), env.ID)
	if err != nil {
		return nil, fmt.Errorf("count live instances: %w", err)
	}
	if err := quota.Admit(p, env, live); err != nil {
		logger.Warn("Instance admission denied",
			zap.String("user_id", p.UserID()),
			zap.String("environment_id", env.ID),
			zap.Error(err),
		)
		return nil, err
	}

	cfg := blueprint.Resolve(tpl, env)
	if _, err := blueprint.MaximumLifetime(cfg); err != nil {
		return nil, err
	}

	inst := &domain.Instance{
		ID:                 newInstanceID(),
		UserID:             p.UserID(),
		EnvironmentID:      env.ID,
		State:              domain.StateQueued,
		ClientIP:           in.ClientIP,
		ProvisioningConfig: cfg,
		CreatedAt:          s.now().UTC(),
	}

	for attempt := 1; ; attempt++ {
		name, err := s.unusedName(ctx)
		if err != nil {
			return nil, err
		}
		inst.Name = name

		err = s.store.InTx(ctx, func(tx Tx) error {
			if err := tx.EnsureUser(ctx, p.UserID(), p.IsAdmin()); err != nil {
				return err
			}
			return tx.CreateInstance(ctx, inst)
		})
		if err == nil {
			break
		}
		// The existence check is advisory; the unique index decides.
		if apperrors.HasCode(err, apperrors.CodeInstanceNameConflict) && attempt < maxNameAttempts {
			continue
		}
		return nil, err
	}

	logger.Info("Instance created",
		zap.String("instance_id", inst.ID),
		zap.String("name", inst.Name),
		zap.String("user_id", inst.UserID),
		zap.String("environment_id", inst.EnvironmentID),
	)
	s.dispatch(ctx, domain.EventInstanceCreated, "instance", inst.ID, p.UserID(), nil)
	s.enqueueUpdate(ctx, inst.ID)
	return inst, nil
}

// unusedName draws names until one is not in use.
func (s *Service) unusedName(ctx context.Context) (string, error) {
	for {
		name := s.newName(s.namePrefix)
		taken, err := s.store.InstanceNameExists(ctx, name)
		if err != nil {
			return "", err
		}
		if !taken {
			return name, nil
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
	}
}

// RequestDelete flags an instance for deprovisioning on behalf of p. The
// owner, admins and managers of the environment's workspace may do so.
// Flagging twice keeps the first billing cutoff.
func (s *Service) RequestDelete(ctx context.Context, p domain.Principal, instanceID string) error {
	var flagged bool
	err := s.store.InTx(ctx, func(tx Tx) error {
		inst, err := tx.GetInstanceForUpdate(ctx, instanceID)
		if err != nil {
			return err
		}
		env, err := tx.GetEnvironment(ctx, inst.EnvironmentID)
		if err != nil {
			return err
		}
		if !domain.CanManageInstance(p, inst.UserID, env) {
			return apperrors.ErrForbiddenf("delete instance " + instanceID)
		}
		if inst.State == domain.StateDeleted {
			return apperrors.Conflict(apperrors.CodeInstanceAlreadyDeleted, "instance is already deleted").
				WithParams(map[string]interface{}{"instance_id": instanceID})
		}
		if inst.ToBeDeleted {
			return nil
		}
		inst.RequestDeletion(s.now().UTC())
		flagged = true
		return tx.UpdateInstance(ctx, inst)
	})
	if err != nil {
		return err
	}
	if !flagged {
		return nil
	}

	logger.Info("Instance deletion requested",
		zap.String("instance_id", instanceID),
		zap.String("actor", p.UserID()),
	)
	s.dispatch(ctx, domain.EventInstanceDeletionRequested, "instance", instanceID, p.UserID(), nil)
	s.enqueueUpdate(ctx, instanceID)
	return nil
}

// FlagForDeletion flags an instance whose lifetime ran out. The caller
// enqueues the follow-up update itself.
func (s *Service) FlagForDeletion(ctx context.Context, instanceID string) error {
	var flagged bool
	err := s.store.InTx(ctx, func(tx Tx) error {
		inst, err := tx.GetInstanceForUpdate(ctx, instanceID)
		if err != nil {
			return err
		}
		if !inst.CanRequestDeletion() {
			return nil
		}
		inst.RequestDeletion(s.now().UTC())
		flagged = true
		return tx.UpdateInstance(ctx, inst)
	})
	if err != nil {
		return err
	}
	if flagged {
		s.dispatch(ctx, domain.EventInstanceDeletionRequested, "instance", instanceID,
			domain.WorkerPrincipal().UserID(), nil)
	}
	return nil
}

// ArchiveEnvironment moves an environment to archived or deleted and flags
// every live instance of it for deletion. It returns how many instances
// were flagged.
func (s *Service) ArchiveEnvironment(ctx context.Context, p domain.Principal, environmentID string, status domain.EnvironmentStatus) (int, error) {
	if status != domain.EnvironmentArchived && status != domain.EnvironmentDeleted {
		return 0, apperrors.Validation(apperrors.CodeInvalidEnvStatus,
			fmt.Sprintf("environment status %q is not archived or deleted", status))
	}

	var flagged []string
	err := s.store.InTx(ctx, func(tx Tx) error {
		env, err := tx.GetEnvironment(ctx, environmentID)
		if err != nil {
			return err
		}
		if !p.IsAdmin() && !p.IsWorkspaceManager(env.WorkspaceID) {
			return apperrors.ErrForbiddenf("archive environment " + environmentID)
		}
		if err := tx.SetEnvironmentStatus(ctx, environmentID, status); err != nil {
			return err
		}
		flagged, err = tx.FlagEnvironmentInstances(ctx, environmentID, s.now().UTC())
		return err
	})
	if err != nil {
		return 0, err
	}

	logger.Info("Environment archived",
		zap.String("environment_id", environmentID),
		zap.String("status", string(status)),
		zap.Int("flagged_instances", len(flagged)),
	)
	payload, _ := domain.ArchivedPayload{Status: status, FlaggedInstances: len(flagged)}.ToJSON()
	s.dispatch(ctx, domain.EventEnvironmentArchived, "environment", environmentID, p.UserID(), payload)
	for _, id := range flagged {
		s.enqueueUpdate(ctx, id)
	}
	return len(flagged), nil
}

// UpdateConnectivity records a new client address for the instance and
// queues a connectivity refresh. Only configurations that allow it accept one.
func (s *Service) UpdateConnectivity(ctx context.Context, p domain.Principal, instanceID, clientIP string) error {
	err := s.store.InTx(ctx, func(tx Tx) error {
		inst, err := tx.GetInstanceForUpdate(ctx, instanceID)
		if err != nil {
			return err
		}
		env, err := tx.GetEnvironment(ctx, inst.EnvironmentID)
		if err != nil {
			return err
		}
		if !domain.CanManageInstance(p, inst.UserID, env) {
			return apperrors.ErrForbiddenf("update connectivity of instance " + instanceID)
		}
		if !blueprint.AllowUpdateConnectivity(inst.ProvisioningConfig) {
			return apperrors.Forbidden(apperrors.CodeConnectivityNotAllowed,
				"connectivity updates are not enabled for this environment")
		}
		if inst.State == domain.StateDeleted || inst.ToBeDeleted {
			return apperrors.Conflict(apperrors.CodeInstanceAlreadyDeleted, "instance is being deleted")
		}
		inst.ClientIP = clientIP
		return tx.UpdateInstance(ctx, inst)
	})
	if err != nil {
		return err
	}

	if err := s.enqueuer.EnqueueUpdateConnectivity(ctx, instanceID); err != nil {
		return fmt.Errorf("enqueue connectivity update: %w", err)
	}
	return nil
}

// DriverNameFor returns the driver responsible for the instance.
func (s *Service) DriverNameFor(ctx context.Context, instanceID string) (string, error) {
	return s.store.DriverNameFor(ctx, instanceID)
}
