package quota

import (
	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/domain"
	apperrors "github.com/CSC-IT-Center-for-Science/resource-cloud/internal/pkg/errors"
)

// Admit decides whether p may launch a new instance of env. live is the
// number of non-deleted instances p already holds in env.
//
// Disabled environments are open to admins and the workspace's managers for
// testing. A user holds at most one live instance per environment.
func Admit(p domain.Principal, env *domain.Environment, live int) error {
	if !env.IsActive() {
		return apperrors.ErrEnvironmentNotFoundf(env.ID)
	}
	if !env.IsEnabled && !p.IsAdmin() && !p.IsWorkspaceManager(env.WorkspaceID) {
		return apperrors.ErrEnvironmentDisabled(env.ID)
	}
	if live > 0 {
		return apperrors.ErrInstanceLimitReached(env.ID)
	}
	return nil
}
