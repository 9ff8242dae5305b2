package domain

import "slices"

// Principal is the authenticated caller, supplied by the authentication layer.
type Principal interface {
	UserID() string
	IsAdmin() bool
	IsWorkspaceManager(workspaceID string) bool
}

// User is the concrete Principal built from a verified token.
type User struct {
	ID                string   `json:"id"`
	Admin             bool     `json:"admin"`
	ManagedWorkspaces []string `json:"managed_workspaces,omitempty"`
	// Worker marks worker processes and drivers, as opposed to people.
	Worker bool `json:"worker,omitempty"`
}

func (u User) UserID() string { return u.ID }

func (u User) IsAdmin() bool { return u.Admin }

func (u User) IsWorker() bool { return u.Worker }

func (u User) IsWorkspaceManager(workspaceID string) bool {
	return slices.Contains(u.ManagedWorkspaces, workspaceID)
}

// WorkerPrincipal is the identity used by worker processes and drivers when
// they report back. It holds admin rights.
func WorkerPrincipal() Principal {
	return User{ID: "worker", Admin: true, Worker: true}
}

// IsWorker reports whether p is a worker or driver identity.
func IsWorker(p Principal) bool {
	w, ok := p.(interface{ IsWorker() bool })
	return ok && w.IsWorker()
}

// CanRetryFailed reports whether p may move a failed instance back to
// queued: admins only, and never on a driver's report.
func CanRetryFailed(p Principal) bool {
	return p.IsAdmin() && !IsWorker(p)
}

// CanManageInstance reports whether p may act on an instance of env owned by ownerID.
func CanManageInstance(p Principal, ownerID string, env *Environment) bool {
	if p.IsAdmin() || p.UserID() == ownerID {
		return true
	}
	return env != nil && p.IsWorkspaceManager(env.WorkspaceID)
}
