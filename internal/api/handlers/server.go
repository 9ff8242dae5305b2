// Package handlers implements the HTTP surface of the orchestration core:
// the user-facing instance API and the worker callback API used by
// out-of-process drivers.
//
// Handlers translate HTTP to use case calls and nothing else. Errors are
// attached with c.Error and rendered by middleware.ErrorHandler.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/api/middleware"
	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/domain"
	apperrors "github.com/CSC-IT-Center-for-Science/resource-cloud/internal/pkg/errors"
	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/quota"
	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/repository"
	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/usecase"
)

// InstanceService is the use case surface the handlers call.
// *usecase.Service implements it.
type InstanceService interface {
	CreateInstance(ctx context.Context, p domain.Principal, in usecase.CreateInstanceInput) (*domain.Instance, error)
	RequestDelete(ctx context.Context, p domain.Principal, instanceID string) error
	ListInstances(ctx context.Context, p domain.Principal, opts usecase.ListOptions) ([]usecase.InstanceView, error)
	GetInstance(ctx context.Context, p domain.Principal, instanceID string) (*usecase.InstanceView, error)
	PatchInstance(ctx context.Context, p domain.Principal, instanceID string, patch domain.InstancePatch) (*domain.Instance, error)
	UpdateConnectivity(ctx context.Context, p domain.Principal, instanceID, clientIP string) error
	ArchiveEnvironment(ctx context.Context, p domain.Principal, environmentID string, status domain.EnvironmentStatus) (int, error)
	DriverNameFor(ctx context.Context, instanceID string) (string, error)

	AppendLog(ctx context.Context, p domain.Principal, instanceID string, l *domain.InstanceLog) error
	PurgeLogs(ctx context.Context, p domain.Principal, instanceID, logType string) (int64, error)
	ListLogs(ctx context.Context, p domain.Principal, instanceID, logType string) ([]*domain.InstanceLog, error)

	GetQuota(ctx context.Context, p domain.Principal, userID string) (quota.Usage, error)
	UpdateQuota(ctx context.Context, p domain.Principal, u quota.Update) (int64, error)
	Stats(ctx context.Context, p domain.Principal) (*repository.Stats, error)
}

var _ InstanceService = (*usecase.Service)(nil)

// Pinger reports database reachability for the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PoolStats reports worker pool occupancy.
type PoolStats interface {
	Metrics() map[string]interface{}
}

// PluginLister reads the driver configurations published by the workers.
type PluginLister interface {
	ListPlugins(ctx context.Context) ([]repository.Plugin, error)
}

// Server holds the handler dependencies.
type Server struct {
	instances InstanceService
	plugins   PluginLister
	db        Pinger
	pools     PoolStats
}

// ServerDeps holds all dependencies for creating a Server.
type ServerDeps struct {
	Instances InstanceService
	Plugins   PluginLister
	DB        Pinger
	Pools     PoolStats
}

// NewServer creates a new Server with all dependencies.
func NewServer(deps ServerDeps) *Server {
	return &Server{
		instances: deps.Instances,
		plugins:   deps.Plugins,
		db:        deps.DB,
		pools:     deps.Pools,
	}
}

// principal returns the authenticated caller. Routes without JWTAuth in
// front of them answer 401.
func principal(c *gin.Context) (domain.Principal, bool) {
	p, ok := middleware.Principal(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"code":    "UNAUTHORIZED",
			"message": "no authenticated principal",
		})
	}
	return p, ok
}

// bindError reports a request body or query that failed to bind.
func bindError(c *gin.Context, err error) {
	_ = c.Error(apperrors.Validation(apperrors.CodeValidationFailed, err.Error()))
}
