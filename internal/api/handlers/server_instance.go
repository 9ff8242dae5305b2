package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/domain"
	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/usecase"
)

type listInstancesQuery struct {
	ShowOnlyMine   bool `form:"show_only_mine"`
	IncludeDeleted bool `form:"include_deleted"`
	Offset         int  `form:"offset" binding:"min=0"`
	Limit          int  `form:"limit" binding:"min=0,max=1000"`
}

type connectivityRequest struct {
	ClientIP string `json:"client_ip" binding:"omitempty,ip"`
}

type archiveRequest struct {
	Status domain.EnvironmentStatus `json:"status" binding:"required"`
}

// CreateInstance handles POST /instances.
func (s *Server) CreateInstance(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var in usecase.CreateInstanceInput
	if err := c.ShouldBindJSON(&in); err != nil {
		bindError(c, err)
		return
	}
	if in.ClientIP == "" {
		in.ClientIP = c.ClientIP()
	}

	inst, err := s.instances.CreateInstance(c.Request.Context(), p, in)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, inst)
}

// ListInstances handles GET /instances.
func (s *Server) ListInstances(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var q listInstancesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		bindError(c, err)
		return
	}

	views, err := s.instances.ListInstances(c.Request.Context(), p, usecase.ListOptions{
		ShowOnlyMine:   q.ShowOnlyMine,
		IncludeDeleted: q.IncludeDeleted,
		Offset:         q.Offset,
		Limit:          q.Limit,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, views)
}

// GetInstance handles GET /instances/:id.
func (s *Server) GetInstance(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	view, err := s.instances.GetInstance(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// DeleteInstance handles DELETE /instances/:id. Deletion is asynchronous:
// the instance is flagged and the driver tears it down later.
func (s *Server) DeleteInstance(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	if err := s.instances.RequestDelete(c.Request.Context(), p, c.Param("id")); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusAccepted)
}

// ListInstanceLogs handles GET /instances/:id/logs?log_type=.
func (s *Server) ListInstanceLogs(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	logs, err := s.instances.ListLogs(c.Request.Context(), p, c.Param("id"), c.Query("log_type"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, logs)
}

// UpdateConnectivity handles PUT /instances/:id/connectivity. Without a
// client_ip in the body the caller's address is used.
func (s *Server) UpdateConnectivity(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req connectivityRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			bindError(c, err)
			return
		}
	}
	if req.ClientIP == "" {
		req.ClientIP = c.ClientIP()
	}

	if err := s.instances.UpdateConnectivity(c.Request.Context(), p, c.Param("id"), req.ClientIP); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusAccepted)
}

// ArchiveEnvironment handles POST /environments/:id/archive.
func (s *Server) ArchiveEnvironment(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req archiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	n, err := s.instances.ArchiveEnvironment(c.Request.Context(), p, c.Param("id"), req.Status)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"environment_id": c.Param("id"), "status": req.Status, "flagged_instances": n})
}
