package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/domain"
	apperrors "github.com/CSC-IT-Center-for-Science/resource-cloud/internal/pkg/errors"
)

// Worker callback API. Every route here sits behind RequireAdmin; worker
// tokens carry admin rights.

// GetWorkerInstance handles GET /worker/instances/:id.
func (s *Server) GetWorkerInstance(c *gin.Context) {
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

// PatchWorkerInstance handles PATCH /worker/instances/:id.
func (s *Server) PatchWorkerInstance(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var patch domain.InstancePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		bindError(c, err)
		return
	}
	if patch.IsEmpty() {
		_ = c.Error(apperrors.Validation(apperrors.CodeValidationFailed, "patch changes nothing"))
		return
	}

	inst, err := s.instances.PatchInstance(c.Request.Context(), p, c.Param("id"), patch)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, inst)
}

// PostWorkerLog handles POST /worker/instances/:id/logs.
func (s *Server) PostWorkerLog(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var l domain.InstanceLog
	if err := c.ShouldBindJSON(&l); err != nil {
		bindError(c, err)
		return
	}
	if err := s.instances.AppendLog(c.Request.Context(), p, c.Param("id"), &l); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, l)
}

// DeleteWorkerLogs handles DELETE /worker/instances/:id/logs?log_type=.
func (s *Server) DeleteWorkerLogs(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	n, err := s.instances.PurgeLogs(c.Request.Context(), p, c.Param("id"), c.Query("log_type"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}

// GetWorkerDriver handles GET /worker/instances/:id/driver.
func (s *Server) GetWorkerDriver(c *gin.Context) {
	name, err := s.instances.DriverNameFor(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"instance_id": c.Param("id"), "driver": name})
}
