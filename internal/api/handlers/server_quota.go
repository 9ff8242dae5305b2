package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/quota"
	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/repository"
)

// GetQuota handles GET /quota?user_id=.
func (s *Server) GetQuota(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	usage, err := s.instances.GetQuota(c.Request.Context(), p, c.Query("user_id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, usage)
}

// UpdateQuota handles PUT /quota. value is a string and is parsed by the
// quota engine.
func (s *Server) UpdateQuota(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var u quota.Update
	if err := c.ShouldBindJSON(&u); err != nil {
		bindError(c, err)
		return
	}

	n, err := s.instances.UpdateQuota(c.Request.Context(), p, u)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

// GetStats handles GET /stats.
func (s *Server) GetStats(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	stats, err := s.instances.Stats(c.Request.Context(), p)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// ListPlugins handles GET /plugins.
func (s *Server) ListPlugins(c *gin.Context) {
	plugins, err := s.plugins.ListPlugins(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	if plugins == nil {
		plugins = []repository.Plugin{}
	}
	c.JSON(http.StatusOK, plugins)
}
