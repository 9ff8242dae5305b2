package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Health is the body of the probe endpoints.
type Health struct {
	Status string            `json:"status"`
	Checks map[string]string      `json:"checks,omitempty"`
	Pools  map[string]interface{} `json:"pools,omitempty"`
}

// GetLiveness handles GET /healthz.
func (s *Server) GetLiveness(c *gin.Context) {
	c.JSON(http.StatusOK, Health{Status: "ok"})
}

// GetReadiness handles GET /readyz.
func (s *Server) GetReadiness(c *gin.Context) {
	checks := make(map[string]string)
	healthy := true

	if s.db == nil {
		checks["database"] = "not configured"
		healthy = false
	} else if err := s.db.Ping(c.Request.Context()); err != nil {
		checks["database"] = "error"
		healthy = false
	} else {
		checks["database"] = "ok"
	}

	body := Health{Status: "ok", Checks: checks}
	if s.pools != nil {
		body.Pools = s.pools.Metrics()
	}
	if !healthy {
		body.Status = "degraded"
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	c.JSON(http.StatusOK, body)
}
