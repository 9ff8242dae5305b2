package app

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/api/handlers"
	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/api/middleware"
	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/pkg/logger"
)

func newRouter(server *handlers.Server, jwtCfg middleware.JWTConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.AccessLog(), middleware.ErrorHandler())

	router.GET("/healthz", server.GetLiveness)
	router.GET("/readyz", server.GetReadiness)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1", middleware.JWTAuth(jwtCfg))
	{
		api.POST("/instances", server.CreateInstance)
		api.GET("/instances", server.ListInstances)
		api.GET("/instances/:id", server.GetInstance)
		api.DELETE("/instances/:id", server.DeleteInstance)
		api.GET("/instances/:id/logs", server.ListInstanceLogs)
		api.PUT("/instances/:id/connectivity", server.UpdateConnectivity)

		api.POST("/environments/:id/archive", server.ArchiveEnvironment)

		api.GET("/quota", server.GetQuota)
		api.PUT("/quota", server.UpdateQuota)
		api.GET("/stats", server.GetStats)
	}

	admin := api.Group("", middleware.RequireAdmin())
	{
		admin.GET("/plugins", server.ListPlugins)
		admin.Any("/log/level", gin.WrapH(logger.LevelHandler()))
	}

	worker := api.Group("/worker", middleware.RequireAdmin())
	{
		worker.GET("/instances/:id", server.GetWorkerInstance)
		worker.PATCH("/instances/:id", server.PatchWorkerInstance)
		worker.POST("/instances/:id/logs", server.PostWorkerLog)
		worker.DELETE("/instances/:id/logs", server.DeleteWorkerLogs)
		worker.GET("/instances/:id/driver", server.GetWorkerDriver)
	}
	return router
}
