package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/feichai0017/text-extractor/api/handlers"
	"github.com/feichai0017/text-extractor/api/middleware"
	"github.com/feichai0017/text-extractor/config"
	"github.com/feichai0017/text-extractor/pkg/logger"
)

// SetupRoutes registers middleware and all routes.
func SetupRoutes(r *gin.Engine, h *handlers.Handlers, cfg config.ServerConfig, log logger.Logger) {
	r.Use(middleware.CORS(cfg.AllowOrigins))
	r.Use(middleware.RequestLogger(log))

	if h.Health != nil {
		r.GET("/healthz", h.Health.Check)
	}

	v1 := r.Group("/api/v1")
	{
		v1.POST("/extract", h.Extraction.Extract)
		v1.POST("/extract/async", h.Extraction.ExtractAsync)
	}

	tasks := v1.Group("/tasks")
	{
		tasks.GET("/:taskId", h.Extraction.GetStatus)
		tasks.GET("/:taskId/result", h.Extraction.GetResult)
		tasks.DELETE("/:taskId", h.Extraction.CancelTask)
	}
}
