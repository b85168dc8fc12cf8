package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tesseract-hub/platform-health-monitor/internal/config"
	"github.com/tesseract-hub/platform-health-monitor/internal/middleware"
)

// NewRouter wires middleware and routes
func NewRouter(handler *Handler, cfg *config.Config) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.CORS(cfg.CORSAllowedOrigins))

	router.GET("/health", handler.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws", handler.WebSocket)

	api := router.Group("/api/v1")
	api.Use(middleware.RateLimit(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
	{
		api.GET("/status", handler.GetStatus)
		api.GET("/platforms", handler.GetPlatforms)
		api.GET("/platforms/:name", handler.GetPlatform)
		api.POST("/platforms/:name/restart", handler.RestartPlatform)
		api.GET("/incidents", handler.GetIncidents)
		api.GET("/report", handler.GetReport)
		api.GET("/stream", handler.SSEStream)
	}

	return router
}
