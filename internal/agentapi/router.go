package agentapi

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"courier/internal/middleware"
)

// NewRouter creates the agent API router.
func NewRouter(logger zerolog.Logger, h *Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(logger))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/status", h.Status)
	router.POST("/app-state", h.AppState)

	sessions := router.Group("/session")
	{
		sessions.POST("/login", h.Login)
		sessions.POST("/logout", h.Logout)
	}

	router.POST("/orders/:id/status", h.SubmitOrderStatus)
	router.PUT("/tracking/precision", h.SetPrecision)

	return router
}
