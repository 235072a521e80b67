package app

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"courier/internal/handler"
	"courier/internal/middleware"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	Logger          zerolog.Logger
	AuthHandler     *handler.AuthHandler
	DriverHandler   *handler.DriverHandler
	OrderHandler    *handler.OrderHandler
	TrackingHandler *handler.TrackingHandler
	TokenVerifier   middleware.TokenVerifier
	RedisClient     *redis.Client
	NewRelicApp     *newrelic.Application
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware.
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.CORSMiddleware())

	// Add New Relic middleware if enabled.
	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Auth routes.
	auth := router.Group("/auth")
	{
		auth.POST("/login", deps.AuthHandler.Login)
		auth.POST("/refresh", deps.AuthHandler.Refresh)
		auth.POST("/logout", deps.AuthHandler.Logout)
	}

	// Driver app routes, authenticated by access token.
	driver := router.Group("/driver")
	driver.Use(middleware.AuthMiddleware(deps.TokenVerifier))
	driver.Use(middleware.IdempotencyMiddleware(deps.RedisClient))
	{
		driver.GET("/orders", deps.OrderHandler.ListDriverOrders)
		driver.POST("/orders/:id/status", deps.OrderHandler.UpdateStatus)
		driver.POST("/tracking/update-location", deps.TrackingHandler.UpdateLocation)
	}

	// Dispatch and customer reads.
	orders := router.Group("/orders")
	{
		orders.GET("/:id/location", deps.TrackingHandler.GetOrderLocation)
		orders.GET("/:id/locations", deps.TrackingHandler.GetOrderHistory)
	}

	// API v1 routes.
	v1 := router.Group("/v1")
	v1.Use(middleware.IdempotencyMiddleware(deps.RedisClient))
	{
		drivers := v1.Group("/drivers")
		{
			drivers.POST("/register", deps.DriverHandler.Register)
			drivers.GET("/:id", deps.DriverHandler.GetDriver)
		}

		v1.POST("/orders", deps.OrderHandler.CreateOrder)
	}

	return router
}
