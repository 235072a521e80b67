package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coder/quartz"
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"courier/internal/app"
	"courier/internal/config"
	"courier/internal/handler"
	"courier/internal/logging"
	internalRedis "courier/internal/redis"
	"courier/internal/repository/postgres"
	"courier/internal/service"
)

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Log)
	gin.SetMode(gin.ReleaseMode)

	connectCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// The agent must exist before the DB and Redis clients so they get instrumented.
	nrApp := startNewRelic(cfg.NewRelic, logger)

	db, err := app.NewDatabase(connectCtx, cfg.Database, nrApp)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	logger.Info().Msg("Connected to PostgreSQL")

	if cfg.Database.Migrate {
		if err := app.Migrate(db, logging.Component(logger, "db")); err != nil {
			logger.Fatal().Err(err).Msg("Failed to migrate database")
		}
	}

	redisClient, err := app.NewRedisClient(connectCtx, cfg.Redis, nrApp)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to redis")
	}
	defer redisClient.Close()
	logger.Info().Msg("Connected to Redis")

	server := wireServer(db, redisClient, nrApp, cfg, logger)

	go func() {
		logger.Info().Str("port", cfg.Server.Port).Msg("Starting gateway")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Server error")
		}
	}()

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()
	logger.Info().Msg("Shutting down gateway")

	drainCtx, drainCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer drainCancel()

	if err := server.Shutdown(drainCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	if nrApp != nil {
		nrApp.Shutdown(5 * time.Second)
	}

	logger.Info().Msg("Gateway stopped")
}

// startNewRelic returns nil when APM is disabled or fails to start.
func startNewRelic(cfg config.NewRelicConfig, logger zerolog.Logger) *newrelic.Application {
	if !cfg.Enabled || cfg.LicenseKey == "" {
		return nil
	}
	nrApp, err := newrelic.NewApplication(
		newrelic.ConfigAppName(cfg.AppName),
		newrelic.ConfigLicense(cfg.LicenseKey),
		newrelic.ConfigDistributedTracerEnabled(true),
		newrelic.ConfigAppLogForwardingEnabled(true),
	)
	if err != nil {
		logger.Error().Err(err).Msg("New Relic disabled")
		return nil
	}
	logger.Info().Str("app", cfg.AppName).Msg("New Relic enabled")
	return nrApp
}

// wireServer builds the stores, services and router behind the gateway listener.
func wireServer(db *sql.DB, redisClient *redis.Client, nrApp *newrelic.Application, cfg *config.ServerConfig, logger zerolog.Logger) *http.Server {
	clock := quartz.NewReal()

	locationStore := internalRedis.NewLocationStore(redisClient)
	lockStore := internalRedis.NewLockStore(redisClient)
	sessionStore := internalRedis.NewSessionStore(redisClient)

	driverRepo := postgres.NewDriverRepository(db)
	orderRepo := postgres.NewOrderRepository(db)
	locationRepo := postgres.NewLocationRepository(db)

	authService := service.NewAuthService(driverRepo, sessionStore, service.AuthOptions{
		Secret:     []byte(cfg.Auth.JWTSecret),
		AccessTTL:  cfg.Auth.AccessTTL,
		RefreshTTL: cfg.Auth.RefreshTTL,
		Clock:      clock,
	})
	driverService := service.NewDriverService(driverRepo)
	orderService := service.NewOrderService(orderRepo, driverRepo, locationStore, lockStore, clock)
	trackingService := service.NewTrackingService(orderRepo, locationRepo, driverRepo, locationStore, clock)

	router := app.NewRouter(app.RouterDeps{
		Logger:          logging.Component(logger, "http"),
		AuthHandler:     handler.NewAuthHandler(authService),
		DriverHandler:   handler.NewDriverHandler(driverService),
		OrderHandler:    handler.NewOrderHandler(orderService),
		TrackingHandler: handler.NewTrackingHandler(trackingService),
		TokenVerifier:   authService,
		RedisClient:     redisClient,
		NewRelicApp:     nrApp,
	})

	return &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
}
