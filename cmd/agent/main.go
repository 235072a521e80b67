package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coder/quartz"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"courier/internal/agentapi"
	"courier/internal/config"
	"courier/internal/credentials"
	"courier/internal/lifecycle"
	"courier/internal/location"
	"courier/internal/logging"
	"courier/internal/orders"
	"courier/internal/reconcile"
	"courier/internal/session"
	"courier/internal/supervisor"
	"courier/internal/telemetry"
	"courier/internal/tracking"
	"courier/internal/transport"
)

var errCredentialRemoved = errors.New("credential file removed")

func main() {
	cfg, err := config.LoadAgent()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Log)
	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("agent exited with error")
	}
	logger.Info().Msg("Agent exited")
}

func run(cfg *config.AgentConfig, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := quartz.NewReal()

	// Session storage and the authenticated transport.
	store := credentials.NewFileStore(cfg.Credentials.Path)

	var coordinator *lifecycle.Coordinator
	api := transport.New(logging.Component(logger, "transport"), store, transport.Options{
		BaseURL:            cfg.API.BaseURL,
		Timeout:            cfg.API.Timeout,
		DedupWindow:        cfg.API.DedupWindow,
		MaxRefreshAttempts: cfg.API.MaxRefreshAttempts,
		Clock:              clock,
		OnForcedLogout:     func(reason error) { coordinator.OnLogout(reason) },
	})

	// Location sampling.
	providers, err := buildProviders(cfg.Location, clock)
	if err != nil {
		return err
	}
	providers = location.SelectProviders(ctx, logging.Component(logger, "location"), providers)
	if len(providers) == 0 {
		logger.Warn().Msg("No location provider available; tracking will report nothing until one appears")
	}
	sampler := location.NewSampler(logging.Component(logger, "sampler"), clock, providers, buildPermission(cfg.Location), location.SamplerOptions{
		FixTimeout: cfg.Location.FixTimeout,
		MaxFixAge:  cfg.Location.MaxFixAge,
	})

	precision, err := location.ParsePrecision(cfg.Tracking.Precision)
	if err != nil {
		return err
	}
	policy, err := telemetry.ParseEmptyOrdersPolicy(cfg.Tracking.EmptyOrdersPolicy)
	if err != nil {
		return err
	}

	// Tracking core.
	reporter := telemetry.NewReporter(logging.Component(logger, "reporter"), api, telemetry.ReporterOptions{
		EmptyOrders:   policy,
		PlaceholderID: cfg.Tracking.PlaceholderOrderID,
	})
	engine := tracking.NewEngine(logging.Component(logger, "tracking"), clock, sampler, location.NewFilter(precision), reporter, tracking.Options{
		PollInterval:         cfg.Tracking.PollInterval,
		StopOnPermissionLoss: cfg.Tracking.StopOnPermissionLoss,
	})
	reconciler := reconcile.New(logging.Component(logger, "reconcile"), clock, engine, reconcile.Options{
		SafetyNetInterval: cfg.Tracking.SafetyNetInterval,
	})
	orderClient := orders.NewClient(api)
	poller := orders.NewPoller(logging.Component(logger, "orders"), clock, orderClient, reconciler, cfg.Orders.PollInterval)
	coordinator = lifecycle.New(logging.Component(logger, "lifecycle"), engine, reconciler, lifecycle.Options{
		IdlePrecision: precision,
		Orders:        poller,
	})

	// Collaborators.
	sessions := session.NewManager(logging.Component(logger, "session"), api, store)
	watcher := credentials.NewWatcher(store, logging.Component(logger, "credentials"), func(present bool) {
		if present {
			coordinator.OnLogin()
			return
		}
		coordinator.OnLogout(errCredentialRemoved)
	})

	gin.SetMode(gin.ReleaseMode)
	handler := agentapi.NewHandler(engine, coordinator, sessions, orderClient, poller, reconciler)
	statusServer := &http.Server{
		Addr:              cfg.Status.Addr,
		Handler:           agentapi.NewRouter(logging.Component(logger, "api"), handler),
		ReadHeaderTimeout: 5 * time.Second,
	}

	tree := supervisor.NewTree(logging.Component(logger, "supervisor"), supervisor.DefaultTreeConfig())
	tree.AddTrackingService(coordinator)
	tree.AddTrackingService(poller)
	tree.AddTrackingService(watcher)
	tree.AddAPIService(supervisor.NewHTTPServerService("status-api", statusServer, 5*time.Second))

	restored := sessions.Authenticated(ctx)
	coordinator.Boot(restored)

	logger.Info().
		Str("api", cfg.API.BaseURL).
		Str("status_addr", cfg.Status.Addr).
		Bool("restored_session", restored).
		Msg("Starting agent")

	err = tree.Serve(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	reconciler.Close()
	if serr := engine.Shutdown(shutdownCtx); serr != nil {
		logger.Warn().Err(serr).Msg("Tracking did not stop in time")
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func buildProviders(cfg config.LocationConfig, clock quartz.Clock) ([]location.Provider, error) {
	var providers []location.Provider
	for _, name := range cfg.Providers {
		switch name {
		case "gpsd":
			providers = append(providers, location.NewGPSDProvider(cfg.GPSDAddr, clock))
		case "replay":
			if cfg.ReplayFile == "" {
				continue
			}
			p, err := location.LoadReplayProvider(cfg.ReplayFile, clock)
			if err != nil {
				return nil, fmt.Errorf("load replay track: %w", err)
			}
			providers = append(providers, p)
		}
	}
	return providers, nil
}

func buildPermission(cfg config.LocationConfig) location.Permission {
	switch cfg.Permission {
	case "denied":
		return location.StaticPermission(false)
	case "consent_file":
		return location.ConsentFilePermission{Path: cfg.ConsentFile}
	default:
		return location.StaticPermission(true)
	}
}
