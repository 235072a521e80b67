// Package lifecycle turns app-state and session events into reconciliation,
// teardown and precision changes.
package lifecycle

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"courier/internal/domain"
	"courier/internal/location"
	"courier/internal/reconcile"
)

// EventKind identifies a lifecycle event.
type EventKind int

const (
	EventAppState EventKind = iota
	EventLogin
	EventLogout
	EventBoot
)

func (k EventKind) String() string {
	switch k {
	case EventAppState:
		return "app_state"
	case EventLogin:
		return "login"
	case EventLogout:
		return "logout"
	case EventBoot:
		return "boot"
	default:
		return "unknown"
	}
}

// Event is one input to the coordinator.
type Event struct {
	Kind     EventKind
	AppState domain.AppState // EventAppState
	Restored bool            // EventBoot: a session was found on disk
	Reason   string          // EventLogout
}

// Engine is the part of tracking.Engine the coordinator drives.
type Engine interface {
	StopTracking()
	IsCurrentlyTracking() bool
	SetTrackingPrecision(p location.Precision)
	OnTrackingChange(fn func(tracking bool))
}

// Reconciler is the part of reconcile.Reconciler the coordinator drives.
type Reconciler interface {
	Reconcile(ctx context.Context) reconcile.Result
	SetAuthenticated(ctx context.Context, authenticated bool) reconcile.Result
	Clear()
}

// OrderRefresher fetches the order list outside its regular interval.
type OrderRefresher interface {
	Refresh()
}

// Options configures a Coordinator.
type Options struct {
	// IdlePrecision is applied at start, after logout and whenever tracking stops.
	IdlePrecision location.Precision
	// ActivePrecision is applied whenever tracking starts.
	ActivePrecision location.Precision
	// Orders is kicked once the session is authenticated and when the app
	// returns to the foreground. Optional.
	Orders    OrderRefresher
	QueueSize int
}

// Coordinator consumes lifecycle events, normally on its Serve goroutine.
type Coordinator struct {
	logger     zerolog.Logger
	engine     Engine
	reconciler Reconciler
	opts       Options
	events     chan Event

	mu       sync.Mutex
	appState domain.AppState
	handled  int

	boot sync.Once
}

// New creates a Coordinator. The app is assumed to start in the foreground.
func New(logger zerolog.Logger, engine Engine, reconciler Reconciler, opts Options) *Coordinator {
	if opts.IdlePrecision == (location.Precision{}) {
		opts.IdlePrecision = location.DefaultPrecision
	}
	if opts.ActivePrecision == (location.Precision{}) {
		opts.ActivePrecision = location.PrecisionHigh
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	c := &Coordinator{
		logger:     logger,
		engine:     engine,
		reconciler: reconciler,
		opts:       opts,
		events:     make(chan Event, opts.QueueSize),
		appState:   domain.AppStateActive,
	}
	engine.OnTrackingChange(c.trackingChanged)
	return c
}

// Notify queues ev without blocking. An event that finds the queue full is
// handled on the caller's goroutine instead, so none is lost. Handlers are
// safe to run alongside Serve: the reconciler serializes its own passes.
// Producers must not call Notify from inside a reconciliation pass, except
// for logout, whose handler never waits for a pass.
func (c *Coordinator) Notify(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.logger.Warn().Stringer("event", ev.Kind).Msg("[LIFECYCLE] Event queue full, handling inline")
		c.handle(context.Background(), ev)
	}
}

// OnAppStateChange queues an app-state transition.
func (c *Coordinator) OnAppStateChange(state domain.AppState) {
	c.Notify(Event{Kind: EventAppState, AppState: state})
}

// OnLogin queues a successful login.
func (c *Coordinator) OnLogin() {
	c.Notify(Event{Kind: EventLogin})
}

// OnLogout queues a logout. It matches the transport's forced-logout hook.
func (c *Coordinator) OnLogout(reason error) {
	ev := Event{Kind: EventLogout}
	if reason != nil {
		ev.Reason = reason.Error()
	}
	c.Notify(ev)
}

// Boot queues the start-up reconciliation. Only the first call has any effect.
func (c *Coordinator) Boot(restored bool) {
	c.Notify(Event{Kind: EventBoot, Restored: restored})
}

// AppState returns the last app state seen.
func (c *Coordinator) AppState() domain.AppState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.appState
}

// Handled returns the number of events processed.
func (c *Coordinator) Handled() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handled
}

// Serve implements suture.Service.
func (c *Coordinator) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-c.events:
			c.handle(ctx, ev)
		}
	}
}

func (c *Coordinator) String() string { return "lifecycle-coordinator" }

func (c *Coordinator) handle(ctx context.Context, ev Event) {
	switch ev.Kind {
	case EventAppState:
		c.onAppState(ctx, ev.AppState)
	case EventLogin:
		c.logger.Info().Msg("[LIFECYCLE] Logged in")
		c.reconciler.SetAuthenticated(ctx, true)
		c.refreshOrders()
	case EventLogout:
		c.onLogout(ev.Reason)
	case EventBoot:
		c.boot.Do(func() {
			c.logger.Info().Bool("restored_session", ev.Restored).Msg("[LIFECYCLE] Boot reconciliation")
			if !ev.Restored {
				c.reconciler.Reconcile(ctx)
				return
			}
			c.reconciler.SetAuthenticated(ctx, true)
			c.refreshOrders()
		})
	}

	c.mu.Lock()
	c.handled++
	c.mu.Unlock()
}

func (c *Coordinator) onAppState(ctx context.Context, state domain.AppState) {
	if !state.Valid() {
		c.logger.Warn().Str("state", string(state)).Msg("[LIFECYCLE] Ignoring unknown app state")
		return
	}

	c.mu.Lock()
	prev := c.appState
	c.appState = state
	c.mu.Unlock()

	if state != domain.AppStateActive || prev == domain.AppStateActive {
		return
	}
	c.logger.Info().Str("from", string(prev)).Msg("[LIFECYCLE] App became active, reconciling")
	c.reconciler.Reconcile(ctx)
	c.refreshOrders()
}

// onLogout clears the reconciler before stopping the engine; see
// reconcile.Reconciler.Clear.
func (c *Coordinator) onLogout(reason string) {
	c.logger.Info().Str("reason", reason).Msg("[LIFECYCLE] Logged out, stopping tracking")
	c.reconciler.Clear()
	c.engine.StopTracking()
	c.engine.SetTrackingPrecision(c.opts.IdlePrecision)
}

// refreshOrders runs after the reconciler has seen the session, so the poller
// does not skip the fetch as unauthenticated.
func (c *Coordinator) refreshOrders() {
	if c.opts.Orders != nil {
		c.opts.Orders.Refresh()
	}
}

// trackingChanged follows the engine's Idle↔Tracking edges, whichever
// component caused them.
func (c *Coordinator) trackingChanged(tracking bool) {
	if tracking != c.engine.IsCurrentlyTracking() {
		// A later edge already superseded this one.
		return
	}
	if tracking {
		c.logger.Debug().Msg("[LIFECYCLE] Tracking active, raising precision")
		c.engine.SetTrackingPrecision(c.opts.ActivePrecision)
		return
	}
	c.engine.SetTrackingPrecision(c.opts.IdlePrecision)
}
