package lifecycle

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courier/internal/domain"
	"courier/internal/location"
	"courier/internal/reconcile"
	"courier/internal/tracking"
)

// callLog records calls across the fakes so tests can assert ordering.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *callLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.calls)
}

type fakeEngine struct {
	log       *callLog
	mu        sync.Mutex
	tracking  bool
	stops     int
	precision location.Precision
	onChange  func(tracking bool)
}

func (e *fakeEngine) StopTracking() {
	e.log.add("stop_tracking")
	e.mu.Lock()
	e.stops++
	was := e.tracking
	e.tracking = false
	e.mu.Unlock()
	if was {
		e.fire(false)
	}
}

func (e *fakeEngine) IsCurrentlyTracking() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tracking
}

func (e *fakeEngine) SetTrackingPrecision(p location.Precision) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.precision = p
}

func (e *fakeEngine) OnTrackingChange(fn func(tracking bool)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onChange = fn
}

// setTracking flips the state the way a reconcile pass or the poll would.
func (e *fakeEngine) setTracking(tracking bool) {
	e.mu.Lock()
	e.tracking = tracking
	e.mu.Unlock()
	e.fire(tracking)
}

func (e *fakeEngine) fire(tracking bool) {
	e.mu.Lock()
	fn := e.onChange
	e.mu.Unlock()
	if fn != nil {
		fn(tracking)
	}
}

func (e *fakeEngine) snapshot() (stops int, p location.Precision) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stops, e.precision
}

type fakeReconciler struct {
	log        *callLog
	mu         sync.Mutex
	reconciles int
	auth       []bool
	clears     int
}

func (r *fakeReconciler) Reconcile(context.Context) reconcile.Result {
	r.log.add("reconcile")
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reconciles++
	return reconcile.Result{}
}

func (r *fakeReconciler) SetAuthenticated(_ context.Context, authenticated bool) reconcile.Result {
	if authenticated {
		r.log.add("authenticate")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.auth = append(r.auth, authenticated)
	r.reconciles++
	return reconcile.Result{}
}

func (r *fakeReconciler) Clear() {
	r.log.add("clear")
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clears++
}

func (r *fakeReconciler) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reconciles
}

type fakeRefresher struct {
	log   *callLog
	count atomic.Int32
}

func (f *fakeRefresher) Refresh() {
	f.log.add("refresh_orders")
	f.count.Add(1)
}

func startCoordinator(t *testing.T, c *Coordinator) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.ErrorIs(t, <-done, context.Canceled)
	})
}

func waitHandled(t *testing.T, c *Coordinator, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return c.Handled() >= n }, 2*time.Second, 5*time.Millisecond)
}

type coordinatorFixture struct {
	c       *Coordinator
	log     *callLog
	engine  *fakeEngine
	rec     *fakeReconciler
	refresh *fakeRefresher
}

func newFixture(queueSize int) *coordinatorFixture {
	log := &callLog{}
	f := &coordinatorFixture{
		log:     log,
		engine:  &fakeEngine{log: log},
		rec:     &fakeReconciler{log: log},
		refresh: &fakeRefresher{log: log},
	}
	f.c = New(zerolog.Nop(), f.engine, f.rec, Options{Orders: f.refresh, QueueSize: queueSize})
	return f
}

func newTestCoordinator(t *testing.T) *coordinatorFixture {
	t.Helper()
	f := newFixture(0)
	startCoordinator(t, f.c)
	return f
}

func TestCoordinator_ReconcilesWhenBecomingActive(t *testing.T) {
	f := newTestCoordinator(t)
	c := f.c

	c.OnAppStateChange(domain.AppStateActive)
	waitHandled(t, c, 1)
	assert.Zero(t, f.rec.count(), "already active")

	c.OnAppStateChange(domain.AppStateBackground)
	c.OnAppStateChange(domain.AppStateActive)
	waitHandled(t, c, 3)
	assert.Equal(t, 1, f.rec.count())

	c.OnAppStateChange(domain.AppStateInactive)
	c.OnAppStateChange(domain.AppStateActive)
	waitHandled(t, c, 5)
	assert.Equal(t, 2, f.rec.count())
	assert.Equal(t, int32(2), f.refresh.count.Load())
	assert.Equal(t, domain.AppStateActive, c.AppState())

	c.OnAppStateChange("suspended")
	waitHandled(t, c, 6)
	assert.Equal(t, domain.AppStateActive, c.AppState())
}

func TestCoordinator_LoginRefreshesOrdersAfterAuthenticating(t *testing.T) {
	f := newTestCoordinator(t)

	f.c.OnLogin()
	waitHandled(t, f.c, 1)

	assert.Equal(t, []string{"authenticate", "refresh_orders"}, f.log.all())
}

func TestCoordinator_TrackingEdgesSetPrecision(t *testing.T) {
	f := newTestCoordinator(t)

	f.engine.setTracking(true)
	_, p := f.engine.snapshot()
	assert.Equal(t, location.PrecisionHigh, p)

	f.engine.setTracking(false)
	_, p = f.engine.snapshot()
	assert.Equal(t, location.DefaultPrecision, p)
}

func TestCoordinator_LogoutClearsBeforeStopping(t *testing.T) {
	f := newTestCoordinator(t)
	f.engine.setTracking(true)

	f.c.OnLogout(nil)
	waitHandled(t, f.c, 1)

	assert.Equal(t, []string{"clear", "stop_tracking"}, f.log.all())
	stops, p := f.engine.snapshot()
	assert.Equal(t, 1, stops)
	assert.Equal(t, location.DefaultPrecision, p)
	assert.False(t, f.engine.IsCurrentlyTracking())
}

func TestCoordinator_BootRunsOnce(t *testing.T) {
	f := newTestCoordinator(t)

	f.c.Boot(true)
	f.c.Boot(true)
	f.c.Boot(false)
	waitHandled(t, f.c, 3)

	assert.Equal(t, 1, f.rec.count())
	assert.Equal(t, []string{"authenticate", "refresh_orders"}, f.log.all())
}

func TestCoordinator_BootWithoutSessionOnlyReconciles(t *testing.T) {
	f := newTestCoordinator(t)

	f.c.Boot(false)
	waitHandled(t, f.c, 1)

	assert.Equal(t, []string{"reconcile"}, f.log.all())
}

func TestCoordinator_FullQueueHandlesInline(t *testing.T) {
	// Not served: the queue stays full.
	f := newFixture(1)

	f.c.OnAppStateChange(domain.AppStateBackground)
	f.c.Boot(true)
	f.c.OnLogin()
	f.c.OnLogout(nil)

	assert.Equal(t, 3, f.c.Handled())
	assert.Equal(t, []string{
		"authenticate", "refresh_orders",
		"authenticate", "refresh_orders",
		"clear", "stop_tracking",
	}, f.log.all())
}

// Real engine and reconciler.

type stillSampler struct{}

func (stillSampler) RequestPermission(context.Context) bool { return true }
func (stillSampler) PermissionGranted(context.Context) bool { return true }
func (stillSampler) CurrentLocation(context.Context) *domain.LocationSample {
	return &domain.LocationSample{Latitude: 52.37, Longitude: 4.89, AccuracyMeters: domain.Accuracy(4)}
}

// gatedSampler blocks the nth permission request until release is closed.
type gatedSampler struct {
	stillSampler
	gateAt   int32
	requests atomic.Int32
	entered  chan struct{}
	release  chan struct{}
}

func (s *gatedSampler) RequestPermission(context.Context) bool {
	if s.requests.Add(1) == s.gateAt {
		close(s.entered)
		<-s.release
	}
	return true
}

type okReporter struct{}

func (okReporter) Report(context.Context, domain.LocationSample, []string) bool { return true }

func newRealStack(t *testing.T, sampler tracking.Sampler) (*Coordinator, *tracking.Engine, *reconcile.Reconciler) {
	t.Helper()
	mClock := quartz.NewMock(t)
	filter := location.NewFilter(location.DefaultPrecision)
	engine := tracking.NewEngine(zerolog.Nop(), mClock, sampler, filter, okReporter{}, tracking.Options{})
	rec := reconcile.New(zerolog.Nop(), mClock, engine, reconcile.Options{})
	t.Cleanup(func() {
		rec.Close()
		require.NoError(t, engine.Shutdown(context.Background()))
	})

	c := New(zerolog.Nop(), engine, rec, Options{})
	startCoordinator(t, c)
	return c, engine, rec
}

var (
	orderA = domain.Order{ID: "A", Status: domain.OrderStatusInProgress, LiveTrackingEnabled: true}
	orderB = domain.Order{ID: "B", Status: domain.OrderStatusInTransit, LiveTrackingEnabled: true}
)

func TestCoordinator_OrdersArrivingAfterLoginRaisePrecision(t *testing.T) {
	c, engine, rec := newRealStack(t, stillSampler{})
	ctx := context.Background()

	c.OnLogin()
	waitHandled(t, c, 1)
	assert.False(t, engine.IsCurrentlyTracking(), "no orders yet")
	assert.Equal(t, location.DefaultPrecision, engine.Precision())

	// The order poller feeds the reconciler directly.
	rec.UpdateOrders(ctx, []domain.Order{orderA})
	assert.True(t, engine.IsCurrentlyTracking())
	assert.Equal(t, location.PrecisionHigh, engine.Precision())

	delivered := orderA
	delivered.Status = domain.OrderStatusDelivered
	rec.UpdateOrders(ctx, []domain.Order{delivered})
	assert.False(t, engine.IsCurrentlyTracking())
	assert.Equal(t, location.DefaultPrecision, engine.Precision())
}

func TestCoordinator_LogoutStopsRealEngine(t *testing.T) {
	c, engine, rec := newRealStack(t, stillSampler{})

	c.OnLogin()
	waitHandled(t, c, 1)
	rec.UpdateOrders(context.Background(), []domain.Order{orderA, orderB})

	status := engine.TrackingStatus()
	assert.True(t, status.IsTracking)
	assert.Equal(t, []string{"A", "B"}, status.ActiveOrderIDs)
	assert.Equal(t, location.PrecisionHigh, engine.Precision())

	c.OnLogout(nil)
	waitHandled(t, c, 2)

	status = engine.TrackingStatus()
	assert.False(t, status.IsTracking)
	assert.Empty(t, status.ActiveOrderIDs)
	assert.Equal(t, location.DefaultPrecision, engine.Precision())
	assert.False(t, rec.Authenticated())
	assert.Empty(t, rec.Tracked())
}

func TestCoordinator_LogoutDuringPassLeavesNothingTracked(t *testing.T) {
	sampler := &gatedSampler{
		gateAt:  2,
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	c, engine, rec := newRealStack(t, sampler)

	c.OnLogin()
	waitHandled(t, c, 1)

	passDone := make(chan struct{})
	go func() {
		defer close(passDone)
		rec.UpdateOrders(context.Background(), []domain.Order{orderA, orderB})
	}()

	select {
	case <-sampler.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("pass never asked for B's permission")
	}

	// A is tracked and B's start is suspended in the permission request.
	c.OnLogout(nil)
	waitHandled(t, c, 2)

	close(sampler.release)
	select {
	case <-passDone:
	case <-time.After(2 * time.Second):
		t.Fatal("pass did not finish")
	}

	status := engine.TrackingStatus()
	assert.False(t, status.IsTracking)
	assert.Empty(t, status.ActiveOrderIDs)
	assert.False(t, engine.Stats().Polling)
	assert.Equal(t, location.DefaultPrecision, engine.Precision())
	assert.Empty(t, rec.Tracked())
	assert.False(t, rec.Authenticated())
}
