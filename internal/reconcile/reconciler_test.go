package reconcile

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courier/internal/domain"
	"courier/internal/tracking"
)

type fakeEngine struct {
	mu        sync.Mutex
	active    []string
	deny      bool
	onStart   func(id string)
	stopAll   int
	reportNow int
}

func (e *fakeEngine) StartTrackingForOrder(_ context.Context, id string) error {
	e.mu.Lock()
	hook := e.onStart
	e.onStart = nil
	if e.deny {
		e.mu.Unlock()
		return tracking.ErrPermissionDenied
	}
	if !slices.Contains(e.active, id) {
		e.active = append(e.active, id)
	}
	e.mu.Unlock()
	if hook != nil {
		hook(id)
	}
	return nil
}

func (e *fakeEngine) StopTrackingForOrder(_ context.Context, id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if i := slices.Index(e.active, id); i >= 0 {
		e.active = slices.Delete(e.active, i, i+1)
	}
}

func (e *fakeEngine) StopTracking() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopAll++
	e.active = nil
}

func (e *fakeEngine) ActiveOrderIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.active)
}

func (e *fakeEngine) IsCurrentlyTracking() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.active) > 0
}

func (e *fakeEngine) ReportNow(context.Context) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reportNow++
	return true
}

func newTestReconciler(t *testing.T, clock quartz.Clock) (*Reconciler, *fakeEngine) {
	t.Helper()
	engine := &fakeEngine{}
	r := New(zerolog.Nop(), clock, engine, Options{SafetyNetInterval: DefaultSafetyNetInterval})
	t.Cleanup(r.Close)
	return r, engine
}

func order(id string, status domain.OrderStatus, live bool) domain.Order {
	return domain.Order{ID: id, Status: status, LiveTrackingEnabled: live}
}

func TestEligible(t *testing.T) {
	orders := []domain.Order{
		order("pending", domain.OrderStatusPending, true),
		order("accepted", domain.OrderStatusAccepted, true),
		order("moving", domain.OrderStatusInProgress, true),
		order("picked", domain.OrderStatusPickedUp, true),
		order("transit", domain.OrderStatusInTransit, true),
		order("untracked", domain.OrderStatusInTransit, false),
		order("done", domain.OrderStatusDelivered, true),
		order("cancelled", domain.OrderStatusCancelled, true),
		order("moving", domain.OrderStatusInProgress, true),
	}
	assert.Equal(t, []string{"moving", "picked", "transit"}, Eligible(orders))
	assert.Empty(t, Eligible(nil))
}

func TestReconciler_ActiveSetEqualsEligibleSet(t *testing.T) {
	r, engine := newTestReconciler(t, quartz.NewMock(t))
	ctx := context.Background()

	orders := []domain.Order{
		order("A", domain.OrderStatusInProgress, true),
		order("B", domain.OrderStatusAccepted, true),
		order("C", domain.OrderStatusInTransit, false),
		order("D", domain.OrderStatusPickedUp, true),
	}

	r.UpdateOrders(ctx, orders)
	assert.Empty(t, engine.ActiveOrderIDs(), "nothing is tracked while logged out")

	r.SetAuthenticated(ctx, true)
	assert.ElementsMatch(t, []string{"A", "D"}, engine.ActiveOrderIDs())

	tracked := r.Tracked()
	require.Len(t, tracked, 2)
	assert.Equal(t, "A", tracked[0].OrderID)
	assert.Equal(t, "D", tracked[1].OrderID)
}

func TestReconciler_StartStopConvergence(t *testing.T) {
	r, engine := newTestReconciler(t, quartz.NewMock(t))
	ctx := context.Background()
	r.SetAuthenticated(ctx, true)

	res := r.UpdateOrders(ctx, []domain.Order{order("A", domain.OrderStatusInProgress, true)})
	assert.Equal(t, []string{"A"}, res.Started)
	assert.True(t, engine.IsCurrentlyTracking())

	res = r.UpdateOrders(ctx, []domain.Order{order("A", domain.OrderStatusPickedUp, true)})
	assert.Empty(t, res.Started)
	assert.Empty(t, res.Stopped)
	assert.Equal(t, []string{"A"}, engine.ActiveOrderIDs())

	res = r.UpdateOrders(ctx, []domain.Order{order("A", domain.OrderStatusDelivered, true)})
	assert.Equal(t, []string{"A"}, res.Stopped)
	assert.False(t, engine.IsCurrentlyTracking())
	assert.Equal(t, 1, engine.stopAll)
	assert.Empty(t, r.Tracked())
}

func TestReconciler_StopsOnlyIneligibleOrders(t *testing.T) {
	r, engine := newTestReconciler(t, quartz.NewMock(t))
	ctx := context.Background()
	r.SetAuthenticated(ctx, true)

	r.UpdateOrders(ctx, []domain.Order{
		order("A", domain.OrderStatusInProgress, true),
		order("B", domain.OrderStatusInTransit, true),
	})
	res := r.UpdateOrders(ctx, []domain.Order{
		order("A", domain.OrderStatusInProgress, false),
		order("B", domain.OrderStatusInTransit, true),
	})

	assert.Equal(t, []string{"A"}, res.Stopped)
	assert.Equal(t, []string{"B"}, engine.ActiveOrderIDs())
	assert.Zero(t, engine.stopAll)
}

func TestReconciler_LogoutTearsDown(t *testing.T) {
	r, engine := newTestReconciler(t, quartz.NewMock(t))
	ctx := context.Background()
	r.SetAuthenticated(ctx, true)
	r.UpdateOrders(ctx, []domain.Order{
		order("A", domain.OrderStatusInProgress, true),
		order("B", domain.OrderStatusInTransit, true),
	})

	res := r.SetAuthenticated(ctx, false)

	assert.ElementsMatch(t, []string{"A", "B"}, res.Stopped)
	assert.False(t, engine.IsCurrentlyTracking())
	assert.Empty(t, r.Tracked())
}

func TestReconciler_LogoutDuringPassAbortsIt(t *testing.T) {
	r, engine := newTestReconciler(t, quartz.NewMock(t))
	ctx := context.Background()
	r.SetAuthenticated(ctx, true)

	engine.onStart = func(string) { r.Clear() }
	res := r.UpdateOrders(ctx, []domain.Order{
		order("A", domain.OrderStatusInProgress, true),
		order("B", domain.OrderStatusInTransit, true),
	})

	assert.True(t, res.Aborted)
	assert.Empty(t, res.Started)
	assert.Empty(t, engine.ActiveOrderIDs())
	assert.Empty(t, r.Tracked())
	assert.False(t, r.Authenticated())
}

func TestReconciler_PermissionDenied(t *testing.T) {
	r, engine := newTestReconciler(t, quartz.NewMock(t))
	ctx := context.Background()
	engine.deny = true
	r.SetAuthenticated(ctx, true)

	res := r.UpdateOrders(ctx, []domain.Order{order("A", domain.OrderStatusInProgress, true)})
	assert.Empty(t, res.Started)
	assert.Empty(t, r.Tracked())

	engine.mu.Lock()
	engine.deny = false
	engine.mu.Unlock()
	res = r.Reconcile(ctx)
	assert.Equal(t, []string{"A"}, res.Started)
}

func TestReconciler_KeepsAddedAtAcrossPasses(t *testing.T) {
	mClock := quartz.NewMock(t)
	r, _ := newTestReconciler(t, mClock)
	ctx := context.Background()
	r.SetAuthenticated(ctx, true)

	r.UpdateOrders(ctx, []domain.Order{order("A", domain.OrderStatusInProgress, true)})
	added := r.Tracked()[0].AddedAt

	mClock.Advance(time.Second).MustWait(ctx)
	r.UpdateOrders(ctx, []domain.Order{order("A", domain.OrderStatusPickedUp, true)})

	tracked := r.Tracked()
	require.Len(t, tracked, 1)
	assert.Equal(t, domain.OrderStatusPickedUp, tracked[0].Status)
	assert.Equal(t, added, tracked[0].AddedAt)
}

func TestReconciler_SafetyNetReportsWhileTracking(t *testing.T) {
	mClock := quartz.NewMock(t)
	r, engine := newTestReconciler(t, mClock)
	ctx := context.Background()
	r.SetAuthenticated(ctx, true)
	r.UpdateOrders(ctx, []domain.Order{order("A", domain.OrderStatusInProgress, true)})

	mClock.Advance(DefaultSafetyNetInterval).MustWait(ctx)
	engine.mu.Lock()
	assert.Equal(t, 1, engine.reportNow)
	engine.mu.Unlock()

	// an order dropped by the engine behind the reconciler's back is restarted
	engine.StopTrackingForOrder(ctx, "A")
	mClock.Advance(DefaultSafetyNetInterval).MustWait(ctx)
	assert.Equal(t, []string{"A"}, engine.ActiveOrderIDs())

	r.UpdateOrders(ctx, nil)
	assert.False(t, engine.IsCurrentlyTracking())
	r.mu.Lock()
	assert.Nil(t, r.safetyCancel)
	r.mu.Unlock()
}
