// Package reconcile keeps the tracking engine's order set equal to the set of
// orders that are eligible for live tracking.
package reconcile

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"

	"courier/internal/domain"
	"courier/internal/tracking"
)

// DefaultSafetyNetInterval is the period of the safety-net pass.
const DefaultSafetyNetInterval = 5 * time.Second

// Engine is the part of tracking.Engine the reconciler drives.
type Engine interface {
	StartTrackingForOrder(ctx context.Context, orderID string) error
	StopTrackingForOrder(ctx context.Context, orderID string)
	StopTracking()
	ActiveOrderIDs() []string
	IsCurrentlyTracking() bool
	ReportNow(ctx context.Context) bool
}

// Options configures a Reconciler.
type Options struct {
	SafetyNetInterval time.Duration
}

// Result lists what one pass changed.
type Result struct {
	Started []string
	Stopped []string
	Aborted bool
}

// Reconciler diffs the eligible order set against the engine's active set.
type Reconciler struct {
	logger zerolog.Logger
	clock  quartz.Clock
	engine Engine
	opts   Options

	// pass serializes reconciliation passes.
	pass sync.Mutex

	mu            sync.Mutex
	authenticated bool
	known         []domain.Order
	tracked       map[string]*domain.TrackedOrder
	generation    uint64
	safetyCancel  context.CancelFunc
	safetyWaiters sync.WaitGroup
}

// New creates a Reconciler in the logged-out state.
func New(logger zerolog.Logger, clock quartz.Clock, engine Engine, opts Options) *Reconciler {
	if opts.SafetyNetInterval <= 0 {
		opts.SafetyNetInterval = DefaultSafetyNetInterval
	}
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &Reconciler{
		logger:  logger,
		clock:   clock,
		engine:  engine,
		opts:    opts,
		tracked: make(map[string]*domain.TrackedOrder),
	}
}

// UpdateOrders replaces the known order list and reconciles.
func (r *Reconciler) UpdateOrders(ctx context.Context, orders []domain.Order) Result {
	r.mu.Lock()
	r.known = slices.Clone(orders)
	r.mu.Unlock()
	return r.Reconcile(ctx)
}

// SetAuthenticated records the session state and reconciles. Logging out
// invalidates any pass in progress.
func (r *Reconciler) SetAuthenticated(ctx context.Context, authenticated bool) Result {
	r.mu.Lock()
	r.authenticated = authenticated
	if !authenticated {
		r.generation++
	}
	r.mu.Unlock()
	return r.Reconcile(ctx)
}

// Clear forgets the session, the known orders and everything tracked, and
// invalidates any pass in progress. It does not touch the engine: a caller
// tearing down a session must Clear first and stop the engine second, so a
// pass racing with the teardown either sees the new generation and undoes its
// own starts or has its starts removed by the engine stop.
func (r *Reconciler) Clear() {
	r.mu.Lock()
	r.authenticated = false
	r.known = nil
	clear(r.tracked)
	r.generation++
	cancel := r.safetyCancel
	r.safetyCancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.logger.Debug().Msg("[RECONCILE] Cleared")
}

// Authenticated reports the recorded session state.
func (r *Reconciler) Authenticated() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.authenticated
}

// Tracked returns the orders this reconciler has started, ordered by id.
func (r *Reconciler) Tracked() []domain.TrackedOrder {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.TrackedOrder, 0, len(r.tracked))
	for _, t := range r.tracked {
		out = append(out, *t)
	}
	slices.SortFunc(out, func(a, b domain.TrackedOrder) int {
		return cmp.Compare(a.OrderID, b.OrderID)
	})
	return out
}

// Eligible returns the ids that should be tracked for orders, in list order.
func Eligible(orders []domain.Order) []string {
	var ids []string
	for _, o := range orders {
		if o.Eligible() && !slices.Contains(ids, o.ID) {
			ids = append(ids, o.ID)
		}
	}
	return ids
}

// Reconcile runs one pass: orders that became eligible are started, orders
// that are no longer eligible are stopped.
func (r *Reconciler) Reconcile(ctx context.Context) Result {
	r.pass.Lock()
	defer r.pass.Unlock()

	r.mu.Lock()
	gen := r.generation
	var desired []string
	if r.authenticated {
		desired = Eligible(r.known)
	}
	byID := make(map[string]domain.Order, len(r.known))
	for _, o := range r.known {
		byID[o.ID] = o
	}
	r.mu.Unlock()

	var res Result
	active := r.engine.ActiveOrderIDs()

	if len(desired) == 0 {
		if len(active) > 0 {
			r.engine.StopTracking()
			res.Stopped = active
		}
		r.mu.Lock()
		clear(r.tracked)
		r.mu.Unlock()
		r.updateSafetyNet()
		r.logResult(res)
		return res
	}

	for _, id := range active {
		if slices.Contains(desired, id) {
			continue
		}
		r.engine.StopTrackingForOrder(ctx, id)
		res.Stopped = append(res.Stopped, id)
		r.mu.Lock()
		delete(r.tracked, id)
		r.mu.Unlock()
	}

	for _, id := range desired {
		if slices.Contains(active, id) {
			continue
		}
		if r.invalidated(gen) {
			res.Aborted = true
			break
		}
		err := r.engine.StartTrackingForOrder(ctx, id)
		if errors.Is(err, tracking.ErrPermissionDenied) {
			r.logger.Warn().Str("order_id", id).Msg("[RECONCILE] Location permission denied, skipping remaining starts")
			break
		}
		if err != nil {
			r.logger.Warn().Err(err).Str("order_id", id).Msg("[RECONCILE] Failed to start tracking")
			continue
		}
		res.Started = append(res.Started, id)
		if r.invalidated(gen) {
			res.Aborted = true
			break
		}
	}

	if res.Aborted {
		for _, id := range res.Started {
			r.engine.StopTrackingForOrder(ctx, id)
		}
		r.logger.Info().Strs("torn_down", res.Started).Msg("[RECONCILE] Session ended during pass")
		res.Started = nil
		return res
	}

	r.mu.Lock()
	if gen == r.generation {
		now := r.clock.Now()
		for _, id := range desired {
			o := byID[id]
			if t, ok := r.tracked[id]; ok {
				t.Status = o.Status
				t.LiveTrackingEnabled = o.LiveTrackingEnabled
				continue
			}
			if slices.Contains(active, id) || slices.Contains(res.Started, id) {
				r.tracked[id] = &domain.TrackedOrder{
					OrderID:             id,
					Status:              o.Status,
					LiveTrackingEnabled: o.LiveTrackingEnabled,
					AddedAt:             now,
				}
			}
		}
		for id := range r.tracked {
			if !slices.Contains(desired, id) {
				delete(r.tracked, id)
			}
		}
	}
	r.mu.Unlock()

	r.updateSafetyNet()
	r.logResult(res)
	return res
}

// Close stops the safety net and waits for it to exit.
func (r *Reconciler) Close() {
	r.mu.Lock()
	cancel := r.safetyCancel
	r.safetyCancel = nil
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	r.safetyWaiters.Wait()
}

func (r *Reconciler) invalidated(gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return gen != r.generation
}

// updateSafetyNet runs the periodic pass while the engine is tracking for a
// logged-in driver.
func (r *Reconciler) updateSafetyNet() {
	polling := r.engine.IsCurrentlyTracking()

	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case polling && r.authenticated && r.safetyCancel == nil:
		ctx, cancel := context.WithCancel(context.Background())
		r.safetyCancel = cancel
		w := r.clock.TickerFunc(ctx, r.opts.SafetyNetInterval, func() error {
			r.safetyNet(ctx)
			return nil
		}, "reconcile", "safety-net")
		r.safetyWaiters.Add(1)
		go func() {
			defer r.safetyWaiters.Done()
			_ = w.Wait()
		}()
		r.logger.Debug().Msg("[RECONCILE] Safety net started")

	case (!polling || !r.authenticated) && r.safetyCancel != nil:
		r.safetyCancel()
		r.safetyCancel = nil
		r.logger.Debug().Msg("[RECONCILE] Safety net stopped")
	}
}

func (r *Reconciler) safetyNet(ctx context.Context) {
	r.Reconcile(ctx)
	if r.engine.IsCurrentlyTracking() {
		r.engine.ReportNow(ctx)
	}
}

func (r *Reconciler) logResult(res Result) {
	if len(res.Started) == 0 && len(res.Stopped) == 0 {
		return
	}
	r.logger.Info().
		Strs("started", res.Started).
		Strs("stopped", res.Stopped).
		Msg("[RECONCILE] Tracking set updated")
}
