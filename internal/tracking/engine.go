// Package tracking runs the location poll for the driver's active orders.
//
// The engine owns the set of tracked order ids and at most one poll loop. Each
// tick samples the device location, filters it against the last reported fix
// and reports it once for every order active at report time.
package tracking

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"

	"courier/internal/domain"
	"courier/internal/location"
	"courier/internal/metrics"
)

// ErrPermissionDenied is returned when location permission was not granted.
var ErrPermissionDenied = errors.New("location permission denied")

// DefaultPollInterval is the interval between location samples.
const DefaultPollInterval = 5 * time.Second

// Sampler acquires device location fixes.
type Sampler interface {
	RequestPermission(ctx context.Context) bool
	PermissionGranted(ctx context.Context) bool
	CurrentLocation(ctx context.Context) *domain.LocationSample
}

// Reporter sends a sample for a batch of orders.
type Reporter interface {
	Report(ctx context.Context, sample domain.LocationSample, orderIDs []string) bool
}

// Options configures an Engine.
type Options struct {
	PollInterval         time.Duration
	StopOnPermissionLoss bool
}

// Stats counts poll loop transitions.
type Stats struct {
	PollStarts int
	PollStops  int
	Polling    bool
}

// Engine tracks the driver's location for a set of orders.
type Engine struct {
	logger   zerolog.Logger
	clock    quartz.Clock
	sampler  Sampler
	filter   *location.Filter
	reporter Reporter
	opts     Options

	mu           sync.Mutex
	orders       []string
	lastAccepted *domain.LocationSample
	pollCancel   context.CancelFunc
	// session changes on every stop so in-flight work from an earlier
	// tracking session cannot write into the current one.
	session uint64
	starts  int
	stops   int

	onChange func(tracking bool)
	pollers  sync.WaitGroup
}

// NewEngine creates an idle Engine.
func NewEngine(logger zerolog.Logger, clock quartz.Clock, sampler Sampler, filter *location.Filter, reporter Reporter, opts Options) *Engine {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &Engine{
		logger:   logger,
		clock:    clock,
		sampler:  sampler,
		filter:   filter,
		reporter: reporter,
		opts:     opts,
	}
}

// StartTrackingForOrder adds orderID to the tracked set, starting the poll if
// the engine was idle, and sends one immediate sample for all active orders.
// Starting an order that is already tracked is a no-op.
func (e *Engine) StartTrackingForOrder(ctx context.Context, orderID string) error {
	if e.isTracked(orderID) {
		return nil
	}

	if !e.sampler.RequestPermission(ctx) {
		e.logger.Warn().Str("order_id", orderID).Msg("[TRACKING] Location permission denied, not tracking")
		return ErrPermissionDenied
	}

	e.mu.Lock()
	if slices.Contains(e.orders, orderID) {
		e.mu.Unlock()
		return nil
	}
	e.orders = append(e.orders, orderID)
	started := e.startPollLocked()
	count := len(e.orders)
	e.mu.Unlock()

	metrics.TrackedOrders.Set(float64(count))
	if started {
		e.notifyChange(true)
	}
	e.logger.Info().
		Str("order_id", orderID).
		Int("active_orders", count).
		Bool("poll_started", started).
		Msg("[TRACKING] Started tracking order")

	e.reportCurrent(ctx)
	return nil
}

// StopTrackingForOrder removes orderID and stops tracking when none remain.
func (e *Engine) StopTrackingForOrder(_ context.Context, orderID string) {
	e.mu.Lock()
	i := slices.Index(e.orders, orderID)
	if i < 0 {
		e.mu.Unlock()
		return
	}
	e.orders = slices.Delete(e.orders, i, i+1)
	remaining := len(e.orders)
	var cancel context.CancelFunc
	if remaining == 0 {
		cancel = e.stopLocked()
	}
	e.mu.Unlock()

	metrics.TrackedOrders.Set(float64(remaining))
	e.logger.Info().Str("order_id", orderID).Int("active_orders", remaining).Msg("[TRACKING] Stopped tracking order")
	e.finishStop(cancel)
}

// StopTracking cancels the poll and clears all tracking state. It is idempotent.
func (e *Engine) StopTracking() {
	e.mu.Lock()
	if e.pollCancel == nil && len(e.orders) == 0 && e.lastAccepted == nil {
		e.mu.Unlock()
		return
	}
	cancel := e.stopLocked()
	e.mu.Unlock()

	metrics.TrackedOrders.Set(0)
	e.logger.Info().Msg("[TRACKING] Stopped tracking")
	e.finishStop(cancel)
}

// Shutdown stops tracking and waits for poll loops to exit.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.StopTracking()

	done := make(chan struct{})
	go func() {
		e.pollers.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrackingStatus returns a snapshot of the engine state.
func (e *Engine) TrackingStatus() domain.TrackingStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return domain.TrackingStatus{
		IsTracking:     e.pollCancel != nil,
		ActiveOrderIDs: slices.Clone(e.orders),
		OrderCount:     len(e.orders),
	}
}

// IsCurrentlyTracking reports whether a poll is running.
func (e *Engine) IsCurrentlyTracking() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pollCancel != nil
}

// ActiveOrderIDs returns the tracked ids in insertion order.
func (e *Engine) ActiveOrderIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.orders)
}

// OnTrackingChange registers fn to run after every Idle→Tracking and
// Tracking→Idle edge. fn runs on the goroutine that caused the edge, without
// the engine lock held. A later call replaces the earlier hook.
func (e *Engine) OnTrackingChange(fn func(tracking bool)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onChange = fn
}

func (e *Engine) notifyChange(tracking bool) {
	e.mu.Lock()
	fn := e.onChange
	e.mu.Unlock()
	if fn != nil {
		fn(tracking)
	}
}

// SetTrackingPrecision swaps the filter thresholds. The next tick uses them.
func (e *Engine) SetTrackingPrecision(p location.Precision) {
	prev := e.filter.Precision()
	if prev == p {
		return
	}
	e.filter.SetPrecision(p)
	e.logger.Info().Str("from", prev.Name).Str("to", p.Name).Msg("[TRACKING] Precision changed")
}

// Precision returns the filter thresholds in effect.
func (e *Engine) Precision() location.Precision {
	return e.filter.Precision()
}

// ReportNow sends one unfiltered sample for all active orders.
func (e *Engine) ReportNow(ctx context.Context) bool {
	if !e.IsCurrentlyTracking() {
		return false
	}
	return e.reportCurrent(ctx)
}

// Stats returns poll loop counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{PollStarts: e.starts, PollStops: e.stops, Polling: e.pollCancel != nil}
}

func (e *Engine) isTracked(orderID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Contains(e.orders, orderID)
}

// startPollLocked starts the poll unless one is running. Caller holds e.mu.
func (e *Engine) startPollLocked() bool {
	if e.pollCancel != nil {
		return false
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.pollCancel = cancel
	e.starts++

	w := e.clock.TickerFunc(ctx, e.opts.PollInterval, func() error {
		e.tick(ctx)
		return nil
	}, "tracking", "poll")

	e.pollers.Add(1)
	go func() {
		defer e.pollers.Done()
		_ = w.Wait()
	}()

	metrics.PollLoops.WithLabelValues("start").Inc()
	return true
}

// stopLocked clears all tracking state and returns the poll's cancel func,
// if one was running. Caller holds e.mu.
func (e *Engine) stopLocked() context.CancelFunc {
	cancel := e.pollCancel
	if cancel != nil {
		e.stops++
	}
	e.pollCancel = nil
	e.orders = nil
	e.lastAccepted = nil
	e.session++
	return cancel
}

func (e *Engine) finishStop(cancel context.CancelFunc) {
	if cancel == nil {
		return
	}
	cancel()
	metrics.PollLoops.WithLabelValues("stop").Inc()
	e.logger.Debug().Msg("[TRACKING] Poll stopped")
	e.notifyChange(false)
}

func (e *Engine) tick(ctx context.Context) {
	e.mu.Lock()
	empty := len(e.orders) == 0
	session := e.session
	e.mu.Unlock()

	if empty {
		e.logger.Debug().Msg("[TRACKING] Poll running with no orders, stopping")
		e.StopTracking()
		return
	}

	if e.opts.StopOnPermissionLoss && !e.sampler.PermissionGranted(ctx) {
		e.logger.Warn().Msg("[TRACKING] Location permission revoked, stopping tracking")
		e.StopTracking()
		return
	}

	sample := e.sampler.CurrentLocation(ctx)
	if sample == nil {
		metrics.LocationSamples.WithLabelValues(metrics.SampleUnavailable).Inc()
		return
	}

	e.mu.Lock()
	if e.session != session || len(e.orders) == 0 {
		e.mu.Unlock()
		return
	}
	prev := e.lastAccepted
	ids := slices.Clone(e.orders)
	e.mu.Unlock()

	switch e.filter.Evaluate(prev, *sample) {
	case location.VerdictInaccurate:
		metrics.LocationSamples.WithLabelValues(metrics.SampleRejectedAccuracy).Inc()
		e.logger.Debug().Msg("[TRACKING] Fix rejected: accuracy")
		return
	case location.VerdictTooClose:
		metrics.LocationSamples.WithLabelValues(metrics.SampleRejectedDistance).Inc()
		e.logger.Debug().Msg("[TRACKING] Fix rejected: distance")
		return
	}
	metrics.LocationSamples.WithLabelValues(metrics.SampleAccepted).Inc()

	e.send(ctx, session, sample, ids)
}

// reportCurrent samples once and reports without filtering.
func (e *Engine) reportCurrent(ctx context.Context) bool {
	e.mu.Lock()
	session := e.session
	e.mu.Unlock()

	sample := e.sampler.CurrentLocation(ctx)
	if sample == nil {
		metrics.LocationSamples.WithLabelValues(metrics.SampleUnavailable).Inc()
		e.logger.Debug().Msg("[TRACKING] No fix for immediate report")
		return false
	}

	e.mu.Lock()
	if e.session != session || len(e.orders) == 0 {
		e.mu.Unlock()
		return false
	}
	ids := slices.Clone(e.orders)
	e.mu.Unlock()

	return e.send(ctx, session, sample, ids)
}

// send reports sample on a context detached from ctx's cancellation and
// records it as the last accepted fix on success.
func (e *Engine) send(ctx context.Context, session uint64, sample *domain.LocationSample, ids []string) bool {
	if !e.reporter.Report(context.WithoutCancel(ctx), *sample, ids) {
		return false
	}
	e.mu.Lock()
	if e.session == session {
		e.lastAccepted = sample
	}
	e.mu.Unlock()
	return true
}
