package orders

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"

	"courier/internal/domain"
	"courier/internal/reconcile"
	"courier/internal/transport"
)

// DefaultPollInterval is how often the order list is refetched.
const DefaultPollInterval = 15 * time.Second

// Fetcher returns the driver's order list.
type Fetcher interface {
	FetchOrders(ctx context.Context) ([]domain.Order, error)
}

// Sink receives order lists.
type Sink interface {
	Authenticated() bool
	UpdateOrders(ctx context.Context, orders []domain.Order) reconcile.Result
}

// Poller fetches the order list on an interval while the driver is logged in.
type Poller struct {
	logger   zerolog.Logger
	clock    quartz.Clock
	fetcher  Fetcher
	sink     Sink
	interval time.Duration
	kick     chan struct{}

	mu    sync.Mutex
	polls int
}

// NewPoller creates a Poller.
func NewPoller(logger zerolog.Logger, clock quartz.Clock, fetcher Fetcher, sink Sink, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &Poller{
		logger:   logger,
		clock:    clock,
		fetcher:  fetcher,
		sink:     sink,
		interval: interval,
		kick:     make(chan struct{}, 1),
	}
}

// Refresh asks for an immediate fetch. It never blocks.
func (p *Poller) Refresh() {
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

// Polls returns the number of completed fetches.
func (p *Poller) Polls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.polls
}

// Serve implements suture.Service.
func (p *Poller) Serve(ctx context.Context) error {
	w := p.clock.TickerFunc(ctx, p.interval, func() error {
		p.poll(ctx)
		return nil
	}, "orders", "poll")

	for {
		select {
		case <-ctx.Done():
			_ = w.Wait()
			return ctx.Err()
		case <-p.kick:
			p.poll(ctx)
		}
	}
}

func (p *Poller) String() string { return "order-poller" }

func (p *Poller) poll(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.sink.Authenticated() {
		return
	}
	orders, err := p.fetcher.FetchOrders(ctx)
	switch {
	case err == nil:
	case errors.Is(err, transport.ErrNotAuthenticated), errors.Is(err, transport.ErrSessionExpired):
		p.logger.Debug().Err(err).Msg("[ORDERS] Not fetching orders without a session")
		return
	case ctx.Err() != nil:
		return
	default:
		p.logger.Warn().Err(err).Msg("[ORDERS] Failed to fetch orders")
		return
	}

	p.polls++
	p.sink.UpdateOrders(ctx, orders)
	p.logger.Debug().Int("orders", len(orders)).Msg("[ORDERS] Order list updated")
}
