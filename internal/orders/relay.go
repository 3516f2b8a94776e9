package orders

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/joao-fontenele/orderflow-saga/internal/domain"
	"github.com/joao-fontenele/orderflow-saga/internal/messaging"
)

const (
	DefaultRelayInterval  = 5 * time.Second
	DefaultRedeliverAfter = 5 * time.Minute
)

type RelayState int

const (
	RelayStopped RelayState = iota
	RelayRunning
)

func (s RelayState) String() string {
	if s == RelayRunning {
		return "running"
	}
	return "stopped"
}

// Relay forwards authorized orders to the catalog, one per tick. Ticks run
// on a single goroutine and never overlap.
type Relay struct {
	query          AuthorizedOrderQuery
	bus            messaging.Bus
	interval       time.Duration
	redeliverAfter time.Duration
	logger         *slog.Logger
	now            func() time.Time

	mu     sync.Mutex
	state  RelayState
	cancel context.CancelFunc
	done   chan struct{}
}

type RelayOption func(*Relay)

func WithInterval(d time.Duration) RelayOption {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithRedeliverAfter(d time.Duration) RelayOption {
	return func(r *Relay) {
		if d > 0 {
			r.redeliverAfter = d
		}
	}
}

func WithRelayClock(now func() time.Time) RelayOption {
	return func(r *Relay) {
		r.now = now
	}
}

func NewRelay(query AuthorizedOrderQuery, bus messaging.Bus, logger *slog.Logger, opts ...RelayOption) *Relay {
	r := &Relay{
		query:          query,
		bus:            bus,
		interval:       DefaultRelayInterval,
		redeliverAfter: DefaultRedeliverAfter,
		logger:         logger,
		now:            func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Relay) State() RelayState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Start begins ticking. Calling Start on a running relay does nothing.
func (r *Relay) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == RelayRunning {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	r.state = RelayRunning

	go r.loop(ctx, r.done)

	r.logger.Info("order relay started", "interval", r.interval)
}

// Stop halts ticking and waits for an in-flight tick, or until ctx is done.
func (r *Relay) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.state == RelayStopped {
		r.mu.Unlock()
		return nil
	}
	r.cancel()
	done := r.done
	r.state = RelayStopped
	r.mu.Unlock()

	r.logger.Info("order relay stopped")

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Relay) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Tick(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("relay tick failed", "error", err)
			}
		}
	}
}

// Tick forwards at most one authorized order.
func (r *Relay) Tick(ctx context.Context) error {
	now := r.now()

	order, err := r.query.NextAuthorized(ctx, now.Add(-r.redeliverAfter))
	if err != nil {
		return fmt.Errorf("next authorized order: %w", err)
	}
	if order == nil {
		return nil
	}

	event := domain.NewOrderAuthorized(order.OrderID, order.CustomerID, order.Quantities())
	if err := messaging.PublishEvent(ctx, r.bus, domain.TopicOrderAuthorized, order.OrderID, event); err != nil {
		return fmt.Errorf("publish order authorized: %w", err)
	}

	if err := r.query.MarkForwarded(ctx, order.OrderID, now); err != nil {
		r.logger.Warn("order forwarded but not marked, it will be sent again", "order_id", order.OrderID, "error", err)
		return nil
	}

	r.logger.Info("order forwarded", "order_id", order.OrderID, "items", len(order.Items))
	return nil
}
