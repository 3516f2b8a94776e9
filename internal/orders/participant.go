package orders

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joao-fontenele/orderflow-saga/internal/domain"
	"github.com/joao-fontenele/orderflow-saga/internal/messaging"
)

const consumerGroup = "orders"

// Participant keeps order status in step with the rest of the saga.
type Participant struct {
	bus      messaging.Bus
	newScope ScopeFactory
	logger   *slog.Logger
	now      func() time.Time
}

func NewParticipant(bus messaging.Bus, newScope ScopeFactory, logger *slog.Logger) *Participant {
	return &Participant{
		bus:      bus,
		newScope: newScope,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (p *Participant) Start() {
	p.register()
	p.bus.OnReconnect(p.register)
}

func (p *Participant) register() {
	messaging.Subscribe(p.bus, domain.TopicOrderCancelled, consumerGroup,
		messaging.SubscriberFunc[domain.OrderCancelled](p.HandleOrderCancelled))
	messaging.Subscribe(p.bus, domain.TopicStockReserved, consumerGroup,
		messaging.SubscriberFunc[domain.StockReserved](p.HandleStockReserved))
	messaging.Subscribe(p.bus, domain.TopicOrderPaid, consumerGroup,
		messaging.SubscriberFunc[domain.OrderPaid](p.HandleOrderPaid))
}

func (p *Participant) HandleOrderCancelled(ctx context.Context, event domain.OrderCancelled) error {
	orders := p.newScope().Orders()
	logger := p.logger.With("order_id", event.OrderID)

	order, err := orders.GetByID(ctx, event.OrderID)
	if err != nil {
		return fmt.Errorf("load order: %w", err)
	}
	if order == nil {
		logger.Warn("cancelled order not found")
		return nil
	}
	if order.Status == domain.OrderStatusCancelled {
		return nil
	}

	if err := order.TransitionTo(domain.OrderStatusCancelled, p.now()); err != nil {
		logger.Warn("ignoring cancellation", "status", order.Status, "error", err)
		return nil
	}

	orders.Update(order)
	if err := orders.UnitOfWork().Commit(ctx); err != nil {
		return domain.NewDomainError("cancel order", err)
	}

	logger.Info("order cancelled")
	return nil
}

// HandleStockReserved moves an authorized order to StockReserved, which
// takes it out of the relay's reach. Orders that already moved on are left alone.
func (p *Participant) HandleStockReserved(ctx context.Context, event domain.StockReserved) error {
	orders := p.newScope().Orders()
	logger := p.logger.With("order_id", event.OrderID)

	order, err := orders.GetByID(ctx, event.OrderID)
	if err != nil {
		return fmt.Errorf("load order: %w", err)
	}
	if order == nil {
		logger.Warn("reserved order not found")
		return nil
	}
	if order.Status != domain.OrderStatusPaymentAuthorized {
		logger.Info("ignoring stock reservation", "status", order.Status)
		return nil
	}

	if err := order.TransitionTo(domain.OrderStatusStockReserved, p.now()); err != nil {
		return domain.NewDomainError("reserve order", err)
	}
	orders.Update(order)
	if err := orders.UnitOfWork().Commit(ctx); err != nil {
		return domain.NewDomainError("reserve order", err)
	}

	logger.Info("order stock reserved")
	return nil
}

// HandleOrderPaid marks the order paid and announces it as placed. A
// duplicate delivery for an order that is already paid announces it again.
// OrderPaid implies the stock was reserved, so an order still waiting for
// StockReserved passes through it. A paid event for an order that can no
// longer be paid is reported as unrecoverable.
func (p *Participant) HandleOrderPaid(ctx context.Context, event domain.OrderPaid) error {
	orders := p.newScope().Orders()
	logger := p.logger.With("order_id", event.OrderID)

	order, err := orders.GetByID(ctx, event.OrderID)
	if err != nil {
		return fmt.Errorf("load order: %w", err)
	}
	if order == nil {
		logger.Warn("paid order not found")
		return nil
	}

	if order.Status != domain.OrderStatusPaid {
		now := p.now()
		if order.Status == domain.OrderStatusPaymentAuthorized {
			if err := order.TransitionTo(domain.OrderStatusStockReserved, now); err != nil {
				return domain.NewDomainError("reserve order", err)
			}
		}
		if err := order.TransitionTo(domain.OrderStatusPaid, now); err != nil {
			logger.Error("paid event for order in unexpected status", "status", order.Status, "error", err)
			return messaging.Unrecoverable(domain.NewDomainError("pay order", err))
		}

		orders.Update(order)
		if err := orders.UnitOfWork().Commit(ctx); err != nil {
			return domain.NewDomainError("pay order", err)
		}
		logger.Info("order paid")
	}

	if err := messaging.PublishEvent(ctx, p.bus, domain.TopicOrderPlaced, order.ID,
		domain.NewOrderPlaced(order.ID, order.CustomerID)); err != nil {
		return fmt.Errorf("publish order placed: %w", err)
	}
	return nil
}
