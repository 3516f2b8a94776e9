package cart

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joao-fontenele/orderflow-saga/internal/domain"
	"github.com/joao-fontenele/orderflow-saga/internal/messaging"
)

const consumerGroup = "cart"

// Participant clears a customer's cart once their order is placed.
type Participant struct {
	bus    messaging.Bus
	repo   Repository
	logger *slog.Logger
}

func NewParticipant(bus messaging.Bus, repo Repository, logger *slog.Logger) *Participant {
	return &Participant{
		bus:    bus,
		repo:   repo,
		logger: logger,
	}
}

func (p *Participant) Start() {
	p.register()
	p.bus.OnReconnect(p.register)
}

func (p *Participant) register() {
	messaging.Subscribe(p.bus, domain.TopicOrderPlaced, consumerGroup,
		messaging.SubscriberFunc[domain.OrderPlaced](p.HandleOrderPlaced))
}

func (p *Participant) HandleOrderPlaced(ctx context.Context, event domain.OrderPlaced) error {
	deleted, err := p.repo.Delete(ctx, event.CustomerID)
	if err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}

	if !deleted {
		p.logger.Debug("no cart to clear", "customer_id", event.CustomerID, "order_id", event.OrderID)
		return nil
	}

	p.logger.Info("cart cleared", "customer_id", event.CustomerID, "order_id", event.OrderID)
	return nil
}
