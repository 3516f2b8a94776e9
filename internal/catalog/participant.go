package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/joao-fontenele/orderflow-saga/internal/domain"
	"github.com/joao-fontenele/orderflow-saga/internal/messaging"
)

const consumerGroup = "catalog"

// Participant reserves stock for authorized orders. For every
// OrderAuthorized it publishes exactly one of OrderCancelled or StockReserved.
// Stock is taken at most once per order: a repeated OrderAuthorized for an
// order that already holds a reservation publishes StockReserved again.
type Participant struct {
	bus           messaging.Bus
	newRepository func() Repository
	logger        *slog.Logger
}

func NewParticipant(bus messaging.Bus, newRepository func() Repository, logger *slog.Logger) *Participant {
	return &Participant{
		bus:           bus,
		newRepository: newRepository,
		logger:        logger,
	}
}

// Start registers the subscription and re-registers it after every reconnect.
func (p *Participant) Start() {
	p.register()
	p.bus.OnReconnect(p.register)
}

func (p *Participant) register() {
	messaging.Subscribe(p.bus, domain.TopicOrderAuthorized, consumerGroup,
		messaging.SubscriberFunc[domain.OrderAuthorized](p.HandleOrderAuthorized))
}

func (p *Participant) HandleOrderAuthorized(ctx context.Context, event domain.OrderAuthorized) error {
	repo := p.newRepository()
	logger := p.logger.With("order_id", event.OrderID, "customer_id", event.CustomerID)

	reserved, err := repo.HasReservation(ctx, event.OrderID)
	if err != nil {
		return err
	}
	if reserved {
		logger.Info("stock already reserved, announcing again")
		return p.reserved(ctx, event)
	}

	ids := make([]string, 0, len(event.Items))
	for id, quantity := range event.Items {
		if quantity <= 0 {
			return p.cancel(ctx, logger.With("product_id", id, "requested", quantity), event, "invalid quantity")
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	if len(ids) == 0 {
		return p.cancel(ctx, logger, event, "order has no items")
	}

	products, err := repo.GetByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("load products: %w", err)
	}

	byID := make(map[string]*domain.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}

	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			return p.cancel(ctx, logger.With("product_id", id), event, "product not found")
		}
	}

	for _, id := range ids {
		if product, requested := byID[id], event.Items[id]; !product.IsAvailable(requested) {
			return p.cancel(ctx, logger.With("product_id", id, "requested", requested, "available", product.StockQuantity),
				event, "insufficient stock")
		}
	}

	for _, id := range ids {
		product := byID[id]
		if err := product.DecrementStock(event.Items[id]); err != nil {
			return domain.NewDomainError("reserve stock", err)
		}
		repo.Update(product)
	}
	repo.AddReservation(event.OrderID, event.CustomerID)

	if err := repo.UnitOfWork().Commit(ctx); err != nil {
		logger.Error("failed to commit stock reservation", "error", err)
		return domain.NewDomainError("commit stock reservation", err)
	}

	logger.Info("stock reserved", "products", len(ids))
	return p.reserved(ctx, event)
}

func (p *Participant) reserved(ctx context.Context, event domain.OrderAuthorized) error {
	if err := messaging.PublishEvent(ctx, p.bus, domain.TopicStockReserved, event.OrderID,
		domain.NewStockReserved(event.OrderID, event.CustomerID)); err != nil {
		return fmt.Errorf("publish stock reserved: %w", err)
	}
	return nil
}

func (p *Participant) cancel(ctx context.Context, logger *slog.Logger, event domain.OrderAuthorized, reason string) error {
	logger.Warn("cancelling order", "reason", reason)

	if err := messaging.PublishEvent(ctx, p.bus, domain.TopicOrderCancelled, event.OrderID,
		domain.NewOrderCancelled(event.OrderID, event.CustomerID)); err != nil {
		return fmt.Errorf("publish order cancelled: %w", err)
	}
	return nil
}
