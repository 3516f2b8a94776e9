package payments

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joao-fontenele/orderflow-saga/internal/domain"
	"github.com/joao-fontenele/orderflow-saga/internal/messaging"
)

const consumerGroup = "payments"

type Participant struct {
	bus     messaging.Bus
	service *Service
	logger  *slog.Logger
}

func NewParticipant(bus messaging.Bus, service *Service, logger *slog.Logger) *Participant {
	return &Participant{
		bus:     bus,
		service: service,
		logger:  logger,
	}
}

// Start registers the responder and both subscriptions, and registers them
// again after every reconnect.
func (p *Participant) Start() {
	p.register()
	p.bus.OnReconnect(p.register)
}

func (p *Participant) register() {
	messaging.Respond(p.bus, domain.TopicPaymentAuthorizationRequested,
		messaging.ResponderFunc[domain.PaymentAuthorizationRequested, domain.ResponseMessage](p.HandleAuthorizationRequested))
	messaging.Subscribe(p.bus, domain.TopicOrderCancelled, consumerGroup,
		messaging.SubscriberFunc[domain.OrderCancelled](p.HandleOrderCancelled))
	messaging.Subscribe(p.bus, domain.TopicStockReserved, consumerGroup,
		messaging.SubscriberFunc[domain.StockReserved](p.HandleStockReserved))
}

func (p *Participant) HandleAuthorizationRequested(ctx context.Context, req domain.PaymentAuthorizationRequested) (domain.ResponseMessage, error) {
	result, err := p.service.Authorize(ctx, req)
	if err != nil {
		p.logger.Error("failed to authorize payment", "error", err, "order_id", req.OrderID)
		return domain.ResponseMessage{}, err
	}
	return domain.ResponseMessage{ValidationResult: result}, nil
}

// HandleOrderCancelled voids the payment. A void the gateway rejected is
// retried; a payment that was already captured can never be voided and is
// reported as unrecoverable.
func (p *Participant) HandleOrderCancelled(ctx context.Context, event domain.OrderCancelled) error {
	result, err := p.service.Cancel(ctx, event.OrderID)
	if err != nil {
		return fmt.Errorf("cancel payment: %w", err)
	}
	if result.IsValid() {
		return nil
	}

	err = domain.NewDomainError("cancel payment for order "+event.OrderID, result.Err())
	if result.Has(MsgAlreadyCaptured) {
		p.logger.Error("cancelled order was already charged", "order_id", event.OrderID, "error", err)
		return messaging.Unrecoverable(err)
	}
	return err
}

func (p *Participant) HandleStockReserved(ctx context.Context, event domain.StockReserved) error {
	result, err := p.service.Capture(ctx, event.OrderID)
	if err != nil {
		return fmt.Errorf("capture payment: %w", err)
	}
	if !result.IsValid() {
		err := domain.NewDomainError("capture payment for order "+event.OrderID, result.Err())
		if result.Has(MsgPaymentNotFound) || result.Has(MsgNotCapturable) {
			p.logger.Error("reserved order has no payment to capture", "order_id", event.OrderID, "error", err)
			return messaging.Unrecoverable(err)
		}
		return err
	}

	if err := messaging.PublishEvent(ctx, p.bus, domain.TopicOrderPaid, event.OrderID,
		domain.NewOrderPaid(event.OrderID, event.CustomerID)); err != nil {
		return fmt.Errorf("publish order paid: %w", err)
	}
	return nil
}
