package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	TopicPaymentAuthorizationRequested = "payment.authorization.requested"
	TopicOrderAuthorized               = "order.authorized"
	TopicOrderCancelled                = "order.cancelled"
	TopicStockReserved                 = "order.stock-reserved"
	TopicOrderPaid                     = "order.paid"
	TopicOrderPlaced                   = "order.placed"
)

// IntegrationEvent is embedded in every message crossing a service boundary.
type IntegrationEvent struct {
	MessageID string    `json:"message_id"`
	Timestamp time.Time `json:"timestamp"`
}

func newIntegrationEvent() IntegrationEvent {
	return IntegrationEvent{
		MessageID: uuid.New().String(),
		Timestamp: time.Now().UTC(),
	}
}

type PaymentAuthorizationRequested struct {
	IntegrationEvent
	OrderID    string          `json:"order_id"`
	CustomerID string          `json:"customer_id"`
	Amount     decimal.Decimal `json:"amount"`
	Card       Card            `json:"card"`
}

func NewPaymentAuthorizationRequested(order *Order, card Card) PaymentAuthorizationRequested {
	return PaymentAuthorizationRequested{
		IntegrationEvent: newIntegrationEvent(),
		OrderID:          order.ID,
		CustomerID:       order.CustomerID,
		Amount:           order.Total,
		Card:             card,
	}
}

// ResponseMessage is the reply to a correlated request.
type ResponseMessage struct {
	ValidationResult ValidationResult `json:"validation_result"`
}

type OrderAuthorized struct {
	IntegrationEvent
	OrderID    string         `json:"order_id"`
	CustomerID string         `json:"customer_id"`
	Items      map[string]int `json:"items"`
}

func NewOrderAuthorized(orderID, customerID string, items map[string]int) OrderAuthorized {
	return OrderAuthorized{
		IntegrationEvent: newIntegrationEvent(),
		OrderID:          orderID,
		CustomerID:       customerID,
		Items:            items,
	}
}

type OrderCancelled struct {
	IntegrationEvent
	OrderID    string `json:"order_id"`
	CustomerID string `json:"customer_id"`
}

func NewOrderCancelled(orderID, customerID string) OrderCancelled {
	return OrderCancelled{IntegrationEvent: newIntegrationEvent(), OrderID: orderID, CustomerID: customerID}
}

type StockReserved struct {
	IntegrationEvent
	OrderID    string `json:"order_id"`
	CustomerID string `json:"customer_id"`
}

func NewStockReserved(orderID, customerID string) StockReserved {
	return StockReserved{IntegrationEvent: newIntegrationEvent(), OrderID: orderID, CustomerID: customerID}
}

type OrderPaid struct {
	IntegrationEvent
	OrderID    string `json:"order_id"`
	CustomerID string `json:"customer_id"`
}

func NewOrderPaid(orderID, customerID string) OrderPaid {
	return OrderPaid{IntegrationEvent: newIntegrationEvent(), OrderID: orderID, CustomerID: customerID}
}

type OrderPlaced struct {
	IntegrationEvent
	OrderID    string `json:"order_id"`
	CustomerID string `json:"customer_id"`
}

func NewOrderPlaced(orderID, customerID string) OrderPlaced {
	return OrderPlaced{IntegrationEvent: newIntegrationEvent(), OrderID: orderID, CustomerID: customerID}
}
