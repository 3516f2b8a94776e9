package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusStarted           OrderStatus = "started"
	OrderStatusPaymentAuthorized OrderStatus = "payment_authorized"
	OrderStatusPaymentRejected   OrderStatus = "payment_rejected"
	OrderStatusStockReserved     OrderStatus = "stock_reserved"
	OrderStatusPaid              OrderStatus = "paid"
	OrderStatusCancelled         OrderStatus = "cancelled"
)

var ErrInvalidTransition = errors.New("invalid order status transition")

// orderTransitions lists the statuses reachable from each non-terminal status.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusStarted:           {OrderStatusPaymentAuthorized, OrderStatusPaymentRejected},
	OrderStatusPaymentAuthorized: {OrderStatusStockReserved, OrderStatusCancelled},
	OrderStatusStockReserved:     {OrderStatusPaid, OrderStatusCancelled},
}

// IsTerminal reports whether no further transition is allowed out of s.
func (s OrderStatus) IsTerminal() bool {
	return len(orderTransitions[s]) == 0
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type OrderItem struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Image     string          `json:"image,omitempty"`
}

func (i OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Address struct {
	Street     string `json:"street"`
	Number     string `json:"number"`
	Complement string `json:"complement,omitempty"`
	District   string `json:"district"`
	City       string `json:"city"`
	State      string `json:"state"`
	ZipCode    string `json:"zip_code"`
}

type Order struct {
	ID          string          `json:"id"`
	CustomerID  string          `json:"customer_id"`
	Items       []OrderItem     `json:"items"`
	Total       decimal.Decimal `json:"total"`
	Discount    decimal.Decimal `json:"discount"`
	VoucherCode string          `json:"voucher_code,omitempty"`
	Address     Address         `json:"address"`
	Card        CardReference   `json:"card"`
	Status      OrderStatus     `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// NewOrder builds an order in the Started status. An empty id gets a fresh UUID.
func NewOrder(id, customerID string, items []OrderItem, address Address, card CardReference, now time.Time) *Order {
	if id == "" {
		id = uuid.New().String()
	}
	o := &Order{
		ID:         id,
		CustomerID: customerID,
		Items:      items,
		Address:    address,
		Card:       card,
		Status:     OrderStatusStarted,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	o.CalculateTotal()
	return o
}

func (o *Order) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, item := range o.Items {
		sum = sum.Add(item.Subtotal())
	}
	return sum
}

// ApplyVoucher records the voucher code and recomputes discount and total.
func (o *Order) ApplyVoucher(v *Voucher) {
	o.VoucherCode = v.Code
	o.Discount = v.DiscountFor(o.Subtotal())
	o.CalculateTotal()
}

func (o *Order) CalculateTotal() {
	o.Total = o.Subtotal().Sub(o.Discount)
}

// Quantities sums the requested quantity per product.
func (o *Order) Quantities() map[string]int {
	quantities := make(map[string]int, len(o.Items))
	for _, item := range o.Items {
		quantities[item.ProductID] += item.Quantity
	}
	return quantities
}

func (o *Order) TransitionTo(next OrderStatus, now time.Time) error {
	if !o.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, next)
	}
	o.Status = next
	o.UpdatedAt = now
	return nil
}
