package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func testItems() []OrderItem {
	return []OrderItem{
		{ProductID: "p1", Name: "Camiseta", Quantity: 2, UnitPrice: decimal.NewFromInt(50)},
		{ProductID: "p2", Name: "Caneca", Quantity: 1, UnitPrice: decimal.RequireFromString("19.90")},
	}
}

func TestNewOrder(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

	t.Run("starts in started status with computed total", func(t *testing.T) {
		order := NewOrder("", "c1", testItems(), Address{}, CardReference{}, now)

		if order.ID == "" {
			t.Error("expected generated id")
		}
		if order.Status != OrderStatusStarted {
			t.Errorf("expected started, got %s", order.Status)
		}
		if !order.Total.Equal(decimal.RequireFromString("119.90")) {
			t.Errorf("expected total 119.90, got %s", order.Total)
		}
	})

	t.Run("keeps provided id", func(t *testing.T) {
		order := NewOrder("o1", "c1", testItems(), Address{}, CardReference{}, now)
		if order.ID != "o1" {
			t.Errorf("expected o1, got %s", order.ID)
		}
	})
}

func TestOrder_ApplyVoucher(t *testing.T) {
	now := time.Now()

	t.Run("percentage", func(t *testing.T) {
		order := NewOrder("", "c1", testItems(), Address{}, CardReference{}, now)
		order.ApplyVoucher(&Voucher{Code: "PROMO10", Kind: DiscountPercentage, Percentage: decimal.NewFromInt(10)})

		if !order.Discount.Equal(decimal.RequireFromString("11.99")) {
			t.Errorf("expected discount 11.99, got %s", order.Discount)
		}
		if !order.Total.Equal(decimal.RequireFromString("107.91")) {
			t.Errorf("expected total 107.91, got %s", order.Total)
		}
		if order.VoucherCode != "PROMO10" {
			t.Errorf("expected voucher code, got %q", order.VoucherCode)
		}
	})

	t.Run("amount larger than subtotal is capped", func(t *testing.T) {
		order := NewOrder("", "c1", testItems(), Address{}, CardReference{}, now)
		order.ApplyVoucher(&Voucher{Code: "BIG", Kind: DiscountAmount, Amount: decimal.NewFromInt(500)})

		if !order.Total.IsZero() {
			t.Errorf("expected zero total, got %s", order.Total)
		}
		if !order.Total.Equal(order.Subtotal().Sub(order.Discount)) {
			t.Error("total must equal subtotal minus discount")
		}
	})
}

func TestOrder_Quantities(t *testing.T) {
	items := append(testItems(), OrderItem{ProductID: "p1", Quantity: 3, UnitPrice: decimal.NewFromInt(50)})
	order := NewOrder("", "c1", items, Address{}, CardReference{}, time.Now())

	got := order.Quantities()
	if got["p1"] != 5 || got["p2"] != 1 || len(got) != 2 {
		t.Errorf("unexpected quantities: %v", got)
	}
}

func TestOrder_TransitionTo(t *testing.T) {
	tests := []struct {
		name    string
		path    []OrderStatus
		wantErr bool
	}{
		{name: "authorize", path: []OrderStatus{OrderStatusPaymentAuthorized}},
		{name: "reject", path: []OrderStatus{OrderStatusPaymentRejected}},
		{name: "happy path", path: []OrderStatus{OrderStatusPaymentAuthorized, OrderStatusStockReserved, OrderStatusPaid}},
		{name: "cancel after authorization", path: []OrderStatus{OrderStatusPaymentAuthorized, OrderStatusCancelled}},
		{name: "skip authorization", path: []OrderStatus{OrderStatusPaid}, wantErr: true},
		{name: "leave paid", path: []OrderStatus{OrderStatusPaymentAuthorized, OrderStatusStockReserved, OrderStatusPaid, OrderStatusCancelled}, wantErr: true},
		{name: "re-enter cancelled", path: []OrderStatus{OrderStatusPaymentAuthorized, OrderStatusCancelled, OrderStatusCancelled}, wantErr: true},
		{name: "leave rejected", path: []OrderStatus{OrderStatusPaymentRejected, OrderStatusPaymentAuthorized}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order := NewOrder("", "c1", testItems(), Address{}, CardReference{}, time.Now())

			var err error
			for _, next := range tt.path {
				if err = order.TransitionTo(next, time.Now()); err != nil {
					break
				}
			}

			if tt.wantErr && !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("expected ErrInvalidTransition, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestOrderStatus_IsTerminal(t *testing.T) {
	for _, s := range []OrderStatus{OrderStatusPaymentRejected, OrderStatusCancelled, OrderStatusPaid} {
		if !s.IsTerminal() {
			t.Errorf("expected %s to be terminal", s)
		}
	}
	for _, s := range []OrderStatus{OrderStatusStarted, OrderStatusPaymentAuthorized, OrderStatusStockReserved} {
		if s.IsTerminal() {
			t.Errorf("expected %s not to be terminal", s)
		}
	}
}
