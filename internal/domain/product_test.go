package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestProduct_IsAvailable(t *testing.T) {
	p := NewProduct("p1", "Camiseta", decimal.NewFromInt(50), 3)

	if !p.IsAvailable(3) {
		t.Error("expected 3 units to be available")
	}
	if p.IsAvailable(4) {
		t.Error("expected 4 units to be unavailable")
	}

	p.Active = false
	if p.IsAvailable(1) {
		t.Error("inactive product must not be available")
	}
}

func TestProduct_DecrementStock(t *testing.T) {
	p := NewProduct("p1", "Camiseta", decimal.NewFromInt(50), 3)

	if err := p.DecrementStock(2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.StockQuantity != 1 {
		t.Errorf("expected stock 1, got %d", p.StockQuantity)
	}

	if err := p.DecrementStock(2); !errors.Is(err, ErrInsufficientStock) {
		t.Errorf("expected ErrInsufficientStock, got %v", err)
	}
	if p.StockQuantity != 1 {
		t.Errorf("stock must not change on failure, got %d", p.StockQuantity)
	}
}

func TestProduct_NonPositiveQuantity(t *testing.T) {
	for _, quantity := range []int{0, -3} {
		p := NewProduct("p1", "Camiseta", decimal.NewFromInt(50), 3)

		if p.IsAvailable(quantity) {
			t.Errorf("quantity %d must not be available", quantity)
		}
		if err := p.DecrementStock(quantity); !errors.Is(err, ErrInsufficientStock) {
			t.Errorf("quantity %d: expected ErrInsufficientStock, got %v", quantity, err)
		}
		if p.StockQuantity != 3 {
			t.Errorf("quantity %d: stock must not change, got %d", quantity, p.StockQuantity)
		}
	}
}
