package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var ErrInsufficientStock = errors.New("insufficient stock")

type Product struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description,omitempty"`
	Price         decimal.Decimal `json:"price"`
	Active        bool            `json:"active"`
	StockQuantity int             `json:"stock_quantity"`
	Image         string          `json:"image,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

func NewProduct(id, name string, price decimal.Decimal, stock int) *Product {
	return &Product{
		ID:            id,
		Name:          name,
		Price:         price,
		Active:        true,
		StockQuantity: stock,
	}
}

// IsAvailable reports whether quantity units can be taken. Only positive
// quantities are ever available.
func (p *Product) IsAvailable(quantity int) bool {
	return p.Active && quantity > 0 && p.StockQuantity >= quantity
}

func (p *Product) DecrementStock(quantity int) error {
	if quantity <= 0 || quantity > p.StockQuantity {
		return ErrInsufficientStock
	}
	p.StockQuantity -= quantity
	return nil
}
