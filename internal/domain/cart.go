package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type CartItem struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Image     string          `json:"image,omitempty"`
}

type Cart struct {
	CustomerID string          `json:"customer_id"`
	Items      []CartItem      `json:"items"`
	Total      decimal.Decimal `json:"total"`
	UpdatedAt  time.Time       `json:"updated_at"`
}
