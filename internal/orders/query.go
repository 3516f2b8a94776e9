package orders

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/joao-fontenele/orderflow-saga/internal/domain"
)

type AuthorizedItem struct {
	ProductID string
	Quantity  int
}

// AuthorizedOrder is the read model the relay forwards to the catalog.
type AuthorizedOrder struct {
	OrderID    string
	CustomerID string
	CreatedAt  time.Time
	Items      []AuthorizedItem
}

// Quantities sums quantities per product.
func (o *AuthorizedOrder) Quantities() map[string]int {
	out := make(map[string]int, len(o.Items))
	for _, item := range o.Items {
		out[item.ProductID] += item.Quantity
	}
	return out
}

type AuthorizedOrderQuery interface {
	// NextAuthorized returns the oldest PaymentAuthorized order that was never
	// forwarded or was last forwarded before forwardedBefore, or nil.
	NextAuthorized(ctx context.Context, forwardedBefore time.Time) (*AuthorizedOrder, error)
	MarkForwarded(ctx context.Context, orderID string, at time.Time) error
}

type PostgresAuthorizedOrderQuery struct {
	db *sql.DB
}

func NewPostgresAuthorizedOrderQuery(db *sql.DB) *PostgresAuthorizedOrderQuery {
	return &PostgresAuthorizedOrderQuery{db: db}
}

// authorizedOrderRow is one row of the order/items join. Item columns are
// NULL for an order without items.
type authorizedOrderRow struct {
	OrderID    string
	CustomerID string
	CreatedAt  time.Time
	ProductID  sql.NullString
	Quantity   sql.NullInt64
}

func (q *PostgresAuthorizedOrderQuery) NextAuthorized(ctx context.Context, forwardedBefore time.Time) (*AuthorizedOrder, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT o.id, o.customer_id, o.created_at, i.product_id, i.quantity
		FROM orders o
		LEFT JOIN order_items i ON i.order_id = o.id
		WHERE o.id = (
			SELECT id
			FROM orders
			WHERE status = $1
			  AND (forwarded_at IS NULL OR forwarded_at < $2)
			ORDER BY created_at
			LIMIT 1
		)
		ORDER BY i.position
	`, domain.OrderStatusPaymentAuthorized, forwardedBefore)
	if err != nil {
		return nil, fmt.Errorf("query authorized order: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []authorizedOrderRow
	for rows.Next() {
		var row authorizedOrderRow
		if err := rows.Scan(&row.OrderID, &row.CustomerID, &row.CreatedAt, &row.ProductID, &row.Quantity); err != nil {
			return nil, fmt.Errorf("scan authorized order: %w", err)
		}
		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate authorized order: %w", err)
	}

	return mapAuthorizedOrder(result), nil
}

func (q *PostgresAuthorizedOrderQuery) MarkForwarded(ctx context.Context, orderID string, at time.Time) error {
	if _, err := q.db.ExecContext(ctx, `
		UPDATE orders SET forwarded_at = $2
		WHERE id = $1
	`, orderID, at); err != nil {
		return fmt.Errorf("mark order forwarded: %w", err)
	}
	return nil
}

// mapAuthorizedOrder folds join rows into one order. Rows with a NULL
// product are skipped and repeated products have their quantities summed.
func mapAuthorizedOrder(rows []authorizedOrderRow) *AuthorizedOrder {
	if len(rows) == 0 {
		return nil
	}

	order := &AuthorizedOrder{
		OrderID:    rows[0].OrderID,
		CustomerID: rows[0].CustomerID,
		CreatedAt:  rows[0].CreatedAt,
	}

	index := make(map[string]int)
	for _, row := range rows {
		if !row.ProductID.Valid {
			continue
		}
		qty := 0
		if row.Quantity.Valid {
			qty = int(row.Quantity.Int64)
		}
		if i, ok := index[row.ProductID.String]; ok {
			order.Items[i].Quantity += qty
			continue
		}
		index[row.ProductID.String] = len(order.Items)
		order.Items = append(order.Items, AuthorizedItem{ProductID: row.ProductID.String, Quantity: qty})
	}

	return order
}
