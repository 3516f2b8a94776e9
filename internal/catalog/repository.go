package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/joao-fontenele/orderflow-saga/internal/domain"
	"github.com/joao-fontenele/orderflow-saga/internal/storage"
)

type UnitOfWork interface {
	Commit(ctx context.Context) error
}

// Repository is scoped to a single message delivery or request.
type Repository interface {
	ListAll(ctx context.Context) ([]domain.Product, error)
	GetByID(ctx context.Context, id string) (*domain.Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]domain.Product, error)
	Update(product *domain.Product)
	// HasReservation reports whether stock was already taken for orderID.
	HasReservation(ctx context.Context, orderID string) (bool, error)
	// AddReservation stages the record that stock was taken for orderID.
	AddReservation(orderID, customerID string)
	UnitOfWork() UnitOfWork
}

// ProductRepository reads products from Postgres and stages stock updates
// on its session. An update only applies if the stock is still the value
// this repository loaded.
type ProductRepository struct {
	session *storage.Session
	loaded  map[string]int
}

func NewProductRepository(db *sql.DB) *ProductRepository {
	return &ProductRepository{
		session: storage.NewSession(db),
		loaded:  make(map[string]int),
	}
}

const productColumns = `id, name, description, price, active, stock_quantity, image, created_at`

func scanProduct(row interface{ Scan(...any) error }) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Active, &p.StockQuantity, &p.Image, &p.CreatedAt)
	return p, err
}

func (r *ProductRepository) ListAll(ctx context.Context) ([]domain.Product, error) {
	return r.query(ctx, `
		SELECT `+productColumns+`
		FROM products
		ORDER BY name
	`)
}

func (r *ProductRepository) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(r.session.DB().QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	r.loaded[p.ID] = p.StockQuantity
	return &p, nil
}

func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]domain.Product, error) {
	return r.query(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = ANY($1)
		ORDER BY id
	`, pq.Array(ids))
}

func (r *ProductRepository) query(ctx context.Context, query string, args ...any) ([]domain.Product, error) {
	rows, err := r.session.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var products []domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		r.loaded[p.ID] = p.StockQuantity
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}

	return products, nil
}

func (r *ProductRepository) Update(product *domain.Product) {
	id, stock, name, price, active := product.ID, product.StockQuantity, product.Name, product.Price, product.Active
	expected, known := r.loaded[id]

	r.session.Stage(func(ctx context.Context, tx *sql.Tx) error {
		query := `
			UPDATE products
			SET name = $2, price = $3, active = $4, stock_quantity = $5
			WHERE id = $1`
		args := []any{id, name, price, active, stock}
		if known {
			query += ` AND stock_quantity = $6`
			args = append(args, expected)
		}

		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("update product %s: %w", id, err)
		}
		return storage.ExpectRows(res, "update product "+id)
	})
}

func (r *ProductRepository) HasReservation(ctx context.Context, orderID string) (bool, error) {
	var exists bool
	err := r.session.DB().QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM stock_reservations WHERE order_id = $1)
	`, orderID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check stock reservation: %w", err)
	}
	return exists, nil
}

// AddReservation conflicts if another delivery reserved the same order first.
func (r *ProductRepository) AddReservation(orderID, customerID string) {
	r.session.Stage(func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO stock_reservations (order_id, customer_id)
			VALUES ($1, $2)
			ON CONFLICT (order_id) DO NOTHING`,
			orderID, customerID)
		if err != nil {
			return fmt.Errorf("insert stock reservation %s: %w", orderID, err)
		}
		return storage.ExpectRows(res, "reserve stock for order "+orderID)
	})
}

func (r *ProductRepository) UnitOfWork() UnitOfWork {
	return r.session
}
