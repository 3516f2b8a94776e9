package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/joao-fontenele/orderflow-saga/internal/domain"
	"github.com/joao-fontenele/orderflow-saga/internal/storage"
)

type UnitOfWork interface {
	Commit(ctx context.Context) error
}

type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	ListByCustomer(ctx context.Context, customerID string) ([]domain.Order, error)
	Add(order *domain.Order)
	Update(order *domain.Order)
	UnitOfWork() UnitOfWork
}

type VoucherRepository interface {
	GetByCode(ctx context.Context, code string) (*domain.Voucher, error)
	Update(voucher *domain.Voucher)
	UnitOfWork() UnitOfWork
}

// Scope groups the repositories of one request or delivery; their staged
// writes share a single commit.
type Scope interface {
	Orders() Repository
	Vouchers() VoucherRepository
}

type ScopeFactory func() Scope

type PostgresScope struct {
	orders   *OrderRepository
	vouchers *VoucherStore
}

func NewPostgresScope(db *sql.DB) *PostgresScope {
	session := storage.NewSession(db)
	return &PostgresScope{
		orders:   &OrderRepository{session: session, loaded: make(map[string]domain.OrderStatus)},
		vouchers: &VoucherStore{session: session, loaded: make(map[string]int)},
	}
}

func PostgresScopes(db *sql.DB) ScopeFactory {
	return func() Scope { return NewPostgresScope(db) }
}

func (s *PostgresScope) Orders() Repository          { return s.orders }
func (s *PostgresScope) Vouchers() VoucherRepository { return s.vouchers }

// OrderRepository stages writes on a session. Status updates only apply
// when the stored status is still the one this repository loaded.
type OrderRepository struct {
	session *storage.Session
	loaded  map[string]domain.OrderStatus
}

const orderColumns = `
	id, customer_id, status, total, discount, voucher_code,
	street, number, complement, district, city, state, zip_code,
	card_holder, card_last4, created_at, updated_at`

func scanOrder(row interface{ Scan(...any) error }) (domain.Order, error) {
	var o domain.Order
	err := row.Scan(
		&o.ID, &o.CustomerID, &o.Status, &o.Total, &o.Discount, &o.VoucherCode,
		&o.Address.Street, &o.Address.Number, &o.Address.Complement, &o.Address.District,
		&o.Address.City, &o.Address.State, &o.Address.ZipCode,
		&o.Card.Holder, &o.Card.Last4, &o.CreatedAt, &o.UpdatedAt,
	)
	return o, err
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	order, err := scanOrder(r.session.DB().QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	orders := []*domain.Order{&order}
	if err := r.loadItems(ctx, orders); err != nil {
		return nil, err
	}

	r.loaded[order.ID] = order.Status
	return &order, nil
}

func (r *OrderRepository) ListByCustomer(ctx context.Context, customerID string) ([]domain.Order, error) {
	rows, err := r.session.DB().QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE customer_id = $1
		ORDER BY created_at DESC
	`, customerID)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var list []*domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		list = append(list, &order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}

	if err := r.loadItems(ctx, list); err != nil {
		return nil, err
	}

	out := make([]domain.Order, 0, len(list))
	for _, o := range list {
		r.loaded[o.ID] = o.Status
		out = append(out, *o)
	}
	return out, nil
}

// loadItems fills the items of every order with a single query.
func (r *OrderRepository) loadItems(ctx context.Context, list []*domain.Order) error {
	if len(list) == 0 {
		return nil
	}

	byID := make(map[string]*domain.Order, len(list))
	ids := make([]string, 0, len(list))
	for _, o := range list {
		o.Items = []domain.OrderItem{}
		byID[o.ID] = o
		ids = append(ids, o.ID)
	}

	rows, err := r.session.DB().QueryContext(ctx, `
		SELECT order_id, product_id, name, quantity, unit_price, image
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY position
	`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("query order items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var orderID string
		var item domain.OrderItem
		if err := rows.Scan(&orderID, &item.ProductID, &item.Name, &item.Quantity, &item.UnitPrice, &item.Image); err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		if o, ok := byID[orderID]; ok {
			o.Items = append(o.Items, item)
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate order items: %w", err)
	}
	return nil
}

func (r *OrderRepository) Add(order *domain.Order) {
	o := *order
	items := append([]domain.OrderItem(nil), order.Items...)

	r.session.Stage(func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO orders (
				id, customer_id, status, total, discount, voucher_code,
				street, number, complement, district, city, state, zip_code,
				card_holder, card_last4, created_at, updated_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		`, o.ID, o.CustomerID, o.Status, o.Total, o.Discount, o.VoucherCode,
			o.Address.Street, o.Address.Number, o.Address.Complement, o.Address.District,
			o.Address.City, o.Address.State, o.Address.ZipCode,
			o.Card.Holder, o.Card.Last4, o.CreatedAt, o.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		for i, item := range items {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO order_items (id, order_id, position, product_id, name, quantity, unit_price, image)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			`, uuid.New().String(), o.ID, i, item.ProductID, item.Name, item.Quantity, item.UnitPrice, item.Image)
			if err != nil {
				return fmt.Errorf("insert order item: %w", err)
			}
		}
		return nil
	})
}

func (r *OrderRepository) Update(order *domain.Order) {
	id, status, updatedAt := order.ID, order.Status, order.UpdatedAt
	previous, known := r.loaded[id]

	r.session.Stage(func(ctx context.Context, tx *sql.Tx) error {
		query := `
			UPDATE orders SET status = $2, updated_at = $3
			WHERE id = $1`
		args := []any{id, status, updatedAt}
		if known {
			query += ` AND status = $4`
			args = append(args, previous)
		}

		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		return storage.ExpectRows(res, "update order "+id)
	})
}

func (r *OrderRepository) UnitOfWork() UnitOfWork {
	return r.session
}

type VoucherStore struct {
	session *storage.Session
	loaded  map[string]int
}

func (r *VoucherStore) GetByCode(ctx context.Context, code string) (*domain.Voucher, error) {
	v := &domain.Voucher{}
	var usedAt sql.NullTime

	err := r.session.DB().QueryRowContext(ctx, `
		SELECT id, code, kind, percentage, amount, quantity, expires_at, active, used, used_at, created_at
		FROM vouchers
		WHERE code = $1
	`, code).Scan(&v.ID, &v.Code, &v.Kind, &v.Percentage, &v.Amount, &v.Quantity,
		&v.ExpiresAt, &v.Active, &v.Used, &usedAt, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get voucher: %w", err)
	}

	if usedAt.Valid {
		v.UsedAt = &usedAt.Time
	}
	r.loaded[v.ID] = v.Quantity
	return v, nil
}

func (r *VoucherStore) Update(voucher *domain.Voucher) {
	v := *voucher
	expected, known := r.loaded[v.ID]

	r.session.Stage(func(ctx context.Context, tx *sql.Tx) error {
		query := `
			UPDATE vouchers SET quantity = $2, active = $3, used = $4, used_at = $5
			WHERE id = $1`
		args := []any{v.ID, v.Quantity, v.Active, v.Used, v.UsedAt}
		if known {
			query += ` AND quantity = $6`
			args = append(args, expected)
		}

		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("update voucher: %w", err)
		}
		return storage.ExpectRows(res, "update voucher "+v.Code)
	})
}

func (r *VoucherStore) UnitOfWork() UnitOfWork {
	return r.session
}
