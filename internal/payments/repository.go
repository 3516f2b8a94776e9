package payments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/joao-fontenele/orderflow-saga/internal/domain"
	"github.com/joao-fontenele/orderflow-saga/internal/storage"
)

type UnitOfWork interface {
	Commit(ctx context.Context) error
}

type Repository interface {
	GetByOrderID(ctx context.Context, orderID string) (*domain.Payment, error)
	Add(payment *domain.Payment)
	AddTransaction(transaction domain.Transaction)
	UnitOfWork() UnitOfWork
}

type PaymentRepository struct {
	session *storage.Session
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{session: storage.NewSession(db)}
}

func (r *PaymentRepository) GetByOrderID(ctx context.Context, orderID string) (*domain.Payment, error) {
	p := &domain.Payment{}

	err := r.session.DB().QueryRowContext(ctx, `
		SELECT id, order_id, amount, card_holder, card_last4, created_at
		FROM payments
		WHERE order_id = $1
	`, orderID).Scan(&p.ID, &p.OrderID, &p.Amount, &p.Card.Holder, &p.Card.Last4, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get payment: %w", err)
	}

	rows, err := r.session.DB().QueryContext(ctx, `
		SELECT id, payment_id, status, amount, authorization_code, gateway_reference, created_at
		FROM transactions
		WHERE payment_id = $1
		ORDER BY created_at, seq
	`, p.ID)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var t domain.Transaction
		if err := rows.Scan(&t.ID, &t.PaymentID, &t.Status, &t.Amount, &t.AuthorizationCode, &t.GatewayReference, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		p.Transactions = append(p.Transactions, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}

	return p, nil
}

func (r *PaymentRepository) Add(payment *domain.Payment) {
	p := *payment
	r.session.Stage(func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO payments (id, order_id, amount, card_holder, card_last4, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, p.ID, p.OrderID, p.Amount, p.Card.Holder, p.Card.Last4, p.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}
		return nil
	})
	for _, t := range p.Transactions {
		r.AddTransaction(t)
	}
}

func (r *PaymentRepository) AddTransaction(t domain.Transaction) {
	r.session.Stage(func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO transactions (id, payment_id, status, amount, authorization_code, gateway_reference, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, t.ID, t.PaymentID, t.Status, t.Amount, t.AuthorizationCode, t.GatewayReference, t.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
		return nil
	})
}

func (r *PaymentRepository) UnitOfWork() UnitOfWork {
	return r.session
}
