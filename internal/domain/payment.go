package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Card holds the raw card data sent along with an authorization request.
type Card struct {
	Holder string `json:"holder"`
	Number string `json:"number"`
	Expiry string `json:"expiry"`
	CVV    string `json:"cvv"`
}

// CardReference is the part of a card that may be stored.
type CardReference struct {
	Holder string `json:"holder"`
	Last4  string `json:"last4"`
}

func (c Card) Reference() CardReference {
	last4 := c.Number
	if len(last4) > 4 {
		last4 = last4[len(last4)-4:]
	}
	return CardReference{Holder: c.Holder, Last4: last4}
}

type TransactionStatus string

const (
	TransactionAuthorized TransactionStatus = "authorized"
	TransactionPaid       TransactionStatus = "paid"
	TransactionCancelled  TransactionStatus = "cancelled"
	TransactionRefused    TransactionStatus = "refused"
)

type Transaction struct {
	ID                string            `json:"id"`
	PaymentID         string            `json:"payment_id"`
	Status            TransactionStatus `json:"status"`
	Amount            decimal.Decimal   `json:"amount"`
	AuthorizationCode string            `json:"authorization_code,omitempty"`
	GatewayReference  string            `json:"gateway_reference,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
}

type Payment struct {
	ID           string          `json:"id"`
	OrderID      string          `json:"order_id"`
	Amount       decimal.Decimal `json:"amount"`
	Card         CardReference   `json:"card"`
	Transactions []Transaction   `json:"transactions"`
	CreatedAt    time.Time       `json:"created_at"`
}

func NewPayment(orderID string, amount decimal.Decimal, card CardReference, now time.Time) *Payment {
	return &Payment{
		ID:        uuid.New().String(),
		OrderID:   orderID,
		Amount:    amount,
		Card:      card,
		CreatedAt: now,
	}
}

// Record appends a transaction in the given status and returns it.
func (p *Payment) Record(status TransactionStatus, authorizationCode, reference string, now time.Time) Transaction {
	t := Transaction{
		ID:                uuid.New().String(),
		PaymentID:         p.ID,
		Status:            status,
		Amount:            p.Amount,
		AuthorizationCode: authorizationCode,
		GatewayReference:  reference,
		CreatedAt:         now,
	}
	p.Transactions = append(p.Transactions, t)
	return t
}

// Latest returns the most recent transaction, or nil if there is none.
func (p *Payment) Latest() *Transaction {
	if len(p.Transactions) == 0 {
		return nil
	}
	return &p.Transactions[len(p.Transactions)-1]
}

// Authorization returns the authorized transaction, or nil.
func (p *Payment) Authorization() *Transaction {
	for i := range p.Transactions {
		if p.Transactions[i].Status == TransactionAuthorized {
			return &p.Transactions[i]
		}
	}
	return nil
}
