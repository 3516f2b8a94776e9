package payments

import (
	"context"
	"errors"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/orderflow-saga/internal/domain"
)

var ErrCardDeclined = errors.New("card declined")

type AuthorizationRequest struct {
	OrderID    string
	CustomerID string
	Amount     decimal.Decimal
	Card       domain.Card
}

type Authorization struct {
	Reference string
	Code      string
}

// Gateway talks to a card processor. Implementations use the order id as
// the idempotency key, so repeating a call for the same order is safe.
type Gateway interface {
	Authorize(ctx context.Context, req AuthorizationRequest) (Authorization, error)
	Capture(ctx context.Context, orderID, reference string, amount decimal.Decimal) error
	Void(ctx context.Context, orderID, reference string) error
}

// SimulatedGateway approves any card that passes the Luhn check and is not
// on the decline list.
type SimulatedGateway struct {
	declined map[string]bool
}

func NewSimulatedGateway(declined []string) *SimulatedGateway {
	g := &SimulatedGateway{declined: make(map[string]bool, len(declined))}
	for _, number := range declined {
		g.declined[digitsOnly(number)] = true
	}
	return g
}

func (g *SimulatedGateway) Authorize(_ context.Context, req AuthorizationRequest) (Authorization, error) {
	number := digitsOnly(req.Card.Number)
	if !luhnValid(number) || g.declined[number] || !req.Amount.IsPositive() {
		return Authorization{}, ErrCardDeclined
	}

	return Authorization{
		Reference: "sim_" + uuid.New().String(),
		Code:      strings.ToUpper(uuid.New().String()[:8]),
	}, nil
}

func (g *SimulatedGateway) Capture(context.Context, string, string, decimal.Decimal) error {
	return nil
}

func (g *SimulatedGateway) Void(context.Context, string, string) error {
	return nil
}

func digitsOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}

func luhnValid(number string) bool {
	if len(number) < 12 || len(number) > 19 {
		return false
	}

	sum := 0
	double := false
	for i := len(number) - 1; i >= 0; i-- {
		d := int(number[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}
