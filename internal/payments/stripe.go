package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/paymentintent"
)

const defaultCurrency = "brl"

// StripeGateway authorizes with a manually captured PaymentIntent, so
// Capture and Void map to capturing or cancelling that intent.
type StripeGateway struct {
	client        *paymentintent.Client
	paymentMethod string
	currency      string
}

type StripeOption func(*StripeGateway)

// WithBackend points the gateway at a custom Stripe backend.
func WithBackend(backend stripe.Backend) StripeOption {
	return func(g *StripeGateway) {
		g.client.B = backend
	}
}

func WithCurrency(currency string) StripeOption {
	return func(g *StripeGateway) {
		g.currency = currency
	}
}

// NewStripeGateway charges paymentMethod, a Stripe payment method id, for
// every order. Raw card numbers never leave this service.
func NewStripeGateway(secretKey, paymentMethod string, opts ...StripeOption) *StripeGateway {
	g := &StripeGateway{
		client: &paymentintent.Client{
			B:   stripe.GetBackend(stripe.APIBackend),
			Key: secretKey,
		},
		paymentMethod: paymentMethod,
		currency:      defaultCurrency,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func (g *StripeGateway) Authorize(ctx context.Context, req AuthorizationRequest) (Authorization, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(toMinorUnits(req.Amount)),
		Currency:      stripe.String(g.currency),
		PaymentMethod: stripe.String(g.paymentMethod),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		Confirm:       stripe.Bool(true),
	}
	params.Context = ctx
	params.SetIdempotencyKey("authorize-" + req.OrderID)
	params.AddMetadata("order_id", req.OrderID)
	params.AddMetadata("customer_id", req.CustomerID)

	pi, err := g.client.New(params)
	if err != nil {
		if isCardError(err) {
			return Authorization{}, fmt.Errorf("%w: %v", ErrCardDeclined, err)
		}
		return Authorization{}, fmt.Errorf("create payment intent: %w", err)
	}

	if pi.Status != stripe.PaymentIntentStatusRequiresCapture {
		return Authorization{}, fmt.Errorf("%w: payment intent %s is %s", ErrCardDeclined, pi.ID, pi.Status)
	}

	return Authorization{Reference: pi.ID, Code: pi.ID}, nil
}

func (g *StripeGateway) Capture(ctx context.Context, orderID, reference string, amount decimal.Decimal) error {
	params := &stripe.PaymentIntentCaptureParams{
		AmountToCapture: stripe.Int64(toMinorUnits(amount)),
	}
	params.Context = ctx
	params.SetIdempotencyKey("capture-" + orderID)

	if _, err := g.client.Capture(reference, params); err != nil {
		return fmt.Errorf("capture payment intent: %w", err)
	}
	return nil
}

func (g *StripeGateway) Void(ctx context.Context, orderID, reference string) error {
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	params.SetIdempotencyKey("void-" + orderID)

	if _, err := g.client.Cancel(reference, params); err != nil {
		return fmt.Errorf("cancel payment intent: %w", err)
	}
	return nil
}

func isCardError(err error) bool {
	var stripeErr *stripe.Error
	return errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeCard
}
