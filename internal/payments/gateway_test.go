package payments

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v80"

	"github.com/joao-fontenele/orderflow-saga/internal/domain"
)

func TestLuhnValid(t *testing.T) {
	tests := []struct {
		number string
		want   bool
	}{
		{"4111111111111111", true},
		{"5555555555554444", true},
		{"4111111111111112", false},
		{"1234", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := luhnValid(tt.number); got != tt.want {
			t.Errorf("luhnValid(%q) = %v, want %v", tt.number, got, tt.want)
		}
	}
}

func TestSimulatedGateway_Authorize(t *testing.T) {
	gateway := NewSimulatedGateway([]string{"4000 0000 0000 0002"})
	ctx := context.Background()

	req := AuthorizationRequest{OrderID: "o1", Amount: decimal.NewFromInt(10), Card: domain.Card{Number: "4111 1111 1111 1111"}}
	auth, err := gateway.Authorize(ctx, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if auth.Reference == "" || auth.Code == "" {
		t.Errorf("expected reference and code, got %+v", auth)
	}

	req.Card.Number = "4000000000000002"
	if _, err := gateway.Authorize(ctx, req); !errors.Is(err, ErrCardDeclined) {
		t.Errorf("expected decline list to apply, got %v", err)
	}

	req.Card.Number = "4111111111111112"
	if _, err := gateway.Authorize(ctx, req); !errors.Is(err, ErrCardDeclined) {
		t.Errorf("expected invalid number to be declined, got %v", err)
	}
}

func newStripeTestGateway(t *testing.T, handler http.HandlerFunc) *StripeGateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(srv.URL),
		HTTPClient:        srv.Client(),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	})
	return NewStripeGateway("sk_test_123", "pm_card_visa", WithBackend(backend))
}

func TestStripeGateway_Authorize(t *testing.T) {
	ctx := context.Background()
	req := AuthorizationRequest{OrderID: "o1", CustomerID: "c1", Amount: decimal.RequireFromString("10.50")}

	t.Run("manual capture intent", func(t *testing.T) {
		gateway := newStripeTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasSuffix(r.URL.Path, "/v1/payment_intents") {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			if got := r.Header.Get("Idempotency-Key"); got != "authorize-o1" {
				t.Errorf("expected idempotency key authorize-o1, got %q", got)
			}
			_ = r.ParseForm()
			if r.PostForm.Get("amount") != "1050" || r.PostForm.Get("capture_method") != "manual" {
				t.Errorf("unexpected form: %v", r.PostForm)
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"pi_123","object":"payment_intent","status":"requires_capture"}`))
		})

		auth, err := gateway.Authorize(ctx, req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if auth.Reference != "pi_123" {
			t.Errorf("expected pi_123, got %q", auth.Reference)
		}
	})

	t.Run("card error is a decline", func(t *testing.T) {
		gateway := newStripeTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusPaymentRequired)
			_, _ = w.Write([]byte(`{"error":{"type":"card_error","code":"card_declined","message":"Your card was declined."}}`))
		})

		if _, err := gateway.Authorize(ctx, req); !errors.Is(err, ErrCardDeclined) {
			t.Errorf("expected ErrCardDeclined, got %v", err)
		}
	})
}
