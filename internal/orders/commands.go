package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/orderflow-saga/internal/domain"
	"github.com/joao-fontenele/orderflow-saga/internal/messaging"
	"github.com/joao-fontenele/orderflow-saga/internal/telemetry"
)

const (
	MsgCustomerRequired   = "Id do cliente inválido"
	MsgItemsRequired      = "O pedido precisa ter no mínimo 1 item"
	MsgItemProduct        = "Informe o produto do item"
	MsgItemQuantity       = "A quantidade mínima de um item é 1"
	MsgItemPrice          = "O valor do item não pode ser negativo"
	MsgCardHolder         = "Informe o nome do portador do cartão"
	MsgCardNumber         = "Informe o número do cartão"
	MsgCardExpiry         = "Informe a validade do cartão"
	MsgCardCVV            = "Informe o código de segurança do cartão"
	MsgAddressRequired    = "Informe o endereço de entrega completo"
	MsgVoucherNotFound    = "O voucher informado não existe!"
	MsgDiscountMismatch   = "O valor do desconto não confere com o voucher aplicado"
	MsgTotalMismatch      = "O valor total do pedido não confere com o cálculo do pedido"
	MsgPaymentUnavailable = "Não foi possível processar o pagamento, tente novamente mais tarde"
)

const DefaultAuthorizationTimeout = 30 * time.Second

// SubmitOrder is the checkout command. OrderID is optional; callers that
// need the id up front may set it.
type SubmitOrder struct {
	OrderID     string             `json:"order_id,omitempty"`
	CustomerID  string             `json:"customer_id"`
	Items       []domain.OrderItem `json:"items"`
	Total       decimal.Decimal    `json:"total"`
	Discount    decimal.Decimal    `json:"discount"`
	VoucherCode string             `json:"voucher_code,omitempty"`
	Address     domain.Address     `json:"address"`
	Card        domain.Card        `json:"card"`
}

// Validate checks the shape of the command without touching any store.
func (c SubmitOrder) Validate() domain.ValidationResult {
	var result domain.ValidationResult

	if c.CustomerID == "" {
		result.Add("customer_id", MsgCustomerRequired)
	}
	if len(c.Items) == 0 {
		result.Add("items", MsgItemsRequired)
	}
	for i, item := range c.Items {
		field := fmt.Sprintf("items[%d]", i)
		if item.ProductID == "" {
			result.Add(field+".product_id", MsgItemProduct)
		}
		if item.Quantity <= 0 {
			result.Add(field+".quantity", MsgItemQuantity)
		}
		if item.UnitPrice.IsNegative() {
			result.Add(field+".unit_price", MsgItemPrice)
		}
	}

	if c.Card.Holder == "" {
		result.Add("card.holder", MsgCardHolder)
	}
	if c.Card.Number == "" {
		result.Add("card.number", MsgCardNumber)
	}
	if c.Card.Expiry == "" {
		result.Add("card.expiry", MsgCardExpiry)
	}
	if c.Card.CVV == "" {
		result.Add("card.cvv", MsgCardCVV)
	}

	a := c.Address
	if a.Street == "" || a.Number == "" || a.District == "" || a.City == "" || a.State == "" || a.ZipCode == "" {
		result.Add("address", MsgAddressRequired)
	}

	return result
}

// CommandHandler validates checkouts, asks Payments for an authorization
// and persists authorized orders. The relay forwards them afterwards.
type CommandHandler struct {
	newScope ScopeFactory
	bus      messaging.Bus
	timeout  time.Duration
	metrics  *telemetry.SagaMetrics
	logger   *slog.Logger
	now      func() time.Time
}

type CommandHandlerOption func(*CommandHandler)

func WithAuthorizationTimeout(d time.Duration) CommandHandlerOption {
	return func(h *CommandHandler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

func WithMetrics(m *telemetry.SagaMetrics) CommandHandlerOption {
	return func(h *CommandHandler) {
		h.metrics = m
	}
}

func WithClock(now func() time.Time) CommandHandlerOption {
	return func(h *CommandHandler) {
		h.now = now
	}
}

func NewCommandHandler(newScope ScopeFactory, bus messaging.Bus, logger *slog.Logger, opts ...CommandHandlerOption) *CommandHandler {
	h := &CommandHandler{
		newScope: newScope,
		bus:      bus,
		timeout:  DefaultAuthorizationTimeout,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle returns a non-empty ValidationResult for anything the customer can
// fix, and a *domain.DomainError when an authorized order could not be saved.
func (h *CommandHandler) Handle(ctx context.Context, cmd SubmitOrder) (domain.ValidationResult, error) {
	if result := cmd.Validate(); !result.IsValid() {
		h.metrics.OrderSubmitted(ctx, "invalid")
		return result, nil
	}

	now := h.now()
	scope := h.newScope()
	order := domain.NewOrder(cmd.OrderID, cmd.CustomerID, cmd.Items, cmd.Address, cmd.Card.Reference(), now)
	logger := h.logger.With("order_id", order.ID, "customer_id", order.CustomerID)

	var voucher *domain.Voucher
	if cmd.VoucherCode != "" {
		var err error
		voucher, err = scope.Vouchers().GetByCode(ctx, cmd.VoucherCode)
		if err != nil {
			return domain.ValidationResult{}, fmt.Errorf("get voucher: %w", err)
		}
		if voucher == nil {
			h.metrics.OrderSubmitted(ctx, "invalid")
			return invalid("voucher_code", MsgVoucherNotFound), nil
		}
		if result := voucher.Validate(now); !result.IsValid() {
			h.metrics.OrderSubmitted(ctx, "invalid")
			return result, nil
		}
		order.ApplyVoucher(voucher)
	}

	var result domain.ValidationResult
	if !order.Discount.Equal(cmd.Discount) {
		result.Add("discount", MsgDiscountMismatch)
	}
	if !order.Total.Equal(cmd.Total) {
		result.Add("total", MsgTotalMismatch)
	}
	if !result.IsValid() {
		h.metrics.OrderSubmitted(ctx, "invalid")
		return result, nil
	}

	started := time.Now()
	resp, err := messaging.Request[domain.PaymentAuthorizationRequested, domain.ResponseMessage](
		ctx, h.bus, domain.TopicPaymentAuthorizationRequested,
		domain.NewPaymentAuthorizationRequested(order, cmd.Card), h.timeout)
	h.metrics.ObserveAuthorization(ctx, time.Since(started))
	if err != nil {
		if errors.Is(err, messaging.ErrRequestTimeout) {
			logger.Warn("payment authorization timed out", "timeout", h.timeout)
		} else {
			logger.Error("payment authorization failed", "error", err)
		}
		h.abandon(ctx, logger, order)
		h.metrics.OrderSubmitted(ctx, "unavailable")
		return invalid("payment", MsgPaymentUnavailable), nil
	}

	if !resp.ValidationResult.IsValid() {
		_ = order.TransitionTo(domain.OrderStatusPaymentRejected, now)
		logger.Info("payment rejected", "errors", resp.ValidationResult.Messages())
		h.metrics.OrderSubmitted(ctx, "rejected")
		return resp.ValidationResult, nil
	}

	if err := order.TransitionTo(domain.OrderStatusPaymentAuthorized, now); err != nil {
		return domain.ValidationResult{}, domain.NewDomainError("authorize order", err)
	}

	orders := scope.Orders()
	orders.Add(order)
	if voucher != nil {
		voucher.MarkUsed(now)
		scope.Vouchers().Update(voucher)
	}

	if err := orders.UnitOfWork().Commit(ctx); err != nil {
		logger.Error("failed to persist authorized order", "error", err)
		h.metrics.OrderSubmitted(ctx, "failed")
		return domain.ValidationResult{}, domain.NewDomainError("persist order", err)
	}

	logger.Info("order authorized", "total", order.Total.String(), "voucher_code", order.VoucherCode)
	h.metrics.OrderSubmitted(ctx, "accepted")
	return domain.ValidationResult{}, nil
}

// abandon publishes OrderCancelled for an order whose authorization request
// went unanswered, so payments voids or refuses whatever authorization the
// request produced.
func (h *CommandHandler) abandon(ctx context.Context, logger *slog.Logger, order *domain.Order) {
	event := domain.NewOrderCancelled(order.ID, order.CustomerID)
	if err := messaging.PublishEvent(context.WithoutCancel(ctx), h.bus, domain.TopicOrderCancelled, order.ID, event); err != nil {
		logger.Error("failed to cancel abandoned order", "error", err)
		return
	}
	logger.Info("abandoned order cancelled")
}

func invalid(field, message string) domain.ValidationResult {
	var result domain.ValidationResult
	result.Add(field, message)
	return result
}
