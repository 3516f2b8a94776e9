package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/orderflow-saga/internal/domain"
)

const (
	MsgPaymentRefused  = "Pagamento recusado, entre em contato com a sua operadora de cartão"
	MsgPaymentNotFound = "Transação não encontrada para o pedido"
	MsgCaptureFailed   = "Não foi possível capturar o pagamento do pedido"
	MsgVoidFailed      = "Não foi possível cancelar o pagamento do pedido"
	MsgAlreadyCaptured = "O pagamento do pedido já foi capturado"
	MsgNotCapturable   = "O pagamento do pedido não está autorizado para captura"
	paymentField       = "payment"
)

// Service runs payment operations keyed by order id. Each call uses a fresh
// repository, and repeated calls for the same order are no-ops once the
// payment reached the requested state.
type Service struct {
	newRepository func() Repository
	gateway       Gateway
	logger        *slog.Logger
	now           func() time.Time
}

func NewService(newRepository func() Repository, gateway Gateway, logger *slog.Logger) *Service {
	return &Service{
		newRepository: newRepository,
		gateway:       gateway,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func refused(message string) domain.ValidationResult {
	var result domain.ValidationResult
	result.Add(paymentField, message)
	return result
}

func (s *Service) Authorize(ctx context.Context, req domain.PaymentAuthorizationRequested) (domain.ValidationResult, error) {
	repo := s.newRepository()
	logger := s.logger.With("order_id", req.OrderID)

	existing, err := repo.GetByOrderID(ctx, req.OrderID)
	if err != nil {
		return domain.ValidationResult{}, fmt.Errorf("load payment: %w", err)
	}
	if existing != nil {
		logger.Info("authorization already processed", "status", existing.Latest().Status)
		switch existing.Latest().Status {
		case domain.TransactionAuthorized, domain.TransactionPaid:
			return domain.ValidationResult{}, nil
		default:
			return refused(MsgPaymentRefused), nil
		}
	}

	payment := domain.NewPayment(req.OrderID, req.Amount, req.Card.Reference(), s.now())

	auth, err := s.gateway.Authorize(ctx, AuthorizationRequest{
		OrderID:    req.OrderID,
		CustomerID: req.CustomerID,
		Amount:     req.Amount,
		Card:       req.Card,
	})
	if errors.Is(err, ErrCardDeclined) {
		payment.Record(domain.TransactionRefused, "", "", s.now())
		repo.Add(payment)
		if err := repo.UnitOfWork().Commit(ctx); err != nil {
			return domain.ValidationResult{}, fmt.Errorf("save refused payment: %w", err)
		}
		logger.Info("payment refused")
		return refused(MsgPaymentRefused), nil
	}
	if err != nil {
		return domain.ValidationResult{}, fmt.Errorf("authorize payment: %w", err)
	}

	payment.Record(domain.TransactionAuthorized, auth.Code, auth.Reference, s.now())
	repo.Add(payment)
	if err := repo.UnitOfWork().Commit(ctx); err != nil {
		if voidErr := s.gateway.Void(ctx, req.OrderID, auth.Reference); voidErr != nil {
			logger.Error("failed to void unsaved authorization", "error", voidErr, "reference", auth.Reference)
		}
		return domain.ValidationResult{}, fmt.Errorf("save authorized payment: %w", err)
	}

	logger.Info("payment authorized", "amount", req.Amount.String())
	return domain.ValidationResult{}, nil
}

func (s *Service) Capture(ctx context.Context, orderID string) (domain.ValidationResult, error) {
	repo := s.newRepository()
	logger := s.logger.With("order_id", orderID)

	payment, err := repo.GetByOrderID(ctx, orderID)
	if err != nil {
		return domain.ValidationResult{}, fmt.Errorf("load payment: %w", err)
	}
	if payment == nil {
		return refused(MsgPaymentNotFound), nil
	}

	latest := payment.Latest()
	if latest.Status == domain.TransactionPaid {
		logger.Info("payment already captured")
		return domain.ValidationResult{}, nil
	}
	if latest.Status != domain.TransactionAuthorized {
		logger.Warn("payment cannot be captured", "status", latest.Status)
		return refused(MsgNotCapturable), nil
	}

	if err := s.gateway.Capture(ctx, orderID, latest.GatewayReference, payment.Amount); err != nil {
		logger.Error("gateway capture failed", "error", err)
		return refused(MsgCaptureFailed), nil
	}

	repo.AddTransaction(payment.Record(domain.TransactionPaid, latest.AuthorizationCode, latest.GatewayReference, s.now()))
	if err := repo.UnitOfWork().Commit(ctx); err != nil {
		return domain.ValidationResult{}, fmt.Errorf("save capture: %w", err)
	}

	logger.Info("payment captured", "amount", payment.Amount.String())
	return domain.ValidationResult{}, nil
}

// Cancel voids the authorization for orderID. A missing or already
// cancelled payment is not an error. A missing payment is recorded as
// cancelled without calling the gateway, so an authorization request for the
// order that is still in flight gets refused when it arrives.
func (s *Service) Cancel(ctx context.Context, orderID string) (domain.ValidationResult, error) {
	repo := s.newRepository()
	logger := s.logger.With("order_id", orderID)

	payment, err := repo.GetByOrderID(ctx, orderID)
	if err != nil {
		return domain.ValidationResult{}, fmt.Errorf("load payment: %w", err)
	}
	if payment == nil {
		now := s.now()
		payment = domain.NewPayment(orderID, decimal.Zero, domain.CardReference{}, now)
		payment.Record(domain.TransactionCancelled, "", "", now)
		repo.Add(payment)
		if err := repo.UnitOfWork().Commit(ctx); err != nil {
			return domain.ValidationResult{}, fmt.Errorf("save cancellation: %w", err)
		}
		logger.Info("no payment to cancel, order marked cancelled")
		return domain.ValidationResult{}, nil
	}

	latest := payment.Latest()
	switch latest.Status {
	case domain.TransactionCancelled, domain.TransactionRefused:
		return domain.ValidationResult{}, nil
	case domain.TransactionPaid:
		logger.Error("cannot cancel a captured payment")
		return refused(MsgAlreadyCaptured), nil
	}

	if err := s.gateway.Void(ctx, orderID, latest.GatewayReference); err != nil {
		logger.Error("gateway void failed", "error", err)
		return refused(MsgVoidFailed), nil
	}

	repo.AddTransaction(payment.Record(domain.TransactionCancelled, latest.AuthorizationCode, latest.GatewayReference, s.now()))
	if err := repo.UnitOfWork().Commit(ctx); err != nil {
		return domain.ValidationResult{}, fmt.Errorf("save cancellation: %w", err)
	}

	logger.Info("payment cancelled")
	return domain.ValidationResult{}, nil
}
