package orders

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/joao-fontenele/orderflow-saga/internal/domain"
)

type Handler struct {
	commands *CommandHandler
	newScope ScopeFactory
	logger   *slog.Logger
	now      func() time.Time
}

func NewHandler(commands *CommandHandler, newScope ScopeFactory, logger *slog.Logger) *Handler {
	return &Handler{
		commands: commands,
		newScope: newScope,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type submitOrderResponse struct {
	OrderID string             `json:"order_id"`
	Status  domain.OrderStatus `json:"status"`
}

type validationResponse struct {
	Errors []domain.FieldError `json:"errors"`
}

func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	var cmd SubmitOrder
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if cmd.OrderID == "" {
		cmd.OrderID = uuid.New().String()
	}

	result, err := h.commands.Handle(r.Context(), cmd)
	if err != nil {
		h.logger.Error("failed to submit order", "error", err, "order_id", cmd.OrderID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if !result.IsValid() {
		h.writeJSON(w, http.StatusBadRequest, validationResponse{Errors: result.Errors})
		return
	}

	h.writeJSON(w, http.StatusCreated, submitOrderResponse{
		OrderID: cmd.OrderID,
		Status:  domain.OrderStatusPaymentAuthorized,
	})
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	order, err := h.newScope().Orders().GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get order", "error", err, "order_id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if order == nil {
		h.writeError(w, http.StatusNotFound, "order not found")
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) HandleListByCustomer(w http.ResponseWriter, r *http.Request) {
	customerID := r.PathValue("customerId")
	if customerID == "" {
		h.writeError(w, http.StatusBadRequest, "missing customer id")
		return
	}

	list, err := h.newScope().Orders().ListByCustomer(r.Context(), customerID)
	if err != nil {
		h.logger.Error("failed to list orders", "error", err, "customer_id", customerID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if list == nil {
		list = []domain.Order{}
	}

	h.writeJSON(w, http.StatusOK, list)
}

// HandleGetVoucher only returns vouchers that can still be applied.
func (h *Handler) HandleGetVoucher(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	if code == "" {
		h.writeError(w, http.StatusBadRequest, "missing voucher code")
		return
	}

	voucher, err := h.newScope().Vouchers().GetByCode(r.Context(), code)
	if err != nil {
		h.logger.Error("failed to get voucher", "error", err, "voucher_code", code)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if voucher == nil || !voucher.Validate(h.now()).IsValid() {
		h.writeError(w, http.StatusNotFound, "voucher not found")
		return
	}

	h.writeJSON(w, http.StatusOK, voucher)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
