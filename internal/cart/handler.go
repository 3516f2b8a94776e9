package cart

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

type Handler struct {
	repo   Repository
	logger *slog.Logger
}

func NewHandler(repo Repository, logger *slog.Logger) *Handler {
	return &Handler{
		repo:   repo,
		logger: logger,
	}
}

func (h *Handler) HandleGetCart(w http.ResponseWriter, r *http.Request) {
	customerID := r.PathValue("customerId")
	if customerID == "" {
		h.writeError(w, http.StatusBadRequest, "missing customer id")
		return
	}

	cart, err := h.repo.Get(r.Context(), customerID)
	if err != nil {
		h.logger.Error("failed to get cart", "error", err, "customer_id", customerID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if cart == nil {
		h.writeError(w, http.StatusNotFound, "cart not found")
		return
	}

	h.writeJSON(w, http.StatusOK, cart)
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
