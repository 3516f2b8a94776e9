package gateway

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
)

// Handler exposes the checkout API of every service behind one address.
type Handler struct {
	orders  *Upstream
	catalog *Upstream
	cart    *Upstream
	logger  *slog.Logger
}

func NewHandler(orders, catalog, cart *Upstream, logger *slog.Logger) *Handler {
	return &Handler{
		orders:  orders,
		catalog: catalog,
		cart:    cart,
		logger:  logger,
	}
}

// Routes registers the public endpoints. wrap decorates each handler.
func (h *Handler) Routes(mux *http.ServeMux, wrap func(http.HandlerFunc) http.HandlerFunc) {
	routes := []struct {
		pattern  string
		upstream *Upstream
	}{
		{"POST /orders", h.orders},
		{"GET /orders/{id}", h.orders},
		{"GET /customers/{customerId}/orders", h.orders},
		{"GET /vouchers/{code}", h.orders},
		{"GET /products", h.catalog},
		{"GET /products/{id}", h.catalog},
		{"GET /carts/{customerId}", h.cart},
	}
	for _, route := range routes {
		mux.HandleFunc(route.pattern, wrap(h.proxy(route.upstream)))
	}
}

func (h *Handler) proxy(upstream *Upstream) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := upstream.Forward(r.Context(), r)
		if err != nil {
			h.logger.Error("failed to forward request", "error", err, "upstream", upstream.Name(), "path", r.URL.Path)
			h.writeError(w, http.StatusBadGateway, upstream.Name()+" service unavailable")
			return
		}
		defer func() { _ = resp.Body.Close() }()

		if contentType := resp.Header.Get("Content-Type"); contentType != "" {
			w.Header().Set("Content-Type", contentType)
		}
		w.WriteHeader(resp.StatusCode)

		h.logger.Debug("request proxied", "method", r.Method, "path", r.URL.Path, "upstream", upstream.Name(), "status", resp.StatusCode)

		if _, err := io.Copy(w, resp.Body); err != nil {
			h.logger.Error("failed to copy response body", "error", err)
		}
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		h.logger.Error("failed to encode error response", "error", err)
	}
}
