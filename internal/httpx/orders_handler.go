package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/elishop/go-checkout/internal/checkout"
	"github.com/elishop/go-checkout/internal/redisx"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
)

// ownerHeader carries the principal id validated by the upstream auth layer.
// This adapter trusts it as-is; credential checking is not this service.
const ownerHeader = "X-Owner-ID"

type CheckoutReq struct {
	Items []checkout.CartLine `json:"items"`
}

type OrdersHandler struct {
	Checkout *checkout.Service
	Queries  *checkout.QueryGateway
	Redis    *redis.Client // optional read cache for single orders
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Post("/orders/checkout", h.checkout)
	r.Get("/orders/me", h.myOrders)
	r.Get("/orders", h.allOrders)
	r.Get("/orders/{id}", h.getOrder)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErr maps the checkout error taxonomy to status codes and keeps the
// offending product visible to the client.
func writeErr(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, checkout.ErrEmptyCart),
		errors.Is(err, checkout.ErrInvalidQuantity):
		code = http.StatusBadRequest
	case errors.Is(err, checkout.ErrOwnerNotFound),
		errors.Is(err, checkout.ErrProductNotFound),
		errors.Is(err, checkout.ErrOrderNotFound):
		code = http.StatusNotFound
	case errors.Is(err, checkout.ErrInsufficientStock):
		code = http.StatusConflict
	case errors.Is(err, checkout.ErrContentionExceeded),
		errors.Is(err, checkout.ErrStoreUnavailable):
		code = http.StatusServiceUnavailable
	}

	body := map[string]any{"error": err.Error()}
	var le *checkout.LineError
	if errors.As(err, &le) {
		body["product_id"] = le.ProductID
		if errors.Is(le.Err, checkout.ErrInsufficientStock) {
			body["required"] = le.Required
			body["available"] = le.Available
		}
	}
	writeJSON(w, code, body)
}

func owner(r *http.Request) string { return r.Header.Get(ownerHeader) }

func (h *OrdersHandler) checkout(w http.ResponseWriter, r *http.Request) {
	ownerID := owner(r)
	if ownerID == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing owner identity"})
		return
	}
	var req CheckoutReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	ctx = checkout.WithTraceID(ctx, middleware.GetReqID(r.Context()))

	order, err := h.Checkout.CreateOrder(ctx, ownerID, req.Items)
	if err != nil {
		writeErr(w, err)
		return
	}

	h.cacheOrder(ctx, order)
	writeJSON(w, http.StatusCreated, order)
}

func (h *OrdersHandler) myOrders(w http.ResponseWriter, r *http.Request) {
	ownerID := owner(r)
	if ownerID == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing owner identity"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	out, err := h.Queries.OrdersForOwner(ctx, ownerID)
	if err != nil {
		writeErr(w, err)
		return
	}
	if out == nil {
		out = []checkout.Order{}
	}
	writeJSON(w, http.StatusOK, out)
}

// allOrders is administrative; role enforcement happens upstream.
func (h *OrdersHandler) allOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	out, err := h.Queries.AllOrders(ctx)
	if err != nil {
		writeErr(w, err)
		return
	}
	if out == nil {
		out = []checkout.Order{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing id"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if h.Redis != nil {
		key := fmt.Sprintf(redisx.KeyOrder, orderID)
		if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
			writeJSON(w, http.StatusOK, json.RawMessage(s))
			return
		}
	}

	order, err := h.Queries.OrderByID(ctx, orderID)
	if err != nil {
		writeErr(w, err)
		return
	}
	h.cacheOrder(ctx, &order)
	writeJSON(w, http.StatusOK, order)
}

// cacheOrder is safe because orders are immutable once committed.
func (h *OrdersHandler) cacheOrder(ctx context.Context, o *checkout.Order) {
	if h.Redis == nil {
		return
	}
	b, err := json.Marshal(o)
	if err != nil {
		return
	}
	key := fmt.Sprintf(redisx.KeyOrder, o.ID)
	_ = h.Redis.Set(ctx, key, b, redisx.TTLOrderCache).Err()
}
