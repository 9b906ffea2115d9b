package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/retail-orders/internal/domain/order"
	"github.com/example/retail-orders/internal/logger"
)

type placeOrderRequest struct {
	CustomerID string `json:"customer_id"`
	ProductID  string `json:"product_id"`
	Quantity   int    `json:"quantity"`
}

// partialOrderResponse reports an order that was stored although a later
// placement step failed.
type partialOrderResponse struct {
	Error string       `json:"error"`
	Order *order.Order `json:"order"`
}

func (h *Handlers) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	o, err := h.coordinator.PlaceOrder(r.Context(), req.CustomerID, req.ProductID, req.Quantity)
	if err != nil {
		if o == nil {
			h.fail(w, r, err)
			return
		}
		logger.FromCtx(r.Context(), h.log).Warn("order stored with incomplete placement",
			zap.String("order_id", o.ID), zap.Error(err))
		respondJSON(w, statusFor(err), partialOrderResponse{Error: err.Error(), Order: o})
		return
	}
	respondJSON(w, http.StatusCreated, o)
}

func (h *Handlers) ListOrders(w http.ResponseWriter, r *http.Request) {
	list, err := h.orders.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (h *Handlers) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	res, err := h.orders.Delete(r.Context(), chi.URLParam(r, "id"))
	h.respondDelete(w, r, res, err)
}
