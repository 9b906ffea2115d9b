package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/example/retail-orders/internal/domain/customer"
)

// createCustomerRequest is the body of both POST and PUT /customers.
type createCustomerRequest struct {
	Name            string `json:"name"`
	Surname         string `json:"surname"`
	Username        string `json:"username"`
	Email           string `json:"email"`
	ShippingAddress string `json:"shipping_address"`
}

func (h *Handlers) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req createCustomerRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	c, err := h.customers.Create(r.Context(), customer.CreateInput(req))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, c)
}

func (h *Handlers) ListCustomers(w http.ResponseWriter, r *http.Request) {
	list, err := h.customers.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

func (h *Handlers) GetCustomer(w http.ResponseWriter, r *http.Request) {
	c, err := h.customers.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (h *Handlers) UpdateCustomer(w http.ResponseWriter, r *http.Request) {
	var req createCustomerRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	c, err := h.customers.Update(r.Context(), chi.URLParam(r, "id"), customer.UpdateInput(req))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (h *Handlers) DeleteCustomer(w http.ResponseWriter, r *http.Request) {
	res, err := h.customers.Delete(r.Context(), chi.URLParam(r, "id"))
	h.respondDelete(w, r, res, err)
}
