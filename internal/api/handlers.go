package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/example/retail-orders/internal/apperr"
	"github.com/example/retail-orders/internal/auth"
	"github.com/example/retail-orders/internal/domain/customer"
	"github.com/example/retail-orders/internal/domain/order"
	"github.com/example/retail-orders/internal/domain/product"
	"github.com/example/retail-orders/internal/infrastructure/store"
	"github.com/example/retail-orders/internal/logger"
	"github.com/example/retail-orders/internal/payment"
)

// Deps are the services the HTTP surface drives.
type Deps struct {
	Customers      *customer.Service
	Products       *product.Service
	Coordinator    *order.Coordinator
	Orders         *order.Queries
	Proofs         *payment.ProofService
	Reaper         *order.Reaper
	Auth           *auth.Authenticator
	ReconcileGrace time.Duration
	Log            *zap.Logger
}

type Handlers struct {
	customers      *customer.Service
	products       *product.Service
	coordinator    *order.Coordinator
	orders         *order.Queries
	proofs         *payment.ProofService
	reaper         *order.Reaper
	auth           *auth.Authenticator
	reconcileGrace time.Duration
	log            *zap.Logger
	now            func() time.Time
}

func NewHandlers(d Deps) *Handlers {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	grace := d.ReconcileGrace
	if grace <= 0 {
		grace = order.DefaultReconcileGrace
	}
	return &Handlers{
		customers:      d.Customers,
		products:       d.Products,
		coordinator:    d.Coordinator,
		orders:         d.Orders,
		proofs:         d.Proofs,
		reaper:         d.Reaper,
		auth:           d.Auth,
		reconcileGrace: grace,
		log:            log,
		now:            time.Now,
	}
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusFor maps an error kind onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, product.ErrInsufficientStock),
		errors.Is(err, order.ErrInvalidTransition),
		errors.Is(err, order.ErrPaymentNotAccepted),
		errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrTransient):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	if status >= http.StatusInternalServerError {
		logger.FromCtx(r.Context(), h.log).Error("request failed",
			zap.String("path", r.URL.Path), zap.Int("status", status), zap.Error(err))
	}
	respondError(w, status, msg)
}

func (h *Handlers) respondDelete(w http.ResponseWriter, r *http.Request, res store.DeleteResult, err error) {
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if res == store.DeleteNotFound {
		respondError(w, http.StatusNotFound, "not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid json body", apperr.ErrInvalidInput)
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
