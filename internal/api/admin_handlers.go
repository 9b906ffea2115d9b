package api

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/example/retail-orders/internal/api/middleware"
	"github.com/example/retail-orders/internal/auth"
	"github.com/example/retail-orders/internal/logger"
)

type loginRequest struct {
	Operator string `json:"operator"`
	Key      string `json:"key"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type jobResponse struct {
	Affected int       `json:"affected"`
	At       time.Time `json:"at"`
	Error    string    `json:"error,omitempty"`
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	token, expiresAt, err := h.auth.Login(req.Operator, req.Key)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	case errors.Is(err, auth.ErrLoginDisabled):
		respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		h.fail(w, r, err)
		return
	}

	logger.FromCtx(r.Context(), h.log).Info("operator logged in", zap.String("operator", req.Operator))
	respondJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: expiresAt})
}

// Sweep cancels stale pending orders. Per-order failures are reported next to
// the count of orders that were cancelled.
func (h *Handlers) Sweep(w http.ResponseWriter, r *http.Request) {
	now := h.now().UTC()
	n, err := h.reaper.SweepStaleOrders(r.Context(), now)
	h.respondJob(w, r, "sweep", n, now, err)
}

// Reconcile replays stock decrements for orders stored without them.
func (h *Handlers) Reconcile(w http.ResponseWriter, r *http.Request) {
	now := h.now().UTC()
	n, err := h.coordinator.ReconcileStock(r.Context(), now, h.reconcileGrace)
	h.respondJob(w, r, "reconcile", n, now, err)
}

func (h *Handlers) respondJob(w http.ResponseWriter, r *http.Request, job string, n int, at time.Time, err error) {
	log := logger.FromCtx(r.Context(), h.log).With(
		zap.String("job", job),
		zap.String("operator", middleware.OperatorID(r.Context())),
		zap.Int("affected", n))
	if err != nil {
		log.Error("job finished with errors", zap.Error(err))
		respondJSON(w, statusFor(err), jobResponse{Affected: n, At: at, Error: err.Error()})
		return
	}
	log.Info("job finished")
	respondJSON(w, http.StatusOK, jobResponse{Affected: n, At: at})
}
