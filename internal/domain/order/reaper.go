package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/example/retail-orders/internal/infrastructure/store"
)

// DefaultStaleAge is how long an order may stay Pending.
const DefaultStaleAge = 24 * time.Hour

// Reaper cancels orders left Pending for too long.
type Reaper struct {
	orders store.Repository[*Order]
	sm     *StateMachine
	maxAge time.Duration
	log    *zap.Logger
}

func NewReaper(orders store.Repository[*Order], sm *StateMachine, maxAge time.Duration, log *zap.Logger) *Reaper {
	if maxAge <= 0 {
		maxAge = DefaultStaleAge
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Reaper{orders: orders, sm: sm, maxAge: maxAge, log: log}
}

// SweepStaleOrders cancels every Pending order created strictly before
// now minus the maximum age and returns how many it cancelled. Failures on
// single orders do not stop the sweep and are returned joined.
func (r *Reaper) SweepStaleOrders(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-r.maxAge)

	all, err := r.orders.QueryByPartition(ctx, Partition)
	if err != nil {
		return 0, fmt.Errorf("list orders: %w", err)
	}

	var (
		cancelled int
		errs      []error
	)
	for _, o := range all {
		if o.Status != StatusPending || !o.CreatedAt.Before(cutoff) {
			continue
		}
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		changed, err := r.sm.CancelStale(ctx, o.ID, cutoff)
		if err != nil {
			r.log.Error("failed to cancel stale order", zap.String("order_id", o.ID), zap.Error(err))
			errs = append(errs, fmt.Errorf("order %s: %w", o.ID, err))
			continue
		}
		if changed {
			cancelled++
		}
	}

	r.log.Info("stale order sweep finished",
		zap.Time("cutoff", cutoff),
		zap.Int("cancelled", cancelled),
		zap.Int("failed", len(errs)))
	return cancelled, errors.Join(errs...)
}
