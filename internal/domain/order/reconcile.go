package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// DefaultReconcileGrace keeps the reconciler away from orders that are
// still being placed.
const DefaultReconcileGrace = 5 * time.Minute

// ReconcileStock finishes orders stored without their stock decrement. Each
// order older than grace that is not Cancelled and lacks StockApplied has its
// decrement replayed; the product ledger skips orders already applied. When
// the stock is gone the order is cancelled, or only logged when its status no
// longer allows cancelling. Returns how many orders were
// settled (applied or cancelled).
func (c *Coordinator) ReconcileStock(ctx context.Context, now time.Time, grace time.Duration) (int, error) {
	if grace <= 0 {
		grace = DefaultReconcileGrace
	}
	cutoff := now.Add(-grace)

	all, err := c.orders.QueryByPartition(ctx, Partition)
	if err != nil {
		return 0, fmt.Errorf("list orders: %w", err)
	}

	var (
		settled int
		errs    []error
	)
	for _, o := range all {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if o.StockApplied || o.Status == StatusCancelled || !o.CreatedAt.Before(cutoff) {
			continue
		}
		log := c.log.With(zap.String("order_id", o.ID))

		err := c.applyStock(ctx, o)
		switch {
		case err == nil:
			settled++
			log.Info("reconciled order stock")
		case errors.Is(err, ErrInsufficientStock):
			_, changed, cerr := c.sm.Cancel(ctx, o.ID, "insufficient stock")
			switch {
			case errors.Is(cerr, ErrInvalidTransition):
				// Paid and later orders cannot be cancelled; retrying never helps.
				log.Warn("order past cancellation, stock cannot be applied",
					zap.String("status", string(o.Status)), zap.Int("quantity", o.Quantity))
			case cerr != nil:
				log.Warn("could not cancel unfulfillable order", zap.Error(cerr))
				errs = append(errs, fmt.Errorf("order %s: %w", o.ID, cerr))
			case changed:
				settled++
			}
		default:
			log.Error("failed to reconcile order stock", zap.Error(err))
			errs = append(errs, fmt.Errorf("order %s: %w", o.ID, err))
		}
	}
	return settled, errors.Join(errs...)
}
