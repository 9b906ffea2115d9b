package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/retail-orders/internal/apperr"
	"github.com/example/retail-orders/internal/infrastructure/store"
)

// ProofStrategy selects the status an order moves to once its payment proof
// is accepted.
type ProofStrategy string

const (
	ProofMarksPaid       ProofStrategy = "paid"
	ProofMarksProcessing ProofStrategy = "processing"
)

// ParseProofStrategy accepts "paid" or "processing" in any case. An empty
// string selects ProofMarksPaid.
func ParseProofStrategy(s string) (ProofStrategy, error) {
	switch ProofStrategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", ProofMarksPaid:
		return ProofMarksPaid, nil
	case ProofMarksProcessing:
		return ProofMarksProcessing, nil
	default:
		return "", fmt.Errorf("%w: unknown proof strategy %q", apperr.ErrInvalidInput, s)
	}
}

func (p ProofStrategy) target() Status {
	if p == ProofMarksProcessing {
		return StatusProcessing
	}
	return StatusPaid
}

// Deduper remembers queue messages that were already handled. It only saves
// store round trips; handling stays idempotent without it.
type Deduper interface {
	Seen(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string) error
}

// StateMachine is the only writer of Order.Status.
type StateMachine struct {
	repo  store.Repository[*Order]
	dedup Deduper
	proof ProofStrategy
	log   *zap.Logger
	now   func() time.Time
}

type Option func(*StateMachine)

func WithDeduper(d Deduper) Option {
	return func(sm *StateMachine) { sm.dedup = d }
}

func WithProofStrategy(p ProofStrategy) Option {
	return func(sm *StateMachine) { sm.proof = p }
}

func WithClock(now func() time.Time) Option {
	return func(sm *StateMachine) { sm.now = now }
}

func NewStateMachine(repo store.Repository[*Order], log *zap.Logger, opts ...Option) *StateMachine {
	if log == nil {
		log = zap.NewNop()
	}
	sm := &StateMachine{
		repo:  repo,
		proof: ProofMarksPaid,
		log:   log,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(sm)
	}
	return sm
}

// ProofStrategy returns the configured proof outcome.
func (sm *StateMachine) ProofStrategy() ProofStrategy { return sm.proof }

// OnQueueMessage handles one queue payload. Malformed payloads, unknown
// orders and orders past Processing are logged and dropped (nil error).
// Any other failure is returned so the queue redelivers the message.
func (sm *StateMachine) OnQueueMessage(ctx context.Context, payload string) error {
	id, err := ParseMessage(payload)
	if err != nil {
		sm.log.Warn("dropping malformed queue message", zap.String("payload", payload))
		return nil
	}
	log := sm.log.With(zap.String("order_id", id))
	key := NewOrderMessage(id)

	if sm.dedup != nil {
		seen, err := sm.dedup.Seen(ctx, key)
		if err != nil {
			log.Debug("dedup lookup failed", zap.Error(err))
		} else if seen {
			log.Debug("skipping already handled message")
			return nil
		}
	}

	o, changed, err := sm.transition(ctx, id, StatusProcessing, nil)
	switch {
	case errors.Is(err, ErrOrderNotFound):
		log.Warn("dropping message for unknown order")
		return nil
	case errors.Is(err, ErrInvalidTransition):
		log.Warn("dropping message for order past processing", zap.Error(err))
		return nil
	case err != nil:
		log.Error("failed to process order message", zap.Error(err))
		return err
	}

	if changed {
		log.Info("order moved to processing", zap.Int64("version", o.Version))
	} else {
		log.Debug("order already processing")
	}

	if sm.dedup != nil {
		if err := sm.dedup.Mark(ctx, key); err != nil {
			log.Debug("dedup mark failed", zap.Error(err))
		}
	}
	return nil
}

// OnProofAccepted records that a payment proof was stored for the order.
// Paid, Completed and Cancelled orders reject it with ErrPaymentNotAccepted.
func (sm *StateMachine) OnProofAccepted(ctx context.Context, orderID string) (*Order, error) {
	o, changed, err := sm.transition(ctx, orderID, sm.proof.target(), func(o *Order) error {
		return CheckPaymentAccepted(o)
	})
	if err != nil {
		return nil, err
	}
	if changed {
		sm.log.Info("payment proof accepted",
			zap.String("order_id", orderID),
			zap.String("status", string(o.Status)))
	}
	return o, nil
}

// CheckPaymentAccepted returns ErrPaymentNotAccepted for orders in a
// terminal status.
func CheckPaymentAccepted(o *Order) error {
	if o.Status.IsTerminal() {
		return fmt.Errorf("%w: order %s is %s", ErrPaymentNotAccepted, o.ID, o.Status)
	}
	return nil
}

// Cancel moves a Pending order to Cancelled. Cancelling a Cancelled order
// is a no-op.
func (sm *StateMachine) Cancel(ctx context.Context, orderID, reason string) (*Order, bool, error) {
	o, changed, err := sm.transition(ctx, orderID, StatusCancelled, func(o *Order) error {
		if o.Status == StatusPending {
			o.CancelReason = reason
		}
		return nil
	})
	if err == nil && changed {
		sm.log.Info("order cancelled", zap.String("order_id", orderID), zap.String("reason", reason))
	}
	return o, changed, err
}

// CancelStale cancels the order only if, on a fresh read, it is still
// Pending and was created before cutoff. Anything else is left alone.
func (sm *StateMachine) CancelStale(ctx context.Context, orderID string, cutoff time.Time) (bool, error) {
	o, changed, err := store.Mutate(ctx, sm.repo, Partition, orderID, func(o *Order) (bool, error) {
		if o.Status != StatusPending || !o.CreatedAt.Before(cutoff) {
			return false, nil
		}
		o.CancelReason = "stale"
		return o.transitionTo(StatusCancelled, sm.now().UTC())
	})
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if changed {
		sm.log.Info("stale order cancelled",
			zap.String("order_id", o.ID),
			zap.Time("created_at", o.CreatedAt))
	}
	return changed, nil
}

// transition applies target under a version guard. check runs on the fresh
// record before the status change and may veto it.
func (sm *StateMachine) transition(
	ctx context.Context,
	orderID string,
	target Status,
	check func(o *Order) error,
) (*Order, bool, error) {
	o, changed, err := store.Mutate(ctx, sm.repo, Partition, orderID, func(o *Order) (bool, error) {
		if check != nil {
			if err := check(o); err != nil {
				return false, err
			}
		}
		return o.transitionTo(target, sm.now().UTC())
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, ErrOrderNotFound
	}
	if err != nil {
		return nil, false, err
	}
	return o, changed, nil
}
