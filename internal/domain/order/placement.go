package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/example/retail-orders/internal/domain/customer"
	"github.com/example/retail-orders/internal/domain/product"
	"github.com/example/retail-orders/internal/infrastructure/store"
)

// Queue carries order payloads to the asynchronous consumer.
type Queue interface {
	Send(ctx context.Context, payload string) error
}

// CustomerDirectory resolves the customer placing an order.
type CustomerDirectory interface {
	Get(ctx context.Context, id string) (*customer.Customer, error)
}

// Inventory reads products and takes stock for orders.
type Inventory interface {
	Get(ctx context.Context, id string) (*product.Product, error)
	DecrementStock(ctx context.Context, productID, orderID string, quantity int) (*product.Product, bool, error)
	AcknowledgeStock(ctx context.Context, productID, orderID string) error
}

// Coordinator places orders: it snapshots the price, stores the order, takes
// the stock and signals the queue, in that order. Later steps never undo
// earlier ones; ReconcileStock finishes orders whose stock step was lost.
type Coordinator struct {
	orders    store.Repository[*Order]
	customers CustomerDirectory
	products  Inventory
	queue     Queue
	sm        *StateMachine
	log       *zap.Logger
	now       func() time.Time
}

func NewCoordinator(
	orders store.Repository[*Order],
	customers CustomerDirectory,
	products Inventory,
	queue Queue,
	sm *StateMachine,
	log *zap.Logger,
) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{
		orders:    orders,
		customers: customers,
		products:  products,
		queue:     queue,
		sm:        sm,
		log:       log,
		now:       time.Now,
	}
}

// PlaceOrder creates a Pending order for quantity units of the product.
//
// When the order was stored but a later step failed, the order is returned
// together with the error.
func (c *Coordinator) PlaceOrder(ctx context.Context, customerID, productID string, quantity int) (*Order, error) {
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}

	cust, err := c.customers.Get(ctx, customerID)
	if err != nil {
		return nil, err
	}
	prod, err := c.products.Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	if quantity > prod.Stock {
		return nil, fmt.Errorf("%w: %d requested, %d available", ErrInsufficientStock, quantity, prod.Stock)
	}

	now := c.now().UTC()
	o := &Order{
		ID:           uuid.New().String(),
		CustomerID:   cust.ID,
		CustomerName: cust.DisplayName(),
		ProductID:    prod.ID,
		ProductName:  prod.Name,
		Quantity:     quantity,
		UnitPrice:    prod.Price,
		TotalPrice:   prod.Price.Mul(decimal.NewFromInt(int64(quantity))),
		Status:       StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	log := c.log.With(zap.String("order_id", o.ID), zap.String("product_id", prod.ID))

	if err := c.orders.Insert(ctx, o); err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}

	if err := c.applyStock(ctx, o); err != nil {
		if errors.Is(err, ErrInsufficientStock) {
			log.Warn("stock ran out after order was stored", zap.Error(err))
			if _, _, cerr := c.sm.Cancel(ctx, o.ID, "insufficient stock"); cerr != nil {
				log.Error("failed to cancel order after stock conflict", zap.Error(cerr))
			}
			return nil, err
		}
		log.Error("failed to apply stock", zap.Error(err))
		return o, fmt.Errorf("apply stock for order %s: %w", o.ID, err)
	}

	if err := c.queue.Send(ctx, NewOrderMessage(o.ID)); err != nil {
		log.Error("failed to signal order", zap.Error(err))
		return o, fmt.Errorf("signal order %s: %w", o.ID, err)
	}

	log.Info("order placed",
		zap.Int("quantity", quantity),
		zap.String("total", o.TotalPrice.StringFixed(2)))
	return o, nil
}

// applyStock takes the order's quantity from the product, flags the order and
// then clears the order from the product ledger. Every write is safe to
// repeat; the ledger entry outlives the decrement until the flag is stored.
func (c *Coordinator) applyStock(ctx context.Context, o *Order) error {
	if _, _, err := c.products.DecrementStock(ctx, o.ProductID, o.ID, o.Quantity); err != nil {
		return err
	}

	updated, _, err := store.Mutate(ctx, c.orders, Partition, o.ID, func(o *Order) (bool, error) {
		if o.StockApplied {
			return false, nil
		}
		o.StockApplied = true
		return true, nil
	})
	if err != nil {
		return fmt.Errorf("flag stock applied: %w", err)
	}
	*o = *updated

	if err := c.products.AcknowledgeStock(ctx, o.ProductID, o.ID); err != nil {
		// The order is settled; a stale ledger entry only blocks a second
		// decrement for the same order.
		c.log.Warn("failed to clear stock ledger entry",
			zap.String("order_id", o.ID), zap.String("product_id", o.ProductID), zap.Error(err))
	}
	return nil
}
