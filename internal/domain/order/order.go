package order

import (
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/retail-orders/internal/apperr"
	"github.com/example/retail-orders/internal/domain/customer"
	"github.com/example/retail-orders/internal/domain/product"
)

// Partition is the store partition holding every order.
const Partition = "Order"

type Status string

const (
	StatusPending    Status = "Pending"
	StatusProcessing Status = "Processing"
	StatusPaid       Status = "Paid"
	// StatusCompleted blocks payment but nothing in this service moves an
	// order into it.
	StatusCompleted Status = "Completed"
	StatusCancelled Status = "Cancelled"
)

var (
	ErrOrderNotFound      = fmt.Errorf("order %w", apperr.ErrNotFound)
	ErrInvalidTransition  = fmt.Errorf("%w: invalid order status transition", apperr.ErrInvalidInput)
	ErrPaymentNotAccepted = fmt.Errorf("%w: order no longer accepts payment", apperr.ErrInvalidInput)

	ErrCustomerNotFound  = customer.ErrCustomerNotFound
	ErrProductNotFound   = product.ErrProductNotFound
	ErrInvalidQuantity   = product.ErrInvalidQuantity
	ErrInsufficientStock = product.ErrInsufficientStock
)

// validTransitions defines allowed state transitions
var validTransitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusPaid, StatusCancelled},
	StatusProcessing: {StatusPaid},
	StatusPaid:       {}, // terminal state
	StatusCompleted:  {}, // terminal state
	StatusCancelled:  {}, // terminal state
}

type Order struct {
	ID           string          `json:"id"`
	CustomerID   string          `json:"customer_id"`
	CustomerName string          `json:"customer_name"`
	ProductID    string          `json:"product_id"`
	ProductName  string          `json:"product_name"`
	Quantity     int             `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	TotalPrice   decimal.Decimal `json:"total_price"`
	Status       Status          `json:"status"`
	// StockApplied is set once the quantity has been taken from the product.
	StockApplied bool      `json:"stock_applied"`
	CancelReason string    `json:"cancel_reason,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	Version int64 `json:"-"`
}

func (o *Order) PartitionKey() string { return Partition }
func (o *Order) RowKey() string       { return o.ID }
func (o *Order) GetVersion() int64    { return o.Version }
func (o *Order) SetVersion(v int64)   { o.Version = v }

func New() *Order { return &Order{} }

// IsTerminal reports whether no transition leaves the current status.
func (s Status) IsTerminal() bool {
	return len(validTransitions[s]) == 0
}

// CanTransitionTo checks if the order can transition to the target status
func (o *Order) CanTransitionTo(target Status) bool {
	return slices.Contains(validTransitions[o.Status], target)
}

// transitionTo moves the order to target. Asking for the current status is a
// no-op reported as changed=false.
func (o *Order) transitionTo(target Status, now time.Time) (changed bool, err error) {
	if o.Status == target {
		return false, nil
	}
	if !o.CanTransitionTo(target) {
		return false, fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidTransition, o.Status, target)
	}
	o.Status = target
	o.UpdatedAt = now
	return true, nil
}
