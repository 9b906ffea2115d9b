package product

import (
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/retail-orders/internal/apperr"
)

// Partition is the store partition holding every product.
const Partition = "Product"

var (
	ErrProductNotFound   = fmt.Errorf("product %w", apperr.ErrNotFound)
	ErrInvalidName       = fmt.Errorf("%w: name is required", apperr.ErrInvalidInput)
	ErrInvalidPrice      = fmt.Errorf("%w: price must not be negative", apperr.ErrInvalidInput)
	ErrInvalidStock      = fmt.Errorf("%w: stock must not be negative", apperr.ErrInvalidInput)
	ErrInvalidQuantity   = fmt.Errorf("%w: quantity must be at least 1", apperr.ErrInvalidInput)
	ErrInsufficientStock = fmt.Errorf("%w: insufficient stock", apperr.ErrInvalidInput)
)

type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	ImageURL    string          `json:"image_url,omitempty"`
	// AppliedOrders lists orders whose quantity has been taken from Stock
	// but which have not yet recorded that on the order itself.
	AppliedOrders []string  `json:"applied_orders,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	Version int64 `json:"-"`
}

func (p *Product) PartitionKey() string { return Partition }
func (p *Product) RowKey() string       { return p.ID }
func (p *Product) GetVersion() int64    { return p.Version }
func (p *Product) SetVersion(v int64)   { p.Version = v }

func New() *Product { return &Product{} }

// HasApplied reports whether the order's decrement is already in Stock.
func (p *Product) HasApplied(orderID string) bool {
	return slices.Contains(p.AppliedOrders, orderID)
}

// TakeStock removes quantity units for the order. It returns false without
// changing anything when the order was already applied.
func (p *Product) TakeStock(orderID string, quantity int) (bool, error) {
	if quantity < 1 {
		return false, ErrInvalidQuantity
	}
	if p.HasApplied(orderID) {
		return false, nil
	}
	if quantity > p.Stock {
		return false, fmt.Errorf("%w: %d requested, %d available", ErrInsufficientStock, quantity, p.Stock)
	}

	p.Stock -= quantity
	p.AppliedOrders = append(p.AppliedOrders, orderID)
	return true, nil
}

// Acknowledge drops the order from the ledger once the order itself records
// that its stock was taken. It reports whether the ledger changed.
func (p *Product) Acknowledge(orderID string) bool {
	i := slices.Index(p.AppliedOrders, orderID)
	if i < 0 {
		return false
	}
	p.AppliedOrders = slices.Delete(p.AppliedOrders, i, i+1)
	if len(p.AppliedOrders) == 0 {
		p.AppliedOrders = nil
	}
	return true
}
