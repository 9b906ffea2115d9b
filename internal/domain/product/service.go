package product

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/example/retail-orders/internal/infrastructure/blob"
	"github.com/example/retail-orders/internal/infrastructure/store"
)

type CreateInput struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
}

// UpdateInput replaces the catalog fields of a product. A nil Stock leaves
// the stock level untouched.
type UpdateInput struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       *int
}

type Service struct {
	repo  store.Repository[*Product]
	blobs blob.Store
	log   *zap.Logger
	now   func() time.Time
}

func NewService(repo store.Repository[*Product], blobs blob.Store, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{repo: repo, blobs: blobs, log: log, now: time.Now}
}

func validate(name string, price decimal.Decimal, stock int) error {
	if strings.TrimSpace(name) == "" {
		return ErrInvalidName
	}
	if price.IsNegative() {
		return ErrInvalidPrice
	}
	if stock < 0 {
		return ErrInvalidStock
	}
	return nil
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*Product, error) {
	if err := validate(in.Name, in.Price, in.Stock); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	p := &Product{
		ID:          uuid.New().String(),
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Price:       in.Price,
		Stock:       in.Stock,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Insert(ctx, p); err != nil {
		return nil, fmt.Errorf("insert product: %w", err)
	}
	return p, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Product, error) {
	p, err := s.repo.Get(ctx, Partition, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// List returns products ordered by name.
func (s *Service) List(ctx context.Context) ([]*Product, error) {
	all, err := s.repo.QueryByPartition(ctx, Partition)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(all, func(i, j int) bool {
		return strings.ToLower(all[i].Name) < strings.ToLower(all[j].Name)
	})
	return all, nil
}

func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*Product, error) {
	stock := 0
	if in.Stock != nil {
		stock = *in.Stock
	}
	if err := validate(in.Name, in.Price, stock); err != nil {
		return nil, err
	}

	p, _, err := store.Mutate(ctx, s.repo, Partition, id, func(p *Product) (bool, error) {
		p.Name = strings.TrimSpace(in.Name)
		p.Description = in.Description
		p.Price = in.Price
		if in.Stock != nil {
			p.Stock = *in.Stock
		}
		p.UpdatedAt = s.now().UTC()
		return true, nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) Delete(ctx context.Context, id string) (store.DeleteResult, error) {
	return s.repo.Delete(ctx, Partition, id)
}

// DecrementStock takes quantity units for orderID with a version-guarded
// write, re-checking stock on every retry. applied is false when the order
// had already been applied to this product.
func (s *Service) DecrementStock(ctx context.Context, productID, orderID string, quantity int) (p *Product, applied bool, err error) {
	p, applied, err = store.Mutate(ctx, s.repo, Partition, productID, func(p *Product) (bool, error) {
		changed, err := p.TakeStock(orderID, quantity)
		if changed {
			p.UpdatedAt = s.now().UTC()
		}
		return changed, err
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, ErrProductNotFound
	}
	return p, applied, err
}

// AcknowledgeStock removes orderID from the product's ledger. Call it only
// after the order has persisted that its stock was taken.
func (s *Service) AcknowledgeStock(ctx context.Context, productID, orderID string) error {
	_, _, err := store.Mutate(ctx, s.repo, Partition, productID, func(p *Product) (bool, error) {
		return p.Acknowledge(orderID), nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return ErrProductNotFound
	}
	return err
}
