package order

import (
	"context"
	"errors"
	"sort"

	"github.com/example/retail-orders/internal/infrastructure/store"
)

// Queries serves read and delete requests for orders.
type Queries struct {
	orders store.Repository[*Order]
}

func NewQueries(orders store.Repository[*Order]) *Queries {
	return &Queries{orders: orders}
}

func (q *Queries) Get(ctx context.Context, id string) (*Order, error) {
	o, err := q.orders.Get(ctx, Partition, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return o, nil
}

// List returns all orders, newest first.
func (q *Queries) List(ctx context.Context) ([]*Order, error) {
	all, err := q.orders.QueryByPartition(ctx, Partition)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	return all, nil
}

// Delete removes the order record. Stock is not returned to the product.
func (q *Queries) Delete(ctx context.Context, id string) (store.DeleteResult, error) {
	return q.orders.Delete(ctx, Partition, id)
}
