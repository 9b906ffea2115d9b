package order

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/retail-orders/internal/domain/customer"
	"github.com/example/retail-orders/internal/domain/product"
	"github.com/example/retail-orders/internal/infrastructure/blob"
	"github.com/example/retail-orders/internal/infrastructure/store/mocks"
)

var fixedNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

// mockQueue records payloads passed to Send
type mockQueue struct {
	mu      sync.Mutex
	Sent    []string
	SendErr error
}

func (q *mockQueue) Send(_ context.Context, payload string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.SendErr != nil {
		return q.SendErr
	}
	q.Sent = append(q.Sent, payload)
	return nil
}

// mockDeduper is an in-memory Deduper with error injection
type mockDeduper struct {
	mu      sync.Mutex
	keys    map[string]bool
	SeenErr error
	MarkErr error
}

func newMockDeduper() *mockDeduper { return &mockDeduper{keys: map[string]bool{}} }

func (d *mockDeduper) Seen(_ context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.SeenErr != nil {
		return false, d.SeenErr
	}
	return d.keys[key], nil
}

func (d *mockDeduper) Mark(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.MarkErr != nil {
		return d.MarkErr
	}
	d.keys[key] = true
	return nil
}

type testEnv struct {
	orders    *mocks.MockRepository[*Order]
	customers *mocks.MockRepository[*customer.Customer]
	products  *mocks.MockRepository[*product.Product]
	queue     *mockQueue
	sm        *StateMachine
	coord     *Coordinator
	reaper    *Reaper
	queries   *Queries
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	env := &testEnv{
		orders:    mocks.NewMockRepository(New),
		customers: mocks.NewMockRepository(customer.New),
		products:  mocks.NewMockRepository(product.New),
		queue:     &mockQueue{},
	}
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	env.sm = NewStateMachine(env.orders, zap.NewNop(), opts...)
	env.coord = NewCoordinator(
		env.orders,
		customer.NewService(env.customers),
		product.NewService(env.products, blob.NewMemoryStore(), zap.NewNop()),
		env.queue,
		env.sm,
		zap.NewNop(),
	)
	env.coord.now = func() time.Time { return fixedNow }
	env.reaper = NewReaper(env.orders, env.sm, DefaultStaleAge, zap.NewNop())
	env.queries = NewQueries(env.orders)
	return env
}

// seedCatalog stores customer C1 and product P1 (stock 10, price 9.99).
func (e *testEnv) seedCatalog(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.customers.Seed(ctx, &customer.Customer{ID: "C1", Name: "Ada", Surname: "Lovelace", Username: "ada"}))
	require.NoError(t, e.products.Seed(ctx, &product.Product{
		ID: "P1", Name: "Mug", Price: decimal.RequireFromString("9.99"), Stock: 10,
	}))
}

func (e *testEnv) seedOrder(t *testing.T, o *Order) *Order {
	t.Helper()
	if o.ProductID == "" {
		o.ProductID = "P1"
	}
	if o.Quantity == 0 {
		o.Quantity = 1
	}
	require.NoError(t, e.orders.Seed(context.Background(), o))
	return o
}

func (e *testEnv) order(t *testing.T, id string) *Order {
	t.Helper()
	o, err := e.orders.Inner().Get(context.Background(), Partition, id)
	require.NoError(t, err)
	return o
}

func (e *testEnv) stock(t *testing.T, id string) int {
	t.Helper()
	p, err := e.products.Inner().Get(context.Background(), product.Partition, id)
	require.NoError(t, err)
	return p.Stock
}

func (e *testEnv) ledger(t *testing.T, id string) []string {
	t.Helper()
	p, err := e.products.Inner().Get(context.Background(), product.Partition, id)
	require.NoError(t, err)
	return p.AppliedOrders
}
