package product

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/example/retail-orders/internal/infrastructure/blob"
	"github.com/example/retail-orders/internal/infrastructure/store"
	"github.com/example/retail-orders/internal/infrastructure/store/mocks"
)

func newTestProductService() (*Service, *mocks.MockRepository[*Product], *blob.MemoryStore) {
	repo := mocks.NewMockRepository(New)
	blobs := blob.NewMemoryStore()
	return NewService(repo, blobs, zap.NewNop()), repo, blobs
}

func seedProduct(t *testing.T, repo *mocks.MockRepository[*Product], p *Product) {
	t.Helper()
	require.NoError(t, repo.Seed(context.Background(), p))
}

// ============================================
// Create / Update Tests
// ============================================

func TestService_Create_Success(t *testing.T) {
	service, repo, _ := newTestProductService()

	p, err := service.Create(context.Background(), CreateInput{
		Name: "Mug", Price: decimal.RequireFromString("9.99"), Stock: 10,
	})

	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "9.99", p.Price.StringFixed(2))
	assert.Len(t, repo.InsertCalls, 1)
}

func TestService_Create_Validation(t *testing.T) {
	service, repo, _ := newTestProductService()
	ctx := context.Background()

	tests := []struct {
		name string
		in   CreateInput
		want error
	}{
		{"blank name", CreateInput{Name: " ", Price: decimal.NewFromInt(1)}, ErrInvalidName},
		{"negative price", CreateInput{Name: "Mug", Price: decimal.NewFromInt(-1)}, ErrInvalidPrice},
		{"negative stock", CreateInput{Name: "Mug", Stock: -1}, ErrInvalidStock},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.Create(ctx, tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Empty(t, repo.InsertCalls)
}

func TestService_Update_KeepsStockWhenOmitted(t *testing.T) {
	service, repo, _ := newTestProductService()
	seedProduct(t, repo, &Product{ID: "p1", Name: "Mug", Stock: 4})

	p, err := service.Update(context.Background(), "p1", UpdateInput{
		Name: "Big Mug", Price: decimal.NewFromInt(12),
	})

	require.NoError(t, err)
	assert.Equal(t, "Big Mug", p.Name)
	assert.Equal(t, 4, p.Stock)
	assert.Equal(t, int64(2), p.Version)
}

func TestService_Update_NotFound(t *testing.T) {
	service, _, _ := newTestProductService()

	_, err := service.Update(context.Background(), "missing", UpdateInput{Name: "x"})
	assert.ErrorIs(t, err, ErrProductNotFound)
}

// ============================================
// DecrementStock Tests
// ============================================

func TestService_DecrementStock(t *testing.T) {
	service, repo, _ := newTestProductService()
	seedProduct(t, repo, &Product{ID: "p1", Stock: 10})
	ctx := context.Background()

	p, applied, err := service.DecrementStock(ctx, "p1", "o1", 3)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, 7, p.Stock)

	// replay of the same order is a no-op
	p, applied, err = service.DecrementStock(ctx, "p1", "o1", 3)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, 7, p.Stock)
}

func TestService_AcknowledgeStock(t *testing.T) {
	service, repo, _ := newTestProductService()
	seedProduct(t, repo, &Product{ID: "p1", Stock: 10})
	ctx := context.Background()

	_, _, err := service.DecrementStock(ctx, "p1", "o1", 3)
	require.NoError(t, err)

	require.NoError(t, service.AcknowledgeStock(ctx, "p1", "o1"))
	stored, err := repo.Inner().Get(ctx, Partition, "p1")
	require.NoError(t, err)
	assert.Empty(t, stored.AppliedOrders)
	assert.Equal(t, 7, stored.Stock)

	// nothing left to clear
	replaces := repo.ReplaceCount()
	require.NoError(t, service.AcknowledgeStock(ctx, "p1", "o1"))
	assert.Equal(t, replaces, repo.ReplaceCount())
}

func TestService_AcknowledgeStock_NotFound(t *testing.T) {
	service, _, _ := newTestProductService()

	err := service.AcknowledgeStock(context.Background(), "missing", "o1")

	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestService_DecrementStock_RecheckAfterConflict(t *testing.T) {
	service, repo, _ := newTestProductService()
	seedProduct(t, repo, &Product{ID: "p1", Stock: 3})
	ctx := context.Background()

	// Another writer takes two units between our read and write.
	raced := false
	repo.ReplaceCallback = func(ctx context.Context, rec *Product, _ int64) error {
		if raced {
			return nil
		}
		raced = true
		other, err := repo.Inner().Get(ctx, Partition, "p1")
		require.NoError(t, err)
		_, err = other.TakeStock("other", 2)
		require.NoError(t, err)
		return repo.Inner().Replace(ctx, other, store.AnyVersion)
	}

	_, applied, err := service.DecrementStock(ctx, "p1", "o1", 2)

	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.False(t, applied)
	stored, _ := repo.Inner().Get(ctx, Partition, "p1")
	assert.Equal(t, 1, stored.Stock)
}

func TestService_DecrementStock_ConcurrentNeverOversells(t *testing.T) {
	service, repo, _ := newTestProductService()
	seedProduct(t, repo, &Product{ID: "p1", Stock: 5})
	ctx := context.Background()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		sold int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, applied, err := service.DecrementStock(ctx, "p1", string(rune('a'+i)), 1)
			if err == nil && applied {
				mu.Lock()
				sold++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	stored, err := repo.Inner().Get(ctx, Partition, "p1")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, stored.Stock, 0)
	assert.Equal(t, 5-sold, stored.Stock)
}

// ============================================
// Image Tests
// ============================================

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func TestService_UploadImage(t *testing.T) {
	service, repo, blobs := newTestProductService()
	seedProduct(t, repo, &Product{ID: "p1", Name: "Mug"})

	p, err := service.UploadImage(context.Background(), "p1", testPNG(t, 1000, 500))

	require.NoError(t, err)
	assert.Equal(t, "memory://product-images/p1.jpg", p.ImageURL)
	obj, ok := blobs.Get("product-images/p1.jpg")
	require.True(t, ok)
	assert.Equal(t, "image/jpeg", obj.ContentType)
}

func TestService_UploadImage_UnknownProduct(t *testing.T) {
	service, _, blobs := newTestProductService()

	_, err := service.UploadImage(context.Background(), "missing", testPNG(t, 10, 10))

	assert.ErrorIs(t, err, ErrProductNotFound)
	assert.Empty(t, blobs.Names())
}

func TestService_LinkImage_ByID(t *testing.T) {
	service, repo, _ := newTestProductService()
	seedProduct(t, repo, &Product{ID: "p1", Name: "Mug"})

	p, err := service.LinkImage(context.Background(), "product-images/p1.jpg", "https://cdn/p1.jpg")

	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "https://cdn/p1.jpg", p.ImageURL)
}

func TestService_LinkImage_FallbackScan(t *testing.T) {
	tests := []struct {
		name    string
		blob    string
		product *Product
	}{
		{"by product name", "product-images/coffee mug.png", &Product{ID: "abc-123", Name: "Coffee Mug"}},
		{"by partial id", "product-images/abc.png", &Product{ID: "abc-123", Name: "Mug"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, repo, _ := newTestProductService()
			seedProduct(t, repo, tt.product)

			p, err := service.LinkImage(context.Background(), tt.blob, "uri")

			require.NoError(t, err)
			require.NotNil(t, p)
			assert.Equal(t, tt.product.ID, p.ID)
			assert.Equal(t, "uri", p.ImageURL)
		})
	}
}

func TestService_LinkImage_NoMatchIsNotAnError(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	repo := mocks.NewMockRepository(New)
	service := NewService(repo, blob.NewMemoryStore(), zap.New(core))
	seedProduct(t, repo, &Product{ID: "zzz", Name: "Kettle"})

	p, err := service.LinkImage(context.Background(), "product-images/teapot.jpg", "uri")

	require.NoError(t, err)
	assert.Nil(t, p)
	assert.Equal(t, 1, logs.FilterMessage("no product matches image").Len())
}
