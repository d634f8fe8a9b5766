package dataset

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DRSN-tech/vision-service/internal/domain"
	"github.com/DRSN-tech/vision-service/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepo(t *testing.T) *DatasetRepo {
	t.Helper()
	r, err := NewDatasetRepo(t.TempDir(), logger.NewNop())
	require.NoError(t, err)
	return r
}

func TestDatasetRepo_ReplaceAndList(t *testing.T) {
	ctx := context.Background()
	r := newRepo(t)

	meta := &domain.ProductMetadata{ProductID: 2, ProductName: "Red Mug", Price: 9.99, SellerID: 1}
	err := r.ReplaceProduct(ctx, "seller_1", meta, []domain.DatasetImage{
		domain.NewDatasetImage("original_1.jpg", []byte("b")),
		domain.NewDatasetImage("original_0.jpg", []byte("a")),
		domain.NewDatasetImage("crop_0_0.jpg", []byte("c")),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, meta.ImageCount)

	require.NoError(t, r.ReplaceProduct(ctx, "seller_1", &domain.ProductMetadata{ProductID: 10, ProductName: "Pen"},
		[]domain.DatasetImage{domain.NewDatasetImage("original_0.jpg", []byte("x"))}))

	require.NoError(t, os.MkdirAll(filepath.Join(r.TenantDir("seller_1"), "product_1", "images"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(r.TenantDir("seller_1"), "product_1", "images", "a.png"), []byte("p"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(r.TenantDir("seller_1"), "product_1", "images", "notes.txt"), []byte("n"), 0o644))

	products, err := r.ListProducts(ctx, "seller_1")
	require.NoError(t, err)
	require.Len(t, products, 3)

	assert.Equal(t, "product_1", products[0].ProductID)
	assert.Nil(t, products[0].Meta)
	assert.Len(t, products[0].ImagePaths, 1)

	assert.Equal(t, "product_10", products[1].ProductID)
	assert.Equal(t, "product_2", products[2].ProductID)
	require.NotNil(t, products[2].Meta)
	assert.Equal(t, "Red Mug", products[2].Meta.ProductName)
	assert.Equal(t, []string{"crop_0_0.jpg", "original_0.jpg", "original_1.jpg"}, baseNames(products[2].ImagePaths))

	data, err := r.ReadImage(ctx, products[2].ImagePaths[1])
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), data)
}

func TestDatasetRepo_ReplaceWithoutImagesKeepsPrevious(t *testing.T) {
	ctx := context.Background()
	r := newRepo(t)

	require.NoError(t, r.ReplaceProduct(ctx, "seller_1", &domain.ProductMetadata{ProductID: 1, ProductName: "Old"},
		[]domain.DatasetImage{domain.NewDatasetImage("original_0.jpg", []byte("a"))}))

	meta := &domain.ProductMetadata{ProductID: 1, ProductName: "New"}
	require.NoError(t, r.ReplaceProduct(ctx, "seller_1", meta, nil))
	assert.Equal(t, 1, meta.ImageCount)

	products, err := r.ListProducts(ctx, "seller_1")
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "New", products[0].Meta.ProductName)
	assert.Len(t, products[0].ImagePaths, 1)

	entries, err := os.ReadDir(filepath.Join(r.TenantDir("seller_1"), "product_1"))
	require.NoError(t, err)
	assert.Len(t, entries, 2, "only metadata.json and images/ remain")
}

func TestDatasetRepo_MissingTenant(t *testing.T) {
	products, err := newRepo(t).ListProducts(context.Background(), "seller_404")
	require.NoError(t, err)
	assert.Empty(t, products)
}

func baseNames(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = filepath.Base(p)
	}
	return out
}

func TestDatasetRepo_ReplaceWaitsForReaders(t *testing.T) {
	ctx := context.Background()
	r := newRepo(t)

	release := r.ReadLock("seller_1")

	written := make(chan error, 1)
	go func() {
		meta := &domain.ProductMetadata{ProductID: 2, ProductName: "Red Mug", SellerID: 1}
		written <- r.ReplaceProduct(ctx, "seller_1", meta, []domain.DatasetImage{domain.NewDatasetImage("original_0.jpg", []byte("a"))})
	}()

	select {
	case <-written:
		t.Fatal("product was replaced while the dataset was being read")
	case <-time.After(50 * time.Millisecond):
	}

	// другой продавец не ждёт
	require.NoError(t, r.ReplaceProduct(ctx, "seller_2", &domain.ProductMetadata{ProductID: 3, SellerID: 2},
		[]domain.DatasetImage{domain.NewDatasetImage("original_0.jpg", []byte("b"))}))

	release()
	require.NoError(t, <-written)
}
