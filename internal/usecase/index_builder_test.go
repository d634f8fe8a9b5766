package usecase_test

import (
	"context"
	"image/color"
	"sync"
	"testing"

	"github.com/DRSN-tech/vision-service/internal/domain"
	"github.com/DRSN-tech/vision-service/internal/usecase"
	"github.com/DRSN-tech/vision-service/pkg/e"
	"github.com/DRSN-tech/vision-service/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexBuilder_Build(t *testing.T) {
	datasets := newDatasets(t)
	redImg := jpegBytes(t, solid(48, 48, red))
	writeProduct(t, datasets, 1, 7, "Red Mug", 12.5, redImg, redImg, redImg)

	store := newStore(t)
	builder := usecase.NewIndexBuilder(datasets, &meanRGBEmbedder{}, store, 2, noopMetrics{}, logger.NewNop())

	res, err := builder.Build(context.Background(), "seller_1")
	require.NoError(t, err)

	assert.Equal(t, "seller_1", res.TenantKey)
	assert.Equal(t, 3, res.TotalEmbeddings)
	assert.Equal(t, 1, res.UniqueProducts)
	assert.Zero(t, res.SkippedImages)
	for _, r := range res.Index.Records {
		assert.Equal(t, "product_7", r.ProductID)
		assert.Equal(t, "Red Mug", r.ProductName)
		assert.InDelta(t, 12.5, r.Price, 1e-9)
	}

	idx, ok := store.Get("seller_1")
	require.True(t, ok)
	assert.Equal(t, 3, idx.Len())
}

func TestIndexBuilder_SkipsBrokenImages(t *testing.T) {
	datasets := newDatasets(t)
	writeProduct(t, datasets, 1, 7, "Red Mug", 12.5, jpegBytes(t, solid(48, 48, red)))
	writeProduct(t, datasets, 1, 8, "Blue Plate", 3.1, jpegBytes(t, solid(48, 48, blue)), []byte("broken"))

	store := newStore(t)
	builder := usecase.NewIndexBuilder(datasets, &meanRGBEmbedder{}, store, 4, noopMetrics{}, logger.NewNop())

	res, err := builder.Build(context.Background(), "seller_1")
	require.NoError(t, err)
	assert.Equal(t, 2, res.TotalEmbeddings)
	assert.Equal(t, 2, res.UniqueProducts)
	assert.Equal(t, 1, res.SkippedImages)

	// строки идут в порядке каталогов и картинок
	require.Len(t, res.Index.Records, 2)
	assert.Equal(t, "product_7", res.Index.Records[0].ProductID)
	assert.Equal(t, "product_8", res.Index.Records[1].ProductID)

	hits, err := store.Search(context.Background(), "seller_1", []float32{0, 0, 1}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Blue Plate", hits[0].Record.ProductName)
}

func TestIndexBuilder_SkipsZeroNormEmbeddings(t *testing.T) {
	datasets := newDatasets(t)
	// средний цвет чёрной картинки даёт нулевой вектор
	writeProduct(t, datasets, 1, 7, "Red Mug", 12.5, jpegBytes(t, solid(48, 48, red)), jpegBytes(t, solid(48, 48, color.Black)))

	store := newStore(t)
	builder := usecase.NewIndexBuilder(datasets, &meanRGBEmbedder{}, store, 2, noopMetrics{}, logger.NewNop())

	res, err := builder.Build(context.Background(), "seller_1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalEmbeddings)
	assert.Equal(t, 1, res.SkippedImages)

	_, err = usecase.NewIndexBuilder(datasets, &scriptedEmbedder{vector: []float32{0, 0, 0}}, store, 2, noopMetrics{}, logger.NewNop()).
		Build(context.Background(), "seller_1")
	require.ErrorIs(t, err, e.ErrNoTrainingData)

	hits, err := store.Search(context.Background(), "seller_1", []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-2)
}

func TestIndexBuilder_NoTrainingData(t *testing.T) {
	datasets := newDatasets(t)
	writeProduct(t, datasets, 2, 9, "Ghost", 1, []byte("broken"))

	store := newStore(t)
	builder := usecase.NewIndexBuilder(datasets, &meanRGBEmbedder{}, store, 2, noopMetrics{}, logger.NewNop())

	_, err := builder.Build(context.Background(), "seller_2")
	require.ErrorIs(t, err, e.ErrNoTrainingData)

	_, err = builder.Build(context.Background(), "seller_3")
	require.ErrorIs(t, err, e.ErrNoTrainingData)

	_, ok := store.Get("seller_2")
	assert.False(t, ok)
}

func TestIndexBuilder_KeepsPreviousIndexOnFailure(t *testing.T) {
	datasets := newDatasets(t)
	writeProduct(t, datasets, 1, 7, "Red Mug", 12.5, jpegBytes(t, solid(48, 48, red)))

	store := newStore(t)
	builder := usecase.NewIndexBuilder(datasets, &meanRGBEmbedder{}, store, 2, noopMetrics{}, logger.NewNop())

	_, err := builder.Build(context.Background(), "seller_1")
	require.NoError(t, err)

	writeProduct(t, datasets, 1, 7, "Red Mug", 12.5, []byte("broken"))
	_, err = builder.Build(context.Background(), "seller_1")
	require.ErrorIs(t, err, e.ErrNoTrainingData)

	idx, ok := store.Get("seller_1")
	require.True(t, ok)
	assert.Equal(t, 1, idx.Len())
}

func TestIndexBuilder_ConcurrentBuildsOfOneTenant(t *testing.T) {
	datasets := newDatasets(t)
	redImg := jpegBytes(t, solid(32, 32, red))
	writeProduct(t, datasets, 1, 7, "Red Mug", 12.5, redImg, redImg)

	store := newStore(t)
	builder := usecase.NewIndexBuilder(datasets, &meanRGBEmbedder{}, store, 2, noopMetrics{}, logger.NewNop())

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = builder.Build(context.Background(), "seller_1")
		}()
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	idx, ok := store.Get("seller_1")
	require.True(t, ok)
	assert.Equal(t, 2, idx.Len())
}

func TestIndexBuilder_ConcurrentWithDatasetRewrite(t *testing.T) {
	datasets := newDatasets(t)
	redImg := jpegBytes(t, solid(32, 32, red))
	writeProduct(t, datasets, 1, 7, "Red Mug", 12.5, redImg, redImg)

	store := newStore(t)
	builder := usecase.NewIndexBuilder(datasets, &meanRGBEmbedder{}, store, 2, noopMetrics{}, logger.NewNop())

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
				meta := &domain.ProductMetadata{ProductID: 7, ProductName: "Red Mug", Price: 12.5, SellerID: 1}
				files := []domain.DatasetImage{
					domain.NewDatasetImage("original_0.jpg", redImg),
					domain.NewDatasetImage("original_1.jpg", redImg),
				}
				assert.NoError(t, datasets.ReplaceProduct(context.Background(), "seller_1", meta, files))
			}
		}
	}()

	for range 20 {
		res, err := builder.Build(context.Background(), "seller_1")
		require.NoError(t, err)
		assert.Equal(t, 2, res.TotalEmbeddings)
		assert.Zero(t, res.SkippedImages)
	}
	close(stop)
	<-done
}

func TestIndexBuilder_InvalidTenant(t *testing.T) {
	builder := usecase.NewIndexBuilder(newDatasets(t), &meanRGBEmbedder{}, newStore(t), 2, noopMetrics{}, logger.NewNop())

	_, err := builder.Build(context.Background(), "seller/1")
	assert.ErrorIs(t, err, e.ErrInvalidTenant)
}
