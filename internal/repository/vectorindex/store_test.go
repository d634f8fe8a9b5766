package vectorindex

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/DRSN-tech/vision-service/internal/domain"
	"github.com/DRSN-tech/vision-service/pkg/e"
	"github.com/DRSN-tech/vision-service/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, dir string) *Store {
	t.Helper()
	s, err := NewStore(dir, 3, logger.NewNop())
	require.NoError(t, err)
	return s
}

func sampleRecords() []domain.ProductEmbeddingRecord {
	return []domain.ProductEmbeddingRecord{
		{ProductID: "product_1", ProductName: "Red Mug", Price: 9.99, Vector: []float32{1, 0, 0}},
		{ProductID: "product_1", ProductName: "Red Mug", Price: 9.99, Vector: []float32{0.9, 0.1, 0}},
		{ProductID: "product_2", ProductName: "Green Tea", Price: 4.5, Vector: []float32{0, 1, 0}},
		{ProductID: "product_3", ProductName: "Blue Pen", Price: 1.25, Vector: []float32{0, 0, 1}},
	}
}

func TestStore_SaveAndSearch(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, t.TempDir())

	idx, err := s.Save(ctx, "seller_1", sampleRecords())
	require.NoError(t, err)
	assert.Equal(t, 4, idx.Len())
	assert.Equal(t, 3, idx.UniqueProducts())

	hits, err := s.Search(ctx, "seller_1", []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, 0, hits[0].Row)
	assert.Equal(t, "product_1", hits[0].Record.ProductID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-5)
	assert.GreaterOrEqual(t, hits[0].Score, hits[1].Score)
}

func TestStore_SaveRejectsZeroNormVector(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, t.TempDir())

	records := sampleRecords()
	records[2].Vector = []float32{0, 0, 0}

	_, err := s.Save(ctx, "seller_1", records)
	require.ErrorIs(t, err, e.ErrVectorEmbeddingEmpty)

	_, ok := s.Get("seller_1")
	assert.False(t, ok)
}

func TestStore_SearchCapsKAtIndexSize(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, t.TempDir())

	_, err := s.Save(ctx, "seller_1", sampleRecords())
	require.NoError(t, err)

	hits, err := s.Search(ctx, "seller_1", []float32{0, 1, 0}, 50)
	require.NoError(t, err)
	assert.Len(t, hits, 4)

	for i, h := range hits {
		assert.Equal(t, sampleRecords()[h.Row].ProductID, h.Record.ProductID)
		if i > 0 {
			assert.LessOrEqual(t, h.Score, hits[i-1].Score)
		}
	}
}

func TestStore_SearchErrors(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, t.TempDir())

	_, err := s.Search(ctx, "seller_404", []float32{1, 0, 0}, 1)
	assert.ErrorIs(t, err, e.ErrIndexNotFound)

	_, err = s.Save(ctx, "seller_1", sampleRecords())
	require.NoError(t, err)

	_, err = s.Search(ctx, "seller_1", []float32{1, 0}, 1)
	assert.ErrorIs(t, err, e.ErrDimensionMismatch)

	_, err = s.Search(ctx, "seller_1", []float32{0, 0, 0}, 1)
	assert.ErrorIs(t, err, e.ErrVectorEmbeddingEmpty)
}

func TestStore_SaveValidation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, t.TempDir())

	_, err := s.Save(ctx, "../etc", sampleRecords())
	assert.ErrorIs(t, err, e.ErrInvalidTenant)

	_, err = s.Save(ctx, "seller_1", nil)
	assert.ErrorIs(t, err, e.ErrEmptyVectors)

	bad := sampleRecords()
	bad[2].Vector = []float32{1, 2}
	_, err = s.Save(ctx, "seller_1", bad)
	assert.ErrorIs(t, err, e.ErrDimensionMismatch)

	_, ok := s.Get("seller_1")
	assert.False(t, ok)
}

func TestStore_PersistRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	saved, err := newTestStore(t, dir).Save(ctx, "seller_7", sampleRecords())
	require.NoError(t, err)

	fresh := newTestStore(t, dir)
	first, err := fresh.Load(ctx, "seller_7")
	require.NoError(t, err)
	second, err := fresh.Load(ctx, "seller_7")
	require.NoError(t, err)

	assert.Equal(t, saved.Records, first.Records)
	assert.True(t, saved.CreatedAt.Equal(first.CreatedAt))
	assert.Equal(t, first, second)

	hits, err := fresh.Search(ctx, "seller_7", []float32{0, 0, 1}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "product_3", hits[0].Record.ProductID)
	assert.Equal(t, "Blue Pen", hits[0].Record.ProductName)
	assert.Equal(t, 1.25, hits[0].Record.Price)
}

func TestStore_SaveReplacesIndex(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, t.TempDir())

	_, err := s.Save(ctx, "seller_1", sampleRecords())
	require.NoError(t, err)

	_, err = s.Save(ctx, "seller_1", []domain.ProductEmbeddingRecord{
		{ProductID: "product_9", ProductName: "Lamp", Price: 30, Vector: []float32{0, 1, 0}},
	})
	require.NoError(t, err)

	idx, ok := s.Get("seller_1")
	require.True(t, ok)
	assert.Equal(t, 1, idx.Len())

	entries, err := os.ReadDir(s.root)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "temp files must not be left behind")
}

func TestStore_LoadMissingAndCorrupt(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := newTestStore(t, dir)

	_, err := s.Load(ctx, "seller_1")
	assert.ErrorIs(t, err, e.ErrIndexNotFound)

	_, err = s.Save(ctx, "seller_1", sampleRecords())
	require.NoError(t, err)

	vecPath, metaPath := s.Files("seller_1")
	require.NoError(t, os.WriteFile(metaPath, []byte(`[{"product_id":"product_1","product_name":"Red Mug","price":9.99}]`), 0o644))

	_, err = s.Load(ctx, "seller_1")
	assert.ErrorIs(t, err, e.ErrIndexCorrupt)

	idx, ok := s.Get("seller_1")
	require.True(t, ok, "previous index keeps serving after a failed reload")
	assert.Equal(t, 4, idx.Len())

	require.NoError(t, os.WriteFile(vecPath, []byte("garbage"), 0o644))
	_, err = newTestStore(t, dir).Load(ctx, "seller_1")
	assert.ErrorIs(t, err, e.ErrIndexCorrupt)
}

func TestStore_LoadRejectsMetadataFromAnotherBuild(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := newTestStore(t, dir)

	_, err := s.Save(ctx, "seller_1", sampleRecords())
	require.NoError(t, err)

	// то же число строк, но метаданные от другой сборки
	_, metaPath := s.Files("seller_1")
	raw, err := os.ReadFile(metaPath)
	require.NoError(t, err)
	var rows []metadataRow
	require.NoError(t, json.Unmarshal(raw, &rows))
	for i := range rows {
		rows[i].IndexCreatedAt--
	}
	raw, err = json.Marshal(rows)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(metaPath, raw, 0o644))

	_, err = newTestStore(t, dir).Load(ctx, "seller_1")
	assert.ErrorIs(t, err, e.ErrIndexCorrupt)
}

func TestStore_LoadRejectsOtherDimension(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	_, err := newTestStore(t, dir).Save(ctx, "seller_1", sampleRecords())
	require.NoError(t, err)

	wide, err := NewStore(dir, 4, logger.NewNop())
	require.NoError(t, err)

	_, err = wide.Load(ctx, "seller_1")
	assert.ErrorIs(t, err, e.ErrIndexCorrupt)
	assert.ErrorIs(t, err, e.ErrDimensionMismatch)
}

func TestStore_LoadAllSkipsCorrupt(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := newTestStore(t, dir)

	for _, tenant := range []string{"seller_1", "seller_2", "seller_3"} {
		_, err := s.Save(ctx, tenant, sampleRecords())
		require.NoError(t, err)
	}

	_, metaPath := s.Files("seller_2")
	require.NoError(t, os.Remove(metaPath))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	fresh := newTestStore(t, dir)
	loaded, err := fresh.LoadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"seller_1", "seller_3"}, loaded)
	assert.Equal(t, []string{"seller_1", "seller_3"}, fresh.Tenants())
}
