package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DRSN-tech/vision-service/internal/domain"
	"github.com/DRSN-tech/vision-service/internal/repository/dataset"
	"github.com/DRSN-tech/vision-service/internal/repository/vectorindex"
	"github.com/DRSN-tech/vision-service/internal/usecase"
	"github.com/DRSN-tech/vision-service/pkg/imaging"
	"github.com/DRSN-tech/vision-service/pkg/logger"
	"github.com/stretchr/testify/require"
)

const testDim = 3

var (
	red  = color.RGBA{R: 255, A: 255}
	blue = color.RGBA{B: 255, A: 255}
)

// solid возвращает изображение одного цвета.
func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// split возвращает изображение: левая половина left, правая right.
func split(w, h int, left, right color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if x < w/2 {
				img.Set(x, y, left)
			} else {
				img.Set(x, y, right)
			}
		}
	}
	return img
}

func jpegBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	data, err := imaging.EncodeJPEG(img, imaging.DefaultJPEGQuality)
	require.NoError(t, err)
	return data
}

// meanRGBEmbedder возвращает средний цвет изображения как вектор размерности 3.
type meanRGBEmbedder struct {
	texts map[string][]float32
	calls atomic.Int32
}

func (m *meanRGBEmbedder) EmbedImage(_ context.Context, img image.Image) ([]float32, error) {
	m.calls.Add(1)

	b := img.Bounds()
	var r, g, bl float64
	n := float64(b.Dx() * b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			cr, cg, cb, _ := img.At(x, y).RGBA()
			r += float64(cr) / 0xffff
			g += float64(cg) / 0xffff
			bl += float64(cb) / 0xffff
		}
	}
	return []float32{float32(r / n), float32(g / n), float32(bl / n)}, nil
}

func (m *meanRGBEmbedder) EmbedText(_ context.Context, text string) ([]float32, error) {
	if v, ok := m.texts[text]; ok {
		return v, nil
	}
	return []float32{1, 1, 1}, nil
}

// scriptedEmbedder всегда возвращает один и тот же вектор.
type scriptedEmbedder struct {
	vector []float32
}

func (s *scriptedEmbedder) EmbedImage(context.Context, image.Image) ([]float32, error) {
	return s.vector, nil
}

func (s *scriptedEmbedder) EmbedText(context.Context, string) ([]float32, error) {
	return s.vector, nil
}

type fakeDetector struct {
	detections []domain.Detection
	err        error
	calls      atomic.Int32
}

func (f *fakeDetector) Detect(context.Context, image.Image, usecase.DetectOptions) ([]domain.Detection, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	out := make([]domain.Detection, len(f.detections))
	copy(out, f.detections)
	return out, nil
}

type fakeCatalog struct {
	products []domain.CatalogProduct
	err      error
}

func (f *fakeCatalog) FetchProducts(context.Context) ([]domain.CatalogProduct, error) {
	return f.products, f.err
}

type fakeDownloader struct {
	files map[string][]byte
}

func (f *fakeDownloader) Download(_ context.Context, url string) ([]byte, error) {
	data, ok := f.files[url]
	if !ok {
		return nil, errors.New("404 not found")
	}
	return data, nil
}

type fakeFineTuner struct {
	err   error
	calls atomic.Int32
	req   *usecase.FineTuneReq
}

func (f *fakeFineTuner) FineTune(_ context.Context, req *usecase.FineTuneReq) (*usecase.FineTuneRes, error) {
	f.calls.Add(1)
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	return usecase.NewFineTuneRes("ft-1", 3, 0.2), nil
}

type fakeVersions struct {
	version int32
	err     error
}

func (f *fakeVersions) Bump(_ context.Context, tenant string, total, unique int) (*domain.IndexVersion, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.IndexVersion{TenantKey: tenant, Version: f.version, TotalEmbeddings: total, UniqueProducts: unique}, nil
}

type fakeMirror struct {
	err     error
	indexes []*domain.SellerIndex
}

func (f *fakeMirror) Replace(_ context.Context, idx *domain.SellerIndex) error {
	f.indexes = append(f.indexes, idx)
	return f.err
}

type fakeBackup struct {
	reqs []*usecase.BackupIndexReq
}

func (f *fakeBackup) BackupIndex(_ context.Context, req *usecase.BackupIndexReq) (*usecase.BackupIndexRes, error) {
	f.reqs = append(f.reqs, req)
	return usecase.NewBackupIndexRes(req.Files), nil
}

type fakeEvents struct {
	mu     sync.Mutex
	events []*usecase.IndexRebuiltEvent
}

func (f *fakeEvents) PublishIndexRebuilt(_ context.Context, event *usecase.IndexRebuiltEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

type noopMetrics struct{}

func (noopMetrics) ObserveDetect(string, time.Duration, int)            {}
func (noopMetrics) ObserveEmbed(time.Duration)                          {}
func (noopMetrics) ObserveMatch(string, float32, bool)                  {}
func (noopMetrics) ObserveRecognize(string, time.Duration, int, error)  {}
func (noopMetrics) ObserveBuild(string, time.Duration, int, int, error) {}
func (noopMetrics) ObserveOrganize(time.Duration, int, int, int, error) {}

func newStore(t *testing.T) *vectorindex.Store {
	t.Helper()
	store, err := vectorindex.NewStore(t.TempDir(), testDim, logger.NewNop())
	require.NoError(t, err)
	return store
}

func newDatasets(t *testing.T) *dataset.DatasetRepo {
	t.Helper()
	repo, err := dataset.NewDatasetRepo(t.TempDir(), logger.NewNop())
	require.NoError(t, err)
	return repo
}

// writeProduct кладёт в датасет продавца товар с заданными картинками.
func writeProduct(t *testing.T, repo *dataset.DatasetRepo, sellerID, productID int64, name string, price float64, images ...[]byte) {
	t.Helper()

	files := make([]domain.DatasetImage, len(images))
	for i, data := range images {
		files[i] = domain.NewDatasetImage(fmt.Sprintf("original_%d.jpg", i), data)
	}

	meta := &domain.ProductMetadata{ProductID: productID, ProductName: name, Price: price, SellerID: sellerID}
	require.NoError(t, repo.ReplaceProduct(context.Background(), domain.SellerKey(sellerID), meta, files))
}
