package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/DRSN-tech/vision-service/internal/domain"
	"github.com/DRSN-tech/vision-service/pkg/e"
	"github.com/DRSN-tech/vision-service/pkg/imaging"
	"github.com/DRSN-tech/vision-service/pkg/logger"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const defaultBuildWorkers = 4

// IndexBuilder собирает индекс продавца из его датасета и публикует его в хранилище.
// Сборки одного продавца выполняются строго по очереди; поиск по прежнему индексу не блокируется.
type IndexBuilder struct {
	datasets DatasetRepository
	embedder Embedder
	store    IndexStore
	metrics  Metrics
	logger   logger.Logger
	workers  int

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func NewIndexBuilder(datasets DatasetRepository, embedder Embedder, store IndexStore, workers int, metrics Metrics, logger logger.Logger) *IndexBuilder {
	if workers <= 0 {
		workers = defaultBuildWorkers
	}

	return &IndexBuilder{
		datasets: datasets,
		embedder: embedder,
		store:    store,
		metrics:  metrics,
		logger:   logger,
		workers:  workers,
		locks:    make(map[string]*sync.Mutex),
	}
}

// buildItem: одна обучающая картинка. Позиция в срезе задаёт номер строки индекса.
type buildItem struct {
	product ProductDataset
	path    string
	vector  []float32
	err     error
}

// Build векторизует все картинки датасета продавца и атомарно заменяет его индекс.
// Картинки, которые не удалось прочитать или векторизовать, пропускаются.
func (b *IndexBuilder) Build(ctx context.Context, tenant string) (res *BuildRes, err error) {
	const op = "IndexBuilder.Build"

	start := time.Now()
	ctx, span := tracer.Start(ctx, op)
	defer func() {
		embeddings, skipped := 0, 0
		if res != nil {
			embeddings, skipped = res.TotalEmbeddings, res.SkippedImages
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		b.metrics.ObserveBuild(tenant, time.Since(start), embeddings, skipped, err)
	}()
	span.SetAttributes(attribute.String("tenant", tenant))

	if err = domain.ValidateTenantKey(tenant); err != nil {
		return nil, e.Wrap(op, err)
	}

	unlock := b.lockTenant(tenant)
	defer unlock()

	items, err := b.collect(ctx, tenant)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	records := make([]domain.ProductEmbeddingRecord, 0, len(items))
	skipped := 0
	for _, item := range items {
		if item.err != nil {
			skipped++
			b.logger.Warnf("%s: %v: %s: %v", op, e.ErrPartialAssetFailure, item.path, item.err)
			continue
		}
		records = append(records, newEmbeddingRecord(item.product, item.vector))
	}

	if len(records) == 0 {
		return nil, e.Wrap(op, fmt.Errorf("%w: seller %s, %d images skipped", e.ErrNoTrainingData, tenant, skipped))
	}

	idx, err := b.store.Save(ctx, tenant, records)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	b.logger.Infof("built index for %s: %d embeddings, %d products, %d skipped", tenant, idx.Len(), idx.UniqueProducts(), skipped)
	return NewBuildRes(idx, skipped), nil
}

// collect читает датасет продавца и векторизует его картинки.
// Пока идёт чтение, организатор не подменяет каталоги товаров этого продавца.
func (b *IndexBuilder) collect(ctx context.Context, tenant string) ([]*buildItem, error) {
	release := b.datasets.ReadLock(tenant)
	defer release()

	products, err := b.datasets.ListProducts(ctx, tenant)
	if err != nil {
		return nil, err
	}

	var items []*buildItem
	for _, p := range products {
		for _, path := range p.ImagePaths {
			items = append(items, &buildItem{product: p, path: path})
		}
	}

	b.embedAll(ctx, items)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// embedAll векторизует картинки параллельно с ограничением числа одновременных запросов.
// Результаты кладутся на место соответствующей картинки, порядок строк от этого не зависит.
func (b *IndexBuilder) embedAll(ctx context.Context, items []*buildItem) {
	sem := make(chan struct{}, b.workers)
	var wg sync.WaitGroup

	for _, item := range items {
		wg.Add(1)
		go func() {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				item.err = ctx.Err()
				return
			}
			defer func() { <-sem }()

			item.vector, item.err = b.embedFile(ctx, item.path)
		}()
	}

	wg.Wait()
}

func (b *IndexBuilder) embedFile(ctx context.Context, path string) ([]float32, error) {
	data, err := b.datasets.ReadImage(ctx, path)
	if err != nil {
		return nil, err
	}

	img, err := imaging.Decode(data)
	if err != nil {
		return nil, err
	}

	vector, err := b.embedder.EmbedImage(ctx, img)
	if err != nil {
		return nil, err
	}
	if len(vector) == 0 || domain.IsZeroVector(vector) {
		return nil, e.ErrVectorEmbeddingEmpty
	}

	return domain.Normalize(vector), nil
}

func (b *IndexBuilder) lockTenant(tenant string) func() {
	b.locksMu.Lock()
	l, ok := b.locks[tenant]
	if !ok {
		l = &sync.Mutex{}
		b.locks[tenant] = l
	}
	b.locksMu.Unlock()

	l.Lock()
	return l.Unlock
}

// newEmbeddingRecord берёт имя и цену из metadata.json, а при его отсутствии: имя каталога и 0.
func newEmbeddingRecord(p ProductDataset, vector []float32) domain.ProductEmbeddingRecord {
	record := domain.ProductEmbeddingRecord{
		ProductID:   p.ProductID,
		ProductName: p.ProductID,
		Vector:      vector,
	}
	if p.Meta != nil {
		if p.Meta.ProductName != "" {
			record.ProductName = p.Meta.ProductName
		}
		record.Price = p.Meta.Price
	}
	return record
}
