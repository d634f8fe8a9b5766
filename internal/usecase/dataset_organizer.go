package usecase

import (
	"context"
	"fmt"
	"image"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/DRSN-tech/vision-service/internal/cfg"
	"github.com/DRSN-tech/vision-service/internal/domain"
	"github.com/DRSN-tech/vision-service/pkg/e"
	"github.com/DRSN-tech/vision-service/pkg/imaging"
	"github.com/DRSN-tech/vision-service/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// DatasetOrganizer раскладывает каталог коммерческого бэкенда по датасетам продавцов.
// Запуски сериализуются в пределах процесса.
type DatasetOrganizer struct {
	catalog    CatalogInfra
	downloader ImageDownloader
	detector   Detector
	datasets   DatasetRepository
	cfg        *cfg.OrganizerCfg
	recCfg     *cfg.RecognitionCfg
	metrics    Metrics
	logger     logger.Logger

	allowed map[string]struct{}
	mu      sync.Mutex
}

func NewDatasetOrganizer(
	catalog CatalogInfra,
	downloader ImageDownloader,
	detector Detector,
	datasets DatasetRepository,
	cfg *cfg.OrganizerCfg,
	recCfg *cfg.RecognitionCfg,
	metrics Metrics,
	logger logger.Logger,
) *DatasetOrganizer {
	allowed := make(map[string]struct{}, len(cfg.AllowedClasses))
	for _, class := range cfg.AllowedClasses {
		allowed[strings.ToLower(class)] = struct{}{}
	}

	return &DatasetOrganizer{
		catalog:    catalog,
		downloader: downloader,
		detector:   detector,
		datasets:   datasets,
		cfg:        cfg,
		recCfg:     recCfg,
		metrics:    metrics,
		logger:     logger,
		allowed:    allowed,
	}
}

// productStats: итог обработки одного товара.
type productStats struct {
	images   int
	crops    int
	failures int
}

// Organize скачивает каталог и обновляет датасеты всех продавцов.
// Пустой каталог: Organized == false, на диске ничего не меняется.
// Ошибка одной картинки или товара логируется и не прерывает запуск.
func (o *DatasetOrganizer) Organize(ctx context.Context) (res *OrganizeRes, err error) {
	const op = "DatasetOrganizer.Organize"

	o.mu.Lock()
	defer o.mu.Unlock()

	start := time.Now()
	ctx, span := tracer.Start(ctx, op)
	defer func() {
		products, images, failures := 0, 0, 0
		if res != nil {
			products, images, failures = res.Products, res.Images, res.Failures
		}
		span.End()
		o.metrics.ObserveOrganize(time.Since(start), products, images, failures, err)
	}()

	products, err := o.catalog.FetchProducts(ctx)
	if err != nil {
		return nil, e.Wrap(op, err)
	}
	if len(products) == 0 {
		o.logger.Warnf("%s: catalog is empty, datasets left untouched", op)
		return &OrganizeRes{Organized: false}, nil
	}

	bySeller := make(map[string][]domain.CatalogProduct)
	for _, p := range products {
		tenant := domain.SellerKey(p.SellerID)
		bySeller[tenant] = append(bySeller[tenant], p)
	}

	res = &OrganizeRes{Organized: true}
	for tenant := range bySeller {
		res.Tenants = append(res.Tenants, tenant)
	}
	sort.Strings(res.Tenants)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(max(o.cfg.DownloadConcurrency, 1))

	for _, tenant := range res.Tenants {
		for _, product := range bySeller[tenant] {
			g.Go(func() error {
				stats := o.organizeProduct(ctx, tenant, product)

				mu.Lock()
				res.Products++
				res.Images += stats.images
				res.Crops += stats.crops
				res.Failures += stats.failures
				mu.Unlock()
				return nil
			})
		}
	}
	_ = g.Wait()

	if err = ctx.Err(); err != nil {
		return nil, e.Wrap(op, err)
	}

	o.logger.Infof("organized %d products of %d sellers: %d images, %d crops, %d failures",
		res.Products, len(res.Tenants), res.Images, res.Crops, res.Failures)
	return res, nil
}

// organizeProduct скачивает картинки товара, режет кропы и заменяет каталог товара в датасете.
// Если не удалось получить ни одной картинки, прежние картинки товара сохраняются.
func (o *DatasetOrganizer) organizeProduct(ctx context.Context, tenant string, p domain.CatalogProduct) productStats {
	const op = "DatasetOrganizer.organizeProduct"

	var (
		stats  productStats
		images []domain.DatasetImage
	)

	for n, ref := range p.Images {
		originals, crops, err := o.processImage(ctx, n, ref.ImageURL)
		if err != nil {
			stats.failures++
			o.logger.Warnf("%s: %v: product %d image %s: %v", op, e.ErrPartialAssetFailure, p.ID, ref.ImageURL, err)
			continue
		}
		images = append(images, originals...)
		images = append(images, crops...)
		stats.images += len(originals)
		stats.crops += len(crops)
	}

	meta := &domain.ProductMetadata{
		ProductID:   p.ID,
		ProductName: p.Name,
		Description: p.Description,
		Price:       p.Price,
		SellerID:    p.SellerID,
		UpdatedAt:   time.Now().UTC(),
	}

	if err := o.datasets.ReplaceProduct(ctx, tenant, meta, images); err != nil {
		stats.failures++
		o.logger.Errorf(err, "%s: cannot write product %d of %s", op, p.ID, tenant)
	}

	return stats
}

// processImage возвращает исходную картинку (всегда) и кропы кандидатов (если включены).
// Ошибка детектора не отменяет исходную картинку.
func (o *DatasetOrganizer) processImage(ctx context.Context, n int, url string) ([]domain.DatasetImage, []domain.DatasetImage, error) {
	data, err := o.downloader.Download(ctx, url)
	if err != nil {
		return nil, nil, err
	}

	img, err := imaging.Decode(data)
	if err != nil {
		return nil, nil, err
	}

	original, err := imaging.EncodeJPEG(img, imaging.DefaultJPEGQuality)
	if err != nil {
		return nil, nil, err
	}
	originals := []domain.DatasetImage{domain.NewDatasetImage(fmt.Sprintf("original_%d.jpg", n), original)}

	if !o.cfg.CropEnabled || o.detector == nil {
		return originals, nil, nil
	}

	crops, err := o.crops(ctx, n, img)
	if err != nil {
		o.logger.Warnf("crop detection failed for %s, keeping original only: %v", url, err)
		return originals, nil, nil
	}
	return originals, crops, nil
}

func (o *DatasetOrganizer) crops(ctx context.Context, n int, img image.Image) ([]domain.DatasetImage, error) {
	detections, err := o.detector.Detect(ctx, img, NewDetectOptions(o.recCfg.ConfThreshold, o.recCfg.IoUThreshold))
	if err != nil {
		return nil, err
	}

	var out []domain.DatasetImage
	for k, det := range detections {
		if !o.cropCandidate(det) {
			continue
		}

		crop, err := imaging.Crop(img, imaging.Pad(det.BBox, img.Bounds()))
		if err != nil {
			continue
		}
		data, err := imaging.EncodeJPEG(crop, imaging.DefaultJPEGQuality)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.NewDatasetImage(fmt.Sprintf("crop_%d_%d.jpg", n, k), data))
	}
	return out, nil
}

// cropCandidate: класс в разрешённом списке, не человек, короткая сторона не меньше MinObjectSize.
func (o *DatasetOrganizer) cropCandidate(det domain.Detection) bool {
	if det.ClassID == o.recCfg.NonProductClassID {
		return false
	}
	class := strings.ToLower(det.ClassName)
	for _, name := range o.recCfg.NonProductClasses {
		if strings.EqualFold(class, name) {
			return false
		}
	}
	if _, ok := o.allowed[class]; !ok {
		return false
	}
	return det.BBox.ShortSide() >= o.recCfg.MinObjectSize
}
