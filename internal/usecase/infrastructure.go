package usecase

import (
	"context"
	"image"
	"time"

	"github.com/DRSN-tech/vision-service/internal/domain"
)

// Detector: детектор объектов общего назначения.
type Detector interface {
	Detect(ctx context.Context, img image.Image, opts DetectOptions) ([]domain.Detection, error)
}

// Embedder переводит изображение или текст в вектор единичной нормы размерности D.
type Embedder interface {
	EmbedImage(ctx context.Context, img image.Image) ([]float32, error)
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

type FineTuner interface {
	FineTune(ctx context.Context, req *FineTuneReq) (*FineTuneRes, error)
}

type CatalogInfra interface {
	FetchProducts(ctx context.Context) ([]domain.CatalogProduct, error)
}

type ImageDownloader interface {
	Download(ctx context.Context, url string) ([]byte, error)
}

type IndexEventsInfra interface {
	PublishIndexRebuilt(ctx context.Context, event *IndexRebuiltEvent) error
}

type IndexBackupInfra interface {
	BackupIndex(ctx context.Context, req *BackupIndexReq) (*BackupIndexRes, error)
}

// Metrics: приёмник метрик пайплайна. Ошибки метрик не влияют на результат.
type Metrics interface {
	ObserveDetect(tenant string, d time.Duration, detections int)
	ObserveEmbed(d time.Duration)
	ObserveMatch(tenant string, score float32, matched bool)
	ObserveRecognize(tenant string, d time.Duration, predictions int, err error)
	ObserveBuild(tenant string, d time.Duration, embeddings, skipped int, err error)
	ObserveOrganize(d time.Duration, products, images, failures int, err error)
}
