package usecase

import (
	"time"

	"github.com/DRSN-tech/vision-service/internal/domain"
)

// RECOGNITION

// UntrainedMessage возвращается вместо предсказаний, если у продавца нет индекса.
const UntrainedMessage = "seller has no trained index yet, submit a training job first"

// RecognizeRes: результат распознавания одного изображения.
type RecognizeRes struct {
	TenantKey   string
	Trained     bool
	Predictions []domain.Prediction
	Detections  []domain.Detection
	Message     string
}

// TextSearchRes: товары продавца, ближайшие к текстовому запросу.
type TextSearchRes struct {
	TenantKey string
	Query     string
	Hits      []domain.SearchHit
}

// ModelInfoRes описывает загруженные индексы и действующие пороги.
type ModelInfoRes struct {
	VectorSize     int
	ConfThreshold  float64
	IoUThreshold   float64
	MinObjectSize  int
	MatchThreshold float64
	Tenants        []TenantIndexInfo
}

type TenantIndexInfo struct {
	TenantKey       string
	TotalEmbeddings int
	UniqueProducts  int
	CreatedAt       time.Time
}

// BUILD

// BuildRes: итог сборки индекса продавца.
type BuildRes struct {
	TenantKey       string
	TotalEmbeddings int
	UniqueProducts  int
	SkippedImages   int
	Index           *domain.SellerIndex
}

// ProductDataset: каталог товара в датасете продавца.
type ProductDataset struct {
	ProductID  string                  // имя каталога: product_<id>
	Meta       *domain.ProductMetadata // nil, если metadata.json отсутствует или не читается
	ImagePaths []string                // отсортированы по имени
}

// ORGANIZE

// OrganizeRes: итог раскладки каталога по датасетам.
// Organized == false означает, что каталог пуст и датасеты на диске не трогались.
type OrganizeRes struct {
	Organized bool
	Tenants   []string
	Products  int
	Images    int
	Crops     int
	Failures  int
}

// TRAINING

type ReloadRes struct {
	Tenants []string
}

// INFRASTRUCTURE

// DetectOptions: пороги, с которыми вызывается детектор.
type DetectOptions struct {
	ConfThreshold float64
	IoUThreshold  float64
}

type FineTuneReq struct {
	TenantKey  string
	DatasetDir string
}

type FineTuneRes struct {
	ModelVersion string
	Epochs       int
	Loss         float64
}

// IndexRebuiltEvent публикуется после успешной публикации нового индекса.
type IndexRebuiltEvent struct {
	EventID         string    `json:"event_id"`
	TenantKey       string    `json:"seller_id"`
	RunID           string    `json:"run_id"`
	Version         int32     `json:"version,omitempty"`
	TotalEmbeddings int       `json:"total_embeddings"`
	UniqueProducts  int       `json:"unique_products"`
	FineTuned       bool      `json:"fine_tuned"`
	CreatedAt       time.Time `json:"created_at"`
}

type BackupIndexReq struct {
	TenantKey string
	Files     []string
}

type BackupIndexRes struct {
	Keys []string
}

// MAPPERS

func NewRecognizeRes(tenant string, trained bool, predictions []domain.Prediction, detections []domain.Detection, message string) *RecognizeRes {
	return &RecognizeRes{
		TenantKey:   tenant,
		Trained:     trained,
		Predictions: predictions,
		Detections:  detections,
		Message:     message,
	}
}

func NewTextSearchRes(tenant, query string, hits []domain.SearchHit) *TextSearchRes {
	return &TextSearchRes{
		TenantKey: tenant,
		Query:     query,
		Hits:      hits,
	}
}

func NewTenantIndexInfo(idx *domain.SellerIndex) TenantIndexInfo {
	return TenantIndexInfo{
		TenantKey:       idx.TenantKey,
		TotalEmbeddings: idx.Len(),
		UniqueProducts:  idx.UniqueProducts(),
		CreatedAt:       idx.CreatedAt,
	}
}

func NewBuildRes(idx *domain.SellerIndex, skipped int) *BuildRes {
	return &BuildRes{
		TenantKey:       idx.TenantKey,
		TotalEmbeddings: idx.Len(),
		UniqueProducts:  idx.UniqueProducts(),
		SkippedImages:   skipped,
		Index:           idx,
	}
}

func NewDetectOptions(conf, iou float64) DetectOptions {
	return DetectOptions{
		ConfThreshold: conf,
		IoUThreshold:  iou,
	}
}

func NewFineTuneReq(tenant, datasetDir string) *FineTuneReq {
	return &FineTuneReq{
		TenantKey:  tenant,
		DatasetDir: datasetDir,
	}
}

func NewFineTuneRes(modelVersion string, epochs int, loss float64) *FineTuneRes {
	return &FineTuneRes{
		ModelVersion: modelVersion,
		Epochs:       epochs,
		Loss:         loss,
	}
}

func NewBackupIndexReq(tenant string, files []string) *BackupIndexReq {
	return &BackupIndexReq{
		TenantKey: tenant,
		Files:     files,
	}
}

func NewBackupIndexRes(keys []string) *BackupIndexRes {
	return &BackupIndexRes{
		Keys: keys,
	}
}
