package usecase

import (
	"context"

	"github.com/DRSN-tech/vision-service/internal/domain"
)

type IndexStore interface {
	Save(ctx context.Context, tenant string, records []domain.ProductEmbeddingRecord) (*domain.SellerIndex, error)
	Load(ctx context.Context, tenant string) (*domain.SellerIndex, error)
	LoadAll(ctx context.Context) ([]string, error)
	Search(ctx context.Context, tenant string, vector []float32, k int) ([]domain.SearchHit, error)
	Get(tenant string) (*domain.SellerIndex, bool)
	Tenants() []string
	Files(tenant string) (vectors, metadata string)
}

type DatasetRepository interface {
	ListProducts(ctx context.Context, tenant string) ([]ProductDataset, error)
	ReadImage(ctx context.Context, path string) ([]byte, error)
	ReplaceProduct(ctx context.Context, tenant string, meta *domain.ProductMetadata, images []domain.DatasetImage) error
	TenantDir(tenant string) string
	// ReadLock не даёт ReplaceProduct менять датасет продавца, пока он читается.
	ReadLock(tenant string) func()
}

// JobStatusRepository хранит последнее состояние задачи обучения по ключу продавца.
type JobStatusRepository interface {
	Get(ctx context.Context, tenant string) (*domain.TrainingJob, bool, error)
	// Set безусловно перезаписывает состояние (новая задача вытесняет предыдущую).
	Set(ctx context.Context, job *domain.TrainingJob) error
	// SetIfProgress записывает job, только если текущее состояние принадлежит тому же запуску,
	// ещё не завершено и его прогресс не больше нового.
	SetIfProgress(ctx context.Context, job *domain.TrainingJob) (bool, error)
}

type IndexVersionRepository interface {
	Bump(ctx context.Context, tenant string, totalEmbeddings, uniqueProducts int) (*domain.IndexVersion, error)
}

type IndexMirrorRepository interface {
	Replace(ctx context.Context, index *domain.SellerIndex) error
}

type ObjectRepository interface {
	Upload(ctx context.Context, object *domain.Object) (string, error)
	Delete(ctx context.Context, key string) error
}
