package usecase

import (
	"context"

	"github.com/DRSN-tech/vision-service/internal/domain"
)

type RecognitionUC interface {
	Recognize(ctx context.Context, tenant string, imageBytes []byte) (*RecognizeRes, error)
	SearchByText(ctx context.Context, tenant string, text string, k int) (*TextSearchRes, error)
	ModelInfo() *ModelInfoRes
}

type TrainingUC interface {
	Submit(ctx context.Context, tenant string, fineTune bool) (*domain.TrainingJob, error)
	Status(ctx context.Context, tenant string) (*domain.TrainingJob, error)
	Reload(ctx context.Context, tenant string) (*ReloadRes, error)
}

type IndexBuilderUC interface {
	Build(ctx context.Context, tenant string) (*BuildRes, error)
}

type DatasetOrganizerUC interface {
	Organize(ctx context.Context) (*OrganizeRes, error)
}
