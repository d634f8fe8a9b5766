package converter

import "github.com/DRSN-tech/vision-service/internal/domain"

// IndexVersionConverter преобразует IndexVersion между domain и моделью PostgreSQL.
type IndexVersionConverter struct{}

func (IndexVersionConverter) ToModel(entity *domain.IndexVersion) *SellerIndexVersionModel {
	return &SellerIndexVersionModel{
		ID:              entity.ID,
		SellerKey:       entity.TenantKey,
		Version:         entity.Version,
		TotalEmbeddings: entity.TotalEmbeddings,
		UniqueProducts:  entity.UniqueProducts,
		CreatedAt:       entity.CreatedAt,
		UpdatedAt:       entity.UpdatedAt,
	}
}

func (IndexVersionConverter) ToEntity(model *SellerIndexVersionModel) *domain.IndexVersion {
	return &domain.IndexVersion{
		ID:              model.ID,
		TenantKey:       model.SellerKey,
		Version:         model.Version,
		TotalEmbeddings: model.TotalEmbeddings,
		UniqueProducts:  model.UniqueProducts,
		CreatedAt:       model.CreatedAt,
		UpdatedAt:       model.UpdatedAt,
	}
}
