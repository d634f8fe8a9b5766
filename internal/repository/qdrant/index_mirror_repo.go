package qdrant

import (
	"context"

	"github.com/DRSN-tech/vision-service/internal/cfg"
	"github.com/DRSN-tech/vision-service/internal/domain"
	"github.com/DRSN-tech/vision-service/pkg/clients"
	"github.com/DRSN-tech/vision-service/pkg/e"
	"github.com/jimlawless/whereami"
	"github.com/qdrant/go-client/qdrant"
)

// IndexMirrorRepo зеркалирует индекс продавца в Qdrant: одна коллекция на продавца,
// ID точки: номер строки индекса.
type IndexMirrorRepo struct {
	client *clients.QdrantClient
	cfg    *cfg.QdrantCfg
}

func NewIndexMirrorRepo(client *clients.QdrantClient, cfg *cfg.QdrantCfg) *IndexMirrorRepo {
	return &IndexMirrorRepo{
		client: client,
		cfg:    cfg,
	}
}

// Replace пересоздаёт коллекцию продавца и загружает в неё все строки индекса пачками.
// Пока загрузка не завершена, коллекция в Qdrant неполная.
func (q *IndexMirrorRepo) Replace(ctx context.Context, index *domain.SellerIndex) error {
	if index.Len() == 0 {
		return e.Wrap(whereami.WhereAmI(), e.ErrEmptyVectors)
	}

	name := q.CollectionName(index.TenantKey)
	dim := uint64(len(index.Records[0].Vector))

	if err := clients.RecreateCollection(ctx, q.client, name, dim); err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	points := domain.QdrantPointsFromIndex(index)
	for start := 0; start < len(points); start += q.cfg.UpsertBatchSize {
		end := min(start+q.cfg.UpsertBatchSize, len(points))

		_, err := q.client.Client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: name,
			Wait:           qdrant.PtrOf(true),
			Points:         toPointStructs(points[start:end]),
		})
		if err != nil {
			return e.Wrap(whereami.WhereAmI(), err)
		}
	}

	return nil
}

// CollectionName возвращает имя коллекции продавца.
func (q *IndexMirrorRepo) CollectionName(tenant string) string {
	return q.cfg.CollectionPrefix + tenant
}

func toPointStructs(points []*domain.QdrantPoint) []*qdrant.PointStruct {
	out := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		out = append(out, &qdrant.PointStruct{
			Id:      qdrant.NewIDNum(p.ID),
			Vectors: qdrant.NewVectors(p.Vectors...),
			Payload: qdrant.NewValueMap(p.Payloads),
		})
	}
	return out
}
