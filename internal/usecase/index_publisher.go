package usecase

import (
	"context"
	"time"

	"github.com/DRSN-tech/vision-service/pkg/logger"
	"github.com/google/uuid"
)

// IndexPublisher распространяет свежесобранный индекс во внешние системы:
// версия в Postgres, зеркало в Qdrant, резервная копия в MinIO, событие в Kafka.
// Каждая интеграция необязательна (nil), её ошибка только логируется.
type IndexPublisher struct {
	versions IndexVersionRepository
	mirror   IndexMirrorRepository
	backup   IndexBackupInfra
	events   IndexEventsInfra
	store    IndexStore
	logger   logger.Logger
}

func NewIndexPublisher(
	versions IndexVersionRepository,
	mirror IndexMirrorRepository,
	backup IndexBackupInfra,
	events IndexEventsInfra,
	store IndexStore,
	logger logger.Logger,
) *IndexPublisher {
	return &IndexPublisher{
		versions: versions,
		mirror:   mirror,
		backup:   backup,
		events:   events,
		store:    store,
		logger:   logger,
	}
}

// Publish возвращает количество интеграций, завершившихся ошибкой.
func (p *IndexPublisher) Publish(ctx context.Context, runID string, fineTuned bool, res *BuildRes) int {
	const op = "IndexPublisher.Publish"

	failed := 0
	event := &IndexRebuiltEvent{
		EventID:         uuid.NewString(),
		TenantKey:       res.TenantKey,
		RunID:           runID,
		TotalEmbeddings: res.TotalEmbeddings,
		UniqueProducts:  res.UniqueProducts,
		FineTuned:       fineTuned,
		CreatedAt:       time.Now().UTC(),
	}

	if p.versions != nil {
		version, err := p.versions.Bump(ctx, res.TenantKey, res.TotalEmbeddings, res.UniqueProducts)
		if err != nil {
			failed++
			p.logger.Errorf(err, "%s: index version bump failed for %s", op, res.TenantKey)
		} else {
			event.Version = version.Version
		}
	}

	if p.mirror != nil && res.Index != nil {
		if err := p.mirror.Replace(ctx, res.Index); err != nil {
			failed++
			p.logger.Errorf(err, "%s: qdrant mirror failed for %s", op, res.TenantKey)
		}
	}

	if p.backup != nil {
		vectors, metadata := p.store.Files(res.TenantKey)
		if _, err := p.backup.BackupIndex(ctx, NewBackupIndexReq(res.TenantKey, []string{vectors, metadata})); err != nil {
			failed++
			p.logger.Errorf(err, "%s: index backup failed for %s", op, res.TenantKey)
		}
	}

	if p.events != nil {
		if err := p.events.PublishIndexRebuilt(ctx, event); err != nil {
			failed++
			p.logger.Errorf(err, "%s: index.rebuilt event failed for %s", op, res.TenantKey)
		}
	}

	return failed
}
