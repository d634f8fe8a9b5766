package minio

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/DRSN-tech/vision-service/internal/cfg"
	"github.com/DRSN-tech/vision-service/internal/domain"
	"github.com/DRSN-tech/vision-service/internal/infrastructure"
	"github.com/DRSN-tech/vision-service/internal/usecase"
	"github.com/DRSN-tech/vision-service/pkg/e"
	"github.com/DRSN-tech/vision-service/pkg/jitter"
	"github.com/DRSN-tech/vision-service/pkg/logger"
	"github.com/google/uuid"
)

const uploadLimit = 2

// MinioInfrastructure сохраняет резервные копии индексов продавцов в MinIO.
type MinioInfrastructure struct {
	objectRepo  usecase.ObjectRepository
	cfg         *cfg.MinIOCfg
	logger      logger.Logger
	shutdownCtx context.Context
	wg          sync.WaitGroup
}

func NewMinioInfrastructure(objectRepo usecase.ObjectRepository, cfg *cfg.MinIOCfg, logger logger.Logger, shutdownCtx context.Context) *MinioInfrastructure {
	return &MinioInfrastructure{
		objectRepo:  objectRepo,
		cfg:         cfg,
		logger:      logger,
		shutdownCtx: shutdownCtx,
	}
}

// BackupIndex загружает файлы индекса под общим префиксом <prefix>/<seller>/<снимок>/.
// Если хотя бы один файл не загрузился, уже загруженные удаляются в фоне: неполная копия бесполезна.
func (m *MinioInfrastructure) BackupIndex(ctx context.Context, req *usecase.BackupIndexReq) (*usecase.BackupIndexRes, error) {
	const op = "MinioInfrastructure.BackupIndex"
	// Отмена остальных загрузок при первой ошибке
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	snapshot := fmt.Sprintf("%s-%s", time.Now().UTC().Format("20060102T150405Z"), uuid.NewString()[:8])

	keyCh := make(chan string, len(req.Files))
	errCh := make(chan error, len(req.Files))
	sem := make(chan struct{}, uploadLimit)

	var uploadWg sync.WaitGroup
	for _, file := range req.Files {
		uploadWg.Add(1)
		go func() {
			defer uploadWg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			data, err := os.ReadFile(file)
			if err != nil {
				errCh <- fmt.Errorf("read %s: %w", file, err)
				return
			}

			name := filepath.Base(file)
			objKey := path.Join(m.cfg.ObjectPrefix, req.TenantKey, snapshot, name)
			object := domain.NewObject(m.cfg.BucketName, objKey, data, infrastructure.ContentTypeByFileName(name))

			key, err := m.objectRepo.Upload(ctx, object)
			if err != nil {
				errCh <- fmt.Errorf("upload %s failed: %w", name, err)
				return
			}

			keyCh <- key
		}()
	}

	go func() {
		uploadWg.Wait()
		close(errCh)
		close(keyCh)
	}()

	keys := make([]string, 0, len(req.Files))
	ok := false
	defer func() {
		if !ok {
			// дочитываем ключи, которые успели загрузиться до отмены
			for key := range keyCh {
				keys = append(keys, key)
			}
			m.CleanupObjects(keys)
		}
	}()

	for completed := 0; completed < len(req.Files); {
		select {
		case key, chOk := <-keyCh:
			if chOk {
				keys = append(keys, key)
				completed++
			}
		case err, chOk := <-errCh:
			if chOk {
				cancel()
				return nil, e.Wrap(op, err)
			}
		case <-ctx.Done():
			return nil, e.Wrap(op, ctx.Err())
		}
	}

	ok = true
	m.logger.Infof("backed up index of %s to %s", req.TenantKey, path.Join(m.cfg.ObjectPrefix, req.TenantKey, snapshot))
	return usecase.NewBackupIndexRes(keys), nil
}

// CleanupObjects запускает фоновую очистку указанных ключей MinIO
func (m *MinioInfrastructure) CleanupObjects(keys []string) {
	if len(keys) == 0 {
		return
	}
	m.wg.Add(1)
	go m.cleanupUploadedKeys(keys)
}

// cleanupUploadedKeys удаляет указанные объекты из MinIO с экспоненциальной задержкой и jitter.
func (m *MinioInfrastructure) cleanupUploadedKeys(keys []string) {
	defer m.wg.Done()
	const op = "MinioInfrastructure.cleanupUploadedKeys"
	m.logger.Infof("%s: Cleaning up uploaded keys", op)

	ctx, cancel := context.WithTimeout(m.shutdownCtx, 30*time.Second)
	defer cancel()

	policy := jitter.Policy{Attempts: 3, Base: time.Second, Max: 4 * time.Second}
	for _, key := range keys {
		err := jitter.Retry(ctx, policy, func(ctx context.Context) error {
			return m.objectRepo.Delete(ctx, key)
		})
		if err != nil {
			m.logger.Warnf("cleanup of key=%v failed: %v", key, err)
			if ctx.Err() != nil {
				return
			}
		}
	}
}

// WaitForCleanup ожидает завершения всех фоновых задач очистки с учётом таймаута завершения приложения.
func (m *MinioInfrastructure) WaitForCleanup(shutdownTimeoutCtx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-shutdownTimeoutCtx.Done():
		return fmt.Errorf("minio cleanup timeout during shutdown: %w", shutdownTimeoutCtx.Err())
	}
}
