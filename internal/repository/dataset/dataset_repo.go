package dataset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/DRSN-tech/vision-service/internal/domain"
	"github.com/DRSN-tech/vision-service/internal/usecase"
	"github.com/DRSN-tech/vision-service/pkg/e"
	"github.com/DRSN-tech/vision-service/pkg/logger"
	"github.com/google/uuid"
	"github.com/jimlawless/whereami"
)

const (
	metadataFile = "metadata.json"
	imagesDir    = "images"
)

var imageExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
}

// DatasetRepo хранит датасеты продавцов на файловой системе:
// <root>/seller_<id>/product_<id>/{metadata.json, images/*.jpg}.
// Запись товара исключает чтение датасета того же продавца под ReadLock.
type DatasetRepo struct {
	root   string
	logger logger.Logger

	locksMu sync.Mutex
	locks   map[string]*sync.RWMutex
}

func NewDatasetRepo(root string, logger logger.Logger) (*DatasetRepo, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return &DatasetRepo{
		root:   root,
		logger: logger,
		locks:  make(map[string]*sync.RWMutex),
	}, nil
}

// ReadLock фиксирует датасет продавца до вызова возвращённой функции:
// ReplaceProduct этого продавца ждёт, списки файлов из ListProducts остаются действительными.
func (r *DatasetRepo) ReadLock(tenant string) func() {
	l := r.tenantLock(tenant)
	l.RLock()
	return l.RUnlock
}

func (r *DatasetRepo) tenantLock(tenant string) *sync.RWMutex {
	r.locksMu.Lock()
	defer r.locksMu.Unlock()

	l, ok := r.locks[tenant]
	if !ok {
		l = &sync.RWMutex{}
		r.locks[tenant] = l
	}
	return l
}

// TenantDir возвращает каталог датасета продавца.
func (r *DatasetRepo) TenantDir(tenant string) string {
	return filepath.Join(r.root, tenant)
}

// ListProducts возвращает товары продавца в лексикографическом порядке каталогов,
// картинки каждого товара тоже отсортированы по имени. Отсутствующий датасет: пустой список.
func (r *DatasetRepo) ListProducts(ctx context.Context, tenant string) ([]usecase.ProductDataset, error) {
	if err := domain.ValidateTenantKey(tenant); err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	entries, err := os.ReadDir(r.TenantDir(tenant))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	products := make([]usecase.ProductDataset, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, e.Wrap(whereami.WhereAmI(), err)
		}
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		dir := filepath.Join(r.TenantDir(tenant), entry.Name())
		images, err := listImages(filepath.Join(dir, imagesDir))
		if err != nil {
			r.logger.Warnf("skipping product %s/%s: %v", tenant, entry.Name(), err)
			continue
		}

		products = append(products, usecase.ProductDataset{
			ProductID:  entry.Name(),
			Meta:       r.readMetadata(dir),
			ImagePaths: images,
		})
	}

	sort.Slice(products, func(i, j int) bool { return products[i].ProductID < products[j].ProductID })
	return products, nil
}

// ReadImage читает файл картинки датасета.
func (r *DatasetRepo) ReadImage(_ context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	return data, nil
}

// ReplaceProduct записывает metadata.json и заменяет набор картинок товара.
// Новые картинки сначала пишутся во временный каталог и подменяют images/ одним переименованием.
// Пустой images оставляет прежние картинки на месте.
func (r *DatasetRepo) ReplaceProduct(ctx context.Context, tenant string, meta *domain.ProductMetadata, images []domain.DatasetImage) error {
	if err := domain.ValidateTenantKey(tenant); err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}
	if err := ctx.Err(); err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	l := r.tenantLock(tenant)
	l.Lock()
	defer l.Unlock()

	productDir := filepath.Join(r.TenantDir(tenant), domain.ProductDirName(meta.ProductID))
	if err := os.MkdirAll(productDir, 0o755); err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	if len(images) > 0 {
		if err := swapImages(productDir, images); err != nil {
			return e.Wrap(whereami.WhereAmI(), err)
		}
	}

	current, err := listImages(filepath.Join(productDir, imagesDir))
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}
	meta.ImageCount = len(current)

	if err := writeJSONAtomic(filepath.Join(productDir, metadataFile), meta); err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}
	return nil
}

func (r *DatasetRepo) readMetadata(dir string) *domain.ProductMetadata {
	data, err := os.ReadFile(filepath.Join(dir, metadataFile))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			r.logger.Warnf("cannot read metadata in %s: %v", dir, err)
		}
		return nil
	}

	var meta domain.ProductMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		r.logger.Warnf("invalid metadata in %s: %v", dir, err)
		return nil
	}
	return &meta
}

func swapImages(productDir string, images []domain.DatasetImage) error {
	stage, err := os.MkdirTemp(productDir, ".images-new-*")
	if err != nil {
		return err
	}

	for _, img := range images {
		name := filepath.Base(img.Name)
		if err := os.WriteFile(filepath.Join(stage, name), img.Data, 0o644); err != nil {
			_ = os.RemoveAll(stage)
			return fmt.Errorf("write %s: %w", name, err)
		}
	}

	target := filepath.Join(productDir, imagesDir)
	old := filepath.Join(productDir, ".images-old-"+uuid.NewString())

	if err := os.Rename(target, old); err != nil && !errors.Is(err, os.ErrNotExist) {
		_ = os.RemoveAll(stage)
		return err
	}
	if err := os.Rename(stage, target); err != nil {
		_ = os.Rename(old, target)
		_ = os.RemoveAll(stage)
		return err
	}

	return os.RemoveAll(old)
}

func listImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := imageExtensions[strings.ToLower(filepath.Ext(entry.Name()))]; !ok {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
