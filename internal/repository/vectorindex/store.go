package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/DRSN-tech/vision-service/internal/domain"
	"github.com/DRSN-tech/vision-service/pkg/e"
	"github.com/DRSN-tech/vision-service/pkg/logger"
	"github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	vectorFileSuffix   = "_index.vec"
	metadataFileSuffix = "_products.json"
)

var tracer = otel.Tracer("vision-service/vectorindex")

// Store хранит индексы продавцов: в памяти (chromem-коллекция на продавца) и на диске
// парой файлов <seller>_index.vec + <seller>_products.json.
// Опубликованный индекс неизменяем; сохранение подменяет указатель целиком,
// поэтому поиск никогда не видит наполовину собранный индекс.
type Store struct {
	root   string
	dim    int
	logger logger.Logger

	mu      sync.RWMutex
	indexes map[string]*snapshot

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

type snapshot struct {
	index      *domain.SellerIndex
	collection *chromem.Collection
}

// NewStore создаёт хранилище в каталоге root. dim: размерность векторов модели.
func NewStore(root string, dim int, log logger.Logger) (*Store, error) {
	const op = "vectorindex.NewStore"

	if dim <= 0 {
		return nil, e.Wrap(op, fmt.Errorf("vector dimension must be positive, got %d", dim))
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, e.Wrap(op, err)
	}

	return &Store{
		root:    root,
		dim:     dim,
		logger:  log,
		indexes: make(map[string]*snapshot),
		locks:   make(map[string]*sync.Mutex),
	}, nil
}

// Dim возвращает размерность векторов.
func (s *Store) Dim() int {
	return s.dim
}

// Save строит индекс из записей, атомарно сохраняет его на диск и публикует для поиска.
func (s *Store) Save(ctx context.Context, tenant string, records []domain.ProductEmbeddingRecord) (*domain.SellerIndex, error) {
	const op = "vectorindex.Store.Save"

	ctx, span := tracer.Start(ctx, "Store.Save")
	defer span.End()
	span.SetAttributes(attribute.String("tenant", tenant), attribute.Int("records", len(records)))

	if err := domain.ValidateTenantKey(tenant); err != nil {
		return nil, e.Wrap(op, err)
	}
	if len(records) == 0 {
		return nil, e.Wrap(op, e.ErrEmptyVectors)
	}
	for i, r := range records {
		if len(r.Vector) != s.dim {
			return nil, e.Wrap(op, fmt.Errorf("%w: record %d has %d, want %d", e.ErrDimensionMismatch, i, len(r.Vector), s.dim))
		}
		if domain.IsZeroVector(r.Vector) {
			return nil, e.Wrap(op, fmt.Errorf("%w: record %d has zero norm", e.ErrVectorEmbeddingEmpty, i))
		}
	}

	idx := &domain.SellerIndex{
		TenantKey: tenant,
		Records:   cloneRecords(records),
		CreatedAt: time.Now().UTC(),
	}

	snap, err := newSnapshot(ctx, idx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, e.Wrap(op, err)
	}

	lock := s.tenantLock(tenant)
	lock.Lock()
	defer lock.Unlock()

	if err := s.persist(idx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, e.Wrap(op, err)
	}
	s.install(tenant, snap)

	s.logger.Infof("saved index for %s: %d vectors, %d products", tenant, idx.Len(), idx.UniqueProducts())
	return idx, nil
}

// Load читает пару файлов продавца и публикует индекс.
// При ошибке ранее опубликованный индекс продолжает обслуживать поиск.
func (s *Store) Load(ctx context.Context, tenant string) (*domain.SellerIndex, error) {
	const op = "vectorindex.Store.Load"

	ctx, span := tracer.Start(ctx, "Store.Load")
	defer span.End()
	span.SetAttributes(attribute.String("tenant", tenant))

	if err := domain.ValidateTenantKey(tenant); err != nil {
		return nil, e.Wrap(op, err)
	}

	lock := s.tenantLock(tenant)
	lock.Lock()
	defer lock.Unlock()

	idx, err := s.read(tenant)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, e.Wrap(op, err)
	}

	snap, err := newSnapshot(ctx, idx)
	if err != nil {
		return nil, e.Wrap(op, err)
	}
	s.install(tenant, snap)

	s.logger.Debugf("loaded index for %s: %d vectors", tenant, idx.Len())
	return idx, nil
}

// LoadAll загружает индексы всех продавцов, найденные в каталоге.
// Повреждённые индексы пропускаются с предупреждением, остальные загружаются.
func (s *Store) LoadAll(ctx context.Context) ([]string, error) {
	const op = "vectorindex.Store.LoadAll"

	tenants, err := s.persistedTenants()
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	loaded := make([]string, 0, len(tenants))
	for _, tenant := range tenants {
		if err := ctx.Err(); err != nil {
			return loaded, e.Wrap(op, err)
		}

		if _, err := s.Load(ctx, tenant); err != nil {
			s.logger.Warnf("skipping index for %s: %v", tenant, err)
			continue
		}
		loaded = append(loaded, tenant)
	}

	s.logger.Infof("loaded %d of %d seller indexes", len(loaded), len(tenants))
	return loaded, nil
}

// Search возвращает до k ближайших записей по косинусной близости, по убыванию score.
// Если в индексе меньше k строк, возвращаются все строки.
func (s *Store) Search(ctx context.Context, tenant string, vector []float32, k int) ([]domain.SearchHit, error) {
	const op = "vectorindex.Store.Search"

	ctx, span := tracer.Start(ctx, "Store.Search")
	defer span.End()
	span.SetAttributes(attribute.String("tenant", tenant), attribute.Int("k", k))

	snap := s.snapshot(tenant)
	if snap == nil {
		return nil, e.Wrap(op, fmt.Errorf("%w: %s", e.ErrIndexNotFound, tenant))
	}
	if len(vector) != s.dim {
		return nil, e.Wrap(op, fmt.Errorf("%w: query has %d, want %d", e.ErrDimensionMismatch, len(vector), s.dim))
	}
	if domain.IsZeroVector(vector) {
		return nil, e.Wrap(op, e.ErrVectorEmbeddingEmpty)
	}

	count := snap.collection.Count()
	if k <= 0 {
		k = 1
	}
	if k > count {
		k = count
	}

	results, err := snap.collection.QueryEmbedding(ctx, vector, k, nil, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, e.Wrap(op, err)
	}

	hits := make([]domain.SearchHit, 0, len(results))
	for _, r := range results {
		row, err := strconv.Atoi(r.ID)
		if err != nil || row < 0 || row >= snap.index.Len() {
			return nil, e.Wrap(op, fmt.Errorf("%w: unknown row id %q", e.ErrIndexCorrupt, r.ID))
		}
		hits = append(hits, domain.SearchHit{
			Row:    row,
			Record: snap.index.Records[row],
			Score:  r.Similarity,
		})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })

	span.SetAttributes(attribute.Int("results", len(hits)))
	return hits, nil
}

// Get возвращает опубликованный индекс продавца.
func (s *Store) Get(tenant string) (*domain.SellerIndex, bool) {
	snap := s.snapshot(tenant)
	if snap == nil {
		return nil, false
	}
	return snap.index, true
}

// Tenants возвращает отсортированный список продавцов с опубликованным индексом.
func (s *Store) Tenants() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.indexes))
	for tenant := range s.indexes {
		out = append(out, tenant)
	}
	sort.Strings(out)
	return out
}

// Files возвращает пути пары файлов индекса продавца.
func (s *Store) Files(tenant string) (vectors, metadata string) {
	return s.vectorPath(tenant), s.metadataPath(tenant)
}

func (s *Store) snapshot(tenant string) *snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexes[tenant]
}

func (s *Store) install(tenant string, snap *snapshot) {
	s.mu.Lock()
	s.indexes[tenant] = snap
	s.mu.Unlock()
}

func (s *Store) tenantLock(tenant string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	l, ok := s.locks[tenant]
	if !ok {
		l = &sync.Mutex{}
		s.locks[tenant] = l
	}
	return l
}

func (s *Store) vectorPath(tenant string) string {
	return filepath.Join(s.root, tenant+vectorFileSuffix)
}

func (s *Store) metadataPath(tenant string) string {
	return filepath.Join(s.root, tenant+metadataFileSuffix)
}

// persist пишет оба файла во временные и переименовывает их на место.
// Метаданные переименовываются последними: до этого момента читатель видит прежнюю пару.
func (s *Store) persist(idx *domain.SellerIndex) error {
	vecTmp, err := writeTemp(s.root, idx.TenantKey+vectorFileSuffix, func(w io.Writer) error {
		return encodeVectors(w, idx, s.dim)
	})
	if err != nil {
		return fmt.Errorf("write vectors: %w", err)
	}

	metaTmp, err := writeTemp(s.root, idx.TenantKey+metadataFileSuffix, func(w io.Writer) error {
		return encodeMetadata(w, idx)
	})
	if err != nil {
		_ = os.Remove(vecTmp)
		return fmt.Errorf("write metadata: %w", err)
	}

	if err := os.Rename(vecTmp, s.vectorPath(idx.TenantKey)); err != nil {
		_ = os.Remove(vecTmp)
		_ = os.Remove(metaTmp)
		return fmt.Errorf("publish vectors: %w", err)
	}
	if err := os.Rename(metaTmp, s.metadataPath(idx.TenantKey)); err != nil {
		_ = os.Remove(metaTmp)
		return fmt.Errorf("publish metadata: %w", err)
	}

	return nil
}

func (s *Store) read(tenant string) (*domain.SellerIndex, error) {
	vf, err := os.Open(s.vectorPath(tenant))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", e.ErrIndexNotFound, tenant)
		}
		return nil, err
	}
	defer vf.Close()

	vectors, createdAt, err := decodeVectors(vf, s.dim)
	if err != nil {
		return nil, err
	}

	mf, err := os.Open(s.metadataPath(tenant))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: metadata file missing for %s", e.ErrIndexCorrupt, tenant)
		}
		return nil, err
	}
	defer mf.Close()

	rows, err := decodeMetadata(mf)
	if err != nil {
		return nil, err
	}

	if len(rows) != len(vectors) {
		return nil, fmt.Errorf("%w: %d vectors, %d metadata rows", e.ErrIndexCorrupt, len(vectors), len(rows))
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: index is empty", e.ErrIndexCorrupt)
	}
	// файлы переименовываются по очереди: после сбоя между ними пара может быть от разных сборок
	for i, row := range rows {
		if row.IndexCreatedAt != createdAt.UnixNano() {
			return nil, fmt.Errorf("%w: metadata row %d belongs to another build", e.ErrIndexCorrupt, i)
		}
	}

	records := make([]domain.ProductEmbeddingRecord, len(rows))
	for i, row := range rows {
		records[i] = domain.ProductEmbeddingRecord{
			ProductID:   row.ProductID,
			ProductName: row.ProductName,
			Price:       row.Price,
			Vector:      vectors[i],
		}
	}

	return &domain.SellerIndex{
		TenantKey: tenant,
		Records:   records,
		CreatedAt: createdAt,
	}, nil
}

func (s *Store) persistedTenants() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var tenants []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, vectorFileSuffix) {
			continue
		}
		tenant := strings.TrimSuffix(name, vectorFileSuffix)
		if domain.ValidateTenantKey(tenant) != nil {
			s.logger.Warnf("ignoring index file with invalid tenant key: %s", name)
			continue
		}
		tenants = append(tenants, tenant)
	}
	sort.Strings(tenants)
	return tenants, nil
}

func newSnapshot(ctx context.Context, idx *domain.SellerIndex) (*snapshot, error) {
	db := chromem.NewDB()
	col, err := db.CreateCollection(idx.TenantKey, nil, rejectTextQuery)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	docs := make([]chromem.Document, len(idx.Records))
	for i, r := range idx.Records {
		docs[i] = chromem.Document{
			ID:        strconv.Itoa(i),
			Embedding: r.Vector,
			Metadata:  map[string]string{"product_id": r.ProductID},
		}
	}

	if err := col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return nil, fmt.Errorf("add documents: %w", err)
	}

	return &snapshot{index: idx, collection: col}, nil
}

// rejectTextQuery: коллекции хранят только готовые эмбеддинги, текст должен векторизовать ML-сервис.
func rejectTextQuery(context.Context, string) ([]float32, error) {
	return nil, errors.New("text embedding is not available in vector index")
}

func writeTemp(dir, name string, write func(w io.Writer) error) (string, error) {
	f, err := os.CreateTemp(dir, name+".tmp-*")
	if err != nil {
		return "", err
	}
	tmp := f.Name()

	if err := write(f); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return "", err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}
	return tmp, nil
}

func cloneRecords(records []domain.ProductEmbeddingRecord) []domain.ProductEmbeddingRecord {
	out := make([]domain.ProductEmbeddingRecord, len(records))
	for i, r := range records {
		out[i] = r
		out[i].Vector = append([]float32(nil), r.Vector...)
	}
	return out
}
