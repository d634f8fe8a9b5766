package usecase

import (
	"context"
	"errors"
	"image"
	"sort"
	"strings"
	"time"

	"github.com/DRSN-tech/vision-service/internal/cfg"
	"github.com/DRSN-tech/vision-service/internal/domain"
	"github.com/DRSN-tech/vision-service/pkg/e"
	"github.com/DRSN-tech/vision-service/pkg/imaging"
	"github.com/DRSN-tech/vision-service/pkg/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	defaultTextSearchK = 5
	maxTextSearchK     = 50
)

var tracer = otel.Tracer("vision-service/usecase")

// RecognitionUseCase распознаёт товары продавца на изображении:
// детектор → кроп → эмбеддинг → поиск ближайшего соседа в индексе продавца.
type RecognitionUseCase struct {
	detector   Detector
	embedder   Embedder
	store      IndexStore
	cfg        *cfg.RecognitionCfg
	vectorSize int
	metrics    Metrics
	logger     logger.Logger
}

func NewRecognitionUC(
	detector Detector,
	embedder Embedder,
	store IndexStore,
	cfg *cfg.RecognitionCfg,
	vectorSize int,
	metrics Metrics,
	logger logger.Logger,
) *RecognitionUseCase {
	return &RecognitionUseCase{
		detector:   detector,
		embedder:   embedder,
		store:      store,
		cfg:        cfg,
		vectorSize: vectorSize,
		metrics:    metrics,
		logger:     logger,
	}
}

// Recognize возвращает предсказания в порядке исходных детекций и полный список оставленных детекций.
// Продавец без индекса получает пустой результат с пояснением, это не ошибка.
func (r *RecognitionUseCase) Recognize(ctx context.Context, tenant string, imageBytes []byte) (res *RecognizeRes, err error) {
	const op = "RecognitionUseCase.Recognize"

	start := time.Now()
	ctx, span := tracer.Start(ctx, op)
	defer func() {
		predictions := 0
		if res != nil {
			predictions = len(res.Predictions)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		r.metrics.ObserveRecognize(tenant, time.Since(start), predictions, err)
	}()
	span.SetAttributes(attribute.String("tenant", tenant))

	if err = domain.ValidateTenantKey(tenant); err != nil {
		return nil, e.Wrap(op, err)
	}

	img, err := imaging.Decode(imageBytes)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	if _, ok := r.store.Get(tenant); !ok {
		return NewRecognizeRes(tenant, false, []domain.Prediction{}, []domain.Detection{}, UntrainedMessage), nil
	}

	detections, err := r.detect(ctx, tenant, img)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	predictions := make([]domain.Prediction, 0, len(detections))
	for _, det := range detections {
		pred, ok, err := r.match(ctx, tenant, img, det)
		if err != nil {
			if errors.Is(err, e.ErrInvalidImage) {
				r.logger.Warnf("%s: skipping detection %v for %s: %v", op, det.BBox, tenant, err)
				continue
			}
			return nil, e.Wrap(op, err)
		}
		if ok {
			predictions = append(predictions, pred)
		}
	}

	span.SetAttributes(
		attribute.Int("detections", len(detections)),
		attribute.Int("predictions", len(predictions)),
	)

	return NewRecognizeRes(tenant, true, predictions, detections, ""), nil
}

// SearchByText ищет товары продавца по текстовому описанию.
func (r *RecognitionUseCase) SearchByText(ctx context.Context, tenant string, text string, k int) (*TextSearchRes, error) {
	const op = "RecognitionUseCase.SearchByText"

	ctx, span := tracer.Start(ctx, op)
	defer span.End()

	if err := domain.ValidateTenantKey(tenant); err != nil {
		return nil, e.Wrap(op, err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, e.Wrap(op, e.ErrEmptyQuery)
	}

	if k <= 0 {
		k = defaultTextSearchK
	}
	k = min(k, maxTextSearchK)

	if _, ok := r.store.Get(tenant); !ok {
		return nil, e.Wrap(op, e.ErrUntrainedTenant)
	}

	vector, err := r.embedder.EmbedText(ctx, text)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	hits, err := r.store.Search(ctx, tenant, vector, k)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	return NewTextSearchRes(tenant, text, hits), nil
}

// ModelInfo описывает загруженные индексы и действующие пороги.
func (r *RecognitionUseCase) ModelInfo() *ModelInfoRes {
	tenants := r.store.Tenants()
	infos := make([]TenantIndexInfo, 0, len(tenants))
	for _, tenant := range tenants {
		if idx, ok := r.store.Get(tenant); ok {
			infos = append(infos, NewTenantIndexInfo(idx))
		}
	}

	return &ModelInfoRes{
		VectorSize:     r.vectorSize,
		ConfThreshold:  r.cfg.ConfThreshold,
		IoUThreshold:   r.cfg.IoUThreshold,
		MinObjectSize:  r.cfg.MinObjectSize,
		MatchThreshold: r.cfg.MatchThreshold,
		Tenants:        infos,
	}
}

// detect запускает детектор, отбрасывает мелкие боксы и не-товарные классы
// и сортирует результат по уверенности (при равенстве сохраняется порядок детектора).
func (r *RecognitionUseCase) detect(ctx context.Context, tenant string, img image.Image) ([]domain.Detection, error) {
	start := time.Now()
	raw, err := r.detector.Detect(ctx, img, NewDetectOptions(r.cfg.ConfThreshold, r.cfg.IoUThreshold))
	if err != nil {
		return nil, err
	}

	kept := make([]domain.Detection, 0, len(raw))
	for _, det := range raw {
		if det.Confidence < r.cfg.ConfThreshold {
			continue
		}
		if det.BBox.ShortSide() < r.cfg.MinObjectSize {
			continue
		}
		if r.isNonProduct(det) {
			continue
		}
		kept = append(kept, det)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Confidence > kept[j].Confidence
	})

	r.metrics.ObserveDetect(tenant, time.Since(start), len(kept))
	return kept, nil
}

// match вырезает бокс без отступов, векторизует его и ищет ближайший товар.
// ok == false, если score не превышает порог.
func (r *RecognitionUseCase) match(ctx context.Context, tenant string, img image.Image, det domain.Detection) (domain.Prediction, bool, error) {
	crop, err := imaging.Crop(img, det.BBox)
	if err != nil {
		return domain.Prediction{}, false, err
	}

	start := time.Now()
	vector, err := r.embedder.EmbedImage(ctx, crop)
	if err != nil {
		return domain.Prediction{}, false, err
	}
	r.metrics.ObserveEmbed(time.Since(start))

	hits, err := r.store.Search(ctx, tenant, vector, 1)
	if err != nil {
		return domain.Prediction{}, false, err
	}
	if len(hits) == 0 {
		return domain.Prediction{}, false, nil
	}

	best := hits[0]
	matched := float64(best.Score) > r.cfg.MatchThreshold
	r.metrics.ObserveMatch(tenant, best.Score, matched)
	if !matched {
		return domain.Prediction{}, false, nil
	}

	return domain.Prediction{
		BBox:            det.BBox,
		ProductID:       best.Record.ProductID,
		ProductName:     best.Record.ProductName,
		Price:           best.Record.Price,
		Confidence:      det.Confidence,
		SimilarityScore: float64(best.Score),
	}, true, nil
}

func (r *RecognitionUseCase) isNonProduct(det domain.Detection) bool {
	if det.ClassID == r.cfg.NonProductClassID {
		return true
	}
	for _, name := range r.cfg.NonProductClasses {
		if strings.EqualFold(det.ClassName, name) {
			return true
		}
	}
	return false
}
