package ml_service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/DRSN-tech/vision-service/internal/domain"
	"github.com/DRSN-tech/vision-service/internal/usecase"
	"github.com/DRSN-tech/vision-service/pkg/e"
	"github.com/DRSN-tech/vision-service/pkg/imaging"
	"github.com/DRSN-tech/vision-service/pkg/jitter"
	"github.com/DRSN-tech/vision-service/pkg/logger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	serviceName = "/vision.v1.MachineLearningService/"

	MethodDetect     = serviceName + "Detect"
	MethodEmbedImage = serviceName + "EmbedImage"
	MethodEmbedText  = serviceName + "EmbedText"
	MethodFineTune   = serviceName + "FineTune"

	baseJitter = 200 * time.Millisecond
	maxJitter  = 5 * time.Second
)

// MLService клиент для взаимодействия с внешним ML-сервисом (детектор, эмбеддер, дообучение).
// Запросы и ответы передаются как well-known типы protobuf (Struct, BytesValue, StringValue).
type MLService struct {
	conn          grpc.ClientConnInterface
	sem           chan struct{}
	maxRetries    int
	timeout       time.Duration
	vectorSize    int
	fineTuneLimit time.Duration
	logger        logger.Logger
}

func NewMLService(conn grpc.ClientConnInterface, maxConcurrent, maxRetries int, timeout time.Duration, vectorSize int, logger logger.Logger) *MLService {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	return &MLService{
		conn:          conn,
		sem:           make(chan struct{}, maxConcurrent),
		maxRetries:    maxRetries,
		timeout:       timeout,
		vectorSize:    vectorSize,
		fineTuneLimit: 2 * time.Hour,
		logger:        logger,
	}
}

// Detect отправляет изображение детектору и возвращает найденные боксы.
func (m *MLService) Detect(ctx context.Context, img image.Image, opts usecase.DetectOptions) ([]domain.Detection, error) {
	const op = "MLService.Detect"

	data, err := imaging.EncodeJPEG(img, imaging.DefaultJPEGQuality)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	req, err := structpb.NewStruct(map[string]any{
		"image":          base64.StdEncoding.EncodeToString(data),
		"conf_threshold": opts.ConfThreshold,
		"iou_threshold":  opts.IoUThreshold,
	})
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	res := &structpb.Struct{}
	if err := m.invoke(ctx, MethodDetect, m.timeout, req, res); err != nil {
		return nil, e.Wrap(op, err)
	}

	detections, err := ParseDetections(res)
	if err != nil {
		return nil, e.Wrap(op, err)
	}
	return detections, nil
}

// EmbedImage возвращает вектор изображения единичной нормы.
func (m *MLService) EmbedImage(ctx context.Context, img image.Image) ([]float32, error) {
	const op = "MLService.EmbedImage"

	data, err := imaging.EncodeJPEG(img, imaging.DefaultJPEGQuality)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	res := &structpb.Struct{}
	if err := m.invoke(ctx, MethodEmbedImage, m.timeout, wrapperspb.Bytes(data), res); err != nil {
		return nil, e.Wrap(op, err)
	}

	vector, err := ParseVector(res, m.vectorSize)
	if err != nil {
		return nil, e.Wrap(op, err)
	}
	return vector, nil
}

// EmbedText возвращает вектор текста в том же пространстве, что и изображения.
func (m *MLService) EmbedText(ctx context.Context, text string) ([]float32, error) {
	const op = "MLService.EmbedText"

	res := &structpb.Struct{}
	if err := m.invoke(ctx, MethodEmbedText, m.timeout, wrapperspb.String(text), res); err != nil {
		return nil, e.Wrap(op, err)
	}

	vector, err := ParseVector(res, m.vectorSize)
	if err != nil {
		return nil, e.Wrap(op, err)
	}
	return vector, nil
}

// FineTune запускает дообучение эмбеддера на датасете продавца. Вызов длительный и не повторяется.
func (m *MLService) FineTune(ctx context.Context, req *usecase.FineTuneReq) (*usecase.FineTuneRes, error) {
	const op = "MLService.FineTune"

	protoReq, err := structpb.NewStruct(map[string]any{
		"seller_id":   req.TenantKey,
		"dataset_dir": req.DatasetDir,
	})
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	res := &structpb.Struct{}
	if err := m.call(ctx, MethodFineTune, m.fineTuneLimit, protoReq, res); err != nil {
		return nil, e.Wrap(op, err)
	}

	fields := res.GetFields()
	return usecase.NewFineTuneRes(
		fields["model_version"].GetStringValue(),
		int(fields["epochs"].GetNumberValue()),
		fields["loss"].GetNumberValue(),
	), nil
}

// invoke выполняет вызов с повторами при временных ошибках и экспоненциальной задержкой с jitter.
func (m *MLService) invoke(ctx context.Context, method string, timeout time.Duration, req, res proto.Message) error {
	policy := jitter.Policy{
		Attempts:  m.maxRetries,
		Base:      baseJitter,
		Max:       maxJitter,
		Retryable: IsRetryable,
		OnRetry: func(attempt int, wait time.Duration, err error) {
			m.logger.Warnf("%s failed, retrying in %v (attempt %d): %v", method, wait, attempt, err)
		},
	}

	return jitter.Retry(ctx, policy, func(ctx context.Context) error {
		proto.Reset(res)
		return m.call(ctx, method, timeout, req, res)
	})
}

// call ограничивает число одновременных запросов к ML-сервису.
func (m *MLService) call(ctx context.Context, method string, timeout time.Duration, req, res proto.Message) error {
	select {
	case m.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-m.sem }()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	return m.conn.Invoke(ctx, method, req, res)
}

// IsRetryable сообщает, что ошибка gRPC временная.
func IsRetryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}

	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return true
	default:
		return false
	}
}

// ParseVector извлекает поле vector и проверяет размерность (если dim > 0).
func ParseVector(res *structpb.Struct, dim int) ([]float32, error) {
	values := res.GetFields()["vector"].GetListValue().GetValues()
	if len(values) == 0 {
		return nil, e.ErrVectorEmbeddingEmpty
	}
	if dim > 0 && len(values) != dim {
		return nil, fmt.Errorf("%w: got %d, want %d", e.ErrDimensionMismatch, len(values), dim)
	}

	vector := make([]float32, len(values))
	for i, v := range values {
		vector[i] = float32(v.GetNumberValue())
	}
	return vector, nil
}

// classID: отсутствующий или нечисловой class_id не должен совпасть с классом 0.
func classID(v *structpb.Value) int {
	if _, ok := v.GetKind().(*structpb.Value_NumberValue); !ok {
		return domain.UnknownClassID
	}
	return int(v.GetNumberValue())
}

// ParseDetections извлекает список detections: [{bbox:[x1,y1,x2,y2], confidence, class_id, class}].
func ParseDetections(res *structpb.Struct) ([]domain.Detection, error) {
	items := res.GetFields()["detections"].GetListValue().GetValues()

	detections := make([]domain.Detection, 0, len(items))
	for i, item := range items {
		fields := item.GetStructValue().GetFields()

		bbox := fields["bbox"].GetListValue().GetValues()
		if len(bbox) != 4 {
			return nil, fmt.Errorf("detection %d: bbox must have 4 coordinates, got %d", i, len(bbox))
		}

		detections = append(detections, domain.Detection{
			BBox: domain.NewBBox(
				int(bbox[0].GetNumberValue()),
				int(bbox[1].GetNumberValue()),
				int(bbox[2].GetNumberValue()),
				int(bbox[3].GetNumberValue()),
			),
			Confidence: fields["confidence"].GetNumberValue(),
			ClassID:    classID(fields["class_id"]),
			ClassName:  fields["class"].GetStringValue(),
		})
	}
	return detections, nil
}
