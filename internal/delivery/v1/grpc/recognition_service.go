package grpc

import (
	"context"
	"encoding/base64"

	"github.com/DRSN-tech/vision-service/internal/domain"
	"github.com/DRSN-tech/vision-service/internal/usecase"
	"github.com/DRSN-tech/vision-service/pkg/e"
	"github.com/DRSN-tech/vision-service/pkg/logger"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const recognitionServiceName = "vision.v1.RecognitionService"

// RecognitionServer: gRPC-интерфейс распознавания поверх well-known типов protobuf.
type RecognitionServer interface {
	Recognize(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	SearchByText(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	SubmitTraining(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	TrainingStatus(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error)
}

type recognizeResponse struct {
	SellerID    string              `json:"seller_id"`
	Trained     bool                `json:"trained"`
	Predictions []domain.Prediction `json:"predictions"`
	Detections  []domain.Detection  `json:"detections"`
	Message     string              `json:"message,omitempty"`
}

type searchHit struct {
	ProductID       string  `json:"product_id"`
	ProductName     string  `json:"product_name"`
	Price           float64 `json:"price"`
	SimilarityScore float32 `json:"similarity_score"`
}

type RecognitionService struct {
	recUC  usecase.RecognitionUC
	trUC   usecase.TrainingUC
	logger logger.Logger
}

func NewRecognitionService(recUC usecase.RecognitionUC, trUC usecase.TrainingUC, logger logger.Logger) *RecognitionService {
	return &RecognitionService{recUC: recUC, trUC: trUC, logger: logger}
}

// Recognize ожидает {seller_id, image}, где image: base64 байтов изображения.
func (g *RecognitionService) Recognize(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	const op = "grpc.Recognize"

	fields := req.GetFields()
	tenant, err := domain.NormalizeTenantKey(fields["seller_id"].GetStringValue())
	if err != nil {
		return nil, GRPCErrorResponse(err)
	}

	image, err := base64.StdEncoding.DecodeString(fields["image"].GetStringValue())
	if err != nil || len(image) == 0 {
		return nil, GRPCErrorResponse(e.ErrNoImages)
	}

	res, err := g.recUC.Recognize(ctx, tenant, image)
	if err != nil {
		g.logger.Errorf(e.Wrap(op, err), "%s", op)
		return nil, GRPCErrorResponse(err)
	}

	return g.reply(op, &recognizeResponse{
		SellerID:    res.TenantKey,
		Trained:     res.Trained,
		Predictions: res.Predictions,
		Detections:  res.Detections,
		Message:     res.Message,
	})
}

// SearchByText ожидает {seller_id, query, k}.
func (g *RecognitionService) SearchByText(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	const op = "grpc.SearchByText"

	fields := req.GetFields()
	tenant, err := domain.NormalizeTenantKey(fields["seller_id"].GetStringValue())
	if err != nil {
		return nil, GRPCErrorResponse(err)
	}

	res, err := g.recUC.SearchByText(ctx, tenant, fields["query"].GetStringValue(), int(fields["k"].GetNumberValue()))
	if err != nil {
		g.logger.Errorf(e.Wrap(op, err), "%s", op)
		return nil, GRPCErrorResponse(err)
	}

	hits := make([]searchHit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hits = append(hits, searchHit{
			ProductID:       h.Record.ProductID,
			ProductName:     h.Record.ProductName,
			Price:           h.Record.Price,
			SimilarityScore: h.Score,
		})
	}
	return g.reply(op, map[string]any{"seller_id": res.TenantKey, "query": res.Query, "results": hits})
}

// SubmitTraining ожидает {seller_id, fine_tune}.
func (g *RecognitionService) SubmitTraining(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	const op = "grpc.SubmitTraining"

	fields := req.GetFields()
	tenant, err := domain.NormalizeTenantKey(fields["seller_id"].GetStringValue())
	if err != nil {
		return nil, GRPCErrorResponse(err)
	}

	job, err := g.trUC.Submit(ctx, tenant, fields["fine_tune"].GetBoolValue())
	if err != nil {
		g.logger.Errorf(e.Wrap(op, err), "%s", op)
		return nil, GRPCErrorResponse(err)
	}
	return g.reply(op, job)
}

func (g *RecognitionService) TrainingStatus(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	const op = "grpc.TrainingStatus"

	tenant, err := domain.NormalizeTenantKey(req.GetValue())
	if err != nil {
		return nil, GRPCErrorResponse(err)
	}

	job, err := g.trUC.Status(ctx, tenant)
	if err != nil {
		g.logger.Errorf(e.Wrap(op, err), "%s", op)
		return nil, GRPCErrorResponse(err)
	}
	return g.reply(op, job)
}

func (g *RecognitionService) reply(op string, v any) (*structpb.Struct, error) {
	out, err := toStruct(v)
	if err != nil {
		g.logger.Errorf(e.Wrap(op, err), "%s: cannot encode response", op)
		return nil, GRPCErrorResponse(err)
	}
	return out, nil
}

// RecognitionServiceDesc описывает сервис вручную. Сообщения передаются well-known типами protobuf.
var RecognitionServiceDesc = grpc.ServiceDesc{
	ServiceName: recognitionServiceName,
	HandlerType: (*RecognitionServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Recognize", Handler: structHandler("Recognize", RecognitionServer.Recognize)},
		{MethodName: "SearchByText", Handler: structHandler("SearchByText", RecognitionServer.SearchByText)},
		{MethodName: "SubmitTraining", Handler: structHandler("SubmitTraining", RecognitionServer.SubmitTraining)},
		{MethodName: "TrainingStatus", Handler: trainingStatusHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "vision/v1/recognition.proto",
}

func structHandler(method string, call func(RecognitionServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	fullMethod := "/" + recognitionServiceName + "/" + method

	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(RecognitionServer), ctx, in)
		}

		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(RecognitionServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func trainingStatusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RecognitionServer).TrainingStatus(ctx, in)
	}

	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + recognitionServiceName + "/TrainingStatus"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RecognitionServer).TrainingStatus(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}
