package ml_service

import (
	"context"
	"image"
	"image/color"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DRSN-tech/vision-service/internal/domain"
	"github.com/DRSN-tech/vision-service/internal/usecase"
	"github.com/DRSN-tech/vision-service/pkg/e"
	"github.com/DRSN-tech/vision-service/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// fakeML отвечает на вызовы MachineLearningService без сгенерированных стабов.
type fakeML struct {
	mu        sync.Mutex
	calls     atomic.Int32
	failFirst int32
	failCode  codes.Code
	lastText  string
	lastReq   map[string]any
	vector    []any
}

func (f *fakeML) handle(_ any, stream grpc.ServerStream) error {
	method, _ := grpc.MethodFromServerStream(stream)
	n := f.calls.Add(1)

	var req proto.Message
	switch method {
	case MethodEmbedImage:
		req = &wrapperspb.BytesValue{}
	case MethodEmbedText:
		req = &wrapperspb.StringValue{}
	default:
		req = &structpb.Struct{}
	}
	if err := stream.RecvMsg(req); err != nil {
		return err
	}

	if n <= f.failFirst {
		return status.Error(f.failCode, "not ready")
	}

	f.mu.Lock()
	switch r := req.(type) {
	case *wrapperspb.StringValue:
		f.lastText = r.GetValue()
	case *structpb.Struct:
		f.lastReq = r.AsMap()
	}
	f.mu.Unlock()

	var res map[string]any
	switch method {
	case MethodDetect:
		res = map[string]any{
			"detections": []any{
				map[string]any{"bbox": []any{10.0, 20.0, 110.0, 220.0}, "confidence": 0.9, "class_id": 41.0, "class": "cup"},
				map[string]any{"bbox": []any{0.0, 0.0, 50.0, 60.0}, "confidence": 0.4, "class_id": 0.0, "class": "person"},
			},
		}
	case MethodEmbedImage, MethodEmbedText:
		res = map[string]any{"vector": f.vector}
	case MethodFineTune:
		res = map[string]any{"model_version": "ft-001", "epochs": 5.0, "loss": 0.125}
	default:
		return status.Errorf(codes.Unimplemented, "unknown method %s", method)
	}

	out, err := structpb.NewStruct(res)
	if err != nil {
		return err
	}
	return stream.SendMsg(out)
}

func newTestService(t *testing.T, f *fakeML, vectorSize int) *MLService {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.UnknownServiceHandler(f.handle))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return NewMLService(conn, 2, 3, 5*time.Second, vectorSize, logger.NewNop())
}

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 10, B: 10, A: 255})
		}
	}
	return img
}

func TestMLService_Detect(t *testing.T) {
	f := &fakeML{}
	svc := newTestService(t, f, 3)

	detections, err := svc.Detect(context.Background(), testImage(), usecase.NewDetectOptions(0.25, 0.45))
	require.NoError(t, err)
	require.Len(t, detections, 2)

	assert.Equal(t, 10, detections[0].BBox.X1)
	assert.Equal(t, 220, detections[0].BBox.Y2)
	assert.Equal(t, 41, detections[0].ClassID)
	assert.Equal(t, "cup", detections[0].ClassName)
	assert.InDelta(t, 0.9, detections[0].Confidence, 1e-9)

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.InDelta(t, 0.25, f.lastReq["conf_threshold"], 1e-9)
	assert.InDelta(t, 0.45, f.lastReq["iou_threshold"], 1e-9)
	assert.NotEmpty(t, f.lastReq["image"])
}

func TestMLService_EmbedImage_RetriesUnavailable(t *testing.T) {
	f := &fakeML{failFirst: 1, failCode: codes.Unavailable, vector: []any{1.0, 0.0, 0.0}}
	svc := newTestService(t, f, 3)

	vector, err := svc.EmbedImage(context.Background(), testImage())
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0, 0}, vector)
	assert.Equal(t, int32(2), f.calls.Load())
}

func TestMLService_EmbedImage_DoesNotRetryInvalidArgument(t *testing.T) {
	f := &fakeML{failFirst: 5, failCode: codes.InvalidArgument, vector: []any{1.0, 0.0, 0.0}}
	svc := newTestService(t, f, 3)

	_, err := svc.EmbedImage(context.Background(), testImage())
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestMLService_EmbedText(t *testing.T) {
	f := &fakeML{vector: []any{0.0, 0.6, 0.8}}
	svc := newTestService(t, f, 3)

	vector, err := svc.EmbedText(context.Background(), "red mug")
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{0, 0.6, 0.8}, vector, 1e-6)

	f.mu.Lock()
	assert.Equal(t, "red mug", f.lastText)
	f.mu.Unlock()
}

func TestMLService_EmbedText_DimensionMismatch(t *testing.T) {
	f := &fakeML{vector: []any{0.0, 1.0}}
	svc := newTestService(t, f, 3)

	_, err := svc.EmbedText(context.Background(), "red mug")
	require.ErrorIs(t, err, e.ErrDimensionMismatch)
}

func TestMLService_FineTune(t *testing.T) {
	f := &fakeML{}
	svc := newTestService(t, f, 3)

	res, err := svc.FineTune(context.Background(), usecase.NewFineTuneReq("seller_1", "/data/seller_1"))
	require.NoError(t, err)
	assert.Equal(t, "ft-001", res.ModelVersion)
	assert.Equal(t, 5, res.Epochs)
	assert.InDelta(t, 0.125, res.Loss, 1e-9)

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Equal(t, "seller_1", f.lastReq["seller_id"])
	assert.Equal(t, "/data/seller_1", f.lastReq["dataset_dir"])
}

func TestParseVector(t *testing.T) {
	empty, err := structpb.NewStruct(map[string]any{"vector": []any{}})
	require.NoError(t, err)
	_, err = ParseVector(empty, 3)
	assert.ErrorIs(t, err, e.ErrVectorEmbeddingEmpty)

	anyDim, err := structpb.NewStruct(map[string]any{"vector": []any{0.5, 0.5}})
	require.NoError(t, err)
	vector, err := ParseVector(anyDim, 0)
	require.NoError(t, err)
	assert.Len(t, vector, 2)
}

func TestParseDetections_BadBBox(t *testing.T) {
	res, err := structpb.NewStruct(map[string]any{
		"detections": []any{map[string]any{"bbox": []any{1.0, 2.0, 3.0}}},
	})
	require.NoError(t, err)

	_, err = ParseDetections(res)
	assert.Error(t, err)
}

func TestParseDetections_ClassID(t *testing.T) {
	res, err := structpb.NewStruct(map[string]any{
		"detections": []any{
			map[string]any{"bbox": []any{10.0, 10.0, 110.0, 110.0}, "confidence": 0.9, "class_id": 0.0, "class": "person"},
			map[string]any{"bbox": []any{10.0, 10.0, 110.0, 110.0}, "confidence": 0.8, "class": "cup"},
			map[string]any{"bbox": []any{10.0, 10.0, 110.0, 110.0}, "confidence": 0.7, "class_id": "41", "class": "cup"},
		},
	})
	require.NoError(t, err)

	detections, err := ParseDetections(res)
	require.NoError(t, err)
	require.Len(t, detections, 3)
	assert.Equal(t, 0, detections[0].ClassID)
	assert.Equal(t, domain.UnknownClassID, detections[1].ClassID)
	assert.Equal(t, domain.UnknownClassID, detections[2].ClassID)
	assert.Equal(t, domain.NewBBox(10, 10, 110, 110), detections[1].BBox)
}

func TestParseDetections_Empty(t *testing.T) {
	detections, err := ParseDetections(&structpb.Struct{})
	require.NoError(t, err)
	assert.Empty(t, detections)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"unavailable", status.Error(codes.Unavailable, "down"), true},
		{"deadline", status.Error(codes.DeadlineExceeded, "slow"), true},
		{"exhausted", status.Error(codes.ResourceExhausted, "busy"), true},
		{"invalid argument", status.Error(codes.InvalidArgument, "bad"), false},
		{"canceled", context.Canceled, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}
