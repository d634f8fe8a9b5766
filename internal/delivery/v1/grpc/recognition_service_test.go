package grpc

import (
	"context"
	"encoding/base64"
	"net"
	"testing"

	"github.com/DRSN-tech/vision-service/internal/cfg"
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
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type fakeRecognitionUC struct {
	gotImage []byte
	err      error
}

func (f *fakeRecognitionUC) Recognize(_ context.Context, tenant string, imageBytes []byte) (*usecase.RecognizeRes, error) {
	f.gotImage = imageBytes
	if f.err != nil {
		return nil, f.err
	}
	return usecase.NewRecognizeRes(tenant, true,
		[]domain.Prediction{{BBox: domain.NewBBox(0, 0, 10, 10), ProductID: "product_7", ProductName: "Red Mug", SimilarityScore: 0.9}},
		[]domain.Detection{{BBox: domain.NewBBox(0, 0, 10, 10), Confidence: 0.8, ClassName: "cup"}},
		""), nil
}

func (f *fakeRecognitionUC) SearchByText(_ context.Context, tenant, text string, _ int) (*usecase.TextSearchRes, error) {
	return usecase.NewTextSearchRes(tenant, text, []domain.SearchHit{
		{Record: domain.ProductEmbeddingRecord{ProductID: "product_7", ProductName: "Red Mug"}, Score: 0.75},
	}), nil
}

func (f *fakeRecognitionUC) ModelInfo() *usecase.ModelInfoRes {
	return &usecase.ModelInfoRes{}
}

type fakeTrainingUC struct{}

func (fakeTrainingUC) Submit(_ context.Context, tenant string, fineTune bool) (*domain.TrainingJob, error) {
	return domain.NewTrainingJob(tenant, "run-1", fineTune, domain.JobTraining, 0, "Training queued"), nil
}

func (fakeTrainingUC) Status(_ context.Context, tenant string) (*domain.TrainingJob, error) {
	return domain.NotStartedJob(tenant), nil
}

func (fakeTrainingUC) Reload(context.Context, string) (*usecase.ReloadRes, error) {
	return &usecase.ReloadRes{}, nil
}

func dial(t *testing.T, rec *fakeRecognitionUC) *grpc.ClientConn {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := NewGRPCServer(&cfg.GRPCConfig{}, logger.NewNop())
	srv.RegisterServices(rec, fakeTrainingUC{})
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(func() { _ = srv.Stop(context.Background()) })

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func method(name string) string {
	return "/" + recognitionServiceName + "/" + name
}

func TestRecognize(t *testing.T) {
	rec := &fakeRecognitionUC{}
	conn := dial(t, rec)

	req, err := structpb.NewStruct(map[string]any{
		"seller_id": "7",
		"image":     base64.StdEncoding.EncodeToString([]byte("jpeg")),
	})
	require.NoError(t, err)

	res := &structpb.Struct{}
	require.NoError(t, conn.Invoke(context.Background(), method("Recognize"), req, res))

	assert.Equal(t, []byte("jpeg"), rec.gotImage)
	out := res.AsMap()
	assert.Equal(t, "seller_7", out["seller_id"])
	assert.Equal(t, true, out["trained"])
	preds := out["predictions"].([]any)
	require.Len(t, preds, 1)
	assert.Equal(t, "Red Mug", preds[0].(map[string]any)["product_name"])
}

func TestRecognize_Errors(t *testing.T) {
	conn := dial(t, &fakeRecognitionUC{err: e.Wrap("op", e.ErrInvalidImage)})

	noImage, err := structpb.NewStruct(map[string]any{"seller_id": "7"})
	require.NoError(t, err)
	err = conn.Invoke(context.Background(), method("Recognize"), noImage, &structpb.Struct{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	badSeller, err := structpb.NewStruct(map[string]any{"seller_id": "a/b", "image": "aGk="})
	require.NoError(t, err)
	err = conn.Invoke(context.Background(), method("Recognize"), badSeller, &structpb.Struct{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	badImage, err := structpb.NewStruct(map[string]any{"seller_id": "7", "image": "aGk="})
	require.NoError(t, err)
	err = conn.Invoke(context.Background(), method("Recognize"), badImage, &structpb.Struct{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestSearchByText(t *testing.T) {
	conn := dial(t, &fakeRecognitionUC{})

	req, err := structpb.NewStruct(map[string]any{"seller_id": "seller_1", "query": "mug", "k": 3.0})
	require.NoError(t, err)

	res := &structpb.Struct{}
	require.NoError(t, conn.Invoke(context.Background(), method("SearchByText"), req, res))
	results := res.AsMap()["results"].([]any)
	require.Len(t, results, 1)
	assert.Equal(t, "product_7", results[0].(map[string]any)["product_id"])
}

func TestTraining(t *testing.T) {
	conn := dial(t, &fakeRecognitionUC{})

	req, err := structpb.NewStruct(map[string]any{"seller_id": "3", "fine_tune": true})
	require.NoError(t, err)
	res := &structpb.Struct{}
	require.NoError(t, conn.Invoke(context.Background(), method("SubmitTraining"), req, res))
	assert.Equal(t, "training", res.AsMap()["status"])
	assert.Equal(t, true, res.AsMap()["fine_tune"])

	st := &structpb.Struct{}
	require.NoError(t, conn.Invoke(context.Background(), method("TrainingStatus"), wrapperspb.String("3"), st))
	assert.Equal(t, "not_started", st.AsMap()["status"])
	assert.Equal(t, "seller_3", st.AsMap()["seller_id"])
}

func TestGRPCErrorResponse(t *testing.T) {
	assert.Equal(t, codes.FailedPrecondition, status.Code(GRPCErrorResponse(e.ErrUntrainedTenant)))
	assert.Equal(t, codes.NotFound, status.Code(GRPCErrorResponse(e.Wrap("op", e.ErrIndexNotFound))))
	assert.Equal(t, codes.Internal, status.Code(GRPCErrorResponse(assert.AnError)))
}
