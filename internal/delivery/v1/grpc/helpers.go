package grpc

import (
	"encoding/json"
	"errors"

	"github.com/DRSN-tech/vision-service/pkg/e"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

func GRPCErrorResponse(err error) error {
	switch {
	case errors.Is(err, e.ErrInvalidTenant):
		return status.Error(codes.InvalidArgument, e.ErrInvalidTenant.Error())
	case errors.Is(err, e.ErrInvalidImage):
		return status.Error(codes.InvalidArgument, e.ErrInvalidImage.Error())
	case errors.Is(err, e.ErrNoImages):
		return status.Error(codes.InvalidArgument, e.ErrNoImages.Error())
	case errors.Is(err, e.ErrEmptyQuery):
		return status.Error(codes.InvalidArgument, e.ErrEmptyQuery.Error())
	case errors.Is(err, e.ErrUntrainedTenant):
		return status.Error(codes.FailedPrecondition, e.ErrUntrainedTenant.Error())
	case errors.Is(err, e.ErrIndexNotFound):
		return status.Error(codes.NotFound, e.ErrIndexNotFound.Error())
	default:
		return status.Error(codes.Internal, e.ErrInternalServerError.Error())
	}
}

// toStruct переводит значение с json-тегами в google.protobuf.Struct.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	out := &structpb.Struct{}
	if err := out.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return out, nil
}
