package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/DRSN-tech/vision-service/internal/domain"
	"github.com/DRSN-tech/vision-service/pkg/e"
	"github.com/go-chi/chi/v5"
	"github.com/jimlawless/whereami"
)

const (
	sellerIDParam = "sellerID"
	imageField    = "file"
	maxMemory     = 8 << 20
)

type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func NewErrorResponse(code int, message string) *ErrorResponse {
	return &ErrorResponse{
		Code:    code,
		Message: message,
	}
}

func ToHTTPResponse(err error) (int, string) {
	switch {
	case errors.Is(err, e.ErrInvalidTenant):
		return http.StatusBadRequest, e.ErrInvalidTenant.Error()
	case errors.Is(err, e.ErrInvalidImage):
		return http.StatusBadRequest, e.ErrInvalidImage.Error()
	case errors.Is(err, e.ErrNoImages):
		return http.StatusBadRequest, e.ErrNoImages.Error()
	case errors.Is(err, e.ErrEmptyQuery):
		return http.StatusBadRequest, e.ErrEmptyQuery.Error()
	case errors.Is(err, e.ErrStatusBadRequest):
		return http.StatusBadRequest, e.ErrStatusBadRequest.Error()
	case errors.Is(err, e.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge, e.ErrFileTooLarge.Error()
	case errors.Is(err, e.ErrUnsupportedMediaType):
		return http.StatusUnsupportedMediaType, e.ErrUnsupportedMediaType.Error()
	case errors.Is(err, e.ErrIndexNotFound):
		return http.StatusNotFound, e.ErrIndexNotFound.Error()
	case errors.Is(err, e.ErrUntrainedTenant):
		return http.StatusConflict, e.ErrUntrainedTenant.Error()
	case errors.Is(err, e.ErrIndexCorrupt):
		return http.StatusUnprocessableEntity, e.ErrIndexCorrupt.Error()
	case errors.Is(err, e.ErrCatalogFetchFailed):
		return http.StatusBadGateway, e.ErrCatalogFetchFailed.Error()
	default:
		return http.StatusInternalServerError, e.ErrInternalServerError.Error()
	}
}

func WriteError(w http.ResponseWriter, err error) {
	code, msg := ToHTTPResponse(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(NewErrorResponse(code, msg))
}

func WriteSuccess(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// sellerKey принимает {sellerID} как "42" или "seller_42".
func sellerKey(r *http.Request) (string, error) {
	return domain.NormalizeTenantKey(chi.URLParam(r, sellerIDParam))
}

// readImage достаёт байты изображения из multipart-поля file или, для остальных типов, из тела запроса.
func readImage(w http.ResponseWriter, r *http.Request, maxSize int64) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	var src io.Reader = r.Body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxMemory); err != nil {
			return nil, wrapBodyErr(err)
		}
		file, _, err := r.FormFile(imageField)
		if err != nil {
			return nil, e.Wrap(whereami.WhereAmI(), e.ErrNoImages)
		}
		defer file.Close()
		src = file
	}

	data, err := io.ReadAll(src)
	if err != nil {
		return nil, wrapBodyErr(err)
	}
	if len(data) == 0 {
		return nil, e.Wrap(whereami.WhereAmI(), e.ErrNoImages)
	}
	return data, nil
}

func wrapBodyErr(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return e.Wrap(whereami.WhereAmI(), e.ErrFileTooLarge)
	}
	return e.Wrap(whereami.WhereAmI(), errors.Join(e.ErrStatusBadRequest, err))
}
