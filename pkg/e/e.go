package e

import "fmt"

var (
	// Внутренние ошибки с транзакциями
	ErrTransactionNotFound = fmt.Errorf("transaction not found")

	// Ошибки тенанта и индекса
	ErrInvalidTenant     = fmt.Errorf("invalid tenant key")
	ErrIndexNotFound     = fmt.Errorf("index not found")
	ErrUntrainedTenant   = fmt.Errorf("tenant has no trained index")
	ErrIndexCorrupt      = fmt.Errorf("index is corrupt")
	ErrDimensionMismatch = fmt.Errorf("vector dimension mismatch")

	// Внутренние ошибки с векторами
	ErrEmptyVectors         = fmt.Errorf("empty vectors")
	ErrVectorEmbeddingEmpty = fmt.Errorf("vector embedding is empty")

	// Ошибки обучения и датасета
	ErrNoTrainingData      = fmt.Errorf("no valid images found for training")
	ErrCatalogFetchFailed  = fmt.Errorf("catalog fetch failed")
	ErrPartialAssetFailure = fmt.Errorf("asset processing failed")

	// 400 Bad Request
	ErrInvalidImage         = fmt.Errorf("invalid image")
	ErrNoImages             = fmt.Errorf("no image provided")
	ErrUnsupportedMediaType = fmt.Errorf("unsupported media type")
	ErrFileTooLarge         = fmt.Errorf("file too large")
	ErrEmptyQuery           = fmt.Errorf("search query is empty")
	ErrStatusBadRequest     = fmt.Errorf("bad request")

	// 500
	ErrInternalServerError = fmt.Errorf("internal server error")
)

// Wrap оборачивает ошибку
func Wrap(msg string, err error) error {
	return fmt.Errorf("%s: %w", msg, err)
}
