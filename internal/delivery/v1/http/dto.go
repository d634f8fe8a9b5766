package http

import (
	"time"

	"github.com/DRSN-tech/vision-service/internal/domain"
	"github.com/DRSN-tech/vision-service/internal/usecase"
)

type DetectResponse struct {
	SellerID    string              `json:"seller_id"`
	Trained     bool                `json:"trained"`
	Predictions []domain.Prediction `json:"predictions"`
	Detections  []domain.Detection  `json:"detections"`
	Message     string              `json:"message,omitempty"`
}

type SearchHitResponse struct {
	ProductID       string  `json:"product_id"`
	ProductName     string  `json:"product_name"`
	Price           float64 `json:"price"`
	SimilarityScore float32 `json:"similarity_score"`
}

type SearchResponse struct {
	SellerID string              `json:"seller_id"`
	Query    string              `json:"query"`
	Results  []SearchHitResponse `json:"results"`
}

type TrainResponse struct {
	Status   string `json:"status"`
	SellerID string `json:"seller_id"`
	RunID    string `json:"run_id"`
}

type ReloadResponse struct {
	Status  string   `json:"status"`
	Sellers []string `json:"sellers"`
}

type SellerIndexResponse struct {
	SellerID        string    `json:"seller_id"`
	TotalEmbeddings int       `json:"total_embeddings"`
	UniqueProducts  int       `json:"unique_products"`
	CreatedAt       time.Time `json:"created_at"`
}

type ModelInfoResponse struct {
	LoadedSellers  []string              `json:"loaded_sellers"`
	Indexes        []SellerIndexResponse `json:"indexes"`
	VectorSize     int                   `json:"vector_size"`
	ConfThreshold  float64               `json:"conf_threshold"`
	IoUThreshold   float64               `json:"iou_threshold"`
	MinObjectSize  int                   `json:"min_object_size"`
	MatchThreshold float64               `json:"match_threshold"`
	Status         string                `json:"status"`
}

func NewDetectResponse(res *usecase.RecognizeRes) *DetectResponse {
	return &DetectResponse{
		SellerID:    res.TenantKey,
		Trained:     res.Trained,
		Predictions: res.Predictions,
		Detections:  res.Detections,
		Message:     res.Message,
	}
}

func NewSearchResponse(res *usecase.TextSearchRes) *SearchResponse {
	results := make([]SearchHitResponse, 0, len(res.Hits))
	for _, hit := range res.Hits {
		results = append(results, SearchHitResponse{
			ProductID:       hit.Record.ProductID,
			ProductName:     hit.Record.ProductName,
			Price:           hit.Record.Price,
			SimilarityScore: hit.Score,
		})
	}

	return &SearchResponse{
		SellerID: res.TenantKey,
		Query:    res.Query,
		Results:  results,
	}
}

func NewModelInfoResponse(res *usecase.ModelInfoRes) *ModelInfoResponse {
	sellers := make([]string, 0, len(res.Tenants))
	indexes := make([]SellerIndexResponse, 0, len(res.Tenants))
	for _, t := range res.Tenants {
		sellers = append(sellers, t.TenantKey)
		indexes = append(indexes, SellerIndexResponse{
			SellerID:        t.TenantKey,
			TotalEmbeddings: t.TotalEmbeddings,
			UniqueProducts:  t.UniqueProducts,
			CreatedAt:       t.CreatedAt,
		})
	}

	return &ModelInfoResponse{
		LoadedSellers:  sellers,
		Indexes:        indexes,
		VectorSize:     res.VectorSize,
		ConfThreshold:  res.ConfThreshold,
		IoUThreshold:   res.IoUThreshold,
		MinObjectSize:  res.MinObjectSize,
		MatchThreshold: res.MatchThreshold,
		Status:         "active",
	}
}
