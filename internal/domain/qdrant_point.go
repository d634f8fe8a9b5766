package domain

// QdrantPoint описывает запись в Qdrant. ID совпадает с номером строки индекса продавца.
type QdrantPoint struct {
	ID       uint64
	Vectors  []float32
	Payloads map[string]any
}

func NewQdrantPoint(id uint64, vectors []float32, payloads map[string]any) *QdrantPoint {
	return &QdrantPoint{
		ID:       id,
		Vectors:  vectors,
		Payloads: payloads,
	}
}

// QdrantPointsFromIndex переводит строки индекса в точки Qdrant.
func QdrantPointsFromIndex(idx *SellerIndex) []*QdrantPoint {
	points := make([]*QdrantPoint, len(idx.Records))
	for i, r := range idx.Records {
		points[i] = NewQdrantPoint(uint64(i), r.Vector, map[string]any{
			"product_id":   r.ProductID,
			"product_name": r.ProductName,
			"price":        r.Price,
			"seller_id":    idx.TenantKey,
		})
	}
	return points
}
