package domain

import (
	"math"
	"time"
)

// ProductEmbeddingRecord описывает строку индекса продавца: вектор одной обучающей картинки и её товар.
type ProductEmbeddingRecord struct {
	ProductID   string    `json:"product_id"`
	ProductName string    `json:"product_name"`
	Price       float64   `json:"price"`
	Vector      []float32 `json:"-"`
}

// SellerIndex: неизменяемый снимок индекса продавца.
// Позиция записи в Records совпадает с номером строки векторного индекса.
type SellerIndex struct {
	TenantKey string
	Records   []ProductEmbeddingRecord
	CreatedAt time.Time
}

// Len возвращает количество строк индекса.
func (s *SellerIndex) Len() int {
	return len(s.Records)
}

// UniqueProducts возвращает количество различных товаров в индексе.
func (s *SellerIndex) UniqueProducts() int {
	seen := make(map[string]struct{}, len(s.Records))
	for _, r := range s.Records {
		seen[r.ProductID] = struct{}{}
	}
	return len(seen)
}

// SearchHit: результат поиска ближайшего соседа.
type SearchHit struct {
	Row    int
	Record ProductEmbeddingRecord
	Score  float32
}

// IsZeroVector сообщает, что у вектора нулевая норма.
func IsZeroVector(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// Normalize приводит вектор к единичной норме. Нулевой вектор возвращается без изменений.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}

	norm := float32(1 / math.Sqrt(sum))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x * norm
	}
	return out
}
