package domain

import (
	"encoding/json"
	"fmt"
	"image"
)

// BBox задаёт прямоугольник в пикселях исходного изображения, в JSON это [x1, y1, x2, y2].
type BBox struct {
	X1, Y1, X2, Y2 int
}

func NewBBox(x1, y1, x2, y2 int) BBox {
	return BBox{X1: x1, Y1: y1, X2: x2, Y2: y2}
}

func (b BBox) Width() int  { return b.X2 - b.X1 }
func (b BBox) Height() int { return b.Y2 - b.Y1 }

// ShortSide возвращает меньшую из сторон бокса.
func (b BBox) ShortSide() int {
	return min(b.Width(), b.Height())
}

// Rect переводит бокс в image.Rectangle.
func (b BBox) Rect() image.Rectangle {
	return image.Rect(b.X1, b.Y1, b.X2, b.Y2)
}

func (b BBox) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]int{b.X1, b.Y1, b.X2, b.Y2})
}

func (b *BBox) UnmarshalJSON(data []byte) error {
	var arr []int
	if err := json.Unmarshal(data, &arr); err != nil {
		return err
	}
	if len(arr) != 4 {
		return fmt.Errorf("bbox must have 4 coordinates, got %d", len(arr))
	}
	*b = BBox{X1: arr[0], Y1: arr[1], X2: arr[2], Y2: arr[3]}
	return nil
}

// UnknownClassID: детектор не указал класс объекта.
const UnknownClassID = -1

// Detection: кандидат, найденный детектором общего назначения.
type Detection struct {
	BBox       BBox    `json:"bbox"`
	Confidence float64 `json:"confidence"`
	ClassID    int     `json:"class_id"`
	ClassName  string  `json:"class"`
}

// Prediction: детекция, сопоставленная с товаром продавца.
type Prediction struct {
	BBox            BBox    `json:"bbox"`
	ProductID       string  `json:"product_id"`
	ProductName     string  `json:"product_name"`
	Price           float64 `json:"price"`
	Confidence      float64 `json:"confidence"`
	SimilarityScore float64 `json:"similarity_score"`
}
