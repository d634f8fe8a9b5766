// Package imaging содержит операции над изображениями, общие для распознавания и подготовки датасета.
package imaging

import (
	"bytes"
	"fmt"
	"image"

	_ "golang.org/x/image/webp"

	"github.com/DRSN-tech/vision-service/internal/domain"
	"github.com/DRSN-tech/vision-service/pkg/e"
	ximaging "github.com/disintegration/imaging"
)

const (
	DefaultJPEGQuality = 95

	minPadding   = 5
	maxPadding   = 20
	paddingRatio = 0.10
)

// Decode декодирует JPEG, PNG, GIF, BMP, TIFF или WebP.
// Снимок с EXIF-ориентацией поворачивается так, как его видит человек:
// боксы детектора считаются в координатах повёрнутого изображения.
func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, e.ErrInvalidImage
	}

	img, err := ximaging.Decode(bytes.NewReader(data), ximaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", e.ErrInvalidImage, err)
	}

	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("%w: empty image", e.ErrInvalidImage)
	}
	return img, nil
}

// EncodeJPEG кодирует изображение в JPEG.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := ximaging.Encode(&buf, img, ximaging.JPEG, ximaging.JPEGQuality(quality)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Clamp ограничивает бокс границами изображения.
func Clamp(box domain.BBox, bounds image.Rectangle) domain.BBox {
	r := box.Rect().Intersect(bounds)
	return domain.NewBBox(r.Min.X, r.Min.Y, r.Max.X, r.Max.Y)
}

// Pad расширяет бокс на max(5, min(20, 10% короткой стороны)) пикселей с каждой стороны
// и обрезает результат по границам изображения.
func Pad(box domain.BBox, bounds image.Rectangle) domain.BBox {
	p := Padding(box)
	padded := domain.NewBBox(box.X1-p, box.Y1-p, box.X2+p, box.Y2+p)
	return Clamp(padded, bounds)
}

// Padding возвращает отступ для обучающего кропа.
func Padding(box domain.BBox) int {
	p := int(float64(box.ShortSide()) * paddingRatio)
	return max(minPadding, min(maxPadding, p))
}

// Crop копирует область бокса в новое изображение. Бокс предварительно обрезается по границам.
// Возвращает ошибку, если пересечение с изображением пусто.
func Crop(img image.Image, box domain.BBox) (image.Image, error) {
	r := Clamp(box, img.Bounds()).Rect()
	if r.Empty() {
		return nil, fmt.Errorf("%w: box %v is outside of image %v", e.ErrInvalidImage, box, img.Bounds())
	}

	return ximaging.Crop(img, r), nil
}
