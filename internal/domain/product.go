package domain

import (
	"strconv"
	"time"
)

const productDirPrefix = "product_"

// CatalogProduct: товар в том виде, в котором его отдаёт коммерческий бэкенд.
type CatalogProduct struct {
	ID          int64          `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Price       float64        `json:"price"`
	SellerID    int64          `json:"seller_id"`
	Images      []CatalogImage `json:"images"`
}

// CatalogImage: ссылка на изображение товара.
type CatalogImage struct {
	ImageURL string `json:"image_url"`
}

// ProductDirName возвращает имя каталога товара в датасете: product_<id>.
func ProductDirName(productID int64) string {
	return productDirPrefix + strconv.FormatInt(productID, 10)
}

// ProductMetadata хранится в datasets/seller_<id>/product_<id>/metadata.json.
type ProductMetadata struct {
	ProductID   int64     `json:"product_id"`
	ProductName string    `json:"product_name"`
	Description string    `json:"description,omitempty"`
	Price       float64   `json:"price"`
	SellerID    int64     `json:"seller_id"`
	ImageCount  int       `json:"image_count"`
	UpdatedAt   time.Time `json:"updated_at"`
}
