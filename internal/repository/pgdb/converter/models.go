package converter

import "time"

// SellerIndexVersionModel представляет запись таблицы seller_index_versions в PostgreSQL.
type SellerIndexVersionModel struct {
	ID              int64      `db:"id"`
	SellerKey       string     `db:"seller_key"`
	Version         int32      `db:"version"`
	TotalEmbeddings int        `db:"total_embeddings"`
	UniqueProducts  int        `db:"unique_products"`
	CreatedAt       time.Time  `db:"created_at"`
	UpdatedAt       *time.Time `db:"updated_at"`
}
