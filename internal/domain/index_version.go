package domain

import "time"

// IndexVersion: запись о версии индекса продавца в Postgres.
type IndexVersion struct {
	ID              int64
	TenantKey       string
	Version         int32
	TotalEmbeddings int
	UniqueProducts  int
	CreatedAt       time.Time
	UpdatedAt       *time.Time
}
