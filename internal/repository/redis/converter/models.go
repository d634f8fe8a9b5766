package converter

import "time"

type TrainingJobRedisModel struct {
	TenantKey string    `json:"seller_id"`
	RunID     string    `json:"run_id"`
	Status    string    `json:"status"`
	Progress  int       `json:"progress"`
	Message   string    `json:"message"`
	FineTune  bool      `json:"fine_tune"`
	UpdatedAt time.Time `json:"updated_at"`
}
