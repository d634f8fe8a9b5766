package domain

import "time"

// JobStatus: состояние задачи обучения.
type JobStatus string

const (
	JobNotStarted JobStatus = "not_started"
	JobTraining   JobStatus = "training"
	JobCompleted  JobStatus = "completed"
	JobError      JobStatus = "error"
)

// Terminal сообщает, что задача завершилась (успешно или с ошибкой).
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobError
}

// TrainingJob: снимок состояния последней задачи обучения продавца.
// Progress используется только для UI и монотонно не убывает в рамках одного запуска.
type TrainingJob struct {
	TenantKey string    `json:"seller_id"`
	RunID     string    `json:"run_id,omitempty"`
	Status    JobStatus `json:"status"`
	Progress  int       `json:"progress"`
	Message   string    `json:"message,omitempty"`
	FineTune  bool      `json:"fine_tune"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NotStartedJob возвращает состояние для продавца, который ещё ни разу не обучался.
func NotStartedJob(tenant string) *TrainingJob {
	return &TrainingJob{
		TenantKey: tenant,
		Status:    JobNotStarted,
	}
}

func NewTrainingJob(tenant, runID string, fineTune bool, status JobStatus, progress int, message string) *TrainingJob {
	return &TrainingJob{
		TenantKey: tenant,
		RunID:     runID,
		Status:    status,
		Progress:  progress,
		Message:   message,
		FineTune:  fineTune,
		UpdatedAt: time.Now().UTC(),
	}
}

// CanAdvanceTo сообщает, может ли next заменить текущее состояние: тот же запуск,
// текущее состояние не финальное, прогресс не уменьшается.
func (j *TrainingJob) CanAdvanceTo(next *TrainingJob) bool {
	if j.RunID != next.RunID {
		return false
	}
	if j.Status.Terminal() {
		return false
	}
	return next.Progress >= j.Progress
}
