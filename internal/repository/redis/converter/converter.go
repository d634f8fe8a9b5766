package converter

import "github.com/DRSN-tech/vision-service/internal/domain"

type TrainingJobConverter struct{}

func (TrainingJobConverter) ToRedisModel(job *domain.TrainingJob) *TrainingJobRedisModel {
	return &TrainingJobRedisModel{
		TenantKey: job.TenantKey,
		RunID:     job.RunID,
		Status:    string(job.Status),
		Progress:  job.Progress,
		Message:   job.Message,
		FineTune:  job.FineTune,
		UpdatedAt: job.UpdatedAt,
	}
}

func (TrainingJobConverter) ToDomain(model *TrainingJobRedisModel) *domain.TrainingJob {
	return &domain.TrainingJob{
		TenantKey: model.TenantKey,
		RunID:     model.RunID,
		Status:    domain.JobStatus(model.Status),
		Progress:  model.Progress,
		Message:   model.Message,
		FineTune:  model.FineTune,
		UpdatedAt: model.UpdatedAt,
	}
}
