package memory

import (
	"context"
	"sync"

	"github.com/DRSN-tech/vision-service/internal/domain"
)

// JobStatusRepo хранит состояние задач обучения в памяти процесса.
type JobStatusRepo struct {
	mu   sync.RWMutex
	jobs map[string]domain.TrainingJob
}

func NewJobStatusRepo() *JobStatusRepo {
	return &JobStatusRepo{
		jobs: make(map[string]domain.TrainingJob),
	}
}

func (r *JobStatusRepo) Get(_ context.Context, tenant string) (*domain.TrainingJob, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[tenant]
	if !ok {
		return nil, false, nil
	}
	return &job, true, nil
}

func (r *JobStatusRepo) Set(_ context.Context, job *domain.TrainingJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.jobs[job.TenantKey] = *job
	return nil
}

func (r *JobStatusRepo) SetIfProgress(_ context.Context, job *domain.TrainingJob) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.jobs[job.TenantKey]
	if ok && !current.CanAdvanceTo(job) {
		return false, nil
	}

	r.jobs[job.TenantKey] = *job
	return true, nil
}
