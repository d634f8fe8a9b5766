package usecase

import (
	"context"
	"fmt"
	"sync"

	"github.com/DRSN-tech/vision-service/internal/domain"
	"github.com/DRSN-tech/vision-service/pkg/e"
	"github.com/DRSN-tech/vision-service/pkg/logger"
	"github.com/google/uuid"
)

// Этапы задачи обучения и прогресс, с которым они стартуют.
const (
	progressQueued     = 0
	progressOrganizing = 10
	progressFineTuning = 30
	progressBuilding   = 50
	progressPublishing = 90
	progressDone       = 100
)

// TrainingUseCase ставит задачи обучения в фон и отдаёт их состояние.
// Задача не отменяется вызывающим: она доходит до completed или error.
type TrainingUseCase struct {
	organizer DatasetOrganizerUC
	builder   IndexBuilderUC
	fineTuner FineTuner
	datasets  DatasetRepository
	store     IndexStore
	jobs      JobStatusRepository
	publisher *IndexPublisher
	logger    logger.Logger

	wg sync.WaitGroup
}

func NewTrainingUC(
	organizer DatasetOrganizerUC,
	builder IndexBuilderUC,
	fineTuner FineTuner,
	datasets DatasetRepository,
	store IndexStore,
	jobs JobStatusRepository,
	publisher *IndexPublisher,
	logger logger.Logger,
) *TrainingUseCase {
	return &TrainingUseCase{
		organizer: organizer,
		builder:   builder,
		fineTuner: fineTuner,
		datasets:  datasets,
		store:     store,
		jobs:      jobs,
		publisher: publisher,
		logger:    logger,
	}
}

// Submit записывает состояние training/0 и запускает задачу в фоне, не дожидаясь её.
// Ошибки самой задачи видны только через Status.
func (t *TrainingUseCase) Submit(ctx context.Context, tenant string, fineTune bool) (*domain.TrainingJob, error) {
	const op = "TrainingUseCase.Submit"

	if err := domain.ValidateTenantKey(tenant); err != nil {
		return nil, e.Wrap(op, err)
	}

	job := domain.NewTrainingJob(tenant, uuid.NewString(), fineTune, domain.JobTraining, progressQueued, "Training queued")
	if err := t.jobs.Set(ctx, job); err != nil {
		return nil, e.Wrap(op, err)
	}

	t.wg.Add(1)
	go t.run(context.WithoutCancel(ctx), *job)

	t.logger.Infof("training submitted for %s, run %s, fine_tune=%t", tenant, job.RunID, fineTune)
	return job, nil
}

// Status возвращает снимок состояния; для продавца без задач: not_started.
func (t *TrainingUseCase) Status(ctx context.Context, tenant string) (*domain.TrainingJob, error) {
	const op = "TrainingUseCase.Status"

	if err := domain.ValidateTenantKey(tenant); err != nil {
		return nil, e.Wrap(op, err)
	}

	job, ok, err := t.jobs.Get(ctx, tenant)
	if err != nil {
		return nil, e.Wrap(op, err)
	}
	if !ok {
		return domain.NotStartedJob(tenant), nil
	}
	return job, nil
}

// Reload перечитывает с диска индекс продавца, а при пустом tenant: индексы всех продавцов.
func (t *TrainingUseCase) Reload(ctx context.Context, tenant string) (*ReloadRes, error) {
	const op = "TrainingUseCase.Reload"

	if tenant == "" {
		tenants, err := t.store.LoadAll(ctx)
		if err != nil {
			return nil, e.Wrap(op, err)
		}
		return &ReloadRes{Tenants: tenants}, nil
	}

	if _, err := t.store.Load(ctx, tenant); err != nil {
		return nil, e.Wrap(op, err)
	}
	return &ReloadRes{Tenants: []string{tenant}}, nil
}

// Wait ожидает завершения запущенных задач или истечения ctx.
func (t *TrainingUseCase) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("training jobs still running at shutdown: %w", ctx.Err())
	}
}

func (t *TrainingUseCase) run(ctx context.Context, job domain.TrainingJob) {
	const op = "TrainingUseCase.run"
	defer t.wg.Done()

	defer func() {
		if r := recover(); r != nil {
			t.fail(ctx, job, fmt.Errorf("panic: %v", r))
		}
	}()

	tenant := job.TenantKey

	t.advance(ctx, &job, progressOrganizing, "Organizing dataset from catalog...")
	organized, err := t.organizer.Organize(ctx)
	if err != nil {
		t.fail(ctx, job, err)
		return
	}
	if !organized.Organized {
		t.logger.Warnf("%s: catalog is empty, building %s from existing dataset", op, tenant)
	}

	if job.FineTune {
		t.advance(ctx, &job, progressFineTuning, "Fine-tuning embedding model...")
		if err := t.fineTune(ctx, tenant); err != nil {
			t.fail(ctx, job, err)
			return
		}
	}

	t.advance(ctx, &job, progressBuilding, "Processing images and building index...")
	res, err := t.builder.Build(ctx, tenant)
	if err != nil {
		t.fail(ctx, job, err)
		return
	}

	if t.publisher != nil {
		t.advance(ctx, &job, progressPublishing, "Publishing index...")
		if failed := t.publisher.Publish(ctx, job.RunID, job.FineTune, res); failed > 0 {
			t.logger.Warnf("%s: %d index integrations failed for %s", op, failed, tenant)
		}
	}

	job.Status = domain.JobCompleted
	t.advance(ctx, &job, progressDone,
		fmt.Sprintf("Training completed! %d embeddings processed.", res.TotalEmbeddings))
}

func (t *TrainingUseCase) fineTune(ctx context.Context, tenant string) error {
	if t.fineTuner == nil {
		t.logger.Warnf("fine-tuning is not available, skipping for %s", tenant)
		return nil
	}

	res, err := t.fineTuner.FineTune(ctx, NewFineTuneReq(tenant, t.datasets.TenantDir(tenant)))
	if err != nil {
		return err
	}

	t.logger.Infof("fine-tuned model %s for %s: %d epochs, loss %.4f", res.ModelVersion, tenant, res.Epochs, res.Loss)
	return nil
}

// advance записывает новый прогресс через SetIfProgress: устаревший запуск не перетрёт более новый.
func (t *TrainingUseCase) advance(ctx context.Context, job *domain.TrainingJob, progress int, message string) {
	next := domain.NewTrainingJob(job.TenantKey, job.RunID, job.FineTune, job.Status, progress, message)
	ok, err := t.jobs.SetIfProgress(ctx, next)
	if err != nil {
		t.logger.Errorf(err, "cannot update training status for %s", job.TenantKey)
		return
	}
	if !ok {
		t.logger.Debugf("training status for %s run %s superseded", job.TenantKey, job.RunID)
	}
	*job = *next
}

func (t *TrainingUseCase) fail(ctx context.Context, job domain.TrainingJob, err error) {
	t.logger.Errorf(err, "training failed for %s, run %s", job.TenantKey, job.RunID)

	failed := domain.NewTrainingJob(job.TenantKey, job.RunID, job.FineTune, domain.JobError, job.Progress, err.Error())
	if _, err := t.jobs.SetIfProgress(ctx, failed); err != nil {
		t.logger.Errorf(err, "cannot record training failure for %s", job.TenantKey)
	}
}
