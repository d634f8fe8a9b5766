package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/DRSN-tech/vision-service/internal/cfg"
	"github.com/DRSN-tech/vision-service/internal/domain"
	"github.com/DRSN-tech/vision-service/internal/repository/redis/converter"
	"github.com/DRSN-tech/vision-service/pkg/clients"
	"github.com/DRSN-tech/vision-service/pkg/e"
	"github.com/DRSN-tech/vision-service/pkg/logger"
	"github.com/jimlawless/whereami"
	goredis "github.com/redis/go-redis/v9"
)

const maxCASAttempts = 5

var ErrCASConflict = errors.New("training status changed concurrently")

// JobStatusRepo хранит состояние задач обучения в Redis (JSON с TTL),
// чтобы несколько реплик сервиса видели один и тот же статус.
type JobStatusRepo struct {
	client *clients.RedisClient
	conv   converter.TrainingJobConverter
	cfg    *cfg.RedisCfg
	jobs   *cfg.JobsCfg
	logger logger.Logger
}

func NewJobStatusRepo(client *clients.RedisClient, cfg *cfg.RedisCfg, jobs *cfg.JobsCfg, logger logger.Logger) *JobStatusRepo {
	return &JobStatusRepo{
		client: client,
		cfg:    cfg,
		jobs:   jobs,
		logger: logger,
	}
}

func (r *JobStatusRepo) Get(ctx context.Context, tenant string) (*domain.TrainingJob, bool, error) {
	data, err := r.client.Client.Get(ctx, r.jobKey(tenant)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, false, nil
		}
		return nil, false, e.Wrap(whereami.WhereAmI(), err)
	}

	job, err := r.unmarshalJob(data)
	if err != nil {
		r.logger.Warnf("Redis unmarshal failed for %s: %v", tenant, e.Wrap(whereami.WhereAmI(), err))
		return nil, false, nil
	}

	return job, true, nil
}

func (r *JobStatusRepo) Set(ctx context.Context, job *domain.TrainingJob) error {
	data, err := r.marshalJob(job)
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	if err := r.client.Client.Set(ctx, r.jobKey(job.TenantKey), data, r.jobs.StatusTTL).Err(); err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}
	return nil
}

// SetIfProgress выполняет compare-and-swap через WATCH/MULTI.
// При конкурентной записи попытка повторяется до maxCASAttempts раз.
func (r *JobStatusRepo) SetIfProgress(ctx context.Context, job *domain.TrainingJob) (bool, error) {
	key := r.jobKey(job.TenantKey)

	data, err := r.marshalJob(job)
	if err != nil {
		return false, e.Wrap(whereami.WhereAmI(), err)
	}

	var applied bool
	txf := func(tx *goredis.Tx) error {
		applied = false

		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil && !errors.Is(err, goredis.Nil) {
			return err
		}
		if err == nil {
			current, err := r.unmarshalJob(raw)
			if err == nil && !current.CanAdvanceTo(job) {
				return nil
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, data, r.jobs.StatusTTL)
			return nil
		})
		if err == nil {
			applied = true
		}
		return err
	}

	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		err := r.client.Client.Watch(ctx, txf, key)
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		if err != nil {
			return false, e.Wrap(whereami.WhereAmI(), err)
		}
		return applied, nil
	}

	return false, e.Wrap(whereami.WhereAmI(), ErrCASConflict)
}

func (r *JobStatusRepo) marshalJob(job *domain.TrainingJob) ([]byte, error) {
	return json.Marshal(r.conv.ToRedisModel(job))
}

func (r *JobStatusRepo) unmarshalJob(data []byte) (*domain.TrainingJob, error) {
	var model converter.TrainingJobRedisModel
	if err := json.Unmarshal(data, &model); err != nil {
		return nil, err
	}
	return r.conv.ToDomain(&model), nil
}

// jobKey возвращает Redis-ключ статуса продавца
func (r *JobStatusRepo) jobKey(tenant string) string {
	return fmt.Sprintf("%s:%s", r.cfg.KeyPrefix, tenant)
}
