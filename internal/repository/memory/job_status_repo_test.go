package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/DRSN-tech/vision-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobStatusRepo_GetMissing(t *testing.T) {
	_, ok, err := NewJobStatusRepo().Get(context.Background(), "seller_1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestJobStatusRepo_SetIfProgress(t *testing.T) {
	ctx := context.Background()
	r := NewJobStatusRepo()

	require.NoError(t, r.Set(ctx, domain.NewTrainingJob("seller_1", "run-a", false, domain.JobTraining, 0, "queued")))

	ok, err := r.SetIfProgress(ctx, domain.NewTrainingJob("seller_1", "run-a", false, domain.JobTraining, 50, "building"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.SetIfProgress(ctx, domain.NewTrainingJob("seller_1", "run-a", false, domain.JobTraining, 10, "late"))
	require.NoError(t, err)
	assert.False(t, ok, "progress must not go backwards")

	ok, err = r.SetIfProgress(ctx, domain.NewTrainingJob("seller_1", "run-old", false, domain.JobTraining, 90, "stale"))
	require.NoError(t, err)
	assert.False(t, ok, "a superseded run must not overwrite the current one")

	ok, err = r.SetIfProgress(ctx, domain.NewTrainingJob("seller_1", "run-a", false, domain.JobCompleted, 100, "done"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.SetIfProgress(ctx, domain.NewTrainingJob("seller_1", "run-a", false, domain.JobError, 100, "after done"))
	require.NoError(t, err)
	assert.False(t, ok, "terminal state is final for a run")

	job, found, err := r.Get(ctx, "seller_1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, domain.JobCompleted, job.Status)
	assert.Equal(t, 100, job.Progress)
}

func TestJobStatusRepo_SetOverwritesPreviousRun(t *testing.T) {
	ctx := context.Background()
	r := NewJobStatusRepo()

	require.NoError(t, r.Set(ctx, domain.NewTrainingJob("seller_1", "run-a", false, domain.JobCompleted, 100, "done")))
	require.NoError(t, r.Set(ctx, domain.NewTrainingJob("seller_1", "run-b", true, domain.JobTraining, 0, "queued")))

	job, _, err := r.Get(ctx, "seller_1")
	require.NoError(t, err)
	assert.Equal(t, "run-b", job.RunID)
	assert.Equal(t, 0, job.Progress)
}

func TestJobStatusRepo_ConcurrentProgressIsMonotonic(t *testing.T) {
	ctx := context.Background()
	r := NewJobStatusRepo()
	require.NoError(t, r.Set(ctx, domain.NewTrainingJob("seller_1", "run", false, domain.JobTraining, 0, "")))

	var wg sync.WaitGroup
	for p := 1; p <= 99; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.SetIfProgress(ctx, domain.NewTrainingJob("seller_1", "run", false, domain.JobTraining, p, ""))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	job, _, err := r.Get(ctx, "seller_1")
	require.NoError(t, err)
	assert.Equal(t, 99, job.Progress)
}
