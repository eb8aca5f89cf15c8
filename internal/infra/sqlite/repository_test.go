package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/woshiliyana/video-keyframe-extractor/internal/domain/entity"
)

func openRepo(t *testing.T) *JobRepository {
	t.Helper()
	repo, err := Open(filepath.Join(t.TempDir(), "data", "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestJobRepositoryLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)

	job := entity.NewJob("videos/a.mp4", "a.mp4", 2048, entity.Thresholds{FrameDiff: 12, Edge: 45, Histogram: 3000}, 3)
	require.NoError(t, repo.Create(ctx, job))

	got, err := repo.FindByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, entity.JobStatusPending, got.Status)
	assert.Equal(t, job.Thresholds, got.Thresholds)
	assert.Equal(t, int64(2048), got.FileSize)
	assert.Empty(t, got.Keyframes)
	assert.True(t, job.CreatedAt.Equal(got.CreatedAt))
	assert.Nil(t, got.CompletedAt)

	got.MarkProcessing()
	got.MarkCompleted(job.ID.String()+"/keyframes.zip", []string{"keyframe_0.jpg", "keyframe_42.jpg"}, 120, 4.0)
	require.NoError(t, repo.Update(ctx, got))

	done, err := repo.FindByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusCompleted, done.Status)
	assert.Equal(t, []string{"keyframe_0.jpg", "keyframe_42.jpg"}, done.Keyframes)
	assert.Equal(t, 120, done.FrameCount)
	assert.Equal(t, 1, done.Attempt)
	require.NotNil(t, done.CompletedAt)
	assert.True(t, got.CompletedAt.Equal(*done.CompletedAt))
}

func TestJobRepositoryNotFound(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)

	_, err := repo.FindByID(ctx, uuid.New())
	assert.ErrorIs(t, err, entity.ErrJobNotFound)

	err = repo.Update(ctx, entity.NewJob("k", "n", 0, entity.DefaultThresholds(), 1))
	assert.ErrorIs(t, err, entity.ErrJobNotFound)
}

func TestJobRepositoryDuplicateCreate(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)

	job := entity.NewJob("k", "n", 0, entity.DefaultThresholds(), 1)
	require.NoError(t, repo.Create(ctx, job))
	assert.Error(t, repo.Create(ctx, job))
}
