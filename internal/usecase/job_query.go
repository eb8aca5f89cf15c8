package usecase

import (
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/google/uuid"

	"github.com/woshiliyana/video-keyframe-extractor/internal/domain/entity"
	"github.com/woshiliyana/video-keyframe-extractor/internal/domain/port"
)

// JobQueryUseCase serves job state and the artifacts of completed jobs.
type JobQueryUseCase struct {
	repo      port.JobRepository
	artifacts port.ArtifactStore
}

func NewJobQueryUseCase(repo port.JobRepository, artifacts port.ArtifactStore) *JobQueryUseCase {
	return &JobQueryUseCase{repo: repo, artifacts: artifacts}
}

func (uc *JobQueryUseCase) Get(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	job, err := uc.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find job: %w", err)
	}
	return job, nil
}

func (uc *JobQueryUseCase) OpenKeyframe(ctx context.Context, id uuid.UUID, name string) (io.ReadCloser, error) {
	job, err := uc.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != entity.JobStatusCompleted || !slices.Contains(job.Keyframes, name) {
		return nil, entity.ErrKeyframeNotFound
	}
	return uc.artifacts.OpenKeyframe(ctx, job.ID.String(), name)
}

func (uc *JobQueryUseCase) OpenArchive(ctx context.Context, id uuid.UUID) (io.ReadCloser, error) {
	job, err := uc.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != entity.JobStatusCompleted || job.ArchiveKey == "" {
		return nil, entity.ErrJobNotReady
	}
	return uc.artifacts.OpenArchive(ctx, job.ArchiveKey)
}
