package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/woshiliyana/video-keyframe-extractor/internal/domain/entity"
	"github.com/woshiliyana/video-keyframe-extractor/internal/domain/port"
)

// JobRepository keeps jobs in process memory. Stored jobs are copies, so
// callers may keep mutating the values they pass in.
type JobRepository struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*entity.Job
}

func NewJobRepository() *JobRepository {
	return &JobRepository{
		jobs: make(map[uuid.UUID]*entity.Job),
	}
}

func (r *JobRepository) Create(ctx context.Context, job *entity.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[job.ID]; exists {
		return fmt.Errorf("insert job: duplicate id %s", job.ID)
	}
	r.jobs[job.ID] = clone(job)
	return nil
}

func (r *JobRepository) Update(ctx context.Context, job *entity.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[job.ID]; !exists {
		return fmt.Errorf("update job %s: %w", job.ID, entity.ErrJobNotFound)
	}
	r.jobs[job.ID] = clone(job)
	return nil
}

func (r *JobRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, exists := r.jobs[id]
	if !exists {
		return nil, entity.ErrJobNotFound
	}
	return clone(job), nil
}

func clone(job *entity.Job) *entity.Job {
	c := *job
	c.Keyframes = slices.Clone(job.Keyframes)
	if job.CompletedAt != nil {
		t := *job.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

var _ port.JobRepository = (*JobRepository)(nil)
