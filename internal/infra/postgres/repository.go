package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/woshiliyana/video-keyframe-extractor/internal/domain/entity"
)

type JobRepository struct {
	pool *pgxpool.Pool
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

func (r *JobRepository) Create(ctx context.Context, job *entity.Job) error {
	query := `
		INSERT INTO keyframe_jobs (
			id, video_key, original_name, file_size,
			threshold, edge_threshold, hist_threshold,
			status, keyframes, archive_key, frame_count, video_duration,
			attempt, max_attempts, error_message, notify_email,
			created_at, updated_at, completed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`

	_, err := r.pool.Exec(ctx, query,
		job.ID, job.VideoKey, job.OriginalName, job.FileSize,
		job.Thresholds.FrameDiff, job.Thresholds.Edge, job.Thresholds.Histogram,
		string(job.Status), keyframesOrEmpty(job.Keyframes), job.ArchiveKey, job.FrameCount, job.VideoDuration,
		job.Attempt, job.MaxAttempts, job.ErrorMessage, job.NotifyEmail,
		job.CreatedAt, job.UpdatedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (r *JobRepository) Update(ctx context.Context, job *entity.Job) error {
	query := `
		UPDATE keyframe_jobs SET
			status=$2, keyframes=$3, archive_key=$4, frame_count=$5, video_duration=$6,
			attempt=$7, error_message=$8, updated_at=$9, completed_at=$10
		WHERE id=$1`

	tag, err := r.pool.Exec(ctx, query,
		job.ID, string(job.Status), keyframesOrEmpty(job.Keyframes), job.ArchiveKey, job.FrameCount,
		job.VideoDuration, job.Attempt, job.ErrorMessage,
		job.UpdatedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update job %s: %w", job.ID, entity.ErrJobNotFound)
	}
	return nil
}

func (r *JobRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	query := `
		SELECT id, video_key, original_name, file_size,
			threshold, edge_threshold, hist_threshold,
			status, keyframes, archive_key, frame_count, video_duration,
			attempt, max_attempts, error_message, notify_email,
			created_at, updated_at, completed_at
		FROM keyframe_jobs WHERE id=$1`

	job := &entity.Job{}
	var status string
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&job.ID, &job.VideoKey, &job.OriginalName, &job.FileSize,
		&job.Thresholds.FrameDiff, &job.Thresholds.Edge, &job.Thresholds.Histogram,
		&status, &job.Keyframes, &job.ArchiveKey, &job.FrameCount, &job.VideoDuration,
		&job.Attempt, &job.MaxAttempts, &job.ErrorMessage, &job.NotifyEmail,
		&job.CreatedAt, &job.UpdatedAt, &job.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, entity.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find job by id: %w", err)
	}
	job.Status = entity.JobStatus(status)
	return job, nil
}

func keyframesOrEmpty(k []string) []string {
	if k == nil {
		return []string{}
	}
	return k
}
