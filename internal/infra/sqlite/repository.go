package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/woshiliyana/video-keyframe-extractor/internal/domain/entity"
)

const schema = `
PRAGMA journal_mode = WAL;
PRAGMA synchronous = NORMAL;

CREATE TABLE IF NOT EXISTS keyframe_jobs (
    id             TEXT PRIMARY KEY,
    video_key      TEXT NOT NULL,
    original_name  TEXT NOT NULL DEFAULT '',
    file_size      INTEGER NOT NULL DEFAULT 0,
    threshold      REAL NOT NULL,
    edge_threshold REAL NOT NULL,
    hist_threshold REAL NOT NULL,
    status         TEXT NOT NULL,
    keyframes      TEXT NOT NULL DEFAULT '[]', -- JSON array of file names
    archive_key    TEXT NOT NULL DEFAULT '',
    frame_count    INTEGER NOT NULL DEFAULT 0,
    video_duration REAL NOT NULL DEFAULT 0,
    attempt        INTEGER NOT NULL DEFAULT 0,
    max_attempts   INTEGER NOT NULL DEFAULT 1,
    error_message  TEXT NOT NULL DEFAULT '',
    notify_email   TEXT NOT NULL DEFAULT '',
    created_at     TEXT NOT NULL,
    updated_at     TEXT NOT NULL,
    completed_at   TEXT
);

CREATE INDEX IF NOT EXISTS idx_keyframe_jobs_status ON keyframe_jobs (status);
`

// JobRepository stores jobs in a single SQLite file.
type JobRepository struct {
	db *sql.DB
}

func Open(path string) (*JobRepository, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return &JobRepository{db: db}, nil
}

func (r *JobRepository) Close() error {
	return r.db.Close()
}

func (r *JobRepository) Create(ctx context.Context, job *entity.Job) error {
	keyframes, err := encodeKeyframes(job.Keyframes)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO keyframe_jobs (
			id, video_key, original_name, file_size,
			threshold, edge_threshold, hist_threshold,
			status, keyframes, archive_key, frame_count, video_duration,
			attempt, max_attempts, error_message, notify_email,
			created_at, updated_at, completed_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		job.ID.String(), job.VideoKey, job.OriginalName, job.FileSize,
		job.Thresholds.FrameDiff, job.Thresholds.Edge, job.Thresholds.Histogram,
		string(job.Status), keyframes, job.ArchiveKey, job.FrameCount, job.VideoDuration,
		job.Attempt, job.MaxAttempts, job.ErrorMessage, job.NotifyEmail,
		formatTime(job.CreatedAt), formatTime(job.UpdatedAt), formatTimePtr(job.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (r *JobRepository) Update(ctx context.Context, job *entity.Job) error {
	keyframes, err := encodeKeyframes(job.Keyframes)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE keyframe_jobs SET
			status=?, keyframes=?, archive_key=?, frame_count=?, video_duration=?,
			attempt=?, error_message=?, updated_at=?, completed_at=?
		WHERE id=?`,
		string(job.Status), keyframes, job.ArchiveKey, job.FrameCount, job.VideoDuration,
		job.Attempt, job.ErrorMessage, formatTime(job.UpdatedAt), formatTimePtr(job.CompletedAt),
		job.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update job %s: %w", job.ID, entity.ErrJobNotFound)
	}
	return nil
}

func (r *JobRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, video_key, original_name, file_size,
			threshold, edge_threshold, hist_threshold,
			status, keyframes, archive_key, frame_count, video_duration,
			attempt, max_attempts, error_message, notify_email,
			created_at, updated_at, completed_at
		FROM keyframe_jobs WHERE id=?`, id.String())

	job := &entity.Job{}
	var (
		rawID, status, keyframes, createdAt, updatedAt string
		completedAt                                    sql.NullString
	)
	err := row.Scan(
		&rawID, &job.VideoKey, &job.OriginalName, &job.FileSize,
		&job.Thresholds.FrameDiff, &job.Thresholds.Edge, &job.Thresholds.Histogram,
		&status, &keyframes, &job.ArchiveKey, &job.FrameCount, &job.VideoDuration,
		&job.Attempt, &job.MaxAttempts, &job.ErrorMessage, &job.NotifyEmail,
		&createdAt, &updatedAt, &completedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find job by id: %w", err)
	}

	if job.ID, err = uuid.Parse(rawID); err != nil {
		return nil, fmt.Errorf("parse job id: %w", err)
	}
	job.Status = entity.JobStatus(status)
	if err := json.Unmarshal([]byte(keyframes), &job.Keyframes); err != nil {
		return nil, fmt.Errorf("decode keyframes: %w", err)
	}
	if job.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if job.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if completedAt.Valid {
		t, err := parseTime(completedAt.String)
		if err != nil {
			return nil, err
		}
		job.CompletedAt = &t
	}
	return job, nil
}

func encodeKeyframes(k []string) (string, error) {
	if k == nil {
		k = []string{}
	}
	b, err := json.Marshal(k)
	if err != nil {
		return "", fmt.Errorf("encode keyframes: %w", err)
	}
	return string(b), nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}
