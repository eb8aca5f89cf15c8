package entity

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrJobNotFound = errors.New("job not found")
	ErrJobNotReady = errors.New("job not completed")
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
)

type Job struct {
	ID            uuid.UUID
	VideoKey      string
	OriginalName  string
	FileSize      int64
	Thresholds    Thresholds
	Status        JobStatus
	Keyframes     []string
	ArchiveKey    string
	FrameCount    int
	VideoDuration float64
	Attempt       int
	MaxAttempts   int
	ErrorMessage  string
	NotifyEmail   string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CompletedAt   *time.Time
}

func NewJob(videoKey, originalName string, fileSize int64, thresholds Thresholds, maxAttempts int) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:           uuid.New(),
		VideoKey:     videoKey,
		OriginalName: originalName,
		FileSize:     fileSize,
		Thresholds:   thresholds,
		Status:       JobStatusPending,
		Keyframes:    []string{},
		Attempt:      0,
		MaxAttempts:  maxAttempts,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func (j *Job) MarkProcessing() {
	j.Status = JobStatusProcessing
	j.Attempt++
	j.ErrorMessage = ""
	j.UpdatedAt = time.Now().UTC()
}

func (j *Job) MarkCompleted(archiveKey string, keyframes []string, frameCount int, duration float64) {
	now := time.Now().UTC()
	j.Status = JobStatusCompleted
	j.ArchiveKey = archiveKey
	j.Keyframes = keyframes
	j.FrameCount = frameCount
	j.VideoDuration = duration
	j.UpdatedAt = now
	j.CompletedAt = &now
}

func (j *Job) MarkFailed(errMsg string) {
	j.Status = JobStatusFailed
	j.ErrorMessage = errMsg
	j.UpdatedAt = time.Now().UTC()
}

func (j *Job) CanRetry() bool {
	return j.Attempt < j.MaxAttempts
}

func (j *Job) Finished() bool {
	return j.Status == JobStatusCompleted || (j.Status == JobStatusFailed && !j.CanRetry())
}
