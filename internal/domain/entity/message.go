package entity

import "github.com/google/uuid"

// KeyframeJobMessage is the payload dispatched for asynchronous processing.
type KeyframeJobMessage struct {
	JobID        uuid.UUID  `json:"job_id"`
	VideoKey     string     `json:"video_key"`
	OriginalName string     `json:"original_name"`
	FileSize     int64      `json:"file_size"`
	Thresholds   Thresholds `json:"thresholds"`
	NotifyEmail  string     `json:"notify_email,omitempty"`
}

// JobStatusMessage is published whenever a job changes state.
type JobStatusMessage struct {
	JobID         uuid.UUID `json:"job_id"`
	Status        JobStatus `json:"status"`
	VideoKey      string    `json:"video_key"`
	ArchiveKey    string    `json:"archive_key,omitempty"`
	KeyframeCount int       `json:"keyframe_count"`
	FrameCount    int       `json:"frame_count,omitempty"`
	Duration      float64   `json:"duration_seconds,omitempty"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	Attempt       int       `json:"attempt"`
	MaxAttempts   int       `json:"max_attempts"`
}

func NewJobStatusMessage(job *Job) JobStatusMessage {
	return JobStatusMessage{
		JobID:         job.ID,
		Status:        job.Status,
		VideoKey:      job.VideoKey,
		ArchiveKey:    job.ArchiveKey,
		KeyframeCount: len(job.Keyframes),
		FrameCount:    job.FrameCount,
		Duration:      job.VideoDuration,
		ErrorMessage:  job.ErrorMessage,
		Attempt:       job.Attempt,
		MaxAttempts:   job.MaxAttempts,
	}
}
