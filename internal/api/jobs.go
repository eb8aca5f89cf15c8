package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/woshiliyana/video-keyframe-extractor/internal/domain/entity"
	"github.com/woshiliyana/video-keyframe-extractor/internal/domain/port"
	"github.com/woshiliyana/video-keyframe-extractor/internal/usecase"
)

type jobView struct {
	JobID        uuid.UUID         `json:"job_id"`
	Status       entity.JobStatus  `json:"status"`
	OriginalName string            `json:"original_name"`
	Thresholds   entity.Thresholds `json:"thresholds"`
	Keyframes    []string          `json:"keyframes"`
	DownloadURL  string            `json:"download_url,omitempty"`
	FrameCount   int               `json:"frame_count"`
	Duration     float64           `json:"duration_seconds"`
	Attempt      int               `json:"attempt"`
	MaxAttempts  int               `json:"max_attempts"`
	ErrorMessage string            `json:"error_message,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
}

func newJobView(job *entity.Job) jobView {
	base := "/api/jobs/" + job.ID.String()
	v := jobView{
		JobID:        job.ID,
		Status:       job.Status,
		OriginalName: job.OriginalName,
		Thresholds:   job.Thresholds,
		Keyframes:    make([]string, 0, len(job.Keyframes)),
		FrameCount:   job.FrameCount,
		Duration:     job.VideoDuration,
		Attempt:      job.Attempt,
		MaxAttempts:  job.MaxAttempts,
		ErrorMessage: job.ErrorMessage,
		CreatedAt:    job.CreatedAt,
		CompletedAt:  job.CompletedAt,
	}
	for _, name := range job.Keyframes {
		v.Keyframes = append(v.Keyframes, base+"/keyframes/"+name)
	}
	if job.Status == entity.JobStatusCompleted {
		v.DownloadURL = base + "/download"
	}
	return v
}

func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	up, status, err := s.parseUpload(w, r)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}
	defer up.Close()

	job, err := s.jobs.Execute(r.Context(), usecase.SubmitJobInput{
		Video:       up.file,
		Size:        up.header.Size,
		Filename:    up.header.Filename,
		Thresholds:  up.thresholds,
		NotifyEmail: r.FormValue("notify_email"),
	})
	switch {
	case errors.Is(err, entity.ErrInvalidThresholds):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, port.ErrQueueFull), errors.Is(err, port.ErrDispatcherDown):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		s.logger.Error("failed to submit job", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to submit job")
		return
	}

	w.Header().Set("Location", "/api/jobs/"+job.ID.String())
	writeJSONWithStatus(w, map[string]any{"job_id": job.ID, "status": job.Status}, http.StatusAccepted)
}

func (s *Server) jobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := s.jobID(w, r)
	if !ok {
		return
	}
	job, err := s.query.Get(r.Context(), id)
	if err != nil {
		s.writeQueryError(w, err)
		return
	}
	writeJSON(w, newJobView(job))
}

func (s *Server) handleJobKeyframe(w http.ResponseWriter, r *http.Request) {
	id, ok := s.jobID(w, r)
	if !ok {
		return
	}
	rc, err := s.query.OpenKeyframe(r.Context(), id, r.PathValue("name"))
	if err != nil {
		s.writeQueryError(w, err)
		return
	}
	serveFile(w, rc, "image/jpeg", "")
}

func (s *Server) handleJobDownload(w http.ResponseWriter, r *http.Request) {
	id, ok := s.jobID(w, r)
	if !ok {
		return
	}
	rc, err := s.query.OpenArchive(r.Context(), id)
	if err != nil {
		s.writeQueryError(w, err)
		return
	}
	serveFile(w, rc, "application/zip", "keyframes_"+id.String()+".zip")
}

func (s *Server) writeQueryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, entity.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, entity.ErrKeyframeNotFound):
		writeError(w, http.StatusNotFound, "keyframe not found")
	case errors.Is(err, entity.ErrJobNotReady):
		writeError(w, http.StatusConflict, "job not completed")
	default:
		s.logger.Error("job query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
