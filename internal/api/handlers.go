package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/woshiliyana/video-keyframe-extractor/internal/domain/entity"
	"github.com/woshiliyana/video-keyframe-extractor/internal/usecase"
)

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	up, status, err := s.parseUpload(w, r)
	if err != nil {
		writeJSONWithStatus(w, entity.FailedResult(err.Error()), status)
		return
	}
	defer up.Close()

	result, err := s.extract.Execute(r.Context(), usecase.ExtractInput{
		Video:      up.file,
		Filename:   up.header.Filename,
		Thresholds: up.thresholds,
	})
	if err != nil {
		writeJSONWithStatus(w, result, processStatus(err))
		return
	}
	writeJSON(w, result)
}

func processStatus(err error) int {
	switch {
	case errors.Is(err, entity.ErrInvalidThresholds), errors.Is(err, entity.ErrNoVideoStream), errors.Is(err, entity.ErrFrameTooLarge):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="keyframes.zip"`)
	if err := s.archive.WriteArchive(r.Context(), w); err != nil {
		// Headers may already be on the wire; the truncated body is all we can signal.
		s.logger.Error("failed to write archive", zap.Error(err))
	}
}

func (s *Server) handleOutputKeyframe(w http.ResponseWriter, r *http.Request) {
	rc, err := s.archive.OpenKeyframe(r.PathValue("name"))
	if errors.Is(err, entity.ErrKeyframeNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.logger.Error("failed to open keyframe", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to open keyframe")
		return
	}
	serveFile(w, rc, "image/jpeg", "")
}
