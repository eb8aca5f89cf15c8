package api

import (
	"context"
	"io"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/woshiliyana/video-keyframe-extractor/internal/domain/entity"
	"github.com/woshiliyana/video-keyframe-extractor/internal/usecase"
)

type Extractor interface {
	Execute(ctx context.Context, in usecase.ExtractInput) (entity.ProcessResult, error)
}

type OutputArchive interface {
	WriteArchive(ctx context.Context, w io.Writer) error
	OpenKeyframe(name string) (io.ReadCloser, error)
}

type JobSubmitter interface {
	Execute(ctx context.Context, in usecase.SubmitJobInput) (*entity.Job, error)
}

type JobQuery interface {
	Get(ctx context.Context, id uuid.UUID) (*entity.Job, error)
	OpenKeyframe(ctx context.Context, id uuid.UUID, name string) (io.ReadCloser, error)
	OpenArchive(ctx context.Context, id uuid.UUID) (io.ReadCloser, error)
}

type Config struct {
	MaxUploadBytes    int64
	AllowedTypes      []string
	AllowedOrigins    []string
	DefaultThresholds entity.Thresholds
}

// Server exposes the extraction use cases over HTTP. Jobs, Query and Progress
// are optional; their routes are only registered when set.
type Server struct {
	cfg      Config
	extract  Extractor
	archive  OutputArchive
	jobs     JobSubmitter
	query    JobQuery
	progress http.HandlerFunc
	logger   *zap.Logger
}

type Deps struct {
	Extract  Extractor
	Archive  OutputArchive
	Jobs     JobSubmitter
	Query    JobQuery
	Progress http.HandlerFunc
}

func NewServer(cfg Config, deps Deps, logger *zap.Logger) *Server {
	return &Server{
		cfg:      cfg,
		extract:  deps.Extract,
		archive:  deps.Archive,
		jobs:     deps.Jobs,
		query:    deps.Query,
		progress: deps.Progress,
		logger:   logger,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /api/process", s.handleProcess)
	mux.HandleFunc("GET /api/download", s.handleDownload)
	mux.HandleFunc("GET /output/{name}", s.handleOutputKeyframe)

	if s.jobs != nil {
		mux.HandleFunc("POST /api/jobs", s.handleSubmitJob)
	}
	if s.query != nil {
		mux.HandleFunc("GET /api/jobs/{id}", s.handleGetJob)
		mux.HandleFunc("GET /api/jobs/{id}/keyframes/{name}", s.handleJobKeyframe)
		mux.HandleFunc("GET /api/jobs/{id}/download", s.handleJobDownload)
	}
	if s.progress != nil {
		mux.HandleFunc("GET /api/progress", s.progress)
	}

	return s.withCORS(s.withLogging(mux))
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok", "message": "Video Keyframe Extractor API"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "healthy"})
}
