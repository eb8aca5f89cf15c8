package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/woshiliyana/video-keyframe-extractor/internal/domain/entity"
	"github.com/woshiliyana/video-keyframe-extractor/internal/domain/port"
	"github.com/woshiliyana/video-keyframe-extractor/internal/usecase"
)

type fakeExtractor struct {
	in     usecase.ExtractInput
	body   string
	result entity.ProcessResult
	err    error
}

func (f *fakeExtractor) Execute(_ context.Context, in usecase.ExtractInput) (entity.ProcessResult, error) {
	f.in = in
	data, _ := io.ReadAll(in.Video)
	f.body = string(data)
	if f.err != nil {
		return entity.FailedResult(f.err.Error()), f.err
	}
	return f.result, nil
}

type fakeArchive struct {
	files map[string]string
}

func (f *fakeArchive) WriteArchive(_ context.Context, w io.Writer) error {
	_, err := io.WriteString(w, "PK-archive")
	return err
}

func (f *fakeArchive) OpenKeyframe(name string) (io.ReadCloser, error) {
	data, ok := f.files[name]
	if !ok {
		return nil, entity.ErrKeyframeNotFound
	}
	return io.NopCloser(strings.NewReader(data)), nil
}

type fakeJobs struct {
	in  usecase.SubmitJobInput
	job *entity.Job
	err error
}

func (f *fakeJobs) Execute(_ context.Context, in usecase.SubmitJobInput) (*entity.Job, error) {
	f.in = in
	return f.job, f.err
}

type fakeQuery struct {
	jobs map[uuid.UUID]*entity.Job
}

func (f *fakeQuery) Get(_ context.Context, id uuid.UUID) (*entity.Job, error) {
	job, ok := f.jobs[id]
	if !ok {
		return nil, entity.ErrJobNotFound
	}
	return job, nil
}

func (f *fakeQuery) OpenKeyframe(ctx context.Context, id uuid.UUID, name string) (io.ReadCloser, error) {
	job, err := f.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, k := range job.Keyframes {
		if k == name {
			return io.NopCloser(strings.NewReader("jpeg:" + name)), nil
		}
	}
	return nil, entity.ErrKeyframeNotFound
}

func (f *fakeQuery) OpenArchive(ctx context.Context, id uuid.UUID) (io.ReadCloser, error) {
	job, err := f.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != entity.JobStatusCompleted {
		return nil, entity.ErrJobNotReady
	}
	return io.NopCloser(strings.NewReader("PK-job")), nil
}

type fixture struct {
	extract *fakeExtractor
	archive *fakeArchive
	jobs    *fakeJobs
	query   *fakeQuery
	handler http.Handler
}

func newFixture(maxBytes int64) *fixture {
	f := &fixture{
		extract: &fakeExtractor{result: entity.ProcessResult{Success: true, Keyframes: []string{"/output/keyframe_0.jpg"}}},
		archive: &fakeArchive{files: map[string]string{"keyframe_0.jpg": "jpeg-bytes"}},
		jobs:    &fakeJobs{},
		query:   &fakeQuery{jobs: map[uuid.UUID]*entity.Job{}},
	}
	srv := NewServer(Config{
		MaxUploadBytes:    maxBytes,
		AllowedTypes:      []string{"video/*"},
		AllowedOrigins:    []string{"http://localhost:3000"},
		DefaultThresholds: entity.DefaultThresholds(),
	}, Deps{
		Extract: f.extract,
		Archive: f.archive,
		Jobs:    f.jobs,
		Query:   f.query,
	}, zap.NewNop())
	f.handler = srv.Handler()
	return f
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func multipartRequest(t *testing.T, target, contentType string, video []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if video != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="video"; filename="clip.mp4"`)
		if contentType != "" {
			h.Set("Content-Type", contentType)
		}
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(video)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestRootAndHealth(t *testing.T) {
	f := newFixture(1 << 20)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","message":"Video Keyframe Extractor API"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = f.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())

	rec = f.do(httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProcessUsesFormThresholdsWithDefaults(t *testing.T) {
	f := newFixture(1 << 20)

	rec := f.do(multipartRequest(t, "/api/process", "video/mp4", []byte("video-data"), map[string]string{
		"threshold":      "12",
		"hist_threshold": "2500.5",
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	res := decode[entity.ProcessResult](t, rec)
	assert.True(t, res.Success)
	assert.Equal(t, []string{"/output/keyframe_0.jpg"}, res.Keyframes)

	assert.Equal(t, entity.Thresholds{FrameDiff: 12, Edge: 50, Histogram: 2500.5}, f.extract.in.Thresholds)
	assert.Equal(t, "clip.mp4", f.extract.in.Filename)
	assert.Equal(t, "video-data", f.extract.body)
}

func TestProcessValidation(t *testing.T) {
	tests := []struct {
		name   string
		req    func(t *testing.T) *http.Request
		status int
	}{
		{
			name: "missing video",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/api/process", "", nil, map[string]string{"threshold": "10"})
			},
			status: http.StatusBadRequest,
		},
		{
			name: "unsupported type",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/api/process", "image/png", []byte("x"), nil)
			},
			status: http.StatusUnsupportedMediaType,
		},
		{
			name: "webm accepted",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/api/process", "video/webm", []byte("x"), nil)
			},
			status: http.StatusOK,
		},
		{
			name: "matroska accepted",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/api/process", "video/x-matroska", []byte("x"), nil)
			},
			status: http.StatusOK,
		},
		{
			name: "mpeg with parameters accepted",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/api/process", "video/mpeg; codecs=mp2v", []byte("x"), nil)
			},
			status: http.StatusOK,
		},
		{
			name: "audio rejected",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/api/process", "audio/mpeg", []byte("x"), nil)
			},
			status: http.StatusUnsupportedMediaType,
		},
		{
			name: "octet stream accepted by extension-less clients",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/api/process", "application/octet-stream", []byte("x"), nil)
			},
			status: http.StatusOK,
		},
		{
			name: "threshold not a number",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/api/process", "video/mp4", []byte("x"), map[string]string{"edge_threshold": "abc"})
			},
			status: http.StatusBadRequest,
		},
		{
			name: "negative threshold",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/api/process", "video/mp4", []byte("x"), map[string]string{"threshold": "-1"})
			},
			status: http.StatusBadRequest,
		},
		{
			name: "infinite threshold",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/api/process", "video/mp4", []byte("x"), map[string]string{"hist_threshold": "Inf"})
			},
			status: http.StatusBadRequest,
		},
		{
			name: "body too large",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/api/process", "video/mp4", bytes.Repeat([]byte("v"), 8192), nil)
			},
			status: http.StatusRequestEntityTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(4096)
			rec := f.do(tt.req(t))
			require.Equal(t, tt.status, rec.Code, rec.Body.String())

			res := decode[entity.ProcessResult](t, rec)
			assert.Equal(t, tt.status == http.StatusOK, res.Success)
			assert.NotNil(t, res.Keyframes)
		})
	}
}

func TestAllowedType(t *testing.T) {
	s := &Server{cfg: Config{AllowedTypes: []string{"video/mp4", " Video/QuickTime", "image/*"}}}

	assert.True(t, s.allowedType(""))
	assert.True(t, s.allowedType("application/octet-stream"))
	assert.True(t, s.allowedType("video/mp4"))
	assert.True(t, s.allowedType("video/quicktime"))
	assert.True(t, s.allowedType("image/gif"))
	assert.False(t, s.allowedType("video/webm"))
	assert.False(t, s.allowedType("imagex/gif"))
	assert.False(t, s.allowedType("not a type;;"))

	wildcard := &Server{cfg: Config{AllowedTypes: []string{"*/*"}}}
	assert.True(t, wildcard.allowedType("text/plain"))
}

func TestProcessExtractionErrors(t *testing.T) {
	f := newFixture(1 << 20)

	f.extract.err = fmt.Errorf("extract keyframes: probe video: %w", entity.ErrNoVideoStream)
	rec := f.do(multipartRequest(t, "/api/process", "video/mp4", []byte("x"), nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	res := decode[entity.ProcessResult](t, rec)
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "no video stream")

	f.extract.err = fmt.Errorf("extract keyframes: %w: 16384x16384", entity.ErrFrameTooLarge)
	rec = f.do(multipartRequest(t, "/api/process", "video/mp4", []byte("x"), nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.extract.err = errors.New("disk full")
	rec = f.do(multipartRequest(t, "/api/process", "video/mp4", []byte("x"), nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "disk full", decode[entity.ProcessResult](t, rec).Message)
}

func TestDownloadAndOutput(t *testing.T) {
	f := newFixture(1 << 20)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/download", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="keyframes.zip"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "PK-archive", rec.Body.String())

	rec = f.do(httptest.NewRequest(http.MethodGet, "/output/keyframe_0.jpg", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, "jpeg-bytes", rec.Body.String())

	rec = f.do(httptest.NewRequest(http.MethodGet, "/output/keyframe_7.jpg", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSubmitJob(t *testing.T) {
	f := newFixture(1 << 20)
	job := entity.NewJob("videos/x.mp4", "clip.mp4", 5, entity.DefaultThresholds(), 3)
	f.jobs.job = job

	rec := f.do(multipartRequest(t, "/api/jobs", "video/quicktime", []byte("12345"), map[string]string{
		"edge_threshold": "45",
		"notify_email":   "me@example.com",
	}))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Equal(t, "/api/jobs/"+job.ID.String(), rec.Header().Get("Location"))

	body := decode[map[string]string](t, rec)
	assert.Equal(t, job.ID.String(), body["job_id"])
	assert.Equal(t, "PENDING", body["status"])
	assert.Equal(t, int64(5), f.jobs.in.Size)
	assert.Equal(t, 45.0, f.jobs.in.Thresholds.Edge)
	assert.Equal(t, "me@example.com", f.jobs.in.NotifyEmail)

	f.jobs.err = fmt.Errorf("dispatch job: %w", port.ErrQueueFull)
	rec = f.do(multipartRequest(t, "/api/jobs", "video/mp4", []byte("1"), nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	f.jobs.err = fmt.Errorf("dispatch job: worker pool: %w", port.ErrDispatcherDown)
	rec = f.do(multipartRequest(t, "/api/jobs", "video/mp4", []byte("1"), nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestJobQueries(t *testing.T) {
	f := newFixture(1 << 20)

	done := entity.NewJob("videos/a.mp4", "a.mp4", 1, entity.DefaultThresholds(), 3)
	done.MarkProcessing()
	done.MarkCompleted(done.ID.String()+"/keyframes.zip", []string{"keyframe_0.jpg", "keyframe_40.jpg"}, 80, 3.2)
	pending := entity.NewJob("videos/b.mp4", "b.mp4", 1, entity.DefaultThresholds(), 3)
	f.query.jobs[done.ID] = done
	f.query.jobs[pending.ID] = pending

	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/jobs/"+done.ID.String(), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var view struct {
		Status      string    `json:"status"`
		Keyframes   []string  `json:"keyframes"`
		DownloadURL string    `json:"download_url"`
		FrameCount  int       `json:"frame_count"`
		CreatedAt   time.Time `json:"created_at"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	base := "/api/jobs/" + done.ID.String()
	assert.Equal(t, "COMPLETED", view.Status)
	assert.Equal(t, []string{base + "/keyframes/keyframe_0.jpg", base + "/keyframes/keyframe_40.jpg"}, view.Keyframes)
	assert.Equal(t, base+"/download", view.DownloadURL)
	assert.Equal(t, 80, view.FrameCount)

	rec = f.do(httptest.NewRequest(http.MethodGet, base+"/keyframes/keyframe_40.jpg", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "jpeg:keyframe_40.jpg", rec.Body.String())

	rec = f.do(httptest.NewRequest(http.MethodGet, base+"/keyframes/keyframe_41.jpg", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(httptest.NewRequest(http.MethodGet, base+"/download", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), done.ID.String())

	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/jobs/"+pending.ID.String()+"/download", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/jobs/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/jobs/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCORS(t *testing.T) {
	f := newFixture(1 << 20)

	req := httptest.NewRequest(http.MethodOptions, "/api/process", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := f.do(req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = f.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
