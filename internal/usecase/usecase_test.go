package usecase

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/woshiliyana/video-keyframe-extractor/internal/domain/entity"
	"github.com/woshiliyana/video-keyframe-extractor/internal/domain/port"
	"github.com/woshiliyana/video-keyframe-extractor/internal/infra/ffmpeg"
	"github.com/woshiliyana/video-keyframe-extractor/internal/infra/localfs"
	"github.com/woshiliyana/video-keyframe-extractor/internal/infra/memory"
	"github.com/woshiliyana/video-keyframe-extractor/internal/infra/worker"
)

// fakeExtractor writes one small file per configured frame index.
type fakeExtractor struct {
	mu      sync.Mutex
	indices []int
	err     error
	calls   int
	lastReq port.KeyframeExtractionRequest
}

func (f *fakeExtractor) ExtractKeyframes(_ context.Context, req port.KeyframeExtractionRequest) (*port.KeyframeExtractionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}

	res := &port.KeyframeExtractionResult{FramesRead: 50, FPS: 25, VideoDuration: 2}
	for _, idx := range f.indices {
		name := entity.KeyframeFilename(idx)
		p := filepath.Join(req.OutputDir, name)
		if err := os.WriteFile(p, []byte("jpeg-"+name), 0o644); err != nil {
			return nil, err
		}
		res.Keyframes = append(res.Keyframes, entity.Keyframe{FrameIndex: idx, Filename: name, Path: p})
	}
	return res, nil
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []entity.JobStatusMessage
	err  error
}

func (p *recordingPublisher) PublishStatus(_ context.Context, data []byte) error {
	var m entity.JobStatusMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, m)
	return p.err
}

func (p *recordingPublisher) statuses() []entity.JobStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]entity.JobStatus, 0, len(p.msgs))
	for _, m := range p.msgs {
		out = append(out, m.Status)
	}
	return out
}

type recordingNotifier struct {
	calls []string
}

func (n *recordingNotifier) NotifyFailure(_ context.Context, email, jobID, _, errMsg string) error {
	n.calls = append(n.calls, email+"|"+jobID+"|"+errMsg)
	return nil
}

type recordingProgress struct {
	mu     sync.Mutex
	events []entity.ProgressEvent
}

func (r *recordingProgress) Report(_ context.Context, ev entity.ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

type failingDispatcher struct{ err error }

func (d failingDispatcher) Dispatch(context.Context, entity.KeyframeJobMessage) error { return d.err }

type capturingDispatcher struct{ msgs []entity.KeyframeJobMessage }

func (d *capturingDispatcher) Dispatch(_ context.Context, m entity.KeyframeJobMessage) error {
	d.msgs = append(d.msgs, m)
	return nil
}

func TestExtractKeyframesUseCase(t *testing.T) {
	root := t.TempDir()
	out, err := localfs.NewOutputStore(filepath.Join(root, "output"), filepath.Join(root, "uploads"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(out.Dir(), "keyframe_99.jpg"), []byte("stale"), 0o644))

	ex := &fakeExtractor{indices: []int{0, 15, 29}}
	uc := NewExtractKeyframesUseCase(&sync.RWMutex{}, out, ex, nil, zap.NewNop())

	res, err := uc.Execute(context.Background(), ExtractInput{
		Video:      strings.NewReader("video"),
		Filename:   "clip.MP4",
		Thresholds: entity.DefaultThresholds(),
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, []string{"/output/keyframe_0.jpg", "/output/keyframe_15.jpg", "/output/keyframe_29.jpg"}, res.Keyframes)
	assert.Equal(t, "extracted 3 keyframes", res.Message)

	assert.Equal(t, ".mp4", filepath.Ext(ex.lastReq.VideoPath))
	_, err = os.Stat(ex.lastReq.VideoPath)
	assert.ErrorIs(t, err, os.ErrNotExist, "upload is removed after the run")
	_, err = os.Stat(filepath.Join(out.Dir(), "keyframe_99.jpg"))
	assert.ErrorIs(t, err, os.ErrNotExist, "previous output is cleared")
}

func TestExtractKeyframesUseCaseFailures(t *testing.T) {
	root := t.TempDir()
	out, err := localfs.NewOutputStore(filepath.Join(root, "output"), filepath.Join(root, "uploads"))
	require.NoError(t, err)

	ex := &fakeExtractor{err: errors.New("cannot decode")}
	uc := NewExtractKeyframesUseCase(&sync.RWMutex{}, out, ex, nil, zap.NewNop())

	res, err := uc.Execute(context.Background(), ExtractInput{
		Video:      strings.NewReader("video"),
		Filename:   "clip.mp4",
		Thresholds: entity.DefaultThresholds(),
	})
	require.Error(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "cannot decode")
	assert.Empty(t, res.Keyframes)
	assert.NotNil(t, res.Keyframes)

	res, err = uc.Execute(context.Background(), ExtractInput{
		Video:      strings.NewReader("video"),
		Filename:   "clip.mp4",
		Thresholds: entity.Thresholds{FrameDiff: -1},
	})
	assert.ErrorIs(t, err, entity.ErrInvalidThresholds)
	assert.False(t, res.Success)
	assert.Equal(t, 1, ex.calls, "invalid thresholds never reach the extractor")
}

func TestArchiveUseCase(t *testing.T) {
	root := t.TempDir()
	out, err := localfs.NewOutputStore(filepath.Join(root, "output"), filepath.Join(root, "uploads"))
	require.NoError(t, err)
	lock := &sync.RWMutex{}
	archive := NewArchiveUseCase(lock, out, ffmpeg.NewZipCreator())

	var empty bytes.Buffer
	require.NoError(t, archive.WriteArchive(context.Background(), &empty))
	zr, err := zip.NewReader(bytes.NewReader(empty.Bytes()), int64(empty.Len()))
	require.NoError(t, err)
	assert.Empty(t, zr.File)

	extract := NewExtractKeyframesUseCase(lock, out, &fakeExtractor{indices: []int{12, 0}}, nil, zap.NewNop())
	_, err = extract.Execute(context.Background(), ExtractInput{
		Video:      strings.NewReader("video"),
		Filename:   "clip.mp4",
		Thresholds: entity.DefaultThresholds(),
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, archive.WriteArchive(context.Background(), &buf))
	zr, err = zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	require.Len(t, zr.File, 2)
	assert.Equal(t, "keyframe_0.jpg", zr.File[0].Name)
	assert.Equal(t, "keyframe_12.jpg", zr.File[1].Name)

	rc, err := archive.OpenKeyframe("keyframe_12.jpg")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, "jpeg-keyframe_12.jpg", string(data))

	_, err = archive.OpenKeyframe("../secret.jpg")
	assert.ErrorIs(t, err, entity.ErrKeyframeNotFound)
}

type asyncFixture struct {
	repo      *memory.JobRepository
	videos    *localfs.VideoStorage
	artifacts *localfs.ArtifactStore
	extractor *fakeExtractor
	publisher *recordingPublisher
	dlq       *worker.LogDLQ
	notifier  *recordingNotifier
	progress  *recordingProgress
	process   *ProcessJobUseCase
	query     *JobQueryUseCase
}

func newAsyncFixture(t *testing.T, maxRetries int) *asyncFixture {
	t.Helper()
	root := t.TempDir()
	videos, err := localfs.NewVideoStorage(filepath.Join(root, "videos"))
	require.NoError(t, err)
	artifacts, err := localfs.NewArtifactStore(filepath.Join(root, "artifacts"))
	require.NoError(t, err)

	f := &asyncFixture{
		repo:      memory.NewJobRepository(),
		videos:    videos,
		artifacts: artifacts,
		extractor: &fakeExtractor{indices: []int{0, 20, 49}},
		publisher: &recordingPublisher{},
		dlq:       worker.NewLogDLQ(10, zap.NewNop()),
		notifier:  &recordingNotifier{},
		progress:  &recordingProgress{},
	}
	f.process = NewProcessJobUseCase(ProcessJobDeps{
		Repo:      f.repo,
		Storage:   f.videos,
		Artifacts: f.artifacts,
		Extractor: f.extractor,
		Archiver:  ffmpeg.NewZipCreator(),
		Publisher: f.publisher,
		DLQ:       f.dlq,
		Notifier:  f.notifier,
		Progress:  f.progress,
	}, zap.NewNop(), ProcessJobConfig{TempDir: filepath.Join(root, "tmp"), MaxRetries: maxRetries})
	f.query = NewJobQueryUseCase(f.repo, f.artifacts)
	return f
}

func (f *asyncFixture) submit(t *testing.T, email string) (*entity.Job, []byte) {
	t.Helper()
	d := &capturingDispatcher{}
	uc := NewSubmitJobUseCase(f.repo, f.videos, d, f.publisher, zap.NewNop(), f.process.maxRetry)
	job, err := uc.Execute(context.Background(), SubmitJobInput{
		Video:       strings.NewReader("video-bytes"),
		Size:        11,
		Filename:    "holiday.mov",
		Thresholds:  entity.Thresholds{FrameDiff: 12, Edge: 45, Histogram: 3000},
		NotifyEmail: email,
	})
	require.NoError(t, err)
	require.Len(t, d.msgs, 1)
	body, err := json.Marshal(d.msgs[0])
	require.NoError(t, err)
	return job, body
}

func TestSubmitAndProcessJob(t *testing.T) {
	f := newAsyncFixture(t, 3)
	ctx := context.Background()

	job, body := f.submit(t, "")
	assert.Equal(t, entity.JobStatusPending, job.Status)
	assert.Equal(t, "videos/"+job.ID.String()+".mov", job.VideoKey)

	_, err := f.query.OpenArchive(ctx, job.ID)
	assert.ErrorIs(t, err, entity.ErrJobNotReady)

	require.NoError(t, f.process.Execute(ctx, body))
	assert.Equal(t, entity.Thresholds{FrameDiff: 12, Edge: 45, Histogram: 3000}, f.extractor.lastReq.Thresholds)

	got, err := f.query.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusCompleted, got.Status)
	assert.Equal(t, []string{"keyframe_0.jpg", "keyframe_20.jpg", "keyframe_49.jpg"}, got.Keyframes)
	assert.Equal(t, 50, got.FrameCount)
	assert.Equal(t, 1, got.Attempt)

	rc, err := f.query.OpenKeyframe(ctx, job.ID, "keyframe_20.jpg")
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "jpeg-keyframe_20.jpg", string(data))

	_, err = f.query.OpenKeyframe(ctx, job.ID, "keyframe_21.jpg")
	assert.ErrorIs(t, err, entity.ErrKeyframeNotFound)

	rc, err = f.query.OpenArchive(ctx, job.ID)
	require.NoError(t, err)
	zipData, _ := io.ReadAll(rc)
	rc.Close()
	zr, err := zip.NewReader(bytes.NewReader(zipData), int64(len(zipData)))
	require.NoError(t, err)
	assert.Len(t, zr.File, 3)

	err = f.videos.DownloadVideo(ctx, job.VideoKey, filepath.Join(t.TempDir(), "x"))
	assert.Error(t, err, "source video is deleted after completion")

	assert.Equal(t, []entity.JobStatus{
		entity.JobStatusPending,
		entity.JobStatusProcessing,
		entity.JobStatusCompleted,
	}, f.publisher.statuses())

	require.NotEmpty(t, f.progress.events)
	assert.Equal(t, entity.ProgressStageCompleted, f.progress.events[len(f.progress.events)-1].Stage)

	// Redelivery of a finished job is acknowledged without work.
	require.NoError(t, f.process.Execute(ctx, body))
	assert.Equal(t, 1, f.extractor.calls)
}

func TestProcessJobRetriesThenDeadLetters(t *testing.T) {
	f := newAsyncFixture(t, 2)
	f.extractor.err = errors.New("decoder crashed")
	ctx := context.Background()

	job, body := f.submit(t, "ops@example.com")

	err := f.process.Execute(ctx, body)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "attempt 1/2")

	got, err := f.query.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusFailed, got.Status)
	assert.Empty(t, f.dlq.Letters())

	require.NoError(t, f.process.Execute(ctx, body))
	got, err = f.query.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusFailed, got.Status)
	assert.Equal(t, 2, got.Attempt)
	assert.Contains(t, got.ErrorMessage, "decoder crashed")

	letters := f.dlq.Letters()
	require.Len(t, letters, 1)
	assert.JSONEq(t, string(body), string(letters[0].Body))
	require.Len(t, f.notifier.calls, 1)
	assert.True(t, strings.HasPrefix(f.notifier.calls[0], "ops@example.com|"+job.ID.String()))

	// Further deliveries go straight to the DLQ.
	require.NoError(t, f.process.Execute(ctx, body))
	assert.Len(t, f.dlq.Letters(), 2)
	assert.Equal(t, 2, f.extractor.calls)
}

func TestProcessJobRejectsMalformedMessages(t *testing.T) {
	f := newAsyncFixture(t, 3)
	ctx := context.Background()

	require.NoError(t, f.process.Execute(ctx, []byte("{not json")))

	missing, _ := json.Marshal(entity.KeyframeJobMessage{JobID: uuid.New()})
	require.NoError(t, f.process.Execute(ctx, missing))

	bad, _ := json.Marshal(entity.KeyframeJobMessage{
		JobID:      uuid.New(),
		VideoKey:   "videos/a.mp4",
		Thresholds: entity.Thresholds{Histogram: -5},
	})
	require.NoError(t, f.process.Execute(ctx, bad))

	letters := f.dlq.Letters()
	require.Len(t, letters, 3)
	assert.True(t, strings.HasPrefix(letters[0].Reason, "unmarshal_error"))
	assert.True(t, strings.HasPrefix(letters[1].Reason, "invalid_message"))
	assert.True(t, strings.HasPrefix(letters[2].Reason, "invalid_message"))
	assert.Zero(t, f.extractor.calls)
}

func TestProcessJobCreatesUnknownJob(t *testing.T) {
	f := newAsyncFixture(t, 3)
	ctx := context.Background()

	key := "videos/external.mp4"
	require.NoError(t, f.videos.UploadVideo(ctx, key, strings.NewReader("v"), 1))
	msg := entity.KeyframeJobMessage{
		JobID:      uuid.New(),
		VideoKey:   key,
		Thresholds: entity.DefaultThresholds(),
	}
	body, _ := json.Marshal(msg)

	require.NoError(t, f.process.Execute(ctx, body))
	got, err := f.query.Get(ctx, msg.JobID)
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusCompleted, got.Status)
}

func TestSubmitJobDispatchFailure(t *testing.T) {
	f := newAsyncFixture(t, 3)
	uc := NewSubmitJobUseCase(f.repo, f.videos, failingDispatcher{err: port.ErrQueueFull}, f.publisher, zap.NewNop(), 3)

	_, err := uc.Execute(context.Background(), SubmitJobInput{
		Video:      strings.NewReader("v"),
		Size:       1,
		Filename:   "a.mp4",
		Thresholds: entity.DefaultThresholds(),
	})
	assert.ErrorIs(t, err, port.ErrQueueFull)
	assert.Empty(t, f.publisher.statuses())

	_, err = uc.Execute(context.Background(), SubmitJobInput{
		Video:      strings.NewReader("v"),
		Filename:   "a.mp4",
		Thresholds: entity.Thresholds{Edge: -1},
	})
	assert.ErrorIs(t, err, entity.ErrInvalidThresholds)
}

func TestJobQueryUnknownJob(t *testing.T) {
	f := newAsyncFixture(t, 3)
	_, err := f.query.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, entity.ErrJobNotFound)
	_, err = f.query.OpenArchive(context.Background(), uuid.New())
	assert.ErrorIs(t, err, entity.ErrJobNotFound)
}

func TestMultiStatusPublisher(t *testing.T) {
	a := &recordingPublisher{}
	b := &recordingPublisher{err: errors.New("down")}
	m := MultiStatusPublisher{a, nil, b}

	data, _ := json.Marshal(entity.JobStatusMessage{JobID: uuid.New(), Status: entity.JobStatusPending})
	err := m.PublishStatus(context.Background(), data)
	assert.EqualError(t, err, "down")
	assert.Len(t, a.msgs, 1)
	assert.Len(t, b.msgs, 1)
}
