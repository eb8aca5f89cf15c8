package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/woshiliyana/video-keyframe-extractor/internal/domain/entity"
	"github.com/woshiliyana/video-keyframe-extractor/internal/domain/port"
	"github.com/woshiliyana/video-keyframe-extractor/internal/infra/metrics"
)

type ProcessJobUseCase struct {
	repo      port.JobRepository
	storage   port.VideoStorage
	artifacts port.ArtifactStore
	extractor port.KeyframeExtractor
	archiver  port.Archiver
	publisher port.StatusPublisher
	dlq       port.DLQPublisher
	notifier  port.FailureNotifier
	progress  port.ProgressReporter
	logger    *zap.Logger
	tempDir   string
	maxRetry  int
}

type ProcessJobConfig struct {
	TempDir    string
	MaxRetries int
}

type ProcessJobDeps struct {
	Repo      port.JobRepository
	Storage   port.VideoStorage
	Artifacts port.ArtifactStore
	Extractor port.KeyframeExtractor
	Archiver  port.Archiver
	Publisher port.StatusPublisher
	DLQ       port.DLQPublisher
	Notifier  port.FailureNotifier
	// Progress may be nil.
	Progress port.ProgressReporter
}

func NewProcessJobUseCase(deps ProcessJobDeps, logger *zap.Logger, cfg ProcessJobConfig) *ProcessJobUseCase {
	return &ProcessJobUseCase{
		repo:      deps.Repo,
		storage:   deps.Storage,
		artifacts: deps.Artifacts,
		extractor: deps.Extractor,
		archiver:  deps.Archiver,
		publisher: deps.Publisher,
		dlq:       deps.DLQ,
		notifier:  deps.Notifier,
		progress:  deps.Progress,
		logger:    logger,
		tempDir:   cfg.TempDir,
		maxRetry:  cfg.MaxRetries,
	}
}

// Execute handles one queued job message. A nil return acknowledges the
// message; an error asks the queue to redeliver it later.
func (uc *ProcessJobUseCase) Execute(ctx context.Context, rawMsg []byte) error {
	ctx, span := otel.Tracer("usecase").Start(ctx, "ProcessJobUseCase.Execute")
	defer span.End()

	totalTimer := time.Now()

	var msg entity.KeyframeJobMessage
	if err := json.Unmarshal(rawMsg, &msg); err != nil {
		uc.logger.Error("failed to unmarshal message", zap.Error(err), zap.ByteString("body", rawMsg))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "unmarshal_error: "+err.Error())
		return nil
	}
	if msg.JobID == uuid.Nil || msg.VideoKey == "" {
		uc.logger.Error("message is missing job id or video key", zap.ByteString("body", rawMsg))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "invalid_message: missing job_id or video_key")
		return nil
	}
	if err := msg.Thresholds.Validate(); err != nil {
		uc.logger.Error("message has invalid thresholds", zap.Error(err))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "invalid_message: "+err.Error())
		return nil
	}

	span.SetAttributes(
		attribute.String("job.id", msg.JobID.String()),
		attribute.String("job.video_key", msg.VideoKey),
	)

	log := uc.logger.With(zap.String("job_id", msg.JobID.String()), zap.String("video_key", msg.VideoKey))

	job, err := uc.repo.FindByID(ctx, msg.JobID)
	switch {
	case errors.Is(err, entity.ErrJobNotFound):
		job = entity.NewJob(msg.VideoKey, msg.OriginalName, msg.FileSize, msg.Thresholds, uc.maxRetry)
		job.ID = msg.JobID
		job.NotifyEmail = msg.NotifyEmail
		if err := uc.repo.Create(ctx, job); err != nil {
			log.Error("failed to create job record", zap.Error(err))
			return fmt.Errorf("create job: %w", err)
		}
	case err != nil:
		return fmt.Errorf("find job: %w", err)
	}

	if job.Status == entity.JobStatusCompleted {
		log.Info("job already completed, skipping")
		return nil
	}

	if !job.CanRetry() {
		log.Warn("job exhausted retries, sending to DLQ")
		return uc.handlePermanentFailure(ctx, job, rawMsg, "max retries exceeded")
	}

	job.MarkProcessing()
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to PROCESSING", zap.Error(err))
		return fmt.Errorf("update job: %w", err)
	}
	publishStatus(ctx, uc.publisher, job, log)

	if err := uc.pipeline(ctx, job, msg, rawMsg, log); err != nil {
		return err
	}

	metrics.JobsTotal.WithLabelValues("async", "completed").Inc()
	metrics.StageDuration.WithLabelValues("total").Observe(time.Since(totalTimer).Seconds())
	return nil
}

func (uc *ProcessJobUseCase) pipeline(
	ctx context.Context,
	job *entity.Job,
	msg entity.KeyframeJobMessage,
	rawMsg []byte,
	log *zap.Logger,
) error {
	tracer := otel.Tracer("usecase")

	workDir := filepath.Join(uc.tempDir, job.ID.String())
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return fmt.Errorf("create workdir: %w", err)
	}
	defer os.RemoveAll(workDir)

	dlStart := time.Now()
	dlCtx, spanDl := tracer.Start(ctx, "download_video")
	videoPath := filepath.Join(workDir, "input"+entity.VideoExtension(msg.VideoKey))
	err := uc.storage.DownloadVideo(dlCtx, msg.VideoKey, videoPath)
	spanDl.End()
	if err != nil {
		log.Error("failed to download video", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, rawMsg, "download_video: "+err.Error(), log)
	}
	metrics.StageDuration.WithLabelValues("download").Observe(time.Since(dlStart).Seconds())

	exStart := time.Now()
	exCtx, spanEx := tracer.Start(ctx, "extract_keyframes")
	framesDir := filepath.Join(workDir, "keyframes")
	if err := os.MkdirAll(framesDir, 0755); err != nil {
		spanEx.End()
		return fmt.Errorf("create keyframes dir: %w", err)
	}
	result, err := uc.extractor.ExtractKeyframes(exCtx, port.KeyframeExtractionRequest{
		VideoPath:  videoPath,
		OutputDir:  framesDir,
		Thresholds: msg.Thresholds,
		JobID:      job.ID.String(),
		Progress:   uc.progress,
	})
	spanEx.End()
	if err != nil {
		log.Error("keyframe extraction failed", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, rawMsg, "extract_keyframes: "+err.Error(), log)
	}
	metrics.StageDuration.WithLabelValues("extract").Observe(time.Since(exStart).Seconds())

	paths := make([]string, 0, len(result.Keyframes))
	names := make([]string, 0, len(result.Keyframes))
	for _, kf := range result.Keyframes {
		paths = append(paths, kf.Path)
		names = append(names, kf.Filename)
	}

	zipStart := time.Now()
	zipCtx, spanZip := tracer.Start(ctx, "create_zip")
	zipPath := filepath.Join(workDir, "keyframes.zip")
	err = uc.archiver.CreateZip(zipCtx, paths, zipPath)
	spanZip.End()
	if err != nil {
		log.Error("zip creation failed", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, rawMsg, "create_zip: "+err.Error(), log)
	}
	metrics.StageDuration.WithLabelValues("zip").Observe(time.Since(zipStart).Seconds())

	upStart := time.Now()
	upCtx, spanUp := tracer.Start(ctx, "upload_artifacts")
	archiveKey, err := uc.uploadArtifacts(upCtx, job.ID.String(), result.Keyframes, zipPath)
	spanUp.End()
	if err != nil {
		log.Error("artifact upload failed", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, rawMsg, "upload_artifacts: "+err.Error(), log)
	}
	metrics.StageDuration.WithLabelValues("upload").Observe(time.Since(upStart).Seconds())

	job.MarkCompleted(archiveKey, names, result.FramesRead, result.VideoDuration)
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to COMPLETED", zap.Error(err))
		return fmt.Errorf("update job completed: %w", err)
	}

	publishStatus(ctx, uc.publisher, job, log)
	uc.report(ctx, entity.ProgressEvent{
		JobID:           job.ID.String(),
		Stage:           entity.ProgressStageCompleted,
		FramesProcessed: result.FramesRead,
		Keyframes:       len(names),
	})

	if err := uc.storage.DeleteVideo(ctx, msg.VideoKey); err != nil {
		log.Warn("failed to delete source video", zap.Error(err))
	}

	log.Info("job completed successfully",
		zap.Int("frame_count", result.FramesRead),
		zap.Int("keyframes", len(names)),
		zap.Float64("duration_secs", result.VideoDuration),
		zap.String("archive_key", archiveKey),
	)
	return nil
}

func (uc *ProcessJobUseCase) uploadArtifacts(ctx context.Context, jobID string, keyframes []entity.Keyframe, zipPath string) (string, error) {
	for _, kf := range keyframes {
		if err := uc.artifacts.PutKeyframe(ctx, jobID, kf.Filename, kf.Path); err != nil {
			return "", fmt.Errorf("put %s: %w", kf.Filename, err)
		}
	}
	key, err := uc.artifacts.PutArchive(ctx, jobID, zipPath)
	if err != nil {
		return "", fmt.Errorf("put archive: %w", err)
	}
	return key, nil
}

func (uc *ProcessJobUseCase) handleRetryableFailure(
	ctx context.Context,
	job *entity.Job,
	rawMsg []byte,
	errMsg string,
	log *zap.Logger,
) error {
	if ctx.Err() != nil {
		// Shutdown interrupted the job; leave it for redelivery.
		return fmt.Errorf("interrupted: %w", ctx.Err())
	}

	job.MarkFailed(errMsg)
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to FAILED", zap.Error(err))
	}

	if !job.CanRetry() {
		return uc.handlePermanentFailure(ctx, job, rawMsg, errMsg)
	}

	metrics.RetryTotal.WithLabelValues(strconv.Itoa(job.Attempt)).Inc()
	publishStatus(ctx, uc.publisher, job, log)

	return fmt.Errorf("retryable failure (attempt %d/%d): %s", job.Attempt, job.MaxAttempts, errMsg)
}

func (uc *ProcessJobUseCase) handlePermanentFailure(
	ctx context.Context,
	job *entity.Job,
	rawMsg []byte,
	errMsg string,
) error {
	log := uc.logger.With(zap.String("job_id", job.ID.String()))

	job.MarkFailed(errMsg)
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to FAILED", zap.Error(err))
	}

	if err := uc.dlq.PublishToDLQ(ctx, rawMsg, errMsg); err != nil {
		log.Error("failed to publish to DLQ", zap.Error(err))
	}

	publishStatus(ctx, uc.publisher, job, log)
	uc.report(ctx, entity.ProgressEvent{JobID: job.ID.String(), Stage: entity.ProgressStageFailed})

	metrics.JobsTotal.WithLabelValues("async", "dlq").Inc()

	if job.NotifyEmail != "" {
		if err := uc.notifier.NotifyFailure(ctx, job.NotifyEmail, job.ID.String(), job.OriginalName, errMsg); err != nil {
			log.Error("failed to send failure notification", zap.Error(err))
		}
	}

	return nil
}

func (uc *ProcessJobUseCase) report(ctx context.Context, ev entity.ProgressEvent) {
	if uc.progress != nil {
		uc.progress.Report(ctx, ev)
	}
}
