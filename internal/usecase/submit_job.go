package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/woshiliyana/video-keyframe-extractor/internal/domain/entity"
	"github.com/woshiliyana/video-keyframe-extractor/internal/domain/port"
	"github.com/woshiliyana/video-keyframe-extractor/internal/infra/metrics"
)

type SubmitJobInput struct {
	Video       io.Reader
	Size        int64
	Filename    string
	Thresholds  entity.Thresholds
	NotifyEmail string
}

// SubmitJobUseCase stores an uploaded video and hands it to the job queue.
type SubmitJobUseCase struct {
	repo       port.JobRepository
	storage    port.VideoStorage
	dispatcher port.JobDispatcher
	publisher  port.StatusPublisher
	logger     *zap.Logger
	maxRetry   int
}

func NewSubmitJobUseCase(
	repo port.JobRepository,
	storage port.VideoStorage,
	dispatcher port.JobDispatcher,
	publisher port.StatusPublisher,
	logger *zap.Logger,
	maxRetries int,
) *SubmitJobUseCase {
	return &SubmitJobUseCase{
		repo:       repo,
		storage:    storage,
		dispatcher: dispatcher,
		publisher:  publisher,
		logger:     logger,
		maxRetry:   maxRetries,
	}
}

func (uc *SubmitJobUseCase) Execute(ctx context.Context, in SubmitJobInput) (*entity.Job, error) {
	ctx, span := otel.Tracer("usecase").Start(ctx, "SubmitJobUseCase.Execute")
	defer span.End()

	if err := in.Thresholds.Validate(); err != nil {
		return nil, err
	}

	job := entity.NewJob("", in.Filename, in.Size, in.Thresholds, uc.maxRetry)
	job.VideoKey = entity.VideoObjectKey(job.ID, in.Filename)
	job.NotifyEmail = in.NotifyEmail
	span.SetAttributes(attribute.String("job.id", job.ID.String()))

	log := uc.logger.With(zap.String("job_id", job.ID.String()))

	if err := uc.storage.UploadVideo(ctx, job.VideoKey, in.Video, in.Size); err != nil {
		return nil, fmt.Errorf("upload video: %w", err)
	}

	if err := uc.repo.Create(ctx, job); err != nil {
		_ = uc.storage.DeleteVideo(ctx, job.VideoKey)
		return nil, fmt.Errorf("create job: %w", err)
	}

	msg := entity.KeyframeJobMessage{
		JobID:        job.ID,
		VideoKey:     job.VideoKey,
		OriginalName: job.OriginalName,
		FileSize:     job.FileSize,
		Thresholds:   job.Thresholds,
		NotifyEmail:  job.NotifyEmail,
	}
	if err := uc.dispatcher.Dispatch(ctx, msg); err != nil {
		job.MarkFailed("dispatch: " + err.Error())
		if uerr := uc.repo.Update(ctx, job); uerr != nil {
			log.Error("failed to mark job as failed", zap.Error(uerr))
		}
		metrics.JobsTotal.WithLabelValues("async", "rejected").Inc()
		return nil, fmt.Errorf("dispatch job: %w", err)
	}

	publishStatus(ctx, uc.publisher, job, log)
	log.Info("job submitted", zap.String("video_key", job.VideoKey), zap.Int64("size", job.FileSize))
	return job, nil
}

func publishStatus(ctx context.Context, publisher port.StatusPublisher, job *entity.Job, log *zap.Logger) {
	if publisher == nil {
		return
	}
	data, err := json.Marshal(entity.NewJobStatusMessage(job))
	if err != nil {
		log.Error("failed to marshal status", zap.Error(err))
		return
	}
	if err := publisher.PublishStatus(ctx, data); err != nil {
		log.Error("failed to publish status", zap.Error(err))
	}
}
