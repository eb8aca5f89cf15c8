package usecase

import (
	"context"
	"fmt"
	"io"
	"path"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/woshiliyana/video-keyframe-extractor/internal/domain/entity"
	"github.com/woshiliyana/video-keyframe-extractor/internal/domain/port"
	"github.com/woshiliyana/video-keyframe-extractor/internal/infra/metrics"
)

const OutputURLPrefix = "/output/"

type ExtractInput struct {
	Video      io.Reader
	Filename   string
	Thresholds entity.Thresholds
}

// ExtractKeyframesUseCase is the synchronous flow: every call replaces the
// contents of the shared output directory, so calls are serialised.
type ExtractKeyframesUseCase struct {
	lock      *sync.RWMutex
	output    port.OutputStore
	extractor port.KeyframeExtractor
	progress  port.ProgressReporter
	logger    *zap.Logger
}

func NewExtractKeyframesUseCase(
	lock *sync.RWMutex,
	output port.OutputStore,
	extractor port.KeyframeExtractor,
	progress port.ProgressReporter,
	logger *zap.Logger,
) *ExtractKeyframesUseCase {
	return &ExtractKeyframesUseCase{
		lock:      lock,
		output:    output,
		extractor: extractor,
		progress:  progress,
		logger:    logger,
	}
}

// Execute always returns a result in the response shape; err is non-nil when
// the result is a failure. Invalid thresholds wrap entity.ErrInvalidThresholds.
func (uc *ExtractKeyframesUseCase) Execute(ctx context.Context, in ExtractInput) (entity.ProcessResult, error) {
	ctx, span := otel.Tracer("usecase").Start(ctx, "ExtractKeyframesUseCase.Execute")
	defer span.End()
	span.SetAttributes(attribute.String("video.filename", in.Filename))

	if err := in.Thresholds.Validate(); err != nil {
		return entity.FailedResult(err.Error()), err
	}

	uc.lock.Lock()
	defer uc.lock.Unlock()

	start := time.Now()
	result, err := uc.run(ctx, in)
	if err != nil {
		metrics.JobsTotal.WithLabelValues("sync", "failed").Inc()
		uc.logger.Error("keyframe extraction failed", zap.String("filename", in.Filename), zap.Error(err))
		return entity.FailedResult(err.Error()), err
	}

	metrics.JobsTotal.WithLabelValues("sync", "completed").Inc()
	metrics.StageDuration.WithLabelValues("sync_total").Observe(time.Since(start).Seconds())
	return result, nil
}

func (uc *ExtractKeyframesUseCase) run(ctx context.Context, in ExtractInput) (entity.ProcessResult, error) {
	if err := uc.output.Reset(); err != nil {
		return entity.ProcessResult{}, fmt.Errorf("clear output: %w", err)
	}

	videoPath, err := uc.output.SaveUpload(in.Video, in.Filename)
	if err != nil {
		return entity.ProcessResult{}, fmt.Errorf("save upload: %w", err)
	}
	defer func() {
		if err := uc.output.Remove(videoPath); err != nil {
			uc.logger.Warn("failed to remove upload", zap.String("path", videoPath), zap.Error(err))
		}
	}()

	exStart := time.Now()
	res, err := uc.extractor.ExtractKeyframes(ctx, port.KeyframeExtractionRequest{
		VideoPath:  videoPath,
		OutputDir:  uc.output.Dir(),
		Thresholds: in.Thresholds,
		JobID:      "sync",
		Progress:   uc.progress,
	})
	if err != nil {
		return entity.ProcessResult{}, fmt.Errorf("extract keyframes: %w", err)
	}
	metrics.StageDuration.WithLabelValues("extract").Observe(time.Since(exStart).Seconds())

	urls := make([]string, 0, len(res.Keyframes))
	for _, kf := range res.Keyframes {
		urls = append(urls, path.Join(OutputURLPrefix, kf.Filename))
	}

	uc.logger.Info("keyframes extracted",
		zap.String("filename", in.Filename),
		zap.Int("frames", res.FramesRead),
		zap.Int("keyframes", len(urls)),
	)

	return entity.ProcessResult{
		Success:   true,
		Message:   fmt.Sprintf("extracted %d keyframes", len(urls)),
		Keyframes: urls,
	}, nil
}
