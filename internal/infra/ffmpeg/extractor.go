package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/woshiliyana/video-keyframe-extractor/internal/domain/entity"
	"github.com/woshiliyana/video-keyframe-extractor/internal/domain/port"
	"github.com/woshiliyana/video-keyframe-extractor/internal/domain/scene"
	"github.com/woshiliyana/video-keyframe-extractor/internal/infra/imaging"
	"github.com/woshiliyana/video-keyframe-extractor/internal/infra/metrics"
)

const backendName = "ffmpeg"

type ExtractorConfig struct {
	FFmpegBin       string
	FFprobeBin      string
	MinGap          int
	JPEGQuality     int
	AnalysisMaxSide int
	ProgressEvery   int
	// MaxFramePixels rejects videos whose frames are larger. Zero disables it.
	MaxFramePixels int
}

type openFunc func(ctx context.Context, videoPath string, info *entity.VideoInfo) (FrameSource, error)

// Extractor decodes a video with ffmpeg and runs the scene selector over every
// frame, writing selected frames as JPEG files.
type Extractor struct {
	prober port.VideoProber
	open   openFunc

	minGap        int
	quality       int
	maxSide       int
	maxPixels     int
	progressEvery int
	logger        *zap.Logger
}

func NewExtractor(cfg ExtractorConfig, logger *zap.Logger) *Extractor {
	return &Extractor{
		prober:        NewProber(cfg.FFprobeBin),
		open:          NewDecoder(cfg.FFmpegBin).Open,
		minGap:        cfg.MinGap,
		quality:       cfg.JPEGQuality,
		maxSide:       cfg.AnalysisMaxSide,
		maxPixels:     cfg.MaxFramePixels,
		progressEvery: cfg.ProgressEvery,
		logger:        logger,
	}
}

func (e *Extractor) Prober() port.VideoProber {
	return e.prober
}

func (e *Extractor) ExtractKeyframes(ctx context.Context, req port.KeyframeExtractionRequest) (*port.KeyframeExtractionResult, error) {
	info, err := e.prober.Probe(ctx, req.VideoPath)
	if err != nil {
		return nil, fmt.Errorf("probe video: %w", err)
	}
	if err := checkFrameSize(info.Width, info.Height, e.maxPixels); err != nil {
		return nil, err
	}

	src, err := e.open(ctx, req.VideoPath, info)
	if err != nil {
		return nil, fmt.Errorf("open video: %w", err)
	}
	defer src.Close()

	log := e.logger.With(zap.String("job_id", req.JobID), zap.String("backend", backendName))
	log.Debug("decoding video",
		zap.Int("width", info.Width),
		zap.Int("height", info.Height),
		zap.Float64("fps", info.FPS),
		zap.Int("frames", info.FrameCount),
	)

	e.report(ctx, req, entity.ProgressEvent{Stage: entity.ProgressStageStarted, TotalFrames: info.FrameCount})

	start := time.Now()
	selector := scene.NewSelector(req.Thresholds, e.minGap)
	cur := make([]byte, src.FrameSize())
	prev := make([]byte, src.FrameSize())
	var keyframes []entity.Keyframe

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		err := src.Next(cur)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode frame %d: %w", selector.Frames(), err)
		}

		gray := imaging.Downscale(scene.GrayFromRGB24(cur, info.Width, info.Height), e.maxSide)
		d := selector.Push(gray)
		if d.Keyframe {
			kf, err := e.save(req.OutputDir, cur, info, d)
			if err != nil {
				return nil, err
			}
			keyframes = append(keyframes, kf)
			e.report(ctx, req, entity.ProgressEvent{
				Stage:           entity.ProgressStageKeyframe,
				FramesProcessed: selector.Frames(),
				TotalFrames:     info.FrameCount,
				Keyframes:       len(keyframes),
				Keyframe:        kf.Filename,
			})
		}

		if e.progressEvery > 0 && selector.Frames()%e.progressEvery == 0 {
			e.report(ctx, req, entity.ProgressEvent{
				Stage:           entity.ProgressStageDecoding,
				FramesProcessed: selector.Frames(),
				TotalFrames:     info.FrameCount,
				Keyframes:       len(keyframes),
			})
		}

		cur, prev = prev, cur
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := src.Close(); err != nil {
		return nil, err
	}

	if d, ok := selector.Finish(); ok {
		kf, err := e.save(req.OutputDir, prev, info, d)
		if err != nil {
			return nil, err
		}
		keyframes = append(keyframes, kf)
	}

	frames := selector.Frames()
	metrics.FramesDecodedTotal.WithLabelValues(backendName).Add(float64(frames))
	for _, kf := range keyframes {
		metrics.KeyframesExtractedTotal.WithLabelValues(string(kf.Reason)).Inc()
	}

	duration := info.Duration
	if duration == 0 && info.FPS > 0 {
		duration = float64(frames) / info.FPS
	}

	log.Info("keyframes extracted",
		zap.Int("frames", frames),
		zap.Int("keyframes", len(keyframes)),
		zap.Duration("elapsed", time.Since(start)),
	)

	return &port.KeyframeExtractionResult{
		Keyframes:     keyframes,
		FramesRead:    frames,
		FPS:           info.FPS,
		VideoDuration: duration,
	}, nil
}

// checkFrameSize bounds the per-frame buffers before any are allocated.
func checkFrameSize(width, height, maxPixels int) error {
	if maxPixels > 0 && width*height > maxPixels {
		return fmt.Errorf("%w: %dx%d is more than %d pixels", entity.ErrFrameTooLarge, width, height, maxPixels)
	}
	return nil
}

func (e *Extractor) save(dir string, frame []byte, info *entity.VideoInfo, d scene.Decision) (entity.Keyframe, error) {
	name := entity.KeyframeFilename(d.FrameIndex)
	path := filepath.Join(dir, name)
	if err := imaging.WriteJPEG(path, imaging.RGB24(frame, info.Width, info.Height), e.quality); err != nil {
		return entity.Keyframe{}, fmt.Errorf("save keyframe %d: %w", d.FrameIndex, err)
	}

	kf := entity.Keyframe{
		FrameIndex: d.FrameIndex,
		Filename:   name,
		Path:       path,
		Reason:     d.Reason,
		Metrics:    d.Metrics,
	}
	if info.FPS > 0 {
		kf.Timestamp = float64(d.FrameIndex) / info.FPS
	}
	return kf, nil
}

func (e *Extractor) report(ctx context.Context, req port.KeyframeExtractionRequest, ev entity.ProgressEvent) {
	if req.Progress == nil {
		return
	}
	ev.JobID = req.JobID
	req.Progress.Report(ctx, ev)
}
