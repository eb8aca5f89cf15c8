package port

import (
	"context"

	"github.com/woshiliyana/video-keyframe-extractor/internal/domain/entity"
)

type KeyframeExtractionRequest struct {
	VideoPath  string
	OutputDir  string
	Thresholds entity.Thresholds
	JobID      string
	// Progress may be nil.
	Progress ProgressReporter
}

type KeyframeExtractionResult struct {
	Keyframes     []entity.Keyframe
	FramesRead    int
	FPS           float64
	VideoDuration float64
}

type KeyframeExtractor interface {
	ExtractKeyframes(ctx context.Context, req KeyframeExtractionRequest) (*KeyframeExtractionResult, error)
}

type VideoProber interface {
	Probe(ctx context.Context, videoPath string) (*entity.VideoInfo, error)
}

type ProgressReporter interface {
	Report(ctx context.Context, event entity.ProgressEvent)
}
