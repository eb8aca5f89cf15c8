package opencv

import (
	"errors"

	"go.uber.org/zap"
)

var ErrBackendUnavailable = errors.New("opencv backend not compiled in, rebuild with -tags gocv")

const backendName = "opencv"

type ExtractorConfig struct {
	MinGap        int
	JPEGQuality   int
	ProgressEvery int
	// MaxFramePixels rejects videos whose frames are larger. Zero disables it.
	MaxFramePixels int
}

// Extractor selects keyframes with OpenCV primitives through gocv.
type Extractor struct {
	minGap        int
	quality       int
	progressEvery int
	maxPixels     int
	logger        *zap.Logger
}

func NewExtractor(cfg ExtractorConfig, logger *zap.Logger) *Extractor {
	return &Extractor{
		minGap:        cfg.MinGap,
		quality:       cfg.JPEGQuality,
		progressEvery: cfg.ProgressEvery,
		maxPixels:     cfg.MaxFramePixels,
		logger:        logger,
	}
}
