//go:build !gocv
// +build !gocv

package opencv

import (
	"context"

	"github.com/woshiliyana/video-keyframe-extractor/internal/domain/port"
)

const Available = false

// ExtractKeyframes always fails when built without the gocv tag.
func (e *Extractor) ExtractKeyframes(context.Context, port.KeyframeExtractionRequest) (*port.KeyframeExtractionResult, error) {
	return nil, ErrBackendUnavailable
}
