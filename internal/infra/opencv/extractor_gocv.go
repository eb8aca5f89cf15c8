//go:build gocv
// +build gocv

package opencv

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/woshiliyana/video-keyframe-extractor/internal/domain/entity"
	"github.com/woshiliyana/video-keyframe-extractor/internal/domain/port"
	"github.com/woshiliyana/video-keyframe-extractor/internal/domain/scene"
	"github.com/woshiliyana/video-keyframe-extractor/internal/infra/metrics"
)

const Available = true

func (e *Extractor) ExtractKeyframes(ctx context.Context, req port.KeyframeExtractionRequest) (*port.KeyframeExtractionResult, error) {
	vc, err := gocv.VideoCaptureFile(req.VideoPath)
	if err != nil {
		return nil, fmt.Errorf("open video: %w", err)
	}
	defer vc.Close()
	if !vc.IsOpened() {
		return nil, fmt.Errorf("open video: cannot open %s", filepath.Base(req.VideoPath))
	}

	width := int(vc.Get(gocv.VideoCaptureFrameWidth))
	height := int(vc.Get(gocv.VideoCaptureFrameHeight))
	if e.maxPixels > 0 && width*height > e.maxPixels {
		return nil, fmt.Errorf("%w: %dx%d is more than %d pixels", entity.ErrFrameTooLarge, width, height, e.maxPixels)
	}

	fps := vc.Get(gocv.VideoCaptureFPS)
	total := int(vc.Get(gocv.VideoCaptureFrameCount))
	log := e.logger.With(zap.String("job_id", req.JobID), zap.String("backend", backendName))

	frame := gocv.NewMat()
	defer frame.Close()
	last := gocv.NewMat()
	defer last.Close()
	gray := gocv.NewMat()
	defer gray.Close()
	prevGray := gocv.NewMat()
	defer prevGray.Close()

	policy := scene.NewPolicy(e.minGap)
	var keyframes []entity.Keyframe
	idx := 0

	report := func(ev entity.ProgressEvent) {
		if req.Progress == nil {
			return
		}
		ev.JobID = req.JobID
		ev.TotalFrames = total
		req.Progress.Report(ctx, ev)
	}
	report(entity.ProgressEvent{Stage: entity.ProgressStageStarted})

	for ; ; idx++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if ok := vc.Read(&frame); !ok || frame.Empty() {
			break
		}
		gocv.CvtColor(frame, &gray, gocv.ColorBGRToGray)

		var d scene.Decision
		switch policy.Step(idx) {
		case scene.StepFirst:
			d = scene.Decision{FrameIndex: idx, Keyframe: true, Reason: entity.KeyframeReasonFirst}
		case scene.StepCompare:
			m := compare(gray, prevGray)
			d = scene.Decision{FrameIndex: idx, Metrics: &m}
			if req.Thresholds.Exceeded(m) {
				d.Keyframe = true
				d.Reason = entity.KeyframeReasonSceneChange
			}
		}

		if d.Keyframe {
			policy.Accept(idx)
			kf, err := e.save(req.OutputDir, frame, fps, d)
			if err != nil {
				return nil, err
			}
			keyframes = append(keyframes, kf)
			report(entity.ProgressEvent{
				Stage:           entity.ProgressStageKeyframe,
				FramesProcessed: idx + 1,
				Keyframes:       len(keyframes),
				Keyframe:        kf.Filename,
			})
		}
		if e.progressEvery > 0 && (idx+1)%e.progressEvery == 0 {
			report(entity.ProgressEvent{
				Stage:           entity.ProgressStageDecoding,
				FramesProcessed: idx + 1,
				Keyframes:       len(keyframes),
			})
		}

		gray.CopyTo(&prevGray)
		frame.CopyTo(&last)
	}

	if tail, ok := policy.Tail(idx); ok {
		kf, err := e.save(req.OutputDir, last, fps, scene.Decision{FrameIndex: tail, Keyframe: true, Reason: entity.KeyframeReasonLast})
		if err != nil {
			return nil, err
		}
		keyframes = append(keyframes, kf)
	}

	metrics.FramesDecodedTotal.WithLabelValues(backendName).Add(float64(idx))
	for _, kf := range keyframes {
		metrics.KeyframesExtractedTotal.WithLabelValues(string(kf.Reason)).Inc()
	}
	log.Info("keyframes extracted", zap.Int("frames", idx), zap.Int("keyframes", len(keyframes)))

	var duration float64
	if fps > 0 {
		duration = float64(idx) / fps
	}
	return &port.KeyframeExtractionResult{
		Keyframes:     keyframes,
		FramesRead:    idx,
		FPS:           fps,
		VideoDuration: duration,
	}, nil
}

func compare(cur, prev gocv.Mat) entity.SceneMetrics {
	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(cur, prev, &diff)

	curEdges := gocv.NewMat()
	defer curEdges.Close()
	prevEdges := gocv.NewMat()
	defer prevEdges.Close()
	gocv.Canny(cur, &curEdges, scene.DefaultCannyLow, scene.DefaultCannyHigh)
	gocv.Canny(prev, &prevEdges, scene.DefaultCannyLow, scene.DefaultCannyHigh)

	edgeDiff := gocv.NewMat()
	defer edgeDiff.Close()
	gocv.AbsDiff(curEdges, prevEdges, &edgeDiff)

	return entity.SceneMetrics{
		MeanDiff:  diff.Mean().Val1,
		EdgeScore: edgeDiff.Mean().Val1,
		HistDiff:  histDiff(cur, prev),
	}
}

func histDiff(cur, prev gocv.Mat) float64 {
	mask := gocv.NewMat()
	defer mask.Close()
	h1 := gocv.NewMat()
	defer h1.Close()
	h2 := gocv.NewMat()
	defer h2.Close()

	gocv.CalcHist([]gocv.Mat{cur}, []int{0}, mask, &h1, []int{256}, []float64{0, 256}, false)
	gocv.CalcHist([]gocv.Mat{prev}, []int{0}, mask, &h2, []int{256}, []float64{0, 256}, false)
	return float64(gocv.CompareHist(h1, h2, gocv.HistCmpChiSqr))
}

func (e *Extractor) save(dir string, frame gocv.Mat, fps float64, d scene.Decision) (entity.Keyframe, error) {
	name := entity.KeyframeFilename(d.FrameIndex)
	path := filepath.Join(dir, name)
	if ok := gocv.IMWriteWithParams(path, frame, []int{gocv.IMWriteJpegQuality, e.quality}); !ok {
		return entity.Keyframe{}, fmt.Errorf("save keyframe %d: write %s failed", d.FrameIndex, path)
	}

	kf := entity.Keyframe{
		FrameIndex: d.FrameIndex,
		Filename:   name,
		Path:       path,
		Reason:     d.Reason,
		Metrics:    d.Metrics,
	}
	if fps > 0 {
		kf.Timestamp = float64(d.FrameIndex) / fps
	}
	return kf, nil
}
