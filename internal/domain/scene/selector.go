package scene

import (
	"image"

	"github.com/woshiliyana/video-keyframe-extractor/internal/domain/entity"
)

type Decision struct {
	FrameIndex int
	Keyframe   bool
	Reason     entity.KeyframeReason
	Metrics    *entity.SceneMetrics
}

// Selector runs the keyframe policy over a stream of gray frames.
type Selector struct {
	thresholds entity.Thresholds
	policy     *Policy
	analyzer   *Analyzer
	frames     int
}

func NewSelector(thresholds entity.Thresholds, minGap int) *Selector {
	return &Selector{
		thresholds: thresholds,
		policy:     NewPolicy(minGap),
		analyzer:   NewAnalyzer(),
	}
}

func (s *Selector) Push(frame *image.Gray) Decision {
	idx := s.frames
	s.frames++

	switch s.policy.Step(idx) {
	case StepFirst:
		s.analyzer.Skip(frame)
		s.policy.Accept(idx)
		return Decision{FrameIndex: idx, Keyframe: true, Reason: entity.KeyframeReasonFirst}

	case StepCompare:
		m, _ := s.analyzer.Compare(frame)
		d := Decision{FrameIndex: idx, Metrics: &m}
		if s.thresholds.Exceeded(m) {
			s.policy.Accept(idx)
			d.Keyframe = true
			d.Reason = entity.KeyframeReasonSceneChange
		}
		return d

	default:
		s.analyzer.Skip(frame)
		return Decision{FrameIndex: idx}
	}
}

// Finish reports whether the last pushed frame should be kept as well.
func (s *Selector) Finish() (Decision, bool) {
	idx, ok := s.policy.Tail(s.frames)
	if !ok {
		return Decision{}, false
	}
	return Decision{FrameIndex: idx, Keyframe: true, Reason: entity.KeyframeReasonLast}, true
}

func (s *Selector) Frames() int {
	return s.frames
}
