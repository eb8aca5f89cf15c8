package scene

import (
	"image"

	"github.com/woshiliyana/video-keyframe-extractor/internal/domain/entity"
)

// Analyzer scores each frame against the one pushed before it. Edge maps and
// histograms are kept for the reference frame when they were already computed.
type Analyzer struct {
	CannyLow  float64
	CannyHigh float64

	prev *features
}

type features struct {
	gray  *image.Gray
	edges *image.Gray
	hist  *[256]float64
}

func NewAnalyzer() *Analyzer {
	return &Analyzer{CannyLow: DefaultCannyLow, CannyHigh: DefaultCannyHigh}
}

// Compare scores cur against the reference frame and makes cur the new
// reference. It reports false when there was no reference yet.
func (a *Analyzer) Compare(cur *image.Gray) (entity.SceneMetrics, bool) {
	next := &features{gray: cur}
	defer func() { a.prev = next }()

	if a.prev == nil {
		return entity.SceneMetrics{}, false
	}

	prev := a.prev
	if prev.edges == nil {
		prev.edges = Canny(prev.gray, a.CannyLow, a.CannyHigh)
	}
	if prev.hist == nil {
		h := Histogram(prev.gray)
		prev.hist = &h
	}

	next.edges = Canny(cur, a.CannyLow, a.CannyHigh)
	h := Histogram(cur)
	next.hist = &h

	return entity.SceneMetrics{
		MeanDiff:  MeanAbsDiff(cur, prev.gray),
		EdgeScore: MeanAbsDiff(next.edges, prev.edges),
		HistDiff:  ChiSquare(*next.hist, *prev.hist),
	}, true
}

// Skip makes cur the reference frame without scoring it.
func (a *Analyzer) Skip(cur *image.Gray) {
	a.prev = &features{gray: cur}
}

func (a *Analyzer) Reset() {
	a.prev = nil
}
