package entity

import (
	"errors"
	"fmt"
	"math"
)

var ErrInvalidThresholds = errors.New("invalid thresholds")

// Thresholds are the scene change limits for one extraction run. A frame that
// exceeds any of them is a scene change.
type Thresholds struct {
	FrameDiff float64 `json:"threshold"`
	Edge      float64 `json:"edge_threshold"`
	Histogram float64 `json:"hist_threshold"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		FrameDiff: 10,
		Edge:      50,
		Histogram: 3000,
	}
}

func (t Thresholds) Validate() error {
	for _, v := range []struct {
		name  string
		value float64
	}{
		{"threshold", t.FrameDiff},
		{"edge_threshold", t.Edge},
		{"hist_threshold", t.Histogram},
	} {
		if math.IsNaN(v.value) || math.IsInf(v.value, 0) {
			return fmt.Errorf("%w: %s is not a finite number", ErrInvalidThresholds, v.name)
		}
		if v.value < 0 {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalidThresholds, v.name)
		}
	}
	return nil
}

func (t Thresholds) Exceeded(m SceneMetrics) bool {
	return m.MeanDiff > t.FrameDiff ||
		m.EdgeScore > t.Edge ||
		m.HistDiff > t.Histogram
}

// SceneMetrics compares a frame with its predecessor.
type SceneMetrics struct {
	MeanDiff  float64 `json:"mean_diff"`
	EdgeScore float64 `json:"edge_score"`
	HistDiff  float64 `json:"hist_diff"`
}
