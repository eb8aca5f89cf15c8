package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/woshiliyana/video-keyframe-extractor/internal/domain/entity"
	"github.com/woshiliyana/video-keyframe-extractor/internal/domain/port"
)

type manifest struct {
	Video       string             `yaml:"video"`
	OutputDir   string             `yaml:"output_dir"`
	GeneratedAt time.Time          `yaml:"generated_at"`
	Info        manifestVideo      `yaml:"info"`
	Thresholds  manifestThresholds `yaml:"thresholds"`
	FramesRead  int                `yaml:"frames_read"`
	Keyframes   []manifestKeyframe `yaml:"keyframes"`
}

type manifestVideo struct {
	Width      int     `yaml:"width"`
	Height     int     `yaml:"height"`
	FPS        float64 `yaml:"fps"`
	FrameCount int     `yaml:"frame_count"`
	Duration   float64 `yaml:"duration_seconds"`
	Codec      string  `yaml:"codec,omitempty"`
}

type manifestThresholds struct {
	FrameDiff float64 `yaml:"threshold"`
	Edge      float64 `yaml:"edge_threshold"`
	Histogram float64 `yaml:"hist_threshold"`
}

type manifestKeyframe struct {
	File      string  `yaml:"file"`
	Frame     int     `yaml:"frame"`
	Timestamp float64 `yaml:"timestamp_seconds"`
	Reason    string  `yaml:"reason"`
	MeanDiff  float64 `yaml:"mean_diff,omitempty"`
	EdgeScore float64 `yaml:"edge_score,omitempty"`
	HistDiff  float64 `yaml:"hist_diff,omitempty"`
}

func newManifest(video, outputDir string, info *entity.VideoInfo, th entity.Thresholds, res *port.KeyframeExtractionResult) manifest {
	m := manifest{
		Video:       video,
		OutputDir:   outputDir,
		GeneratedAt: time.Now().UTC().Truncate(time.Second),
		Info: manifestVideo{
			Width:      info.Width,
			Height:     info.Height,
			FPS:        info.FPS,
			FrameCount: info.FrameCount,
			Duration:   info.Duration,
			Codec:      info.Codec,
		},
		Thresholds: manifestThresholds{FrameDiff: th.FrameDiff, Edge: th.Edge, Histogram: th.Histogram},
		FramesRead: res.FramesRead,
		Keyframes:  make([]manifestKeyframe, 0, len(res.Keyframes)),
	}
	for _, kf := range res.Keyframes {
		mk := manifestKeyframe{
			File:      kf.Filename,
			Frame:     kf.FrameIndex,
			Timestamp: kf.Timestamp,
			Reason:    string(kf.Reason),
		}
		if kf.Metrics != nil {
			mk.MeanDiff = kf.Metrics.MeanDiff
			mk.EdgeScore = kf.Metrics.EdgeScore
			mk.HistDiff = kf.Metrics.HistDiff
		}
		m.Keyframes = append(m.Keyframes, mk)
	}
	return m
}

func writeManifest(path string, m manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}
