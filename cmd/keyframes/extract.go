package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/woshiliyana/video-keyframe-extractor/internal/domain/entity"
	"github.com/woshiliyana/video-keyframe-extractor/internal/domain/port"
	"github.com/woshiliyana/video-keyframe-extractor/internal/infra/ffmpeg"
	"github.com/woshiliyana/video-keyframe-extractor/pkg/logger"
)

func extractAction(c *cli.Context, factory backendFactory) error {
	if c.NArg() != 1 {
		return errors.New("exactly one video path is required")
	}
	videoPath := c.Args().First()
	stat, err := os.Stat(videoPath)
	if err != nil {
		return fmt.Errorf("video not found: %w", err)
	}

	quality := c.Int("quality")
	if quality < 1 || quality > 100 {
		return fmt.Errorf("quality must be between 1 and 100, got %d", quality)
	}
	thresholds := entity.Thresholds{
		FrameDiff: c.Float64("threshold"),
		Edge:      c.Float64("edge-threshold"),
		Histogram: c.Float64("hist-threshold"),
	}
	if err := thresholds.Validate(); err != nil {
		return err
	}

	log, err := logger.New(c.String("log-level"))
	if err != nil {
		return err
	}
	defer log.Sync()

	outputDir := c.String("output")
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := clearImages(outputDir); err != nil {
		return err
	}

	ex := factory(ffmpeg.ExtractorConfig{
		FFmpegBin:   c.String("ffmpeg"),
		FFprobeBin:  c.String("ffprobe"),
		MinGap:      c.Int("min-gap"),
		JPEGQuality: quality,
	}, log)

	info, err := ex.Prober().Probe(c.Context, videoPath)
	if err != nil {
		return fmt.Errorf("probe video: %w", err)
	}

	w := c.App.Writer
	fmt.Fprintln(w, "Video:")
	fmt.Fprintf(w, "- file: %s (%s)\n", videoPath, humanize.Bytes(uint64(stat.Size())))
	fmt.Fprintf(w, "- resolution: %dx%d\n", info.Width, info.Height)
	fmt.Fprintf(w, "- total frames: %s\n", humanize.Comma(int64(info.FrameCount)))
	fmt.Fprintf(w, "- fps: %.2f\n", info.FPS)
	fmt.Fprintf(w, "- duration: %.2f s\n", info.Duration)
	fmt.Fprintln(w, "\nParameters:")
	fmt.Fprintf(w, "- frame difference threshold: %g\n", thresholds.FrameDiff)
	fmt.Fprintf(w, "- edge threshold: %g\n", thresholds.Edge)
	fmt.Fprintf(w, "- histogram threshold: %g\n", thresholds.Histogram)
	fmt.Fprintln(w, "\nProcessing...")

	res, err := ex.ExtractKeyframes(c.Context, port.KeyframeExtractionRequest{
		VideoPath:  videoPath,
		OutputDir:  outputDir,
		Thresholds: thresholds,
		JobID:      "cli",
	})
	if err != nil {
		return fmt.Errorf("extract keyframes: %w", err)
	}

	printSummary(w, res, info, outputDir)

	if path := c.String("manifest"); path != "" {
		m := newManifest(videoPath, outputDir, info, thresholds, res)
		if err := writeManifest(path, m); err != nil {
			return err
		}
		fmt.Fprintf(w, "\nManifest written to %s\n", path)
	}
	return nil
}

func printSummary(w io.Writer, res *port.KeyframeExtractionResult, info *entity.VideoInfo, outputDir string) {
	duration := res.VideoDuration
	if duration <= 0 {
		duration = info.Duration
	}

	fmt.Fprintln(w, "\nDone!")
	fmt.Fprintf(w, "- frames decoded: %s\n", humanize.Comma(int64(res.FramesRead)))
	fmt.Fprintf(w, "- keyframes extracted: %d\n", len(res.Keyframes))
	if len(res.Keyframes) > 0 {
		fmt.Fprintf(w, "- average interval: %.2f s\n", duration/float64(len(res.Keyframes)))
	}
	fmt.Fprintf(w, "- output directory: %s/\n", strings.TrimSuffix(outputDir, "/"))
	fmt.Fprintln(w, "\nKeyframes:")
	for _, kf := range res.Keyframes {
		fmt.Fprintf(w, "- %s\n", kf.Filename)
	}
}

// clearImages removes the JPEG files a previous run left in dir.
func clearImages(dir string) error {
	matches, err := filepath.Glob(filepath.Join(dir, "*.jpg"))
	if err != nil {
		return fmt.Errorf("list old keyframes: %w", err)
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil {
			return fmt.Errorf("remove %s: %w", m, err)
		}
	}
	return nil
}
