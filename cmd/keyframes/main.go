package main

import (
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/woshiliyana/video-keyframe-extractor/internal/domain/port"
	"github.com/woshiliyana/video-keyframe-extractor/internal/domain/scene"
	"github.com/woshiliyana/video-keyframe-extractor/internal/infra/ffmpeg"
	"github.com/woshiliyana/video-keyframe-extractor/internal/infra/imaging"
)

type backend interface {
	port.KeyframeExtractor
	Prober() port.VideoProber
}

type backendFactory func(cfg ffmpeg.ExtractorConfig, logger *zap.Logger) backend

func main() {
	app := newApp(os.Stdout, func(cfg ffmpeg.ExtractorConfig, logger *zap.Logger) backend {
		return ffmpeg.NewExtractor(cfg, logger)
	})
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "\nerror: %v\n", err)
		os.Exit(1)
	}
}

func newApp(out io.Writer, factory backendFactory) *cli.App {
	return &cli.App{
		Name:      "keyframes",
		Usage:     "extract scene-change keyframes from a video",
		ArgsUsage: "<video>",
		Writer:    out,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Value: "output", Usage: "directory the keyframes are written to"},
			&cli.Float64Flag{Name: "threshold", Aliases: []string{"t"}, Value: 12, Usage: "mean frame difference threshold"},
			&cli.Float64Flag{Name: "edge-threshold", Aliases: []string{"e"}, Value: 45, Usage: "edge map difference threshold"},
			&cli.Float64Flag{Name: "hist-threshold", Aliases: []string{"hist"}, Value: 3000, Usage: "histogram chi-square threshold"},
			&cli.IntFlag{Name: "min-gap", Value: scene.DefaultMinGap, Usage: "frames skipped after each keyframe"},
			&cli.IntFlag{Name: "quality", Value: imaging.DefaultJPEGQuality, Usage: "JPEG quality (1-100)"},
			&cli.StringFlag{Name: "manifest", Usage: "write a YAML manifest of the run to this path"},
			&cli.StringFlag{Name: "ffmpeg", Value: "ffmpeg", EnvVars: []string{"FFMPEG_BIN"}, Usage: "ffmpeg binary"},
			&cli.StringFlag{Name: "ffprobe", Value: "ffprobe", EnvVars: []string{"FFPROBE_BIN"}, Usage: "ffprobe binary"},
			&cli.StringFlag{Name: "log-level", Value: "warn", EnvVars: []string{"LOG_LEVEL"}},
		},
		Action: func(c *cli.Context) error {
			return extractAction(c, factory)
		},
	}
}
