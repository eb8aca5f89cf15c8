package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/woshiliyana/video-keyframe-extractor/internal/domain/entity"
)

// FrameSource yields decoded RGB24 frames in presentation order.
type FrameSource interface {
	// Next fills dst with the next frame and returns io.EOF after the last one.
	Next(dst []byte) error
	FrameSize() int
	Close() error
}

type Decoder struct {
	bin string
}

func NewDecoder(bin string) *Decoder {
	if bin == "" {
		bin = "ffmpeg"
	}
	return &Decoder{bin: bin}
}

const maxReadBuffer = 4 << 20

// decodeArgs emits every decoded frame exactly once. rawvideo would otherwise
// get constant frame rate sync, which duplicates or drops frames of variable
// frame rate input and shifts frame indices.
func decodeArgs(videoPath string) []string {
	return []string{
		"-v", "error",
		"-noautorotate",
		"-i", videoPath,
		"-an", "-sn",
		"-fps_mode", "passthrough",
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"-",
	}
}

// Open starts ffmpeg decoding videoPath to raw RGB24 on its stdout. Frames keep
// the stream's coded size, so rotation metadata is ignored.
func (d *Decoder) Open(ctx context.Context, videoPath string, info *entity.VideoInfo) (FrameSource, error) {
	if info.Width <= 0 || info.Height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", info.Width, info.Height)
	}

	cmd := exec.CommandContext(ctx, d.bin, decodeArgs(videoPath)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout: %w", err)
	}
	src := &pipeSource{
		cmd:       cmd,
		frameSize: info.Width * info.Height * 3,
	}
	cmd.Stderr = &src.stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}
	src.r = bufio.NewReaderSize(stdout, min(src.frameSize, maxReadBuffer))
	return src, nil
}

type pipeSource struct {
	cmd       *exec.Cmd
	r         *bufio.Reader
	frameSize int
	stderr    bytes.Buffer
	eof       bool
	closed    bool
}

func (s *pipeSource) FrameSize() int {
	return s.frameSize
}

func (s *pipeSource) Next(dst []byte) error {
	if s.eof {
		return io.EOF
	}
	_, err := io.ReadFull(s.r, dst[:s.frameSize])
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		// a truncated trailing frame is dropped
		s.eof = true
		return io.EOF
	}
	return err
}

// Close waits for ffmpeg. A source closed before io.EOF kills the process
// first and ignores its exit status.
func (s *pipeSource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	if !s.eof {
		_ = s.cmd.Process.Kill()
		_ = s.cmd.Wait()
		return nil
	}
	if err := s.cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg error: %w, output: %s", err, strings.TrimSpace(s.stderr.String()))
	}
	return nil
}
