package entity

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrKeyframeNotFound = errors.New("keyframe not found")

type KeyframeReason string

const (
	KeyframeReasonFirst       KeyframeReason = "first"
	KeyframeReasonSceneChange KeyframeReason = "scene_change"
	KeyframeReasonLast        KeyframeReason = "last"
)

type Keyframe struct {
	FrameIndex int            `json:"frame_index"`
	Filename   string         `json:"filename"`
	Path       string         `json:"-"`
	Timestamp  float64        `json:"timestamp_seconds"`
	Reason     KeyframeReason `json:"reason"`
	Metrics    *SceneMetrics  `json:"metrics,omitempty"`
}

const (
	keyframePrefix = "keyframe_"
	keyframeExt    = ".jpg"
)

func KeyframeFilename(frameIndex int) string {
	return fmt.Sprintf("%s%d%s", keyframePrefix, frameIndex, keyframeExt)
}

// ParseKeyframeFilename returns the frame index encoded in a keyframe file name.
func ParseKeyframeFilename(name string) (int, bool) {
	if !strings.HasPrefix(name, keyframePrefix) || !strings.HasSuffix(name, keyframeExt) {
		return 0, false
	}
	idx, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, keyframePrefix), keyframeExt))
	if err != nil || idx < 0 {
		return 0, false
	}
	return idx, true
}

type VideoInfo struct {
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	FPS        float64 `json:"fps"`
	FrameCount int     `json:"frame_count"`
	Duration   float64 `json:"duration_seconds"`
	Codec      string  `json:"codec"`
}

// ProcessResult is the response body of the synchronous extraction endpoint.
type ProcessResult struct {
	Success   bool     `json:"success"`
	Message   string   `json:"message,omitempty"`
	Keyframes []string `json:"keyframes"`
}

func FailedResult(msg string) ProcessResult {
	return ProcessResult{Success: false, Message: msg, Keyframes: []string{}}
}

type ProgressStage string

const (
	ProgressStageStarted   ProgressStage = "started"
	ProgressStageDecoding  ProgressStage = "decoding"
	ProgressStageKeyframe  ProgressStage = "keyframe"
	ProgressStageCompleted ProgressStage = "completed"
	ProgressStageFailed    ProgressStage = "failed"
)

type ProgressEvent struct {
	JobID           string        `json:"job_id"`
	Stage           ProgressStage `json:"stage"`
	FramesProcessed int           `json:"frames_processed"`
	TotalFrames     int           `json:"total_frames,omitempty"`
	Keyframes       int           `json:"keyframes"`
	Keyframe        string        `json:"keyframe,omitempty"`
}
