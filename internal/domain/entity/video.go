package entity

import (
	"errors"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrNoVideoStream = errors.New("no video stream found")
	ErrFrameTooLarge = errors.New("video frame size exceeds limit")
)

var safeExt = regexp.MustCompile(`^\.[a-z0-9]{1,8}$`)

// VideoExtension returns the lower-cased extension of an uploaded file name,
// or "" when it is missing or contains anything but letters and digits.
func VideoExtension(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if !safeExt.MatchString(ext) {
		return ""
	}
	return ext
}

// VideoObjectKey is the storage key of a job's source video.
func VideoObjectKey(jobID uuid.UUID, originalName string) string {
	return "videos/" + jobID.String() + VideoExtension(originalName)
}
