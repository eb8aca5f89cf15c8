package api

import (
	"errors"
	"fmt"
	"math"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/woshiliyana/video-keyframe-extractor/internal/domain/entity"
)

const multipartMemory = 32 << 20

var (
	errNoVideo         = errors.New("no video file provided")
	errUnsupportedType = errors.New("unsupported video type")
)

// upload is a parsed multipart video submission.
type upload struct {
	file       multipart.File
	header     *multipart.FileHeader
	thresholds entity.Thresholds
	form       *multipart.Form
}

func (u *upload) Close() {
	if u.file != nil {
		u.file.Close()
	}
	if u.form != nil {
		_ = u.form.RemoveAll()
	}
}

// parseUpload reads the video part and threshold fields. The returned status
// code is meaningful only when err is non-nil.
func (s *Server) parseUpload(w http.ResponseWriter, r *http.Request) (*upload, int, error) {
	if s.cfg.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			return nil, http.StatusRequestEntityTooLarge, fmt.Errorf("video exceeds %d bytes", s.cfg.MaxUploadBytes)
		}
		return nil, http.StatusBadRequest, fmt.Errorf("parse form: %w", err)
	}

	u := &upload{form: r.MultipartForm}
	file, header, err := r.FormFile("video")
	if err != nil {
		u.Close()
		return nil, http.StatusBadRequest, errNoVideo
	}
	u.file, u.header = file, header

	if !s.allowedType(header.Header.Get("Content-Type")) {
		u.Close()
		return nil, http.StatusUnsupportedMediaType, fmt.Errorf("%w: %s", errUnsupportedType, header.Header.Get("Content-Type"))
	}

	th, err := parseThresholds(r, s.cfg.DefaultThresholds)
	if err != nil {
		u.Close()
		return nil, http.StatusBadRequest, err
	}
	u.thresholds = th
	return u, 0, nil
}

// allowedType matches the part's media type against the allow-list. Entries
// may be exact ("video/mp4") or a wildcard subtype ("video/*").
func (s *Server) allowedType(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	if mediaType == "application/octet-stream" || len(s.cfg.AllowedTypes) == 0 {
		return true
	}
	for _, allowed := range s.cfg.AllowedTypes {
		allowed = strings.ToLower(strings.TrimSpace(allowed))
		if allowed == mediaType || allowed == "*/*" {
			return true
		}
		if major, ok := strings.CutSuffix(allowed, "/*"); ok && strings.HasPrefix(mediaType, major+"/") {
			return true
		}
	}
	return false
}

// parseThresholds reads the threshold form fields, falling back to defaults
// for fields that are absent or blank.
func parseThresholds(r *http.Request, defaults entity.Thresholds) (entity.Thresholds, error) {
	th := defaults
	for _, f := range []struct {
		name string
		dst  *float64
	}{
		{"threshold", &th.FrameDiff},
		{"edge_threshold", &th.Edge},
		{"hist_threshold", &th.Histogram},
	} {
		raw := strings.TrimSpace(r.FormValue(f.name))
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return th, fmt.Errorf("%w: %s must be a number", entity.ErrInvalidThresholds, f.name)
		}
		*f.dst = v
	}
	if err := th.Validate(); err != nil {
		return th, err
	}
	return th, nil
}
