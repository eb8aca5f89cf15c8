package localfs

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/google/uuid"

	"github.com/woshiliyana/video-keyframe-extractor/internal/domain/entity"
)

// OutputStore is the shared keyframe directory of the synchronous API plus the
// directory uploads are staged in.
type OutputStore struct {
	dir       string
	uploadDir string
}

func NewOutputStore(dir, uploadDir string) (*OutputStore, error) {
	for _, d := range []string{dir, uploadDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", d, err)
		}
	}
	return &OutputStore{dir: dir, uploadDir: uploadDir}, nil
}

func (s *OutputStore) Dir() string {
	return s.dir
}

// Reset removes every regular file from the output directory.
func (s *OutputStore) Reset() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("read output dir: %w", err)
	}
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", e.Name(), err)
		}
	}
	return nil
}

// List returns the keyframes currently in the output directory ordered by
// frame index.
func (s *OutputStore) List() ([]entity.Keyframe, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read output dir: %w", err)
	}

	keyframes := []entity.Keyframe{}
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		idx, ok := entity.ParseKeyframeFilename(e.Name())
		if !ok {
			continue
		}
		keyframes = append(keyframes, entity.Keyframe{
			FrameIndex: idx,
			Filename:   e.Name(),
			Path:       filepath.Join(s.dir, e.Name()),
		})
	}
	slices.SortFunc(keyframes, func(a, b entity.Keyframe) int {
		return a.FrameIndex - b.FrameIndex
	})
	return keyframes, nil
}

func (s *OutputStore) Open(name string) (io.ReadCloser, error) {
	return openKeyframe(s.dir, name)
}

// SaveUpload stores r under a random name that keeps the original extension.
func (s *OutputStore) SaveUpload(r io.Reader, originalName string) (string, error) {
	path := filepath.Join(s.uploadDir, uuid.NewString()+entity.VideoExtension(originalName))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write upload file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close upload file: %w", err)
	}
	return path, nil
}

func (s *OutputStore) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

func openKeyframe(dir, name string) (io.ReadCloser, error) {
	if _, ok := entity.ParseKeyframeFilename(name); !ok || filepath.Base(name) != name {
		return nil, entity.ErrKeyframeNotFound
	}
	f, err := os.Open(filepath.Join(dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, entity.ErrKeyframeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open keyframe: %w", err)
	}
	return f, nil
}
