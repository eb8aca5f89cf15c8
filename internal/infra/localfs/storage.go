package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

const archiveName = "keyframes.zip"

var ErrInvalidKey = errors.New("invalid object key")

// VideoStorage stages uploaded videos in a local directory.
type VideoStorage struct {
	root string
}

func NewVideoStorage(root string) (*VideoStorage, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	return &VideoStorage{root: root}, nil
}

func (s *VideoStorage) UploadVideo(ctx context.Context, objectKey string, reader io.Reader, size int64) error {
	path, err := resolve(s.root, objectKey)
	if err != nil {
		return err
	}
	if err := writeFile(path, reader); err != nil {
		return fmt.Errorf("upload video: %w", err)
	}
	return nil
}

func (s *VideoStorage) DownloadVideo(ctx context.Context, objectKey string, destPath string) error {
	path, err := resolve(s.root, objectKey)
	if err != nil {
		return err
	}
	if err := copyFile(path, destPath); err != nil {
		return fmt.Errorf("download video: %w", err)
	}
	return nil
}

func (s *VideoStorage) DeleteVideo(ctx context.Context, objectKey string) error {
	path, err := resolve(s.root, objectKey)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete video: %w", err)
	}
	return nil
}

// ArtifactStore keeps job keyframes and archives under root/<job id>/.
type ArtifactStore struct {
	root string
}

func NewArtifactStore(root string) (*ArtifactStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	return &ArtifactStore{root: root}, nil
}

func (s *ArtifactStore) PutKeyframe(ctx context.Context, jobID, name, srcPath string) error {
	path, err := resolve(s.root, filepath.Join(jobID, name))
	if err != nil {
		return err
	}
	if err := copyFile(srcPath, path); err != nil {
		return fmt.Errorf("store keyframe: %w", err)
	}
	return nil
}

func (s *ArtifactStore) PutArchive(ctx context.Context, jobID, srcPath string) (string, error) {
	key := jobID + "/" + archiveName
	path, err := resolve(s.root, key)
	if err != nil {
		return "", err
	}
	if err := copyFile(srcPath, path); err != nil {
		return "", fmt.Errorf("store archive: %w", err)
	}
	return key, nil
}

func (s *ArtifactStore) OpenKeyframe(ctx context.Context, jobID, name string) (io.ReadCloser, error) {
	if !filepath.IsLocal(jobID) || filepath.Base(jobID) != jobID {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKey, jobID)
	}
	return openKeyframe(filepath.Join(s.root, jobID), name)
}

func (s *ArtifactStore) OpenArchive(ctx context.Context, key string) (io.ReadCloser, error) {
	path, err := resolve(s.root, key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	return f, nil
}

func resolve(root, key string) (string, error) {
	if !filepath.IsLocal(key) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(root, key), nil
}

func writeFile(path string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	return writeFile(dst, in)
}
