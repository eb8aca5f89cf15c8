package port

import (
	"context"
	"io"

	"github.com/woshiliyana/video-keyframe-extractor/internal/domain/entity"
)

// OutputStore is the shared directory the synchronous flow writes keyframes to.
type OutputStore interface {
	Dir() string
	Reset() error
	List() ([]entity.Keyframe, error)
	Open(name string) (io.ReadCloser, error)
	SaveUpload(r io.Reader, originalName string) (path string, err error)
	Remove(path string) error
}

type VideoStorage interface {
	UploadVideo(ctx context.Context, objectKey string, reader io.Reader, size int64) error
	DownloadVideo(ctx context.Context, objectKey string, destPath string) error
	DeleteVideo(ctx context.Context, objectKey string) error
}

type ArtifactStore interface {
	PutKeyframe(ctx context.Context, jobID, name, srcPath string) error
	PutArchive(ctx context.Context, jobID, srcPath string) (key string, err error)
	OpenKeyframe(ctx context.Context, jobID, name string) (io.ReadCloser, error)
	OpenArchive(ctx context.Context, key string) (io.ReadCloser, error)
}
