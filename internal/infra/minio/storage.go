package minio

import (
	"context"
	"fmt"
	"io"
	"path"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/woshiliyana/video-keyframe-extractor/internal/domain/entity"
)

const archiveName = "keyframes.zip"

type Storage struct {
	client         *miniogo.Client
	uploadBucket   string
	artifactBucket string
}

type StorageConfig struct {
	Endpoint       string
	AccessKey      string
	SecretKey      string
	UseSSL         bool
	UploadBucket   string
	ArtifactBucket string
}

func NewStorage(cfg StorageConfig) (*Storage, error) {
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &Storage{
		client:         client,
		uploadBucket:   cfg.UploadBucket,
		artifactBucket: cfg.ArtifactBucket,
	}, nil
}

func (s *Storage) EnsureBuckets(ctx context.Context) error {
	for _, bucket := range []string{s.uploadBucket, s.artifactBucket} {
		exists, err := s.client.BucketExists(ctx, bucket)
		if err != nil {
			return fmt.Errorf("check bucket %s: %w", bucket, err)
		}
		if !exists {
			if err := s.client.MakeBucket(ctx, bucket, miniogo.MakeBucketOptions{}); err != nil {
				return fmt.Errorf("create bucket %s: %w", bucket, err)
			}
		}
	}
	return nil
}

func (s *Storage) UploadVideo(ctx context.Context, objectKey string, reader io.Reader, size int64) error {
	_, err := s.client.PutObject(ctx, s.uploadBucket, objectKey, reader, size, miniogo.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return fmt.Errorf("upload video: %w", err)
	}
	return nil
}

func (s *Storage) DownloadVideo(ctx context.Context, objectKey string, destPath string) error {
	if err := s.client.FGetObject(ctx, s.uploadBucket, objectKey, destPath, miniogo.GetObjectOptions{}); err != nil {
		return fmt.Errorf("download video: %w", err)
	}
	return nil
}

func (s *Storage) DeleteVideo(ctx context.Context, objectKey string) error {
	if err := s.client.RemoveObject(ctx, s.uploadBucket, objectKey, miniogo.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete video: %w", err)
	}
	return nil
}

func (s *Storage) PutKeyframe(ctx context.Context, jobID, name, srcPath string) error {
	_, err := s.client.FPutObject(ctx, s.artifactBucket, path.Join(jobID, name), srcPath, miniogo.PutObjectOptions{
		ContentType: "image/jpeg",
	})
	if err != nil {
		return fmt.Errorf("upload keyframe %s: %w", name, err)
	}
	return nil
}

func (s *Storage) PutArchive(ctx context.Context, jobID, srcPath string) (string, error) {
	key := path.Join(jobID, archiveName)
	_, err := s.client.FPutObject(ctx, s.artifactBucket, key, srcPath, miniogo.PutObjectOptions{
		ContentType: "application/zip",
	})
	if err != nil {
		return "", fmt.Errorf("upload zip: %w", err)
	}
	return key, nil
}

func (s *Storage) OpenKeyframe(ctx context.Context, jobID, name string) (io.ReadCloser, error) {
	if _, ok := entity.ParseKeyframeFilename(name); !ok {
		return nil, entity.ErrKeyframeNotFound
	}
	obj, err := s.open(ctx, path.Join(jobID, name))
	if isNotFound(err) {
		return nil, entity.ErrKeyframeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open keyframe: %w", err)
	}
	return obj, nil
}

func (s *Storage) OpenArchive(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.open(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	return obj, nil
}

// open stats the object so that a missing key fails here instead of on the
// first read.
func (s *Storage) open(ctx context.Context, key string) (*miniogo.Object, error) {
	obj, err := s.client.GetObject(ctx, s.artifactBucket, key, miniogo.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, err
	}
	return obj, nil
}

func isNotFound(err error) bool {
	return err != nil && miniogo.ToErrorResponse(err).Code == "NoSuchKey"
}
