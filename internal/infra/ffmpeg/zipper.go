package ffmpeg

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/woshiliyana/video-keyframe-extractor/internal/domain/entity"
)

type ZipCreator struct{}

func NewZipCreator() *ZipCreator {
	return &ZipCreator{}
}

func (z *ZipCreator) CreateZip(ctx context.Context, filePaths []string, outputPath string) error {
	zipFile, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create zip file: %w", err)
	}

	if err := z.WriteZip(ctx, zipFile, filePaths); err != nil {
		zipFile.Close()
		os.Remove(outputPath)
		return err
	}
	return zipFile.Close()
}

// WriteZip streams the files into w as a flat archive ordered by frame index.
// An empty list produces a valid empty archive.
func (z *ZipCreator) WriteZip(ctx context.Context, w io.Writer, filePaths []string) error {
	zipWriter := zip.NewWriter(w)

	for _, fp := range SortKeyframePaths(filePaths) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := addFileToZip(zipWriter, fp); err != nil {
			return fmt.Errorf("add %s to zip: %w", fp, err)
		}
	}

	if err := zipWriter.Close(); err != nil {
		return fmt.Errorf("finalize zip: %w", err)
	}
	return nil
}

// SortKeyframePaths orders keyframe files by frame index. Other names follow
// in lexical order.
func SortKeyframePaths(paths []string) []string {
	sorted := slices.Clone(paths)
	slices.SortStableFunc(sorted, func(a, b string) int {
		ia, okA := entity.ParseKeyframeFilename(filepath.Base(a))
		ib, okB := entity.ParseKeyframeFilename(filepath.Base(b))
		switch {
		case okA && okB:
			return ia - ib
		case okA:
			return -1
		case okB:
			return 1
		default:
			return strings.Compare(filepath.Base(a), filepath.Base(b))
		}
	})
	return sorted
}

func addFileToZip(zw *zip.Writer, filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}

	header.Name = filepath.Base(filename)
	header.Method = zip.Deflate

	writer, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}

	_, err = io.Copy(writer, file)
	return err
}
