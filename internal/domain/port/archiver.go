package port

import (
	"context"
	"io"
)

type Archiver interface {
	CreateZip(ctx context.Context, filePaths []string, outputPath string) error
	WriteZip(ctx context.Context, w io.Writer, filePaths []string) error
}
