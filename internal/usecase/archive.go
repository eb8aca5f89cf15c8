package usecase

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/woshiliyana/video-keyframe-extractor/internal/domain/port"
)

// ArchiveUseCase zips whatever the synchronous flow last produced.
type ArchiveUseCase struct {
	lock     *sync.RWMutex
	output   port.OutputStore
	archiver port.Archiver
}

func NewArchiveUseCase(lock *sync.RWMutex, output port.OutputStore, archiver port.Archiver) *ArchiveUseCase {
	return &ArchiveUseCase{lock: lock, output: output, archiver: archiver}
}

func (uc *ArchiveUseCase) WriteArchive(ctx context.Context, w io.Writer) error {
	uc.lock.RLock()
	defer uc.lock.RUnlock()

	keyframes, err := uc.output.List()
	if err != nil {
		return fmt.Errorf("list keyframes: %w", err)
	}

	paths := make([]string, 0, len(keyframes))
	for _, kf := range keyframes {
		paths = append(paths, kf.Path)
	}
	if err := uc.archiver.WriteZip(ctx, w, paths); err != nil {
		return fmt.Errorf("write archive: %w", err)
	}
	return nil
}

// OpenKeyframe reads one image of the current output.
func (uc *ArchiveUseCase) OpenKeyframe(name string) (io.ReadCloser, error) {
	uc.lock.RLock()
	defer uc.lock.RUnlock()
	return uc.output.Open(name)
}
