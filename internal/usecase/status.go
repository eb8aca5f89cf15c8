package usecase

import (
	"context"
	"errors"

	"github.com/woshiliyana/video-keyframe-extractor/internal/domain/port"
)

// MultiStatusPublisher fans a status message out to every publisher.
type MultiStatusPublisher []port.StatusPublisher

func (m MultiStatusPublisher) PublishStatus(ctx context.Context, msg []byte) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.PublishStatus(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
