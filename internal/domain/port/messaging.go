package port

import (
	"context"
	"errors"

	"github.com/woshiliyana/video-keyframe-extractor/internal/domain/entity"
)

var (
	ErrQueueFull      = errors.New("job queue is full")
	ErrDispatcherDown = errors.New("job dispatcher stopped")
)

type JobDispatcher interface {
	Dispatch(ctx context.Context, msg entity.KeyframeJobMessage) error
}

type StatusPublisher interface {
	PublishStatus(ctx context.Context, msg []byte) error
}

type DLQPublisher interface {
	PublishToDLQ(ctx context.Context, msg []byte, reason string) error
}
