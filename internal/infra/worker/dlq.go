package worker

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// DeadLetter is one message given up on by the in-process pipeline.
type DeadLetter struct {
	Body   []byte
	Reason string
}

// LogDLQ logs dead letters and keeps the most recent ones in memory.
type LogDLQ struct {
	mu      sync.Mutex
	letters []DeadLetter
	limit   int
	logger  *zap.Logger
}

func NewLogDLQ(limit int, logger *zap.Logger) *LogDLQ {
	if limit < 1 {
		limit = 100
	}
	return &LogDLQ{limit: limit, logger: logger}
}

func (q *LogDLQ) PublishToDLQ(_ context.Context, msg []byte, reason string) error {
	q.logger.Error("message dead-lettered", zap.String("reason", reason), zap.ByteString("body", msg))

	q.mu.Lock()
	defer q.mu.Unlock()
	q.letters = append(q.letters, DeadLetter{Body: append([]byte(nil), msg...), Reason: reason})
	if len(q.letters) > q.limit {
		q.letters = q.letters[len(q.letters)-q.limit:]
	}
	return nil
}

func (q *LogDLQ) Letters() []DeadLetter {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]DeadLetter(nil), q.letters...)
}
