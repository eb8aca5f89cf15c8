package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/woshiliyana/video-keyframe-extractor/internal/domain/entity"
	"github.com/woshiliyana/video-keyframe-extractor/internal/domain/port"
	"github.com/woshiliyana/video-keyframe-extractor/internal/infra/metrics"
)

var ErrPoolStopped = fmt.Errorf("worker pool: %w", port.ErrDispatcherDown)

const maxBackoff = 30 * time.Second

type MessageHandler func(ctx context.Context, body []byte) error

type PoolConfig struct {
	WorkerCount int
	QueueSize   int
	BaseDelay   time.Duration
	// MaxDeliveries bounds redeliveries of a message whose handler keeps
	// failing. The handler is expected to give up on its own first.
	MaxDeliveries int
}

type delivery struct {
	body    []byte
	attempt int
}

// Pool is an in-process replacement for the broker queue: dispatched jobs are
// buffered in a channel and handled by a fixed set of workers, with
// exponential backoff before a failed message is requeued.
type Pool struct {
	cfg     PoolConfig
	queue   chan delivery
	handler MessageHandler
	logger  *zap.Logger
	wg      sync.WaitGroup

	mu      sync.RWMutex
	stopped bool
}

func NewPool(cfg PoolConfig, handler MessageHandler, logger *zap.Logger) *Pool {
	if cfg.WorkerCount < 1 {
		cfg.WorkerCount = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 64
	}
	if cfg.MaxDeliveries < 1 {
		cfg.MaxDeliveries = 10
	}
	return &Pool{
		cfg:     cfg,
		queue:   make(chan delivery, cfg.QueueSize),
		handler: handler,
		logger:  logger,
	}
}

// Dispatch implements port.JobDispatcher.
func (p *Pool) Dispatch(ctx context.Context, msg entity.KeyframeJobMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal job message: %w", err)
	}
	return p.enqueue(delivery{body: body, attempt: 1})
}

func (p *Pool) enqueue(d delivery) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrPoolStopped
	}

	select {
	case p.queue <- d:
		return nil
	default:
		return port.ErrQueueFull
	}
}

// Start runs the workers until ctx is cancelled and then waits for in-flight
// jobs. Queued jobs that were not started are dropped.
func (p *Pool) Start(ctx context.Context) error {
	p.logger.Info("starting worker pool",
		zap.Int("workers", p.cfg.WorkerCount),
		zap.Int("queue_size", p.cfg.QueueSize),
	)

	for i := 0; i < p.cfg.WorkerCount; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}

	<-ctx.Done()
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()

	p.logger.Info("context cancelled, waiting for workers to finish")
	p.wg.Wait()
	return nil
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	log := p.logger.With(zap.Int("worker_id", id))
	log.Debug("worker started")

	for {
		select {
		case <-ctx.Done():
			log.Debug("worker shutting down")
			return
		case d := <-p.queue:
			p.process(ctx, d, log)
		}
	}
}

func (p *Pool) process(ctx context.Context, d delivery, log *zap.Logger) {
	metrics.ActiveWorkers.Inc()
	err := p.handler(ctx, d.body)
	metrics.ActiveWorkers.Dec()
	if err == nil {
		return
	}

	if d.attempt >= p.cfg.MaxDeliveries {
		log.Error("dropping message after repeated failures", zap.Error(err), zap.Int("attempt", d.attempt))
		return
	}

	delay := backoff(p.cfg.BaseDelay, d.attempt)
	log.Warn("message processing failed, requeueing",
		zap.Error(err),
		zap.Int("attempt", d.attempt),
		zap.Duration("delay", delay),
	)

	// The wait happens off the worker so other jobs keep flowing.
	go func() {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
		if err := p.enqueue(delivery{body: d.body, attempt: d.attempt + 1}); err != nil {
			log.Error("requeue failed", zap.Error(err))
		}
	}()
}

func backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 16 {
		return maxBackoff
	}
	delay := base << (attempt - 1)
	if delay > maxBackoff || delay < 0 {
		delay = maxBackoff
	}
	return delay
}
