package container

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/woshiliyana/video-keyframe-extractor/internal/domain/port"
	"github.com/woshiliyana/video-keyframe-extractor/internal/infra/config"
	"github.com/woshiliyana/video-keyframe-extractor/internal/infra/email"
	"github.com/woshiliyana/video-keyframe-extractor/internal/infra/ffmpeg"
	"github.com/woshiliyana/video-keyframe-extractor/internal/infra/localfs"
	"github.com/woshiliyana/video-keyframe-extractor/internal/infra/memory"
	miniostorage "github.com/woshiliyana/video-keyframe-extractor/internal/infra/minio"
	"github.com/woshiliyana/video-keyframe-extractor/internal/infra/opencv"
	"github.com/woshiliyana/video-keyframe-extractor/internal/infra/postgres"
	"github.com/woshiliyana/video-keyframe-extractor/internal/infra/rabbitmq"
	"github.com/woshiliyana/video-keyframe-extractor/internal/infra/sqlite"
	"github.com/woshiliyana/video-keyframe-extractor/internal/infra/websocket"
	"github.com/woshiliyana/video-keyframe-extractor/internal/infra/worker"
	"github.com/woshiliyana/video-keyframe-extractor/internal/usecase"
)

type Role int

const (
	// RoleServer serves HTTP; with the in-process queue it also runs the workers.
	RoleServer Role = iota
	// RoleWorker only consumes jobs from RabbitMQ.
	RoleWorker
)

type Container struct {
	Extractor port.KeyframeExtractor
	Hub       *websocket.Hub
	Pool      *worker.Pool

	Extract *usecase.ExtractKeyframesUseCase
	Archive *usecase.ArchiveUseCase
	Submit  *usecase.SubmitJobUseCase
	Query   *usecase.JobQueryUseCase
	Process *usecase.ProcessJobUseCase

	cfg     *config.Config
	logger  *zap.Logger
	closers []func() error
}

func New(ctx context.Context, cfg *config.Config, role Role, logger *zap.Logger) (c *Container, err error) {
	c = &Container{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = c.Close()
			c = nil
		}
	}()

	if role == RoleWorker && cfg.QueueBackend != config.QueueRabbitMQ {
		return nil, errors.New("worker requires QUEUE_BACKEND=rabbitmq")
	}

	extractor, err := newExtractor(cfg, logger)
	if err != nil {
		return nil, err
	}
	c.Extractor = extractor

	var progress port.ProgressReporter
	statuses := usecase.MultiStatusPublisher{}
	if role == RoleServer {
		c.Hub = websocket.NewHub(logger.Named("hub"))
		progress = c.Hub
		statuses = append(statuses, c.Hub)
	}

	repo, err := c.newRepository(ctx)
	if err != nil {
		return nil, err
	}
	videos, artifacts, err := c.newStorage(ctx)
	if err != nil {
		return nil, err
	}

	archiver := ffmpeg.NewZipCreator()
	var notifier port.FailureNotifier = email.NopNotifier{}
	if cfg.SMTPHost != "" {
		notifier = email.NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, logger)
	}

	var (
		dispatcher port.JobDispatcher
		dlq        port.DLQPublisher
	)
	switch cfg.QueueBackend {
	case config.QueueRabbitMQ:
		conn, err := amqp.Dial(cfg.RabbitMQURL)
		if err != nil {
			return nil, fmt.Errorf("connect to rabbitmq: %w", err)
		}
		c.closers = append(c.closers, conn.Close)

		pub, err := rabbitmq.NewPublisher(conn, c.topology())
		if err != nil {
			return nil, fmt.Errorf("create rabbitmq publisher: %w", err)
		}
		c.closers = append(c.closers, pub.Close)

		dispatcher = rabbitmq.NewJobPublisher(pub)
		dlq = rabbitmq.NewDLQPublisher(pub, cfg.RabbitMQDLQ)
		statuses = append(statuses, rabbitmq.NewStatusPublisher(pub))
	default:
		dlq = worker.NewLogDLQ(100, logger)
	}

	lock := &sync.RWMutex{}
	output, err := localfs.NewOutputStore(cfg.OutputDir, cfg.UploadDir)
	if err != nil {
		return nil, err
	}
	c.Extract = usecase.NewExtractKeyframesUseCase(lock, output, extractor, progress, logger)
	c.Archive = usecase.NewArchiveUseCase(lock, output, archiver)
	c.Query = usecase.NewJobQueryUseCase(repo, artifacts)
	c.Process = usecase.NewProcessJobUseCase(usecase.ProcessJobDeps{
		Repo:      repo,
		Storage:   videos,
		Artifacts: artifacts,
		Extractor: extractor,
		Archiver:  archiver,
		Publisher: statuses,
		DLQ:       dlq,
		Notifier:  notifier,
		Progress:  progress,
	}, logger, usecase.ProcessJobConfig{
		TempDir:    cfg.TempDir,
		MaxRetries: cfg.MaxRetries,
	})

	if dispatcher == nil {
		c.Pool = worker.NewPool(worker.PoolConfig{
			WorkerCount:   cfg.WorkerCount,
			QueueSize:     cfg.QueueSize,
			BaseDelay:     time.Duration(cfg.RetryBaseDelayMs) * time.Millisecond,
			MaxDeliveries: cfg.MaxRetries + 1,
		}, c.Process.Execute, logger.Named("pool"))
		dispatcher = c.Pool
	}
	c.Submit = usecase.NewSubmitJobUseCase(repo, videos, dispatcher, statuses, logger, cfg.MaxRetries)

	return c, nil
}

// NewConsumer connects a RabbitMQ consumer that feeds ProcessJobUseCase.
func (c *Container) NewConsumer() (*rabbitmq.Consumer, error) {
	consumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:         c.cfg.RabbitMQURL,
		Topology:    c.topology(),
		Prefetch:    c.cfg.RabbitMQPrefetch,
		WorkerCount: c.cfg.WorkerCount,
		BaseDelayMs: c.cfg.RetryBaseDelayMs,
	}, c.Process.Execute, c.logger.Named("consumer"))
	if err != nil {
		return nil, fmt.Errorf("create consumer: %w", err)
	}
	return consumer, nil
}

// Close releases backends in reverse order of creation.
func (c *Container) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

func (c *Container) topology() rabbitmq.Topology {
	return rabbitmq.Topology{
		Exchange:    c.cfg.RabbitMQExchange,
		Queue:       c.cfg.RabbitMQProcessingQueue,
		DLQ:         c.cfg.RabbitMQDLQ,
		StatusQueue: c.cfg.RabbitMQStatusQueue,
	}
}

func newExtractor(cfg *config.Config, logger *zap.Logger) (port.KeyframeExtractor, error) {
	switch cfg.ExtractorBackend {
	case config.ExtractorOpenCV:
		if !opencv.Available {
			return nil, opencv.ErrBackendUnavailable
		}
		return opencv.NewExtractor(opencv.ExtractorConfig{
			MinGap:         cfg.MinKeyframeGap,
			JPEGQuality:    cfg.JPEGQuality,
			ProgressEvery:  cfg.ProgressEvery,
			MaxFramePixels: cfg.MaxFramePixels,
		}, logger.Named("opencv")), nil
	default:
		return ffmpeg.NewExtractor(ffmpeg.ExtractorConfig{
			FFmpegBin:       cfg.FFmpegBin,
			FFprobeBin:      cfg.FFprobeBin,
			MinGap:          cfg.MinKeyframeGap,
			JPEGQuality:     cfg.JPEGQuality,
			AnalysisMaxSide: cfg.AnalysisMaxSide,
			ProgressEvery:   cfg.ProgressEvery,
			MaxFramePixels:  cfg.MaxFramePixels,
		}, logger.Named("ffmpeg")), nil
	}
}

func (c *Container) newRepository(ctx context.Context) (port.JobRepository, error) {
	switch c.cfg.JobStore {
	case config.JobStorePostgres:
		pool, err := postgres.NewPool(ctx, c.cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		c.closers = append(c.closers, func() error { pool.Close(); return nil })
		if err := postgres.RunMigrations(ctx, pool); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		return postgres.NewJobRepository(pool), nil
	case config.JobStoreSQLite:
		repo, err := sqlite.Open(c.cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		c.closers = append(c.closers, repo.Close)
		return repo, nil
	default:
		return memory.NewJobRepository(), nil
	}
}

func (c *Container) newStorage(ctx context.Context) (port.VideoStorage, port.ArtifactStore, error) {
	if c.cfg.ArtifactStore == config.ArtifactStoreMinIO {
		storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
			Endpoint:       c.cfg.MinIOEndpoint,
			AccessKey:      c.cfg.MinIOAccessKey,
			SecretKey:      c.cfg.MinIOSecretKey,
			UseSSL:         c.cfg.MinIOUseSSL,
			UploadBucket:   c.cfg.MinIOUploadBucket,
			ArtifactBucket: c.cfg.MinIOArtifactBucket,
		})
		if err != nil {
			return nil, nil, err
		}
		if err := storage.EnsureBuckets(ctx); err != nil {
			return nil, nil, fmt.Errorf("ensure minio buckets: %w", err)
		}
		return storage, storage, nil
	}

	videos, err := localfs.NewVideoStorage(filepath.Join(c.cfg.ArtifactDir, "videos"))
	if err != nil {
		return nil, nil, err
	}
	artifacts, err := localfs.NewArtifactStore(filepath.Join(c.cfg.ArtifactDir, "jobs"))
	if err != nil {
		return nil, nil, err
	}
	return videos, artifacts, nil
}
