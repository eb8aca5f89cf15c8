package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/woshiliyana/video-keyframe-extractor/internal/container"
	"github.com/woshiliyana/video-keyframe-extractor/internal/infra/config"
	"github.com/woshiliyana/video-keyframe-extractor/internal/infra/metrics"
	"github.com/woshiliyana/video-keyframe-extractor/internal/infra/tracing"
	"github.com/woshiliyana/video-keyframe-extractor/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	fatalOnErr(err, "load config")

	log, err := logger.New(cfg.LogLevel)
	fatalOnErr(err, "init logger")
	defer log.Sync()

	log.Info("starting keyframe worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing is optional
	tp, err := tracing.InitTracer(ctx, cfg.JaegerEndpoint, "keyframe-worker")
	if err != nil {
		log.Warn("tracing init failed, continuing without tracing", zap.Error(err))
	} else if tp != nil {
		defer tp.Shutdown(context.Background())
	}

	c, err := container.New(ctx, cfg, container.RoleWorker, log)
	fatalOnErr(err, "build container")
	defer c.Close()

	metricsSrv := metrics.StartMetricsServer(ctx, cfg.MetricsPort, log)

	consumer, err := c.NewConsumer()
	fatalOnErr(err, "create consumer")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	log.Info("keyframe worker started, consuming messages")

	if err := consumer.Start(ctx); err != nil {
		log.Error("consumer error", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if metricsSrv != nil {
		metricsSrv.Shutdown(shutdownCtx)
	}

	consumer.Close()
	log.Info("keyframe worker stopped")
}

func fatalOnErr(err error, msg string) {
	if err != nil {
		panic(msg + ": " + err.Error())
	}
}
