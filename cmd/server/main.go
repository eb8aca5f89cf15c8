package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/woshiliyana/video-keyframe-extractor/internal/api"
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

	log.Info("starting keyframe extractor api")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing is optional
	tp, err := tracing.InitTracer(ctx, cfg.JaegerEndpoint, tracing.TracerName)
	if err != nil {
		log.Warn("tracing init failed, continuing without tracing", zap.Error(err))
	} else if tp != nil {
		defer tp.Shutdown(context.Background())
	}

	c, err := container.New(ctx, cfg, container.RoleServer, log)
	fatalOnErr(err, "build container")
	defer c.Close()

	go c.Hub.Run(ctx)

	poolDone := make(chan struct{})
	if c.Pool != nil {
		go func() {
			defer close(poolDone)
			c.Pool.Start(ctx)
		}()
	} else {
		close(poolDone)
	}

	srv := api.NewServer(api.Config{
		MaxUploadBytes:    cfg.MaxVideoBytes(),
		AllowedTypes:      cfg.AllowedVideoTypes,
		AllowedOrigins:    cfg.CORSAllowedOrigins,
		DefaultThresholds: cfg.DefaultThresholds(),
	}, api.Deps{
		Extract:  c.Extract,
		Archive:  c.Archive,
		Jobs:     c.Submit,
		Query:    c.Query,
		Progress: c.Hub.ServeWS,
	}, log.Named("http"))

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	metricsSrv := metrics.StartMetricsServer(ctx, cfg.MetricsPort, log)

	go func() {
		log.Info("http server starting", zap.String("addr", cfg.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", zap.Error(err))
			cancel()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	if metricsSrv != nil {
		metricsSrv.Shutdown(shutdownCtx)
	}

	cancel()
	<-poolDone
	log.Info("keyframe extractor api stopped")
}

func fatalOnErr(err error, msg string) {
	if err != nil {
		panic(msg + ": " + err.Error())
	}
}
