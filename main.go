package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/chaos-io/layersplitter/config"
	"github.com/chaos-io/layersplitter/inference"
	"github.com/chaos-io/layersplitter/job"
	"github.com/chaos-io/layersplitter/pipeline"
	"github.com/chaos-io/layersplitter/server"
	"github.com/chaos-io/layersplitter/storage"
)

func main() {
	cfg := config.Load()

	logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer func() {
		_ = cleanup()
	}()
	slog.SetDefault(logger)

	for _, name := range cfg.MissingCredentials() {
		logger.Warn("environment variable not set", "name", name)
	}

	store, err := job.OpenSQLite(cfg.DBPath, logger)
	if err != nil {
		logger.Error("open job ledger failed", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = store.Close()
	}()

	segmenter := inference.NewHuggingFace(cfg.HuggingFaceURL, cfg.HuggingFaceAPIKey, logger)
	uploader := storage.NewB2(cfg.BackblazeKeyID, cfg.BackblazeAppKey, cfg.BackblazeBucketID, logger)
	runner := pipeline.NewRunner(store, segmenter, uploader, cfg.InboxDir, cfg.MaxEdge, logger)

	sched := cron.New()
	_, err = sched.AddFunc(cfg.Schedule, func() {
		if _, err := runner.Run(context.Background()); err != nil {
			logger.Error("scheduled run failed", "error", err)
		}
	})
	if err != nil {
		logger.Error("invalid schedule", "schedule", cfg.Schedule, "error", err)
		os.Exit(1)
	}
	sched.Start()
	logger.Info("scheduler started", "schedule", cfg.Schedule)

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.New(store, runner, logger).Handler(),
	}

	go func() {
		logger.Info("admin api listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("admin api failed", "error", err)
			os.Exit(1)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("shutting down")
	<-sched.Stop().Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
}
