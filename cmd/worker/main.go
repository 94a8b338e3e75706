package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/feichai0017/text-extractor/config"
	"github.com/feichai0017/text-extractor/internal/agent"
	"github.com/feichai0017/text-extractor/internal/agent/ocr"
	"github.com/feichai0017/text-extractor/internal/service/extraction"
	"github.com/feichai0017/text-extractor/pkg/logger"
	"github.com/feichai0017/text-extractor/pkg/queue"
	"github.com/feichai0017/text-extractor/pkg/storage"
	"github.com/feichai0017/text-extractor/pkg/worker"
)

func main() {
	cfg, err := config.Get()
	if err != nil {
		panic(err)
	}

	log, err := logger.NewLogger(logger.FromConfig(cfg.Log)...)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pipeline, err := agent.New(log, agent.WithOCR(ocr.DefaultFactory))
	if err != nil {
		log.Error("Failed to build extraction pipeline", logger.Error(err))
		os.Exit(1)
	}

	store, err := storage.NewStorage(ctx, cfg.Storage, log)
	if err != nil {
		log.Error("Failed to create storage", logger.Error(err))
		os.Exit(1)
	}

	q := queue.NewAsynqQueue(cfg.Redis, cfg.Queue)
	defer q.Close()

	svc := extraction.NewService(pipeline, q, store, log, &extraction.ServiceConfig{
		ExtractTimeout: cfg.Queue.ProcessTimeout,
		Priority:       2,
		Defaults:       cfg.Extractor,
	})

	extractionWorker := worker.NewExtractionWorker(cfg.Redis, cfg.Queue, svc, log)
	if cfg.Queue.CleanupInterval > 0 {
		if err := extractionWorker.ScheduleCleanup(svc, cfg.Queue.StatusTTL, cfg.Queue.CleanupInterval); err != nil {
			log.Error("Failed to schedule storage cleanup", logger.Error(err))
			os.Exit(1)
		}
	}
	if err := extractionWorker.Start(ctx); err != nil {
		log.Error("Failed to start worker", logger.Error(err))
		os.Exit(1)
	}
	log.Info("Worker started",
		logger.Int("concurrency", cfg.Queue.Concurrency),
		logger.String("redis", cfg.Redis.Addr),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down worker...")
	extractionWorker.Stop()
	log.Info("Worker stopped")
}
