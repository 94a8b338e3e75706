package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/text-extractor/api/handlers"
	"github.com/feichai0017/text-extractor/api/routes"
	"github.com/feichai0017/text-extractor/config"
	"github.com/feichai0017/text-extractor/internal/agent"
	"github.com/feichai0017/text-extractor/internal/agent/ocr"
	"github.com/feichai0017/text-extractor/internal/service/extraction"
	"github.com/feichai0017/text-extractor/internal/utils/validator"
	"github.com/feichai0017/text-extractor/pkg/logger"
	"github.com/feichai0017/text-extractor/pkg/queue"
	"github.com/feichai0017/text-extractor/pkg/storage"
)

func main() {
	cfg, err := config.Get()
	if err != nil {
		panic(err)
	}

	// init logger
	log, err := logger.NewLogger(logger.FromConfig(cfg.Log)...)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx := context.Background()

	pipeline, err := agent.New(log, agent.WithOCR(ocr.DefaultFactory))
	if err != nil {
		log.Fatal("Failed to build extraction pipeline", logger.Error(err))
	}

	store, err := storage.NewStorage(ctx, cfg.Storage, log)
	if err != nil {
		log.Fatal("Failed to create storage", logger.Error(err))
	}

	q := queue.NewAsynqQueue(cfg.Redis, cfg.Queue)
	defer q.Close()

	svc := extraction.NewService(pipeline, q, store, log, &extraction.ServiceConfig{
		ExtractTimeout: cfg.Limits.ExtractTimeout,
		Priority:       2,
		Defaults:       cfg.Extractor,
	})

	v := validator.NewDocumentValidator(log, &validator.ValidatorConfig{MaxFileSize: cfg.Limits.MaxFileSize}, svc.Supports)
	health := handlers.NewHealthHandler(func(ctx context.Context) string {
		return ocr.DefaultFactory(ctx, cfg.Extractor.Tesseract, log).EngineID()
	}, q.Ping)

	// init handlers
	h := handlers.NewHandlers(svc, v, cfg.Extractor, health, log)
	r := gin.New()
	r.Use(gin.Recovery())
	r.MaxMultipartMemory = cfg.Limits.MaxFileSize
	routes.SetupRoutes(r, h, cfg.Server, log)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: r,
	}

	// start server
	go func() {
		log.Info("Server starting", logger.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server error", logger.Error(err))
		}
	}()

	// wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", logger.Error(err))
	}
}
