package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/feichai0017/text-extractor/config"
	"github.com/feichai0017/text-extractor/pkg/logger"
	"github.com/feichai0017/text-extractor/pkg/queue"
)

// TaskHandler runs one decoded extraction task.
type TaskHandler interface {
	HandleTask(ctx context.Context, payload *queue.Payload) error
}

// Cleaner expires stored objects older than retention.
type Cleaner interface {
	Cleanup(ctx context.Context, retention time.Duration) error
}

type ExtractionWorker struct {
	BaseWorker
	handler   TaskHandler
	redisOpt  asynq.RedisClientOpt
	cleaner   Cleaner
	retention time.Duration
}

func NewExtractionWorker(redisCfg config.RedisConfig, cfg config.QueueConfig, handler TaskHandler, log logger.Logger) *ExtractionWorker {
	if log == nil {
		log = logger.NewNop()
	}
	retryDelay := cfg.RetryDelay
	server := asynq.NewServer(
		queue.RedisClientOpt(redisCfg),
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues:      cfg.Queues,
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				if retryDelay > 0 {
					return time.Duration(n+1) * retryDelay
				}
				return asynq.DefaultRetryDelayFunc(n, err, task)
			},
			Logger: asynqLogger{log.Named("asynq")},
		},
	)

	w := &ExtractionWorker{
		BaseWorker: BaseWorker{
			server: server,
			mux:    asynq.NewServeMux(),
			logger: log,
		},
		handler:  handler,
		redisOpt: queue.RedisClientOpt(redisCfg),
	}
	w.mux.HandleFunc(queue.TaskTypeExtractText, w.ProcessTask)
	return w
}

// ScheduleCleanup enqueues a cleanup task every interval and handles it by
// calling c with retention. Call it before Start.
func (w *ExtractionWorker) ScheduleCleanup(c Cleaner, retention, interval time.Duration) error {
	if interval <= 0 || retention <= 0 {
		return fmt.Errorf("cleanup needs a positive interval and retention, got %s and %s", interval, retention)
	}
	w.cleaner = c
	w.retention = retention
	w.mux.HandleFunc(queue.TaskTypeCleanup, w.ProcessCleanup)

	w.scheduler = asynq.NewScheduler(w.redisOpt, &asynq.SchedulerOpts{
		Logger: asynqLogger{w.logger.Named("scheduler")},
	})
	if _, err := w.scheduler.Register(fmt.Sprintf("@every %s", interval), queue.NewCleanupTask(),
		asynq.Queue("low"),
		asynq.MaxRetry(0),
	); err != nil {
		return fmt.Errorf("failed to register cleanup task: %w", err)
	}

	w.logger.Info("Scheduled storage cleanup",
		logger.Duration("interval", interval),
		logger.Duration("retention", retention),
	)
	return nil
}

// ProcessCleanup runs one scheduled cleanup.
func (w *ExtractionWorker) ProcessCleanup(ctx context.Context, _ *asynq.Task) error {
	if w.cleaner == nil {
		return fmt.Errorf("%w: cleanup is not configured", asynq.SkipRetry)
	}
	if err := w.cleaner.Cleanup(ctx, w.retention); err != nil {
		w.logger.Error("Storage cleanup failed", logger.Error(err))
		return err
	}
	return nil
}

// ProcessTask decodes t and hands it to the handler. Undecodable payloads
// are not retried.
func (w *ExtractionWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	payload, err := queue.ParsePayload(t)
	if err != nil {
		w.logger.Error("Dropping invalid task",
			logger.String("type", t.Type()),
			logger.Error(err),
		)
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	w.logger.Info("Processing extraction task",
		logger.String("taskId", payload.TaskID),
		logger.String("filename", payload.Filename),
		logger.String("mimeType", payload.MimeType),
	)

	start := time.Now()
	if err := w.handler.HandleTask(ctx, payload); err != nil {
		w.logger.Error("Extraction task failed",
			logger.String("taskId", payload.TaskID),
			logger.Duration("duration", time.Since(start)),
			logger.Error(err),
		)
		return err
	}

	w.logger.Info("Extraction task finished",
		logger.String("taskId", payload.TaskID),
		logger.Duration("duration", time.Since(start)),
	)
	return nil
}

// Start runs the server in the background until ctx is done.
func (w *ExtractionWorker) Start(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			w.server.Shutdown()
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}

	go func() {
		<-ctx.Done()
		w.Stop()
	}()

	return nil
}

// asynqLogger routes asynq's own logging through our logger.
type asynqLogger struct {
	log logger.Logger
}

func (l asynqLogger) Debug(args ...interface{}) { l.log.Debug(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...interface{})  { l.log.Info(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...interface{})  { l.log.Warn(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...interface{}) { l.log.Error(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...interface{}) { l.log.Fatal(fmt.Sprint(args...)) }
