package extraction

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/feichai0017/text-extractor/config"
	"github.com/feichai0017/text-extractor/internal/agent"
	"github.com/feichai0017/text-extractor/internal/models"
	"github.com/feichai0017/text-extractor/pkg/converters"
	"github.com/feichai0017/text-extractor/pkg/logger"
	"github.com/feichai0017/text-extractor/pkg/queue"
	"github.com/feichai0017/text-extractor/pkg/storage"
)

type Service struct {
	pipeline  *agent.Pipeline
	queue     queue.Queue
	storage   storage.Storage
	converter *converters.JSONConverter
	logger    logger.Logger
	config    *ServiceConfig
}

type ServiceConfig struct {
	// ExtractTimeout bounds ExtractNow and HandleTask.
	ExtractTimeout time.Duration
	// Priority selects the asynq queue for submitted tasks.
	Priority int
	// Defaults apply when an upload carries no config of its own.
	Defaults config.ExtractorConfig
}

// NewService wires the pipeline to storage and the queue. queue and
// storage may be nil for a service that only runs ExtractNow.
func NewService(
	pipeline *agent.Pipeline,
	q queue.Queue,
	store storage.Storage,
	log logger.Logger,
	cfg *ServiceConfig,
) *Service {
	if cfg == nil {
		cfg = &ServiceConfig{ExtractTimeout: 5 * time.Minute, Priority: 2}
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{
		pipeline:  pipeline,
		queue:     q,
		storage:   store,
		converter: converters.NewJSONConverter(),
		logger:    log.Named("service"),
		config:    cfg,
	}
}

func (s *Service) Supports(mimeType string) bool {
	return s.pipeline.Supports(mimeType)
}

func (s *Service) configFor(cfg *config.ExtractorConfig) *config.ExtractorConfig {
	if cfg != nil {
		return cfg
	}
	defaults := s.config.Defaults
	return &defaults
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config.ExtractTimeout > 0 {
		return context.WithTimeout(ctx, s.config.ExtractTimeout)
	}
	return context.WithCancel(ctx)
}

// ExtractNow returns a *config.ConfigError for invalid languages; every
// other failure is reported in the document.
func (s *Service) ExtractNow(ctx context.Context, upload *Upload) (*converters.ResultDocument, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.pipeline.ExtractTextFromFile(ctx, agent.File{
		Name:     upload.Filename,
		Data:     upload.Data,
		MimeType: upload.MimeType,
	}, s.configFor(upload.Config))
	if err != nil {
		return nil, err
	}

	return s.converter.Convert("", res, s.metadata(upload.Filename, upload.MimeType, int64(len(upload.Data)), upload.Hash))
}

func (s *Service) metadata(filename, mimeType string, size int64, hash string) converters.DocumentMetadata {
	if mimeType == "" {
		mimeType = agent.DetectMimeType(filename, nil)
	}
	return converters.DocumentMetadata{
		FileName: filename,
		MimeType: mimeType,
		FileSize: size,
		Hash:     hash,
	}
}

func uploadKey(taskID, filename string) string {
	name := path.Base(filename)
	if name == "." || name == "/" {
		name = "upload"
	}
	return fmt.Sprintf("uploads/%s/%s", taskID, name)
}

func resultKey(taskID string) string {
	return fmt.Sprintf("results/%s.json", taskID)
}

func (s *Service) requireAsync() error {
	if s.queue == nil || s.storage == nil {
		return errors.New("asynchronous extraction is not configured")
	}
	return nil
}

// Submit validates the config up front so language errors surface to the
// caller instead of failing the task later.
func (s *Service) Submit(ctx context.Context, upload *Upload) (*models.ExtractionTask, error) {
	if err := s.requireAsync(); err != nil {
		return nil, err
	}
	cfg, err := config.ParseConfig(s.configFor(upload.Config))
	if err != nil {
		return nil, err
	}

	taskID := uuid.New().String()
	now := time.Now().UTC()

	key, err := s.storage.Store(ctx, bytes.NewReader(upload.Data), uploadKey(taskID, upload.Filename))
	if err != nil {
		s.logger.Error("Failed to store upload",
			logger.String("taskId", taskID),
			logger.String("filename", upload.Filename),
			logger.Error(err),
		)
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	status := &queue.TaskStatus{
		TaskID:    taskID,
		Status:    string(models.StatusPending),
		Filename:  upload.Filename,
		MimeType:  upload.MimeType,
		Size:      int64(len(upload.Data)),
		Hash:      upload.Hash,
		CreatedAt: now,
	}
	if err := s.queue.SaveStatus(ctx, status); err != nil {
		s.logger.Warn("Failed to save initial status",
			logger.String("taskId", taskID),
			logger.Error(err),
		)
	}

	payload := &queue.Payload{
		TaskID:    taskID,
		ObjectKey: key,
		Filename:  upload.Filename,
		MimeType:  upload.MimeType,
		Size:      int64(len(upload.Data)),
		Hash:      upload.Hash,
		Priority:  s.config.Priority,
		Config:    cfg,
		CreatedAt: now,
	}
	if err := s.queue.Enqueue(ctx, payload); err != nil {
		s.logger.Error("Failed to enqueue task",
			logger.String("taskId", taskID),
			logger.Error(err),
		)
		if delErr := s.storage.Delete(ctx, key); delErr != nil {
			s.logger.Warn("Failed to remove orphaned upload", logger.String("key", key), logger.Error(delErr))
		}
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	s.logger.Info("Extraction task submitted",
		logger.String("taskId", taskID),
		logger.String("filename", upload.Filename),
		logger.String("mimeType", upload.MimeType),
	)
	return toTask(status), nil
}

// HandleTask runs the pipeline on a stored upload and records the result.
// Storage and queue errors are returned so the task is retried; a failed
// extraction is final and recorded as such.
func (s *Service) HandleTask(ctx context.Context, p *queue.Payload) error {
	if err := s.requireAsync(); err != nil {
		return err
	}
	if s.cancelled(ctx, p.TaskID) {
		s.logger.Info("Skipping cancelled task", logger.String("taskId", p.TaskID))
		return nil
	}

	status := &queue.TaskStatus{
		TaskID:    p.TaskID,
		Status:    string(models.StatusRunning),
		Progress:  0.1,
		Filename:  p.Filename,
		MimeType:  p.MimeType,
		Size:      p.Size,
		Hash:      p.Hash,
		CreatedAt: p.CreatedAt,
		StartedAt: time.Now().UTC(),
	}
	if err := s.queue.SaveStatus(ctx, status); err != nil {
		return err
	}

	data, err := storage.ReadAll(ctx, s.storage, p.ObjectKey)
	if err != nil {
		if storage.IsNotFound(err) {
			return s.finish(ctx, status, models.StatusFailed, "", fmt.Sprintf("upload %s is gone", p.ObjectKey))
		}
		return err
	}

	runCtx, cancel := s.withTimeout(ctx)
	defer cancel()
	res, err := s.pipeline.ExtractTextFromFile(runCtx, agent.File{
		Name:     p.Filename,
		Data:     data,
		MimeType: p.MimeType,
	}, s.configFor(p.Config))
	if err != nil {
		return s.finish(ctx, status, models.StatusFailed, "", err.Error())
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	doc, err := s.converter.Convert(p.TaskID, res, s.metadata(p.Filename, p.MimeType, p.Size, p.Hash))
	if err != nil {
		return err
	}
	encoded, err := s.converter.Encode(doc)
	if err != nil {
		return err
	}
	key, err := s.storage.Store(ctx, bytes.NewReader(encoded), resultKey(p.TaskID))
	if err != nil {
		return err
	}

	if err := s.storage.Delete(ctx, p.ObjectKey); err != nil {
		s.logger.Warn("Failed to remove processed upload", logger.String("key", p.ObjectKey), logger.Error(err))
	}
	return s.finish(ctx, status, doc.Status, key, doc.Error)
}

// finish records the final status. A task cancelled while it ran stays
// cancelled and its stored result is dropped.
func (s *Service) finish(ctx context.Context, status *queue.TaskStatus, final models.TaskStatus, key, errMsg string) error {
	if s.cancelled(ctx, status.TaskID) {
		s.logger.Info("Discarding result of cancelled task", logger.String("taskId", status.TaskID))
		if key != "" {
			if err := s.storage.Delete(ctx, key); err != nil {
				s.logger.Warn("Failed to remove discarded result", logger.String("key", key), logger.Error(err))
			}
		}
		return nil
	}

	status.Status = string(final)
	status.Progress = 1
	status.ResultKey = key
	status.Error = errMsg
	status.FinishedAt = time.Now().UTC()
	return s.queue.SaveStatus(ctx, status)
}

func (s *Service) cancelled(ctx context.Context, taskID string) bool {
	prev, err := s.queue.GetTaskStatus(ctx, taskID)
	return err == nil && models.TaskStatus(prev.Status) == models.StatusCancelled
}

// Cleanup removes stored uploads and results older than retention. Status
// records expire after the same period, so nothing can reference them.
func (s *Service) Cleanup(ctx context.Context, retention time.Duration) error {
	if err := s.requireAsync(); err != nil {
		return err
	}
	if retention <= 0 {
		return fmt.Errorf("cleanup retention must be positive, got %s", retention)
	}

	threshold := time.Now().Add(-retention)
	if err := s.storage.CleanupBefore(ctx, threshold); err != nil {
		return fmt.Errorf("failed to cleanup storage: %w", err)
	}

	s.logger.Info("Completed storage cleanup", logger.Time("threshold", threshold))
	return nil
}

func (s *Service) Status(ctx context.Context, taskID string) (*models.ExtractionTask, error) {
	if err := s.requireAsync(); err != nil {
		return nil, err
	}
	status, err := s.queue.GetTaskStatus(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return toTask(status), nil
}

// Result loads the stored document of a finished task.
func (s *Service) Result(ctx context.Context, taskID string) (*converters.ResultDocument, error) {
	task, err := s.Status(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !task.Status.Final() {
		return nil, fmt.Errorf("%w: task %s is %s", ErrResultNotReady, taskID, task.Status)
	}
	if task.ResultKey == "" {
		return &converters.ResultDocument{
			TaskID: taskID,
			Status: task.Status,
			Error:  task.Error,
			Metadata: converters.DocumentMetadata{
				FileName: task.Filename,
				MimeType: task.MimeType,
				FileSize: task.Size,
				Hash:     task.Hash,
			},
			ProcessedAt: task.UpdatedAt,
		}, nil
	}

	data, err := storage.ReadAll(ctx, s.storage, task.ResultKey)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, fmt.Errorf("%w: result of %s expired", ErrTaskNotFound, taskID)
		}
		return nil, err
	}
	return s.converter.Decode(data)
}

func (s *Service) Cancel(ctx context.Context, taskID string) error {
	task, err := s.Status(ctx, taskID)
	if err != nil {
		return err
	}
	if task.Status.Final() {
		return fmt.Errorf("%w: task %s already %s", ErrTaskFinished, taskID, task.Status)
	}

	if err := s.queue.CancelTask(ctx, taskID); err != nil && !errors.Is(err, queue.ErrTaskNotFound) {
		return err
	}

	status, err := s.queue.GetTaskStatus(ctx, taskID)
	if err != nil {
		return err
	}
	status.Status = string(models.StatusCancelled)
	status.FinishedAt = time.Now().UTC()
	if err := s.queue.SaveStatus(ctx, status); err != nil {
		return err
	}

	s.logger.Info("Extraction task cancelled", logger.String("taskId", taskID))
	return nil
}

func toTask(s *queue.TaskStatus) *models.ExtractionTask {
	updated := s.FinishedAt
	if updated.IsZero() {
		updated = s.StartedAt
	}
	if updated.IsZero() {
		updated = s.CreatedAt
	}
	return &models.ExtractionTask{
		ID:        s.TaskID,
		Status:    models.TaskStatus(s.Status),
		Progress:  s.Progress,
		Filename:  s.Filename,
		MimeType:  s.MimeType,
		Size:      s.Size,
		Hash:      s.Hash,
		Error:     s.Error,
		ResultKey: s.ResultKey,
		CreatedAt: s.CreatedAt,
		UpdatedAt: updated,
	}
}
