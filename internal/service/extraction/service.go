package extraction

import (
	"context"
	"errors"
	"time"

	"github.com/feichai0017/text-extractor/config"
	"github.com/feichai0017/text-extractor/internal/models"
	"github.com/feichai0017/text-extractor/pkg/converters"
	"github.com/feichai0017/text-extractor/pkg/queue"
)

var (
	// ErrTaskNotFound is returned for unknown or expired task ids.
	ErrTaskNotFound = queue.ErrTaskNotFound
	// ErrResultNotReady is returned by Result before the task has finished.
	ErrResultNotReady = errors.New("result not ready")
	// ErrTaskFinished is returned when cancelling a task that already ended.
	ErrTaskFinished = errors.New("task already finished")
)

// Upload is a validated file submitted for extraction.
type Upload struct {
	Filename string
	MimeType string
	Hash     string
	Data     []byte
	Config   *config.ExtractorConfig
}

type Extractor interface {
	// ExtractNow runs the pipeline in the calling goroutine.
	ExtractNow(ctx context.Context, upload *Upload) (*converters.ResultDocument, error)
	// Submit stores the upload and enqueues an extraction task.
	Submit(ctx context.Context, upload *Upload) (*models.ExtractionTask, error)
	// HandleTask runs a queued extraction; called by the worker.
	HandleTask(ctx context.Context, payload *queue.Payload) error
	Status(ctx context.Context, taskID string) (*models.ExtractionTask, error)
	Result(ctx context.Context, taskID string) (*converters.ResultDocument, error)
	Cancel(ctx context.Context, taskID string) error
	// Cleanup removes stored objects older than retention.
	Cleanup(ctx context.Context, retention time.Duration) error
	// Supports reports whether some extractor claims mimeType.
	Supports(mimeType string) bool
}

var _ Extractor = (*Service)(nil)
