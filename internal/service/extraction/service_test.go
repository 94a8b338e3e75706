package extraction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/text-extractor/config"
	"github.com/feichai0017/text-extractor/internal/agent"
	"github.com/feichai0017/text-extractor/internal/agent/ocr"
	"github.com/feichai0017/text-extractor/internal/agent/ocr/ocrtest"
	"github.com/feichai0017/text-extractor/internal/models"
	"github.com/feichai0017/text-extractor/pkg/logger"
	"github.com/feichai0017/text-extractor/pkg/queue"
	"github.com/feichai0017/text-extractor/pkg/storage/memory"
)

// fakeQueue keeps statuses and enqueued payloads in memory.
type fakeQueue struct {
	mu         sync.Mutex
	statuses   map[string]queue.TaskStatus
	enqueued   []*queue.Payload
	enqueueErr error
	cancelled  []string
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{statuses: make(map[string]queue.TaskStatus)}
}

func (q *fakeQueue) Enqueue(_ context.Context, p *queue.Payload) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.enqueueErr != nil {
		return q.enqueueErr
	}
	q.enqueued = append(q.enqueued, p)
	return nil
}

func (q *fakeQueue) GetTaskStatus(_ context.Context, id string) (*queue.TaskStatus, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	s, ok := q.statuses[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", queue.ErrTaskNotFound, id)
	}
	return &s, nil
}

func (q *fakeQueue) CancelTask(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cancelled = append(q.cancelled, id)
	return nil
}

func (q *fakeQueue) SaveStatus(_ context.Context, s *queue.TaskStatus) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.statuses[s.TaskID] = *s
	return nil
}

type fixture struct {
	svc     *Service
	queue   *fakeQueue
	storage *memory.Storage
	engine  *ocrtest.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	engine := &ocrtest.Engine{EngineID: ocr.EngineCLI, Text: "recognized"}
	pipeline, err := agent.New(logger.NewNop(), agent.WithOCR(ocrtest.Factory(engine)))
	require.NoError(t, err)

	q := newFakeQueue()
	store := memory.New()
	return &fixture{
		svc:     NewService(pipeline, q, store, logger.NewNop(), nil),
		queue:   q,
		storage: store,
		engine:  engine,
	}
}

func TestExtractNow_Text(t *testing.T) {
	f := newFixture(t)

	doc, err := f.svc.ExtractNow(context.Background(), &Upload{Filename: "a.txt", Data: []byte("Hello, world!")})
	require.NoError(t, err)

	assert.Equal(t, models.StatusCompleted, doc.Status)
	assert.Equal(t, "text", doc.Extractor)
	require.NotNil(t, doc.Content)
	assert.Equal(t, "Hello, world!", *doc.Content)
	assert.Equal(t, "text/plain", doc.Metadata.MimeType)
	assert.Equal(t, 13, doc.Metadata.Characters)
}

func TestExtractNow_ConfigError(t *testing.T) {
	f := newFixture(t)
	cfg := &config.ExtractorConfig{Tesseract: config.TesseractConfig{Languages: []string{"xx"}}}

	_, err := f.svc.ExtractNow(context.Background(), &Upload{Filename: "a.png", MimeType: "image/png", Data: []byte("x"), Config: cfg})
	var cfgErr *config.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestExtractNow_FailureInDocument(t *testing.T) {
	f := newFixture(t)

	doc, err := f.svc.ExtractNow(context.Background(), &Upload{Filename: "a.pdf", MimeType: "application/pdf", Data: []byte("nope")})
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, doc.Status)
	assert.Equal(t, "pdf", doc.Extractor)
	assert.Contains(t, doc.Error, "malformed pdf")
}

func TestSubmitAndHandle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cfg := &config.ExtractorConfig{Tesseract: config.TesseractConfig{Languages: []string{"fra"}}}

	task, err := f.svc.Submit(ctx, &Upload{Filename: "scan.png", MimeType: "image/png", Data: []byte("png"), Hash: "h", Config: cfg})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, task.Status)
	require.Len(t, f.queue.enqueued, 1)

	payload := f.queue.enqueued[0]
	assert.Equal(t, task.ID, payload.TaskID)
	assert.Equal(t, "uploads/"+task.ID+"/scan.png", payload.ObjectKey)
	assert.Equal(t, []string{"fra"}, payload.Config.Tesseract.Languages)
	assert.Equal(t, 1, payload.Config.PDF.OCRConcurrency)

	_, err = f.svc.Result(ctx, task.ID)
	assert.ErrorIs(t, err, ErrResultNotReady)

	require.NoError(t, f.svc.HandleTask(ctx, payload))

	status, err := f.svc.Status(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, status.Status)
	assert.Equal(t, float64(1), status.Progress)

	doc, err := f.svc.Result(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, task.ID, doc.TaskID)
	assert.Equal(t, "image:tesseract-cli", doc.ExtractorType)
	require.NotNil(t, doc.Content)
	assert.Equal(t, "recognized", *doc.Content)
	assert.Equal(t, [][]string{{"fra"}}, f.engine.Languages())

	assert.ElementsMatch(t, []string{"results/" + task.ID + ".json"}, f.storage.Keys())
}

func TestSubmit_InvalidLanguages(t *testing.T) {
	f := newFixture(t)
	cfg := &config.ExtractorConfig{Tesseract: config.TesseractConfig{Languages: []string{"zz"}}}

	_, err := f.svc.Submit(context.Background(), &Upload{Filename: "a.png", Data: []byte("x"), Config: cfg})
	var cfgErr *config.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Empty(t, f.storage.Keys())
	assert.Empty(t, f.queue.enqueued)
}

func TestSubmit_EnqueueFailureRemovesUpload(t *testing.T) {
	f := newFixture(t)
	f.queue.enqueueErr = errors.New("redis down")

	_, err := f.svc.Submit(context.Background(), &Upload{Filename: "a.txt", Data: []byte("x")})
	assert.ErrorContains(t, err, "redis down")
	assert.Empty(t, f.storage.Keys())
}

func TestHandleTask_ExtractionFailureIsFinal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	task, err := f.svc.Submit(ctx, &Upload{Filename: "bad.pdf", MimeType: "application/pdf", Data: []byte("garbage")})
	require.NoError(t, err)
	require.NoError(t, f.svc.HandleTask(ctx, f.queue.enqueued[0]))

	status, err := f.svc.Status(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, status.Status)
	assert.Contains(t, status.Error, "malformed pdf")

	doc, err := f.svc.Result(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, doc.Status)
	assert.Nil(t, doc.Content)
}

func TestHandleTask_MissingUpload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.svc.HandleTask(ctx, &queue.Payload{TaskID: "t", ObjectKey: "uploads/t/gone.txt"})
	require.NoError(t, err)

	status, err := f.svc.Status(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, status.Status)

	doc, err := f.svc.Result(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, doc.Status)
	assert.Contains(t, doc.Error, "gone")
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	task, err := f.svc.Submit(ctx, &Upload{Filename: "a.txt", Data: []byte("x")})
	require.NoError(t, err)

	require.NoError(t, f.svc.Cancel(ctx, task.ID))
	assert.Equal(t, []string{task.ID}, f.queue.cancelled)

	status, err := f.svc.Status(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, status.Status)

	// a late delivery of the cancelled task is ignored
	require.NoError(t, f.svc.HandleTask(ctx, f.queue.enqueued[0]))
	status, err = f.svc.Status(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, status.Status)

	err = f.svc.Cancel(ctx, task.ID)
	assert.ErrorIs(t, err, ErrTaskFinished)
	assert.ErrorContains(t, err, "already cancelled")
}

func TestHandleTask_CancelledWhileRunning(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	task, err := f.svc.Submit(ctx, &Upload{Filename: "scan.png", MimeType: "image/png", Data: []byte("png")})
	require.NoError(t, err)

	f.engine.Respond = func([]byte) (string, error) {
		require.NoError(t, f.svc.Cancel(ctx, task.ID))
		return "too late", nil
	}
	require.NoError(t, f.svc.HandleTask(ctx, f.queue.enqueued[0]))

	status, err := f.svc.Status(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, status.Status)
	assert.Empty(t, f.storage.Keys())

	_, err = f.svc.Result(ctx, task.ID)
	require.NoError(t, err)
}

func TestCleanup_RemovesExpiredObjects(t *testing.T) {
	ctx := context.Background()
	now := time.Now().Add(-48 * time.Hour)
	store := memory.New(memory.WithClock(func() time.Time { return now }))

	pipeline, err := agent.New(logger.NewNop())
	require.NoError(t, err)
	log := logger.NewTestLogger()
	svc := NewService(pipeline, newFakeQueue(), store, log, nil)

	_, err = store.Store(ctx, strings.NewReader("stale"), "uploads/old/a.txt")
	require.NoError(t, err)
	_, err = store.Store(ctx, strings.NewReader("{}"), "results/old.json")
	require.NoError(t, err)
	now = time.Now()
	_, err = store.Store(ctx, strings.NewReader("{}"), "results/new.json")
	require.NoError(t, err)

	require.NoError(t, svc.Cleanup(ctx, 24*time.Hour))
	assert.Equal(t, []string{"results/new.json"}, store.Keys())
	assert.Len(t, log.EntriesAt("INFO"), 1)
}

func TestCleanup_Errors(t *testing.T) {
	f := newFixture(t)
	assert.ErrorContains(t, f.svc.Cleanup(context.Background(), 0), "must be positive")

	pipeline, err := agent.New(nil)
	require.NoError(t, err)
	syncOnly := NewService(pipeline, nil, nil, nil, nil)
	assert.ErrorContains(t, syncOnly.Cleanup(context.Background(), time.Hour), "not configured")
}

func TestStatus_Unknown(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Status(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestSyncOnlyService(t *testing.T) {
	pipeline, err := agent.New(nil)
	require.NoError(t, err)
	svc := NewService(pipeline, nil, nil, nil, nil)

	_, err = svc.Submit(context.Background(), &Upload{Filename: "a.txt", Data: []byte("x")})
	assert.ErrorContains(t, err, "not configured")
	assert.True(t, svc.Supports("text/plain"))
}
