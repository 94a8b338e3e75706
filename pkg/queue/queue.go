package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/feichai0017/text-extractor/config"
)

// TaskTypeExtractText is the asynq task type handled by the worker.
const TaskTypeExtractText = "extract:text"

// TaskTypeCleanup is the periodic task that expires stored objects.
const TaskTypeCleanup = "storage:cleanup"

const statusKeyPrefix = "task_status:"

// ErrTaskNotFound is returned when neither redis nor asynq knows a task.
var ErrTaskNotFound = errors.New("task not found")

// Queue schedules extraction tasks and tracks their status.
type Queue interface {
	Enqueue(ctx context.Context, payload *Payload) error
	GetTaskStatus(ctx context.Context, taskID string) (*TaskStatus, error)
	CancelTask(ctx context.Context, taskID string) error
	SaveStatus(ctx context.Context, status *TaskStatus) error
}

// Payload is the body of an extract:text task.
type Payload struct {
	TaskID    string                  `json:"taskId"`
	ObjectKey string                  `json:"objectKey"`
	Filename  string                  `json:"filename"`
	MimeType  string                  `json:"mimeType"`
	Size      int64                   `json:"size"`
	Hash      string                  `json:"hash,omitempty"`
	Priority  int                     `json:"priority"`
	Config    *config.ExtractorConfig `json:"config,omitempty"`
	CreatedAt time.Time               `json:"createdAt"`
}

// TaskStatus is stored in redis under task_status:<id>.
type TaskStatus struct {
	TaskID     string    `json:"taskId"`
	Status     string    `json:"status"`
	Progress   float64   `json:"progress"`
	Error      string    `json:"error,omitempty"`
	Filename   string    `json:"filename,omitempty"`
	MimeType   string    `json:"mimeType,omitempty"`
	Size       int64     `json:"size,omitempty"`
	Hash       string    `json:"hash,omitempty"`
	ResultKey  string    `json:"resultKey,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	StartedAt  time.Time `json:"startedAt,omitempty"`
	FinishedAt time.Time `json:"finishedAt,omitempty"`
}

// NewExtractTask encodes p as an asynq task.
func NewExtractTask(p *Payload, opts ...asynq.Option) (*asynq.Task, error) {
	if p.TaskID == "" || p.ObjectKey == "" {
		return nil, fmt.Errorf("invalid payload: task id and object key are required")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task: %w", err)
	}
	return asynq.NewTask(TaskTypeExtractText, data, opts...), nil
}

// NewCleanupTask builds the periodic storage cleanup task.
func NewCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskTypeCleanup, nil)
}

// ParsePayload decodes an extract:text task body.
func ParsePayload(t *asynq.Task) (*Payload, error) {
	if t.Type() != TaskTypeExtractText {
		return nil, fmt.Errorf("unexpected task type %q", t.Type())
	}
	var p Payload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}
	if p.TaskID == "" || p.ObjectKey == "" {
		return nil, fmt.Errorf("invalid payload: task id and object key are required")
	}
	return &p, nil
}

// QueueName maps a priority onto the configured queues: 1 critical,
// 2 default, anything else low.
func QueueName(priority int) string {
	switch priority {
	case 1:
		return "critical"
	case 2:
		return "default"
	default:
		return "low"
	}
}

// AsynqQueue implements Queue on asynq and go-redis.
type AsynqQueue struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	redis     *redis.Client
	cfg       config.QueueConfig
}

// RedisClientOpt converts the shared redis config for asynq.
func RedisClientOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

func NewAsynqQueue(redisCfg config.RedisConfig, cfg config.QueueConfig) *AsynqQueue {
	redisOpt := RedisClientOpt(redisCfg)

	return &AsynqQueue{
		client:    asynq.NewClient(redisOpt),
		inspector: asynq.NewInspector(redisOpt),
		redis: redis.NewClient(&redis.Options{
			Addr:     redisCfg.Addr,
			Password: redisCfg.Password,
			DB:       redisCfg.DB,
		}),
		cfg: cfg,
	}
}

// Ping checks the redis connection.
func (q *AsynqQueue) Ping(ctx context.Context) error {
	return q.redis.Ping(ctx).Err()
}

func (q *AsynqQueue) Close() error {
	return errors.Join(q.client.Close(), q.inspector.Close(), q.redis.Close())
}

// Enqueue schedules payload under its task id.
func (q *AsynqQueue) Enqueue(ctx context.Context, payload *Payload) error {
	opts := []asynq.Option{
		asynq.MaxRetry(q.cfg.MaxRetries),
		asynq.TaskID(payload.TaskID),
		asynq.Queue(QueueName(payload.Priority)),
	}
	if q.cfg.ProcessTimeout > 0 {
		opts = append(opts, asynq.Timeout(q.cfg.ProcessTimeout))
	}
	if q.cfg.StatusTTL > 0 {
		opts = append(opts, asynq.Retention(q.cfg.StatusTTL))
	}

	t, err := NewExtractTask(payload, opts...)
	if err != nil {
		return err
	}
	if _, err := q.client.EnqueueContext(ctx, t); err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}

// GetTaskStatus prefers the status saved in redis and falls back to the
// asynq inspector.
func (q *AsynqQueue) GetTaskStatus(ctx context.Context, taskID string) (*TaskStatus, error) {
	data, err := q.redis.Get(ctx, statusKeyPrefix+taskID).Bytes()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to get status from redis: %w", err)
	}
	if err == nil {
		return DecodeStatus(data)
	}

	for _, name := range q.queueNames() {
		info, err := q.inspector.GetTaskInfo(name, taskID)
		if err == nil {
			return convertAsynqStatus(info), nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
}

// CancelTask removes a waiting task and signals a running one.
func (q *AsynqQueue) CancelTask(ctx context.Context, taskID string) error {
	for _, name := range q.queueNames() {
		info, err := q.inspector.GetTaskInfo(name, taskID)
		if err != nil {
			continue
		}
		if info.State == asynq.TaskStateActive {
			if err := q.inspector.CancelProcessing(taskID); err != nil {
				return fmt.Errorf("failed to cancel task: %w", err)
			}
			return nil
		}
		if err := q.inspector.DeleteTask(name, taskID); err != nil {
			return fmt.Errorf("failed to cancel task: %w", err)
		}
		return nil
	}
	return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
}

// SaveStatus writes status with the configured TTL.
func (q *AsynqQueue) SaveStatus(ctx context.Context, status *TaskStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}
	if err := q.redis.Set(ctx, statusKeyPrefix+status.TaskID, data, q.cfg.StatusTTL).Err(); err != nil {
		return fmt.Errorf("failed to save status: %w", err)
	}
	return nil
}

func (q *AsynqQueue) queueNames() []string {
	if len(q.cfg.Queues) == 0 {
		return []string{"critical", "default", "low"}
	}
	names := make([]string, 0, len(q.cfg.Queues))
	for name := range q.cfg.Queues {
		names = append(names, name)
	}
	return names
}

// DecodeStatus parses a stored status.
func DecodeStatus(data []byte) (*TaskStatus, error) {
	var status TaskStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status: %w", err)
	}
	return &status, nil
}

func convertAsynqStatus(info *asynq.TaskInfo) *TaskStatus {
	status := &TaskStatus{
		TaskID:    info.ID,
		StartedAt: info.NextProcessAt,
	}

	switch info.State {
	case asynq.TaskStatePending, asynq.TaskStateScheduled, asynq.TaskStateAggregating:
		status.Status = "pending"
	case asynq.TaskStateActive, asynq.TaskStateRetry:
		status.Status = "running"
		status.Progress = 0.5
		status.Error = info.LastErr
	case asynq.TaskStateCompleted:
		status.Status = "completed"
		status.Progress = 1.0
		status.FinishedAt = info.CompletedAt
	case asynq.TaskStateArchived:
		status.Status = "failed"
		status.Error = info.LastErr
		status.FinishedAt = info.LastFailedAt
	}

	if p, err := ParsePayload(asynq.NewTask(info.Type, info.Payload)); err == nil {
		status.Filename = p.Filename
		status.MimeType = p.MimeType
		status.Size = p.Size
		status.Hash = p.Hash
		status.CreatedAt = p.CreatedAt
	}
	return status
}
