package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/grantflow/backend/internal/config"
	"github.com/grantflow/backend/internal/lifecycle"
	"github.com/grantflow/backend/pkg/logger"
	"github.com/hibiken/asynq"
)

const (
	TaskTypeNotice = "notice:dispatch"
)

// NoticeTask carries one notice from the committing request to the dispatcher.
type NoticeTask struct {
	ID        string           `json:"id"`
	Notice    lifecycle.Notice `json:"notice"`
	CreatedAt time.Time        `json:"createdAt"`
}

// TaskQueue hands notice tasks to the dispatcher.
type TaskQueue interface {
	Enqueue(task *NoticeTask) error
	// IsAsync returns true if queue processes tasks asynchronously
	IsAsync() bool
	Close() error
}

// InitTaskQueue picks the Redis-backed queue when Redis is enabled and
// reachable, otherwise the in-process one.
func InitTaskQueue(cfg *config.Config) TaskQueue {
	if cfg.Redis.Enabled {
		queue, err := NewAsyncQueue(&cfg.Redis)
		if err != nil {
			logger.Warnf("[TaskQueue] Redis unavailable, falling back to sync mode: %v", err)
			return NewSyncQueue()
		}
		logger.Infof("[TaskQueue] Async queue initialized with Redis at %s", cfg.Redis.Addr)
		return queue
	}
	logger.Infof("[TaskQueue] Sync queue initialized (Redis disabled)")
	return NewSyncQueue()
}

func redisOpt(cfg *config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

// AsyncQueue implements TaskQueue using asynq (Redis-based)
type AsyncQueue struct {
	client *asynq.Client
}

func NewAsyncQueue(cfg *config.RedisConfig) (*AsyncQueue, error) {
	opt := redisOpt(cfg)
	client := asynq.NewClient(opt)

	inspector := asynq.NewInspector(opt)
	defer inspector.Close()

	if _, err := inspector.Queues(); err != nil {
		client.Close()
		return nil, err
	}

	return &AsyncQueue{client: client}, nil
}

func (q *AsyncQueue) Enqueue(task *NoticeTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return err
	}

	t := asynq.NewTask(TaskTypeNotice, payload)
	info, err := q.client.Enqueue(t,
		asynq.Queue("notifications"),
		asynq.MaxRetry(3),
		asynq.Timeout(time.Minute),
	)
	if err != nil {
		return err
	}

	logger.Debug().Str("task_id", info.ID).Str("kind", string(task.Notice.Kind)).Msg("[AsyncQueue] notice enqueued")
	return nil
}

func (q *AsyncQueue) IsAsync() bool {
	return true
}

func (q *AsyncQueue) Close() error {
	return q.client.Close()
}

// SyncQueue runs the processor in-process, one goroutine per task.
type SyncQueue struct {
	processor func(context.Context, *NoticeTask) error
}

func NewSyncQueue() *SyncQueue {
	return &SyncQueue{}
}

func (q *SyncQueue) SetProcessor(processor func(context.Context, *NoticeTask) error) {
	q.processor = processor
}

// Enqueue returns at once; the task runs on its own goroutine.
func (q *SyncQueue) Enqueue(task *NoticeTask) error {
	if q.processor == nil {
		logger.Warnf("[SyncQueue] no processor set, notice %s dropped", task.Notice.Kind)
		return nil
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := q.processor(ctx, task); err != nil {
			logger.Warnf("[SyncQueue] notice %s failed: %v", task.Notice.Kind, err)
		}
	}()

	return nil
}

func (q *SyncQueue) IsAsync() bool {
	return false
}

func (q *SyncQueue) Close() error {
	return nil
}
