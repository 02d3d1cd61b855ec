// Package queue runs background tasks on a Redis stream with a consumer
// group, per-task status hashes and bounded retries.
package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"jobportal/internal/util"
)

const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusDone       = "done"
	StatusFailed     = "failed"
)

// Task is one unit of background work. Ref names the thing to act on, for
// example an object key.
type Task struct {
	ID           string    `json:"id"`
	Ref          string    `json:"ref"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	Attempts     int       `json:"attempts"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Handler processes a task. A nil error marks it done; otherwise it is
// retried until MaxRetries attempts have been made.
type Handler func(context.Context, Task) error

type RedisTaskQueue struct {
	client       redis.UniversalClient
	stream       string
	group        string
	consumerBase string
	taskTTL      time.Duration
	maxRetries   int
	block        time.Duration
	claimIdle    time.Duration
	retryDelay   time.Duration
	maxLen       int64
	readCount    int64
	claimCount   int64
	once         sync.Once
}

type RedisQueueConfig struct {
	Stream     string
	Group      string
	Consumer   string
	TaskTTL    time.Duration
	MaxRetries int
	Block      time.Duration
	ClaimIdle  time.Duration
	RetryDelay time.Duration
	MaxLen     int64
	ReadCount  int64
	ClaimCount int64
}

// NewRedisTaskQueue builds a queue on an existing client. Zero config values
// fall back to defaults.
func NewRedisTaskQueue(client redis.UniversalClient, cfg RedisQueueConfig) (*RedisTaskQueue, error) {
	if client == nil {
		return nil, errors.New("redis client required")
	}
	stream := strings.TrimSpace(cfg.Stream)
	if stream == "" {
		return nil, errors.New("queue stream required")
	}
	group := strings.TrimSpace(cfg.Group)
	if group == "" {
		group = "default"
	}
	consumer := strings.TrimSpace(cfg.Consumer)
	if consumer == "" {
		consumer = util.NewID()
	}
	q := &RedisTaskQueue{
		client:       client,
		stream:       stream,
		group:        group,
		consumerBase: consumer,
		taskTTL:      orDuration(cfg.TaskTTL, 24*time.Hour),
		maxRetries:   cfg.MaxRetries,
		block:        orDuration(cfg.Block, 5*time.Second),
		claimIdle:    orDuration(cfg.ClaimIdle, 30*time.Second),
		retryDelay:   orDuration(cfg.RetryDelay, 2*time.Second),
		maxLen:       cfg.MaxLen,
		readCount:    cfg.ReadCount,
		claimCount:   cfg.ClaimCount,
	}
	if q.maxRetries <= 0 {
		q.maxRetries = 3
	}
	if q.maxLen <= 0 {
		q.maxLen = 10000
	}
	if q.readCount <= 0 {
		q.readCount = 10
	}
	if q.claimCount <= 0 {
		q.claimCount = 10
	}
	return q, nil
}

func orDuration(v, fallback time.Duration) time.Duration {
	if v <= 0 {
		return fallback
	}
	return v
}

// Enqueue records a queued task for ref and appends it to the stream.
func (q *RedisTaskQueue) Enqueue(ctx context.Context, ref string) (Task, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Task{}, errors.New("task ref required")
	}
	now := time.Now().UTC()
	task := Task{
		ID:        util.NewID(),
		Ref:       ref,
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := q.writeStatus(ctx, task); err != nil {
		return Task{}, err
	}
	if err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		MaxLen: q.maxLen,
		Approx: true,
		Values: map[string]any{
			"task_id": task.ID,
			"ref":     task.Ref,
		},
	}).Err(); err != nil {
		return Task{}, err
	}
	return task, nil
}

// GetTask returns the recorded status of a task.
func (q *RedisTaskQueue) GetTask(ctx context.Context, taskID string) (Task, bool, error) {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return Task{}, false, nil
	}
	data, err := q.client.HGetAll(ctx, q.taskKey(taskID)).Result()
	if err != nil {
		return Task{}, false, err
	}
	if len(data) == 0 {
		return Task{}, false, nil
	}
	return decodeTask(taskID, data), true, nil
}

// Start launches concurrency consumers that run until ctx is done.
func (q *RedisTaskQueue) Start(ctx context.Context, concurrency int, handler Handler) {
	if concurrency <= 0 {
		concurrency = 1
	}
	q.ensureGroup(ctx)
	for i := 0; i < concurrency; i++ {
		consumer := fmt.Sprintf("%s-%d", q.consumerBase, i)
		go q.consumeLoop(ctx, consumer, handler)
	}
}

func (q *RedisTaskQueue) ensureGroup(ctx context.Context) {
	q.once.Do(func() {
		err := q.client.XGroupCreateMkStream(ctx, q.stream, q.group, "$").Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			util.LoggerFromContext(ctx).Warn("create consumer group failed", "stream", q.stream, "err", err)
		}
	})
}

func (q *RedisTaskQueue) consumeLoop(ctx context.Context, consumer string, handler Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if msgs, err := q.claimPending(ctx, consumer); err == nil {
			for _, msg := range msgs {
				q.handleMessage(ctx, msg, handler)
			}
		}

		streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.group,
			Consumer: consumer,
			Streams:  []string{q.stream, ">"},
			Count:    q.readCount,
			Block:    q.block,
		}).Result()
		if err != nil {
			continue
		}
		for _, stream := range streams {
			for _, msg := range stream.Messages {
				q.handleMessage(ctx, msg, handler)
			}
		}
	}
}

func (q *RedisTaskQueue) claimPending(ctx context.Context, consumer string) ([]redis.XMessage, error) {
	res, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   q.stream,
		Group:    q.group,
		Consumer: consumer,
		MinIdle:  q.claimIdle,
		Start:    "0-0",
		Count:    q.claimCount,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (q *RedisTaskQueue) handleMessage(ctx context.Context, msg redis.XMessage, handler Handler) {
	taskID, _ := msg.Values["task_id"].(string)
	ref, _ := msg.Values["ref"].(string)
	if taskID == "" || ref == "" {
		q.ackAndDel(ctx, msg.ID)
		return
	}
	task, err := q.markProcessing(ctx, taskID, ref)
	if err != nil {
		q.ackAndDel(ctx, msg.ID)
		return
	}
	herr := handler(ctx, task)
	if herr == nil {
		_ = q.mark(ctx, taskID, StatusDone, "")
		q.ackAndDel(ctx, msg.ID)
		return
	}
	logger := util.LoggerFromContext(ctx)
	if task.Attempts >= q.maxRetries {
		logger.Warn("task failed", "stream", q.stream, "task_id", taskID, "ref", ref, "attempts", task.Attempts, "err", herr)
		_ = q.mark(ctx, taskID, StatusFailed, herr.Error())
		q.ackAndDel(ctx, msg.ID)
		return
	}
	_ = q.mark(ctx, taskID, StatusQueued, herr.Error())
	select {
	case <-ctx.Done():
		return
	case <-time.After(q.retryDelay):
	}
	if err := q.requeueAndAck(ctx, msg.ID, taskID, ref); err != nil {
		logger.Warn("requeue task failed", "stream", q.stream, "task_id", taskID, "err", err)
	}
}

func (q *RedisTaskQueue) ackAndDel(ctx context.Context, msgID string) {
	_, _ = q.client.XAck(ctx, q.stream, q.group, msgID).Result()
	_, _ = q.client.XDel(ctx, q.stream, msgID).Result()
}

// requeueAndAck re-adds the task and drops the original message atomically,
// so a failure leaves the original pending for XAUTOCLAIM.
func (q *RedisTaskQueue) requeueAndAck(ctx context.Context, msgID, taskID, ref string) error {
	pipe := q.client.TxPipeline()
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		MaxLen: q.maxLen,
		Approx: true,
		Values: map[string]any{
			"task_id": taskID,
			"ref":     ref,
		},
	})
	pipe.XAck(ctx, q.stream, q.group, msgID)
	pipe.XDel(ctx, q.stream, msgID)
	_, err := pipe.Exec(ctx)
	return err
}

func (q *RedisTaskQueue) markProcessing(ctx context.Context, taskID, ref string) (Task, error) {
	task, _, err := q.GetTask(ctx, taskID)
	if err != nil {
		return Task{}, err
	}
	if task.ID == "" {
		task = Task{ID: taskID}
	}
	task.Ref = ref
	task.Attempts++
	task.Status = StatusProcessing
	task.UpdatedAt = time.Now().UTC()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = task.UpdatedAt
	}
	if err := q.writeStatus(ctx, task); err != nil {
		return Task{}, err
	}
	return task, nil
}

func (q *RedisTaskQueue) mark(ctx context.Context, taskID, status, errMsg string) error {
	task, _, err := q.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	task.Status = status
	task.ErrorMessage = errMsg
	task.UpdatedAt = time.Now().UTC()
	return q.writeStatus(ctx, task)
}

func (q *RedisTaskQueue) writeStatus(ctx context.Context, task Task) error {
	key := q.taskKey(task.ID)
	payload := map[string]any{
		"id":        task.ID,
		"ref":       task.Ref,
		"status":    task.Status,
		"error":     task.ErrorMessage,
		"attempts":  strconv.Itoa(task.Attempts),
		"createdAt": task.CreatedAt.Format(time.RFC3339Nano),
		"updatedAt": task.UpdatedAt.Format(time.RFC3339Nano),
	}
	if err := q.client.HSet(ctx, key, payload).Err(); err != nil {
		return err
	}
	_ = q.client.Expire(ctx, key, q.taskTTL).Err()
	return nil
}

func (q *RedisTaskQueue) taskKey(taskID string) string {
	return fmt.Sprintf("task:%s:%s", q.stream, taskID)
}

func decodeTask(taskID string, data map[string]string) Task {
	task := Task{ID: taskID, Ref: data["ref"], Status: data["status"], ErrorMessage: data["error"]}
	if n, err := strconv.Atoi(data["attempts"]); err == nil {
		task.Attempts = n
	}
	if t, err := time.Parse(time.RFC3339Nano, data["createdAt"]); err == nil {
		task.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, data["updatedAt"]); err == nil {
		task.UpdatedAt = t
	}
	return task
}
