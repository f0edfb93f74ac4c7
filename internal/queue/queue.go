// Package queue distributes optimization jobs to workers over Redis streams.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sbenjam1n/hlsopt/internal/optimizer"
)

const (
	// StreamJobs is the Redis stream of pending optimization jobs.
	StreamJobs = "hlsopt_jobs"
	// StreamResults is the Redis stream of finished jobs.
	StreamResults = "hlsopt_results"

	// GroupWorkers is the consumer group of synthesis workers.
	GroupWorkers = "hlsopt_workers"
	// GroupReporters is the consumer group reading results.
	GroupReporters = "hlsopt_reporters"
)

// ErrNoMessages is returned when a read finds nothing.
var ErrNoMessages = errors.New("no messages")

// JobMessage asks a worker to optimize one application.
type JobMessage struct {
	JobID  string           `json:"job_id"`
	App    string           `json:"application"`
	Params optimizer.Params `json:"params"`
}

// ResultMessage reports a finished job.
type ResultMessage struct {
	JobID string `json:"job_id"`
	RunID string `json:"run_id,omitempty"`
	App   string `json:"application"`
	State string `json:"state,omitempty"`
	Error string `json:"error,omitempty"`
}

// Queue manages the job and result streams.
type Queue struct {
	client *redis.Client
}

// New creates a Queue from a Redis client.
func New(client *redis.Client) *Queue {
	return &Queue{client: client}
}

// ConnectRedis creates a Redis client from a URL.
func ConnectRedis(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	return redis.NewClient(opts), nil
}

// EnsureStreams creates the consumer groups if they don't exist.
func (q *Queue) EnsureStreams(ctx context.Context) error {
	for _, pair := range []struct {
		stream, group string
	}{
		{StreamJobs, GroupWorkers},
		{StreamResults, GroupReporters},
	} {
		err := q.client.XGroupCreateMkStream(ctx, pair.stream, pair.group, "0").Err()
		if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
			return fmt.Errorf("create group %s on %s: %w", pair.group, pair.stream, err)
		}
	}
	return nil
}

// PushJob adds a job, assigning a JobID when empty.
func (q *Queue) PushJob(ctx context.Context, msg JobMessage) (string, error) {
	if msg.JobID == "" {
		msg.JobID = uuid.NewString()
	}
	params, err := json.Marshal(msg.Params)
	if err != nil {
		return "", fmt.Errorf("encode params: %w", err)
	}
	_, err = q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamJobs,
		Values: map[string]any{
			"job_id":      msg.JobID,
			"application": msg.App,
			"params":      string(params),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("push job: %w", err)
	}
	return msg.JobID, nil
}

// ReadJob reads one job for consumer. block 0 waits forever.
func (q *Queue) ReadJob(ctx context.Context, consumer string, block time.Duration) (*JobMessage, string, error) {
	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    GroupWorkers,
		Consumer: consumer,
		Streams:  []string{StreamJobs, ">"},
		Count:    1,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, "", ErrNoMessages
	}
	if err != nil {
		return nil, "", fmt.Errorf("read job: %w", err)
	}

	for _, stream := range streams {
		for _, msg := range stream.Messages {
			job := &JobMessage{
				JobID: getString(msg.Values, "job_id"),
				App:   getString(msg.Values, "application"),
			}
			job.Params = optimizer.DefaultParams()
			if raw := getString(msg.Values, "params"); raw != "" {
				if err := json.Unmarshal([]byte(raw), &job.Params); err != nil {
					return job, msg.ID, fmt.Errorf("decode params of job %s: %w", job.JobID, err)
				}
			}
			return job, msg.ID, nil
		}
	}
	return nil, "", ErrNoMessages
}

// AckJob acknowledges a job message.
func (q *Queue) AckJob(ctx context.Context, msgID string) error {
	return q.client.XAck(ctx, StreamJobs, GroupWorkers, msgID).Err()
}

// PushResult reports a finished job.
func (q *Queue) PushResult(ctx context.Context, msg ResultMessage) (string, error) {
	result, err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamResults,
		Values: map[string]any{
			"job_id":      msg.JobID,
			"run_id":      msg.RunID,
			"application": msg.App,
			"state":       msg.State,
			"error":       msg.Error,
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("push result: %w", err)
	}
	return result, nil
}

// ReadResult reads one result for consumer.
func (q *Queue) ReadResult(ctx context.Context, consumer string, block time.Duration) (*ResultMessage, string, error) {
	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    GroupReporters,
		Consumer: consumer,
		Streams:  []string{StreamResults, ">"},
		Count:    1,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, "", ErrNoMessages
	}
	if err != nil {
		return nil, "", fmt.Errorf("read result: %w", err)
	}

	for _, stream := range streams {
		for _, msg := range stream.Messages {
			return &ResultMessage{
				JobID: getString(msg.Values, "job_id"),
				RunID: getString(msg.Values, "run_id"),
				App:   getString(msg.Values, "application"),
				State: getString(msg.Values, "state"),
				Error: getString(msg.Values, "error"),
			}, msg.ID, nil
		}
	}
	return nil, "", ErrNoMessages
}

// AckResult acknowledges a result message.
func (q *Queue) AckResult(ctx context.Context, msgID string) error {
	return q.client.XAck(ctx, StreamResults, GroupReporters, msgID).Err()
}

// Status returns the lengths of both streams.
func (q *Queue) Status(ctx context.Context) (jobs, results int64, err error) {
	jobs, err = q.client.XLen(ctx, StreamJobs).Result()
	if err != nil {
		return 0, 0, err
	}
	results, err = q.client.XLen(ctx, StreamResults).Result()
	if err != nil {
		return 0, 0, err
	}
	return jobs, results, nil
}

func getString(values map[string]any, key string) string {
	if v, ok := values[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
