// Package worker consumes optimization jobs from the queue.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sbenjam1n/hlsopt/internal/metrics"
	"github.com/sbenjam1n/hlsopt/internal/optimizer"
	"github.com/sbenjam1n/hlsopt/internal/queue"
)

// Jobs is the part of the queue a worker uses.
type Jobs interface {
	EnsureStreams(ctx context.Context) error
	ReadJob(ctx context.Context, consumer string, block time.Duration) (*queue.JobMessage, string, error)
	AckJob(ctx context.Context, msgID string) error
	PushResult(ctx context.Context, msg queue.ResultMessage) (string, error)
}

// Runner optimizes one application.
type Runner interface {
	Run(ctx context.Context, app string, p optimizer.Params) (*optimizer.Result, error)
}

// Worker runs jobs one at a time.
type Worker struct {
	Jobs     Jobs
	Runner   Runner
	Metrics  *metrics.Metrics // optional
	Consumer string
	Logger   *slog.Logger

	// Poll bounds each blocking read so cancellation is noticed.
	Poll time.Duration
}

// Run blocks on the job stream until ctx is cancelled. A failed job is
// reported on the result stream and acknowledged; the worker keeps going.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.Jobs.EnsureStreams(ctx); err != nil {
		return err
	}
	log := w.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("consumer", w.Consumer)
	poll := w.Poll
	if poll <= 0 {
		poll = 5 * time.Second
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		job, msgID, err := w.Jobs.ReadJob(ctx, w.Consumer, poll)
		if errors.Is(err, queue.ErrNoMessages) {
			continue
		}
		if err != nil && job == nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error("job read failed", "err", err)
			time.Sleep(poll)
			continue
		}

		msg := queue.ResultMessage{JobID: job.JobID, App: job.App}
		if err != nil {
			msg.Error = err.Error()
		} else {
			w.process(ctx, log, job, &msg)
		}
		if ctx.Err() != nil {
			// Leave the job pending so another worker can claim it.
			return ctx.Err()
		}
		if _, err := w.Jobs.PushResult(ctx, msg); err != nil {
			log.Error("result push failed", "job", job.JobID, "err", err)
		}
		if err := w.Jobs.AckJob(ctx, msgID); err != nil {
			log.Error("job ack failed", "job", job.JobID, "err", err)
		}
	}
}

func (w *Worker) process(ctx context.Context, log *slog.Logger, job *queue.JobMessage, msg *queue.ResultMessage) {
	log = log.With("job", job.JobID, "app", job.App)
	log.Info("job started")
	if w.Metrics != nil {
		w.Metrics.RunsInFlight.Inc()
		defer w.Metrics.RunsInFlight.Dec()
	}
	res, err := w.Runner.Run(ctx, job.App, job.Params)
	if err != nil {
		log.Error("job failed", "err", err)
		msg.Error = err.Error()
		return
	}
	msg.RunID = res.RunID
	msg.State = res.State.String()
	if w.Metrics != nil {
		w.Metrics.ObserveRun(res.State, len(res.Steps))
	}
	log.Info("job finished", "run", res.RunID, "state", res.State)
}
