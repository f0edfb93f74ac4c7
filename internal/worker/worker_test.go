package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sbenjam1n/hlsopt/internal/metrics"
	"github.com/sbenjam1n/hlsopt/internal/optimizer"
	"github.com/sbenjam1n/hlsopt/internal/queue"
	"github.com/sbenjam1n/hlsopt/internal/repair"
	"github.com/stretchr/testify/require"
)

type fakeJobs struct {
	mu      sync.Mutex
	pending []queue.JobMessage
	acked   []string
	results []queue.ResultMessage
	done    chan struct{}
}

func (f *fakeJobs) EnsureStreams(ctx context.Context) error { return nil }

func (f *fakeJobs) ReadJob(ctx context.Context, consumer string, block time.Duration) (*queue.JobMessage, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pending) == 0 {
		select {
		case <-f.done:
		default:
			close(f.done)
		}
		return nil, "", queue.ErrNoMessages
	}
	job := f.pending[0]
	f.pending = f.pending[1:]
	return &job, "msg-" + job.JobID, nil
}

func (f *fakeJobs) AckJob(ctx context.Context, msgID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, msgID)
	return nil
}

func (f *fakeJobs) PushResult(ctx context.Context, msg queue.ResultMessage) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, msg)
	return "r", nil
}

type runnerFunc func(ctx context.Context, app string, p optimizer.Params) (*optimizer.Result, error)

func (f runnerFunc) Run(ctx context.Context, app string, p optimizer.Params) (*optimizer.Result, error) {
	return f(ctx, app, p)
}

func TestWorkerProcessesJobs(t *testing.T) {
	jobs := &fakeJobs{
		pending: []queue.JobMessage{
			{JobID: "1", App: "gemm", Params: optimizer.DefaultParams()},
			{JobID: "2", App: "missing", Params: optimizer.DefaultParams()},
		},
		done: make(chan struct{}),
	}
	m := metrics.New(nil)
	w := &Worker{
		Jobs: jobs,
		Runner: runnerFunc(func(ctx context.Context, app string, p optimizer.Params) (*optimizer.Result, error) {
			if app == "missing" {
				return nil, optimizer.ErrUnknownApplication
			}
			return &optimizer.Result{RunID: "run-" + app, App: app, State: repair.Feasible}, nil
		}),
		Metrics:  m,
		Consumer: "w1",
		Poll:     time.Millisecond,
	}

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx) }()
	<-jobs.done
	cancel()
	require.True(t, errors.Is(<-errc, context.Canceled))

	require.Equal(t, []string{"msg-1", "msg-2"}, jobs.acked)
	require.Len(t, jobs.results, 2)
	require.Equal(t, "run-gemm", jobs.results[0].RunID)
	require.Equal(t, "feasible", jobs.results[0].State)
	require.Contains(t, jobs.results[1].Error, "application not in feature dataset")
	require.Equal(t, 1.0, testutil.ToFloat64(m.Runs.WithLabelValues("feasible")))
	require.Equal(t, 0.0, testutil.ToFloat64(m.RunsInFlight))
}
