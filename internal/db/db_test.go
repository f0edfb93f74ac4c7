package db

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sbenjam1n/hlsopt/internal/hls"
	"github.com/sbenjam1n/hlsopt/internal/optimizer"
	"github.com/sbenjam1n/hlsopt/internal/repair"
	"github.com/stretchr/testify/require"
)

func TestHashTo64Bit(t *testing.T) {
	require.Equal(t, int64(-3750763034362895579), hashTo64Bit(""))
	require.Equal(t, hashTo64Bit("vitis_hls"), hashTo64Bit("vitis_hls"))
	require.NotEqual(t, hashTo64Bit("vitis_hls"), hashTo64Bit("vitis_hls2"))
}

// testPool connects to HLSOPT_TEST_DATABASE_URL and migrates it, skipping
// the test when the variable is unset.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("HLSOPT_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("HLSOPT_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := Connect(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, Migrate(ctx, pool, filepath.Join("..", "..", "migrations")))
	return pool
}

func TestStoreRecordsRun(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	s := NewStore(pool)

	run := optimizer.Run{ID: uuid.NewString(), App: "gemm", Params: optimizer.DefaultParams(), Started: time.Now()}
	require.NoError(t, s.StartRun(ctx, run))
	require.NoError(t, s.RecordProfiles(ctx, run.ID, []hls.Profile{
		{Name: "gemm", Vector: []float64{0.1, -0.2}, Cluster: 1},
		{Name: "fft", Vector: []float64{1, 2}, Cluster: 0},
	}))
	initial := repair.Attempt{Name: "gemm", Assignment: hls.Assignment{"OuterLoop_1": "pipeline"},
		QoR: hls.QoR{LatencyMsec: 1, BRAM: 120, DSP: 5, FF: 5, LUT: 5}}
	fixed := repair.Attempt{Name: "Repair_1", Assignment: hls.Assignment{"OuterLoop_1": hls.NoDirective},
		QoR: hls.QoR{LatencyMsec: 3, BRAM: 20, DSP: 5, FF: 5, LUT: 5}}
	require.NoError(t, s.RecordAttempt(ctx, run.ID, initial))
	require.NoError(t, s.RecordAttempt(ctx, run.ID, fixed))
	require.NoError(t, s.RecordStep(ctx, run.ID, repair.Step{Iteration: 1, Resource: hls.BRAM, Utilization: 120,
		ActionPoint: "OuterLoop_1", From: "pipeline", To: hls.NoDirective, Attempt: "Repair_1"}))
	require.NoError(t, s.FinishRun(ctx, run.ID, &optimizer.Result{
		RunID: run.ID, App: "gemm", Cluster: 1, State: repair.Feasible, Final: fixed, Best: fixed, Elapsed: time.Second,
	}))

	runs, err := s.ListRuns(ctx, "gemm", 100)
	require.NoError(t, err)
	var got *RunSummary
	for i := range runs {
		if runs[i].ID == run.ID {
			got = &runs[i]
		}
	}
	require.NotNil(t, got)
	require.Equal(t, "feasible", got.State)
	require.Equal(t, 2, got.Attempts)
	require.Equal(t, "Repair_1", got.Best)
	require.NotNil(t, got.Finished)
	require.Equal(t, 20.0, got.BestQoR.BRAM)
}

func TestFinishUnknownRun(t *testing.T) {
	pool := testPool(t)
	err := NewStore(pool).FinishRun(context.Background(), uuid.NewString(), &optimizer.Result{})
	require.Error(t, err)
}

func TestAdvisoryLockExcludes(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	name := "test-" + uuid.NewString()
	a := NewAdvisoryLock(pool, name)
	b := NewAdvisoryLock(pool, name)

	unlock, err := a.Lock(ctx)
	require.NoError(t, err)

	short, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	_, err = b.Lock(short)
	require.Error(t, err)

	unlock()
	unlockB, err := b.Lock(ctx)
	require.NoError(t, err)
	unlockB()
}
