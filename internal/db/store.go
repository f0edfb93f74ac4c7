package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sbenjam1n/hlsopt/internal/hls"
	"github.com/sbenjam1n/hlsopt/internal/optimizer"
	"github.com/sbenjam1n/hlsopt/internal/repair"
)

// Store records run history. It implements optimizer.Recorder.
type Store struct {
	db *pgxpool.Pool
}

// NewStore returns a Store backed by pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{db: pool}
}

var _ optimizer.Recorder = (*Store)(nil)

func (s *Store) StartRun(ctx context.Context, run optimizer.Run) error {
	params, err := json.Marshal(run.Params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO runs (id, application, params, started_at, state)
		VALUES ($1, $2, $3, $4, $5)
	`, run.ID, run.App, params, run.Started, repair.Evaluating.String())
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	return nil
}

func (s *Store) RecordProfiles(ctx context.Context, runID string, profiles []hls.Profile) error {
	batch := &pgx.Batch{}
	for _, p := range profiles {
		batch.Queue(`
			INSERT INTO profiles (run_id, application, vector, cluster_id)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (run_id, application) DO UPDATE
			SET vector = EXCLUDED.vector, cluster_id = EXCLUDED.cluster_id
		`, runID, p.Name, p.Vector, p.Cluster)
	}
	if err := s.db.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert profiles of run %s: %w", runID, err)
	}
	return nil
}

func (s *Store) RecordAttempt(ctx context.Context, runID string, a repair.Attempt) error {
	assignment, err := json.Marshal(a.Assignment)
	if err != nil {
		return fmt.Errorf("encode assignment: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO attempts (run_id, name, assignment, latency_msec, bram, dsp, ff, lut)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, runID, a.Name, assignment, a.QoR.LatencyMsec, a.QoR.BRAM, a.QoR.DSP, a.QoR.FF, a.QoR.LUT)
	if err != nil {
		return fmt.Errorf("insert attempt %s of run %s: %w", a.Name, runID, err)
	}
	_, err = s.db.Exec(ctx, "UPDATE runs SET attempt_count = attempt_count + 1 WHERE id = $1", runID)
	return err
}

func (s *Store) RecordStep(ctx context.Context, runID string, st repair.Step) error {
	ranked, err := json.Marshal(st.Ranked)
	if err != nil {
		return fmt.Errorf("encode ranked impacts: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO repair_steps (run_id, iteration, resource, utilization, action_point,
		                          from_label, to_label, attempt, ranked)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, runID, st.Iteration, st.Resource.String(), st.Utilization, st.ActionPoint,
		st.From, st.To, st.Attempt, ranked)
	if err != nil {
		return fmt.Errorf("insert step %d of run %s: %w", st.Iteration, runID, err)
	}
	return nil
}

func (s *Store) FinishRun(ctx context.Context, runID string, res *optimizer.Result) error {
	proposal, _ := json.Marshal(res.Proposal)
	directives, _ := json.Marshal(res.Directives)
	finalQoR, _ := json.Marshal(res.Final.QoR)
	bestQoR, _ := json.Marshal(res.Best.QoR)

	tag, err := s.db.Exec(ctx, `
		UPDATE runs
		SET finished_at = NOW(),
			state = $1,
			cluster_id = $2,
			proposal = $3,
			directives = $4,
			final_attempt = $5,
			final_qor = $6,
			best_attempt = $7,
			best_qor = $8,
			elapsed_ms = $9
		WHERE id = $10
	`, res.State.String(), res.Cluster, proposal, directives,
		res.Final.Name, finalQoR, res.Best.Name, bestQoR, res.Elapsed.Milliseconds(), runID)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", runID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("finish run %s: no such run", runID)
	}
	return nil
}

// RunSummary is one row of the run history.
type RunSummary struct {
	ID       string
	App      string
	State    string
	Cluster  *int
	Started  time.Time
	Finished *time.Time
	Attempts int
	Best     string
	BestQoR  *hls.QoR
}

// ListRuns returns the most recent runs, newest first. An empty app lists
// every application.
func (s *Store) ListRuns(ctx context.Context, app string, limit int) ([]RunSummary, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id::text, application, state, cluster_id, started_at, finished_at,
		       attempt_count, COALESCE(best_attempt, ''), best_qor
		FROM runs
		WHERE $1 = '' OR application = $1
		ORDER BY started_at DESC
		LIMIT $2
	`, app, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		var bestJSON []byte
		if err := rows.Scan(&r.ID, &r.App, &r.State, &r.Cluster, &r.Started, &r.Finished,
			&r.Attempts, &r.Best, &bestJSON); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if bestJSON != nil {
			var q hls.QoR
			if err := json.Unmarshal(bestJSON, &q); err != nil {
				return nil, fmt.Errorf("unmarshal best_qor of run %s: %w", r.ID, err)
			}
			r.BestQoR = &q
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
