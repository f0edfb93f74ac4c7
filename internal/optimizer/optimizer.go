// Package optimizer wires the pipeline together: feature reduction,
// clustering, per-cluster proposals, directive injection, synthesis and
// repair for one target application.
package optimizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sbenjam1n/hlsopt/internal/cluster"
	"github.com/sbenjam1n/hlsopt/internal/features"
	"github.com/sbenjam1n/hlsopt/internal/hls"
	"github.com/sbenjam1n/hlsopt/internal/kb"
	"github.com/sbenjam1n/hlsopt/internal/oracle"
	"github.com/sbenjam1n/hlsopt/internal/proposal"
	"github.com/sbenjam1n/hlsopt/internal/repair"
	"github.com/sbenjam1n/hlsopt/internal/source"
)

// ErrUnknownApplication is returned when the target has no feature vector.
var ErrUnknownApplication = errors.New("application not in feature dataset")

// Params are the tunables of one optimization run.
type Params struct {
	Components  int     `json:"principal_components"`
	Clusters    int     `json:"clusters"`
	Threshold   float64 `json:"probability_threshold"`
	CountAbsent bool    `json:"count_absent"`
	Seed        int64   `json:"seed"`

	Repair    bool `json:"repair"`
	MaxRepair int  `json:"max_repair"`

	Device              string        `json:"device_id"`
	ClockPeriod         float64       `json:"clock_period"`
	Timeout             time.Duration `json:"timeout"`
	VendorOptimizations bool          `json:"vendor_optimizations"`
}

// DefaultParams returns the defaults of the command line.
func DefaultParams() Params {
	return Params{
		Components:  3,
		Clusters:    5,
		Threshold:   0.1,
		Seed:        42,
		Repair:      true,
		MaxRepair:   repair.DefaultMaxIterations,
		Device:      "xczu7ev-ffvc1156-2-e",
		ClockPeriod: 3.33,
		Timeout:     time.Hour,
	}
}

// Validate checks ranges that would otherwise fail deep in the pipeline.
func (p Params) Validate() error {
	switch {
	case p.Components < 1:
		return fmt.Errorf("principal components must be positive, got %d", p.Components)
	case p.Clusters < 1:
		return fmt.Errorf("clusters must be positive, got %d", p.Clusters)
	case p.Threshold < 0 || p.Threshold > 1:
		return fmt.Errorf("probability threshold must be in [0,1], got %g", p.Threshold)
	}
	return nil
}

// Run identifies one optimization run.
type Run struct {
	ID      string    `json:"run_id"`
	App     string    `json:"application"`
	Params  Params    `json:"params"`
	Started time.Time `json:"started"`
}

// Recorder persists run history. Recording failures are logged and never
// abort a run.
type Recorder interface {
	StartRun(ctx context.Context, run Run) error
	RecordProfiles(ctx context.Context, runID string, profiles []hls.Profile) error
	RecordAttempt(ctx context.Context, runID string, a repair.Attempt) error
	RecordStep(ctx context.Context, runID string, s repair.Step) error
	FinishRun(ctx context.Context, runID string, res *Result) error
}

// Optimizer runs the pipeline against one knowledge base.
type Optimizer struct {
	Catalog  *hls.Catalog
	KB       *kb.Base
	AppsDir  string
	Output   string
	Oracle   oracle.Oracle
	Recorder Recorder
	Logger   *slog.Logger
}

func (o *Optimizer) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

// Analysis is the model built for one target: every cluster's proposal and
// the cluster the target falls into.
type Analysis struct {
	Target   hls.Profile
	Donors   []hls.Profile
	Model    *cluster.Model
	Clusters []*proposal.Cluster
}

// Predicted returns the target's cluster.
func (a *Analysis) Predicted() *proposal.Cluster {
	return a.Clusters[a.Target.Cluster]
}

// Analyze reduces the feature dataset, clusters every application except
// app, and synthesizes a proposal per cluster. When layout is non-nil the
// assignment, pooled and impact tables are written to it.
func (o *Optimizer) Analyze(ctx context.Context, app string, p Params, layout *Layout) (*Analysis, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	log := o.logger().With("app", app)

	table, err := features.LoadCSV(o.KB.Layout().FeatureVectors())
	if err != nil {
		return nil, err
	}
	profiles, err := features.Reduce(table, p.Components)
	if err != nil {
		return nil, fmt.Errorf("reduce features: %w", err)
	}

	an := &Analysis{}
	found := false
	for _, pr := range profiles {
		if pr.Name == app {
			an.Target, found = pr, true
			continue
		}
		an.Donors = append(an.Donors, pr)
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrUnknownApplication, app)
	}

	points := make([][]float64, len(an.Donors))
	for i, d := range an.Donors {
		points[i] = d.Vector
	}
	an.Model, err = cluster.DefaultKMeans(p.Clusters, p.Seed).Fit(points)
	if err != nil {
		return nil, fmt.Errorf("cluster applications: %w", err)
	}
	an.Model.Assign(an.Donors)
	an.Target.Cluster = an.Model.Predict(an.Target.Vector)
	log.Info("target clustered", "cluster", an.Target.Cluster, "donors", len(an.Donors))

	members := cluster.Members(an.Donors, p.Clusters)
	pools, err := o.KB.PoolClusters(ctx, members)
	if err != nil {
		return nil, err
	}
	opts := proposal.Options{Threshold: p.Threshold, CountAbsent: p.CountAbsent}
	an.Clusters = make([]*proposal.Cluster, p.Clusters)
	for id := range an.Clusters {
		c, err := proposal.Synthesize(id, members[id], pools[id], o.Catalog, opts, log)
		if err != nil {
			return nil, err
		}
		an.Clusters[id] = c
	}

	if layout != nil {
		if err := o.writeAnalysis(*layout, p, an); err != nil {
			return nil, err
		}
	}
	return an, nil
}

func (o *Optimizer) writeAnalysis(l Layout, p Params, an *Analysis) error {
	if err := l.Prepare(); err != nil {
		return err
	}
	all := append(append([]hls.Profile(nil), an.Donors...), an.Target)
	if err := WriteAssignments(l.Assignments(p.Components, p.Clusters), all); err != nil {
		return err
	}
	for _, c := range an.Clusters {
		if err := kb.WriteFile(l.Pool(c.ID), o.Catalog, c.Records); err != nil {
			return err
		}
		if err := c.Impact.WriteFile(l.Impact(c.ID)); err != nil {
			return fmt.Errorf("write impact table of cluster %d: %w", c.ID, err)
		}
	}
	return nil
}

// Result is the final record of a run.
type Result struct {
	RunID      string            `json:"run_id"`
	App        string            `json:"application"`
	Cluster    int               `json:"cluster"`
	Params     Params            `json:"params"`
	Proposal   hls.Assignment    `json:"proposal"`
	// Directives maps source labels to the pragmas of the final design.
	Directives map[string]string `json:"directives"`
	State      repair.State      `json:"state"`
	Final      repair.Attempt    `json:"final"`
	Best       repair.Attempt    `json:"best"`
	Baseline   *repair.Attempt   `json:"baseline,omitempty"`
	Steps      []repair.Step     `json:"steps,omitempty"`
	Attempts   int               `json:"attempts"`
	Elapsed    time.Duration     `json:"elapsed"`
}

// Feasible reports whether the final design fits the device.
func (r *Result) Feasible() bool { return r.State == repair.Feasible }

// Run optimizes app end to end and writes the output tree.
func (o *Optimizer) Run(ctx context.Context, app string, p Params) (*Result, error) {
	start := time.Now()
	run := Run{ID: uuid.NewString(), App: app, Params: p, Started: start}
	log := o.logger().With("run", run.ID, "app", app)
	o.record(log, "start run", func() error { return o.Recorder.StartRun(ctx, run) })

	layout := NewLayout(o.Output, app)
	an, err := o.Analyze(ctx, app, p, &layout)
	if err != nil {
		return nil, err
	}
	profiles := append(append([]hls.Profile(nil), an.Donors...), an.Target)
	o.record(log, "record profiles", func() error { return o.Recorder.RecordProfiles(ctx, run.ID, profiles) })

	target, err := source.LoadApplication(o.AppsDir, app, o.Catalog)
	if err != nil {
		return nil, err
	}
	c := an.Predicted()
	ev := &evaluator{o: o, app: target, layout: layout, params: p, runID: run.ID, log: log}

	initial := repair.Attempt{Name: app, Assignment: c.Proposal}
	initial.QoR, err = ev.Evaluate(ctx, initial.Name, initial.Assignment)
	if err != nil {
		return nil, err
	}

	outcome, err := o.repair(ctx, log, layout, target, c, initial, ev, p)
	if err != nil {
		return nil, err
	}
	for _, s := range outcome.Steps {
		o.record(log, "record step", func() error { return o.Recorder.RecordStep(ctx, run.ID, s) })
	}

	res := &Result{
		RunID:      run.ID,
		App:        app,
		Cluster:    c.ID,
		Params:     p,
		Proposal:   c.Proposal,
		Directives: source.MapDirectives(target.Sites, outcome.Final.Assignment, log),
		State:      outcome.State,
		Final:      outcome.Final,
		Best:       outcome.Best,
		Baseline:   outcome.Baseline,
		Steps:      outcome.Steps,
		Attempts:   len(outcome.Attempts),
		Elapsed:    time.Since(start),
	}
	if err := writeJSON(layout.Result(), res); err != nil {
		return nil, err
	}
	o.record(log, "finish run", func() error { return o.Recorder.FinishRun(ctx, run.ID, res) })
	log.Info("run finished", "state", res.State, "attempts", res.Attempts, "elapsed", res.Elapsed)
	return res, nil
}

// repair runs the repair loop when enabled and possible, otherwise wraps
// the initial attempt in a terminal outcome.
func (o *Optimizer) repair(ctx context.Context, log *slog.Logger, l Layout, target *source.Application, c *proposal.Cluster, initial repair.Attempt, ev repair.Evaluator, p Params) (*repair.Outcome, error) {
	state := repair.Evaluate(initial.QoR)
	single := &repair.Outcome{State: state, Final: initial, Best: initial, Attempts: []repair.Attempt{initial}}
	if !p.Repair {
		if state == repair.Repairing {
			single.State = repair.Exhausted
		}
		return single, nil
	}
	if state == repair.Repairing && !c.Repairable() {
		log.Warn("infeasible design but cluster has no impact statistics, skipping repair", "cluster", c.ID)
		single.State = repair.Exhausted
		return single, nil
	}

	trace, err := os.Create(l.Trace())
	if err != nil {
		return nil, fmt.Errorf("create trace: %w", err)
	}
	defer trace.Close()

	points := make([]string, 0, len(target.Sites))
	for _, s := range target.Sites {
		points = append(points, s.Point.Name)
	}
	engine := &repair.Engine{
		Catalog:       o.Catalog,
		Impact:        c.Impact,
		Points:        o.inCatalogOrder(points),
		MaxIterations: p.MaxRepair,
		Logger:        log,
		Trace:         trace,
	}
	return engine.Run(ctx, initial, ev)
}

func (o *Optimizer) inCatalogOrder(names []string) []string {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	out := make([]string, 0, len(names))
	for _, ap := range o.Catalog.Points() {
		if set[ap.Name] {
			out = append(out, ap.Name)
		}
	}
	return out
}

func (o *Optimizer) record(log *slog.Logger, what string, fn func() error) {
	if o.Recorder == nil {
		return
	}
	if err := fn(); err != nil {
		log.Warn("recorder failed", "op", what, "err", err)
	}
}

// evaluator stages an assignment into its own source tree and synthesizes
// it.
type evaluator struct {
	o      *Optimizer
	app    *source.Application
	layout Layout
	params Params
	runID  string
	log    *slog.Logger
}

func (e *evaluator) Evaluate(ctx context.Context, name string, a hls.Assignment) (hls.QoR, error) {
	dirs := source.MapDirectives(e.app.Sites, a, e.log)
	dir := e.layout.Attempt(name)
	if _, err := e.app.Stage(dir, dirs); err != nil {
		return hls.QoR{}, fmt.Errorf("stage %s: %w", name, err)
	}
	res, err := e.o.Oracle.Synthesize(ctx, oracle.Request{
		Dir:                 dir,
		Source:              e.app.OptimizedName(),
		Top:                 e.app.Top,
		Device:              e.params.Device,
		ClockPeriod:         e.params.ClockPeriod,
		Timeout:             e.params.Timeout,
		VendorOptimizations: e.params.VendorOptimizations,
	})
	if err != nil {
		return hls.QoR{}, fmt.Errorf("synthesize %s: %w", name, err)
	}
	e.log.Info("attempt synthesized", "attempt", name, "state", repair.Evaluate(res.QoR), "latency_msec", res.QoR.LatencyMsec,
		"bram", res.QoR.BRAM, "dsp", res.QoR.DSP, "ff", res.QoR.FF, "lut", res.QoR.LUT, "wall", res.WallTime)
	e.o.record(e.log, "record attempt", func() error {
		return e.o.Recorder.RecordAttempt(ctx, e.runID, repair.Attempt{Name: name, Assignment: a, QoR: res.QoR})
	})
	return res.QoR, nil
}

// Propose runs the analysis without synthesis and returns the target's
// proposal and its concrete directives.
func (o *Optimizer) Propose(ctx context.Context, app string, p Params) (*Analysis, map[string]string, error) {
	an, err := o.Analyze(ctx, app, p, nil)
	if err != nil {
		return nil, nil, err
	}
	target, err := source.LoadApplication(o.AppsDir, app, o.Catalog)
	if err != nil {
		return nil, nil, err
	}
	return an, source.MapDirectives(target.Sites, an.Predicted().Proposal, o.logger()), nil
}
