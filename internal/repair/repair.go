// Package repair resolves resource-budget violations by swapping one
// directive at a time, guided by a cluster's ON/OFF impact statistics.
package repair

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/sbenjam1n/hlsopt/internal/hls"
	"github.com/sbenjam1n/hlsopt/internal/proposal"
)

// DefaultMaxIterations bounds the number of repair steps.
const DefaultMaxIterations = 32

// ErrNoImpactData is returned when repair is requested for a cluster
// without statistics.
var ErrNoImpactData = errors.New("cluster has no impact statistics")

// State is a repair-loop state.
type State int

const (
	Evaluating State = iota
	Repairing
	Feasible
	Unsynthesizable
	Exhausted
)

func (s State) String() string {
	switch s {
	case Evaluating:
		return "evaluating"
	case Repairing:
		return "repairing"
	case Feasible:
		return "feasible"
	case Unsynthesizable:
		return "unsynthesizable"
	case Exhausted:
		return "exhausted"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText encodes the state name.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Evaluate classifies an oracle outcome.
func Evaluate(q hls.QoR) State {
	switch {
	case !q.Synthesized():
		return Unsynthesizable
	case q.Feasible():
		return Feasible
	}
	return Repairing
}

// Attempt is one synthesized configuration.
type Attempt struct {
	Name       string         `json:"name"`
	Assignment hls.Assignment `json:"assignment"`
	QoR        hls.QoR        `json:"qor"`
}

// Evaluator applies an assignment to a fresh copy of the target and
// synthesizes it. name identifies the attempt, e.g. its output directory.
type Evaluator interface {
	Evaluate(ctx context.Context, name string, a hls.Assignment) (hls.QoR, error)
}

// EvaluatorFunc adapts a function to Evaluator.
type EvaluatorFunc func(ctx context.Context, name string, a hls.Assignment) (hls.QoR, error)

// Evaluate calls f.
func (f EvaluatorFunc) Evaluate(ctx context.Context, name string, a hls.Assignment) (hls.QoR, error) {
	return f(ctx, name, a)
}

// Step records one repair iteration.
type Step struct {
	Iteration   int          `json:"iteration"`
	Resource    hls.Metric   `json:"resource"`
	Utilization float64      `json:"utilization"`
	ActionPoint string       `json:"action_point"`
	From        string       `json:"from"`
	To          string       `json:"to"`
	Ranked      []hls.Impact `json:"ranked"`
	Attempt     string       `json:"attempt"`
	QoR         hls.QoR      `json:"qor"`
}

// Outcome is the terminal result of a run.
type Outcome struct {
	State    State     `json:"state"`
	Final    Attempt   `json:"final"`
	Best     Attempt   `json:"best"`
	Steps    []Step    `json:"steps"`
	Attempts []Attempt `json:"attempts"`
	// Baseline is set when the process ended unsynthesizable and the
	// all-NDIR reference was synthesized.
	Baseline *Attempt `json:"baseline,omitempty"`
}

// Engine runs the repair loop for one application.
type Engine struct {
	Catalog *hls.Catalog
	Impact  *proposal.ImpactTable
	// Points restricts repair targets to the application's action points.
	// Nil means every catalog action point.
	Points        []string
	MaxIterations int
	Logger        *slog.Logger
	// Trace receives a human-readable log of every iteration.
	Trace io.Writer
}

// ViolatedResource returns the most over-utilized resource. Resources are
// scanned in BRAM, DSP, FF, LUT order and only a strictly larger
// utilization replaces the current pick.
func ViolatedResource(q hls.QoR) (hls.Metric, float64, bool) {
	var (
		found bool
		res   hls.Metric
		peak  float64
	)
	for _, m := range hls.Resources {
		v := q.Get(m)
		if v > 100 && (!found || v > peak) {
			found, res, peak = true, m, v
		}
	}
	return res, peak, found
}

// Target picks the active action point whose current directive has the
// largest ON-OFF median difference on resource. Ties go to the first point
// in order. Points whose directive has no statistics are skipped.
func Target(impact *proposal.ImpactTable, points []string, a hls.Assignment, resource hls.Metric) (string, hls.Impact, bool) {
	var (
		best   string
		bestIm hls.Impact
		found  bool
	)
	for _, ap := range points {
		label := a.Get(ap)
		if label == hls.NoDirective {
			continue
		}
		im, ok := impact.Impact(ap, label, resource)
		if !ok {
			continue
		}
		if !found || im.ResourceDiff > bestIm.ResourceDiff {
			best, bestIm, found = ap, im, true
		}
	}
	return best, bestIm, found
}

// Rank orders the candidates of an action point by resource impact,
// highest first, then by latency impact, lowest first. Remaining ties keep
// label order.
func Rank(impact *proposal.ImpactTable, ap string, resource hls.Metric) []hls.Impact {
	cands := impact.Candidates(ap, resource)
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].ResourceDiff != cands[j].ResourceDiff {
			return cands[i].ResourceDiff > cands[j].ResourceDiff
		}
		return cands[i].LatencyDiff < cands[j].LatencyDiff
	})
	return cands
}

// Replacement picks the directive that replaces current at ap: among the
// candidates ranked below current with a strictly smaller resource impact,
// the one with the lowest latency impact. NDIR when none remains.
func Replacement(ranked []hls.Impact, current string) string {
	pos := -1
	for i, c := range ranked {
		if c.Label == current {
			pos = i
			break
		}
	}
	if pos < 0 {
		return hls.NoDirective
	}
	cur := ranked[pos]
	var rest []hls.Impact
	for _, c := range ranked[pos+1:] {
		if c.ResourceDiff < cur.ResourceDiff {
			rest = append(rest, c)
		}
	}
	if len(rest) == 0 {
		return hls.NoDirective
	}
	sort.SliceStable(rest, func(i, j int) bool {
		return rest[i].LatencyDiff < rest[j].LatencyDiff
	})
	return rest[0].Label
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

func (e *Engine) tracef(format string, args ...any) {
	if e.Trace != nil {
		fmt.Fprintf(e.Trace, format, args...)
	}
}

func (e *Engine) points() []string {
	if e.Points != nil {
		return e.Points
	}
	names := make([]string, 0, e.Catalog.Len())
	for _, ap := range e.Catalog.Points() {
		names = append(names, ap.Name)
	}
	return names
}

// AttemptName is the name of the n-th repair attempt.
func AttemptName(n int) string { return fmt.Sprintf("Repair_%d", n) }

// BaselineName is the name of the all-NDIR reference attempt.
const BaselineName = "Baseline"

// Run drives the state machine from an evaluated initial attempt until it
// is feasible, unsynthesizable, or the iteration bound is hit. An
// unsynthesizable end triggers one extra synthesis of the all-NDIR
// baseline for reference.
func (e *Engine) Run(ctx context.Context, initial Attempt, eval Evaluator) (*Outcome, error) {
	if e.Impact == nil || e.Impact.Empty() {
		if Evaluate(initial.QoR) == Repairing {
			return nil, ErrNoImpactData
		}
	}
	limit := e.MaxIterations
	if limit <= 0 {
		limit = DefaultMaxIterations
	}
	log := e.logger()

	out := &Outcome{Attempts: []Attempt{initial}, Best: initial}
	cur := initial
	var state State
	for iter := 1; ; iter++ {
		state = Evaluate(cur.QoR)
		if state != Repairing {
			break
		}
		if iter > limit {
			log.Warn("repair bound reached", "iterations", limit)
			e.tracef("\nReached repair bound of %d iterations\n", limit)
			state = Exhausted
			break
		}

		resource, util, ok := ViolatedResource(cur.QoR)
		if !ok {
			log.Warn("infeasible design without violated resource", "latency_msec", cur.QoR.LatencyMsec)
			e.tracef("\nInfeasible design without a violated resource\n")
			state = Exhausted
			break
		}
		e.tracef("\nRepair Iteration #%d\n\n", iter)
		e.tracef("Violated Resource: %s, Utilization%%: %g%%\n", resource.Column(), util)

		ap, im, ok := Target(e.Impact, e.points(), cur.Assignment, resource)
		if !ok {
			log.Warn("no repairable action point", "resource", resource)
			e.tracef("No active action point with statistics\n")
			state = Exhausted
			break
		}
		from := cur.Assignment.Get(ap)
		ranked := Rank(e.Impact, ap, resource)
		to := Replacement(ranked, from)
		e.tracef("Highest Impact Action Point on %s: %s -- Directive = %s -- Diff = %g\n", resource.Column(), ap, from, im.ResourceDiff)
		e.tracef("%v\n", ranked)
		e.tracef("Proposed directive=%s\n", to)

		next := Attempt{Name: AttemptName(iter), Assignment: cur.Assignment.With(ap, to)}
		log.Info("repair step", "iteration", iter, "resource", resource, "utilization", util, "action_point", ap, "from", from, "to", to)
		q, err := eval.Evaluate(ctx, next.Name, next.Assignment)
		if err != nil {
			return nil, fmt.Errorf("evaluate %s: %w", next.Name, err)
		}
		next.QoR = q
		out.Steps = append(out.Steps, Step{
			Iteration:   iter,
			Resource:    resource,
			Utilization: util,
			ActionPoint: ap,
			From:        from,
			To:          to,
			Ranked:      ranked,
			Attempt:     next.Name,
			QoR:         q,
		})
		out.Attempts = append(out.Attempts, next)
		if better(next, out.Best) {
			out.Best = next
		}
		cur = next
	}

	out.State = state
	out.Final = cur
	switch state {
	case Feasible:
		out.Best = cur
	case Unsynthesizable:
		log.Warn("design not synthesizable, synthesizing baseline")
		e.tracef("\nCould not provide a synthesizable design, synthesizing baseline\n")
		base := Attempt{Name: BaselineName, Assignment: e.Catalog.Empty()}
		q, err := eval.Evaluate(ctx, base.Name, base.Assignment)
		if err != nil {
			return nil, fmt.Errorf("evaluate baseline: %w", err)
		}
		base.QoR = q
		out.Baseline = &base
		out.Attempts = append(out.Attempts, base)
	}
	return out, nil
}

// better prefers synthesized attempts, then the lower peak utilization.
func better(a, b Attempt) bool {
	as, bs := a.QoR.Synthesized(), b.QoR.Synthesized()
	if as != bs {
		return as
	}
	return a.QoR.PeakUtilization() < b.QoR.PeakUtilization()
}
