// Package metrics exports Prometheus counters for synthesis attempts and
// optimization runs.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sbenjam1n/hlsopt/internal/oracle"
	"github.com/sbenjam1n/hlsopt/internal/repair"
)

// Metrics holds the collectors of one process.
type Metrics struct {
	Syntheses     *prometheus.CounterVec
	SynthesisTime prometheus.Histogram
	Runs          *prometheus.CounterVec
	RepairSteps   prometheus.Histogram
	RunsInFlight  prometheus.Gauge
	gatherer      prometheus.Gatherer
}

// New registers the collectors with reg. A nil reg uses a private registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		Syntheses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hlsopt_syntheses_total",
			Help: "Synthesis attempts by outcome.",
		}, []string{"outcome"}),
		SynthesisTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hlsopt_synthesis_seconds",
			Help:    "Wall time of synthesis attempts.",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10),
		}),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hlsopt_runs_total",
			Help: "Finished optimization runs by terminal state.",
		}, []string{"state"}),
		RepairSteps: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hlsopt_repair_steps",
			Help:    "Repair iterations per run.",
			Buckets: prometheus.LinearBuckets(0, 2, 17),
		}),
		RunsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hlsopt_runs_in_flight",
			Help: "Optimization runs currently executing.",
		}),
		gatherer: reg,
	}
	reg.MustRegister(m.Syntheses, m.SynthesisTime, m.Runs, m.RepairSteps, m.RunsInFlight)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Outcome labels a synthesis result.
func Outcome(res oracle.Result, err error) string {
	switch {
	case err != nil:
		return "error"
	case !res.Synthesized():
		return "failed"
	case res.QoR.Feasible():
		return "feasible"
	}
	return "infeasible"
}

// Oracle counts every call made through the wrapped oracle.
func (m *Metrics) Oracle(next oracle.Oracle) oracle.Oracle {
	return oracle.Func(func(ctx context.Context, req oracle.Request) (oracle.Result, error) {
		start := time.Now()
		res, err := next.Synthesize(ctx, req)
		m.Syntheses.WithLabelValues(Outcome(res, err)).Inc()
		m.SynthesisTime.Observe(time.Since(start).Seconds())
		return res, err
	})
}

// ObserveRun records a finished run.
func (m *Metrics) ObserveRun(state repair.State, steps int) {
	m.Runs.WithLabelValues(state.String()).Inc()
	m.RepairSteps.Observe(float64(steps))
}
