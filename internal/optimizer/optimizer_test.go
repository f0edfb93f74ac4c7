package optimizer

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/sbenjam1n/hlsopt/internal/hls"
	"github.com/sbenjam1n/hlsopt/internal/kb"
	"github.com/sbenjam1n/hlsopt/internal/oracle"
	"github.com/sbenjam1n/hlsopt/internal/repair"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	root    string
	catalog *hls.Catalog
	opt     *Optimizer
	calls   []oracle.Request
	sources []string
	mu      sync.Mutex
}

func write(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
}

// newFixture builds a knowledge base with donors a and b, each with one
// Pareto record, and a target application t with one marked loop.
func newFixture(t *testing.T, synth func(src string) hls.QoR) *fixture {
	t.Helper()
	root := t.TempDir()
	cat, err := hls.NewCatalog([]string{"Array_1"}, []string{"OuterLoop_1"})
	require.NoError(t, err)

	layout := kb.Layout{Root: filepath.Join(root, "KnowledgeBase")}
	write(t, layout.FeatureVectors(), "Application_Name,loops,arrays\na,1,5\nb,2,3\nt,3,4\n")
	header := "Array_1,OuterLoop_1,DesignLatency_Msec,BRAM_Utilization,DSP_Utilization,FF_Utilization,LUT_Utilization\n"
	write(t, layout.ParetoFile("a"), header+"NDIR,#pragma HLS pipeline,0.5,40,10,10,10\n")
	write(t, layout.ParetoFile("b"), header+"NDIR,NDIR,2.0,20,5,5,5\n")

	apps := filepath.Join(root, "Applications")
	write(t, filepath.Join(apps, "t", "Kernel-Info.txt"), "top\n")
	write(t, filepath.Join(apps, "t", "ActionPoint-Label-Mapping.txt"), "OuterLoop_1,L1\n")
	write(t, filepath.Join(apps, "t", "t.c"), "void top(int a[8]) {\nL1:\tfor (int i = 0; i < 8; i++) {\n\t\ta[i] += 1;\n\t}\n}\n")

	f := &fixture{root: root, catalog: cat}
	f.opt = &Optimizer{
		Catalog: cat,
		KB:      kb.New(layout, cat, nil),
		AppsDir: apps,
		Output:  filepath.Join(root, "output"),
		Oracle: oracle.Func(func(ctx context.Context, req oracle.Request) (oracle.Result, error) {
			data, err := os.ReadFile(filepath.Join(req.Dir, req.Source))
			if err != nil {
				return oracle.Result{}, err
			}
			f.mu.Lock()
			f.calls = append(f.calls, req)
			f.sources = append(f.sources, string(data))
			f.mu.Unlock()
			return oracle.Result{QoR: synth(string(data))}, nil
		}),
	}
	return f
}

func singleCluster() Params {
	p := DefaultParams()
	p.Components = 1
	p.Clusters = 1
	p.Threshold = 0.1
	return p
}

func TestRunSingleClusterFeasible(t *testing.T) {
	f := newFixture(t, func(string) hls.QoR {
		return hls.QoR{LatencyMsec: 0.4, BRAM: 30, DSP: 10, FF: 10, LUT: 10}
	})
	res, err := f.opt.Run(context.Background(), "t", singleCluster())
	require.NoError(t, err)

	require.Equal(t, "pipeline", res.Proposal.Get("OuterLoop_1"))
	require.Equal(t, map[string]string{"L1": "#pragma HLS pipeline"}, res.Directives)
	require.Equal(t, repair.Feasible, res.State)
	require.True(t, res.Feasible())
	require.Empty(t, res.Steps)
	require.Len(t, f.calls, 1)
	require.Contains(t, f.sources[0], "L1:\tfor (int i = 0; i < 8; i++) {\n#pragma HLS pipeline\n")
	require.NotEmpty(t, res.RunID)

	l := NewLayout(f.opt.Output, "t")
	for _, p := range []string{l.Assignments(1, 1), l.Pool(0), l.Impact(0), l.Result(), filepath.Join(l.Attempt("t"), "optimized.c")} {
		_, err := os.Stat(p)
		require.NoError(t, err, p)
	}

	data, err := os.ReadFile(l.Result())
	require.NoError(t, err)
	var back map[string]any
	require.NoError(t, json.Unmarshal(data, &back))
	require.Equal(t, "feasible", back["state"])

	assign, err := os.ReadFile(l.Assignments(1, 1))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(assign), "Application_Name,PC_1,Cluster_Id\n"))
}

func TestRunRepairsToNoDirective(t *testing.T) {
	f := newFixture(t, func(src string) hls.QoR {
		if strings.Contains(src, "#pragma HLS pipeline") {
			return hls.QoR{LatencyMsec: 0.4, BRAM: 150, DSP: 10, FF: 10, LUT: 10}
		}
		return hls.QoR{LatencyMsec: 2, BRAM: 20, DSP: 5, FF: 5, LUT: 5}
	})
	res, err := f.opt.Run(context.Background(), "t", singleCluster())
	require.NoError(t, err)

	require.Equal(t, repair.Feasible, res.State)
	require.Len(t, res.Steps, 1)
	require.Equal(t, hls.BRAM, res.Steps[0].Resource)
	require.Equal(t, "OuterLoop_1", res.Steps[0].ActionPoint)
	require.Equal(t, hls.NoDirective, res.Steps[0].To)
	require.Equal(t, "pipeline", res.Proposal.Get("OuterLoop_1"))
	require.Empty(t, res.Directives)
	require.Len(t, f.calls, 2)
	require.Equal(t, NewLayout(f.opt.Output, "t").Attempt("Repair_1"), f.calls[1].Dir)
	require.NotContains(t, f.sources[1], "#pragma")

	trace, err := os.ReadFile(NewLayout(f.opt.Output, "t").Trace())
	require.NoError(t, err)
	require.Contains(t, string(trace), "Proposed directive=NDIR")
}

func TestRunWithoutRepair(t *testing.T) {
	f := newFixture(t, func(string) hls.QoR {
		return hls.QoR{LatencyMsec: 0.4, BRAM: 150, DSP: 10, FF: 10, LUT: 10}
	})
	p := singleCluster()
	p.Repair = false
	res, err := f.opt.Run(context.Background(), "t", p)
	require.NoError(t, err)
	require.Equal(t, repair.Exhausted, res.State)
	require.Len(t, f.calls, 1)
}

func TestRunUnsynthesizableBaseline(t *testing.T) {
	f := newFixture(t, func(src string) hls.QoR {
		if strings.Contains(src, "#pragma") {
			return hls.UnknownQoR()
		}
		return hls.QoR{LatencyMsec: 2, BRAM: 20, DSP: 5, FF: 5, LUT: 5}
	})
	res, err := f.opt.Run(context.Background(), "t", singleCluster())
	require.NoError(t, err)
	require.Equal(t, repair.Unsynthesizable, res.State)
	require.NotNil(t, res.Baseline)
	require.Equal(t, 2.0, res.Baseline.QoR.LatencyMsec)
	require.Equal(t, NewLayout(f.opt.Output, "t").Attempt(repair.BaselineName), f.calls[1].Dir)
}

func TestAnalyzeUnknownApplication(t *testing.T) {
	f := newFixture(t, func(string) hls.QoR { return hls.UnknownQoR() })
	_, err := f.opt.Analyze(context.Background(), "missing", singleCluster(), nil)
	require.True(t, errors.Is(err, ErrUnknownApplication))
}

func TestPropose(t *testing.T) {
	f := newFixture(t, func(string) hls.QoR { return hls.UnknownQoR() })
	an, dirs, err := f.opt.Propose(context.Background(), "t", singleCluster())
	require.NoError(t, err)
	require.Equal(t, 0, an.Target.Cluster)
	require.Equal(t, []string{"a", "b"}, an.Predicted().Members)
	require.Equal(t, map[string]string{"L1": "#pragma HLS pipeline"}, dirs)
	require.Empty(t, f.calls)
}

func TestParamsValidate(t *testing.T) {
	p := DefaultParams()
	require.NoError(t, p.Validate())
	p.Threshold = 1.5
	require.Error(t, p.Validate())
	p = DefaultParams()
	p.Clusters = 0
	require.Error(t, p.Validate())
}

type memRecorder struct {
	runs     []Run
	attempts []repair.Attempt
	finished *Result
}

func (m *memRecorder) StartRun(ctx context.Context, run Run) error {
	m.runs = append(m.runs, run)
	return nil
}

func (m *memRecorder) RecordProfiles(ctx context.Context, runID string, profiles []hls.Profile) error {
	return nil
}

func (m *memRecorder) RecordAttempt(ctx context.Context, runID string, a repair.Attempt) error {
	m.attempts = append(m.attempts, a)
	return nil
}

func (m *memRecorder) RecordStep(ctx context.Context, runID string, s repair.Step) error {
	return errors.New("disk full")
}

func (m *memRecorder) FinishRun(ctx context.Context, runID string, res *Result) error {
	m.finished = res
	return nil
}

func TestRunRecords(t *testing.T) {
	f := newFixture(t, func(src string) hls.QoR {
		if strings.Contains(src, "#pragma HLS pipeline") {
			return hls.QoR{LatencyMsec: 0.4, BRAM: 150, DSP: 10, FF: 10, LUT: 10}
		}
		return hls.QoR{LatencyMsec: 2, BRAM: 20, DSP: 5, FF: 5, LUT: 5}
	})
	rec := &memRecorder{}
	f.opt.Recorder = rec
	res, err := f.opt.Run(context.Background(), "t", singleCluster())
	require.NoError(t, err)

	require.Len(t, rec.runs, 1)
	require.Equal(t, res.RunID, rec.runs[0].ID)
	require.Len(t, rec.attempts, 2)
	require.Equal(t, "Repair_1", rec.attempts[1].Name)
	require.Same(t, res, rec.finished)
}
