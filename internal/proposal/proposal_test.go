package proposal

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sbenjam1n/hlsopt/internal/directive"
	"github.com/sbenjam1n/hlsopt/internal/hls"
	"github.com/stretchr/testify/require"
)

func catalog(t *testing.T) *hls.Catalog {
	t.Helper()
	c, err := hls.NewCatalog([]string{"Array_1"}, []string{"OuterLoop_1"})
	require.NoError(t, err)
	return c
}

func rec(app, array, loop string, q hls.QoR) hls.ParetoRecord {
	return hls.ParetoRecord{Application: app, Directives: []string{array, loop}, QoR: q}
}

func TestVoteColumnThresholdProperty(t *testing.T) {
	thresholds := []float64{0, 0.1, 0.25, 0.5, 0.9, 1}
	for _, th := range thresholds {
		same := []string{"pipeline", "pipeline", "NDIR", "pipeline"}
		require.Equal(t, "pipeline", VoteColumn(same, Options{Threshold: th}).Label, "threshold %v", th)
	}

	// Four labels evenly split: share 0.25 fails any threshold above it.
	split := []string{"unroll_2", "unroll_4", "pipeline", "pipeline_1"}
	for _, th := range []float64{0.3, 0.5, 1} {
		require.Equal(t, hls.NoDirective, VoteColumn(split, Options{Threshold: th}).Label, "threshold %v", th)
	}
}

func TestVoteColumnTieBreak(t *testing.T) {
	col := []string{"unroll_4", "pipeline", "unroll_4", "pipeline", "NDIR"}
	v := VoteColumn(col, Options{Threshold: 0.1})
	require.Equal(t, "pipeline", v.Label)
	require.Equal(t, 2, v.Count)
	require.Equal(t, 4, v.Total)
}

func TestVoteColumnDenominator(t *testing.T) {
	col := []string{"pipeline", "NDIR", "NDIR", "NDIR"}
	require.Equal(t, "pipeline", VoteColumn(col, Options{Threshold: 0.5}).Label)

	v := VoteColumn(col, Options{Threshold: 0.5, CountAbsent: true})
	require.Equal(t, hls.NoDirective, v.Label)
	require.InDelta(t, 0.25, v.Share(), 1e-12)
}

func TestVoteColumnAlwaysOnExcluded(t *testing.T) {
	col := []string{"pipeline", "pipeline", "pipeline"}
	require.Equal(t, hls.NoDirective, VoteColumn(col, Options{Threshold: 0}).Label)

	v := VoteColumn([]string{"NDIR", "NDIR"}, Options{Threshold: 0})
	require.Equal(t, hls.NoDirective, v.Label)
	require.Zero(t, v.Total)
}

func TestCanonicalizeMalformed(t *testing.T) {
	recs := []hls.ParetoRecord{
		rec("gemm", "NDIR", "#pragma HLS pipeline", hls.QoR{}),
		rec("gemm", "#pragma HLS array_partition variable=a cyclic dim=1", "NDIR", hls.QoR{}),
	}
	_, err := Canonicalize(catalog(t), recs)
	require.Error(t, err)
	require.True(t, errors.Is(err, directive.ErrMalformed))
	require.Contains(t, err.Error(), "gemm")
	require.Contains(t, err.Error(), "Array_1")
}

func TestCanonicalizeWrongWidth(t *testing.T) {
	_, err := Canonicalize(catalog(t), []hls.ParetoRecord{{Application: "x", Directives: []string{"NDIR"}}})
	require.Error(t, err)
}

func TestBuildImpactTableMedians(t *testing.T) {
	recs := []hls.ParetoRecord{
		rec("a", "NDIR", "#pragma HLS pipeline", hls.QoR{LatencyMsec: 1, BRAM: 40, DSP: 10, FF: 5, LUT: 5}),
		rec("a", "NDIR", "#pragma HLS pipeline", hls.QoR{LatencyMsec: 3, BRAM: 60, DSP: 10, FF: 5, LUT: 5}),
		rec("b", "NDIR", "#pragma HLS unroll factor=4", hls.QoR{LatencyMsec: 2, BRAM: 80, DSP: 20, FF: 5, LUT: 5}),
		rec("b", "NDIR", "NDIR", hls.QoR{LatencyMsec: 10, BRAM: 10, DSP: 1, FF: 5, LUT: 5}),
	}
	tab, err := Canonicalize(catalog(t), recs)
	require.NoError(t, err)
	it := BuildImpactTable(tab, nil)

	require.Equal(t, []string{"pipeline", "unroll_4"}, it.Labels("OuterLoop_1"))
	require.Empty(t, it.Labels("Array_1"))

	s, ok := it.Split("OuterLoop_1", "pipeline")
	require.True(t, ok)
	require.InDelta(t, 2, s.On[hls.Latency].Median, 1e-12)
	require.InDelta(t, 6, s.Off[hls.Latency].Median, 1e-12)
	require.InDelta(t, 50, s.On[hls.BRAM].Median, 1e-12)
	require.InDelta(t, 45, s.Off[hls.BRAM].Median, 1e-12)
	require.InDelta(t, 40, s.On[hls.BRAM].Min, 1e-12)
	require.InDelta(t, 80, s.Off[hls.BRAM].Max, 1e-12)

	imp, ok := it.Impact("OuterLoop_1", "pipeline", hls.BRAM)
	require.True(t, ok)
	require.InDelta(t, 5, imp.ResourceDiff, 1e-12)
	require.InDelta(t, -4, imp.LatencyDiff, 1e-12)

	_, ok = it.Split("OuterLoop_1", hls.NoDirective)
	require.False(t, ok)
}

func TestBuildImpactTableSkipsAlwaysOn(t *testing.T) {
	recs := []hls.ParetoRecord{
		rec("a", "#pragma HLS array_partition variable=x complete dim=1", "NDIR", hls.QoR{LatencyMsec: 1}),
		rec("a", "#pragma HLS array_partition variable=y complete dim=1", "NDIR", hls.QoR{LatencyMsec: 2}),
	}
	tab, err := Canonicalize(catalog(t), recs)
	require.NoError(t, err)
	it := BuildImpactTable(tab, nil)
	_, ok := it.Split("Array_1", "complete_1")
	require.False(t, ok)
	require.True(t, it.Empty())
}

func TestSynthesizeEmptyPool(t *testing.T) {
	cat := catalog(t)
	c, err := Synthesize(3, []string{"lonely"}, nil, cat, Options{Threshold: 0.1}, nil)
	require.NoError(t, err)
	require.Equal(t, cat.Empty(), c.Proposal)
	require.Empty(t, c.Proposal.Active())
	require.True(t, c.Impact.Empty())
	require.False(t, c.Repairable())
}

func TestSynthesizeSingleClusterPipeline(t *testing.T) {
	feasible := hls.QoR{LatencyMsec: 1, BRAM: 10, DSP: 10, FF: 10, LUT: 10}
	recs := []hls.ParetoRecord{
		rec("a", "NDIR", "#pragma HLS pipeline", feasible),
		rec("b", "NDIR", "NDIR", feasible),
	}
	c, err := Synthesize(0, []string{"a", "b"}, recs, catalog(t), Options{Threshold: 0.1}, nil)
	require.NoError(t, err)
	require.Equal(t, "pipeline", c.Proposal.Get("OuterLoop_1"))
	require.Equal(t, hls.NoDirective, c.Proposal.Get("Array_1"))
	require.True(t, c.Repairable())
}

func TestImpactTableJSON(t *testing.T) {
	recs := []hls.ParetoRecord{
		rec("a", "NDIR", "#pragma HLS pipeline II=1", hls.QoR{LatencyMsec: 1, BRAM: 2, DSP: 3, FF: 4, LUT: 5}),
		rec("a", "NDIR", "NDIR", hls.QoR{LatencyMsec: 6, BRAM: 7, DSP: 8, FF: 9, LUT: 10}),
	}
	tab, err := Canonicalize(catalog(t), recs)
	require.NoError(t, err)
	it := BuildImpactTable(tab, nil)

	path := filepath.Join(t.TempDir(), "CLUSTER_0.json")
	require.NoError(t, it.WriteFile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var raw map[string]map[string]map[string]map[string]map[string]float64
	require.NoError(t, json.Unmarshal(data, &raw))
	require.InDelta(t, 3, raw["OuterLoop_1"]["pipeline_1"]["ON"]["DSP_Utilization"]["median"], 1e-12)
	require.InDelta(t, 8, raw["OuterLoop_1"]["pipeline_1"]["OFF"]["DSP_Utilization"]["maximum"], 1e-12)

	var back ImpactTable
	require.NoError(t, json.Unmarshal(data, &back))
	imp, ok := back.Impact("OuterLoop_1", "pipeline_1", hls.DSP)
	require.True(t, ok)
	require.InDelta(t, -5, imp.ResourceDiff, 1e-12)
}
