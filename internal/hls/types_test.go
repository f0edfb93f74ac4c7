package hls

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultCatalogOrdering(t *testing.T) {
	c := DefaultCatalog()
	require.Equal(t, 78, c.Len())

	first := c.At(0)
	if first.Name != "Array_1" || first.Kind != Array || first.Ordinal != 1 {
		t.Errorf("first action point = %+v", first)
	}
	if ap := c.At(22); ap.Name != "OuterLoop_1" || ap.Kind != Loop {
		t.Errorf("first loop = %+v", ap)
	}
	if ap := c.At(c.Len() - 1); ap.Name != "InnerLoop_4_2" {
		t.Errorf("last action point = %+v", ap)
	}
}

func TestCatalogResolve(t *testing.T) {
	c, err := NewCatalog([]string{"Array_1"}, []string{"OuterLoop_1", "OuterLoop_2"})
	require.NoError(t, err)

	tests := []struct {
		ref     string
		want    string
		wantErr bool
	}{
		{"Array_1", "Array_1", false},
		{"OuterLoop_2", "OuterLoop_2", false},
		{"2", "OuterLoop_1", false},
		{"0", "", true},
		{"4", "", true},
		{"Array_9", "", true},
	}
	for _, tt := range tests {
		got, err := c.Resolve(tt.ref)
		if tt.wantErr {
			if err == nil {
				t.Errorf("Resolve(%q) succeeded, want error", tt.ref)
			}
			continue
		}
		require.NoError(t, err)
		if got.Name != tt.want {
			t.Errorf("Resolve(%q) = %q, want %q", tt.ref, got.Name, tt.want)
		}
	}
}

func TestCatalogRejectsDuplicates(t *testing.T) {
	_, err := NewCatalog([]string{"A"}, []string{"A"})
	require.Error(t, err)
}

func TestCatalogYAMLRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, WriteCatalog(path, DefaultCatalog()))

	c, err := LoadCatalog(path)
	require.NoError(t, err)
	require.Equal(t, DefaultCatalog().Points(), c.Points())
}

func TestQoRFeasibility(t *testing.T) {
	tests := []struct {
		name        string
		q           QoR
		synthesized bool
		feasible    bool
	}{
		{"within budget", QoR{LatencyMsec: 1.5, BRAM: 10, DSP: 100, FF: 0, LUT: 50}, true, true},
		{"over budget", QoR{LatencyMsec: 1.5, BRAM: 120, DSP: 10, FF: 10, LUT: 10}, true, false},
		{"zero latency", QoR{LatencyMsec: 0, BRAM: 10, DSP: 10, FF: 10, LUT: 10}, true, false},
		{"nothing", UnknownQoR(), false, false},
		{"partial", QoR{LatencyMsec: -1, BRAM: 3, DSP: -1, FF: -1, LUT: -1}, true, false},
	}
	for _, tt := range tests {
		if got := tt.q.Synthesized(); got != tt.synthesized {
			t.Errorf("%s: Synthesized() = %v, want %v", tt.name, got, tt.synthesized)
		}
		if got := tt.q.Feasible(); got != tt.feasible {
			t.Errorf("%s: Feasible() = %v, want %v", tt.name, got, tt.feasible)
		}
	}
}

func TestAssignmentWithDoesNotMutate(t *testing.T) {
	a := Assignment{"L": "pipeline"}
	b := a.With("L", NoDirective)
	require.Equal(t, "pipeline", a.Get("L"))
	require.Equal(t, NoDirective, b.Get("L"))
	require.Equal(t, NoDirective, a.Get("missing"))
	require.Equal(t, []string{"L"}, a.Active())
	require.Empty(t, b.Active())
}

func TestMetricColumns(t *testing.T) {
	for _, m := range Metrics {
		got, ok := MetricByColumn(m.Column())
		require.True(t, ok)
		require.Equal(t, m, got)
	}
}
