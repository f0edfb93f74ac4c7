package validator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sbenjam1n/hlsopt/internal/hls"
	"github.com/sbenjam1n/hlsopt/internal/kb"
	"github.com/stretchr/testify/require"
)

const paretoHeader = "Array_1,OuterLoop_1,DesignLatency_Msec,BRAM_Utilization,DSP_Utilization,FF_Utilization,LUT_Utilization\n"

func write(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
}

type fixture struct {
	layout kb.Layout
	apps   string
	v      *Validator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	cat, err := hls.NewCatalog([]string{"Array_1"}, []string{"OuterLoop_1"})
	require.NoError(t, err)

	f := &fixture{layout: kb.Layout{Root: filepath.Join(root, "KnowledgeBase")}, apps: filepath.Join(root, "Applications")}
	write(t, f.layout.FeatureVectors(), "Application_Name,loops,arrays\na,1,5\nb,2,3\nt,3,4\n")
	write(t, f.layout.ParetoFile("a"), paretoHeader+"NDIR,#pragma HLS pipeline,0.5,40,10,10,10\n")
	write(t, filepath.Join(f.apps, "t", "Kernel-Info.txt"), "top\n")
	write(t, filepath.Join(f.apps, "t", "ActionPoint-Label-Mapping.txt"), "OuterLoop_1,L1\n")
	write(t, filepath.Join(f.apps, "t", "t.c"), "void top(int a[8]) {\nL1:\tfor (int i = 0; i < 8; i++) {\n\t\ta[i] += 1;\n\t}\n}\n")

	f.v = New(cat, kb.New(f.layout, cat, nil), f.apps)
	return f
}

func TestValidatePasses(t *testing.T) {
	f := newFixture(t)
	res, err := f.v.Validate(context.Background(), "t")
	require.NoError(t, err)
	require.True(t, res.Passed, res.Message)
	require.Equal(t, 1, res.Tier)
	require.Equal(t, "Tier 1 passed", res.Message)
	require.Len(t, res.Details, 1)
	require.Equal(t, "1 of 2 donor(s) without a Pareto table", res.Details[0].Got)
}

func TestTier0(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *fixture)
		app   string
		code  int
		check string
	}{
		{"unknown application", func(f *fixture) {}, "zz", 2, "application_features"},
		{"missing dataset", func(f *fixture) { os.Remove(f.layout.FeatureVectors()) }, "t", 1, "feature_dataset"},
		{"missing kernel info", func(f *fixture) { os.Remove(filepath.Join(f.apps, "t", "Kernel-Info.txt")) }, "t", 3, "application_files"},
		{"missing marker", func(f *fixture) {
			write(t, filepath.Join(f.apps, "t", "ActionPoint-Label-Mapping.txt"), "OuterLoop_1,L2\n")
		}, "t", 4, "markers"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setup(f)
			res := f.v.Tier0Structural(tt.app)
			require.False(t, res.Passed)
			require.Equal(t, tt.code, res.Code)
			require.Equal(t, tt.check, res.Details[0].Check)
			require.NotEmpty(t, res.Details[0].Fix)
		})
	}
}

func TestTier1ReportsEveryBadTable(t *testing.T) {
	f := newFixture(t)
	write(t, f.layout.ParetoFile("a"), paretoHeader+"NDIR,#pragma HLS frobnicate,0.5,40,10,10,10\n")
	write(t, f.layout.ParetoFile("b"), "OuterLoop_1,DesignLatency_Msec\nNDIR,1\n")

	res, err := f.v.Tier1Knowledge(context.Background(), "t")
	require.NoError(t, err)
	require.False(t, res.Passed)
	require.Equal(t, -3, res.Code)

	var checks []string
	for _, d := range res.Details {
		if !d.Passed {
			checks = append(checks, d.Check)
		}
	}
	require.Equal(t, []string{"directive_syntax", "pareto_table"}, checks)
}

func TestTier1ConstantFeature(t *testing.T) {
	f := newFixture(t)
	write(t, f.layout.FeatureVectors(), "Application_Name,loops,arrays\na,1,5\nb,1,3\nt,1,4\n")
	res, err := f.v.Tier1Knowledge(context.Background(), "t")
	require.NoError(t, err)
	require.False(t, res.Passed)
	require.Equal(t, "feature_variance", res.Details[0].Check)
	require.Equal(t, "Drop the constant feature column", res.Details[0].Fix)
}
