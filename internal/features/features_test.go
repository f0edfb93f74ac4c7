package features

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleCSV = `Application_Name,loops,arrays,depth
knn,4,3,2
kmeans,6,2,3
gemm,3,3,3
fft,8,5,1
`

func TestReadCSV(t *testing.T) {
	tbl, err := ReadCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)
	require.Equal(t, []string{"knn", "kmeans", "gemm", "fft"}, tbl.Names)
	require.Equal(t, []string{"loops", "arrays", "depth"}, tbl.Columns)
	require.Equal(t, []float64{6, 2, 3}, tbl.Rows[1])
}

func TestReadCSVRequiresNameColumn(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("a,b\n1,2\n"))
	require.Error(t, err)
}

func TestStandardize(t *testing.T) {
	x, err := Standardize([][]float64{{1, 10}, {3, 30}})
	require.NoError(t, err)
	require.InDelta(t, -1, x.At(0, 0), 1e-12)
	require.InDelta(t, 1, x.At(1, 0), 1e-12)
	require.InDelta(t, 1, x.At(1, 1), 1e-12)
}

func TestStandardizeZeroVariance(t *testing.T) {
	_, err := Standardize([][]float64{{1, 5}, {2, 5}})
	if !errors.Is(err, ErrZeroVariance) {
		t.Fatalf("error = %v, want ErrZeroVariance", err)
	}
}

func TestReduce(t *testing.T) {
	tbl, err := ReadCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)

	profiles, err := Reduce(tbl, 2)
	require.NoError(t, err)
	require.Len(t, profiles, 4)
	for _, p := range profiles {
		require.Len(t, p.Vector, 2)
		require.Equal(t, -1, p.Cluster)
	}

	// Scores of standardized data are centered.
	for j := 0; j < 2; j++ {
		sum := 0.0
		for _, p := range profiles {
			sum += p.Vector[j]
		}
		require.InDelta(t, 0, sum, 1e-9)
	}

	// The first component carries at least as much variance as the second.
	var v0, v1 float64
	for _, p := range profiles {
		v0 += p.Vector[0] * p.Vector[0]
		v1 += p.Vector[1] * p.Vector[1]
	}
	require.GreaterOrEqual(t, v0+1e-9, v1)

	again, err := Reduce(tbl, 2)
	require.NoError(t, err)
	for i := range profiles {
		for j := range profiles[i].Vector {
			if math.Abs(profiles[i].Vector[j]-again[i].Vector[j]) > 1e-12 {
				t.Fatalf("Reduce is not deterministic at %d,%d", i, j)
			}
		}
	}
}

func TestReduceComponentBound(t *testing.T) {
	tbl, err := ReadCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)

	for _, n := range []int{0, 4} {
		_, err := Reduce(tbl, n)
		if !errors.Is(err, ErrTooManyComponents) {
			t.Errorf("Reduce(%d) error = %v, want ErrTooManyComponents", n, err)
		}
	}
}
