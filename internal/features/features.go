// Package features loads per-application source-code feature vectors and
// reduces them to a few principal components.
package features

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/sbenjam1n/hlsopt/internal/hls"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// NameColumn is the column holding the application name.
const NameColumn = "Application_Name"

var (
	// ErrZeroVariance is returned when a feature column is constant.
	ErrZeroVariance = errors.New("feature column has zero variance")
	// ErrTooManyComponents is returned when more components are requested
	// than the data can provide.
	ErrTooManyComponents = errors.New("too many principal components")
)

// Table is a named-application × numeric-feature table.
type Table struct {
	Names   []string
	Columns []string
	Rows    [][]float64
}

// LoadCSV reads a feature table. The name column may appear anywhere.
func LoadCSV(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open feature dataset: %w", err)
	}
	defer f.Close()
	t, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("read feature dataset %s: %w", path, err)
	}
	return t, nil
}

// ReadCSV parses a feature table from r.
func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	nameIdx := -1
	t := &Table{}
	for i, h := range header {
		if strings.TrimSpace(h) == NameColumn {
			nameIdx = i
			continue
		}
		t.Columns = append(t.Columns, strings.TrimSpace(h))
	}
	if nameIdx < 0 {
		return nil, fmt.Errorf("missing %s column", NameColumn)
	}

	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		line++
		row := make([]float64, 0, len(t.Columns))
		for i, v := range rec {
			if i == nameIdx {
				continue
			}
			x, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d column %s: %w", line, header[i], err)
			}
			row = append(row, x)
		}
		t.Names = append(t.Names, strings.TrimSpace(rec[nameIdx]))
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// Standardize centers every column on zero mean and scales it to unit
// population standard deviation.
func Standardize(rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("standardize: empty table")
	}
	n, d := len(rows), len(rows[0])
	x := mat.NewDense(n, d, nil)
	for i, r := range rows {
		if len(r) != d {
			return nil, fmt.Errorf("standardize: row %d has %d columns, want %d", i, len(r), d)
		}
		x.SetRow(i, r)
	}
	col := make([]float64, n)
	for j := 0; j < d; j++ {
		mat.Col(col, j, x)
		mean, std := stat.PopMeanStdDev(col, nil)
		if std == 0 || math.IsNaN(std) {
			return nil, fmt.Errorf("%w: column %d", ErrZeroVariance, j)
		}
		for i := range col {
			x.Set(i, j, (col[i]-mean)/std)
		}
	}
	return x, nil
}

// Reduce standardizes the table and projects it onto its top components
// principal axes. Each axis is sign-normalized so its largest loading is
// positive, which makes the projection stable across runs.
func Reduce(t *Table, components int) ([]hls.Profile, error) {
	if components < 1 || components > len(t.Columns) {
		return nil, fmt.Errorf("%w: %d requested, %d feature columns", ErrTooManyComponents, components, len(t.Columns))
	}
	x, err := Standardize(t.Rows)
	if err != nil {
		return nil, err
	}
	n, _ := x.Dims()
	if components > n {
		return nil, fmt.Errorf("%w: %d requested, %d applications", ErrTooManyComponents, components, n)
	}

	var pc stat.PC
	if ok := pc.PrincipalComponents(x, nil); !ok {
		return nil, fmt.Errorf("principal component analysis did not converge")
	}
	var vecs mat.Dense
	pc.VectorsTo(&vecs)
	d, k := vecs.Dims()
	if components > k {
		return nil, fmt.Errorf("%w: %d requested, %d available", ErrTooManyComponents, components, k)
	}
	axes := mat.DenseCopyOf(vecs.Slice(0, d, 0, components))
	normalizeSigns(axes)

	var scores mat.Dense
	scores.Mul(x, axes)

	profiles := make([]hls.Profile, n)
	for i := range profiles {
		profiles[i] = hls.Profile{
			Name:    t.Names[i],
			Vector:  mat.Row(nil, i, &scores),
			Cluster: -1,
		}
	}
	return profiles, nil
}

func normalizeSigns(axes *mat.Dense) {
	r, c := axes.Dims()
	for j := 0; j < c; j++ {
		best := 0.0
		for i := 0; i < r; i++ {
			if v := axes.At(i, j); math.Abs(v) > math.Abs(best) {
				best = v
			}
		}
		if best < 0 {
			for i := 0; i < r; i++ {
				axes.Set(i, j, -axes.At(i, j))
			}
		}
	}
}
