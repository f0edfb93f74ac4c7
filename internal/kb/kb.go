// Package kb reads donor Pareto tables from the knowledge base and pools
// them per cluster.
package kb

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sbenjam1n/hlsopt/internal/hls"
	"golang.org/x/sync/errgroup"
)

// Layout locates the knowledge-base files.
type Layout struct {
	Root string
}

// FeatureVectors is the path of the source-code feature dataset.
func (l Layout) FeatureVectors() string {
	return filepath.Join(l.Root, "Source_Code_Feature_Vectors.csv")
}

// ParetoDir is the directory holding one Pareto table per donor.
func (l Layout) ParetoDir() string {
	return filepath.Join(l.Root, "ParetoFrontiers")
}

// ParetoFile is the Pareto table of one donor.
func (l Layout) ParetoFile(app string) string {
	return filepath.Join(l.ParetoDir(), app+".csv")
}

// Base reads Pareto tables for a fixed catalog.
type Base struct {
	layout  Layout
	catalog *hls.Catalog
	logger  *slog.Logger
}

// New creates a knowledge-base reader.
func New(layout Layout, catalog *hls.Catalog, logger *slog.Logger) *Base {
	if logger == nil {
		logger = slog.Default()
	}
	return &Base{layout: layout, catalog: catalog, logger: logger}
}

// Layout returns the file layout.
func (b *Base) Layout() Layout { return b.layout }

// Records loads the Pareto table of one donor. A donor without a table has
// no records.
func (b *Base) Records(app string) ([]hls.ParetoRecord, error) {
	f, err := os.Open(b.layout.ParetoFile(app))
	if errors.Is(err, fs.ErrNotExist) {
		b.logger.Info("donor has no pareto table", "app", app)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open pareto table for %s: %w", app, err)
	}
	defer f.Close()
	recs, err := ReadRecords(f, b.catalog, app)
	if err != nil {
		return nil, fmt.Errorf("read pareto table for %s: %w", app, err)
	}
	return recs, nil
}

// Pool concatenates the records of all members in member order.
func (b *Base) Pool(ctx context.Context, members []string) ([]hls.ParetoRecord, error) {
	parts := make([][]hls.ParetoRecord, len(members))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, app := range members {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			recs, err := b.Records(app)
			if err != nil {
				return err
			}
			parts[i] = recs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var pooled []hls.ParetoRecord
	for _, p := range parts {
		pooled = append(pooled, p...)
	}
	return pooled, nil
}

// ReadRecords parses a Pareto table: one column per catalog action point
// plus the five QoR columns. Extra columns are ignored.
func ReadRecords(r io.Reader, catalog *hls.Catalog, app string) ([]hls.ParetoRecord, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	apCol := make([]int, catalog.Len())
	for i := range apCol {
		apCol[i] = -1
	}
	metricCol := make(map[hls.Metric]int)
	for i, h := range header {
		h = strings.TrimSpace(h)
		if idx, ok := catalog.Index(h); ok {
			apCol[idx] = i
			continue
		}
		if m, ok := hls.MetricByColumn(h); ok {
			metricCol[m] = i
		}
	}
	for i, c := range apCol {
		if c < 0 {
			return nil, fmt.Errorf("missing action point column %s", catalog.At(i).Name)
		}
	}
	for _, m := range hls.Metrics {
		if _, ok := metricCol[m]; !ok {
			return nil, fmt.Errorf("missing metric column %s", m.Column())
		}
	}

	var recs []hls.ParetoRecord
	line := 1
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		line++
		rec := hls.ParetoRecord{Application: app, Directives: make([]string, catalog.Len())}
		for i, c := range apCol {
			v := strings.TrimSpace(row[c])
			if v == "" {
				v = hls.NoDirective
			}
			rec.Directives[i] = v
		}
		for m, c := range metricCol {
			x, err := strconv.ParseFloat(strings.TrimSpace(row[c]), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d column %s: %w", line, m.Column(), err)
			}
			rec.QoR.Set(m, x)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// WriteRecords writes records in the knowledge-base table layout.
func WriteRecords(w io.Writer, catalog *hls.Catalog, recs []hls.ParetoRecord) error {
	cw := csv.NewWriter(w)
	header := make([]string, 0, catalog.Len()+len(hls.Metrics))
	for _, ap := range catalog.Points() {
		header = append(header, ap.Name)
	}
	for _, m := range hls.Metrics {
		header = append(header, m.Column())
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range recs {
		row := append([]string(nil), r.Directives...)
		for _, m := range hls.Metrics {
			row = append(row, strconv.FormatFloat(r.QoR.Get(m), 'g', -1, 64))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFile stores records at path.
func WriteFile(path string, catalog *hls.Catalog, recs []hls.ParetoRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := WriteRecords(f, catalog, recs); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// PoolClusters pools the records of every cluster concurrently. The result
// is indexed like members.
func (b *Base) PoolClusters(ctx context.Context, members [][]string) ([][]hls.ParetoRecord, error) {
	pools := make([][]hls.ParetoRecord, len(members))
	g, ctx := errgroup.WithContext(ctx)
	for i, m := range members {
		g.Go(func() error {
			recs, err := b.Pool(ctx, m)
			if err != nil {
				return fmt.Errorf("pool cluster %d: %w", i, err)
			}
			pools[i] = recs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return pools, nil
}
