package optimizer

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/sbenjam1n/hlsopt/internal/features"
	"github.com/sbenjam1n/hlsopt/internal/hls"
)

// Layout locates the output files of one target application.
type Layout struct {
	Root string // <output>/<app>
	App  string
}

// NewLayout returns the layout for app below the output directory.
func NewLayout(output, app string) Layout {
	return Layout{Root: filepath.Join(output, app), App: app}
}

// Assignments is the cluster-assignment table.
func (l Layout) Assignments(components, clusters int) string {
	return filepath.Join(l.Root, fmt.Sprintf("PC_%d_CLUSTER_NUM_%d.csv", components, clusters))
}

// Pool is the pooled Pareto table of a cluster.
func (l Layout) Pool(cluster int) string {
	return filepath.Join(l.Root, fmt.Sprintf("CLUSTER_%d_PARETO_OPTIMAL_DISTRIBUTION.csv", cluster))
}

// ImpactDir holds one impact table per cluster.
func (l Layout) ImpactDir() string {
	return filepath.Join(l.Root, "DIRECTIVE_QOR_METRIC_DISTRIBUTION_ANALYSIS")
}

// Impact is the impact table of a cluster.
func (l Layout) Impact(cluster int) string {
	return filepath.Join(l.ImpactDir(), fmt.Sprintf("CLUSTER_%d.json", cluster))
}

// SourceDir holds one applied source tree per attempt.
func (l Layout) SourceDir() string {
	return filepath.Join(l.Root, "OPTIMIZED_SOURCE_CODE")
}

// Attempt is the source tree of a named attempt; the initial attempt is
// named after the application.
func (l Layout) Attempt(name string) string {
	if name == l.App {
		return filepath.Join(l.SourceDir(), l.App)
	}
	return filepath.Join(l.SourceDir(), l.App+"_"+name)
}

// Trace is the repair-loop log.
func (l Layout) Trace() string {
	return filepath.Join(l.Root, "Repair-Directives.log")
}

// Result is the final metrics record.
func (l Layout) Result() string {
	return filepath.Join(l.Root, "result.json")
}

// Prepare creates the directory tree.
func (l Layout) Prepare() error {
	for _, d := range []string{l.Root, l.ImpactDir(), l.SourceDir()} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return fmt.Errorf("create %s: %w", d, err)
		}
	}
	return nil
}

// WriteAssignments stores every profile with its reduced vector and cluster.
func WriteAssignments(path string, profiles []hls.Profile) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	w := csv.NewWriter(f)
	width := 0
	if len(profiles) > 0 {
		width = len(profiles[0].Vector)
	}
	header := []string{features.NameColumn}
	for i := 1; i <= width; i++ {
		header = append(header, fmt.Sprintf("PC_%d", i))
	}
	header = append(header, "Cluster_Id")
	w.Write(header)
	for _, p := range profiles {
		row := []string{p.Name}
		for _, v := range p.Vector {
			row = append(row, strconv.FormatFloat(v, 'g', -1, 64))
		}
		row = append(row, strconv.Itoa(p.Cluster))
		w.Write(row)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	return os.WriteFile(path, data, 0644)
}
