// Package proposal turns a cluster's pooled Pareto records into one
// canonical directive per action point, plus the ON/OFF statistics the
// repair loop ranks candidates with.
package proposal

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/sbenjam1n/hlsopt/internal/directive"
	"github.com/sbenjam1n/hlsopt/internal/hls"
	"github.com/sbenjam1n/hlsopt/internal/stats"
)

// Options tune the majority vote.
type Options struct {
	// Threshold is the minimum share the most frequent label needs.
	Threshold float64
	// CountAbsent makes NDIR rows part of the vote denominator. By default
	// the denominator is the number of rows carrying a directive.
	CountAbsent bool
}

// Table is a pooled record set with every directive in canonical form.
// Labels[i][j] is the label of record i at catalog position j.
type Table struct {
	Catalog *hls.Catalog
	Labels  [][]string
	QoR     []hls.QoR
}

// Len returns the number of records.
func (t *Table) Len() int { return len(t.Labels) }

// Column returns the labels of every record at catalog position j.
func (t *Table) Column(j int) []string {
	col := make([]string, len(t.Labels))
	for i, row := range t.Labels {
		col[i] = row[j]
	}
	return col
}

// Canonicalize translates every raw directive to its canonical label.
// Malformed directive text is a knowledge-base fault and fails the whole
// table.
func Canonicalize(catalog *hls.Catalog, recs []hls.ParetoRecord) (*Table, error) {
	t := &Table{Catalog: catalog, Labels: make([][]string, len(recs)), QoR: make([]hls.QoR, len(recs))}
	for i, r := range recs {
		if len(r.Directives) != catalog.Len() {
			return nil, fmt.Errorf("record %d of %s: %d directives, want %d", i, r.Application, len(r.Directives), catalog.Len())
		}
		row := make([]string, catalog.Len())
		for j, raw := range r.Directives {
			ap := catalog.At(j)
			label, err := directive.Canonical(raw, ap.Kind)
			if err != nil {
				return nil, fmt.Errorf("record %d of %s at %s: %w", i, r.Application, ap.Name, err)
			}
			row[j] = label
		}
		t.Labels[i] = row
		t.QoR[i] = r.QoR
	}
	return t, nil
}

// Vote is the outcome of the majority vote at one action point.
type Vote struct {
	Label  string
	Count  int
	Total  int
	Counts map[string]int
}

// Share is Count/Total, zero for an empty vote.
func (v Vote) Share() float64 {
	if v.Total == 0 {
		return 0
	}
	return float64(v.Count) / float64(v.Total)
}

// VoteColumn runs the majority vote over one column of labels. Labels that
// appear in every row are always on and cannot be proposed. Ties between
// equally frequent labels resolve to the lexicographically smallest label.
func VoteColumn(col []string, opts Options) Vote {
	v := Vote{Label: hls.NoDirective, Counts: make(map[string]int)}
	for _, l := range col {
		if l == hls.NoDirective {
			continue
		}
		v.Counts[l]++
	}
	for _, n := range v.Counts {
		v.Total += n
	}
	if opts.CountAbsent {
		v.Total = len(col)
	}

	labels := make([]string, 0, len(v.Counts))
	for l := range v.Counts {
		labels = append(labels, l)
	}
	sort.Strings(labels)

	best := ""
	for _, l := range labels {
		n := v.Counts[l]
		if n == len(col) {
			continue
		}
		if best == "" || n > v.Counts[best] {
			best = l
		}
	}
	if best == "" || v.Total == 0 {
		return v
	}
	v.Count = v.Counts[best]
	if v.Share() >= opts.Threshold {
		v.Label = best
	}
	return v
}

// Propose returns the proposed label at every catalog action point. An
// empty table proposes NDIR everywhere.
func Propose(t *Table, opts Options) hls.Assignment {
	out := t.Catalog.Empty()
	if t.Len() == 0 {
		return out
	}
	for j, ap := range t.Catalog.Points() {
		out[ap.Name] = VoteColumn(t.Column(j), opts).Label
	}
	return out
}

// BuildImpactTable computes, for each label at each action point, the
// summary of every QoR metric over the rows where the label is on and over
// the rows where it is off. Always-on labels are skipped and logged.
func BuildImpactTable(t *Table, logger *slog.Logger) *ImpactTable {
	if logger == nil {
		logger = slog.Default()
	}
	entries := make(map[string]map[string]Split, t.Catalog.Len())
	if t.Len() == 0 {
		return NewImpactTable(entries)
	}
	for j, ap := range t.Catalog.Points() {
		col := t.Column(j)
		seen := make(map[string]bool)
		labels := make(map[string]Split)
		for _, l := range col {
			if l == hls.NoDirective || seen[l] {
				continue
			}
			seen[l] = true

			var on, off []hls.QoR
			for i, other := range col {
				if other == l {
					on = append(on, t.QoR[i])
				} else {
					off = append(off, t.QoR[i])
				}
			}
			if len(off) == 0 {
				logger.Info("directive always on", "action_point", ap.Name, "label", l)
				continue
			}
			labels[l] = Split{On: summarize(on), Off: summarize(off)}
		}
		entries[ap.Name] = labels
	}
	return NewImpactTable(entries)
}

func summarize(rows []hls.QoR) map[hls.Metric]hls.Summary {
	out := make(map[hls.Metric]hls.Summary, len(hls.Metrics))
	xs := make([]float64, len(rows))
	for _, m := range hls.Metrics {
		for i, q := range rows {
			xs[i] = q.Get(m)
		}
		out[m] = stats.Summarize(xs)
	}
	return out
}
