package proposal

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/sbenjam1n/hlsopt/internal/hls"
)

// Split is the ON/OFF distribution summary of one label at one action
// point, per QoR metric.
type Split struct {
	On  map[hls.Metric]hls.Summary `json:"ON"`
	Off map[hls.Metric]hls.Summary `json:"OFF"`
}

// MedianDiff is median(ON) - median(OFF) for a metric.
func (s Split) MedianDiff(m hls.Metric) float64 {
	return s.On[m].Median - s.Off[m].Median
}

// ImpactTable holds the ON/OFF statistics of every label observed at every
// action point of a cluster. It is never modified after construction.
type ImpactTable struct {
	entries map[string]map[string]Split
}

// NewImpactTable wraps precomputed statistics, keyed action point → label.
func NewImpactTable(entries map[string]map[string]Split) *ImpactTable {
	cp := make(map[string]map[string]Split, len(entries))
	for ap, labels := range entries {
		inner := make(map[string]Split, len(labels))
		for l, s := range labels {
			inner[l] = s
		}
		cp[ap] = inner
	}
	return &ImpactTable{entries: cp}
}

// Empty reports whether the table has no statistics at all.
func (t *ImpactTable) Empty() bool {
	for _, labels := range t.entries {
		if len(labels) > 0 {
			return false
		}
	}
	return true
}

// Split returns the statistics of a label at an action point.
func (t *ImpactTable) Split(ap, label string) (Split, bool) {
	s, ok := t.entries[ap][label]
	return s, ok
}

// Labels returns the labels with statistics at an action point, sorted.
func (t *ImpactTable) Labels(ap string) []string {
	labels := make([]string, 0, len(t.entries[ap]))
	for l := range t.entries[ap] {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}

// Impact returns the resource and latency median differences of a label.
func (t *ImpactTable) Impact(ap, label string, resource hls.Metric) (hls.Impact, bool) {
	s, ok := t.Split(ap, label)
	if !ok {
		return hls.Impact{}, false
	}
	return hls.Impact{
		Label:        label,
		ResourceDiff: s.MedianDiff(resource),
		LatencyDiff:  s.MedianDiff(hls.Latency),
	}, true
}

// Candidates returns the impact of every label at an action point, in
// label order.
func (t *ImpactTable) Candidates(ap string, resource hls.Metric) []hls.Impact {
	var out []hls.Impact
	for _, l := range t.Labels(ap) {
		imp, _ := t.Impact(ap, l, resource)
		out = append(out, imp)
	}
	return out
}

// MarshalJSON encodes the table as action point → label → ON/OFF → metric
// column → summary.
func (t *ImpactTable) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.entries)
}

// UnmarshalJSON decodes the layout written by MarshalJSON.
func (t *ImpactTable) UnmarshalJSON(b []byte) error {
	var entries map[string]map[string]Split
	if err := json.Unmarshal(b, &entries); err != nil {
		return err
	}
	*t = *NewImpactTable(entries)
	return nil
}

// WriteFile stores the table as indented JSON.
func (t *ImpactTable) WriteFile(path string) error {
	data, err := json.MarshalIndent(t, "", "    ")
	if err != nil {
		return fmt.Errorf("encode impact table: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
