package source

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Marker is an insertion point found in a source file.
type Marker struct {
	Label string
	File  string
	Line  int
}

// ScanMarkers finds the markers L1, L2, ... of a source file in the order
// Apply consumes them.
func ScanMarkers(filename string) ([]Marker, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var markers []Marker
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		label := MarkerLabel(len(markers) + 1)
		if HasMarker(scanner.Text(), label) {
			markers = append(markers, Marker{Label: label, File: filename, Line: lineNum})
		}
	}
	return markers, scanner.Err()
}

// CheckSites compares the sites of a mapping file with the markers of the
// source and describes every mismatch.
func CheckSites(sites []Site, markers []Marker) []string {
	var warnings []string
	found := make(map[string]bool, len(markers))
	for _, m := range markers {
		found[m.Label] = true
	}
	mapped := make(map[string]bool, len(sites))
	for _, s := range sites {
		if mapped[s.Label] {
			warnings = append(warnings, fmt.Sprintf("%s: label mapped more than once", s.Label))
		}
		mapped[s.Label] = true
		if !found[s.Label] {
			warnings = append(warnings, fmt.Sprintf("%s (%s): no marker in source", s.Label, s.Point.Name))
		}
	}
	for _, m := range markers {
		if !mapped[m.Label] {
			warnings = append(warnings, fmt.Sprintf("%s:%d: %s has no action point", m.File, m.Line, m.Label))
		}
	}
	return warnings
}

// FormatSites renders the sites as a tree grouped by action-point kind,
// with the marker line of each site when known.
func FormatSites(sites []Site, markers []Marker) string {
	lines := make(map[string]int, len(markers))
	for _, m := range markers {
		lines[m.Label] = m.Line
	}

	groups := []struct {
		name  string
		sites []Site
	}{{name: "arrays"}, {name: "loops"}}
	for _, s := range sites {
		if s.Array != "" {
			groups[0].sites = append(groups[0].sites, s)
		} else {
			groups[1].sites = append(groups[1].sites, s)
		}
	}

	var sb strings.Builder
	for gi, g := range groups {
		lastGroup := gi == len(groups)-1
		connector, childPrefix := "├── ", "│   "
		if lastGroup {
			connector, childPrefix = "└── ", "    "
		}
		sb.WriteString(connector + g.name + "\n")
		for i, s := range g.sites {
			c := "├── "
			if i == len(g.sites)-1 {
				c = "└── "
			}
			sb.WriteString(childPrefix + c + s.Point.Name + " → " + s.Label)
			if s.Array != "" {
				sb.WriteString(fmt.Sprintf(" %s[%d][%d]", s.Array, s.Dims[0], s.Dims[1]))
			}
			if line, ok := lines[s.Label]; ok {
				sb.WriteString(fmt.Sprintf("    [line %d]", line))
			} else {
				sb.WriteString("    [missing]")
			}
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
