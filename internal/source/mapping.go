// Package source maps canonical directive labels onto a concrete
// application and injects the resulting pragmas at the marked lines of its
// kernel source.
package source

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/sbenjam1n/hlsopt/internal/directive"
	"github.com/sbenjam1n/hlsopt/internal/hls"
)

// MaxCompleteDim is the largest array dimension a complete partition is
// emitted for.
const MaxCompleteDim = 512

// Site binds a catalog action point to a marker label in one application.
// Array sites also carry the variable name and its two dimension sizes.
type Site struct {
	Point hls.ActionPoint
	Label string
	Array string
	Dims  [2]int
}

// DimSize returns the size of dimension dim (1-based); any dim other than 1
// selects the second size.
func (s Site) DimSize(dim int) int {
	if dim == 1 {
		return s.Dims[0]
	}
	return s.Dims[1]
}

// LoadSites reads an ActionPoint-Label-Mapping.txt file.
func LoadSites(path string, catalog *hls.Catalog) ([]Site, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open mapping: %w", err)
	}
	defer f.Close()
	sites, err := ParseSites(f, catalog)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return sites, nil
}

// ParseSites parses the mapping format, one site per line:
//
//	<ap>,<label>                        loop
//	<ap>,<array>,<label>,[<d1>,<d2>]    array
//
// where <ap> is an action-point name or its 1-based ordinal. Blank lines
// are skipped.
func ParseSites(r io.Reader, catalog *hls.Catalog) ([]Site, error) {
	var sites []Site
	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.Split(line, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}

		ap, err := catalog.Resolve(parts[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		site := Site{Point: ap}
		switch {
		case len(parts) == 2:
			site.Label = parts[1]
		case len(parts) == 5:
			site.Array = parts[1]
			site.Label = parts[2]
			d1, err1 := strconv.Atoi(strings.TrimPrefix(parts[3], "["))
			d2, err2 := strconv.Atoi(strings.TrimSuffix(parts[4], "]"))
			if err1 != nil || err2 != nil {
				return nil, fmt.Errorf("line %d: bad dimensions %s,%s", lineNum, parts[3], parts[4])
			}
			site.Dims = [2]int{d1, d2}
		default:
			return nil, fmt.Errorf("line %d: expected 2 or 5 fields, got %d", lineNum, len(parts))
		}
		if site.Label == "" {
			return nil, fmt.Errorf("line %d: empty label", lineNum)
		}
		if (site.Array != "") != (ap.Kind == hls.Array) {
			return nil, fmt.Errorf("line %d: %s is a %s action point", lineNum, ap.Name, ap.Kind)
		}
		sites = append(sites, site)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return sites, nil
}

// Pragma renders a canonical label at a site. It returns "" when the label
// is NDIR or cannot be applied to the site, with the reason in the second
// result for the latter.
func Pragma(site Site, label string) (string, string) {
	d, err := directive.ParseLabel(label)
	if err != nil {
		return "", err.Error()
	}
	if d.Kind == directive.None {
		return "", ""
	}
	if d.IsArray() != (site.Point.Kind == hls.Array) {
		return "", fmt.Sprintf("%s label on %s action point", d.Kind, site.Point.Kind)
	}
	switch d.Kind {
	case directive.ArrayPartition:
		if size := site.DimSize(d.Dim); d.Factor > size {
			return "", fmt.Sprintf("factor %d exceeds dimension size %d", d.Factor, size)
		}
	case directive.ArrayComplete:
		if size := site.DimSize(d.Dim); size > MaxCompleteDim {
			return "", fmt.Sprintf("dimension size %d exceeds %d", size, MaxCompleteDim)
		}
	}
	return d.Pragma(site.Array), ""
}

// MapDirectives renders an assignment for an application. The result maps
// marker labels to pragma text; sites whose label is NDIR or dropped are
// absent.
func MapDirectives(sites []Site, a hls.Assignment, logger *slog.Logger) map[string]string {
	if logger == nil {
		logger = slog.Default()
	}
	out := make(map[string]string, len(sites))
	for _, s := range sites {
		label := a.Get(s.Point.Name)
		text, reason := Pragma(s, label)
		if reason != "" {
			logger.Warn("directive dropped", "action_point", s.Point.Name, "site", s.Label, "label", label, "reason", reason)
			continue
		}
		if text != "" {
			out[s.Label] = text
		}
	}
	return out
}
