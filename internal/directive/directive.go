// Package directive parses HLS pragma text and canonical directive labels
// into a single typed representation.
package directive

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sbenjam1n/hlsopt/internal/hls"
)

// ErrMalformed reports directive text that does not follow the pragma or
// label grammar.
var ErrMalformed = errors.New("malformed directive")

// Kind is the variant tag of a Directive.
type Kind int

const (
	None Kind = iota
	ArrayComplete
	ArrayPartition
	LoopUnroll
	LoopPipeline
)

func (k Kind) String() string {
	switch k {
	case None:
		return "none"
	case ArrayComplete:
		return "array_complete"
	case ArrayPartition:
		return "array_partition"
	case LoopUnroll:
		return "loop_unroll"
	case LoopPipeline:
		return "loop_pipeline"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Directive is a parsed directive.
//
//	ArrayComplete:  Dim
//	ArrayPartition: Partition, Factor, Dim
//	LoopUnroll:     Factor (0 when absent)
//	LoopPipeline:   Interval (0 when absent)
type Directive struct {
	Kind      Kind
	Partition string
	Factor    int
	Interval  int
	Dim       int
}

// Label returns the canonical label of the directive.
func (d Directive) Label() string {
	switch d.Kind {
	case ArrayComplete:
		return fmt.Sprintf("complete_%d", d.Dim)
	case ArrayPartition:
		return fmt.Sprintf("%s_%d_%d", d.Partition, d.Factor, d.Dim)
	case LoopUnroll:
		if d.Factor > 0 {
			return fmt.Sprintf("unroll_%d", d.Factor)
		}
		return "unroll"
	case LoopPipeline:
		if d.Interval > 0 {
			return fmt.Sprintf("pipeline_%d", d.Interval)
		}
		return "pipeline"
	}
	return hls.NoDirective
}

// Parse reads raw pragma text from the knowledge base. The action-point kind
// selects the grammar; NDIR parses to None for either kind.
//
//	#pragma HLS array_partition variable=<v> complete dim=<d>
//	#pragma HLS array_partition variable=<v> <cyclic|block> factor=<f> dim=<d>
//	#pragma HLS unroll [factor=<f>]
//	#pragma HLS pipeline [<args>...]
func Parse(raw string, kind hls.Kind) (Directive, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == hls.NoDirective {
		return Directive{Kind: None}, nil
	}
	fields := strings.Fields(raw)
	if len(fields) < 3 || fields[0] != "#pragma" || !strings.EqualFold(fields[1], "HLS") {
		return Directive{}, fmt.Errorf("%w: %q", ErrMalformed, raw)
	}
	if kind == hls.Array {
		return parseArray(raw, fields)
	}
	return parseLoop(raw, fields)
}

func parseArray(raw string, fields []string) (Directive, error) {
	if fields[2] != "array_partition" || len(fields) < 6 || !strings.HasPrefix(fields[3], "variable=") {
		return Directive{}, fmt.Errorf("%w: %q", ErrMalformed, raw)
	}
	if fields[4] == "complete" {
		if len(fields) != 6 {
			return Directive{}, fmt.Errorf("%w: %q", ErrMalformed, raw)
		}
		dim, err := keyInt(fields[5], "dim")
		if err != nil {
			return Directive{}, fmt.Errorf("%w: %q: %v", ErrMalformed, raw, err)
		}
		return Directive{Kind: ArrayComplete, Dim: dim}, nil
	}
	if len(fields) != 7 {
		return Directive{}, fmt.Errorf("%w: %q", ErrMalformed, raw)
	}
	factor, err := keyInt(fields[5], "factor")
	if err != nil {
		return Directive{}, fmt.Errorf("%w: %q: %v", ErrMalformed, raw, err)
	}
	dim, err := keyInt(fields[6], "dim")
	if err != nil {
		return Directive{}, fmt.Errorf("%w: %q: %v", ErrMalformed, raw, err)
	}
	return Directive{Kind: ArrayPartition, Partition: fields[4], Factor: factor, Dim: dim}, nil
}

func parseLoop(raw string, fields []string) (Directive, error) {
	switch fields[2] {
	case "unroll":
		if len(fields) > 4 {
			return Directive{}, fmt.Errorf("%w: %q", ErrMalformed, raw)
		}
		d := Directive{Kind: LoopUnroll}
		if len(fields) == 4 {
			f, err := keyInt(fields[3], "factor")
			if err != nil {
				return Directive{}, fmt.Errorf("%w: %q: %v", ErrMalformed, raw, err)
			}
			d.Factor = f
		}
		return d, nil
	case "pipeline":
		// Any argument list labels as pipeline_1.
		d := Directive{Kind: LoopPipeline}
		if len(fields) > 3 {
			d.Interval = 1
		}
		return d, nil
	}
	return Directive{}, fmt.Errorf("%w: %q", ErrMalformed, raw)
}

func keyInt(field, key string) (int, error) {
	k, v, ok := strings.Cut(field, "=")
	if !ok || !strings.EqualFold(k, key) {
		return 0, fmt.Errorf("expected %s=<n>, got %q", key, field)
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("bad %s value %q", key, v)
	}
	return n, nil
}

// ParseLabel reads a canonical label back into a directive.
func ParseLabel(label string) (Directive, error) {
	if label == "" || label == hls.NoDirective {
		return Directive{Kind: None}, nil
	}
	parts := strings.Split(label, "_")
	num := func(s string) (int, error) {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("%w: label %q", ErrMalformed, label)
		}
		return n, nil
	}
	switch len(parts) {
	case 1:
		switch parts[0] {
		case "unroll":
			return Directive{Kind: LoopUnroll}, nil
		case "pipeline":
			return Directive{Kind: LoopPipeline}, nil
		}
	case 2:
		n, err := num(parts[1])
		if err != nil {
			return Directive{}, err
		}
		switch parts[0] {
		case "complete":
			return Directive{Kind: ArrayComplete, Dim: n}, nil
		case "unroll":
			return Directive{Kind: LoopUnroll, Factor: n}, nil
		case "pipeline":
			return Directive{Kind: LoopPipeline, Interval: n}, nil
		}
	case 3:
		if parts[0] == "complete" {
			break
		}
		factor, err := num(parts[1])
		if err != nil {
			return Directive{}, err
		}
		dim, err := num(parts[2])
		if err != nil {
			return Directive{}, err
		}
		return Directive{Kind: ArrayPartition, Partition: parts[0], Factor: factor, Dim: dim}, nil
	}
	return Directive{}, fmt.Errorf("%w: label %q", ErrMalformed, label)
}

// Canonical translates raw pragma text to its canonical label.
func Canonical(raw string, kind hls.Kind) (string, error) {
	d, err := Parse(raw, kind)
	if err != nil {
		return "", err
	}
	return d.Label(), nil
}

// Pragma renders the directive for a concrete array variable. The variable
// is ignored for loop directives. None renders as the empty string.
func (d Directive) Pragma(variable string) string {
	switch d.Kind {
	case ArrayComplete:
		return fmt.Sprintf("#pragma HLS array_partition variable=%s complete dim=%d", variable, d.Dim)
	case ArrayPartition:
		return fmt.Sprintf("#pragma HLS array_partition variable=%s %s factor=%d dim=%d", variable, d.Partition, d.Factor, d.Dim)
	case LoopUnroll:
		if d.Factor > 0 {
			return fmt.Sprintf("#pragma HLS unroll factor=%d", d.Factor)
		}
		return "#pragma HLS unroll"
	case LoopPipeline:
		if d.Interval > 0 {
			return fmt.Sprintf("#pragma HLS pipeline II=%d", d.Interval)
		}
		return "#pragma HLS pipeline"
	}
	return ""
}

// IsArray reports whether the directive applies to array action points.
func (d Directive) IsArray() bool {
	return d.Kind == ArrayComplete || d.Kind == ArrayPartition
}
