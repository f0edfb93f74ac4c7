// Package oracle runs the synthesis backend. The rest of the module only
// sees the Oracle interface; Vitis is the production implementation.
package oracle

import (
	"context"
	"fmt"
	"time"

	"github.com/sbenjam1n/hlsopt/internal/hls"
)

// Request describes one synthesis attempt.
type Request struct {
	Dir         string  // attempt directory; all artifacts are written here
	Source      string  // kernel file, relative to Dir
	Top         string  // top-level function
	Device      string  // part id, e.g. xczu7ev-ffvc1156-2-e
	ClockPeriod float64 // ns
	Timeout     time.Duration
	// VendorOptimizations keeps the backend's default partitioning and
	// loop pipelining enabled.
	VendorOptimizations bool
}

// Result is the outcome of a synthesis attempt. Metrics the backend did not
// report are hls.Unknown.
type Result struct {
	QoR      hls.QoR       `json:"qor"`
	WallTime time.Duration `json:"wall_time"`
}

// Synthesized reports whether any metric was produced.
func (r Result) Synthesized() bool { return r.QoR.Synthesized() }

// Oracle synthesizes an applied source tree. An attempt that produced no
// metrics is a Result with every metric unknown, not an error; errors are
// reserved for failures to run the backend at all.
type Oracle interface {
	Synthesize(ctx context.Context, req Request) (Result, error)
}

// Func adapts a function to the Oracle interface.
type Func func(ctx context.Context, req Request) (Result, error)

// Synthesize calls f.
func (f Func) Synthesize(ctx context.Context, req Request) (Result, error) {
	return f(ctx, req)
}

// ProjectName is the backend project directory for a request.
func ProjectName(req Request) string {
	if req.VendorOptimizations {
		return "original_wVO"
	}
	return "original_woVO"
}

// OutputDir is the directory the backend runs in, below the attempt dir.
func OutputDir(req Request) string {
	return fmt.Sprintf("%s_%s", req.Device, formatClock(req.ClockPeriod))
}

func formatClock(ns float64) string {
	return fmt.Sprintf("%g", ns)
}
