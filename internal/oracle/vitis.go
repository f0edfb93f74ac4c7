package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/sbenjam1n/hlsopt/internal/hls"
)

const (
	scriptName  = "script.tcl"
	logName     = "vitis_hls.log"
	resultsName = "results.json"
	solution    = "solution1"
)

var scriptTmpl = template.Must(template.New("script").Parse(`open_project {{.Project}}
set_top {{.Top}}
add_files {{.Source}}
open_solution "` + solution + `" -flow_target vivado
set_part {{"{"}}{{.Device}}{{"}"}}
create_clock -period {{.Clock}} -name default
{{- if not .VendorOptimizations}}
config_array_partition -complete_threshold 0 -throughput_driven off
config_compile -pipeline_loops 0
{{- end}}
csynth_design
export_design -format ip_catalog
exit
`))

// Vitis drives the vitis_hls command line.
type Vitis struct {
	Binary string
	Logger *slog.Logger
}

// NewVitis creates a runner for binary ("vitis_hls" when empty).
func NewVitis(binary string, logger *slog.Logger) *Vitis {
	if binary == "" {
		binary = "vitis_hls"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Vitis{Binary: binary, Logger: logger}
}

// Script renders the TCL script for a request.
func Script(req Request) (string, error) {
	src, err := filepath.Abs(filepath.Join(req.Dir, req.Source))
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	err = scriptTmpl.Execute(&buf, map[string]any{
		"Project":             ProjectName(req),
		"Top":                 req.Top,
		"Source":              src,
		"Device":              req.Device,
		"Clock":               formatClock(req.ClockPeriod),
		"VendorOptimizations": req.VendorOptimizations,
	})
	return buf.String(), err
}

// Synthesize runs the backend in <Dir>/<device>_<clock> and parses its
// solution data. The process group is killed when the timeout expires; the
// partial artifact, if any, is still read.
func (v *Vitis) Synthesize(ctx context.Context, req Request) (Result, error) {
	work := filepath.Join(req.Dir, OutputDir(req))
	if err := os.MkdirAll(work, 0755); err != nil {
		return Result{}, fmt.Errorf("create work dir: %w", err)
	}
	script, err := Script(req)
	if err != nil {
		return Result{}, fmt.Errorf("render script: %w", err)
	}
	if err := os.WriteFile(filepath.Join(work, scriptName), []byte(script), 0644); err != nil {
		return Result{}, fmt.Errorf("write script: %w", err)
	}

	runCtx := ctx
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(runCtx, v.Binary, "-f", scriptName, "-l", logName)
	cmd.Dir = work
	setProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }
	cmd.WaitDelay = 10 * time.Second

	log := v.Logger.With("dir", req.Dir, "top", req.Top)
	start := time.Now()
	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("start %s: %w", v.Binary, err)
	}
	waitErr := cmd.Wait()
	elapsed := time.Since(start)
	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		log.Warn("synthesis timed out", "timeout", req.Timeout)
	case waitErr != nil:
		log.Warn("synthesis exited with error", "err", waitErr)
	default:
		log.Info("synthesis completed", "elapsed", elapsed)
	}

	res := Result{QoR: hls.UnknownQoR(), WallTime: elapsed}
	dataPath := filepath.Join(work, ProjectName(req), solution, solution+"_data.json")
	f, err := os.Open(dataPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Warn("no synthesis data", "path", dataPath)
	case err != nil:
		return Result{}, fmt.Errorf("open synthesis data: %w", err)
	default:
		q, perr := ParseSolution(f, req.Top)
		f.Close()
		if perr != nil {
			log.Warn("unreadable synthesis data", "path", dataPath, "err", perr)
		} else {
			res.QoR = q
		}
	}

	if err := writeResults(filepath.Join(work, resultsName), ProjectName(req), res); err != nil {
		return Result{}, err
	}
	return res, nil
}

type solutionData struct {
	ClockInfo struct {
		Latency     json.RawMessage `json:"Latency"`
		ClockPeriod json.RawMessage `json:"ClockPeriod"`
	} `json:"ClockInfo"`
	ModuleInfo struct {
		Metrics map[string]struct {
			Area map[string]json.RawMessage `json:"Area"`
		} `json:"Metrics"`
	} `json:"ModuleInfo"`
}

// ParseSolution extracts QoR from a solution1_data.json document. Latency is
// converted from cycles to milliseconds with the reported clock period; it
// is hls.Unknown when the backend could not determine it. Missing
// utilization entries count as zero.
func ParseSolution(r io.Reader, top string) (hls.QoR, error) {
	var data solutionData
	if err := json.NewDecoder(r).Decode(&data); err != nil {
		return hls.QoR{}, fmt.Errorf("decode solution data: %w", err)
	}
	q := hls.UnknownQoR()

	period, ok, err := number(data.ClockInfo.ClockPeriod)
	if err != nil || !ok {
		return hls.QoR{}, fmt.Errorf("clock period: missing or invalid")
	}
	if cycles, ok, err := number(data.ClockInfo.Latency); err == nil && ok {
		q.LatencyMsec = cycles * period / 1e6
	}

	mod, found := data.ModuleInfo.Metrics[top]
	if !found {
		return hls.QoR{}, fmt.Errorf("no metrics for top function %s", top)
	}
	for _, m := range hls.Resources {
		key := "UTIL_" + strings.ToUpper(m.String())
		v, ok, err := number(mod.Area[key])
		if err != nil {
			return hls.QoR{}, fmt.Errorf("%s: %w", key, err)
		}
		if !ok {
			v = 0
		}
		q.Set(m, v)
	}
	return q, nil
}

// number reads a JSON number or a numeric string such as "~12".
func number(raw json.RawMessage) (float64, bool, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		s = string(raw)
	}
	s = strings.TrimSpace(strings.Trim(s, "~"))
	if s == "" || s == "-" || strings.EqualFold(s, "undef") {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse %q: %w", s, err)
	}
	return v, true, nil
}

type resultsFile struct {
	DesignLatencyMsec float64 `json:"design_latency_msec"`
	BRAM              float64 `json:"bram_utilization"`
	DSP               float64 `json:"dsp_utilization"`
	FF                float64 `json:"ff_utilization"`
	LUT               float64 `json:"lut_utilization"`
	SynthesisTimeSec  float64 `json:"synthesis_time_sec"`
}

func writeResults(path, project string, res Result) error {
	out := map[string]resultsFile{
		project: {
			DesignLatencyMsec: res.QoR.LatencyMsec,
			BRAM:              res.QoR.BRAM,
			DSP:               res.QoR.DSP,
			FF:                res.QoR.FF,
			LUT:               res.QoR.LUT,
			SynthesisTimeSec:  res.WallTime.Seconds(),
		},
	}
	data, err := json.MarshalIndent(out, "", "    ")
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	return nil
}
