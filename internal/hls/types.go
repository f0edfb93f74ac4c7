package hls

import (
	"fmt"
	"sort"
	"strings"
)

// NoDirective is the sentinel for "no directive" at an action point.
const NoDirective = "NDIR"

// Unknown is the value a QoR metric takes when the synthesis backend
// could not report it.
const Unknown = -1.0

// Metric identifies one quality-of-result column.
type Metric int

const (
	Latency Metric = iota
	BRAM
	DSP
	FF
	LUT
)

// Metrics lists every QoR metric in table column order.
var Metrics = []Metric{Latency, BRAM, DSP, FF, LUT}

// Resources lists the utilization metrics in violated-resource scan order.
var Resources = []Metric{BRAM, DSP, FF, LUT}

var metricColumns = map[Metric]string{
	Latency: "DesignLatency_Msec",
	BRAM:    "BRAM_Utilization",
	DSP:     "DSP_Utilization",
	FF:      "FF_Utilization",
	LUT:     "LUT_Utilization",
}

// Column returns the knowledge-base column name for the metric.
func (m Metric) Column() string {
	if c, ok := metricColumns[m]; ok {
		return c
	}
	return fmt.Sprintf("Metric(%d)", int(m))
}

func (m Metric) String() string {
	switch m {
	case Latency:
		return "latency"
	case BRAM:
		return "bram"
	case DSP:
		return "dsp"
	case FF:
		return "ff"
	case LUT:
		return "lut"
	}
	return fmt.Sprintf("metric(%d)", int(m))
}

// MarshalText encodes the metric as its knowledge-base column name.
func (m Metric) MarshalText() ([]byte, error) {
	return []byte(m.Column()), nil
}

// UnmarshalText accepts a knowledge-base column name.
func (m *Metric) UnmarshalText(b []byte) error {
	got, ok := MetricByColumn(string(b))
	if !ok {
		return fmt.Errorf("unknown metric column %q", string(b))
	}
	*m = got
	return nil
}

// MetricByColumn resolves a knowledge-base column name.
func MetricByColumn(column string) (Metric, bool) {
	for m, c := range metricColumns {
		if strings.EqualFold(c, column) {
			return m, true
		}
	}
	return 0, false
}

// QoR holds the quality-of-result metrics of one synthesized design.
// Latency is in milliseconds, utilizations in percent of the device.
type QoR struct {
	LatencyMsec float64 `json:"design_latency_msec"`
	BRAM        float64 `json:"bram_utilization"`
	DSP         float64 `json:"dsp_utilization"`
	FF          float64 `json:"ff_utilization"`
	LUT         float64 `json:"lut_utilization"`
}

// UnknownQoR is the result of a synthesis that produced nothing.
func UnknownQoR() QoR {
	return QoR{LatencyMsec: Unknown, BRAM: Unknown, DSP: Unknown, FF: Unknown, LUT: Unknown}
}

// Get returns the value of one metric.
func (q QoR) Get(m Metric) float64 {
	switch m {
	case Latency:
		return q.LatencyMsec
	case BRAM:
		return q.BRAM
	case DSP:
		return q.DSP
	case FF:
		return q.FF
	case LUT:
		return q.LUT
	}
	return Unknown
}

// Set assigns one metric.
func (q *QoR) Set(m Metric, v float64) {
	switch m {
	case Latency:
		q.LatencyMsec = v
	case BRAM:
		q.BRAM = v
	case DSP:
		q.DSP = v
	case FF:
		q.FF = v
	case LUT:
		q.LUT = v
	}
}

// Synthesized reports whether the backend produced at least one metric.
func (q QoR) Synthesized() bool {
	for _, m := range Metrics {
		if q.Get(m) != Unknown {
			return true
		}
	}
	return false
}

// Feasible reports whether every utilization lies in [0,100] and the
// latency is positive.
func (q QoR) Feasible() bool {
	if q.LatencyMsec <= 0 {
		return false
	}
	for _, m := range Resources {
		if v := q.Get(m); v < 0 || v > 100 {
			return false
		}
	}
	return true
}

// PeakUtilization is the largest utilization of any resource.
func (q QoR) PeakUtilization() float64 {
	peak := Unknown
	for _, m := range Resources {
		if v := q.Get(m); v > peak {
			peak = v
		}
	}
	return peak
}

// ParetoRecord is one historical synthesis outcome of a donor application.
// Directives holds one raw directive per catalog action point, in catalog order.
type ParetoRecord struct {
	Application string
	Directives  []string
	QoR         QoR
}

// Summary describes the distribution of a numeric sample.
type Summary struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"standard_deviation"`
	Median float64 `json:"median"`
	P25    float64 `json:"percentile25"`
	P75    float64 `json:"percentile75"`
	Min    float64 `json:"minimum"`
	Max    float64 `json:"maximum"`
}

// Impact is the ON-minus-OFF median difference of one label at one action
// point, for one resource and for latency.
type Impact struct {
	Label        string  `json:"label"`
	ResourceDiff float64 `json:"resource_diff"`
	LatencyDiff  float64 `json:"latency_diff"`
}

// Assignment maps action-point names to canonical directive labels.
// Action points not present are NoDirective.
type Assignment map[string]string

// Get returns the label at an action point, NoDirective if unset.
func (a Assignment) Get(ap string) string {
	if l, ok := a[ap]; ok && l != "" {
		return l
	}
	return NoDirective
}

// Clone returns an independent copy.
func (a Assignment) Clone() Assignment {
	out := make(Assignment, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// With returns a copy with one action point replaced.
func (a Assignment) With(ap, label string) Assignment {
	out := a.Clone()
	out[ap] = label
	return out
}

// Active returns the action points carrying a directive, sorted by name.
func (a Assignment) Active() []string {
	var names []string
	for k, v := range a {
		if v != "" && v != NoDirective {
			names = append(names, k)
		}
	}
	sort.Strings(names)
	return names
}

// Profile is an application's reduced feature vector and its cluster.
type Profile struct {
	Name    string    `json:"name"`
	Vector  []float64 `json:"vector"`
	Cluster int       `json:"cluster"`
}
