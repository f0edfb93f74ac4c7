package cli

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/sbenjam1n/hlsopt/internal/hls"
	"github.com/sbenjam1n/hlsopt/internal/optimizer"
	"github.com/sbenjam1n/hlsopt/internal/repair"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Background(lipgloss.Color("236")).Foreground(lipgloss.Color("15"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	warnStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	pathStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	boxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

func stateStyle(s repair.State) lipgloss.Style {
	switch s {
	case repair.Feasible:
		return headerStyle
	case repair.Unsynthesizable:
		return warnStyle.Bold(true)
	}
	return warnStyle
}

func formatQoR(q hls.QoR) string {
	if !q.Synthesized() {
		return "not synthesized"
	}
	return fmt.Sprintf("latency %.4g ms  BRAM %.4g%%  DSP %.4g%%  FF %.4g%%  LUT %.4g%%",
		q.LatencyMsec, q.BRAM, q.DSP, q.FF, q.LUT)
}

// renderResult draws the run summary in a bordered box.
func renderResult(res *optimizer.Result) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("hlsopt: "+res.App) + "  " + stateStyle(res.State).Render(strings.ToUpper(res.State.String())) + "\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf("run %s  cluster %d  %d attempt(s)  %s", res.RunID, res.Cluster, res.Attempts, res.Elapsed.Round(time.Millisecond))) + "\n\n")

	b.WriteString(headerStyle.Render("Directives") + "\n")
	if len(res.Directives) == 0 {
		b.WriteString(dimStyle.Render("  (none)") + "\n")
	}
	labels := make([]string, 0, len(res.Directives))
	for l := range res.Directives {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	for _, l := range labels {
		fmt.Fprintf(&b, "  %s  %s\n", pathStyle.Render(fmt.Sprintf("%-5s", l)), res.Directives[l])
	}

	if len(res.Steps) > 0 {
		b.WriteString("\n" + headerStyle.Render("Repair") + "\n")
		for _, s := range res.Steps {
			fmt.Fprintf(&b, "  %2d. %s %.4g%%  %s: %s → %s\n", s.Iteration, strings.ToUpper(s.Resource.String()), s.Utilization, s.ActionPoint, s.From, s.To)
		}
	}

	b.WriteString("\n" + headerStyle.Render("Final") + "  " + res.Final.Name + "\n  " + formatQoR(res.Final.QoR) + "\n")
	if res.Best.Name != res.Final.Name {
		b.WriteString(headerStyle.Render("Best") + "  " + res.Best.Name + "\n  " + formatQoR(res.Best.QoR) + "\n")
	}
	if res.Baseline != nil {
		b.WriteString(warnStyle.Render("Baseline (no directives)") + "\n  " + formatQoR(res.Baseline.QoR) + "\n")
	}
	return boxStyle.Render(strings.TrimRight(b.String(), "\n"))
}
