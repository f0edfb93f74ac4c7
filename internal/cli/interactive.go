package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sbenjam1n/hlsopt/internal/hls"
	"github.com/sbenjam1n/hlsopt/internal/optimizer"
	"github.com/spf13/cobra"
)

var browseCmd = &cobra.Command{
	Use:     "browse [app]",
	Aliases: []string{"i"},
	Short:   "Interactive TUI for browsing clusters, proposals and directive impact",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opt, err := newOptimizer()
		if err != nil {
			return err
		}
		an, dirs, err := opt.Propose(context.Background(), args[0], paramsFromFlags(cmd))
		if err != nil {
			return err
		}

		m := newBrowseModel(args[0], an, dirs)
		p := tea.NewProgram(m, tea.WithAltScreen())
		if _, err := p.Run(); err != nil {
			return err
		}
		return nil
	},
}

// --- View modes ---

type viewMode int

const (
	viewClusters viewMode = iota
	viewProposal
	viewImpact
	viewDetail
)

// --- Tree item ---

type treeItem struct {
	name     string
	cluster  int
	vector   []float64
	target   bool
	depth    int
	expanded bool
	children []*treeItem
	note     string
}

// --- Model ---

type browseModel struct {
	app          string
	analysis     *optimizer.Analysis
	directives   map[string]string
	items        []*treeItem
	cursor       int
	viewMode     viewMode
	resource     int // index into hls.Resources for the impact view
	width        int
	height       int
	searchMode   bool
	searchBuffer string
	detail       *treeItem
}

func newBrowseModel(app string, an *optimizer.Analysis, dirs map[string]string) browseModel {
	return browseModel{
		app:        app,
		analysis:   an,
		directives: dirs,
		items:      buildTreeItems(an),
		width:      80,
		height:     24,
	}
}

// buildTreeItems lists the clusters with their donors; the target's cluster
// is expanded and the target listed in it.
func buildTreeItems(an *optimizer.Analysis) []*treeItem {
	profiles := make(map[string]hls.Profile, len(an.Donors))
	for _, d := range an.Donors {
		profiles[d.Name] = d
	}
	var items []*treeItem
	for _, c := range an.Clusters {
		item := &treeItem{
			name:    fmt.Sprintf("cluster %d", c.ID),
			cluster: c.ID,
			note:    fmt.Sprintf("%d donor(s), %d design(s), %d directive(s)", len(c.Members), len(c.Records), len(c.Proposal.Active())),
		}
		if c.ID == an.Target.Cluster {
			item.expanded = true
			item.children = append(item.children, &treeItem{
				name: an.Target.Name, cluster: c.ID, vector: an.Target.Vector, target: true, depth: 1, note: "target",
			})
		}
		for _, name := range c.Members {
			item.children = append(item.children, &treeItem{
				name: name, cluster: c.ID, vector: profiles[name].Vector, depth: 1,
			})
		}
		items = append(items, item)
	}
	return items
}

func (m browseModel) Init() tea.Cmd {
	return nil
}

func (m browseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if m.searchMode {
			return m.handleSearchKey(msg)
		}

		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit

		case "j", "down":
			if m.cursor < m.rowCount()-1 {
				m.cursor++
			}
		case "k", "up":
			if m.cursor > 0 {
				m.cursor--
			}
		case "g":
			m.cursor = 0
		case "G":
			m.cursor = max(m.rowCount()-1, 0)

		case "enter", " ", "l", "right":
			if m.viewMode != viewClusters {
				break
			}
			visible := m.visibleItems()
			if m.cursor < len(visible) {
				item := visible[m.cursor]
				if len(item.children) > 0 {
					item.expanded = !item.expanded
				} else {
					m.viewMode = viewDetail
					m.detail = item
				}
			}
		case "h", "left":
			visible := m.visibleItems()
			if m.viewMode == viewClusters && m.cursor < len(visible) && visible[m.cursor].expanded {
				visible[m.cursor].expanded = false
			}

		case "r":
			m.resource = (m.resource + 1) % len(hls.Resources)

		case "1":
			m.viewMode = viewClusters
			m.cursor = 0
		case "2":
			m.viewMode = viewProposal
			m.cursor = 0
		case "3":
			m.viewMode = viewImpact
			m.cursor = 0

		case "/":
			m.searchMode = true
			m.searchBuffer = ""

		case "esc":
			if m.viewMode == viewDetail {
				m.viewMode = viewClusters
			}
		}
	}
	return m, nil
}

func (m *browseModel) handleSearchKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.searchMode = false
		if m.searchBuffer != "" {
			m.viewMode = viewClusters
			for _, item := range m.items {
				for _, child := range item.children {
					if strings.Contains(strings.ToLower(child.name), strings.ToLower(m.searchBuffer)) {
						item.expanded = true
					}
				}
			}
			for i, item := range m.visibleItems() {
				if strings.Contains(strings.ToLower(item.name), strings.ToLower(m.searchBuffer)) {
					m.cursor = i
					break
				}
			}
		}
	case "esc":
		m.searchMode = false
		m.searchBuffer = ""
	case "backspace":
		if len(m.searchBuffer) > 0 {
			m.searchBuffer = m.searchBuffer[:len(m.searchBuffer)-1]
		}
	default:
		if len(msg.String()) == 1 {
			m.searchBuffer += msg.String()
		}
	}
	return *m, nil
}

func (m browseModel) visibleItems() []*treeItem {
	var result []*treeItem
	var collect func(items []*treeItem)
	collect = func(items []*treeItem) {
		for _, item := range items {
			result = append(result, item)
			if item.expanded && len(item.children) > 0 {
				collect(item.children)
			}
		}
	}
	collect(m.items)
	return result
}

func (m browseModel) rowCount() int {
	switch m.viewMode {
	case viewClusters:
		return len(m.visibleItems())
	case viewProposal:
		return len(m.analysis.Predicted().Proposal.Active())
	case viewImpact:
		return len(m.impactRows())
	}
	return 0
}

func (m browseModel) View() string {
	var b strings.Builder

	header := titleStyle.Render("hlsopt: " + m.app)
	names := []string{"1:Clusters", "2:Proposal", "3:Impact"}
	var tabs []string
	for i, n := range names {
		if viewMode(i) == m.viewMode {
			tabs = append(tabs, headerStyle.Render("["+n+"]"))
		} else {
			tabs = append(tabs, dimStyle.Render(n))
		}
	}
	if m.viewMode == viewDetail {
		tabs = append(tabs, headerStyle.Render("[Detail]"))
	}

	b.WriteString(header + "  " + strings.Join(tabs, " ") + "\n")
	b.WriteString(strings.Repeat("─", min(m.width, 80)) + "\n")

	contentHeight := m.height - 5

	switch m.viewMode {
	case viewClusters:
		m.renderClusterTree(&b, contentHeight)
	case viewProposal:
		m.renderProposal(&b, contentHeight)
	case viewImpact:
		m.renderImpact(&b, contentHeight)
	case viewDetail:
		m.renderDetail(&b, contentHeight)
	}

	if m.searchMode {
		b.WriteString("\n/" + m.searchBuffer + "█")
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("j/k:navigate  enter:expand/detail  1/2/3:tabs  r:resource  /:search  q:quit"))

	return b.String()
}

// scrollOffset keeps the cursor inside a window of maxLines rows.
func (m browseModel) scrollOffset(maxLines int) int {
	if m.cursor >= maxLines {
		return m.cursor - maxLines + 1
	}
	return 0
}

func (m browseModel) renderRow(b *strings.Builder, i int, line string) {
	if i == m.cursor {
		b.WriteString(selectedStyle.Render(line) + "\n")
	} else {
		b.WriteString(line + "\n")
	}
}

func (m browseModel) renderClusterTree(b *strings.Builder, maxLines int) {
	visible := m.visibleItems()
	lines := 0
	for i := m.scrollOffset(maxLines); i < len(visible) && lines < maxLines; i++ {
		item := visible[i]
		indent := strings.Repeat("  ", item.depth)
		prefix := "  "
		if len(item.children) > 0 {
			if item.expanded {
				prefix = "▼ "
			} else {
				prefix = "▶ "
			}
		}

		line := indent + prefix + item.name
		if item.target {
			line = indent + prefix + pathStyle.Render(item.name)
		}
		if item.note != "" {
			line += "  " + dimStyle.Render(item.note)
		}
		m.renderRow(b, i, line)
		lines++
	}
}

func (m browseModel) renderProposal(b *strings.Builder, maxLines int) {
	c := m.analysis.Predicted()
	active := c.Proposal.Active()
	if len(active) == 0 {
		b.WriteString(warnStyle.Render("  No directive reached the probability threshold in cluster "+fmt.Sprint(c.ID)) + "\n")
		return
	}
	lines := 0
	for i := m.scrollOffset(maxLines); i < len(active) && lines < maxLines; i++ {
		ap := active[i]
		line := fmt.Sprintf("  %-16s %-22s", ap, c.Proposal.Get(ap))
		m.renderRow(b, i, line)
		lines++
	}

	if lines < maxLines && len(m.directives) > 0 {
		b.WriteString("\n" + headerStyle.Render("Directives") + "\n")
		lines++
		keys := make([]string, 0, len(m.directives))
		for k := range m.directives {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if lines >= maxLines {
				break
			}
			b.WriteString(fmt.Sprintf("  %-5s %s\n", pathStyle.Render(k), m.directives[k]))
			lines++
		}
	}
}

type impactRow struct {
	point  string
	impact hls.Impact
}

// impactRows lists every label with statistics in the target's cluster for
// the selected resource, grouped by action point.
func (m browseModel) impactRows() []impactRow {
	c := m.analysis.Predicted()
	if c.Impact == nil {
		return nil
	}
	resource := hls.Resources[m.resource]
	var rows []impactRow
	for ap := range c.Proposal {
		for _, imp := range c.Impact.Candidates(ap, resource) {
			rows = append(rows, impactRow{point: ap, impact: imp})
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].point != rows[j].point {
			return rows[i].point < rows[j].point
		}
		return rows[i].impact.ResourceDiff > rows[j].impact.ResourceDiff
	})
	return rows
}

func (m browseModel) renderImpact(b *strings.Builder, maxLines int) {
	resource := hls.Resources[m.resource]
	b.WriteString(dimStyle.Render(fmt.Sprintf("  median(ON) - median(OFF), cluster %d, resource %s", m.analysis.Target.Cluster, strings.ToUpper(resource.String()))) + "\n")
	maxLines--

	rows := m.impactRows()
	if len(rows) == 0 {
		b.WriteString(dimStyle.Render("  No impact statistics (empty cluster or no directives)") + "\n")
		return
	}
	lines := 0
	for i := m.scrollOffset(maxLines); i < len(rows) && lines < maxLines; i++ {
		r := rows[i]
		res := fmt.Sprintf("%+9.3f", r.impact.ResourceDiff)
		if r.impact.ResourceDiff > 0 {
			res = warnStyle.Render(res)
		}
		line := fmt.Sprintf("  %-16s %-22s %s  latency %+9.4f", r.point, r.impact.Label, res, r.impact.LatencyDiff)
		m.renderRow(b, i, line)
		lines++
	}
}

func (m browseModel) renderDetail(b *strings.Builder, maxLines int) {
	item := m.detail
	if item == nil {
		return
	}
	b.WriteString(pathStyle.Render("Application: "+item.name) + "\n")
	b.WriteString(strings.Repeat("─", 40) + "\n")
	lines := 2

	b.WriteString(fmt.Sprintf("  Cluster: %d\n", item.cluster))
	lines++
	for i, v := range item.vector {
		if lines >= maxLines {
			break
		}
		b.WriteString(fmt.Sprintf("  PC_%d: %+.4f\n", i+1, v))
		lines++
	}
	if item.target && lines < maxLines {
		b.WriteString(fmt.Sprintf("  Proposed directives: %d\n", len(m.directives)))
		lines++
	}

	if lines < maxLines {
		b.WriteString("\n" + helpStyle.Render("Press ESC to return") + "\n")
	}
}

func init() {
	addAnalysisFlags(browseCmd)
}
