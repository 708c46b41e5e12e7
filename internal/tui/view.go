package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/NimbleMarkets/ntcharts/barchart"
	"github.com/charmbracelet/lipgloss"

	"github.com/tinytelemetry/spool/internal/model"
)

const (
	minWidth    = 60
	chartHeight = 10
	maxBars     = 24
)

func (m *Dashboard) View() string {
	width := m.width
	if width < minWidth {
		width = minWidth
	}
	inner := width - 4

	parts := []string{
		m.renderHeader(inner),
		m.renderTabs(),
		sectionStyle.Width(inner).Render(m.renderChart(inner - 2)),
		sectionStyle.Width(inner).Render(m.renderTable(inner - 2)),
		m.renderHelp(),
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m *Dashboard) renderHeader(width int) string {
	left := headerStyle.Render("spool-top") + helpStyle.Render(" · "+m.source)

	var state string
	switch {
	case m.lastErr != nil:
		state = errorStyle.Render("error: " + m.lastErr.Error())
	case m.stats.Faulted:
		state = errorStyle.Render("engine faulted")
	case m.stats.Stopped:
		state = helpStyle.Render("engine stopped")
	case m.updatedAt.IsZero():
		state = helpStyle.Render("connecting…")
	default:
		state = okStyle.Render("●") + helpStyle.Render(fmt.Sprintf(
			" %s · mode %s · %d flushes · %d buffered",
			m.stats.Strategy, m.stats.Mode, m.stats.Flushes, bufferedTotal(m.stats.Buffered)))
	}
	if m.paused {
		state = helpStyle.Render("[paused] ") + state
	}

	gap := width - lipgloss.Width(left) - lipgloss.Width(state)
	if gap < 1 {
		return left + "\n" + state
	}
	return left + strings.Repeat(" ", gap) + state
}

func (m *Dashboard) renderTabs() string {
	tabs := make([]string, 0, len(kindTabs))
	for i, k := range kindTabs {
		label := k
		if label == "" {
			label = "all"
		}
		if i == m.tab {
			tabs = append(tabs, activeTabStyle.Render(label))
		} else {
			tabs = append(tabs, tabStyle.Render(label))
		}
	}
	return " " + strings.Join(tabs, "  ")
}

// renderChart draws one bar per metric, largest values first.
func (m *Dashboard) renderChart(width int) string {
	title := chartTitleStyle.Render("Totals")
	if len(m.totals) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left, title, helpStyle.Render("No data available"))
	}

	ranked := append([]model.MetricTotal(nil), m.totals...)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Value > ranked[j].Value })
	if len(ranked) > maxBars {
		ranked = ranked[:maxBars]
	}

	barWidth := max((width-len(ranked))/len(ranked), 1)
	bc := barchart.New(width, chartHeight,
		barchart.WithBarGap(1),
		barchart.WithBarWidth(barWidth),
		barchart.WithNoAxis(),
	)
	for _, t := range ranked {
		bc.Push(barchart.BarData{
			Label: "",
			Values: []barchart.BarValue{
				{Name: t.Metric, Value: float64(max(t.Value, 0)), Style: kindStyle(t.Kind)},
			},
		})
	}
	bc.Draw()

	return lipgloss.JoinVertical(lipgloss.Left, title, bc.View())
}

func (m *Dashboard) renderTable(width int) string {
	header := fmt.Sprintf("%-9s %-28s %10s %14s  %s", "KIND", "METRIC", "EVENTS", "VALUE", "LAST SEEN")
	lines := []string{chartTitleStyle.Render(truncate(header, width))}

	rows := m.visibleRows()
	start := 0
	if m.cursor >= rows {
		start = m.cursor - rows + 1
	}
	for i := start; i < len(m.totals) && i < start+rows; i++ {
		t := m.totals[i]
		row := fmt.Sprintf("%-9s %-28s %10d %14d  %s",
			t.Kind, truncate(t.Metric, 28), t.Events, t.Value, t.LastSeen.Local().Format("15:04:05"))
		row = truncate(row, width)
		if i == m.cursor {
			row = selectedRowStyle.Render(row)
		}
		lines = append(lines, row)
	}
	if len(m.totals) == 0 {
		lines = append(lines, helpStyle.Render("No metrics flushed yet"))
	}
	return strings.Join(lines, "\n")
}

func (m *Dashboard) visibleRows() int {
	// header, tabs, chart box, table border/header, footer
	rows := m.height - chartHeight - 10
	if rows < 5 {
		rows = 5
	}
	return rows
}

func (m *Dashboard) renderHelp() string {
	var parts []string
	for _, b := range m.keys.ShortHelp() {
		h := b.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}
	return helpStyle.Render(" " + strings.Join(parts, " · "))
}

func bufferedTotal(b map[string]int) int {
	n := 0
	for _, v := range b {
		n += v
	}
	return n
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
