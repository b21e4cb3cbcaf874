package dashboard

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/grovetools/wastenet/pkg/models"
	"github.com/grovetools/wastenet/pkg/reconcile"
	"github.com/grovetools/wastenet/tui/components/table"
)

// View implements tea.Model.
func (m Model) View() string {
	bins := m.source.Snapshot()
	byID := make(map[string]models.BinRecord, len(bins))
	for _, b := range bins {
		byID[b.ID] = b
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n\n")
	b.WriteString(table.Bins(m.theme, bins))
	b.WriteString("\n\n")
	b.WriteString(m.renderAlerts(byID))
	b.WriteString("\n")

	if m.flash != "" {
		style := m.theme.Info
		if m.failed {
			style = m.theme.Error
		}
		b.WriteString("\n" + style.Render(m.flash) + "\n")
	}
	b.WriteString("\n" + m.help.View(m.keys))
	return b.String()
}

func (m Model) renderHeader() string {
	title := m.theme.Title.Render("wastenet")
	return lipgloss.JoinHorizontal(lipgloss.Top, title, "  ", m.renderState(m.source.Status()))
}

func (m Model) renderState(s reconcile.State) string {
	switch s {
	case reconcile.StateLive:
		return m.theme.Success.Render("● live")
	case reconcile.StateReconnecting:
		return m.theme.Warning.Render("● reconnecting")
	default:
		return m.theme.Muted.Render("● stale")
	}
}

func (m Model) renderAlerts(byID map[string]models.BinRecord) string {
	alerts := m.source.Alerts()
	header := m.theme.Bold.Render(fmt.Sprintf("Alerts (%d)", len(alerts)))
	if len(alerts) == 0 {
		return header + "\n" + m.theme.Muted.Render("No active alerts.")
	}

	cards := make([]string, 0, len(alerts))
	for i, id := range alerts {
		cards = append(cards, m.renderCard(byID[id], i == m.cursor))
	}
	return header + "\n" + lipgloss.JoinVertical(lipgloss.Left, cards...)
}

// renderCard shows the bin id, fill level and category breakdown.
func (m Model) renderCard(b models.BinRecord, selected bool) string {
	style := m.theme.AlertCard
	if selected {
		style = style.BorderForeground(m.theme.Colors.Selected)
	}
	lines := []string{
		m.theme.Error.Render(b.ID),
		fmt.Sprintf("Items: %d/%d", b.TotalItems, b.Capacity),
		"Counts: " + table.FormatCounts(b),
	}
	if selected {
		lines = append(lines, m.theme.Accent.Render("[e] Acknowledge & Empty"))
	}
	return style.Render(strings.Join(lines, "\n"))
}
