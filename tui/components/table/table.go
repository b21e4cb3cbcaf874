// Package table renders bin listings with wastenet styling.
package table

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	ltable "github.com/charmbracelet/lipgloss/table"

	"github.com/grovetools/wastenet/pkg/models"
	"github.com/grovetools/wastenet/tui/theme"
)

// BinHeaders are the column titles used by Bins.
var BinHeaders = []string{"BIN", "STATUS", "ITEMS", "COUNTS", "LOCATION", "VERSION"}

// NewStyledTable creates a lipgloss table with the theme's header and
// border styling.
func NewStyledTable(t *theme.Theme) *ltable.Table {
	if t == nil {
		t = theme.DefaultTheme
	}
	return ltable.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(t.Colors.Border)).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == ltable.HeaderRow {
				return t.TableHeader.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
}

// Bins renders records as a table, one row per bin.
func Bins(t *theme.Theme, bins []models.BinRecord) string {
	if t == nil {
		t = theme.DefaultTheme
	}
	tbl := NewStyledTable(t).Headers(BinHeaders...)
	for _, b := range bins {
		tbl.Row(
			b.ID,
			t.StatusStyle(string(b.Status)).Render(string(b.Status)),
			fmt.Sprintf("%d/%d", b.TotalItems, b.Capacity),
			FormatCounts(b),
			fmt.Sprintf("%.4f, %.4f", b.Position.Latitude, b.Position.Longitude),
			fmt.Sprintf("%d", b.Version),
		)
	}
	return tbl.Render()
}

// FormatCounts renders category counts sorted by category, e.g.
// "paper: 20, plastic: 10". Empty bins render as "-".
func FormatCounts(b models.BinRecord) string {
	var parts []string
	for _, category := range b.Categories() {
		if n := b.CategoryCounts[category]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s: %d", category, n))
		}
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ", ")
}
