// Package tui holds terminal UI setup shared by wastenet's interactive
// commands.
package tui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// InitializeTUI forces a true color profile when CLICOLOR_FORCE=1 or
// COLORTERM=truecolor is set, so dashboards render in color when stdout is
// captured by a recorder or CI. It has no effect otherwise.
func InitializeTUI() {
	if ForceColor() {
		lipgloss.SetColorProfile(termenv.TrueColor)
	}
}

// ForceColor reports whether the environment requests color output.
func ForceColor() bool {
	return os.Getenv("CLICOLOR_FORCE") == "1" || os.Getenv("COLORTERM") == "truecolor"
}
