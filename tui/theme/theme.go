// Package theme holds the lipgloss styles shared by wastenet's terminal
// output.
package theme

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/grovetools/wastenet/config"
)

const defaultThemeName = "kanagawa"

// Colors encapsulates the palette used by a theme. lipgloss.TerminalColor
// allows a mix of adaptive and static colors.
type Colors struct {
	Green     lipgloss.TerminalColor
	Yellow    lipgloss.TerminalColor
	Red       lipgloss.TerminalColor
	Orange    lipgloss.TerminalColor
	Cyan      lipgloss.TerminalColor
	Blue      lipgloss.TerminalColor
	Violet    lipgloss.TerminalColor
	LightText lipgloss.TerminalColor
	MutedText lipgloss.TerminalColor
	Border    lipgloss.TerminalColor
	Selected  lipgloss.TerminalColor
}

// Theme holds the pre-configured styles.
type Theme struct {
	Colors Colors

	Header lipgloss.Style
	Title  lipgloss.Style

	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Info    lipgloss.Style

	Bold     lipgloss.Style
	Muted    lipgloss.Style
	Accent   lipgloss.Style
	Selected lipgloss.Style

	TableHeader lipgloss.Style
	Box         lipgloss.Style
	AlertCard   lipgloss.Style

	// Bin status badges
	Collecting lipgloss.Style
	Full       lipgloss.Style
	Servicing  lipgloss.Style
}

var themeRegistry = map[string]func() Colors{
	"kanagawa": newKanagawaColors,
	"terminal": newTerminalColors,
}

// DefaultTheme is the theme selected by WASTENET_THEME or the tui.theme
// config key.
var DefaultTheme = NewThemeWithName(getThemeName())

// NewThemeWithName constructs a theme from a specific palette name.
func NewThemeWithName(name string) *Theme {
	builder, ok := themeRegistry[normalizeThemeName(name)]
	if !ok {
		builder = themeRegistry[defaultThemeName]
	}
	return newThemeFromColors(builder())
}

// StatusStyle returns the badge style for a bin status string.
func (t *Theme) StatusStyle(status string) lipgloss.Style {
	switch status {
	case "full":
		return t.Full
	case "servicing":
		return t.Servicing
	default:
		return t.Collecting
	}
}

// RenderHeader renders a header with the default styling.
func RenderHeader(title string) string {
	return DefaultTheme.Header.Render(title)
}

// RenderStatus renders text with the appropriate status style.
func RenderStatus(status, text string) string {
	switch status {
	case "success":
		return DefaultTheme.Success.Render(text)
	case "error":
		return DefaultTheme.Error.Render(text)
	case "warning":
		return DefaultTheme.Warning.Render(text)
	case "info":
		return DefaultTheme.Info.Render(text)
	default:
		return text
	}
}

func newThemeFromColors(colors Colors) *Theme {
	badge := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	return &Theme{
		Colors: colors,

		Header: lipgloss.NewStyle().Bold(true).MarginBottom(1),
		Title:  lipgloss.NewStyle().Bold(true).Underline(true),

		Success: lipgloss.NewStyle().Foreground(colors.Green).Bold(true),
		Error:   lipgloss.NewStyle().Foreground(colors.Red).Bold(true),
		Warning: lipgloss.NewStyle().Foreground(colors.Yellow).Bold(true),
		Info:    lipgloss.NewStyle().Foreground(colors.Blue),

		Bold:     lipgloss.NewStyle().Bold(true),
		Muted:    lipgloss.NewStyle().Foreground(colors.MutedText),
		Accent:   lipgloss.NewStyle().Foreground(colors.Violet),
		Selected: lipgloss.NewStyle().Background(colors.Selected).Bold(true),

		TableHeader: lipgloss.NewStyle().Bold(true).Foreground(colors.Cyan),
		Box: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colors.Border).
			Padding(0, 1),
		AlertCard: lipgloss.NewStyle().
			Border(lipgloss.ThickBorder()).
			BorderForeground(colors.Red).
			Padding(0, 1),

		Collecting: badge.Foreground(colors.Green),
		Full:       badge.Foreground(colors.Red),
		Servicing:  badge.Foreground(colors.Orange),
	}
}

func normalizeThemeName(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	normalized = strings.ReplaceAll(normalized, " ", "-")
	normalized = strings.ReplaceAll(normalized, "_", "-")
	return normalized
}

func getThemeName() string {
	if theme := normalizeThemeName(os.Getenv("WASTENET_THEME")); theme != "" {
		return theme
	}

	cfg, err := config.LoadDefault()
	if err != nil || cfg == nil {
		return defaultThemeName
	}

	var tuiCfg struct {
		Theme string `yaml:"theme"`
	}
	if err := cfg.UnmarshalExtension("tui", &tuiCfg); err == nil {
		if theme := normalizeThemeName(tuiCfg.Theme); theme != "" {
			return theme
		}
	}

	return defaultThemeName
}

func newKanagawaColors() Colors {
	return Colors{
		Green:     lipgloss.AdaptiveColor{Light: "#6F894E", Dark: "#98BB6C"},
		Yellow:    lipgloss.AdaptiveColor{Light: "#77713F", Dark: "#FF9E3B"},
		Red:       lipgloss.AdaptiveColor{Light: "#C84053", Dark: "#FF5D62"},
		Orange:    lipgloss.AdaptiveColor{Light: "#CC6D00", Dark: "#FFA066"},
		Cyan:      lipgloss.AdaptiveColor{Light: "#4D699B", Dark: "#7E9CD8"},
		Blue:      lipgloss.AdaptiveColor{Light: "#4E8CA2", Dark: "#7FB4CA"},
		Violet:    lipgloss.AdaptiveColor{Light: "#624C83", Dark: "#957FB8"},
		LightText: lipgloss.AdaptiveColor{Light: "#545464", Dark: "#DCD7BA"},
		MutedText: lipgloss.AdaptiveColor{Light: "#8A8980", Dark: "#727169"},
		Border:    lipgloss.AdaptiveColor{Light: "#C7D7E0", Dark: "#363646"},
		Selected:  lipgloss.AdaptiveColor{Light: "#C9CBD1", Dark: "#223249"},
	}
}

func newTerminalColors() Colors {
	return Colors{
		Green:     lipgloss.Color("2"),
		Yellow:    lipgloss.Color("3"),
		Red:       lipgloss.Color("1"),
		Orange:    lipgloss.Color("11"),
		Cyan:      lipgloss.Color("6"),
		Blue:      lipgloss.Color("4"),
		Violet:    lipgloss.Color("5"),
		LightText: lipgloss.Color("7"),
		MutedText: lipgloss.Color("8"),
		Border:    lipgloss.Color("8"),
		Selected:  lipgloss.Color("0"),
	}
}
