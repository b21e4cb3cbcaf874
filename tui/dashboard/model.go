// Package dashboard is the operator TUI: a live bin table plus one alert
// card per full bin, each of which can be acknowledged and emptied.
package dashboard

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/grovetools/wastenet/pkg/models"
	"github.com/grovetools/wastenet/pkg/reconcile"
	"github.com/grovetools/wastenet/tui/theme"
)

// Source is the reconciled view the dashboard renders.
type Source interface {
	Snapshot() []models.BinRecord
	Alerts() []string
	Status() reconcile.State
	Resync()
}

// Emptier empties a bin on the daemon.
type Emptier interface {
	Empty(ctx context.Context, binID string) (models.BinRecord, error)
}

// ChangeMsg carries an accepted merge from the sync engine.
type ChangeMsg reconcile.Change

// StateMsg carries a connection state change from the sync engine.
type StateMsg reconcile.State

type emptiedMsg struct {
	binID string
	err   error
}

// Model is the bubbletea model of the dashboard.
type Model struct {
	source  Source
	emptier Emptier
	timeout time.Duration

	keys  keyMap
	help  help.Model
	theme *theme.Theme

	cursor int
	width  int
	height int
	flash  string
	failed bool
}

// New creates a dashboard over source. Empty requests time out after
// timeout.
func New(source Source, emptier Emptier, timeout time.Duration) Model {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return Model{
		source:  source,
		emptier: emptier,
		timeout: timeout,
		keys:    newKeyMap(),
		help:    help.New(),
		theme:   theme.DefaultTheme,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width

	case ChangeMsg:
		switch {
		case msg.AlertRaised:
			m.setFlash(fmt.Sprintf("%s is full", msg.Bin.ID), false)
		case msg.AlertRetracted:
			m.setFlash(fmt.Sprintf("%s emptied", msg.Bin.ID), false)
		}
		m.clampCursor()

	case StateMsg:
		m.clampCursor()

	case emptiedMsg:
		if msg.err != nil {
			m.setFlash(fmt.Sprintf("Failed to empty %s: %v", msg.binID, msg.err), true)
		} else {
			m.setFlash(fmt.Sprintf("Emptying %s", msg.binID), false)
		}

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		case key.Matches(msg, m.keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, m.keys.Down):
			if m.cursor < len(m.source.Alerts())-1 {
				m.cursor++
			}
		case key.Matches(msg, m.keys.Resync):
			m.source.Resync()
			m.setFlash("Resync requested", false)
		case key.Matches(msg, m.keys.Empty):
			if id, ok := m.selected(); ok {
				return m, m.emptyCmd(id)
			}
		}
	}
	return m, nil
}

// selected returns the alert under the cursor.
func (m Model) selected() (string, bool) {
	alerts := m.source.Alerts()
	if len(alerts) == 0 {
		return "", false
	}
	idx := m.cursor
	if idx >= len(alerts) {
		idx = len(alerts) - 1
	}
	return alerts[idx], true
}

func (m *Model) clampCursor() {
	n := len(m.source.Alerts())
	if m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m *Model) setFlash(text string, failed bool) {
	m.flash = text
	m.failed = failed
}

// emptyCmd empties binID. The card disappears when the resulting status
// change is reconciled, not when the request returns.
func (m Model) emptyCmd(binID string) tea.Cmd {
	emptier, timeout := m.emptier, m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		_, err := emptier.Empty(ctx, binID)
		return emptiedMsg{binID: binID, err: err}
	}
}
