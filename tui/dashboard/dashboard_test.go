package dashboard

import (
	"context"
	"fmt"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/wastenet/pkg/models"
	"github.com/grovetools/wastenet/pkg/reconcile"
	"github.com/grovetools/wastenet/testutil"
)

type fakeSource struct {
	bins    []models.BinRecord
	state   reconcile.State
	resyncs int
}

func (f *fakeSource) Snapshot() []models.BinRecord { return f.bins }
func (f *fakeSource) Status() reconcile.State      { return f.state }
func (f *fakeSource) Resync()                      { f.resyncs++ }

func (f *fakeSource) Alerts() []string {
	var ids []string
	for _, b := range f.bins {
		if b.Status == models.StatusFull {
			ids = append(ids, b.ID)
		}
	}
	return ids
}

type fakeEmptier struct {
	mu      sync.Mutex
	emptied []string
	err     error
}

func (f *fakeEmptier) Empty(ctx context.Context, binID string) (models.BinRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emptied = append(f.emptied, binID)
	return models.BinRecord{ID: binID}, f.err
}

func keyMsg(s string) tea.KeyMsg {
	if s == "enter" {
		return tea.KeyMsg{Type: tea.KeyEnter}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func newSource() *fakeSource {
	return &fakeSource{
		state: reconcile.StateLive,
		bins: []models.BinRecord{
			testutil.NewBin("BIN-001", 1, 100, map[string]int{"plastic": 10, "paper": 20}),
			testutil.NewBin("BIN-002", 1, 2, map[string]int{"organic": 2}),
			testutil.NewBin("BIN-003", 1, 3, map[string]int{"paper": 3}),
		},
	}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	out, ok := next.(Model)
	require.True(t, ok)
	return out, cmd
}

func TestViewShowsTableAndAlertCards(t *testing.T) {
	m := New(newSource(), &fakeEmptier{}, 0)
	view := m.View()

	for _, want := range []string{"live", "BIN-001", "30/100", "Alerts (2)", "Items: 2/2", "Counts: organic: 2", "Acknowledge & Empty"} {
		assert.Contains(t, view, want)
	}
}

func TestViewWithoutAlerts(t *testing.T) {
	src := &fakeSource{state: reconcile.StateReconnecting, bins: []models.BinRecord{
		testutil.NewBin("BIN-001", 1, 100, nil),
	}}
	view := New(src, &fakeEmptier{}, 0).View()
	assert.Contains(t, view, "No active alerts.")
	assert.Contains(t, view, "reconnecting")
}

func TestAcknowledgeAndEmpty(t *testing.T) {
	src := newSource()
	emptier := &fakeEmptier{}
	m := New(src, emptier, 0)

	m, _ = update(t, m, keyMsg("j"))
	m, cmd := update(t, m, keyMsg("e"))
	require.NotNil(t, cmd)

	msg := cmd()
	assert.Equal(t, []string{"BIN-003"}, emptier.emptied)

	m, _ = update(t, m, msg)
	assert.Contains(t, m.View(), "Emptying BIN-003")

	// Down past the last alert stays on it.
	m, _ = update(t, m, keyMsg("j"))
	_, cmd = update(t, m, keyMsg("enter"))
	require.NotNil(t, cmd)
	cmd()
	assert.Equal(t, []string{"BIN-003", "BIN-003"}, emptier.emptied)
}

func TestEmptyFailureIsShown(t *testing.T) {
	m := New(newSource(), &fakeEmptier{err: fmt.Errorf("connection refused")}, 0)
	m, cmd := update(t, m, keyMsg("e"))
	require.NotNil(t, cmd)
	m, _ = update(t, m, cmd())
	assert.Contains(t, m.View(), "Failed to empty BIN-002")
}

func TestEmptyWithoutAlertsDoesNothing(t *testing.T) {
	src := &fakeSource{state: reconcile.StateLive}
	_, cmd := update(t, New(src, &fakeEmptier{}, 0), keyMsg("e"))
	assert.Nil(t, cmd)
}

func TestChangeMessages(t *testing.T) {
	src := newSource()
	m := New(src, &fakeEmptier{}, 0)
	m, _ = update(t, m, keyMsg("j"))

	// BIN-003 is emptied elsewhere; the cursor is clamped to the remaining alert.
	src.bins[2] = testutil.NewBin("BIN-003", 2, 3, nil)
	m, _ = update(t, m, ChangeMsg(reconcile.Change{Bin: src.bins[2], AlertRetracted: true}))
	assert.Equal(t, 0, m.cursor)
	assert.Contains(t, m.View(), "BIN-003 emptied")

	m, _ = update(t, m, ChangeMsg(reconcile.Change{Bin: src.bins[1], AlertRaised: true}))
	assert.Contains(t, m.View(), "BIN-002 is full")
}

func TestResyncAndQuit(t *testing.T) {
	src := newSource()
	m := New(src, &fakeEmptier{}, 0)

	m, _ = update(t, m, keyMsg("r"))
	assert.Equal(t, 1, src.resyncs)

	_, cmd := update(t, m, keyMsg("q"))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}
