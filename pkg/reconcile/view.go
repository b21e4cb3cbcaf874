// Package reconcile keeps a client-side copy of every bin consistent with
// the daemon. A snapshot and the live event stream are merged into one
// View by version comparison alone, so duplicated, reordered or missed
// events converge to the daemon's state after the next snapshot.
package reconcile

import (
	"sort"

	"github.com/grovetools/wastenet/pkg/models"
)

// Marker is the map marker class for a bin, a pure function of its status.
type Marker string

// MarkerFor returns the marker class for status.
func MarkerFor(status models.Status) Marker {
	return Marker("marker-" + string(status))
}

// Change describes one accepted merge.
type Change struct {
	Bin models.BinRecord
	// Previous is nil when the bin was not known before.
	Previous *models.BinRecord
	// AlertRaised is set when the bin became full.
	AlertRaised bool
	// AlertRetracted is set when the bin stopped being full.
	AlertRetracted bool
}

// MarkerChanged reports whether the bin's marker differs from before.
func (c Change) MarkerChanged() bool {
	return c.Previous == nil || MarkerFor(c.Previous.Status) != MarkerFor(c.Bin.Status)
}

// View is the reconciled map of bins. It is not safe for concurrent use;
// Engine serialises access to it.
type View struct {
	bins map[string]models.BinRecord
}

// NewView returns an empty view.
func NewView() *View {
	return &View{bins: make(map[string]models.BinRecord)}
}

// Merge accepts rec if its bin is unknown or rec is strictly newer than the
// local copy. A rejected record leaves the view untouched.
func (v *View) Merge(rec models.BinRecord) (Change, bool) {
	local, ok := v.bins[rec.ID]
	if ok && rec.Version <= local.Version {
		return Change{}, false
	}

	rec = rec.Clone()
	v.bins[rec.ID] = rec

	ch := Change{Bin: rec.Clone()}
	wasFull := false
	if ok {
		prev := local
		ch.Previous = &prev
		wasFull = local.Status == models.StatusFull
	}
	isFull := rec.Status == models.StatusFull
	ch.AlertRaised = !wasFull && isFull
	ch.AlertRetracted = wasFull && !isFull
	return ch, true
}

// Get returns a copy of one bin.
func (v *View) Get(id string) (models.BinRecord, bool) {
	rec, ok := v.bins[id]
	if !ok {
		return models.BinRecord{}, false
	}
	return rec.Clone(), true
}

// Bins returns copies of every bin sorted by id.
func (v *View) Bins() []models.BinRecord {
	out := make([]models.BinRecord, 0, len(v.bins))
	for _, rec := range v.bins {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Alerts returns the ids of full bins, sorted.
func (v *View) Alerts() []string {
	var ids []string
	for id, rec := range v.bins {
		if rec.Status == models.StatusFull {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Marker returns the marker class of a known bin.
func (v *View) Marker(id string) (Marker, bool) {
	rec, ok := v.bins[id]
	if !ok {
		return "", false
	}
	return MarkerFor(rec.Status), true
}

// Len returns the number of known bins.
func (v *View) Len() int {
	return len(v.bins)
}
