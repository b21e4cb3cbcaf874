package models

import "time"

// EventStatusChanged is the wire name of a status transition event.
const EventStatusChanged = "binStatusChange"

// StatusChanged carries the full post-mutation record of a bin whose
// status transitioned.
type StatusChanged struct {
	Type      string    `json:"type"`
	Bin       BinRecord `json:"bin"`
	EmittedAt time.Time `json:"emittedAt"`
}

// NewStatusChanged wraps a record into an event.
func NewStatusChanged(rec BinRecord, now time.Time) StatusChanged {
	return StatusChanged{
		Type:      EventStatusChanged,
		Bin:       rec.Clone(),
		EmittedAt: now,
	}
}

// Snapshot is a point-in-time read of every bin.
type Snapshot struct {
	Bins    []BinRecord `json:"bins"`
	TakenAt time.Time   `json:"takenAt"`
}

// LogRequest is the inbound body of a log call.
type LogRequest struct {
	BinID     string `json:"binId"`
	WasteType string `json:"wasteType"`
}

// ObserverStats describes one attached observer channel.
type ObserverStats struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Sent       uint64    `json:"sent"`
	Dropped    uint64    `json:"dropped"`
	AttachedAt time.Time `json:"attachedAt"`
}
