package models

import (
	"encoding/json"
	"fmt"
)

// Status is the controlled fill state of a bin. It is derived by the state
// store and never set freely by callers.
type Status string

const (
	StatusCollecting Status = "collecting"
	StatusFull       Status = "full"
	// StatusServicing is reserved for an external maintenance workflow. The
	// log/empty operations never enter it.
	StatusServicing Status = "servicing"
)

// Statuses lists every valid status in display order.
var Statuses = []Status{StatusCollecting, StatusFull, StatusServicing}

// ParseStatus converts a wire string into a Status.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusCollecting, StatusFull, StatusServicing:
		return Status(s), nil
	}
	return "", fmt.Errorf("unknown bin status %q", s)
}

// Valid reports whether s is one of the three known statuses.
func (s Status) Valid() bool {
	_, err := ParseStatus(string(s))
	return err == nil
}

// UnmarshalJSON rejects statuses outside the tagged set.
func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
