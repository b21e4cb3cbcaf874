package persist

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// countsColumn stores per-category counts as a JSON text column.
type countsColumn map[string]int

// Value implements driver.Valuer.
func (c countsColumn) Value() (driver.Value, error) {
	if c == nil {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]int(c))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal counts: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner. NULL and empty text decode to an empty map.
func (c *countsColumn) Scan(value interface{}) error {
	var b []byte
	switch v := value.(type) {
	case nil:
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into counts", value)
	}

	out := make(map[string]int)
	if len(b) > 0 {
		if err := json.Unmarshal(b, &out); err != nil {
			return fmt.Errorf("failed to unmarshal counts: %w", err)
		}
	}
	*c = out
	return nil
}
