package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/grovetools/wastenet/errors"
)

// DefaultCapacity is used when a bin is provisioned without a capacity.
const DefaultCapacity = 10

// Position is a geographic coordinate pair. It is stored and forwarded
// verbatim; routing and map rendering live elsewhere.
type Position struct {
	Longitude float64
	Latitude  float64
}

// geoPoint is the GeoJSON-style wire form of a Position.
type geoPoint struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

// MarshalJSON encodes the position as {"type":"Point","coordinates":[lng,lat]}.
func (p Position) MarshalJSON() ([]byte, error) {
	return json.Marshal(geoPoint{Type: "Point", Coordinates: [2]float64{p.Longitude, p.Latitude}})
}

// UnmarshalJSON decodes a GeoJSON point.
func (p *Position) UnmarshalJSON(data []byte) error {
	var g geoPoint
	if err := json.Unmarshal(data, &g); err != nil {
		return err
	}
	if g.Type != "" && g.Type != "Point" {
		return fmt.Errorf("unsupported location type %q", g.Type)
	}
	p.Longitude, p.Latitude = g.Coordinates[0], g.Coordinates[1]
	return nil
}

// Validate checks coordinate ranges.
func (p Position) Validate() error {
	if p.Longitude < -180 || p.Longitude > 180 {
		return fmt.Errorf("longitude %v out of range", p.Longitude)
	}
	if p.Latitude < -90 || p.Latitude > 90 {
		return fmt.Errorf("latitude %v out of range", p.Latitude)
	}
	return nil
}

// BinRecord is the authoritative state of one physical receptacle.
type BinRecord struct {
	ID             string         `json:"binId"`
	Position       Position       `json:"location"`
	Capacity       int            `json:"capacity"`
	CategoryCounts map[string]int `json:"wasteCounts"`
	TotalItems     int            `json:"totalItems"`
	Status         Status         `json:"status"`
	Version        int64          `json:"version"`
	LastUpdated    time.Time      `json:"lastUpdated"`
}

// Clone returns a deep copy safe to hand to other goroutines.
func (b BinRecord) Clone() BinRecord {
	out := b
	out.CategoryCounts = make(map[string]int, len(b.CategoryCounts))
	for k, v := range b.CategoryCounts {
		out.CategoryCounts[k] = v
	}
	return out
}

// Categories returns the category labels in sorted order.
func (b BinRecord) Categories() []string {
	keys := make([]string, 0, len(b.CategoryCounts))
	for k := range b.CategoryCounts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// DerivedStatus computes the status implied by the fill level. Servicing
// is sticky: it is owned by an external workflow.
func (b BinRecord) DerivedStatus() Status {
	if b.Status == StatusServicing {
		return StatusServicing
	}
	if b.TotalItems >= b.Capacity {
		return StatusFull
	}
	return StatusCollecting
}

// CheckInvariants returns an INVARIANT_VIOLATION error for the first
// broken invariant, or nil.
func (b BinRecord) CheckInvariants() error {
	if b.Capacity <= 0 {
		return errors.InvariantViolation(b.ID, "capacity > 0")
	}
	if b.TotalItems < 0 {
		return errors.InvariantViolation(b.ID, "totalItems >= 0")
	}
	sum := 0
	for category, n := range b.CategoryCounts {
		if n < 0 {
			return errors.InvariantViolation(b.ID, "non-negative count").WithDetail("category", category)
		}
		sum += n
	}
	if sum != b.TotalItems {
		return errors.InvariantViolation(b.ID, "totalItems == sum(categoryCounts)").
			WithDetail("totalItems", b.TotalItems).
			WithDetail("sum", sum)
	}
	if !b.Status.Valid() {
		return errors.InvariantViolation(b.ID, "known status").WithDetail("status", string(b.Status))
	}
	if b.Status != b.DerivedStatus() {
		return errors.InvariantViolation(b.ID, "status == full iff totalItems >= capacity").
			WithDetail("status", string(b.Status))
	}
	return nil
}

// BinSeed describes a bin to provision. Counts are optional initial fill.
type BinSeed struct {
	ID       string
	Position Position
	Capacity int
	Counts   map[string]int
	Status   Status
}

// Record builds the initial BinRecord for a seed.
func (s BinSeed) Record(version int64, now time.Time) BinRecord {
	capacity := s.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	rec := BinRecord{
		ID:             s.ID,
		Position:       s.Position,
		Capacity:       capacity,
		CategoryCounts: make(map[string]int, len(s.Counts)),
		Version:        version,
		LastUpdated:    now,
	}
	for k, v := range s.Counts {
		if v > 0 {
			rec.CategoryCounts[k] = v
			rec.TotalItems += v
		}
	}
	if s.Status == StatusServicing {
		rec.Status = StatusServicing
	}
	rec.Status = rec.DerivedStatus()
	return rec
}

// StartupSeeds returns the seeds to provision at startup: the configured
// seeds, or DefaultSeeds when none are configured and nothing was restored.
func StartupSeeds(configured []BinSeed, restored int) []BinSeed {
	if len(configured) == 0 && restored == 0 {
		return DefaultSeeds()
	}
	return configured
}

// DefaultSeeds are provisioned when neither configuration nor persistence
// supplies any bins.
func DefaultSeeds() []BinSeed {
	return []BinSeed{
		{
			ID:       "BIN-001",
			Position: Position{Longitude: -74.0060, Latitude: 40.7128},
			Capacity: 100,
			Counts:   map[string]int{"plastic": 10, "paper": 20},
		},
		{
			ID:       "BIN-002",
			Position: Position{Longitude: -118.2437, Latitude: 34.0522},
			Capacity: 120,
			Counts:   map[string]int{"organic": 80, "plastic": 40},
		},
		{
			ID:       "BIN-003",
			Position: Position{Longitude: -87.6298, Latitude: 41.8781},
			Capacity: 100,
			Counts:   map[string]int{"paper": 55},
		},
	}
}
