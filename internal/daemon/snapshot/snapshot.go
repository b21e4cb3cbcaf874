// Package snapshot serves point-in-time reads of every bin to observers.
package snapshot

import (
	"context"
	"time"

	"github.com/grovetools/wastenet/pkg/models"
)

// Source is anything that can list every bin.
type Source interface {
	GetAll() []models.BinRecord
}

// Service builds snapshots from a Source. It performs no caching: every
// call reads the current state.
type Service struct {
	source Source
	clock  func() time.Time
}

// New creates a snapshot service backed by source.
func New(source Source) *Service {
	return &Service{source: source, clock: time.Now}
}

// Snapshot returns every bin as currently stored. Records are individually
// consistent; the set is not a single atomic cut.
func (s *Service) Snapshot(ctx context.Context) (models.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return models.Snapshot{}, err
	}
	takenAt := s.clock()
	bins := s.source.GetAll()
	if bins == nil {
		bins = []models.BinRecord{}
	}
	return models.Snapshot{Bins: bins, TakenAt: takenAt}, nil
}
