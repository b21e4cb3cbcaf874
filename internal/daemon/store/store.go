package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/grovetools/wastenet/errors"
	"github.com/grovetools/wastenet/pkg/models"
)

// Store is the in-memory state store for the daemon.
// Each bin is guarded by its own lock; the index lock only protects the
// id -> slot map, so mutations on distinct bins never contend.
type Store struct {
	mu    sync.RWMutex
	slots map[string]*slot

	transitions TransitionSink
	mutations   MutationSink
	observer    MutationObserver
	clock       func() time.Time
}

// New creates a new Store instance.
func New(opts ...Option) *Store {
	s := &Store{
		slots: make(map[string]*slot),
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetTransitionSink replaces the transition sink. Intended for wiring during
// startup before any mutation is applied.
func (s *Store) SetTransitionSink(sink TransitionSink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transitions = sink
}

// SetMutationSink replaces the mutation sink.
func (s *Store) SetMutationSink(sink MutationSink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mutations = sink
}

func (s *Store) lookup(id string) (*slot, TransitionSink, MutationSink, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sl, ok := s.slots[id]
	return sl, s.transitions, s.mutations, ok
}

// nextVersion is strictly greater than prev and tracks wall time, so a
// restarted daemon without persistence never reissues an old version.
func (s *Store) nextVersion(prev int64) int64 {
	next := s.clock().UnixNano()
	if next <= prev {
		next = prev + 1
	}
	return next
}

// Provision creates a bin from a seed. Existing ids are left untouched and
// reported with created=false.
func (s *Store) Provision(seed models.BinSeed) (models.BinRecord, bool, error) {
	if strings.TrimSpace(seed.ID) == "" {
		return models.BinRecord{}, false, errors.InvalidInput(OpProvision, "bin id is required")
	}
	if err := seed.Position.Validate(); err != nil {
		return models.BinRecord{}, false, errors.InvalidInput(OpProvision, err.Error()).WithDetail("binId", seed.ID)
	}
	rec := seed.Record(s.nextVersion(0), s.clock())
	return s.insert(rec)
}

// Restore inserts a previously persisted record, keeping its version.
// Existing ids are left untouched.
func (s *Store) Restore(rec models.BinRecord) (models.BinRecord, bool, error) {
	if err := rec.CheckInvariants(); err != nil {
		return models.BinRecord{}, false, err
	}
	return s.insert(rec.Clone())
}

func (s *Store) insert(rec models.BinRecord) (models.BinRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.slots[rec.ID]; ok {
		existing.mu.Lock()
		defer existing.mu.Unlock()
		return existing.rec.Clone(), false, nil
	}
	s.slots[rec.ID] = &slot{rec: rec}
	if s.mutations != nil {
		s.mutations.BinMutated(rec.Clone())
	}
	if s.observer != nil {
		s.observer.ObserveMutation(OpProvision, false, nil)
	}
	return rec.Clone(), true, nil
}

// LogItem records one item of the given category in a bin. It returns the
// post-mutation record and whether the status changed.
func (s *Store) LogItem(id, category string) (models.BinRecord, bool, error) {
	category = strings.TrimSpace(category)
	if category == "" {
		err := errors.InvalidInput(OpLogItem, "waste category is required").WithDetail("binId", id)
		s.observe(OpLogItem, false, err)
		return models.BinRecord{}, false, err
	}
	return s.mutate(id, OpLogItem, func(rec *models.BinRecord) {
		if rec.CategoryCounts == nil {
			rec.CategoryCounts = make(map[string]int)
		}
		rec.CategoryCounts[category]++
		rec.TotalItems++
	})
}

// Empty resets a bin's counters. It is idempotent apart from the version
// bump; transitioned is true only if the bin was not already collecting.
func (s *Store) Empty(id string) (models.BinRecord, bool, error) {
	return s.mutate(id, OpEmpty, func(rec *models.BinRecord) {
		rec.CategoryCounts = make(map[string]int)
		rec.TotalItems = 0
		rec.Status = models.StatusCollecting
	})
}

func (s *Store) mutate(id, op string, apply func(*models.BinRecord)) (models.BinRecord, bool, error) {
	sl, transitions, mutations, ok := s.lookup(id)
	if !ok {
		err := errors.BinNotFound(id, op)
		s.observe(op, false, err)
		return models.BinRecord{}, false, err
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()

	prev := sl.rec.Status
	next := sl.rec.Clone()
	apply(&next)
	next.Status = next.DerivedStatus()
	next.Version = s.nextVersion(sl.rec.Version)
	next.LastUpdated = s.clock()

	if err := next.CheckInvariants(); err != nil {
		panic(err)
	}
	sl.rec = next

	transitioned := prev != next.Status
	if mutations != nil {
		mutations.BinMutated(next.Clone())
	}
	if transitioned && transitions != nil {
		transitions.StatusChanged(next.Clone())
	}
	s.observe(op, transitioned, nil)
	return next.Clone(), transitioned, nil
}

func (s *Store) observe(op string, transitioned bool, err error) {
	if s.observer != nil {
		s.observer.ObserveMutation(op, transitioned, err)
	}
}

// Get returns a copy of one bin.
func (s *Store) Get(id string) (models.BinRecord, error) {
	sl, _, _, ok := s.lookup(id)
	if !ok {
		return models.BinRecord{}, errors.BinNotFound(id, OpGet)
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return sl.rec.Clone(), nil
}

// GetAll returns a copy of every bin sorted by id. Each record is copied
// under its own lock and is internally consistent, but the set as a whole
// is not a single atomic cut.
func (s *Store) GetAll() []models.BinRecord {
	s.mu.RLock()
	slots := make([]*slot, 0, len(s.slots))
	for _, sl := range s.slots {
		slots = append(slots, sl)
	}
	s.mu.RUnlock()

	result := make([]models.BinRecord, 0, len(slots))
	for _, sl := range slots {
		sl.mu.Lock()
		result = append(result, sl.rec.Clone())
		sl.mu.Unlock()
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Len returns the number of provisioned bins.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.slots)
}
