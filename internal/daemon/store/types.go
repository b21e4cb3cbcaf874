// Package store provides the authoritative in-memory bin state for the
// wastenet daemon.
package store

import (
	"sync"
	"time"

	"github.com/grovetools/wastenet/pkg/models"
)

// TransitionSink receives the post-mutation record of every bin whose status
// changed. It is called while the bin's slot lock is held, so implementations
// must return promptly and never call back into the store.
type TransitionSink interface {
	StatusChanged(rec models.BinRecord)
}

// MutationSink receives every successful mutation, transitioned or not.
// Used by write-behind persistence. Same locking rules as TransitionSink.
type MutationSink interface {
	BinMutated(rec models.BinRecord)
}

// Operation names used in error details and metrics labels.
const (
	OpLogItem   = "logItem"
	OpEmpty     = "empty"
	OpGet       = "get"
	OpProvision = "provision"
)

// MutationObserver is notified after each store operation completes with
// the outcome. Metrics hook in here.
type MutationObserver interface {
	ObserveMutation(op string, transitioned bool, err error)
}

// Option configures a Store.
type Option func(*Store)

// WithTransitionSink sets the receiver of status transitions.
func WithTransitionSink(sink TransitionSink) Option {
	return func(s *Store) { s.transitions = sink }
}

// WithMutationSink sets the receiver of every mutation.
func WithMutationSink(sink MutationSink) Option {
	return func(s *Store) { s.mutations = sink }
}

// WithMutationObserver sets the operation outcome observer.
func WithMutationObserver(obs MutationObserver) Option {
	return func(s *Store) { s.observer = obs }
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) { s.clock = clock }
}

// slot holds one bin and the lock that serializes its mutations.
type slot struct {
	mu  sync.Mutex
	rec models.BinRecord
}
