package notifier

import (
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/grovetools/wastenet/pkg/models"
)

// Subscription is one attached observer channel.
type Subscription struct {
	ID         string
	Name       string
	AttachedAt time.Time

	mu      sync.Mutex
	ch      chan models.StatusChanged
	done    chan struct{}
	closed  bool
	reason  string
	sent    atomic.Uint64
	dropped atomic.Uint64
}

// Kind is the part of Name before any "@peer" suffix. It is the label used
// for metrics, so "sse@127.0.0.1:50312" reports as "sse".
func (s *Subscription) Kind() string {
	if i := strings.IndexByte(s.Name, '@'); i >= 0 {
		return s.Name[:i]
	}
	return s.Name
}

// Events returns the queue of pending events. It is closed on detach.
func (s *Subscription) Events() <-chan models.StatusChanged {
	return s.ch
}

// Done is closed when the subscription is detached.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Reason reports why the subscription was detached, or "" while attached.
func (s *Subscription) Reason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// offer enqueues ev without blocking. It returns false if the queue is full
// or the subscription already closed.
func (s *Subscription) offer(ev models.StatusChanged) (ok bool, closed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, true
	}
	select {
	case s.ch <- ev:
		s.sent.Add(1)
		return true, false
	default:
		s.dropped.Add(1)
		return false, false
	}
}

func (s *Subscription) close(reason string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	s.reason = reason
	close(s.ch)
	close(s.done)
	return true
}

func (s *Subscription) stats() models.ObserverStats {
	return models.ObserverStats{
		ID:         s.ID,
		Name:       s.Name,
		Sent:       s.sent.Load(),
		Dropped:    s.dropped.Load(),
		AttachedAt: s.AttachedAt,
	}
}

// Registry is the explicit set of attached observers. It never retries,
// never buffers for late joiners and never deduplicates.
type Registry struct {
	opts   Options
	logger *logrus.Entry

	mu       sync.RWMutex
	subs     map[string]*Subscription
	closed   bool
	recorder Recorder

	published atomic.Uint64
}

// NewRegistry creates an empty registry.
func NewRegistry(opts Options, logger *logrus.Entry) *Registry {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Registry{
		opts:   opts.withDefaults(),
		logger: logger,
		subs:   make(map[string]*Subscription),
	}
}

// SetRecorder installs a metrics recorder.
func (r *Registry) SetRecorder(rec Recorder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recorder = rec
}

// SendTimeout is the per-write deadline for transports.
func (r *Registry) SendTimeout() time.Duration {
	return r.opts.SendTimeout
}

// Attach registers a new observer.
func (r *Registry) Attach(name string) (*Subscription, error) {
	sub := &Subscription{
		ID:         uuid.NewString(),
		Name:       name,
		AttachedAt: time.Now(),
		ch:         make(chan models.StatusChanged, r.opts.QueueSize),
		done:       make(chan struct{}),
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrRegistryClosed
	}
	r.subs[sub.ID] = sub
	active := len(r.subs)
	rec := r.recorder
	r.mu.Unlock()

	if rec != nil {
		rec.ObserverAttached(active)
	}
	r.logger.WithFields(logrus.Fields{"observer": sub.Name, "id": sub.ID}).Debug("Observer attached")
	return sub, nil
}

// Detach removes an observer. Detaching an unknown or already detached id
// is a no-op.
func (r *Registry) Detach(id string) {
	r.detach(id, ReasonClosed)
}

// DetachWithReason removes an observer recording why.
func (r *Registry) DetachWithReason(id, reason string) {
	r.detach(id, reason)
}

func (r *Registry) detach(id, reason string) {
	r.mu.Lock()
	sub, ok := r.subs[id]
	if ok {
		delete(r.subs, id)
	}
	active := len(r.subs)
	rec := r.recorder
	r.mu.Unlock()

	if !ok || !sub.close(reason) {
		return
	}
	if rec != nil {
		rec.ObserverDetached(reason, active)
	}
	r.logger.WithFields(logrus.Fields{
		"observer": sub.Name,
		"id":       sub.ID,
		"reason":   reason,
	}).Debug("Observer detached")
}

// StatusChanged implements store.TransitionSink.
func (r *Registry) StatusChanged(rec models.BinRecord) {
	r.Publish(models.NewStatusChanged(rec, time.Now()))
}

// Publish enqueues ev into every attached observer's queue without
// blocking. Observers whose queue is full are detached so their transport
// drops the connection and the client resnapshots on reconnect.
func (r *Registry) Publish(ev models.StatusChanged) {
	r.mu.RLock()
	subs := make([]*Subscription, 0, len(r.subs))
	for _, sub := range r.subs {
		subs = append(subs, sub)
	}
	rec := r.recorder
	r.mu.RUnlock()

	r.published.Add(1)
	if rec != nil {
		rec.EventPublished(len(subs))
	}

	var slow []*Subscription
	for _, sub := range subs {
		ok, closed := sub.offer(ev)
		if !ok && !closed {
			slow = append(slow, sub)
		}
	}

	for _, sub := range slow {
		if rec != nil {
			rec.EventDropped(sub.Kind())
		}
		r.logger.WithFields(logrus.Fields{
			"observer": sub.Name,
			"id":       sub.ID,
			"binId":    ev.Bin.ID,
		}).Warn("Observer queue full, detaching")
		r.detach(sub.ID, ReasonSlow)
	}
}

// Count returns the number of attached observers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// Published returns the number of events published since creation.
func (r *Registry) Published() uint64 {
	return r.published.Load()
}

// Stats returns per-observer delivery counters ordered by attach time.
func (r *Registry) Stats() []models.ObserverStats {
	r.mu.RLock()
	result := make([]models.ObserverStats, 0, len(r.subs))
	for _, sub := range r.subs {
		result = append(result, sub.stats())
	}
	r.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].AttachedAt.Equal(result[j].AttachedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].AttachedAt.Before(result[j].AttachedAt)
	})
	return result
}

// Close detaches every observer and rejects further attaches.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	ids := make([]string, 0, len(r.subs))
	for id := range r.subs {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		r.detach(id, ReasonShutdown)
	}
}
