package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/sirupsen/logrus"

	"github.com/grovetools/wastenet/errors"
	"github.com/grovetools/wastenet/pkg/models"
)

// State is the connection indicator shown to users.
type State string

const (
	// StateLive means the stream is open and a snapshot has been merged.
	StateLive State = "live"
	// StateReconnecting means the stream was lost and is being reopened.
	StateReconnecting State = "reconnecting"
	// StateStale means the view may lag the daemon: nothing has synced yet
	// or the latest snapshot fetch failed.
	StateStale State = "stale"
)

// Client is the part of the daemon client the engine needs.
type Client interface {
	GetBins(ctx context.Context) ([]models.BinRecord, error)
	StreamEvents(ctx context.Context) (<-chan models.StatusChanged, <-chan error, error)
}

// Backoff bounds the delay between reconnect attempts. The delay doubles
// after every failed attempt and resets once a session goes live.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
}

// Options tunes an Engine.
type Options struct {
	SnapshotTimeout time.Duration
	// ResyncInterval schedules extra snapshot fetches. Zero disables them.
	ResyncInterval time.Duration
	Backoff        Backoff
	// OnChange is called from the engine goroutine for every accepted merge.
	OnChange func(Change)
	// OnState is called from the engine goroutine when the state changes.
	OnState func(State)
}

func (o Options) withDefaults() Options {
	if o.SnapshotTimeout <= 0 {
		o.SnapshotTimeout = 5 * time.Second
	}
	if o.ResyncInterval < 0 {
		o.ResyncInterval = 0
	}
	if o.Backoff.Initial <= 0 {
		o.Backoff.Initial = 500 * time.Millisecond
	}
	if o.Backoff.Max < o.Backoff.Initial {
		o.Backoff.Max = 30 * time.Second
		if o.Backoff.Max < o.Backoff.Initial {
			o.Backoff.Max = o.Backoff.Initial
		}
	}
	return o
}

type fetchResult struct {
	gen  uint64
	bins []models.BinRecord
	err  error
}

// Engine reconciles the daemon's snapshot and event stream into a View.
// Run is the only writer; the read methods are safe from any goroutine.
type Engine struct {
	client Client
	opts   Options
	logger *logrus.Entry

	mu    sync.RWMutex
	view  *View
	state State

	resync  chan struct{}
	results chan fetchResult

	// owned by the Run goroutine
	gen         uint64
	cancelFetch context.CancelFunc
}

// New creates an Engine. It does nothing until Run is called.
func New(client Client, opts Options, logger *logrus.Entry) *Engine {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Engine{
		client:  client,
		opts:    opts.withDefaults(),
		logger:  logger,
		view:    NewView(),
		state:   StateStale,
		resync:  make(chan struct{}, 1),
		results: make(chan fetchResult),
	}
}

// Run connects, reconciles and reconnects until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	if e.opts.ResyncInterval > 0 {
		sched, err := gocron.NewScheduler()
		if err != nil {
			return fmt.Errorf("failed to create resync scheduler: %w", err)
		}
		if _, err := sched.NewJob(
			gocron.DurationJob(e.opts.ResyncInterval),
			gocron.NewTask(e.Resync),
			gocron.WithName("snapshot-resync"),
		); err != nil {
			return fmt.Errorf("failed to schedule resync: %w", err)
		}
		sched.Start()
		defer func() { _ = sched.Shutdown() }()
	}

	delay := e.opts.Backoff.Initial
	for {
		wentLive, err := e.session(ctx)
		if e.cancelFetch != nil {
			e.cancelFetch()
			e.cancelFetch = nil
		}
		if ctx.Err() != nil {
			return nil
		}
		if wentLive {
			delay = e.opts.Backoff.Initial
		}
		e.setState(StateReconnecting)
		e.logger.WithError(err).WithField("retry_in", delay).Warn("Lost connection to daemon")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		delay *= 2
		if delay > e.opts.Backoff.Max {
			delay = e.opts.Backoff.Max
		}
	}
}

// session opens the stream, then fetches a snapshot, then applies events
// until the stream ends. It reports whether the session went live.
func (e *Engine) session(ctx context.Context) (bool, error) {
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	events, errs, err := e.client.StreamEvents(streamCtx)
	if err != nil {
		return false, err
	}
	e.logger.Debug("Stream open, fetching snapshot")

	// A queued resync is satisfied by the fetch below.
	select {
	case <-e.resync:
	default:
	}
	e.startFetch(streamCtx)

	// A failed fetch is retried on the stream's own backoff so the view
	// never stays stale while the stream is healthy.
	var retry <-chan time.Time
	retryDelay := e.opts.Backoff.Initial

	live := false
	for {
		select {
		case <-ctx.Done():
			return live, ctx.Err()

		case ev, ok := <-events:
			if !ok {
				events = nil
				if errs == nil {
					return live, errors.Transient("stream", fmt.Errorf("stream closed"))
				}
				continue
			}
			e.apply([]models.BinRecord{ev.Bin})

		case err, ok := <-errs:
			if !ok {
				errs = nil
				if events == nil {
					return live, errors.Transient("stream", fmt.Errorf("stream closed"))
				}
				continue
			}
			return live, err

		case res := <-e.results:
			if res.gen != e.gen {
				e.logger.WithField("generation", res.gen).Debug("Discarding superseded snapshot")
				continue
			}
			if res.err != nil {
				e.logger.WithError(res.err).WithField("retry_in", retryDelay).Warn("Snapshot fetch failed")
				e.setState(StateStale)
				retry = time.After(retryDelay)
				retryDelay *= 2
				if retryDelay > e.opts.Backoff.Max {
					retryDelay = e.opts.Backoff.Max
				}
				continue
			}
			e.apply(res.bins)
			live = true
			retry = nil
			retryDelay = e.opts.Backoff.Initial
			e.setState(StateLive)

		case <-retry:
			retry = nil
			e.startFetch(streamCtx)

		case <-e.resync:
			retry = nil
			e.startFetch(streamCtx)
		}
	}
}

// startFetch begins a snapshot fetch under a new generation and cancels
// the previous one.
func (e *Engine) startFetch(parent context.Context) {
	if e.cancelFetch != nil {
		e.cancelFetch()
	}
	e.gen++
	gen := e.gen
	ctx, cancel := context.WithTimeout(parent, e.opts.SnapshotTimeout)
	e.cancelFetch = cancel

	go func() {
		defer cancel()
		bins, err := e.client.GetBins(ctx)
		select {
		case e.results <- fetchResult{gen: gen, bins: bins, err: err}:
		case <-parent.Done():
		}
	}()
}

func (e *Engine) apply(recs []models.BinRecord) {
	var changes []Change
	e.mu.Lock()
	for _, rec := range recs {
		if ch, ok := e.view.Merge(rec); ok {
			changes = append(changes, ch)
		}
	}
	e.mu.Unlock()

	for _, ch := range changes {
		fields := logrus.Fields{"binId": ch.Bin.ID, "version": ch.Bin.Version, "status": ch.Bin.Status}
		switch {
		case ch.AlertRaised:
			e.logger.WithFields(fields).Info("Bin full")
		case ch.AlertRetracted:
			e.logger.WithFields(fields).Info("Bin alert cleared")
		default:
			e.logger.WithFields(fields).Debug("Bin updated")
		}
		if e.opts.OnChange != nil {
			e.opts.OnChange(ch)
		}
	}
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	changed := e.state != s
	e.state = s
	e.mu.Unlock()

	if changed && e.opts.OnState != nil {
		e.opts.OnState(s)
	}
}

// Resync requests an extra snapshot fetch. It never blocks.
func (e *Engine) Resync() {
	select {
	case e.resync <- struct{}{}:
	default:
	}
}

// Status returns the connection indicator.
func (e *Engine) Status() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Snapshot returns copies of every reconciled bin sorted by id.
func (e *Engine) Snapshot() []models.BinRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.view.Bins()
}

// Alerts returns the ids of bins whose reconciled status is full.
func (e *Engine) Alerts() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.view.Alerts()
}

// Bin returns one reconciled bin.
func (e *Engine) Bin(id string) (models.BinRecord, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.view.Get(id)
}

// Marker returns the marker class of one reconciled bin.
func (e *Engine) Marker(id string) (Marker, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.view.Marker(id)
}
