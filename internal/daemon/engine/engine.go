// Package engine orchestrates the daemon's bin state, its observers and
// background workers.
package engine

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/wastenet/internal/daemon/notifier"
	"github.com/grovetools/wastenet/internal/daemon/snapshot"
	"github.com/grovetools/wastenet/internal/daemon/store"
	"github.com/grovetools/wastenet/pkg/models"
)

// Worker is a background task run for the lifetime of the engine:
// persistence writer, broker relays, config watcher.
type Worker interface {
	// Name returns the worker's name for logging.
	Name() string

	// Run blocks until ctx is canceled.
	Run(ctx context.Context) error
}

// RecordLoader supplies previously persisted bins.
type RecordLoader interface {
	LoadAll(ctx context.Context) ([]models.BinRecord, error)
}

// Engine wires the store to the notifier and runs all workers.
type Engine struct {
	store     *store.Store
	notifier  *notifier.Registry
	snapshots *snapshot.Service
	workers   []Worker
	logger    *logrus.Entry

	reloads chan []models.BinSeed
}

// New creates a new Engine. The store's transition sink is pointed at the
// registry.
func New(st *store.Store, reg *notifier.Registry, logger *logrus.Entry) *Engine {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	st.SetTransitionSink(reg)
	return &Engine{
		store:     st,
		notifier:  reg,
		snapshots: snapshot.New(st),
		logger:    logger,
		reloads:   make(chan []models.BinSeed, 8),
	}
}

// Register adds a worker to the engine.
func (e *Engine) Register(w Worker) {
	e.workers = append(e.workers, w)
}

// Bootstrap restores persisted bins, then provisions seeds. When nothing
// was restored and no seeds are configured the built-in demo bins are
// provisioned.
func (e *Engine) Bootstrap(ctx context.Context, loader RecordLoader, seeds []models.BinSeed) error {
	restored := 0
	if loader != nil {
		recs, err := loader.LoadAll(ctx)
		if err != nil {
			return err
		}
		for _, rec := range recs {
			if _, created, err := e.store.Restore(rec); err != nil {
				e.logger.WithError(err).WithField("binId", rec.ID).Warn("Skipping invalid persisted bin")
			} else if created {
				restored++
			}
		}
	}

	created := e.Provision(models.StartupSeeds(seeds, restored))
	e.logger.WithFields(logrus.Fields{
		"restored":    restored,
		"provisioned": len(created),
		"total":       e.store.Len(),
	}).Info("Bins loaded")
	return nil
}

// Provision creates any bins in seeds that do not exist yet and returns
// the ids that were created.
func (e *Engine) Provision(seeds []models.BinSeed) []string {
	var created []string
	for _, seed := range seeds {
		_, ok, err := e.store.Provision(seed)
		if err != nil {
			e.logger.WithError(err).WithField("binId", seed.ID).Warn("Failed to provision bin")
			continue
		}
		if ok {
			created = append(created, seed.ID)
		}
	}
	return created
}

// RequestReload queues a seed list for provisioning by the engine loop.
// Reloads are dropped if the queue is full; the next file change retries.
func (e *Engine) RequestReload(seeds []models.BinSeed) {
	select {
	case e.reloads <- seeds:
	default:
		e.logger.Warn("Reload queue full, dropping config reload")
	}
}

// LogItem records one classified item.
func (e *Engine) LogItem(binID, category string) (models.BinRecord, bool, error) {
	rec, transitioned, err := e.store.LogItem(binID, category)
	if err != nil {
		return rec, false, err
	}
	e.logger.WithFields(logrus.Fields{
		"binId":    binID,
		"category": category,
		"total":    rec.TotalItems,
		"status":   rec.Status,
	}).Debug("Item logged")
	return rec, transitioned, nil
}

// Empty resets a bin after collection.
func (e *Engine) Empty(binID string) (models.BinRecord, bool, error) {
	rec, transitioned, err := e.store.Empty(binID)
	if err != nil {
		return rec, false, err
	}
	e.logger.WithField("binId", binID).Info("Bin emptied")
	return rec, transitioned, nil
}

// Start runs the reload consumer and every worker, and blocks until ctx is
// canceled and all workers have returned. Observers are detached on exit.
func (e *Engine) Start(ctx context.Context) {
	var wg sync.WaitGroup

	// 1. Start reload consumer
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case seeds := <-e.reloads:
				if created := e.Provision(seeds); len(created) > 0 {
					e.logger.WithField("bins", created).Info("Provisioned bins from config reload")
				}
			}
		}
	}()

	// 2. Start workers
	for _, w := range e.workers {
		wg.Add(1)
		go func(w Worker) {
			defer wg.Done()
			e.logger.WithField("worker", w.Name()).Info("Starting worker")
			if err := w.Run(ctx); err != nil {
				e.logger.WithField("worker", w.Name()).WithError(err).Error("Worker failed")
			}
		}(w)
	}

	wg.Wait()
	e.notifier.Close()
}

// Store returns the engine's state store.
func (e *Engine) Store() *store.Store {
	return e.store
}

// Notifier returns the observer registry.
func (e *Engine) Notifier() *notifier.Registry {
	return e.notifier
}

// Snapshots returns the snapshot service.
func (e *Engine) Snapshots() *snapshot.Service {
	return e.snapshots
}

// WorkerFunc adapts a function to the Worker interface.
type WorkerFunc struct {
	WorkerName string
	Fn         func(ctx context.Context) error
}

// Name implements Worker.
func (f WorkerFunc) Name() string { return f.WorkerName }

// Run implements Worker.
func (f WorkerFunc) Run(ctx context.Context) error { return f.Fn(ctx) }
