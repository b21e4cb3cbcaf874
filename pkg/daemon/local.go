package daemon

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/wastenet/internal/daemon/persist"
	"github.com/grovetools/wastenet/internal/daemon/store"
	"github.com/grovetools/wastenet/pkg/models"
)

// ErrStreamingUnavailable is returned by LocalClient.StreamEvents.
var ErrStreamingUnavailable = errors.New("streaming not available in local mode; start the daemon for real-time updates")

// LocalClient implements Client by operating on the persisted bin database
// directly. This is used when the daemon is not running, providing the
// same API but executing all operations in-process. Mutations are written
// back immediately; no observer is notified.
type LocalClient struct {
	dbPath string
	seeds  []models.BinSeed
	logger *logrus.Entry

	mu sync.Mutex
}

// NewLocalClient creates a new LocalClient over the database at dbPath.
// Seeds are provisioned the same way the daemon does at startup: missing
// configured bins are created, and the demo bins only when nothing is
// configured or persisted.
func NewLocalClient(dbPath string, seeds []models.BinSeed) *LocalClient {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return &LocalClient{dbPath: dbPath, seeds: seeds, logger: logrus.NewEntry(logger)}
}

// withStore loads the database into a store, runs fn, and persists every
// mutation fn made.
func (c *LocalClient) withStore(ctx context.Context, fn func(*store.Store) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	db, err := persist.NewSQLiteStore(c.dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	writer := persist.NewWriter(db, c.logger)
	st := store.New()
	recs, err := db.LoadAll(ctx)
	if err != nil {
		return err
	}
	restored := 0
	for _, rec := range recs {
		if _, created, err := st.Restore(rec); err != nil {
			c.logger.WithError(err).WithField("binId", rec.ID).Warn("Skipping invalid persisted bin")
		} else if created {
			restored++
		}
	}
	for _, seed := range models.StartupSeeds(c.seeds, restored) {
		rec, created, err := st.Provision(seed)
		if err != nil {
			c.logger.WithError(err).WithField("binId", seed.ID).Warn("Failed to provision bin")
			continue
		}
		if created {
			writer.BinMutated(rec)
		}
	}
	st.SetMutationSink(writer)

	if err := fn(st); err != nil {
		return err
	}
	return writer.Flush(ctx)
}

// GetBins returns every persisted bin.
func (c *LocalClient) GetBins(ctx context.Context) ([]models.BinRecord, error) {
	var bins []models.BinRecord
	err := c.withStore(ctx, func(st *store.Store) error {
		bins = st.GetAll()
		return nil
	})
	return bins, err
}

// GetBin returns one persisted bin.
func (c *LocalClient) GetBin(ctx context.Context, binID string) (models.BinRecord, error) {
	var rec models.BinRecord
	err := c.withStore(ctx, func(st *store.Store) error {
		var err error
		rec, err = st.Get(binID)
		return err
	})
	return rec, err
}

// LogItem records an item directly in the database.
func (c *LocalClient) LogItem(ctx context.Context, binID, category string) (models.BinRecord, error) {
	var rec models.BinRecord
	err := c.withStore(ctx, func(st *store.Store) error {
		var err error
		rec, _, err = st.LogItem(binID, category)
		return err
	})
	return rec, err
}

// Empty resets a bin directly in the database.
func (c *LocalClient) Empty(ctx context.Context, binID string) (models.BinRecord, error) {
	var rec models.BinRecord
	err := c.withStore(ctx, func(st *store.Store) error {
		var err error
		rec, _, err = st.Empty(binID)
		return err
	})
	return rec, err
}

// StreamEvents returns an error for LocalClient since streaming is only available via daemon.
func (c *LocalClient) StreamEvents(ctx context.Context) (<-chan models.StatusChanged, <-chan error, error) {
	return nil, nil, ErrStreamingUnavailable
}

// Observers returns no observers; none can attach without the daemon.
func (c *LocalClient) Observers(ctx context.Context) ([]models.ObserverStats, error) {
	return []models.ObserverStats{}, nil
}

// GetConfig returns an error for LocalClient since config is only available via daemon.
func (c *LocalClient) GetConfig(ctx context.Context) (*RunningConfig, error) {
	return nil, errors.New("config not available in local mode; start the daemon to view running config")
}

// IsRunning returns false since this is the local fallback client.
func (c *LocalClient) IsRunning() bool {
	return false
}

// Close is a no-op for LocalClient.
func (c *LocalClient) Close() error {
	return nil
}

// Ensure LocalClient implements Client interface.
var _ Client = (*LocalClient)(nil)
