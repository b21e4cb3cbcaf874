// Package persist keeps a durable copy of bin state in SQLite so a
// restarted daemon resumes with the same counts and versions.
package persist

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/grovetools/wastenet/pkg/models"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS bins (
	bin_id TEXT PRIMARY KEY,
	longitude REAL NOT NULL,
	latitude REAL NOT NULL,
	capacity INTEGER NOT NULL,
	waste_counts TEXT NOT NULL,
	total_items INTEGER NOT NULL,
	status TEXT NOT NULL,
	version INTEGER NOT NULL,
	last_updated INTEGER NOT NULL
);
`

// Upserts never move a row backwards: an older version loses.
const upsertSQL = `
INSERT INTO bins (bin_id, longitude, latitude, capacity, waste_counts, total_items, status, version, last_updated)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(bin_id) DO UPDATE SET
	waste_counts = excluded.waste_counts,
	total_items = excluded.total_items,
	status = excluded.status,
	version = excluded.version,
	last_updated = excluded.last_updated
WHERE excluded.version > bins.version
`

// SQLiteStore persists bin records.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteStore opens (or creates) the database at dbPath.
// Use ":memory:" for an in-memory database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" && !strings.HasPrefix(dbPath, "file:") {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

// Save upserts records in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, recs []models.BinRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, upsertSQL)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range recs {
		counts := countsColumn(rec.CategoryCounts)
		if _, err := stmt.ExecContext(ctx,
			rec.ID, rec.Position.Longitude, rec.Position.Latitude, rec.Capacity,
			counts, rec.TotalItems, string(rec.Status), rec.Version, rec.LastUpdated.UnixNano(),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("upsert bin %s: %w", rec.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// LoadAll returns every persisted record ordered by id.
func (s *SQLiteStore) LoadAll(ctx context.Context) ([]models.BinRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT bin_id, longitude, latitude, capacity, waste_counts, total_items, status, version, last_updated
		 FROM bins ORDER BY bin_id`)
	if err != nil {
		return nil, fmt.Errorf("query bins: %w", err)
	}
	defer rows.Close()

	var result []models.BinRecord
	for rows.Next() {
		var (
			rec     models.BinRecord
			counts  countsColumn
			status  string
			updated int64
		)
		if err := rows.Scan(&rec.ID, &rec.Position.Longitude, &rec.Position.Latitude, &rec.Capacity,
			&counts, &rec.TotalItems, &status, &rec.Version, &updated); err != nil {
			return nil, fmt.Errorf("scan bin: %w", err)
		}
		parsed, err := models.ParseStatus(status)
		if err != nil {
			return nil, fmt.Errorf("bin %s: %w", rec.ID, err)
		}
		rec.Status = parsed
		rec.CategoryCounts = counts
		rec.LastUpdated = time.Unix(0, updated)
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return result, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Writer batches store mutations and flushes them to SQLite off the
// mutation path. Only the latest record per bin is kept between flushes.
type Writer struct {
	db     *SQLiteStore
	logger *logrus.Entry

	mu      sync.Mutex
	pending map[string]models.BinRecord
	wake    chan struct{}
}

// NewWriter creates a write-behind writer over db.
func NewWriter(db *SQLiteStore, logger *logrus.Entry) *Writer {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Writer{
		db:      db,
		logger:  logger,
		pending: make(map[string]models.BinRecord),
		wake:    make(chan struct{}, 1),
	}
}

// BinMutated implements store.MutationSink. It never blocks.
func (w *Writer) BinMutated(rec models.BinRecord) {
	w.mu.Lock()
	if cur, ok := w.pending[rec.ID]; !ok || rec.Version > cur.Version {
		w.pending[rec.ID] = rec
	}
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Run flushes pending records until ctx is done, then performs a final
// flush with a fresh deadline.
func (w *Writer) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := w.Flush(flushCtx); err != nil {
				w.logger.WithError(err).Error("Final persistence flush failed")
			}
			cancel()
			return
		case <-w.wake:
		case <-ticker.C:
		}
		if err := w.Flush(ctx); err != nil {
			w.logger.WithError(err).Warn("Persistence flush failed, will retry")
		}
	}
}

// Flush writes every pending record. Records that fail to write are
// requeued unless a newer version arrived meanwhile.
func (w *Writer) Flush(ctx context.Context) error {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return nil
	}
	batch := make([]models.BinRecord, 0, len(w.pending))
	for _, rec := range w.pending {
		batch = append(batch, rec)
	}
	w.pending = make(map[string]models.BinRecord)
	w.mu.Unlock()

	if err := w.db.Save(ctx, batch); err != nil {
		w.mu.Lock()
		for _, rec := range batch {
			if cur, ok := w.pending[rec.ID]; !ok || rec.Version > cur.Version {
				w.pending[rec.ID] = rec
			}
		}
		w.mu.Unlock()
		return err
	}
	w.logger.WithField("count", len(batch)).Debug("Persisted bins")
	return nil
}

// Pending returns the number of records awaiting flush.
func (w *Writer) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}
