// Package daemon provides a client interface for interacting with the
// wastenet daemon. It implements a transparent fallback pattern: if the
// daemon is running, use its HTTP API; if not, operate on the persisted
// bin database directly.
package daemon

import (
	"context"
	"time"

	"github.com/grovetools/wastenet/pkg/models"
)

// Transport names accepted for event streaming.
const (
	TransportSSE       = "sse"
	TransportWebSocket = "ws"
)

// Client defines the interface for interacting with the wastenet daemon.
// Both RemoteClient (HTTP) and LocalClient (direct calls) implement this interface.
type Client interface {
	// GetBins returns a snapshot of every bin.
	GetBins(ctx context.Context) ([]models.BinRecord, error)

	// GetBin returns one bin.
	GetBin(ctx context.Context, binID string) (models.BinRecord, error)

	// LogItem records one item of category in a bin.
	LogItem(ctx context.Context, binID, category string) (models.BinRecord, error)

	// Empty resets a bin after collection.
	Empty(ctx context.Context, binID string) (models.BinRecord, error)

	// StreamEvents subscribes to status change events. It returns once the
	// subscription is established; events observed after that are
	// delivered on the first channel. The error channel receives at most
	// one value when the stream ends for a reason other than ctx.
	// For LocalClient, this returns an error since streaming is only available via daemon.
	StreamEvents(ctx context.Context) (<-chan models.StatusChanged, <-chan error, error)

	// Observers returns the daemon's attached observer stats.
	Observers(ctx context.Context) ([]models.ObserverStats, error)

	// GetConfig returns the daemon's running configuration.
	GetConfig(ctx context.Context) (*RunningConfig, error)

	// IsRunning returns true if the daemon is available and responding.
	IsRunning() bool

	// Close cleans up any resources used by the client.
	Close() error
}

// RunningConfig mirrors the daemon's /api/config response.
type RunningConfig struct {
	Addr        string        `json:"addr"`
	Socket      string        `json:"socket,omitempty"`
	Heartbeat   time.Duration `json:"heartbeat"`
	QueueSize   int           `json:"queue_size"`
	SendTimeout time.Duration `json:"send_timeout"`
	Persistence string        `json:"persistence,omitempty"`
	Relays      []string      `json:"relays,omitempty"`
	ConfigFile  string        `json:"config_file,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
}
