package daemon

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/grovetools/wastenet/pkg/models"
	"github.com/grovetools/wastenet/pkg/paths"
)

// DefaultBaseURL is where the daemon listens when no address is configured.
const DefaultBaseURL = "http://127.0.0.1:5001"

// FactoryOptions tunes how New locates the daemon.
type FactoryOptions struct {
	// BaseURL is tried when the unix socket is unavailable. Empty uses
	// DefaultBaseURL.
	BaseURL string
	// SocketPath overrides paths.SocketPath().
	SocketPath string
	// DBPath is used by the local fallback. Empty uses paths.DBPath().
	DBPath string
	// Seeds are the configured bins the local fallback provisions.
	Seeds []models.BinSeed
	// Transport selects the event stream transport for RemoteClient.
	Transport string
	// HeartbeatTimeout is passed through to RemoteClient.
	HeartbeatTimeout time.Duration
}

// New returns a Client that will use the daemon if available,
// otherwise falls back to LocalClient.
//
// Callers don't need to know whether the daemon is running or not. The
// same API works in both modes, except for StreamEvents.
func New(opts FactoryOptions) Client {
	socketPath := opts.SocketPath
	if socketPath == "" {
		socketPath = paths.SocketPath()
	}
	if _, err := os.Stat(socketPath); err == nil {
		conn, err := net.DialTimeout("unix", socketPath, 100*time.Millisecond)
		if err == nil {
			conn.Close()
			client, err := NewRemoteClient(RemoteOptions{
				SocketPath:       socketPath,
				Transport:        opts.Transport,
				HeartbeatTimeout: opts.HeartbeatTimeout,
			})
			if err == nil {
				return client
			}
		}
	}

	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if client, err := NewRemoteClient(RemoteOptions{
		BaseURL:          baseURL,
		Transport:        opts.Transport,
		HeartbeatTimeout: opts.HeartbeatTimeout,
	}); err == nil && client.IsRunning() {
		return client
	}

	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = paths.DBPath()
	}
	return NewLocalClient(dbPath, opts.Seeds)
}

// MustConnect returns a daemon-backed Client or an error explaining how to
// start the daemon. Use this where a live stream is required.
func MustConnect(opts FactoryOptions) (Client, error) {
	client := New(opts)
	if !client.IsRunning() {
		client.Close()
		return nil, fmt.Errorf("wastenet daemon is not running; start it with 'wastenet daemon start'")
	}
	return client, nil
}
