package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/grovetools/wastenet/errors"
	"github.com/grovetools/wastenet/pkg/models"
	"github.com/grovetools/wastenet/version"
)

// RemoteOptions configures a RemoteClient.
type RemoteOptions struct {
	// BaseURL is the daemon address, e.g. http://127.0.0.1:5001. Ignored
	// when SocketPath is set.
	BaseURL string
	// SocketPath dials the daemon over a unix socket.
	SocketPath string
	// Timeout bounds every non-streaming request.
	Timeout time.Duration
	// HeartbeatTimeout drops a stream that has been silent this long.
	HeartbeatTimeout time.Duration
	// Transport selects "sse" or "ws" for StreamEvents.
	Transport string
}

// RemoteClient implements Client by calling the daemon's HTTP API.
type RemoteClient struct {
	httpClient   *http.Client
	streamClient *http.Client
	baseURL      string
	opts         RemoteOptions
}

// unixBaseURL is the dummy host used for Unix socket HTTP requests.
// The actual connection goes through the Unix socket, not this URL.
const unixBaseURL = "http://unix"

// NewRemoteClient creates a new RemoteClient.
func NewRemoteClient(opts RemoteOptions) (*RemoteClient, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.HeartbeatTimeout <= 0 {
		opts.HeartbeatTimeout = 45 * time.Second
	}
	if opts.Transport == "" {
		opts.Transport = TransportSSE
	}

	transport := &http.Transport{
		MaxIdleConns:    10,
		IdleConnTimeout: 90 * time.Second,
	}
	streamTransport := &http.Transport{}
	base := strings.TrimRight(opts.BaseURL, "/")

	if opts.SocketPath != "" {
		socketPath := opts.SocketPath
		dial := func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socketPath)
		}
		transport.DialContext = dial
		streamTransport.DialContext = dial
		base = unixBaseURL
	} else {
		if base == "" {
			return nil, errors.InvalidInput("connect", "daemon base URL is required")
		}
		if _, err := url.Parse(base); err != nil {
			return nil, errors.InvalidInput("connect", fmt.Sprintf("invalid daemon URL: %v", err))
		}
	}

	return &RemoteClient{
		httpClient: &http.Client{Transport: transport, Timeout: opts.Timeout},
		// Streams have no overall timeout; idle detection uses the heartbeat.
		streamClient: &http.Client{Transport: streamTransport},
		baseURL:      base,
		opts:         opts,
	}, nil
}

// BaseURL returns the URL requests are sent to.
func (c *RemoteClient) BaseURL() string {
	return c.baseURL
}

func (c *RemoteClient) do(ctx context.Context, method, path string, body interface{}, out interface{}, operation string) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", version.UserAgent())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Transient(operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeAPIError(resp, operation)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Transient(operation, fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

// decodeAPIError turns a daemon error body back into a coded error.
func decodeAPIError(resp *http.Response, operation string) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	var apiErr errors.Error
	if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Code != "" {
		return &apiErr
	}
	if resp.StatusCode >= 500 {
		return errors.Transient(operation, fmt.Errorf("daemon returned status %d", resp.StatusCode))
	}
	return errors.New(errors.ErrCodeInternal, fmt.Sprintf("daemon returned status %d", resp.StatusCode)).
		WithDetail("operation", operation)
}

// GetBins returns the daemon's current snapshot.
func (c *RemoteClient) GetBins(ctx context.Context) ([]models.BinRecord, error) {
	var bins []models.BinRecord
	if err := c.do(ctx, http.MethodGet, "/api/bins", nil, &bins, "snapshot"); err != nil {
		return nil, err
	}
	return bins, nil
}

// GetBin returns one bin.
func (c *RemoteClient) GetBin(ctx context.Context, binID string) (models.BinRecord, error) {
	var rec models.BinRecord
	err := c.do(ctx, http.MethodGet, "/api/bins/"+url.PathEscape(binID), nil, &rec, "get")
	return rec, err
}

// LogItem posts one classified item.
func (c *RemoteClient) LogItem(ctx context.Context, binID, category string) (models.BinRecord, error) {
	var rec models.BinRecord
	body := models.LogRequest{BinID: binID, WasteType: category}
	err := c.do(ctx, http.MethodPost, "/api/log", body, &rec, "logItem")
	return rec, err
}

// Empty marks a bin as collected.
func (c *RemoteClient) Empty(ctx context.Context, binID string) (models.BinRecord, error) {
	var rec models.BinRecord
	err := c.do(ctx, http.MethodPost, "/api/bins/"+url.PathEscape(binID)+"/empty", nil, &rec, "empty")
	return rec, err
}

// Observers returns attached observer stats.
func (c *RemoteClient) Observers(ctx context.Context) ([]models.ObserverStats, error) {
	var stats []models.ObserverStats
	err := c.do(ctx, http.MethodGet, "/api/observers", nil, &stats, "observers")
	return stats, err
}

// GetConfig returns the running configuration from the daemon.
func (c *RemoteClient) GetConfig(ctx context.Context) (*RunningConfig, error) {
	var cfg RunningConfig
	if err := c.do(ctx, http.MethodGet, "/api/config", nil, &cfg, "config"); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// IsRunning returns true if the daemon is available and responding.
func (c *RemoteClient) IsRunning() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// StreamEvents subscribes using the configured transport.
func (c *RemoteClient) StreamEvents(ctx context.Context) (<-chan models.StatusChanged, <-chan error, error) {
	if c.opts.Transport == TransportWebSocket {
		return c.streamWebSocket(ctx)
	}
	return c.streamSSE(ctx)
}

// Close cleans up any resources used by the client.
func (c *RemoteClient) Close() error {
	c.httpClient.CloseIdleConnections()
	c.streamClient.CloseIdleConnections()
	return nil
}

// Ensure RemoteClient implements Client interface.
var _ Client = (*RemoteClient)(nil)
