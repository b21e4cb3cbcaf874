package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/grovetools/wastenet/errors"
	"github.com/grovetools/wastenet/pkg/models"
	"github.com/grovetools/wastenet/version"
)

// streamSSE opens /api/stream and returns once the daemon confirms the
// subscription with its ": connected" comment.
func (c *RemoteClient) streamSSE(ctx context.Context) (<-chan models.StatusChanged, <-chan error, error) {
	streamCtx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, c.baseURL+"/api/stream", nil)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("failed to create stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("User-Agent", version.UserAgent())

	// Any silence longer than the heartbeat timeout tears the stream down.
	idle := time.AfterFunc(c.opts.HeartbeatTimeout, cancel)
	timedOut := func() bool { return ctx.Err() == nil && streamCtx.Err() != nil }

	resp, err := c.streamClient.Do(req)
	if err != nil {
		idle.Stop()
		cancel()
		return nil, nil, errors.Transient("stream", err)
	}
	if resp.StatusCode != http.StatusOK {
		idle.Stop()
		resp.Body.Close()
		cancel()
		return nil, nil, errors.Transient("stream", fmt.Errorf("stream returned status %d", resp.StatusCode))
	}

	scanner := bufio.NewScanner(resp.Body)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 4*1024*1024)

	// Wait for the subscription confirmation.
	for {
		if !scanner.Scan() {
			idle.Stop()
			resp.Body.Close()
			cancel()
			err := scanner.Err()
			if err == nil {
				err = fmt.Errorf("stream closed before subscription was confirmed")
			}
			return nil, nil, errors.Transient("stream", err)
		}
		idle.Reset(c.opts.HeartbeatTimeout)
		if strings.HasPrefix(scanner.Text(), ": connected") {
			break
		}
	}

	events := make(chan models.StatusChanged, 16)
	errs := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errs)
		defer cancel()
		defer idle.Stop()
		defer resp.Body.Close()

		var eventName string
		for scanner.Scan() {
			idle.Reset(c.opts.HeartbeatTimeout)
			line := scanner.Text()

			switch {
			case line == "":
				eventName = ""
			case strings.HasPrefix(line, ":"):
				// heartbeat or comment
			case strings.HasPrefix(line, "event: "):
				eventName = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				if eventName != "" && eventName != models.EventStatusChanged {
					continue
				}
				var ev models.StatusChanged
				if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
					continue // Skip malformed data
				}
				select {
				case events <- ev:
				case <-streamCtx.Done():
				}
			}
		}

		switch {
		case ctx.Err() != nil:
		case timedOut():
			errs <- errors.Transient("stream", fmt.Errorf("no heartbeat for %s", c.opts.HeartbeatTimeout))
		case scanner.Err() != nil:
			errs <- errors.Transient("stream", scanner.Err())
		default:
			errs <- errors.Transient("stream", fmt.Errorf("stream closed by daemon"))
		}
	}()

	return events, errs, nil
}

// websocketURL derives the ws:// endpoint from the HTTP base URL.
func (c *RemoteClient) websocketURL() string {
	base := c.baseURL
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/api/ws"
}

// streamWebSocket opens /api/ws. The read deadline equals the heartbeat
// timeout and is extended on every frame, including pings.
func (c *RemoteClient) streamWebSocket(ctx context.Context) (<-chan models.StatusChanged, <-chan error, error) {
	dialer := websocket.Dialer{HandshakeTimeout: c.opts.Timeout}
	if c.opts.SocketPath != "" {
		socketPath := c.opts.SocketPath
		dialer.NetDialContext = func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socketPath)
		}
	}

	conn, resp, err := dialer.DialContext(ctx, c.websocketURL(), http.Header{"User-Agent": {version.UserAgent()}})
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("%w (status %d)", err, resp.StatusCode)
		}
		return nil, nil, errors.Transient("stream", err)
	}

	hb := c.opts.HeartbeatTimeout
	_ = conn.SetReadDeadline(time.Now().Add(hb))
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(hb))
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
		if err == websocket.ErrCloseSent {
			return nil
		}
		if e, ok := err.(net.Error); ok && e.Timeout() {
			return nil
		}
		return err
	})

	events := make(chan models.StatusChanged, 16)
	errs := make(chan error, 1)
	done := make(chan struct{})

	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			conn.Close()
		case <-done:
		}
	}()

	go func() {
		defer close(events)
		defer close(errs)
		defer close(done)
		defer conn.Close()

		for {
			var ev models.StatusChanged
			if err := conn.ReadJSON(&ev); err != nil {
				if ctx.Err() != nil {
					return
				}
				if ne, ok := err.(net.Error); ok && ne.Timeout() {
					err = fmt.Errorf("no heartbeat for %s", hb)
				}
				errs <- errors.Transient("stream", err)
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(hb))
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	return events, errs, nil
}
