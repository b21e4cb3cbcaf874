package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/grovetools/wastenet/internal/daemon/notifier"
	"github.com/grovetools/wastenet/pkg/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Observers are unauthenticated, matching the CORS policy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleStream provides Server-Sent Events (SSE) for status changes.
// A ": connected" comment is written once the subscription is attached so
// clients can fetch their snapshot knowing no later event will be missed.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	reg := s.engine.Notifier()
	rc := http.NewResponseController(w)

	sub, err := reg.Attach("sse@" + r.RemoteAddr)
	if err != nil {
		http.Error(w, "daemon shutting down", http.StatusServiceUnavailable)
		return
	}
	defer reg.Detach(sub.ID)

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	logger := s.logger.WithFields(logrus.Fields{"observer": sub.ID, "transport": "sse"})

	write := func(frame string) bool {
		_ = rc.SetWriteDeadline(time.Now().Add(reg.SendTimeout()))
		if _, err := fmt.Fprint(w, frame); err != nil {
			logger.WithError(err).Debug("SSE write failed")
			reg.DetachWithReason(sub.ID, notifier.ReasonWriteError)
			return false
		}
		if err := rc.Flush(); err != nil {
			logger.WithError(err).Debug("SSE flush failed")
			reg.DetachWithReason(sub.ID, notifier.ReasonWriteError)
			return false
		}
		return true
	}

	if !write(": connected\n\n") {
		return
	}
	logger.Debug("SSE client connected")

	ticker := time.NewTicker(s.opts.Heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			logger.Debug("SSE client disconnected")
			return
		case <-ticker.C:
			if !write(": ping\n\n") {
				return
			}
		case ev, ok := <-sub.Events():
			if !ok {
				logger.WithField("reason", sub.Reason()).Debug("SSE subscription closed")
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				logger.WithError(err).Error("Failed to marshal event")
				continue
			}
			// SSE format: "event: name\nid: version\ndata: {json}\n\n"
			if !write(fmt.Sprintf("event: %s\nid: %d\ndata: %s\n\n", models.EventStatusChanged, ev.Bin.Version, data)) {
				return
			}
		}
	}
}

// handleWebSocket streams status changes as JSON text frames. Ping control
// frames are sent every heartbeat; a peer that stops answering is dropped
// after two missed heartbeats.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	reg := s.engine.Notifier()

	// Attach before the upgrade completes so that a client whose dial has
	// returned is guaranteed to observe every later transition.
	sub, err := reg.Attach("ws@" + r.RemoteAddr)
	if err != nil {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	defer reg.Detach(sub.ID)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Debug("WebSocket upgrade failed")
		return
	}
	defer conn.Close()
	logger := s.logger.WithFields(logrus.Fields{"observer": sub.ID, "transport": "ws"})
	logger.Debug("WebSocket client connected")

	readWait := 2 * s.opts.Heartbeat
	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readWait))
	})

	// Reader: only control frames matter; any error ends the session.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.opts.Heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			logger.Debug("WebSocket client disconnected")
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(reg.SendTimeout())); err != nil {
				reg.DetachWithReason(sub.ID, notifier.ReasonWriteError)
				return
			}
		case ev, ok := <-sub.Events():
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, sub.Reason()),
					time.Now().Add(time.Second))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(reg.SendTimeout()))
			if err := conn.WriteJSON(ev); err != nil {
				logger.WithError(err).Debug("WebSocket write failed")
				reg.DetachWithReason(sub.ID, notifier.ReasonWriteError)
				return
			}
		}
	}
}
