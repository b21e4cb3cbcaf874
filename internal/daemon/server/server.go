// Package server provides the HTTP server for the wastenet daemon.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/grovetools/wastenet/internal/daemon/engine"
	"github.com/grovetools/wastenet/internal/daemon/metrics"
)

const (
	DefaultAddr      = "127.0.0.1:5001"
	DefaultHeartbeat = 15 * time.Second
)

// RunningConfig holds the active settings of the daemon.
// This is exposed via the /api/config endpoint so clients can verify what config is active.
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

// Options configures listeners and stream timing.
type Options struct {
	Addr         string
	SocketPath   string
	Heartbeat    time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server manages the daemon's HTTP API.
type Server struct {
	logger        *logrus.Entry
	engine        *engine.Engine
	metrics       *metrics.Recorder
	runningConfig *RunningConfig
	opts          Options

	mu      sync.Mutex
	servers []*http.Server
}

// New creates a new Server instance.
func New(eng *engine.Engine, opts Options, logger *logrus.Entry) *Server {
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = DefaultHeartbeat
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Server{engine: eng, opts: opts, logger: logger}
}

// SetMetrics enables request metrics and the /metrics endpoint.
func (s *Server) SetMetrics(rec *metrics.Recorder) {
	s.metrics = rec
}

// SetRunningConfig sets the running configuration for the server.
func (s *Server) SetRunningConfig(cfg *RunningConfig) {
	s.runningConfig = cfg
}

// Handler builds the routed, instrumented handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("GET /api/bins", s.handleGetBins)
	mux.HandleFunc("GET /api/bins/{id}", s.handleGetBin)
	mux.HandleFunc("POST /api/bins/{id}/empty", s.handleEmpty)
	mux.HandleFunc("POST /api/log", s.handleLog)
	mux.HandleFunc("GET /api/stream", s.handleStream)
	mux.HandleFunc("GET /api/ws", s.handleWebSocket)
	mux.HandleFunc("GET /api/observers", s.handleObservers)
	mux.HandleFunc("GET /api/config", s.handleGetConfig)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.HTTPHandler())
	}

	return withCORS(s.instrument(mux))
}

func (s *Server) newHTTPServer() *http.Server {
	srv := &http.Server{
		Handler:           h2c.NewHandler(s.Handler(), &http2.Server{}),
		ReadHeaderTimeout: s.opts.ReadTimeout,
		WriteTimeout:      s.opts.WriteTimeout,
	}
	s.mu.Lock()
	s.servers = append(s.servers, srv)
	s.mu.Unlock()
	return srv
}

// ListenAndServe serves on the TCP address and, when configured, a unix
// socket. It blocks until every listener stops and returns the first error
// other than http.ErrServerClosed.
func (s *Server) ListenAndServe() error {
	addr := s.opts.Addr
	if addr == "" {
		addr = DefaultAddr
	}
	tcp, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	listeners := []net.Listener{tcp}

	if s.opts.SocketPath != "" {
		unix, err := listenUnix(s.opts.SocketPath)
		if err != nil {
			_ = tcp.Close()
			return err
		}
		listeners = append(listeners, unix)
	}

	errs := make(chan error, len(listeners))
	for _, ln := range listeners {
		srv := s.newHTTPServer()
		s.logger.WithField("addr", ln.Addr().String()).Info("Daemon listening")
		go func(ln net.Listener) {
			errs <- srv.Serve(ln)
		}(ln)
	}

	var first error
	for range listeners {
		if err := <-errs; err != nil && !errors.Is(err, http.ErrServerClosed) && first == nil {
			first = fmt.Errorf("server error: %w", err)
			go func() { _ = s.Shutdown(context.Background()) }()
		}
	}
	return first
}

func listenUnix(socketPath string) (net.Listener, error) {
	// Cleanup stale socket
	if _, err := os.Stat(socketPath); err == nil {
		if err := os.Remove(socketPath); err != nil {
			return nil, fmt.Errorf("failed to remove stale socket: %w", err)
		}
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(socketPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create socket directory: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on socket: %w", err)
	}

	// Set restrictive permissions on socket
	if err := os.Chmod(socketPath, 0600); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("failed to set socket permissions: %w", err)
	}
	return listener, nil
}

// Shutdown gracefully stops every listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")
	s.mu.Lock()
	servers := s.servers
	s.servers = nil
	s.mu.Unlock()

	var first error
	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
