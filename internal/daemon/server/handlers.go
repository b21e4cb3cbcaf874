package server

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/grovetools/wastenet/errors"
	"github.com/grovetools/wastenet/internal/daemon/store"
	"github.com/grovetools/wastenet/pkg/models"
)

// SnapshotTakenAtHeader carries the snapshot time on GET /api/bins.
const SnapshotTakenAtHeader = "X-Snapshot-Taken-At"

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func statusFor(code errors.ErrorCode) int {
	switch code {
	case errors.ErrCodeNotFound:
		return http.StatusNotFound
	case errors.ErrCodeInvalidInput:
		return http.StatusBadRequest
	case errors.ErrCodeTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as {"message","code","details"}.
func (s *Server) writeError(w http.ResponseWriter, err error, operation string) {
	coded, ok := errors.As(err)
	if !ok {
		coded = errors.Wrap(err, errors.ErrCodeInternal, err.Error()).WithDetail("operation", operation)
	}
	status := statusFor(coded.Code)
	if status >= 500 {
		s.logger.WithError(err).WithField("operation", operation).Error("Request failed")
	}
	writeJSON(w, status, coded)
}

// handleGetBins returns the snapshot as a JSON array.
func (s *Server) handleGetBins(w http.ResponseWriter, r *http.Request) {
	snap, err := s.engine.Snapshots().Snapshot(r.Context())
	if err != nil {
		s.writeError(w, errors.Transient("snapshot", err), "snapshot")
		return
	}
	s.metrics.IncSnapshot()
	w.Header().Set(SnapshotTakenAtHeader, snap.TakenAt.UTC().Format(time.RFC3339Nano))
	writeJSON(w, http.StatusOK, snap.Bins)
}

func (s *Server) handleGetBin(w http.ResponseWriter, r *http.Request) {
	rec, err := s.engine.Store().Get(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err, store.OpGet)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleLog records one item reported by a collection point.
func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	var req models.LogRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		s.writeError(w, errors.InvalidInput(store.OpLogItem, "invalid request body"), store.OpLogItem)
		return
	}
	req.BinID = strings.TrimSpace(req.BinID)
	req.WasteType = strings.TrimSpace(req.WasteType)
	if req.BinID == "" || req.WasteType == "" {
		s.writeError(w, errors.InvalidInput(store.OpLogItem, "binId and wasteType are required").
			WithDetail("binId", req.BinID), store.OpLogItem)
		return
	}

	rec, _, err := s.engine.LogItem(req.BinID, req.WasteType)
	if err != nil {
		s.writeError(w, err, store.OpLogItem)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleEmpty(w http.ResponseWriter, r *http.Request) {
	rec, _, err := s.engine.Empty(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err, store.OpEmpty)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleObservers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Notifier().Stats())
}

// handleGetConfig returns the running configuration as JSON.
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	if s.runningConfig == nil {
		http.Error(w, "config not initialized", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s.runningConfig)
}

// statusRecorder captures the response code for metrics while keeping
// streaming and upgrade capabilities of the wrapped writer.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	if r.status == 0 {
		r.status = http.StatusSwitchingProtocols
	}
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (s *Server) instrument(next http.Handler) http.Handler {
	if s.metrics == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.ObserveRequest(route, status, time.Since(start))
	})
}
